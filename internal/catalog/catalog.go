// Package catalog loads the achievement rules and default reward track.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// RuleKind selects the predicate an achievement rule is evaluated with.
type RuleKind string

// Supported rule kinds.
const (
	KindFirstCompletion RuleKind = "first_completion"
	KindStreak          RuleKind = "streak"
	KindDailyVolume     RuleKind = "daily_volume"
)

// AchievementRule describes one unlockable achievement.
type AchievementRule struct {
	Code        string   `yaml:"code"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Kind        RuleKind `yaml:"kind"`
	Threshold   int      `yaml:"threshold"`
}

// RewardTemplate is one entry of the default reward track.
type RewardTemplate struct {
	Title       string `yaml:"title"`
	ItemType    string `yaml:"item_type"`
	Icon        string `yaml:"icon"`
	Color       string `yaml:"color"`
	XPThreshold int    `yaml:"xp_threshold"`
}

// Catalog is the full progression catalog.
type Catalog struct {
	Achievements []AchievementRule `yaml:"achievements"`
	Rewards      []RewardTemplate  `yaml:"rewards"`
}

var validItemTypes = map[string]bool{
	"SKIN":      true,
	"HAT":       true,
	"WEAPON":    true,
	"SHIELD":    true,
	"ACCESSORY": true,
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file, falling back to the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	sort.SliceStable(c.Rewards, func(i, j int) bool {
		return c.Rewards[i].XPThreshold < c.Rewards[j].XPThreshold
	})
	return &c, nil
}

// Validate checks rule codes and reward thresholds are unique and well formed.
func (c *Catalog) Validate() error {
	codes := make(map[string]bool, len(c.Achievements))
	for _, rule := range c.Achievements {
		if rule.Code == "" {
			return fmt.Errorf("achievement without code")
		}
		if codes[rule.Code] {
			return fmt.Errorf("duplicate achievement code %s", rule.Code)
		}
		codes[rule.Code] = true

		switch rule.Kind {
		case KindFirstCompletion:
		case KindStreak, KindDailyVolume:
			if rule.Threshold < 1 {
				return fmt.Errorf("achievement %s needs a positive threshold", rule.Code)
			}
		default:
			return fmt.Errorf("achievement %s has unknown kind %q", rule.Code, rule.Kind)
		}
	}

	thresholds := make(map[int]bool, len(c.Rewards))
	for _, r := range c.Rewards {
		if r.XPThreshold < 0 {
			return fmt.Errorf("reward %q has negative threshold", r.Title)
		}
		if thresholds[r.XPThreshold] {
			return fmt.Errorf("duplicate reward threshold %d", r.XPThreshold)
		}
		thresholds[r.XPThreshold] = true
		if !validItemTypes[r.ItemType] {
			return fmt.Errorf("reward %q has unknown item type %q", r.Title, r.ItemType)
		}
	}
	return nil
}

// RulesOfKind returns the rules evaluated by one trigger, in catalog order.
func (c *Catalog) RulesOfKind(kind RuleKind) []AchievementRule {
	var rules []AchievementRule
	for _, rule := range c.Achievements {
		if rule.Kind == kind {
			rules = append(rules, rule)
		}
	}
	return rules
}
