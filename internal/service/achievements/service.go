// Package achievements evaluates catalog rules and awards one-time achievements.
package achievements

import (
	"context"
	"fmt"

	"github.com/aimd54/questlog/internal/calendar"
	"github.com/aimd54/questlog/internal/catalog"
	prommetrics "github.com/aimd54/questlog/internal/metrics"
	"github.com/aimd54/questlog/internal/models"
	"github.com/aimd54/questlog/internal/repository"
	"github.com/aimd54/questlog/pkg/logger"
)

// Service evaluates achievement rules.
type Service struct {
	store   *repository.Store
	catalog *catalog.Catalog
	cal     *calendar.Calendar
	log     *logger.Logger
}

// NewService creates a new achievement service.
func NewService(store *repository.Store, cat *catalog.Catalog, cal *calendar.Calendar, log *logger.Logger) *Service {
	return &Service{store: store, catalog: cat, cal: cal, log: log}
}

// WithStore returns a copy bound to another store, typically a transaction.
func (s *Service) WithStore(store *repository.Store) *Service {
	c := *s
	c.store = store
	return &c
}

// ListForUser returns the user's achievements, most recent first.
func (s *Service) ListForUser(ctx context.Context, userID uint) ([]models.Achievement, error) {
	list, err := s.store.Achievements.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Achievement{}
	}
	return list, nil
}

// CheckFirstCompletion awards first-completion rules. Call it after any mission completion.
func (s *Service) CheckFirstCompletion(ctx context.Context, userID uint) ([]models.Achievement, error) {
	return s.evaluate(ctx, userID, catalog.KindFirstCompletion, func(catalog.AchievementRule) (bool, error) {
		return true, nil
	})
}

// CheckStreakTiers awards every streak rule whose threshold streak meets.
func (s *Service) CheckStreakTiers(ctx context.Context, userID uint, streak int) ([]models.Achievement, error) {
	return s.evaluate(ctx, userID, catalog.KindStreak, func(rule catalog.AchievementRule) (bool, error) {
		return streak >= rule.Threshold, nil
	})
}

// CheckDailyVolume awards daily-volume rules when enough missions were completed today.
func (s *Service) CheckDailyVolume(ctx context.Context, userID uint) ([]models.Achievement, error) {
	var completedToday int64 = -1

	return s.evaluate(ctx, userID, catalog.KindDailyVolume, func(rule catalog.AchievementRule) (bool, error) {
		if completedToday < 0 {
			start, end := s.cal.DayRange(s.cal.Now())
			n, err := s.store.Missions.CountCompletedBetween(ctx, userID, start, end)
			if err != nil {
				return false, err
			}
			completedToday = n
		}
		return completedToday >= int64(rule.Threshold), nil
	})
}

// evaluate runs qualifies for each not-yet-held rule of kind and awards the ones that pass.
func (s *Service) evaluate(
	ctx context.Context,
	userID uint,
	kind catalog.RuleKind,
	qualifies func(catalog.AchievementRule) (bool, error),
) ([]models.Achievement, error) {
	var awarded []models.Achievement

	for _, rule := range s.catalog.RulesOfKind(kind) {
		has, err := s.store.Achievements.Has(ctx, userID, rule.Code)
		if err != nil {
			return awarded, err
		}
		if has {
			continue
		}

		ok, err := qualifies(rule)
		if err != nil {
			return awarded, fmt.Errorf("failed to evaluate %s: %w", rule.Code, err)
		}
		if !ok {
			continue
		}

		achievement := models.Achievement{
			UserID:      userID,
			Code:        rule.Code,
			Title:       rule.Title,
			Description: rule.Description,
			AwardedAt:   s.cal.Now(),
		}
		created, err := s.store.Achievements.Award(ctx, &achievement)
		if err != nil {
			return awarded, err
		}
		if !created {
			continue
		}

		prommetrics.RecordAchievementUnlocked(rule.Code)
		s.log.Info().
			Uint("user_id", userID).
			Str("code", rule.Code).
			Msg("Achievement unlocked")
		awarded = append(awarded, achievement)
	}

	return awarded, nil
}
