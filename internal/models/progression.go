package models

import (
	"time"
)

// XPSource identifies what produced an XP event.
type XPSource string

// XP sources. ADMIN and ADJUST are manual credit and debit.
const (
	XPSourceMission   XPSource = "MISSION"
	XPSourceSubquest  XPSource = "SUBQUEST"
	XPSourceBossfight XPSource = "BOSSFIGHT"
	XPSourceAdmin     XPSource = "ADMIN"
	XPSourceAdjust    XPSource = "ADJUST"
)

// Valid reports whether s is a known source.
func (s XPSource) Valid() bool {
	switch s {
	case XPSourceMission, XPSourceSubquest, XPSourceBossfight, XPSourceAdmin, XPSourceAdjust:
		return true
	}
	return false
}

// XPEvent is an immutable ledger entry.
type XPEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_xp_events_user_created,priority:1" json:"user_id"`
	Source    XPSource  `gorm:"not null;size:20" json:"source"`
	SourceID  *uint     `json:"source_id,omitempty"`
	Amount    int       `gorm:"not null" json:"amount"`
	CreatedAt time.Time `gorm:"index:idx_xp_events_user_created,priority:2" json:"created_at"`
}

// TableName specifies the table name for XPEvent model.
func (XPEvent) TableName() string {
	return "xp_events"
}

// Achievement is a milestone a user unlocked. At most one row per (user, code).
type Achievement struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_achievements_user_code,priority:1" json:"user_id"`
	Code        string    `gorm:"not null;size:50;uniqueIndex:idx_achievements_user_code,priority:2" json:"code"`
	Title       string    `gorm:"not null;size:100" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	AwardedAt   time.Time `gorm:"not null" json:"awarded_at"`
}

// TableName specifies the table name for Achievement model.
func (Achievement) TableName() string {
	return "achievements"
}

// Reward is a cosmetic item unlocked at an XP threshold. At most one row per (user, threshold).
type Reward struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;uniqueIndex:idx_rewards_user_threshold,priority:1" json:"user_id"`
	Title       string     `gorm:"not null;size:100" json:"title"`
	ItemType    string     `gorm:"not null;size:20" json:"item_type"`
	Icon        string     `gorm:"size:20" json:"icon"`
	Color       string     `gorm:"size:20" json:"color"`
	XPThreshold int        `gorm:"column:xp_threshold;not null;uniqueIndex:idx_rewards_user_threshold,priority:2" json:"xp_threshold"`
	ClaimedAt   *time.Time `json:"claimed_at"`
}

// TableName specifies the table name for Reward model.
func (Reward) TableName() string {
	return "rewards"
}

// IsClaimed reports whether the reward has been claimed.
func (r *Reward) IsClaimed() bool {
	return r.ClaimedAt != nil
}
