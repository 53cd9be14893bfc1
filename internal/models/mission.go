package models

import (
	"time"
)

// MissionStatus is OPEN or DONE.
type MissionStatus string

// Mission statuses.
const (
	MissionOpen MissionStatus = "OPEN"
	MissionDone MissionStatus = "DONE"
)

// RecurringType is the reset period of a recurring mission.
type RecurringType string

// Recurring periods. CUSTOM missions are never reset automatically.
const (
	RecurringDaily  RecurringType = "DAILY"
	RecurringWeekly RecurringType = "WEEKLY"
	RecurringCustom RecurringType = "CUSTOM"
)

// Valid reports whether t is a known recurring period.
func (t RecurringType) Valid() bool {
	switch t {
	case RecurringDaily, RecurringWeekly, RecurringCustom:
		return true
	}
	return false
}

// DefaultMissionXP is granted when a mission is created without an XP value.
const DefaultMissionXP = 10

// Mission is a one-off or recurring task.
type Mission struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	UserID          uint          `gorm:"not null;index" json:"user_id"`
	QuestID         *uint         `gorm:"index" json:"quest_id,omitempty"`
	Title           string        `gorm:"not null;size:255" json:"title"`
	Description     string        `gorm:"type:text" json:"description"`
	Status          MissionStatus `gorm:"not null;size:10;default:'OPEN'" json:"status"`
	ScheduledFor    time.Time     `gorm:"not null;index" json:"scheduled_for"`
	XPValue         int           `gorm:"column:xp_value;not null" json:"xp_value"`
	IsRecurring     bool          `gorm:"not null;default:false;index" json:"is_recurring"`
	RecurringType   RecurringType `gorm:"size:10" json:"recurring_type,omitempty"`
	LastCompletedAt *time.Time    `gorm:"index" json:"last_completed_at"`
	CompletionCount int           `gorm:"not null;default:0" json:"completion_count"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// TableName specifies the table name for Mission model.
func (Mission) TableName() string {
	return "missions"
}

// IsDone reports whether the mission is in the DONE state.
func (m *Mission) IsDone() bool {
	return m.Status == MissionDone
}
