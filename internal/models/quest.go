package models

import (
	"time"
)

// QuestType is MAIN or SUB.
type QuestType string

// Quest types.
const (
	QuestMain QuestType = "MAIN"
	QuestSub  QuestType = "SUB"
)

// Valid reports whether t is a known quest type.
func (t QuestType) Valid() bool {
	return t == QuestMain || t == QuestSub
}

// CompletionXP is the XP for completing a non-boss quest of this type.
func (t QuestType) CompletionXP() int {
	if t == QuestMain {
		return 100
	}
	return 25
}

// QuestStatus is the lifecycle state of a quest.
type QuestStatus string

// Quest statuses.
const (
	QuestActive    QuestStatus = "ACTIVE"
	QuestCompleted QuestStatus = "COMPLETED"
	QuestArchived  QuestStatus = "ARCHIVED"
)

// BossFightBonusXP is granted when a boss fight is won before its deadline.
const BossFightBonusXP = 50

// BossFight is the optional deadline mechanic of a quest.
type BossFight struct {
	IsBoss          bool       `gorm:"not null;default:false" json:"is_boss"`
	Deadline        *time.Time `json:"deadline"`
	CompletedOnTime *bool      `json:"completed_on_time"`
}

// Active reports whether the boss-fight branch applies on completion.
func (b BossFight) Active() bool {
	return b.IsBoss && b.Deadline != nil
}

// Quest is a longer-lived goal.
type Quest struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	UserID      uint        `gorm:"not null;index" json:"user_id"`
	Type        QuestType   `gorm:"not null;size:10;index" json:"type"`
	Title       string      `gorm:"not null;size:255" json:"title"`
	Description string      `gorm:"type:text" json:"description"`
	Status      QuestStatus `gorm:"not null;size:20;default:'ACTIVE';index" json:"status"`
	StartDate   *time.Time  `json:"start_date"`
	DueDate     *time.Time  `json:"due_date"`
	BossFight   BossFight   `gorm:"embedded;embeddedPrefix:boss_" json:"boss_fight"`
	CompletedAt *time.Time  `json:"completed_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName specifies the table name for Quest model.
func (Quest) TableName() string {
	return "quests"
}
