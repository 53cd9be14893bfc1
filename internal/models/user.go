// Package models defines the persisted entities of the progression engine.
package models

import (
	"math"
	"time"
)

// XPPerLevelUnit scales the quadratic level curve: level N needs XPPerLevelUnit*N² XP.
const XPPerLevelUnit = 100

// User is an account plus its progression snapshot.
type User struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Email          string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash   string     `gorm:"not null;size:255" json:"-"`
	DisplayName    string     `gorm:"size:100" json:"display_name"`
	TotalXP        int        `gorm:"column:total_xp;not null;default:0" json:"total_xp"`
	Level          int        `gorm:"not null;default:0" json:"level"`
	StreakCount    int        `gorm:"not null;default:0" json:"streak_count"`
	LastActivityAt *time.Time `json:"last_activity_at"`
	Version        int        `gorm:"not null;default:0" json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// LevelForXP returns floor(sqrt(totalXP / 100)). Negative totals map to level 0.
func LevelForXP(totalXP int) int {
	if totalXP <= 0 {
		return 0
	}
	units := totalXP / XPPerLevelUnit
	n := int(math.Sqrt(float64(units)))
	// Correct float rounding at perfect-square edges.
	for n*n > units {
		n--
	}
	for (n+1)*(n+1) <= units {
		n++
	}
	return n
}

// XPForLevel returns the cumulative XP at which level starts.
func XPForLevel(level int) int {
	if level <= 0 {
		return 0
	}
	return XPPerLevelUnit * level * level
}
