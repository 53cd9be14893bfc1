package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/aimd54/questlog/internal/models"
)

// AchievementRepository handles achievement-related database operations.
type AchievementRepository struct {
	db *DB
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(db *DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// Award inserts the achievement unless the user already holds its code.
// It reports whether a new row was created.
func (r *AchievementRepository) Award(ctx context.Context, achievement *models.Achievement) (bool, error) {
	exists, err := r.Has(ctx, achievement.UserID, achievement.Code)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	// The unique (user_id, code) index settles races between concurrent evaluations.
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(achievement)
	if res.Error != nil {
		return false, fmt.Errorf("failed to award achievement %s: %w", achievement.Code, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Has checks if a user has unlocked a specific code.
func (r *AchievementRepository) Has(ctx context.Context, userID uint, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Achievement{}).
		Where("user_id = ? AND code = ?", userID, code).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check achievement %s: %w", code, err)
	}
	return count > 0, nil
}

// ListByUser retrieves a user's achievements, most recent first.
func (r *AchievementRepository) ListByUser(ctx context.Context, userID uint) ([]models.Achievement, error) {
	var achievements []models.Achievement
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("awarded_at DESC").
		Order("id DESC").
		Find(&achievements).Error; err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	return achievements, nil
}

// CountByUser returns how many achievements a user holds.
func (r *AchievementRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Achievement{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count achievements for user %d: %w", userID, err)
	}
	return count, nil
}
