package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/aimd54/questlog/internal/models"
)

// RewardRepository handles reward-related database operations.
type RewardRepository struct {
	db *DB
}

// NewRewardRepository creates a new reward repository.
func NewRewardRepository(db *DB) *RewardRepository {
	return &RewardRepository{db: db}
}

// ListByUser retrieves a user's rewards ordered by XP threshold.
func (r *RewardRepository) ListByUser(ctx context.Context, userID uint) ([]models.Reward, error) {
	var rewards []models.Reward
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("xp_threshold ASC").
		Find(&rewards).Error; err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	return rewards, nil
}

// CreateIfAbsent inserts the reward unless the user already has one at its threshold.
func (r *RewardRepository) CreateIfAbsent(ctx context.Context, reward *models.Reward) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(reward)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create reward %q: %w", reward.Title, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetForUser retrieves a reward owned by userID. Someone else's reward is NotFound.
func (r *RewardRepository) GetForUser(ctx context.Context, id, userID uint) (*models.Reward, error) {
	var reward models.Reward
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&reward).Error; err != nil {
		return nil, lookupError(err, "reward", id)
	}
	return &reward, nil
}

// MarkClaimed stamps claimed_at if the reward is still unclaimed.
// It reports false when another claim got there first.
func (r *RewardRepository) MarkClaimed(ctx context.Context, id, userID uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reward{}).
		Where("id = ? AND user_id = ? AND claimed_at IS NULL", id, userID).
		Update("claimed_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim reward %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}
