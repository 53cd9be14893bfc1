package repository

import (
	"context"
	"fmt"

	"github.com/aimd54/questlog/internal/models"
)

// XPEventRepository handles the append-only XP ledger.
type XPEventRepository struct {
	db *DB
}

// NewXPEventRepository creates a new XP event repository.
func NewXPEventRepository(db *DB) *XPEventRepository {
	return &XPEventRepository{db: db}
}

// Create appends an event.
func (r *XPEventRepository) Create(ctx context.Context, event *models.XPEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to create xp event: %w", err)
	}
	return nil
}

// ListByUser returns one page of a user's events, newest first, plus the total count.
func (r *XPEventRepository) ListByUser(ctx context.Context, userID uint, offset, limit int) ([]models.XPEvent, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.XPEvent{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count xp events: %w", err)
	}

	var events []models.XPEvent
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list xp events: %w", err)
	}
	return events, total, nil
}

// SumByUser returns the sum of all event amounts for a user.
func (r *XPEventRepository) SumByUser(ctx context.Context, userID uint) (int, error) {
	var sum int
	if err := r.db.WithContext(ctx).
		Model(&models.XPEvent{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error; err != nil {
		return 0, fmt.Errorf("failed to sum xp events: %w", err)
	}
	return sum, nil
}
