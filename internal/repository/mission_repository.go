package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/questlog/internal/models"
)

// MissionFilter narrows a mission listing. Zero values are ignored.
type MissionFilter struct {
	From   *time.Time
	To     *time.Time
	Status models.MissionStatus
}

// MissionRepository handles mission-related database operations.
type MissionRepository struct {
	db *DB
}

// NewMissionRepository creates a new mission repository.
func NewMissionRepository(db *DB) *MissionRepository {
	return &MissionRepository{db: db}
}

// Create creates a new mission.
func (r *MissionRepository) Create(ctx context.Context, mission *models.Mission) error {
	if err := r.db.WithContext(ctx).Create(mission).Error; err != nil {
		return fmt.Errorf("failed to create mission: %w", err)
	}
	return nil
}

// GetForUser retrieves a mission owned by userID. Someone else's mission is NotFound.
func (r *MissionRepository) GetForUser(ctx context.Context, id, userID uint) (*models.Mission, error) {
	var mission models.Mission
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&mission).Error; err != nil {
		return nil, lookupError(err, "mission", id)
	}
	return &mission, nil
}

// List retrieves a user's missions, latest scheduled first.
func (r *MissionRepository) List(ctx context.Context, userID uint, filter MissionFilter) ([]models.Mission, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.From != nil {
		query = query.Where("scheduled_for >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("scheduled_for < ?", *filter.To)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var missions []models.Mission
	if err := query.Order("scheduled_for DESC").Order("id DESC").Find(&missions).Error; err != nil {
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}
	return missions, nil
}

// ListRecurring retrieves a user's recurring missions ordered by title.
func (r *MissionRepository) ListRecurring(ctx context.Context, userID uint) ([]models.Mission, error) {
	var missions []models.Mission
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_recurring = ?", userID, true).
		Order("title ASC").
		Order("id ASC").
		Find(&missions).Error; err != nil {
		return nil, fmt.Errorf("failed to list recurring missions: %w", err)
	}
	return missions, nil
}

// MarkDone transitions a mission to DONE at completedAt. A one-off mission must
// still be OPEN; a recurring one must not have been completed since dayStart.
// It reports false when the guard did not match, leaving the row untouched.
func (r *MissionRepository) MarkDone(ctx context.Context, mission *models.Mission, completedAt, dayStart time.Time) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Mission{}).
		Where("id = ? AND user_id = ?", mission.ID, mission.UserID)
	if mission.IsRecurring {
		query = query.Where("(last_completed_at IS NULL OR last_completed_at < ?)", dayStart)
	} else {
		query = query.Where("status = ?", models.MissionOpen)
	}

	res := query.Updates(map[string]interface{}{
		"status":            models.MissionDone,
		"last_completed_at": completedAt,
		"completion_count":  gorm.Expr("completion_count + 1"),
	})
	if res.Error != nil {
		return false, fmt.Errorf("failed to complete mission %d: %w", mission.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	mission.Status = models.MissionDone
	mission.LastCompletedAt = &completedAt
	mission.CompletionCount++
	return true, nil
}

// Reopen sets the given missions back to OPEN.
func (r *MissionRepository) Reopen(ctx context.Context, userID uint, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Mission{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Update("status", models.MissionOpen).Error; err != nil {
		return fmt.Errorf("failed to reopen missions: %w", err)
	}
	return nil
}

// CountCompletedBetween counts DONE missions whose last completion is in [start, end).
func (r *MissionRepository) CountCompletedBetween(ctx context.Context, userID uint, start, end time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Mission{}).
		Where("user_id = ? AND status = ?", userID, models.MissionDone).
		Where("last_completed_at >= ? AND last_completed_at < ?", start, end).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count completed missions: %w", err)
	}
	return count, nil
}
