package repository

import (
	"context"
	"fmt"

	"github.com/aimd54/questlog/internal/models"
)

// QuestFilter narrows a quest listing. Zero values are ignored.
type QuestFilter struct {
	Type   models.QuestType
	Status models.QuestStatus
}

// QuestRepository handles quest-related database operations.
type QuestRepository struct {
	db *DB
}

// NewQuestRepository creates a new quest repository.
func NewQuestRepository(db *DB) *QuestRepository {
	return &QuestRepository{db: db}
}

// Create creates a new quest.
func (r *QuestRepository) Create(ctx context.Context, quest *models.Quest) error {
	if err := r.db.WithContext(ctx).Create(quest).Error; err != nil {
		return fmt.Errorf("failed to create quest: %w", err)
	}
	return nil
}

// GetForUser retrieves a quest owned by userID. Someone else's quest is NotFound.
func (r *QuestRepository) GetForUser(ctx context.Context, id, userID uint) (*models.Quest, error) {
	var quest models.Quest
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&quest).Error; err != nil {
		return nil, lookupError(err, "quest", id)
	}
	return &quest, nil
}

// List retrieves a user's quests, newest first.
func (r *QuestRepository) List(ctx context.Context, userID uint, filter QuestFilter) ([]models.Quest, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var quests []models.Quest
	if err := query.Order("created_at DESC").Order("id DESC").Find(&quests).Error; err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	return quests, nil
}

// UpdateFields writes only the given columns, provided the quest still has
// status from. It reports false when the quest changed status in between.
func (r *QuestRepository) UpdateFields(ctx context.Context, quest *models.Quest, from models.QuestStatus, fields map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Quest{}).
		Where("id = ? AND user_id = ? AND status = ?", quest.ID, quest.UserID, from).
		Updates(fields)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update quest %d: %w", quest.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkCompleted settles an ACTIVE quest with the completion fields already set
// on quest. It reports false when the quest was no longer ACTIVE.
func (r *QuestRepository) MarkCompleted(ctx context.Context, quest *models.Quest) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Quest{}).
		Where("id = ? AND user_id = ? AND status = ?", quest.ID, quest.UserID, models.QuestActive).
		Updates(map[string]interface{}{
			"status":                 models.QuestCompleted,
			"completed_at":           quest.CompletedAt,
			"boss_completed_on_time": quest.BossFight.CompletedOnTime,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to complete quest %d: %w", quest.ID, res.Error)
	}
	return res.RowsAffected > 0, nil
}
