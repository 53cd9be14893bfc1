// Package quests implements the quest lifecycle and boss-fight bonuses.
package quests

import (
	"context"
	"strings"
	"time"

	"github.com/aimd54/questlog/internal/apperrors"
	"github.com/aimd54/questlog/internal/cache"
	"github.com/aimd54/questlog/internal/calendar"
	"github.com/aimd54/questlog/internal/config"
	prommetrics "github.com/aimd54/questlog/internal/metrics"
	"github.com/aimd54/questlog/internal/models"
	"github.com/aimd54/questlog/internal/repository"
	"github.com/aimd54/questlog/internal/service/achievements"
	"github.com/aimd54/questlog/internal/service/streaks"
	"github.com/aimd54/questlog/internal/service/xp"
	"github.com/aimd54/questlog/pkg/logger"
)

// Completion outcomes reported in metrics.
const (
	OutcomeStandard   = "standard"
	OutcomeBossWon    = "boss_won"
	OutcomeBossMissed = "boss_missed"
)

// BossFightInput is a boss-fight patch. Nil fields keep their current value.
type BossFightInput struct {
	IsBoss   *bool      `json:"is_boss"`
	Deadline *time.Time `json:"deadline"`
}

// CreateInput holds the fields of a new quest.
type CreateInput struct {
	Type        models.QuestType `json:"type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	StartDate   *time.Time       `json:"start_date"`
	DueDate     *time.Time       `json:"due_date"`
	BossFight   *BossFightInput  `json:"boss_fight"`
}

// UpdateInput is a partial quest update. Nil fields are left unchanged.
type UpdateInput struct {
	Title       *string             `json:"title"`
	Description *string             `json:"description"`
	StartDate   *time.Time          `json:"start_date"`
	DueDate     *time.Time          `json:"due_date"`
	Status      *models.QuestStatus `json:"status"`
	BossFight   *BossFightInput     `json:"boss_fight"`
}

// Filter narrows FindAll.
type Filter struct {
	Type   models.QuestType
	Status models.QuestStatus
}

// CompletionResult describes the outcome of Complete. Completed is false when
// the quest was already completed and nothing was granted.
type CompletionResult struct {
	Quest           *models.Quest        `json:"quest"`
	Completed       bool                 `json:"completed"`
	XPGranted       int                  `json:"xp_granted"`
	TotalXP         int                  `json:"total_xp"`
	Level           int                  `json:"level"`
	LeveledUp       bool                 `json:"leveled_up"`
	StreakCount     int                  `json:"streak_count"`
	NewAchievements []models.Achievement `json:"new_achievements"`
}

// Service manages quests.
type Service struct {
	store        *repository.Store
	xp           *xp.Service
	streaks      *streaks.Service
	achievements *achievements.Service
	locker       cache.UserLocker
	cal          *calendar.Calendar
	fanoutMode   string
	log          *logger.Logger
}

// NewService creates a new quest service.
func NewService(
	store *repository.Store,
	xpService *xp.Service,
	streakService *streaks.Service,
	achievementService *achievements.Service,
	locker cache.UserLocker,
	cal *calendar.Calendar,
	fanoutMode string,
	log *logger.Logger,
) *Service {
	if fanoutMode == "" {
		fanoutMode = config.FanoutTransactional
	}
	return &Service{
		store:        store,
		xp:           xpService,
		streaks:      streakService,
		achievements: achievementService,
		locker:       locker,
		cal:          cal,
		fanoutMode:   fanoutMode,
		log:          log,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Create creates a quest for userID. StartDate defaults to now.
func (s *Service) Create(ctx context.Context, userID uint, in CreateInput) (*models.Quest, error) {
	if !in.Type.Valid() {
		return nil, apperrors.Invalid("quest type must be %s or %s", models.QuestMain, models.QuestSub)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperrors.Invalid("title is required")
	}

	quest := &models.Quest{
		UserID:      userID,
		Type:        in.Type,
		Title:       title,
		Description: in.Description,
		Status:      models.QuestActive,
		StartDate:   utcPtr(in.StartDate),
		DueDate:     utcPtr(in.DueDate),
	}
	if quest.StartDate == nil {
		now := s.cal.Now()
		quest.StartDate = &now
	}
	if in.BossFight != nil {
		applyBossFight(&quest.BossFight, in.BossFight)
	}

	if err := s.store.Quests.Create(ctx, quest); err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("user_id", userID).
		Uint("quest_id", quest.ID).
		Str("type", string(quest.Type)).
		Bool("boss", quest.BossFight.IsBoss).
		Msg("Quest created")

	return quest, nil
}

// applyBossFight merges patch into b. CompletedOnTime is never touched.
func applyBossFight(b *models.BossFight, patch *BossFightInput) {
	if patch.IsBoss != nil {
		b.IsBoss = *patch.IsBoss
	}
	if patch.Deadline != nil {
		b.Deadline = utcPtr(patch.Deadline)
	}
}

// Update applies a partial update. Status may only move forward to ARCHIVED
// or stay put; completion goes through Complete and archived quests stay archived.
// Only patched columns are written, and only while the quest still has the
// status it was read with.
func (s *Service) Update(ctx context.Context, questID, userID uint, in UpdateInput) (*models.Quest, error) {
	unlock, err := s.locker.LockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	quest, err := s.store.Quests.GetForUser(ctx, questID, userID)
	if err != nil {
		return nil, err
	}
	readStatus := quest.Status
	fields := make(map[string]interface{})

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apperrors.Invalid("title must not be empty")
		}
		quest.Title = title
		fields["title"] = title
	}
	if in.Description != nil {
		quest.Description = *in.Description
		fields["description"] = quest.Description
	}
	if in.StartDate != nil {
		quest.StartDate = utcPtr(in.StartDate)
		fields["start_date"] = quest.StartDate
	}
	if in.DueDate != nil {
		quest.DueDate = utcPtr(in.DueDate)
		fields["due_date"] = quest.DueDate
	}

	if in.Status != nil && *in.Status != quest.Status {
		switch *in.Status {
		case models.QuestActive, models.QuestArchived:
		case models.QuestCompleted:
			return nil, apperrors.Invalid("use the complete action to complete a quest")
		default:
			return nil, apperrors.Invalid("unknown quest status %q", *in.Status)
		}
		if quest.Status == models.QuestArchived {
			return nil, apperrors.Precondition("quest %d is archived", quest.ID)
		}
		if quest.Status == models.QuestCompleted && *in.Status == models.QuestActive {
			return nil, apperrors.Precondition("completed quest %d can only be archived", quest.ID)
		}
		quest.Status = *in.Status
		fields["status"] = quest.Status
	}

	if in.BossFight != nil {
		if quest.Status == models.QuestCompleted {
			return nil, apperrors.Precondition("boss fight of completed quest %d is settled", quest.ID)
		}
		applyBossFight(&quest.BossFight, in.BossFight)
		fields["boss_is_boss"] = quest.BossFight.IsBoss
		fields["boss_deadline"] = quest.BossFight.Deadline
	}

	if len(fields) == 0 {
		return quest, nil
	}

	ok, err := s.store.Quests.UpdateFields(ctx, quest, readStatus, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Conflict("quest %d changed while updating, retry", quest.ID)
	}

	s.log.Debug().
		Uint("user_id", userID).
		Uint("quest_id", quest.ID).
		Str("status", string(quest.Status)).
		Msg("Quest updated")

	return s.store.Quests.GetForUser(ctx, questID, userID)
}

// FindAll lists a user's quests, newest first.
func (s *Service) FindAll(ctx context.Context, userID uint, filter Filter) ([]models.Quest, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, apperrors.Invalid("unknown quest type %q", filter.Type)
	}
	switch filter.Status {
	case "", models.QuestActive, models.QuestCompleted, models.QuestArchived:
	default:
		return nil, apperrors.Invalid("unknown quest status %q", filter.Status)
	}

	list, err := s.store.Quests.List(ctx, userID, repository.QuestFilter{Type: filter.Type, Status: filter.Status})
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Quest{}
	}
	return list, nil
}

// Complete completes a quest. A boss fight grants its bonus only when finished
// by the deadline; otherwise the quest grants its type's XP. Completing an
// already completed quest is a no-op.
func (s *Service) Complete(ctx context.Context, questID, userID uint) (*CompletionResult, error) {
	unlock, err := s.locker.LockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	quest, err := s.store.Quests.GetForUser(ctx, questID, userID)
	if err != nil {
		return nil, err
	}

	switch quest.Status {
	case models.QuestCompleted:
		return s.unchanged(ctx, quest)
	case models.QuestArchived:
		return nil, apperrors.Precondition("quest %d is archived", quest.ID)
	}

	var (
		result  *CompletionResult
		outcome string
	)
	if s.fanoutMode == config.FanoutBestEffort {
		err = s.store.WithinTx(ctx, func(tx *repository.Store) error {
			var txErr error
			result, outcome, txErr = s.completeIn(ctx, tx, quest)
			return txErr
		})
		if err == nil && result.Completed {
			if fanErr := s.fanOut(ctx, s.store, result); fanErr != nil {
				s.log.Error().
					Err(fanErr).
					Uint("user_id", userID).
					Uint("quest_id", questID).
					Msg("Quest completed but progression follow-up failed")
			}
		}
	} else {
		err = s.store.WithinTx(ctx, func(tx *repository.Store) error {
			var txErr error
			if result, outcome, txErr = s.completeIn(ctx, tx, quest); txErr != nil || !result.Completed {
				return txErr
			}
			return s.fanOut(ctx, tx, result)
		})
	}
	if err != nil {
		return nil, err
	}
	if !result.Completed {
		if quest, err = s.store.Quests.GetForUser(ctx, questID, userID); err != nil {
			return nil, err
		}
		return s.unchanged(ctx, quest)
	}

	prommetrics.RecordQuestCompleted(string(quest.Type), outcome)
	s.log.Info().
		Uint("user_id", userID).
		Uint("quest_id", questID).
		Str("outcome", outcome).
		Int("xp", result.XPGranted).
		Msg("Quest completed")

	return result, nil
}

// completeIn settles the quest and grants its XP through store.
func (s *Service) completeIn(ctx context.Context, store *repository.Store, quest *models.Quest) (*CompletionResult, string, error) {
	now := s.cal.Now()
	quest.Status = models.QuestCompleted
	quest.CompletedAt = &now

	amount, source, outcome := quest.Type.CompletionXP(), models.XPSourceSubquest, OutcomeStandard
	if quest.BossFight.Active() {
		onTime := !now.After(*quest.BossFight.Deadline)
		quest.BossFight.CompletedOnTime = &onTime
		amount, source, outcome = 0, models.XPSourceBossfight, OutcomeBossMissed
		if onTime {
			amount, outcome = models.BossFightBonusXP, OutcomeBossWon
		}
	}

	done, err := store.Quests.MarkCompleted(ctx, quest)
	if err != nil {
		return nil, "", err
	}
	if !done {
		return &CompletionResult{Quest: quest}, outcome, nil
	}

	result := &CompletionResult{
		Quest:           quest,
		Completed:       true,
		NewAchievements: []models.Achievement{},
	}
	if amount == 0 {
		user, err := store.Users.GetByID(ctx, quest.UserID)
		if err != nil {
			return nil, "", err
		}
		result.TotalXP, result.Level = user.TotalXP, user.Level
		return result, outcome, nil
	}

	grant, err := s.xp.WithStore(store).Grant(ctx, quest.UserID, amount, source, &quest.ID)
	if err != nil {
		return nil, "", err
	}
	result.XPGranted = amount
	result.TotalXP = grant.TotalXP
	result.Level = grant.Level
	result.LeveledUp = grant.LeveledUp()
	return result, outcome, nil
}

// fanOut touches the streak, then checks streak tiers against the new count.
func (s *Service) fanOut(ctx context.Context, store *repository.Store, result *CompletionResult) error {
	userID := result.Quest.UserID

	touch, err := s.streaks.WithStore(store).Touch(ctx, userID)
	if err != nil {
		return err
	}
	result.StreakCount = touch.StreakCount

	awarded, err := s.achievements.WithStore(store).CheckStreakTiers(ctx, userID, touch.StreakCount)
	if err != nil {
		return err
	}
	result.NewAchievements = append(result.NewAchievements, awarded...)
	return nil
}

func (s *Service) unchanged(ctx context.Context, quest *models.Quest) (*CompletionResult, error) {
	user, err := s.store.Users.GetByID(ctx, quest.UserID)
	if err != nil {
		return nil, err
	}
	return &CompletionResult{
		Quest:           quest,
		TotalXP:         user.TotalXP,
		Level:           user.Level,
		StreakCount:     streaks.Current(s.cal, user, s.cal.Now()),
		NewAchievements: []models.Achievement{},
	}, nil
}
