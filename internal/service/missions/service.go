// Package missions implements the mission lifecycle: creation, completion with
// its progression fan-out, and the rollover of recurring missions.
package missions

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

// CreateInput holds the fields of a new mission.
type CreateInput struct {
	Title         string               `json:"title"`
	Description   string               `json:"description"`
	QuestID       *uint                `json:"quest_id"`
	ScheduledFor  *time.Time           `json:"scheduled_for"`
	XPValue       int                  `json:"xp_value"`
	IsRecurring   bool                 `json:"is_recurring"`
	RecurringType models.RecurringType `json:"recurring_type"`
}

// Filter narrows FindAll. A nil Day lists every day.
type Filter struct {
	Day    *time.Time
	Status models.MissionStatus
}

// CompletionResult describes the outcome of Complete. Completed is false when
// the mission was already done for its period and nothing was granted.
type CompletionResult struct {
	Mission         *models.Mission      `json:"mission"`
	Completed       bool                 `json:"completed"`
	XPGranted       int                  `json:"xp_granted"`
	TotalXP         int                  `json:"total_xp"`
	Level           int                  `json:"level"`
	LeveledUp       bool                 `json:"leveled_up"`
	StreakCount     int                  `json:"streak_count"`
	NewAchievements []models.Achievement `json:"new_achievements"`
}

// ResetResult describes a recurring rollover.
type ResetResult struct {
	ResetCount int              `json:"reset_count"`
	Missions   []models.Mission `json:"missions"`
}

// Service manages missions.
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

// NewService creates a new mission service.
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

// Create creates a mission for userID.
func (s *Service) Create(ctx context.Context, userID uint, in CreateInput) (*models.Mission, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperrors.Invalid("title is required")
	}
	if in.XPValue < 0 {
		return nil, apperrors.Invalid("xp_value must not be negative")
	}

	mission := &models.Mission{
		UserID:      userID,
		QuestID:     in.QuestID,
		Title:       title,
		Description: in.Description,
		Status:      models.MissionOpen,
		XPValue:     in.XPValue,
		IsRecurring: in.IsRecurring,
	}
	if mission.XPValue == 0 {
		mission.XPValue = models.DefaultMissionXP
	}
	if in.ScheduledFor != nil {
		mission.ScheduledFor = in.ScheduledFor.UTC()
	} else {
		mission.ScheduledFor = s.cal.Now()
	}

	if in.IsRecurring {
		mission.RecurringType = in.RecurringType
		if mission.RecurringType == "" {
			mission.RecurringType = models.RecurringDaily
		}
		if !mission.RecurringType.Valid() {
			return nil, apperrors.Invalid("unknown recurring_type %q", in.RecurringType)
		}
	}

	if in.QuestID != nil {
		if _, err := s.store.Quests.GetForUser(ctx, *in.QuestID, userID); err != nil {
			return nil, err
		}
	}

	if err := s.store.Missions.Create(ctx, mission); err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("user_id", userID).
		Uint("mission_id", mission.ID).
		Bool("recurring", mission.IsRecurring).
		Msg("Mission created")

	return mission, nil
}

// FindAll lists a user's missions, optionally limited to one calendar day and a status.
func (s *Service) FindAll(ctx context.Context, userID uint, filter Filter) ([]models.Mission, error) {
	var repoFilter repository.MissionFilter
	if filter.Day != nil {
		start, end := s.cal.DayRange(*filter.Day)
		repoFilter.From = &start
		repoFilter.To = &end
	}
	if filter.Status != "" {
		if filter.Status != models.MissionOpen && filter.Status != models.MissionDone {
			return nil, apperrors.Invalid("unknown mission status %q", filter.Status)
		}
		repoFilter.Status = filter.Status
	}

	list, err := s.store.Missions.List(ctx, userID, repoFilter)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Mission{}
	}
	return list, nil
}

// FindByDay lists the missions scheduled on the calendar day containing day.
func (s *Service) FindByDay(ctx context.Context, userID uint, day time.Time) ([]models.Mission, error) {
	return s.FindAll(ctx, userID, Filter{Day: &day})
}

// FindRecurring lists a user's recurring missions.
func (s *Service) FindRecurring(ctx context.Context, userID uint) ([]models.Mission, error) {
	list, err := s.store.Missions.ListRecurring(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.Mission{}
	}
	return list, nil
}

// ResetRecurring reopens recurring missions whose period has rolled over.
// DAILY missions reopen once their last completion is before today, WEEKLY
// ones once it is before the current ISO week. CUSTOM missions are left alone.
func (s *Service) ResetRecurring(ctx context.Context, userID uint) (*ResetResult, error) {
	unlock, err := s.locker.LockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	missions, err := s.store.Missions.ListRecurring(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.cal.Now()
	var ids []uint
	perType := make(map[models.RecurringType]int)
	for i := range missions {
		m := &missions[i]
		if !m.IsDone() || !s.periodRolledOver(m, now) {
			continue
		}
		ids = append(ids, m.ID)
		perType[m.RecurringType]++
		m.Status = models.MissionOpen
	}

	if err := s.store.Missions.Reopen(ctx, userID, ids); err != nil {
		return nil, err
	}

	for t, n := range perType {
		prommetrics.RecordRecurringReset(string(t), n)
	}
	if len(ids) > 0 {
		s.log.Info().
			Uint("user_id", userID).
			Int("reset_count", len(ids)).
			Msg("Recurring missions reset")
	}

	if missions == nil {
		missions = []models.Mission{}
	}
	return &ResetResult{ResetCount: len(ids), Missions: missions}, nil
}

func (s *Service) periodRolledOver(m *models.Mission, now time.Time) bool {
	if m.LastCompletedAt == nil {
		return false
	}
	last := *m.LastCompletedAt

	switch m.RecurringType {
	case models.RecurringDaily:
		return s.cal.StartOfDay(last).Before(s.cal.StartOfDay(now))
	case models.RecurringWeekly:
		return s.cal.StartOfWeek(last).Before(s.cal.StartOfWeek(now))
	default:
		return false
	}
}

// periodStart is the start of the completion period containing now: the ISO
// week for WEEKLY missions, the calendar day otherwise.
func (s *Service) periodStart(m *models.Mission, now time.Time) time.Time {
	if m.RecurringType == models.RecurringWeekly {
		return s.cal.StartOfWeek(now)
	}
	return s.cal.StartOfDay(now)
}

// alreadyDone reports whether completing m now would be a repeat.
func (s *Service) alreadyDone(m *models.Mission, now time.Time) bool {
	if !m.IsRecurring {
		return m.IsDone()
	}
	return m.LastCompletedAt != nil && !m.LastCompletedAt.Before(s.periodStart(m, now))
}

// Complete marks a mission done and runs the progression fan-out:
// XP grant, streak touch, first-completion and daily-volume checks, then
// streak tiers against the freshly touched streak. A mission already done for
// its period is returned unchanged with Completed false.
func (s *Service) Complete(ctx context.Context, missionID, userID uint) (*CompletionResult, error) {
	unlock, err := s.locker.LockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	mission, err := s.store.Missions.GetForUser(ctx, missionID, userID)
	if err != nil {
		return nil, err
	}

	now := s.cal.Now()
	if s.alreadyDone(mission, now) {
		return s.unchanged(ctx, mission)
	}

	var result *CompletionResult
	if s.fanoutMode == config.FanoutBestEffort {
		result, err = s.completeBestEffort(ctx, mission, now)
	} else {
		err = s.store.WithinTx(ctx, func(tx *repository.Store) error {
			var txErr error
			result, txErr = s.completeIn(ctx, tx, mission, now)
			if txErr != nil || !result.Completed {
				return txErr
			}
			return s.fanOut(ctx, tx, result)
		})
	}
	if err != nil {
		return nil, err
	}
	if !result.Completed {
		// Lost to a completion that slipped in between the read and the update.
		if mission, err = s.store.Missions.GetForUser(ctx, missionID, userID); err != nil {
			return nil, err
		}
		return s.unchanged(ctx, mission)
	}

	prommetrics.RecordMissionCompleted(result.Mission.IsRecurring)
	s.log.Info().
		Uint("user_id", userID).
		Uint("mission_id", missionID).
		Int("xp", result.XPGranted).
		Int("streak", result.StreakCount).
		Int("achievements", len(result.NewAchievements)).
		Msg("Mission completed")

	return result, nil
}

// completeIn flips the mission to DONE and grants its XP through store.
func (s *Service) completeIn(ctx context.Context, store *repository.Store, mission *models.Mission, now time.Time) (*CompletionResult, error) {
	done, err := store.Missions.MarkDone(ctx, mission, now, s.periodStart(mission, now))
	if err != nil {
		return nil, err
	}
	if !done {
		return &CompletionResult{Mission: mission}, nil
	}

	grant, err := s.xp.WithStore(store).Grant(ctx, mission.UserID, mission.XPValue, models.XPSourceMission, &mission.ID)
	if err != nil {
		return nil, err
	}

	return &CompletionResult{
		Mission:         mission,
		Completed:       true,
		XPGranted:       mission.XPValue,
		TotalXP:         grant.TotalXP,
		Level:           grant.Level,
		LeveledUp:       grant.LeveledUp(),
		NewAchievements: []models.Achievement{},
	}, nil
}

// fanOut runs the steps downstream of the XP grant, in order.
func (s *Service) fanOut(ctx context.Context, store *repository.Store, result *CompletionResult) error {
	userID := result.Mission.UserID

	touch, err := s.streaks.WithStore(store).Touch(ctx, userID)
	if err != nil {
		return err
	}
	result.StreakCount = touch.StreakCount

	evaluator := s.achievements.WithStore(store)
	checks := []func() ([]models.Achievement, error){
		func() ([]models.Achievement, error) { return evaluator.CheckFirstCompletion(ctx, userID) },
		func() ([]models.Achievement, error) { return evaluator.CheckDailyVolume(ctx, userID) },
		func() ([]models.Achievement, error) { return evaluator.CheckStreakTiers(ctx, userID, result.StreakCount) },
	}
	for _, check := range checks {
		awarded, err := check()
		if err != nil {
			return err
		}
		result.NewAchievements = append(result.NewAchievements, awarded...)
	}
	return nil
}

// completeBestEffort commits the mission and its XP first, then runs the
// remaining steps, logging failures instead of returning them.
func (s *Service) completeBestEffort(ctx context.Context, mission *models.Mission, now time.Time) (*CompletionResult, error) {
	var result *CompletionResult
	err := s.store.WithinTx(ctx, func(tx *repository.Store) error {
		var txErr error
		result, txErr = s.completeIn(ctx, tx, mission, now)
		return txErr
	})
	if err != nil || !result.Completed {
		return result, err
	}

	if err := s.fanOut(ctx, s.store, result); err != nil {
		s.log.Error().
			Err(err).
			Uint("user_id", mission.UserID).
			Uint("mission_id", mission.ID).
			Msg("Mission completed but progression follow-up failed")
	}
	return result, nil
}

func (s *Service) unchanged(ctx context.Context, mission *models.Mission) (*CompletionResult, error) {
	user, err := s.store.Users.GetByID(ctx, mission.UserID)
	if err != nil {
		return nil, err
	}
	return &CompletionResult{
		Mission:         mission,
		TotalXP:         user.TotalXP,
		Level:           user.Level,
		StreakCount:     streaks.Current(s.cal, user, s.cal.Now()),
		NewAchievements: []models.Achievement{},
	}, nil
}
