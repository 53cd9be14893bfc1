package quests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aimd54/questlog/internal/apperrors"
	"github.com/aimd54/questlog/internal/calendar"
	"github.com/aimd54/questlog/internal/catalog"
	"github.com/aimd54/questlog/internal/config"
	"github.com/aimd54/questlog/internal/models"
	"github.com/aimd54/questlog/internal/repository"
	"github.com/aimd54/questlog/internal/service/achievements"
	"github.com/aimd54/questlog/internal/service/streaks"
	"github.com/aimd54/questlog/internal/service/xp"
	"github.com/aimd54/questlog/pkg/logger"
	"github.com/aimd54/questlog/test/mocks"
	"github.com/aimd54/questlog/test/testdb"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc    *Service
	store  *repository.Store
	clock  *calendar.FixedClock
	user   *models.User
	locker *mocks.MockLocker
}

func newHarness(t *testing.T, fanoutMode string) *harness {
	t.Helper()

	store := testdb.New(t)
	clock := calendar.NewFixedClock(testNow)
	cal := calendar.New(clock, nil)
	cat, err := catalog.Default()
	require.NoError(t, err)
	log := logger.Nop()
	locker := &mocks.MockLocker{}

	svc := NewService(
		store,
		xp.NewService(store, cal, 3, log),
		streaks.NewService(store, cal, 3, log),
		achievements.NewService(store, cat, cal, log),
		locker,
		cal,
		fanoutMode,
		log,
	)
	return &harness{
		svc:    svc,
		store:  store,
		clock:  clock,
		user:   testdb.CreateUser(t, store, "knight@example.com"),
		locker: locker,
	}
}

func (h *harness) create(t *testing.T, in CreateInput) *models.Quest {
	t.Helper()
	q, err := h.svc.Create(context.Background(), h.user.ID, in)
	require.NoError(t, err)
	return q
}

func (h *harness) reload(t *testing.T, id uint) *models.Quest {
	t.Helper()
	q, err := h.store.Quests.GetForUser(context.Background(), id, h.user.ID)
	require.NoError(t, err)
	return q
}

func ptr[T any](v T) *T { return &v }

func TestCreate(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)

	q := h.create(t, CreateInput{Type: models.QuestMain, Title: " Launch "})
	assert.Equal(t, "Launch", q.Title)
	assert.Equal(t, models.QuestActive, q.Status)
	require.NotNil(t, q.StartDate)
	assert.True(t, q.StartDate.Equal(testNow))
	assert.False(t, q.BossFight.IsBoss)

	deadline := testNow.Add(48 * time.Hour)
	boss := h.create(t, CreateInput{
		Type:      models.QuestSub,
		Title:     "Dragon",
		BossFight: &BossFightInput{IsBoss: ptr(true), Deadline: &deadline},
	})
	stored := h.reload(t, boss.ID)
	assert.True(t, stored.BossFight.IsBoss)
	require.NotNil(t, stored.BossFight.Deadline)
	assert.True(t, stored.BossFight.Deadline.Equal(deadline))
	assert.Nil(t, stored.BossFight.CompletedOnTime)
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)

	_, err := h.svc.Create(context.Background(), h.user.ID, CreateInput{Type: "EPIC", Title: "x"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = h.svc.Create(context.Background(), h.user.ID, CreateInput{Type: models.QuestMain})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestComplete_QuestTypeXP(t *testing.T) {
	tests := []struct {
		questType models.QuestType
		wantXP    int
	}{
		{models.QuestMain, 100},
		{models.QuestSub, 25},
	}

	for _, tt := range tests {
		t.Run(string(tt.questType), func(t *testing.T) {
			h := newHarness(t, config.FanoutTransactional)
			q := h.create(t, CreateInput{Type: tt.questType, Title: "Quest"})

			res, err := h.svc.Complete(context.Background(), q.ID, h.user.ID)
			require.NoError(t, err)
			assert.True(t, res.Completed)
			assert.Equal(t, tt.wantXP, res.XPGranted)
			assert.Equal(t, tt.wantXP, res.TotalXP)
			assert.Equal(t, 1, res.StreakCount)
			assert.Equal(t, models.QuestCompleted, res.Quest.Status)

			stored := h.reload(t, q.ID)
			assert.Equal(t, models.QuestCompleted, stored.Status)
			require.NotNil(t, stored.CompletedAt)
			assert.True(t, stored.CompletedAt.Equal(testNow))

			events, _, err := h.store.XPEvents.ListByUser(context.Background(), h.user.ID, 0, 10)
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, models.XPSourceSubquest, events[0].Source)
			assert.Equal(t, q.ID, *events[0].SourceID)
		})
	}
}

func TestComplete_BossFightOnTime(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	deadline := testNow.Add(24 * time.Hour)
	q := h.create(t, CreateInput{
		Type:      models.QuestMain,
		Title:     "Boss",
		BossFight: &BossFightInput{IsBoss: ptr(true), Deadline: &deadline},
	})

	res, err := h.svc.Complete(context.Background(), q.ID, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BossFightBonusXP, res.XPGranted)
	assert.Equal(t, 50, res.TotalXP)

	stored := h.reload(t, q.ID)
	require.NotNil(t, stored.BossFight.CompletedOnTime)
	assert.True(t, *stored.BossFight.CompletedOnTime)

	events, _, err := h.store.XPEvents.ListByUser(context.Background(), h.user.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.XPSourceBossfight, events[0].Source)
}

func TestComplete_BossFightExactlyAtDeadline(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	deadline := testNow
	q := h.create(t, CreateInput{
		Type:      models.QuestSub,
		Title:     "Photo finish",
		BossFight: &BossFightInput{IsBoss: ptr(true), Deadline: &deadline},
	})

	res, err := h.svc.Complete(context.Background(), q.ID, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, res.XPGranted)
}

func TestComplete_BossFightMissed(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	deadline := testNow.Add(24 * time.Hour)
	q := h.create(t, CreateInput{
		Type:      models.QuestMain,
		Title:     "Too slow",
		BossFight: &BossFightInput{IsBoss: ptr(true), Deadline: &deadline},
	})
	h.clock.Advance(25 * time.Hour)

	res, err := h.svc.Complete(context.Background(), q.ID, h.user.ID)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Zero(t, res.XPGranted)
	assert.Zero(t, res.TotalXP)
	assert.Equal(t, 1, res.StreakCount, "completion still counts as activity")

	stored := h.reload(t, q.ID)
	require.NotNil(t, stored.BossFight.CompletedOnTime)
	assert.False(t, *stored.BossFight.CompletedOnTime)

	_, total, err := h.store.XPEvents.ListByUser(context.Background(), h.user.ID, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestComplete_BossWithoutDeadlineUsesTypeXP(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	q := h.create(t, CreateInput{
		Type:      models.QuestMain,
		Title:     "Open-ended boss",
		BossFight: &BossFightInput{IsBoss: ptr(true)},
	})

	res, err := h.svc.Complete(context.Background(), q.ID, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, res.XPGranted)
	assert.Nil(t, h.reload(t, q.ID).BossFight.CompletedOnTime)
}

func TestComplete_AlreadyCompletedIsNoop(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	q := h.create(t, CreateInput{Type: models.QuestMain, Title: "Once"})

	_, err := h.svc.Complete(context.Background(), q.ID, h.user.ID)
	require.NoError(t, err)

	res, err := h.svc.Complete(context.Background(), q.ID, h.user.ID)
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Zero(t, res.XPGranted)
	assert.Equal(t, 100, res.TotalXP)
	assert.True(t, h.locker.Balanced())
}

func TestComplete_ArchivedFails(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	q := h.create(t, CreateInput{Type: models.QuestSub, Title: "Shelved"})
	_, err := h.svc.Update(context.Background(), q.ID, h.user.ID, UpdateInput{Status: ptr(models.QuestArchived)})
	require.NoError(t, err)

	_, err = h.svc.Complete(context.Background(), q.ID, h.user.ID)
	assert.True(t, errors.Is(err, apperrors.ErrPreconditionFailed))
}

func TestComplete_NotOwned(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	other := testdb.CreateUser(t, h.store, "other@example.com")
	q := h.create(t, CreateInput{Type: models.QuestSub, Title: "Mine"})

	_, err := h.svc.Complete(context.Background(), q.ID, other.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestComplete_StreakTierFromQuest(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	ctx := context.Background()

	var unlocked []string
	for day := 0; day < 3; day++ {
		q := h.create(t, CreateInput{Type: models.QuestSub, Title: "Daily quest"})
		res, err := h.svc.Complete(ctx, q.ID, h.user.ID)
		require.NoError(t, err)
		for _, a := range res.NewAchievements {
			unlocked = append(unlocked, a.Code)
		}
		h.clock.Advance(24 * time.Hour)
	}

	assert.Equal(t, []string{"CONSISTENCY_I"}, unlocked, "quests do not award first-completion")
}

func TestComplete_TransactionalRollback(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	q := h.create(t, CreateInput{Type: models.QuestMain, Title: "Rollback"})
	require.NoError(t, h.store.DB().Migrator().DropTable(&models.Achievement{}))

	_, err := h.svc.Complete(context.Background(), q.ID, h.user.ID)
	require.Error(t, err)

	assert.Equal(t, models.QuestActive, h.reload(t, q.ID).Status)
	user, err := h.store.Users.GetByID(context.Background(), h.user.ID)
	require.NoError(t, err)
	assert.Zero(t, user.TotalXP)
}

func TestComplete_BestEffortKeepsGrant(t *testing.T) {
	h := newHarness(t, config.FanoutBestEffort)
	q := h.create(t, CreateInput{Type: models.QuestMain, Title: "Partial"})
	require.NoError(t, h.store.DB().Migrator().DropTable(&models.Achievement{}))

	res, err := h.svc.Complete(context.Background(), q.ID, h.user.ID)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, models.QuestCompleted, h.reload(t, q.ID).Status)

	user, err := h.store.Users.GetByID(context.Background(), h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, user.TotalXP)
}

func TestUpdate_PatchFields(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	q := h.create(t, CreateInput{Type: models.QuestMain, Title: "Old", Description: "keep"})
	due := testNow.Add(72 * time.Hour)

	updated, err := h.svc.Update(context.Background(), q.ID, h.user.ID, UpdateInput{
		Title:   ptr("New"),
		DueDate: &due,
	})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)
	assert.Equal(t, "keep", updated.Description)

	stored := h.reload(t, q.ID)
	assert.Equal(t, "New", stored.Title)
	require.NotNil(t, stored.DueDate)
	assert.True(t, stored.DueDate.Equal(due))

	_, err = h.svc.Update(context.Background(), q.ID, h.user.ID, UpdateInput{Title: ptr("  ")})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestUpdate_BossFightMerges(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	deadline := testNow.Add(24 * time.Hour)
	q := h.create(t, CreateInput{
		Type:      models.QuestMain,
		Title:     "Boss",
		BossFight: &BossFightInput{IsBoss: ptr(true), Deadline: &deadline},
	})

	later := testNow.Add(96 * time.Hour)
	_, err := h.svc.Update(context.Background(), q.ID, h.user.ID, UpdateInput{
		BossFight: &BossFightInput{Deadline: &later},
	})
	require.NoError(t, err)

	stored := h.reload(t, q.ID)
	assert.True(t, stored.BossFight.IsBoss, "is_boss kept when only the deadline is patched")
	assert.True(t, stored.BossFight.Deadline.Equal(later))
}

func TestUpdate_StatusRules(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	ctx := context.Background()

	q := h.create(t, CreateInput{Type: models.QuestSub, Title: "Status"})
	_, err := h.svc.Update(ctx, q.ID, h.user.ID, UpdateInput{Status: ptr(models.QuestCompleted)})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = h.svc.Update(ctx, q.ID, h.user.ID, UpdateInput{Status: ptr(models.QuestStatus("PAUSED"))})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = h.svc.Update(ctx, q.ID, h.user.ID, UpdateInput{Status: ptr(models.QuestArchived)})
	require.NoError(t, err)

	_, err = h.svc.Update(ctx, q.ID, h.user.ID, UpdateInput{Status: ptr(models.QuestActive)})
	assert.True(t, errors.Is(err, apperrors.ErrPreconditionFailed))

	done := h.create(t, CreateInput{Type: models.QuestSub, Title: "Done"})
	_, err = h.svc.Complete(ctx, done.ID, h.user.ID)
	require.NoError(t, err)

	_, err = h.svc.Update(ctx, done.ID, h.user.ID, UpdateInput{Status: ptr(models.QuestActive)})
	assert.True(t, errors.Is(err, apperrors.ErrPreconditionFailed), "no reopening for a second grant")

	_, err = h.svc.Update(ctx, done.ID, h.user.ID, UpdateInput{BossFight: &BossFightInput{IsBoss: ptr(true)}})
	assert.True(t, errors.Is(err, apperrors.ErrPreconditionFailed))

	archived, err := h.svc.Update(ctx, done.ID, h.user.ID, UpdateInput{Status: ptr(models.QuestArchived)})
	require.NoError(t, err)
	assert.Equal(t, models.QuestArchived, archived.Status)
}

func TestUpdate_LosesToConcurrentComplete(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	ctx := context.Background()
	q := h.create(t, CreateInput{Type: models.QuestMain, Title: "Race"})

	// Complete the quest between Update's read and its write.
	var (
		fired       bool
		completeErr error
	)
	err := h.store.DB().Callback().Update().Before("gorm:begin_transaction").Register("test:complete_midway", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "quests" {
			return
		}
		fired = true
		_, completeErr = h.svc.Complete(ctx, q.ID, h.user.ID)
	})
	require.NoError(t, err)

	_, err = h.svc.Update(ctx, q.ID, h.user.ID, UpdateInput{Title: ptr("Renamed")})
	require.True(t, fired)
	require.NoError(t, completeErr)
	assert.True(t, errors.Is(err, apperrors.ErrConflict), "got %v", err)

	stored := h.reload(t, q.ID)
	assert.Equal(t, models.QuestCompleted, stored.Status)
	assert.Equal(t, "Race", stored.Title)

	res, err := h.svc.Complete(ctx, q.ID, h.user.ID)
	require.NoError(t, err)
	assert.False(t, res.Completed)

	user, err := h.store.Users.GetByID(ctx, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, user.TotalXP)
}

func TestUpdate_HoldsUserLock(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	ctx := context.Background()
	q := h.create(t, CreateInput{Type: models.QuestSub, Title: "Locked"})

	_, err := h.svc.Update(ctx, q.ID, h.user.ID, UpdateInput{Description: ptr("notes")})
	require.NoError(t, err)
	assert.Contains(t, h.locker.Locked, h.user.ID)
	assert.True(t, h.locker.Balanced())

	h.locker.LockErr = apperrors.Conflict("user %d is busy", h.user.ID)
	_, err = h.svc.Update(ctx, q.ID, h.user.ID, UpdateInput{Description: ptr("other")})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, "notes", h.reload(t, q.ID).Description)
}

func TestFindAll_Filters(t *testing.T) {
	h := newHarness(t, config.FanoutTransactional)
	ctx := context.Background()

	main := h.create(t, CreateInput{Type: models.QuestMain, Title: "Main"})
	h.create(t, CreateInput{Type: models.QuestSub, Title: "Sub"})
	_, err := h.svc.Complete(ctx, main.ID, h.user.ID)
	require.NoError(t, err)

	all, err := h.svc.FindAll(ctx, h.user.ID, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	subs, err := h.svc.FindAll(ctx, h.user.ID, Filter{Type: models.QuestSub})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Sub", subs[0].Title)

	completed, err := h.svc.FindAll(ctx, h.user.ID, Filter{Status: models.QuestCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "Main", completed[0].Title)

	_, err = h.svc.FindAll(ctx, h.user.ID, Filter{Type: "SIDE"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}
