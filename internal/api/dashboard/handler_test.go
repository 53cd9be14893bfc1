//nolint:noctx // Test file uses http.NewRequest for simplicity
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/questlog/internal/apperrors"
	"github.com/aimd54/questlog/internal/auth"
	"github.com/aimd54/questlog/internal/calendar"
	"github.com/aimd54/questlog/internal/config"
	"github.com/aimd54/questlog/internal/models"
	"github.com/aimd54/questlog/internal/service/missions"
	"github.com/aimd54/questlog/internal/service/quests"
	"github.com/aimd54/questlog/internal/service/rewards"
	"github.com/aimd54/questlog/internal/service/users"
	"github.com/aimd54/questlog/internal/service/xp"
	"github.com/aimd54/questlog/pkg/logger"
)

const (
	testUserID     uint = 7
	testAdminToken      = "admin-secret"
)

// Mock User Service
type mockUserService struct {
	registerErr error
	loginErr    error
	refreshErr  error
	snapshots   map[uint]*users.Snapshot
}

func (m *mockUserService) Register(ctx context.Context, in users.RegisterInput) (*users.AuthResult, error) {
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	return &users.AuthResult{
		User:   &models.User{ID: 1, Email: in.Email, DisplayName: in.DisplayName},
		Tokens: &auth.TokenPair{AccessToken: "a", RefreshToken: "r"},
	}, nil
}

func (m *mockUserService) Login(ctx context.Context, in users.LoginInput) (*users.AuthResult, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return &users.AuthResult{
		User:   &models.User{ID: 1, Email: in.Email},
		Tokens: &auth.TokenPair{AccessToken: "a", RefreshToken: "r"},
	}, nil
}

func (m *mockUserService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return &auth.TokenPair{AccessToken: "a2", RefreshToken: "r2"}, nil
}

func (m *mockUserService) Snapshot(ctx context.Context, userID uint) (*users.Snapshot, error) {
	snap, exists := m.snapshots[userID]
	if !exists {
		return nil, apperrors.NotFound("user")
	}
	return snap, nil
}

// Mock XP Service
type mockXPService struct {
	adjustErr  error
	lastPage   int
	lastLimit  int
	adjustment *models.XPEvent
	drifted    map[uint]int
}

func (m *mockXPService) ListEvents(ctx context.Context, userID uint, page, limit int) (*xp.EventPage, error) {
	m.lastPage, m.lastLimit = page, limit
	return &xp.EventPage{Events: []models.XPEvent{{ID: 1, UserID: userID, Amount: 10, Source: models.XPSourceMission}}, Page: page, Limit: limit, Total: 1, Pages: 1}, nil
}

func (m *mockXPService) Adjust(ctx context.Context, userID uint, amount int, source models.XPSource) (*xp.GrantResult, error) {
	if m.adjustErr != nil {
		return nil, m.adjustErr
	}
	m.adjustment = &models.XPEvent{UserID: userID, Amount: amount, Source: source}
	return &xp.GrantResult{Event: m.adjustment, TotalXP: amount, Level: models.LevelForXP(amount)}, nil
}

func (m *mockXPService) Reconcile(ctx context.Context, userID uint) (*xp.Reconciliation, error) {
	if userID == 404 {
		return nil, apperrors.NotFound("user")
	}
	stored, ok := m.drifted[userID]
	return &xp.Reconciliation{UserID: userID, StoredXP: stored, Consistent: !ok}, nil
}

// Mock Mission Service
type mockMissionService struct {
	missions    map[uint]*models.Mission
	lastFilter  missions.Filter
	lastCreate  missions.CreateInput
	completeErr error
}

func newMockMissionService() *mockMissionService {
	return &mockMissionService{missions: make(map[uint]*models.Mission)}
}

func (m *mockMissionService) Create(ctx context.Context, userID uint, in missions.CreateInput) (*models.Mission, error) {
	if in.Title == "" {
		return nil, apperrors.Invalid("title is required")
	}
	m.lastCreate = in
	mission := &models.Mission{ID: uint(len(m.missions) + 1), UserID: userID, Title: in.Title, XPValue: 10, Status: models.MissionOpen}
	m.missions[mission.ID] = mission
	return mission, nil
}

func (m *mockMissionService) FindAll(ctx context.Context, userID uint, filter missions.Filter) ([]models.Mission, error) {
	m.lastFilter = filter
	if filter.Status != "" && filter.Status != models.MissionOpen && filter.Status != models.MissionDone {
		return nil, apperrors.Invalid("unknown mission status %q", filter.Status)
	}
	list := make([]models.Mission, 0, len(m.missions))
	for _, mission := range m.missions {
		list = append(list, *mission)
	}
	return list, nil
}

func (m *mockMissionService) FindRecurring(ctx context.Context, userID uint) ([]models.Mission, error) {
	return []models.Mission{}, nil
}

func (m *mockMissionService) ResetRecurring(ctx context.Context, userID uint) (*missions.ResetResult, error) {
	return &missions.ResetResult{ResetCount: 2, Missions: []models.Mission{}}, nil
}

func (m *mockMissionService) Complete(ctx context.Context, missionID, userID uint) (*missions.CompletionResult, error) {
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	mission, exists := m.missions[missionID]
	if !exists || mission.UserID != userID {
		return nil, apperrors.NotFound("mission")
	}
	mission.Status = models.MissionDone
	return &missions.CompletionResult{
		Mission:         mission,
		Completed:       true,
		XPGranted:       mission.XPValue,
		TotalXP:         mission.XPValue,
		StreakCount:     1,
		NewAchievements: []models.Achievement{{Code: "FIRST_BLOOD"}},
	}, nil
}

// Mock Quest Service
type mockQuestService struct {
	quests      map[uint]*models.Quest
	lastFilter  quests.Filter
	lastUpdate  quests.UpdateInput
	completeErr error
}

func newMockQuestService() *mockQuestService {
	return &mockQuestService{quests: make(map[uint]*models.Quest)}
}

func (m *mockQuestService) Create(ctx context.Context, userID uint, in quests.CreateInput) (*models.Quest, error) {
	if !in.Type.Valid() {
		return nil, apperrors.Invalid("bad type")
	}
	q := &models.Quest{ID: uint(len(m.quests) + 1), UserID: userID, Type: in.Type, Title: in.Title, Status: models.QuestActive}
	m.quests[q.ID] = q
	return q, nil
}

func (m *mockQuestService) Update(ctx context.Context, questID, userID uint, in quests.UpdateInput) (*models.Quest, error) {
	q, exists := m.quests[questID]
	if !exists {
		return nil, apperrors.NotFound("quest")
	}
	m.lastUpdate = in
	if in.Title != nil {
		q.Title = *in.Title
	}
	return q, nil
}

func (m *mockQuestService) FindAll(ctx context.Context, userID uint, filter quests.Filter) ([]models.Quest, error) {
	m.lastFilter = filter
	return []models.Quest{}, nil
}

func (m *mockQuestService) Complete(ctx context.Context, questID, userID uint) (*quests.CompletionResult, error) {
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	q, exists := m.quests[questID]
	if !exists {
		return nil, apperrors.NotFound("quest")
	}
	q.Status = models.QuestCompleted
	return &quests.CompletionResult{Quest: q, Completed: true, XPGranted: 100, TotalXP: 100, NewAchievements: []models.Achievement{}}, nil
}

// Mock Reward Service
type mockRewardService struct {
	claimErr error
}

func (m *mockRewardService) ListForUser(ctx context.Context, userID uint) ([]rewards.RewardView, error) {
	return []rewards.RewardView{
		{Reward: models.Reward{ID: 1, Title: "Starter Skin", XPThreshold: 100}, IsLocked: true},
	}, nil
}

func (m *mockRewardService) Claim(ctx context.Context, rewardID, userID uint) (*rewards.RewardView, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	now := time.Now().UTC()
	return &rewards.RewardView{Reward: models.Reward{ID: rewardID, ClaimedAt: &now}, IsClaimed: true}, nil
}

// Mock Achievement Service
type mockAchievementService struct {
	err error
}

func (m *mockAchievementService) ListForUser(ctx context.Context, userID uint) ([]models.Achievement, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []models.Achievement{{ID: 1, UserID: userID, Code: "FIRST_BLOOD", Title: "First Blood"}}, nil
}

type mockHealth struct {
	err error
}

func (m mockHealth) Health(ctx context.Context) error { return m.err }

// Test Setup
type testEnv struct {
	router       *gin.Engine
	handler      *Handler
	token        string
	users        *mockUserService
	xp           *mockXPService
	missions     *mockMissionService
	quests       *mockQuestService
	rewards      *mockRewardService
	achievements *mockAchievementService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		users:        &mockUserService{snapshots: map[uint]*users.Snapshot{}},
		xp:           &mockXPService{},
		missions:     newMockMissionService(),
		quests:       newMockQuestService(),
		rewards:      &mockRewardService{},
		achievements: &mockAchievementService{},
	}
	env.handler = NewHandler(Services{
		Users:        env.users,
		XP:           env.xp,
		Missions:     env.missions,
		Quests:       env.quests,
		Rewards:      env.rewards,
		Achievements: env.achievements,
	}, calendar.New(nil, nil), logger.Nop())

	tokens := auth.NewTokenManager(&config.AuthConfig{
		JWTSecret:  "handler-test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})
	pair, err := tokens.Issue(testUserID, "hero@example.com")
	require.NoError(t, err)
	env.token = pair.AccessToken

	env.router = gin.New()
	RegisterRoutes(env.router, env.handler, tokens, testAdminToken)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	}
	return w, response
}

func (e *testEnv) authed(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{"Authorization": "Bearer " + e.token})
}

// Tests

func TestSecuredRoutes_RequireToken(t *testing.T) {
	env := setupTestEnv(t)

	paths := []struct{ method, path string }{
		{"GET", "/api/v1/me"},
		{"GET", "/api/v1/missions"},
		{"POST", "/api/v1/missions/1/done"},
		{"GET", "/api/v1/quests"},
		{"GET", "/api/v1/rewards"},
		{"GET", "/api/v1/achievements"},
		{"GET", "/api/v1/xp/events"},
	}
	for _, p := range paths {
		w, _ := env.do(t, p.method, p.path, nil, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", p.method, p.path)
	}

	w, _ := env.do(t, "GET", "/api/v1/me", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegister_Success(t *testing.T) {
	env := setupTestEnv(t)

	w, response := env.do(t, "POST", "/api/v1/auth/register", users.RegisterInput{
		Email: "new@example.com", Password: "long enough", DisplayName: "New",
	}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, response, "tokens")
	user := response["user"].(map[string]interface{})
	assert.Equal(t, "new@example.com", user["email"])
	assert.NotContains(t, user, "password_hash")
}

func TestRegister_Conflict(t *testing.T) {
	env := setupTestEnv(t)
	env.users.registerErr = apperrors.Conflict("email taken@example.com is already registered")

	w, response := env.do(t, "POST", "/api/v1/auth/register", users.RegisterInput{Email: "taken@example.com"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, response["error"], "already registered")
	assert.Contains(t, response, "timestamp")
}

func TestRegister_InvalidBody(t *testing.T) {
	env := setupTestEnv(t)

	w, _ := env.do(t, "POST", "/api/v1/auth/register", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin_Unauthorized(t *testing.T) {
	env := setupTestEnv(t)
	env.users.loginErr = apperrors.Unauthorized("invalid email or password")

	w, _ := env.do(t, "POST", "/api/v1/auth/login", users.LoginInput{Email: "a@b.c", Password: "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh(t *testing.T) {
	env := setupTestEnv(t)

	w, _ := env.do(t, "POST", "/api/v1/auth/refresh", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, response := env.do(t, "POST", "/api/v1/auth/refresh", map[string]string{"refresh_token": "r"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	tokens := response["tokens"].(map[string]interface{})
	assert.Equal(t, "a2", tokens["access_token"])
}

func TestMe(t *testing.T) {
	env := setupTestEnv(t)
	env.users.snapshots[testUserID] = &users.Snapshot{
		User:          &models.User{ID: testUserID, Email: "hero@example.com", TotalXP: 130, Level: 1},
		CurrentStreak: 2,
		NextLevelXP:   400,
		XPToNextLevel: 270,
	}

	w, response := env.authed(t, "GET", "/api/v1/me", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	user := response["user"].(map[string]interface{})
	assert.Equal(t, float64(130), user["total_xp"])
	assert.Equal(t, float64(270), user["xp_to_next_level"])
	assert.Equal(t, float64(2), user["current_streak"])
	assert.Contains(t, response, "generated_at")
}

func TestMe_UserGone(t *testing.T) {
	env := setupTestEnv(t)

	w, _ := env.authed(t, "GET", "/api/v1/me", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListMissions_DayFilter(t *testing.T) {
	env := setupTestEnv(t)

	w, response := env.authed(t, "GET", "/api/v1/missions?day=2024-01-15&status=OPEN", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), response["total_missions"])
	require.NotNil(t, env.missions.lastFilter.Day)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *env.missions.lastFilter.Day)
	assert.Equal(t, models.MissionOpen, env.missions.lastFilter.Status)
	assert.Equal(t, "2024-01-15", response["day"])

	_, response = env.authed(t, "GET", "/api/v1/missions", nil)
	assert.NotContains(t, response, "day")

	w, response = env.authed(t, "GET", "/api/v1/missions?day=15-01-2024", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, response["error"], "invalid day")

	w, _ = env.authed(t, "GET", "/api/v1/missions?status=LATE", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAndCompleteMission(t *testing.T) {
	env := setupTestEnv(t)

	w, response := env.authed(t, "POST", "/api/v1/missions", map[string]interface{}{
		"title":        "Write docs",
		"is_recurring": true,
	})
	assert.Equal(t, http.StatusCreated, w.Code)
	mission := response["mission"].(map[string]interface{})
	assert.Equal(t, float64(testUserID), mission["user_id"])
	assert.True(t, env.missions.lastCreate.IsRecurring)

	w, response = env.authed(t, "POST", "/api/v1/missions/1/done", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, response["completed"])
	assert.Equal(t, float64(10), response["xp_granted"])
	assert.Len(t, response["new_achievements"], 1)
}

func TestCreateMission_Invalid(t *testing.T) {
	env := setupTestEnv(t)

	w, response := env.authed(t, "POST", "/api/v1/missions", map[string]interface{}{"title": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, response["error"], "title is required")
}

func TestCompleteMission_Errors(t *testing.T) {
	env := setupTestEnv(t)

	w, response := env.authed(t, "POST", "/api/v1/missions/abc/done", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, response["error"], "invalid mission ID")

	w, _ = env.authed(t, "POST", "/api/v1/missions/99/done", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.missions.completeErr = apperrors.Conflict("user %d is busy, retry later", testUserID)
	w, _ = env.authed(t, "POST", "/api/v1/missions/1/done", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCompleteMission_InternalErrorIsHidden(t *testing.T) {
	env := setupTestEnv(t)
	env.missions.completeErr = errors.New("failed to complete mission 1: disk on fire")

	w, response := env.authed(t, "POST", "/api/v1/missions/1/done", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to complete mission", response["error"])
}

func TestRecurringRoutes(t *testing.T) {
	env := setupTestEnv(t)

	w, response := env.authed(t, "GET", "/api/v1/missions/recurring", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), response["total_missions"])

	w, response = env.authed(t, "POST", "/api/v1/missions/recurring/reset", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), response["reset_count"])
}

func TestQuestRoutes(t *testing.T) {
	env := setupTestEnv(t)

	w, _ := env.authed(t, "POST", "/api/v1/quests", map[string]interface{}{"type": "MAIN", "title": "Launch"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w, response := env.authed(t, "PATCH", "/api/v1/quests/1", map[string]interface{}{
		"title":      "Launch v2",
		"boss_fight": map[string]interface{}{"is_boss": true},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	quest := response["quest"].(map[string]interface{})
	assert.Equal(t, "Launch v2", quest["title"])
	require.NotNil(t, env.quests.lastUpdate.BossFight)
	require.NotNil(t, env.quests.lastUpdate.BossFight.IsBoss)
	assert.Nil(t, env.quests.lastUpdate.BossFight.Deadline)

	w, response = env.authed(t, "POST", "/api/v1/quests/1/complete", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(100), response["xp_granted"])

	w, _ = env.authed(t, "GET", "/api/v1/quests?type=SUB&status=ACTIVE", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.QuestSub, env.quests.lastFilter.Type)
	assert.Equal(t, models.QuestActive, env.quests.lastFilter.Status)
}

func TestCompleteQuest_Archived(t *testing.T) {
	env := setupTestEnv(t)
	env.quests.completeErr = apperrors.Precondition("quest 1 is archived")

	w, response := env.authed(t, "POST", "/api/v1/quests/1/complete", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, response["error"], "archived")
}

func TestRewards(t *testing.T) {
	env := setupTestEnv(t)

	w, response := env.authed(t, "GET", "/api/v1/rewards", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	list := response["rewards"].([]interface{})
	require.Len(t, list, 1)
	first := list[0].(map[string]interface{})
	assert.Equal(t, "Starter Skin", first["title"])
	assert.Equal(t, true, first["is_locked"])

	w, response = env.authed(t, "POST", "/api/v1/rewards/1/claim", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	reward := response["reward"].(map[string]interface{})
	assert.Equal(t, true, reward["is_claimed"])

	env.rewards.claimErr = apperrors.Precondition("reward needs 500 xp, you have 499")
	w, _ = env.authed(t, "POST", "/api/v1/rewards/2/claim", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAchievements(t *testing.T) {
	env := setupTestEnv(t)

	w, response := env.authed(t, "GET", "/api/v1/achievements", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), response["total_achievements"])
}

func TestXPEvents_Pagination(t *testing.T) {
	env := setupTestEnv(t)

	w, response := env.authed(t, "GET", "/api/v1/xp/events?page=2&limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, env.xp.lastPage)
	assert.Equal(t, 5, env.xp.lastLimit)
	assert.Equal(t, float64(1), response["total"])

	w, _ = env.authed(t, "GET", "/api/v1/xp/events", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.xp.lastPage)
	assert.Equal(t, xp.DefaultPageSize, env.xp.lastLimit)

	w, _ = env.authed(t, "GET", "/api/v1/xp/events?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdjustXP(t *testing.T) {
	env := setupTestEnv(t)
	body := map[string]interface{}{"user_id": 3, "amount": 250, "source": "ADMIN"}

	w, _ := env.do(t, "POST", "/api/v1/xp/adjustments", body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = env.do(t, "POST", "/api/v1/xp/adjustments", body, map[string]string{"X-Admin-Token": "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, response := env.do(t, "POST", "/api/v1/xp/adjustments", body, map[string]string{"X-Admin-Token": testAdminToken})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(250), response["total_xp"])
	require.NotNil(t, env.xp.adjustment)
	assert.Equal(t, uint(3), env.xp.adjustment.UserID)

	env.xp.adjustErr = apperrors.Precondition("xp total cannot go below zero")
	w, _ = env.do(t, "POST", "/api/v1/xp/adjustments", map[string]interface{}{"user_id": 3, "amount": -900, "source": "ADJUST"},
		map[string]string{"X-Admin-Token": testAdminToken})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = env.do(t, "POST", "/api/v1/xp/adjustments", map[string]interface{}{"user_id": 3}, map[string]string{"X-Admin-Token": testAdminToken})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReconcileXP(t *testing.T) {
	env := setupTestEnv(t)
	env.xp.drifted = map[uint]int{7: 400}
	admin := map[string]string{"X-Admin-Token": testAdminToken}

	w, _ := env.do(t, "GET", "/api/v1/xp/reconcile/3", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, response := env.do(t, "GET", "/api/v1/xp/reconcile/3", nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, response["consistent"])

	w, response = env.do(t, "GET", "/api/v1/xp/reconcile/7", nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, response["consistent"])
	assert.Equal(t, float64(400), response["stored_xp"])

	w, _ = env.do(t, "GET", "/api/v1/xp/reconcile/404", nil, admin)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, "GET", "/api/v1/xp/reconcile/abc", nil, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)
	env.handler.AddHealthCheck("database", mockHealth{})

	w, response := env.do(t, "GET", "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	checks := response["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["database"])

	env.handler.AddHealthCheck("redis", mockHealth{err: errors.New("connection refused")})
	w, response = env.do(t, "GET", "/healthz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks = response["checks"].(map[string]interface{})
	assert.Equal(t, "connection refused", checks["redis"])
}
