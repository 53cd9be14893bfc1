// Package dashboard provides REST API handlers for the progression dashboard.
// It exposes endpoints for accounts, missions, quests, rewards, achievements and the XP ledger.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/questlog/internal/apperrors"
	"github.com/aimd54/questlog/internal/auth"
	"github.com/aimd54/questlog/internal/calendar"
	"github.com/aimd54/questlog/internal/models"
	"github.com/aimd54/questlog/internal/service/missions"
	"github.com/aimd54/questlog/internal/service/quests"
	"github.com/aimd54/questlog/internal/service/rewards"
	"github.com/aimd54/questlog/internal/service/users"
	"github.com/aimd54/questlog/internal/service/xp"
	"github.com/aimd54/questlog/pkg/logger"
)

// UserService interface for account operations.
type UserService interface {
	Register(ctx context.Context, in users.RegisterInput) (*users.AuthResult, error)
	Login(ctx context.Context, in users.LoginInput) (*users.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Snapshot(ctx context.Context, userID uint) (*users.Snapshot, error)
}

// XPService interface for ledger operations.
type XPService interface {
	ListEvents(ctx context.Context, userID uint, page, limit int) (*xp.EventPage, error)
	Adjust(ctx context.Context, userID uint, amount int, source models.XPSource) (*xp.GrantResult, error)
	Reconcile(ctx context.Context, userID uint) (*xp.Reconciliation, error)
}

// MissionService interface for mission operations.
type MissionService interface {
	Create(ctx context.Context, userID uint, in missions.CreateInput) (*models.Mission, error)
	FindAll(ctx context.Context, userID uint, filter missions.Filter) ([]models.Mission, error)
	FindRecurring(ctx context.Context, userID uint) ([]models.Mission, error)
	ResetRecurring(ctx context.Context, userID uint) (*missions.ResetResult, error)
	Complete(ctx context.Context, missionID, userID uint) (*missions.CompletionResult, error)
}

// QuestService interface for quest operations.
type QuestService interface {
	Create(ctx context.Context, userID uint, in quests.CreateInput) (*models.Quest, error)
	Update(ctx context.Context, questID, userID uint, in quests.UpdateInput) (*models.Quest, error)
	FindAll(ctx context.Context, userID uint, filter quests.Filter) ([]models.Quest, error)
	Complete(ctx context.Context, questID, userID uint) (*quests.CompletionResult, error)
}

// RewardService interface for reward operations.
type RewardService interface {
	ListForUser(ctx context.Context, userID uint) ([]rewards.RewardView, error)
	Claim(ctx context.Context, rewardID, userID uint) (*rewards.RewardView, error)
}

// AchievementService interface for achievement operations.
type AchievementService interface {
	ListForUser(ctx context.Context, userID uint) ([]models.Achievement, error)
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Services groups the handler's dependencies.
type Services struct {
	Users        UserService
	XP           XPService
	Missions     MissionService
	Quests       QuestService
	Rewards      RewardService
	Achievements AchievementService
}

// Handler handles dashboard API requests.
type Handler struct {
	users        UserService
	xp           XPService
	missions     MissionService
	quests       QuestService
	rewards      RewardService
	achievements AchievementService
	health       map[string]HealthChecker
	cal          *calendar.Calendar
	log          *logger.Logger
}

// NewHandler creates a new dashboard handler.
func NewHandler(svc Services, cal *calendar.Calendar, log *logger.Logger) *Handler {
	return &Handler{
		users:        svc.Users,
		xp:           svc.XP,
		missions:     svc.Missions,
		quests:       svc.Quests,
		rewards:      svc.Rewards,
		achievements: svc.Achievements,
		health:       make(map[string]HealthChecker),
		cal:          cal,
		log:          log,
	}
}

// AddHealthCheck registers a dependency reported by /healthz.
func (h *Handler) AddHealthCheck(name string, checker HealthChecker) {
	h.health[name] = checker
}

// Register creates an account.
// POST /api/v1/auth/register.
func (h *Handler) Register(c *gin.Context) {
	var in users.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.users.Register(c.Request.Context(), in)
	if err != nil {
		h.serviceError(c, err, "Failed to register user")
		return
	}

	c.JSON(http.StatusCreated, res)
}

// Login signs a user in.
// POST /api/v1/auth/login.
func (h *Handler) Login(c *gin.Context) {
	var in users.LoginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.users.Login(c.Request.Context(), in)
	if err != nil {
		h.serviceError(c, err, "Failed to log in")
		return
	}

	c.JSON(http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh exchanges a refresh token for a new pair.
// POST /api/v1/auth/refresh.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "refresh_token is required")
		return
	}

	tokens, err := h.users.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.serviceError(c, err, "Failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Me returns the caller's progression snapshot.
// GET /api/v1/me.
func (h *Handler) Me(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	snap, err := h.users.Snapshot(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve user")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":         snap,
		"generated_at": time.Now().UTC(),
	})
}

// ListMissions returns the caller's missions.
// GET /api/v1/missions?day=2024-01-15&status=OPEN.
func (h *Handler) ListMissions(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	filter := missions.Filter{Status: models.MissionStatus(c.Query("status"))}
	if dayStr := c.Query("day"); dayStr != "" {
		day, err := h.cal.ParseDay(dayStr)
		if err != nil {
			h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid day: %s (expected YYYY-MM-DD)", dayStr))
			return
		}
		filter.Day = &day
	}

	list, err := h.missions.FindAll(c.Request.Context(), userID, filter)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve missions")
		return
	}

	resp := gin.H{
		"missions":       list,
		"total_missions": len(list),
		"generated_at":   time.Now().UTC(),
	}
	if filter.Day != nil {
		resp["day"] = h.cal.FormatDay(*filter.Day)
	}
	c.JSON(http.StatusOK, resp)
}

// CreateMission creates a mission.
// POST /api/v1/missions.
func (h *Handler) CreateMission(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	var in missions.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	mission, err := h.missions.Create(c.Request.Context(), userID, in)
	if err != nil {
		h.serviceError(c, err, "Failed to create mission")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"mission": mission})
}

// ListRecurringMissions returns the caller's recurring missions.
// GET /api/v1/missions/recurring.
func (h *Handler) ListRecurringMissions(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	list, err := h.missions.FindRecurring(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve recurring missions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"missions":       list,
		"total_missions": len(list),
		"generated_at":   time.Now().UTC(),
	})
}

// ResetRecurringMissions reopens recurring missions for a new period.
// POST /api/v1/missions/recurring/reset.
func (h *Handler) ResetRecurringMissions(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	res, err := h.missions.ResetRecurring(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to reset recurring missions")
		return
	}

	c.JSON(http.StatusOK, res)
}

// CompleteMission marks a mission done.
// POST /api/v1/missions/:id/done.
func (h *Handler) CompleteMission(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	missionID, err := parseID(c, "mission")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.missions.Complete(c.Request.Context(), missionID, userID)
	if err != nil {
		h.serviceError(c, err, "Failed to complete mission")
		return
	}

	c.JSON(http.StatusOK, res)
}

// ListQuests returns the caller's quests.
// GET /api/v1/quests?type=MAIN&status=ACTIVE.
func (h *Handler) ListQuests(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	filter := quests.Filter{
		Type:   models.QuestType(c.Query("type")),
		Status: models.QuestStatus(c.Query("status")),
	}
	list, err := h.quests.FindAll(c.Request.Context(), userID, filter)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve quests")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quests":       list,
		"total_quests": len(list),
		"generated_at": time.Now().UTC(),
	})
}

// CreateQuest creates a quest.
// POST /api/v1/quests.
func (h *Handler) CreateQuest(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	var in quests.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	quest, err := h.quests.Create(c.Request.Context(), userID, in)
	if err != nil {
		h.serviceError(c, err, "Failed to create quest")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"quest": quest})
}

// UpdateQuest patches a quest.
// PATCH /api/v1/quests/:id.
func (h *Handler) UpdateQuest(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	questID, err := parseID(c, "quest")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var in quests.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	quest, err := h.quests.Update(c.Request.Context(), questID, userID, in)
	if err != nil {
		h.serviceError(c, err, "Failed to update quest")
		return
	}

	c.JSON(http.StatusOK, gin.H{"quest": quest})
}

// CompleteQuest completes a quest.
// POST /api/v1/quests/:id/complete.
func (h *Handler) CompleteQuest(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	questID, err := parseID(c, "quest")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.quests.Complete(c.Request.Context(), questID, userID)
	if err != nil {
		h.serviceError(c, err, "Failed to complete quest")
		return
	}

	c.JSON(http.StatusOK, res)
}

// ListRewards returns the caller's reward track.
// GET /api/v1/rewards.
func (h *Handler) ListRewards(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	list, err := h.rewards.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve rewards")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rewards":       list,
		"total_rewards": len(list),
		"generated_at":  time.Now().UTC(),
	})
}

// ClaimReward claims a reward.
// POST /api/v1/rewards/:id/claim.
func (h *Handler) ClaimReward(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	rewardID, err := parseID(c, "reward")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	reward, err := h.rewards.Claim(c.Request.Context(), rewardID, userID)
	if err != nil {
		h.serviceError(c, err, "Failed to claim reward")
		return
	}

	c.JSON(http.StatusOK, gin.H{"reward": reward})
}

// ListAchievements returns the caller's achievements, newest first.
// GET /api/v1/achievements.
func (h *Handler) ListAchievements(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	list, err := h.achievements.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve achievements")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"achievements":       list,
		"total_achievements": len(list),
		"generated_at":       time.Now().UTC(),
	})
}

// ListXPEvents returns a page of the caller's XP ledger.
// GET /api/v1/xp/events?page=1&limit=20.
func (h *Handler) ListXPEvents(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	page, err := parseIntQuery(c, "page", 1)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseIntQuery(c, "limit", xp.DefaultPageSize)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.xp.ListEvents(c.Request.Context(), userID, page, limit)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve XP events")
		return
	}

	c.JSON(http.StatusOK, res)
}

type adjustmentRequest struct {
	UserID uint            `json:"user_id" binding:"required"`
	Amount int             `json:"amount" binding:"required"`
	Source models.XPSource `json:"source" binding:"required"`
}

// AdjustXP applies an administrative credit or debit.
// POST /api/v1/xp/adjustments.
func (h *Handler) AdjustXP(c *gin.Context) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "user_id, amount and source are required")
		return
	}

	res, err := h.xp.Adjust(c.Request.Context(), req.UserID, req.Amount, req.Source)
	if err != nil {
		h.serviceError(c, err, "Failed to adjust XP")
		return
	}

	h.log.Info().
		Uint("user_id", req.UserID).
		Int("amount", req.Amount).
		Str("source", string(req.Source)).
		Msg("XP adjusted by admin")

	c.JSON(http.StatusCreated, res)
}

// ReconcileXP compares a user's stored total and level with their ledger.
// GET /api/v1/xp/reconcile/:id.
func (h *Handler) ReconcileXP(c *gin.Context) {
	userID, err := parseID(c, "user")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.xp.Reconcile(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to reconcile XP")
		return
	}

	c.JSON(http.StatusOK, report)
}

// Health reports the status of registered dependencies.
// GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(gin.H, len(h.health))
	for name, checker := range h.health {
		if err := checker.Health(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	c.JSON(status, gin.H{
		"status":    http.StatusText(status),
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}

// Helper functions

// currentUser returns the authenticated user id, answering 401 when absent.
func (h *Handler) currentUser(c *gin.Context) (uint, bool) {
	userID, ok := auth.UserID(c)
	if !ok {
		h.errorResponse(c, http.StatusUnauthorized, "Authentication required")
	}
	return userID, ok
}

// parseID extracts and validates the :id URL parameter.
func parseID(c *gin.Context, entity string) (uint, error) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s ID: %s", entity, idStr)
	}
	return uint(id), nil
}

// parseIntQuery reads a positive integer query parameter.
func parseIntQuery(c *gin.Context, name string, defaultValue int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("invalid %s parameter: %s", name, raw)
	}
	return v, nil
}

// serviceError maps a service error onto its status. Unexpected errors are
// logged and hidden behind fallback.
func (h *Handler) serviceError(c *gin.Context, err error, fallback string) {
	status := apperrors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		h.errorResponse(c, status, fallback)
		return
	}
	h.errorResponse(c, status, err.Error())
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
