package dashboard

import (
	"github.com/gin-gonic/gin"

	"github.com/aimd54/questlog/internal/auth"
)

// RegisterRoutes mounts the dashboard API on router. Routes under /api/v1
// other than /auth require a bearer access token; XP adjustments and
// reconciliation require the admin token instead.
func RegisterRoutes(router gin.IRouter, h *Handler, tokens *auth.TokenManager, adminToken string) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", h.Register)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/refresh", h.Refresh)

	secured := api.Group("")
	secured.Use(tokens.Middleware())

	secured.GET("/me", h.Me)

	secured.GET("/missions", h.ListMissions)
	secured.POST("/missions", h.CreateMission)
	secured.GET("/missions/recurring", h.ListRecurringMissions)
	secured.POST("/missions/recurring/reset", h.ResetRecurringMissions)
	secured.POST("/missions/:id/done", h.CompleteMission)

	secured.GET("/quests", h.ListQuests)
	secured.POST("/quests", h.CreateQuest)
	secured.PATCH("/quests/:id", h.UpdateQuest)
	secured.POST("/quests/:id/complete", h.CompleteQuest)

	secured.GET("/rewards", h.ListRewards)
	secured.POST("/rewards/:id/claim", h.ClaimReward)

	secured.GET("/achievements", h.ListAchievements)
	secured.GET("/xp/events", h.ListXPEvents)

	admin := api.Group("/xp", auth.AdminMiddleware(adminToken))
	admin.POST("/adjustments", h.AdjustXP)
	admin.GET("/reconcile/:id", h.ReconcileXP)
}
