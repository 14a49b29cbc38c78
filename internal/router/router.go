package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/handler"
	"github.com/stemsi/exstem-client/internal/middleware"
	"github.com/stemsi/exstem-client/internal/response"
	"github.com/stemsi/exstem-client/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Assessment *handler.AssessmentHandler
	Sync       *handler.SyncHandler
	Events     *handler.EventsHandler
}

// SetupRouter configures the local agent's Gin route groups.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// The agent binds to loopback; the UI shell still sends an Origin
	// header, so restrict to the configured list when one is set.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth Group (Public) ────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/logout", handlers.Auth.Logout)
		auth.GET("/me", handlers.Auth.Me)
	}

	// ─── 2. Assessment Group (Active Account) ──────────────────────────
	assessmentAPI := router.Group("/api/v1/assessments")
	assessmentAPI.Use(middleware.RequireActiveAccount(authService))
	{
		assessmentAPI.POST("/:assessment_id/quiz/start", handlers.Assessment.StartQuiz)
		assessmentAPI.PUT("/:assessment_id/quiz/answers", handlers.Assessment.SaveAnswer)
		assessmentAPI.POST("/:assessment_id/quiz/submit", handlers.Assessment.SubmitQuiz)
		assessmentAPI.GET("/:assessment_id/quiz/remaining", handlers.Assessment.RemainingTime)
		assessmentAPI.POST("/:assessment_id/assignment", handlers.Assessment.SubmitAssignment)
		assessmentAPI.GET("/:assessment_id/attempt-status", handlers.Assessment.AttemptStatus)
	}

	// ─── 3. Sync Group (Active Account) ────────────────────────────────
	syncAPI := router.Group("/api/v1/sync")
	syncAPI.Use(middleware.RequireActiveAccount(authService))
	{
		syncAPI.POST("/run", handlers.Sync.TriggerRun)
		syncAPI.GET("/pending", handlers.Sync.Pending)
		syncAPI.POST("/schedule", handlers.Sync.EnableBackground)
		syncAPI.DELETE("/schedule", handlers.Sync.DisableBackground)
	}

	// Connectivity indicator works without a signed-in account so the UI
	// can render the online badge on the login screen too.
	router.GET("/api/v1/network", handlers.Sync.Network)

	// ─── 4. WebSocket Group (UI Event Stream) ──────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/events", handlers.Events.Stream)
	}

	return router
}
