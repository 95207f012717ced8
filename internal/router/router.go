package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/datacomunidad/assess-backend/internal/config"
	"github.com/datacomunidad/assess-backend/internal/handler"
	"github.com/datacomunidad/assess-backend/internal/metrics"
	"github.com/datacomunidad/assess-backend/internal/middleware"
	"github.com/datacomunidad/assess-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Assessment  *handler.AssessmentHandler
	Attempt     *handler.AttemptHandler
	Certificate *handler.CertificateHandler
	Leaderboard *handler.LeaderboardHandler
	Profile     *handler.ProfileHandler
	System      *handler.SystemHandler
	WS          *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(handlers *Handlers, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
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

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Request counters and latencies for every route.
	router.Use(metrics.MetricsMiddleware())

	// Probes and scrape target.
	router.GET("/health", handlers.System.Health)
	router.GET("/ready", handlers.System.Ready)
	router.GET("/metrics", metrics.PrometheusHandler())

	// Rate limiter for the unauthenticated surface (60 requests per
	// minute per IP) so certificate scraping stays cheap.
	publicLimiter := middleware.NewRateLimiter(60, time.Minute)

	// ─── 1. Public Group (No Auth) ─────────────────────────────────────
	publicAPI := router.Group("/api/v1/public")
	publicAPI.Use(publicLimiter.Middleware(), middleware.CacheControl(60))
	{
		publicAPI.GET("/assessments", handlers.Assessment.List)
		publicAPI.GET("/certificates/:code", handlers.Certificate.Verify)
	}

	// ─── 2. Member Group (JWT) ─────────────────────────────────────────
	memberAPI := router.Group("/api/v1")
	memberAPI.Use(middleware.RequireMember(cfg.JWTSecret))
	{
		// Catalog
		memberAPI.GET("/assessments", handlers.Assessment.List)
		memberAPI.GET("/assessments/:id", handlers.Assessment.Get)
		memberAPI.GET("/assessments/:id/leaderboard", handlers.Leaderboard.Get)
		memberAPI.GET("/assessments/:id/leaderboard/live", handlers.Leaderboard.Live)
		memberAPI.POST("/assessments/:id/attempts", handlers.Attempt.Start)

		// Attempt lifecycle
		memberAPI.GET("/attempts/active", handlers.Attempt.Active)
		memberAPI.GET("/attempts/:id/state", handlers.Attempt.State)
		memberAPI.GET("/attempts/:id/payload", handlers.Attempt.Payload)
		memberAPI.PUT("/attempts/:id/answers/:index", handlers.Attempt.RecordAnswer)
		memberAPI.POST("/attempts/:id/advance", handlers.Attempt.Advance)
		memberAPI.POST("/attempts/:id/flag", handlers.Attempt.Flag)
		memberAPI.POST("/attempts/:id/pause", handlers.Attempt.Pause)
		memberAPI.POST("/attempts/:id/resume", handlers.Attempt.Resume)
		memberAPI.POST("/attempts/:id/submit", handlers.Attempt.Submit)
		memberAPI.POST("/attempts/:id/exit", handlers.Attempt.Exit)
		memberAPI.GET("/attempts/:id/result", handlers.Attempt.Result)
		memberAPI.POST("/attempts/:id/certificate", handlers.Attempt.Certificate)

		// Member history
		memberAPI.GET("/me/attempts", handlers.Profile.Attempts)
		memberAPI.GET("/me/certificates", handlers.Profile.Certificates)
		memberAPI.GET("/me/skills", handlers.Profile.Skills)
	}

	// ─── 3. WebSocket Group (Member WS Auth) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireMemberWS(cfg.JWTSecret))
	{
		ws.GET("/attempts/:id/stream", handlers.WS.AttemptStream)
	}

	return router
}
