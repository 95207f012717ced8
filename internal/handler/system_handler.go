package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/config"
	"github.com/datacomunidad/assess-backend/internal/response"
	"github.com/datacomunidad/assess-backend/internal/service"
)

const readinessTimeout = 2 * time.Second

// SystemHandler serves liveness and readiness probes.
type SystemHandler struct {
	db             *pgxpool.Pool
	rdb            *redis.Client
	attemptService *service.AttemptService
	startTime      time.Time
	log            zerolog.Logger
}

func NewSystemHandler(db *pgxpool.Pool, rdb *redis.Client, attemptService *service.AttemptService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:             db,
		rdb:            rdb,
		attemptService: attemptService,
		startTime:      time.Now(),
		log:            log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"status": "ok",
		"uptime": formatDuration(time.Since(h.startTime)),
	})
}

// Ready godoc
// GET /ready
// Checks the dependencies a serving pod needs. Returns 503 while any
// of them is unreachable so the balancer keeps traffic away.
func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	checks := gin.H{"postgres": "ok", "redis": "ok"}
	healthy := true

	if err := h.db.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Readiness postgres ping failed")
		checks["postgres"] = "unreachable"
		healthy = false
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Readiness redis ping failed")
		checks["redis"] = "unreachable"
		healthy = false
	}

	payload := gin.H{
		"checks":        checks,
		"live_sessions": h.attemptService.SessionCount(),
		"uptime":        formatDuration(time.Since(h.startTime)),
	}

	// Queue depths ride along for quick operator inspection (pipelined LLEN).
	if healthy {
		pipe := h.rdb.Pipeline()
		answersCmd := pipe.LLen(ctx, config.WorkerKey.PersistAnswersQueue)
		scoresCmd := pipe.LLen(ctx, config.WorkerKey.ScoreEventsQueue)
		if _, err := pipe.Exec(ctx); err == nil {
			payload["queue_answers"], _ = answersCmd.Result()
			payload["queue_scores"], _ = scoresCmd.Result()
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, payload)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
