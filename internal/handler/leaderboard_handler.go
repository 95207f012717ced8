package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/middleware"
	"github.com/datacomunidad/assess-backend/internal/response"
	"github.com/datacomunidad/assess-backend/internal/service"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second // prevent a cold rebuild from blocking the stream
)

type LeaderboardHandler struct {
	assessmentService  *service.AssessmentService
	leaderboardService *service.LeaderboardService
	log                zerolog.Logger
}

func NewLeaderboardHandler(
	assessmentService *service.AssessmentService,
	leaderboardService *service.LeaderboardService,
	log zerolog.Logger,
) *LeaderboardHandler {
	return &LeaderboardHandler{
		assessmentService:  assessmentService,
		leaderboardService: leaderboardService,
		log:                log.With().Str("component", "leaderboard_handler").Logger(),
	}
}

// Get godoc
// GET /api/v1/assessments/:id/leaderboard
func (h *LeaderboardHandler) Get(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	assessment, err := h.assessmentService.GetByID(c.Request.Context(), assessmentID)
	if err != nil || !assessment.Published {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	leaderboard, err := h.leaderboardService.Get(c.Request.Context(), assessmentID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"leaderboard": leaderboard})
}

// Live godoc
// GET /api/v1/assessments/:id/leaderboard/live
// Streams standing updates over SSE. Every rebuild publishes the full
// snapshot, so clients never need to merge deltas.
func (h *LeaderboardHandler) Live(c *gin.Context) {
	// 1. Auth check
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	assessmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	assessment, err := h.assessmentService.GetByID(c.Request.Context(), assessmentID)
	if err != nil || !assessment.Published {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	reqCtx := c.Request.Context()

	// 2. SSE headers
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")

	// 3. Send the current standing before any update arrives
	h.sendSnapshot(c, reqCtx, assessmentID)

	// 4. Subscribe to rebuild notifications
	pubsub := h.leaderboardService.Subscribe(reqCtx, assessmentID)
	defer pubsub.Close()

	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Str("assessment_id", assessmentID.String()).Msg("Member attached to live leaderboard SSE")

	// Pre-allocate a reusable ping payload (never changes)
	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("assessment_id", assessmentID.String()).Msg("Member disconnected from live leaderboard SSE")
			return

		case msg := <-ch:
			// Forward the published snapshot raw, no deserialization needed
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

// sendSnapshot writes the first SSE event from the cached standing.
func (h *LeaderboardHandler) sendSnapshot(c *gin.Context, ctx context.Context, assessmentID uuid.UUID) {
	fetchCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	leaderboard, err := h.leaderboardService.Get(fetchCtx, assessmentID)
	if err != nil {
		h.log.Warn().Err(err).Str("assessment_id", assessmentID.String()).Msg("Failed to fetch leaderboard snapshot")
		return
	}

	c.SSEvent("message", leaderboard)
	c.Writer.Flush()
}
