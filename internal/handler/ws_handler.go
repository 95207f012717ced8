package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/engine"
	"github.com/datacomunidad/assess-backend/internal/grading"
	"github.com/datacomunidad/assess-backend/internal/middleware"
	"github.com/datacomunidad/assess-backend/internal/model"
	"github.com/datacomunidad/assess-backend/internal/service"
	ws "github.com/datacomunidad/assess-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live attempt over WebSocket: answers and
// navigation inbound, countdown and grading pushes outbound.
type WSHandler struct {
	attemptService *service.AttemptService
	hub            *ws.Hub
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, hub *ws.Hub, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		hub:            hub,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:id/stream
// Upgrades to WebSocket for the live attempt: answer saves, navigation,
// review flags and submission inbound; time sync, expiry warnings and
// the graded result outbound.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID := middleware.GetUserID(c)

	attemptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	sock, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	wsLog := h.log.With().
		Str("user_id", userID).
		Str("attempt_id", attemptID.String()).
		Logger()

	conn := ws.NewConn(sock, wsLog)
	go conn.WritePump()

	// Hydrate (or rejoin) the session before streaming. This also
	// rejects attempts owned by someone else and finished attempts.
	if _, err := h.attemptService.State(c.Request.Context(), userID, attemptID); err != nil {
		conn.SendError(wsClientMessage(err, "attempt unavailable"))
		conn.Close()
		return
	}

	h.hub.Register(attemptID, conn)
	defer h.hub.Unregister(attemptID, conn)

	wsLog.Info().Msg("Member connected")

	for {
		var msg ws.ActionRequest
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAnswer:
			h.handleAnswer(conn, userID, attemptID, &msg)
		case ws.ActionNavigate:
			h.handleNavigate(conn, userID, attemptID, &msg)
		case ws.ActionFlag:
			h.handleFlag(conn, userID, attemptID, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, userID, attemptID)
		case ws.ActionPing:
			conn.Send(ws.PongEvent{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.SendError("unknown action: " + string(msg.Action))
		}
	}
}

// handleAnswer evaluates and saves one answer, echoing the save without
// any verdict.
func (h *WSHandler) handleAnswer(conn *ws.Conn, userID string, attemptID uuid.UUID, msg *ws.ActionRequest) {
	if msg.Payload == nil {
		conn.SendError("payload is required")
		return
	}

	req := model.RecordAnswerRequest{Payload: *msg.Payload, TimeSpent: msg.TimeSpent}
	ans, err := h.attemptService.RecordAnswer(context.Background(), userID, attemptID, msg.Index, req)
	if err != nil {
		conn.SendError(wsClientMessage(err, "save failed"))
		return
	}

	conn.Send(ws.SavedEvent{Event: ws.EventSaved, Index: msg.Index, NeedsReview: ans.NeedsReview})
}

// handleNavigate moves the question pointer.
func (h *WSHandler) handleNavigate(conn *ws.Conn, userID string, attemptID uuid.UUID, msg *ws.ActionRequest) {
	if msg.Direction != -1 && msg.Direction != 1 {
		conn.SendError("direction must be -1 or 1")
		return
	}

	index, err := h.attemptService.Advance(context.Background(), userID, attemptID, msg.Direction)
	if err != nil {
		conn.SendError(wsClientMessage(err, "navigation failed"))
		return
	}

	conn.Send(ws.PositionEvent{Event: ws.EventPosition, Index: index})
}

// handleFlag toggles the review flag on a question.
func (h *WSHandler) handleFlag(conn *ws.Conn, userID string, attemptID uuid.UUID, msg *ws.ActionRequest) {
	flagged, err := h.attemptService.ToggleFlag(context.Background(), userID, attemptID, msg.Index)
	if err != nil {
		conn.SendError(wsClientMessage(err, "flag failed"))
		return
	}

	conn.Send(ws.FlaggedEvent{Event: ws.EventFlagged, Index: msg.Index, Flagged: flagged})
}

// handleSubmit closes the attempt and pushes the graded result through
// the hub, so every tab streaming this attempt sees it.
func (h *WSHandler) handleSubmit(conn *ws.Conn, wsLog zerolog.Logger, userID string, attemptID uuid.UUID) {
	result, err := h.attemptService.Submit(context.Background(), userID, attemptID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Submit over stream failed")
		conn.SendError(wsClientMessage(err, "submit failed, answers are saved"))
		return
	}

	wsLog.Info().
		Float64("percentage", result.Percentage).
		Bool("passed", result.Passed).
		Msg("Attempt submitted over stream")

	h.hub.PublishGraded(attemptID, result)
}

// wsClientMessage picks the text sent to the client for an error:
// domain errors carry their own message, anything else gets the
// fallback so internals stay private.
func wsClientMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return "attempt not found"
	case errors.Is(err, service.ErrNotYourAttempt),
		errors.Is(err, engine.ErrAttemptFinished),
		errors.Is(err, engine.ErrAttemptPaused),
		errors.Is(err, engine.ErrNotPausable),
		errors.Is(err, engine.ErrNotPaused),
		errors.Is(err, engine.ErrIndexOutOfRange),
		errors.Is(err, grading.ErrPayloadMismatch),
		errors.Is(err, service.ErrScoringInProgress):
		return err.Error()
	default:
		return fallback
	}
}
