package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/model"
)

// Hub fans engine pushes out to every stream attached to an attempt.
// It satisfies the engine's event sink, so countdown ticks, warnings,
// and grading results reach the client without polling.
type Hub struct {
	mu    sync.Mutex
	conns map[uuid.UUID]map[*Conn]struct{}
	log   zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		conns: make(map[uuid.UUID]map[*Conn]struct{}),
		log:   log.With().Str("component", "ws_hub").Logger(),
	}
}

// Register attaches a stream to an attempt. Multiple tabs may stream
// the same attempt; each gets every push.
func (h *Hub) Register(attemptID uuid.UUID, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[attemptID]
	if !ok {
		set = make(map[*Conn]struct{})
		h.conns[attemptID] = set
	}
	set[c] = struct{}{}
}

// Unregister detaches a stream and closes its send channel, which ends
// the write pump.
func (h *Hub) Unregister(attemptID uuid.UUID, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(attemptID, c)
}

func (h *Hub) dropLocked(attemptID uuid.UUID, c *Conn) {
	set, ok := h.conns[attemptID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, attemptID)
	}
	c.Close()
}

// broadcast queues v on every stream of the attempt. A stream that
// cannot keep up is dropped rather than allowed to stall the engine.
func (h *Hub) broadcast(attemptID uuid.UUID, v interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.conns[attemptID] {
		if !c.Send(v) {
			h.log.Warn().Str("attempt_id", attemptID.String()).Msg("Slow stream dropped")
			h.dropLocked(attemptID, c)
		}
	}
}

// ─── Engine event sink ──────────────────────────────────────────────

func (h *Hub) PublishTime(attemptID uuid.UUID, remaining int) {
	h.broadcast(attemptID, TimeEvent{Event: EventTime, Remaining: remaining})
}

func (h *Hub) PublishWarning(attemptID uuid.UUID, remaining int) {
	h.broadcast(attemptID, TimeEvent{Event: EventWarning, Remaining: remaining})
}

func (h *Hub) PublishExpired(attemptID uuid.UUID) {
	h.broadcast(attemptID, ExpiredEvent{Event: EventExpired})
}

func (h *Hub) PublishGraded(attemptID uuid.UUID, result *model.AssessmentResult) {
	h.broadcast(attemptID, GradedEvent{Event: EventGraded, Result: result})
}

// PublishScoringPending tells stream watchers the clock ran out but
// scoring has not landed yet; the expiry sweeper finishes the job.
func (h *Hub) PublishScoringPending(attemptID uuid.UUID) {
	h.broadcast(attemptID, ErrorEvent{
		Event: EventError,
		Error: "time expired, submission pending",
	})
}

func (h *Hub) PublishSaveFailed(attemptID uuid.UUID, questionID uuid.UUID) {
	h.broadcast(attemptID, ErrorEvent{
		Event:      EventError,
		Error:      "answer save failed",
		QuestionID: questionID.String(),
	})
}
