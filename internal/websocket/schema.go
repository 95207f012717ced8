package websocket

import (
	"github.com/datacomunidad/assess-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionFlag     Action = "flag"
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// ActionRequest is the single client frame shape. Index applies to
// answer and flag, Direction to navigate, Payload and TimeSpent to
// answer.
type ActionRequest struct {
	Action    Action               `json:"action"`
	Index     int                  `json:"index"`
	Direction int                  `json:"direction,omitempty"`
	Payload   *model.AnswerPayload `json:"payload,omitempty"`
	TimeSpent int                  `json:"time_spent,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSaved    Event = "saved"
	EventFlagged  Event = "flagged"
	EventPosition Event = "position"
	EventTime     Event = "time"
	EventWarning  Event = "warning"
	EventGraded   Event = "graded"
	EventExpired  Event = "expired"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// SavedEvent acknowledges a recorded answer.
type SavedEvent struct {
	Event       Event `json:"event"`
	Index       int   `json:"index"`
	NeedsReview bool  `json:"needs_review"`
}

// FlaggedEvent reports the new flag state of a question.
type FlaggedEvent struct {
	Event   Event `json:"event"`
	Index   int   `json:"index"`
	Flagged bool  `json:"flagged"`
}

// PositionEvent reports the question pointer after navigation.
type PositionEvent struct {
	Event Event `json:"event"`
	Index int   `json:"index"`
}

// TimeEvent carries countdown pushes. EventWarning reuses the shape
// for the one-shot low-time notice.
type TimeEvent struct {
	Event     Event `json:"event"`
	Remaining int   `json:"remaining"`
}

// GradedEvent delivers the scored result after submission.
type GradedEvent struct {
	Event  Event                   `json:"event"`
	Result *model.AssessmentResult `json:"result"`
}

// ExpiredEvent tells the client the clock ran out server-side.
type ExpiredEvent struct {
	Event Event `json:"event"`
}

type ErrorEvent struct {
	Event      Event  `json:"event"`
	Error      string `json:"error"`
	QuestionID string `json:"question_id,omitempty"`
}

type PongEvent struct {
	Event Event `json:"event"`
}
