package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states. Transitions are
// monotonic: submitted, expired and completed absorb all interaction.
type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptPaused     AttemptStatus = "paused"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptExpired    AttemptStatus = "expired"
	AttemptCompleted  AttemptStatus = "completed"
)

// Terminal reports whether the status accepts no further member input.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case AttemptSubmitted, AttemptExpired, AttemptCompleted:
		return true
	}
	return false
}

// SubmitTrigger records what caused a submission.
type SubmitTrigger string

const (
	TriggerUser    SubmitTrigger = "user"
	TriggerTimeout SubmitTrigger = "timeout"
)

// AnswerPayload is the member's answer content. Exactly one shape is
// populated, determined by the question type: selected_option_id for
// single choice, selected_option_ids for multiple choice and drag/drop
// arrangements, bool_value for true/false, texts for fill-in-the-blank
// ordinals, code for coding and SQL challenges, text for free responses.
type AnswerPayload struct {
	SelectedOptionID  string   `json:"selected_option_id,omitempty"`
	SelectedOptionIDs []string `json:"selected_option_ids,omitempty"`
	BoolValue         *bool    `json:"bool_value,omitempty"`
	Texts             []string `json:"texts,omitempty"`
	Code              string   `json:"code,omitempty"`
	Text              string   `json:"text,omitempty"`
}

// UserAnswer is the latest answer for one question within an attempt.
// Re-answering replaces the row; no history is kept. IsCorrect stays nil
// while a verdict is pending external review.
type UserAnswer struct {
	QuestionID   uuid.UUID     `json:"question_id"`
	Type         QuestionType  `json:"type"`
	Payload      AnswerPayload `json:"payload"`
	TimeSpent    int           `json:"time_spent"`
	IsCorrect    *bool         `json:"is_correct,omitempty"`
	PointsEarned float64       `json:"points_earned"`
	NeedsReview  bool          `json:"needs_review"`
	SubmittedAt  time.Time     `json:"submitted_at"`
}

// Attempt is one member's run through an assessment.
type Attempt struct {
	ID            uuid.UUID     `json:"id"`
	UserID        string        `json:"user_id"`
	AssessmentID  uuid.UUID     `json:"assessment_id"`
	Status        AttemptStatus `json:"status"`
	QuestionOrder []uuid.UUID   `json:"question_order"`
	CurrentIndex  int           `json:"current_index"`
	TimeRemaining int           `json:"time_remaining"`
	Deadline      *time.Time    `json:"deadline,omitempty"`
	Flagged       []int         `json:"flagged"`
	Score         *float64      `json:"score,omitempty"`
	Percentage    *float64      `json:"percentage,omitempty"`
	Passed        *bool         `json:"passed,omitempty"`
	TimeSpent     int           `json:"time_spent"`
	Badges        []string      `json:"badges,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}

// AnswerQueueItem is one answer waiting in the persist queue for the
// batch flush worker.
type AnswerQueueItem struct {
	AttemptID uuid.UUID  `json:"attempt_id"`
	Answer    UserAnswer `json:"answer"`
}

// AnswerView is an answer as echoed back during an attempt: the payload
// without any verdict fields.
type AnswerView struct {
	QuestionID  uuid.UUID     `json:"question_id"`
	Payload     AnswerPayload `json:"payload"`
	TimeSpent   int           `json:"time_spent"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// AttemptState is the full resumable view of a live attempt.
type AttemptState struct {
	Attempt   *Attempt             `json:"attempt"`
	Questions []QuestionForMember  `json:"questions"`
	Answers   map[string]AnswerView `json:"answers"`
}

// RecordAnswerRequest is the payload for answering a question.
type RecordAnswerRequest struct {
	Payload   AnswerPayload `json:"payload" binding:"required"`
	TimeSpent int           `json:"time_spent" binding:"omitempty,min=0"`
}

// AdvanceRequest moves the question pointer one step.
type AdvanceRequest struct {
	Direction int `json:"direction" binding:"required,oneof=-1 1"`
}

// FlagRequest toggles the review flag on a question.
type FlagRequest struct {
	QuestionIndex int `json:"question_index" binding:"min=0"`
}
