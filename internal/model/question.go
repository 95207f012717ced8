package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question formats.
type QuestionType string

const (
	QuestionSingleChoice      QuestionType = "single_choice"
	QuestionMultipleChoice    QuestionType = "multiple_choice"
	QuestionTrueFalse         QuestionType = "true_false"
	QuestionFillBlank         QuestionType = "fill_blank"
	QuestionCodingChallenge   QuestionType = "coding_challenge"
	QuestionPracticalScenario QuestionType = "practical_scenario"
	QuestionEssay             QuestionType = "essay"
	QuestionDragDrop          QuestionType = "drag_drop"
	QuestionCodeReview        QuestionType = "code_review"
	QuestionSQLQuery          QuestionType = "sql_query"
)

// AutoGradable reports whether the engine can produce a verdict for the
// type without an external collaborator.
func (t QuestionType) AutoGradable() bool {
	switch t {
	case QuestionSingleChoice, QuestionMultipleChoice, QuestionTrueFalse, QuestionFillBlank:
		return true
	}
	return false
}

// QuestionOption is one selectable choice. IsCorrect never leaves the
// server; members receive MemberOption.
type QuestionOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question is a catalog question with its answer key material.
type Question struct {
	ID          uuid.UUID        `json:"id"`
	Type        QuestionType     `json:"type"`
	Prompt      string           `json:"prompt"`
	Category    string           `json:"category"`
	Difficulty  Difficulty       `json:"difficulty"`
	Points      float64          `json:"points"`
	Options     []QuestionOption `json:"options,omitempty"`
	CorrectBool *bool            `json:"correct_bool,omitempty"`
	Blanks      []string         `json:"blanks,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
	Resources   []string         `json:"resources,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// MemberOption is a choice with the verdict stripped.
type MemberOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionForMember is a question as served to a member taking an
// attempt: no correct flags, no blank values, no explanation.
type QuestionForMember struct {
	ID         uuid.UUID      `json:"id"`
	Type       QuestionType   `json:"type"`
	Prompt     string         `json:"prompt"`
	Category   string         `json:"category"`
	Difficulty Difficulty     `json:"difficulty"`
	Points     float64        `json:"points"`
	Options    []MemberOption `json:"options,omitempty"`
	BlankCount int            `json:"blank_count,omitempty"`
	Resources  []string       `json:"resources,omitempty"`
}

// AnswerKey is the grading material for one question, cacheable
// separately from the full question row. Explanation rides along for
// review-enabled results.
type AnswerKey struct {
	QuestionID       uuid.UUID    `json:"question_id"`
	Type             QuestionType `json:"type"`
	Points           float64      `json:"points"`
	Category         string       `json:"category"`
	Difficulty       Difficulty   `json:"difficulty"`
	CorrectOptionIDs []string     `json:"correct_option_ids,omitempty"`
	CorrectBool      *bool        `json:"correct_bool,omitempty"`
	Blanks           []string     `json:"blanks,omitempty"`
	Explanation      string       `json:"explanation,omitempty"`
}

// ForMember strips answer data for delivery.
func (q *Question) ForMember() QuestionForMember {
	out := QuestionForMember{
		ID:         q.ID,
		Type:       q.Type,
		Prompt:     q.Prompt,
		Category:   q.Category,
		Difficulty: q.Difficulty,
		Points:     q.Points,
		BlankCount: len(q.Blanks),
		Resources:  q.Resources,
	}
	for _, opt := range q.Options {
		out.Options = append(out.Options, MemberOption{ID: opt.ID, Text: opt.Text})
	}
	return out
}

// Key extracts the grading material.
func (q *Question) Key() AnswerKey {
	key := AnswerKey{
		QuestionID:  q.ID,
		Type:        q.Type,
		Points:      q.Points,
		Category:    q.Category,
		Difficulty:  q.Difficulty,
		CorrectBool: q.CorrectBool,
		Blanks:      q.Blanks,
		Explanation: q.Explanation,
	}
	for _, opt := range q.Options {
		if opt.IsCorrect {
			key.CorrectOptionIDs = append(key.CorrectOptionIDs, opt.ID)
		}
	}
	return key
}
