package model

import (
	"time"

	"github.com/google/uuid"
)

// CategoryScore is a correct/total breakdown for one grouping key.
type CategoryScore struct {
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// QuestionResult is the per-question outcome inside a result. The
// Answer, CorrectAnswer and Explanation fields are populated only when
// the assessment allows reviewing answers.
type QuestionResult struct {
	QuestionID    uuid.UUID      `json:"question_id"`
	Type          QuestionType   `json:"type"`
	Category      string         `json:"category"`
	Difficulty    Difficulty     `json:"difficulty"`
	IsCorrect     *bool          `json:"is_correct,omitempty"`
	PointsEarned  float64        `json:"points_earned"`
	MaxPoints     float64        `json:"max_points"`
	NeedsReview   bool           `json:"needs_review"`
	TimeSpent     int            `json:"time_spent"`
	Answer        *AnswerPayload `json:"answer,omitempty"`
	CorrectAnswer *AnswerKey     `json:"correct_answer,omitempty"`
	Explanation   string         `json:"explanation,omitempty"`
}

// RecommendationType enumerates follow-up suggestion kinds.
type RecommendationType string

const (
	RecStudyMaterial      RecommendationType = "study_material"
	RecPracticeAssessment RecommendationType = "practice_assessment"
	RecCourse             RecommendationType = "course"
	RecMentorship         RecommendationType = "mentorship"
)

// RecommendationPriority ranks how urgent a suggestion is.
type RecommendationPriority string

const (
	PriorityHigh   RecommendationPriority = "high"
	PriorityMedium RecommendationPriority = "medium"
)

// Recommendation is a study suggestion derived from a weak category.
type Recommendation struct {
	Type     RecommendationType     `json:"type"`
	Category string                 `json:"category"`
	Reason   string                 `json:"reason"`
	Priority RecommendationPriority `json:"priority"`
}

// Badge identifiers awarded at scoring time.
const (
	BadgePerfectScore = "perfect_score"
	BadgeFirstPass    = "first_pass"
	BadgeQuickFinish  = "quick_finish"
)

// SkillLevelUpdate records how scoring moved one category level.
type SkillLevelUpdate struct {
	Category      string  `json:"category"`
	PreviousLevel float64 `json:"previous_level"`
	NewLevel      float64 `json:"new_level"`
}

// AssessmentResult is the immutable scoring outcome of an attempt.
// Exactly one exists per scored attempt.
type AssessmentResult struct {
	ID               uuid.UUID                `json:"id"`
	AttemptID        uuid.UUID                `json:"attempt_id"`
	AssessmentID     uuid.UUID                `json:"assessment_id"`
	UserID           string                   `json:"user_id"`
	Score            float64                  `json:"score"`
	MaxScore         float64                  `json:"max_score"`
	Percentage       float64                  `json:"percentage"`
	Passed           bool                     `json:"passed"`
	CategoryScores   map[string]CategoryScore `json:"category_scores"`
	DifficultyScores map[string]CategoryScore `json:"difficulty_scores"`
	QuestionResults  []QuestionResult         `json:"question_results"`
	PercentileRank   float64                  `json:"percentile_rank"`
	Strengths        []string                 `json:"strengths"`
	Weaknesses       []string                 `json:"weaknesses"`
	Recommendations  []Recommendation         `json:"recommendations"`
	Badges           []string                 `json:"badges"`
	SkillUpdates     []SkillLevelUpdate       `json:"skill_updates"`
	CertificateID    *uuid.UUID               `json:"certificate_id,omitempty"`
	PendingReview    int                      `json:"pending_review"`
	CreatedAt        time.Time                `json:"created_at"`
}
