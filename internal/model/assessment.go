package model

import (
	"time"

	"github.com/google/uuid"
)

// Difficulty enumerates assessment and question difficulty tiers.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyExpert       Difficulty = "expert"
)

// AssessmentMode distinguishes low-stakes practice from certification runs.
type AssessmentMode string

const (
	ModePractice      AssessmentMode = "practice"
	ModeCertification AssessmentMode = "certification"
)

// Assessment is a published quiz definition. The engine treats it as
// read-only catalog data; authoring happens upstream.
type Assessment struct {
	ID                 uuid.UUID      `json:"id"`
	Slug               string         `json:"slug"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Category           string         `json:"category"`
	Difficulty         Difficulty     `json:"difficulty"`
	Mode               AssessmentMode `json:"mode"`
	QuestionIDs        []uuid.UUID    `json:"question_ids"`
	QuestionCount      int            `json:"question_count"`
	TimeLimitMinutes   int            `json:"time_limit_minutes"`
	PassingScore       float64        `json:"passing_score"`
	ShuffleQuestions   bool           `json:"shuffle_questions"`
	AllowReview        bool           `json:"allow_review"`
	Adaptive           bool           `json:"adaptive"`
	RelatedSkills      []string       `json:"related_skills"`
	CertValidityMonths int            `json:"cert_validity_months"`
	PrerequisiteIDs    []uuid.UUID    `json:"prerequisite_ids"`
	Published          bool           `json:"published"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// TimeLimit returns the attempt duration as a time.Duration.
func (a *Assessment) TimeLimit() time.Duration {
	return time.Duration(a.TimeLimitMinutes) * time.Minute
}

// AssessmentSummary is the catalog list view.
type AssessmentSummary struct {
	ID               uuid.UUID      `json:"id"`
	Slug             string         `json:"slug"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Category         string         `json:"category"`
	Difficulty       Difficulty     `json:"difficulty"`
	Mode             AssessmentMode `json:"mode"`
	QuestionCount    int            `json:"question_count"`
	TimeLimitMinutes int            `json:"time_limit_minutes"`
	PassingScore     float64        `json:"passing_score"`
}

// AssessmentPayload is the Redis-cached bundle served to a member at
// attempt start: the definition plus questions with answer data stripped.
type AssessmentPayload struct {
	AssessmentID     uuid.UUID           `json:"assessment_id"`
	Title            string              `json:"title"`
	Mode             AssessmentMode      `json:"mode"`
	TimeLimitMinutes int                 `json:"time_limit_minutes"`
	AllowReview      bool                `json:"allow_review"`
	Questions        []QuestionForMember `json:"questions"`
}

// ListAssessmentsQuery holds catalog list filters.
type ListAssessmentsQuery struct {
	Category   string `form:"category" binding:"omitempty,max=64"`
	Difficulty string `form:"difficulty" binding:"omitempty,oneof=beginner intermediate advanced expert"`
	Mode       string `form:"mode" binding:"omitempty,oneof=practice certification"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PerPage    int    `form:"per_page" binding:"omitempty,min=1,max=100"`
}
