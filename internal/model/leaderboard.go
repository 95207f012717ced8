package model

import (
	"time"

	"github.com/google/uuid"
)

// LeaderboardEntry is one member's best completed run on an assessment.
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	UserID      string    `json:"user_id"`
	Percentage  float64   `json:"percentage"`
	CompletedAt time.Time `json:"completed_at"`
}

// Leaderboard is the ranked standing for one assessment.
type Leaderboard struct {
	AssessmentID uuid.UUID          `json:"assessment_id"`
	Entries      []LeaderboardEntry `json:"entries"`
	Total        int                `json:"total"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ScoreEvent is queued by scoring for the leaderboard worker: one
// completed attempt's standing material.
type ScoreEvent struct {
	AssessmentID uuid.UUID `json:"assessment_id"`
	UserID       string    `json:"user_id"`
	Percentage   float64   `json:"percentage"`
	CompletedAt  time.Time `json:"completed_at"`
}
