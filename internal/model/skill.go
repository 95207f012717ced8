package model

import "time"

// UserSkillLevel tracks a member's proficiency in one category on a
// 0-100 scale. Levels move toward recent category scores but never jump
// past them.
type UserSkillLevel struct {
	UserID         string    `json:"user_id"`
	Category       string    `json:"category"`
	Level          float64   `json:"level"`
	Attempts       int       `json:"attempts"`
	LastAssessedAt time.Time `json:"last_assessed_at"`
}
