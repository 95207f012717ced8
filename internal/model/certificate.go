package model

import (
	"time"

	"github.com/google/uuid"
)

// CertificateStatus is the outcome of a public verification lookup.
type CertificateStatus string

const (
	CertStatusValid   CertificateStatus = "valid"
	CertStatusExpired CertificateStatus = "expired"
)

// Certificate attests a passed certification attempt. At most one
// exists per attempt; issuance is idempotent.
type Certificate struct {
	ID               uuid.UUID  `json:"id"`
	UserID           string     `json:"user_id"`
	AssessmentID     uuid.UUID  `json:"assessment_id"`
	AttemptID        uuid.UUID  `json:"attempt_id"`
	Title            string     `json:"title"`
	Score            float64    `json:"score"`
	Level            Difficulty `json:"level"`
	Skills           []string   `json:"skills"`
	VerificationCode string     `json:"verification_code"`
	VerificationURL  string     `json:"verification_url,omitempty"`
	IssuedAt         time.Time  `json:"issued_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the certificate has lapsed at the given time.
func (c *Certificate) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// CertificateVerification is the public view returned for a
// verification code lookup. Unknown codes return a not-found error
// instead.
type CertificateVerification struct {
	Status    CertificateStatus `json:"status"`
	Title     string            `json:"title"`
	UserID    string            `json:"user_id"`
	Level     Difficulty        `json:"level"`
	Skills    []string          `json:"skills"`
	Score     float64           `json:"score"`
	IssuedAt  time.Time         `json:"issued_at"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}
