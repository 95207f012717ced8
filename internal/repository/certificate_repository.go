package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datacomunidad/assess-backend/internal/model"
)

// CertificateRepository handles certificate rows. The attempt_id unique
// constraint enforces at-most-one certificate per attempt.
type CertificateRepository struct {
	pool *pgxpool.Pool
}

// NewCertificateRepository creates a new CertificateRepository.
func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepository {
	return &CertificateRepository{pool: pool}
}

const certificateColumns = `id, user_id, assessment_id, attempt_id, title, score, level,
	skills, verification_code, issued_at, expires_at`

func scanCertificate(row interface{ Scan(...any) error }) (*model.Certificate, error) {
	c := &model.Certificate{}
	err := row.Scan(
		&c.ID, &c.UserID, &c.AssessmentID, &c.AttemptID, &c.Title, &c.Score, &c.Level,
		&c.Skills, &c.VerificationCode, &c.IssuedAt, &c.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create mints a certificate exactly once per attempt. A concurrent or
// repeated issuance reads back the already-minted row.
func (r *CertificateRepository) Create(ctx context.Context, c *model.Certificate) (*model.Certificate, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO certificates (user_id, assessment_id, attempt_id, title, score,
			level, skills, verification_code, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (attempt_id) DO NOTHING
		 RETURNING id, issued_at`,
		c.UserID, c.AssessmentID, c.AttemptID, c.Title, c.Score,
		c.Level, c.Skills, c.VerificationCode, c.ExpiresAt,
	).Scan(&c.ID, &c.IssuedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return r.GetByAttempt(ctx, c.AttemptID)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByAttempt retrieves the certificate minted for one attempt.
func (r *CertificateRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Certificate, error) {
	return scanCertificate(r.pool.QueryRow(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE attempt_id = $1`, attemptID))
}

// GetByCode retrieves a certificate by its public verification code.
func (r *CertificateRepository) GetByCode(ctx context.Context, code string) (*model.Certificate, error) {
	return scanCertificate(r.pool.QueryRow(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE verification_code = $1`, code))
}

// ListByUser retrieves a user's certificates, newest first.
func (r *CertificateRepository) ListByUser(ctx context.Context, userID string) ([]model.Certificate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+certificateColumns+` FROM certificates
		 WHERE user_id = $1
		 ORDER BY issued_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var certs []model.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, *c)
	}
	return certs, rows.Err()
}
