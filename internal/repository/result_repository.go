package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datacomunidad/assess-backend/internal/model"
)

// ResultRepository handles scoring outcome rows. The attempt_id unique
// constraint makes result creation idempotent: losing an insert race
// just means reading back the winner's row.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

const resultColumns = `id, attempt_id, assessment_id, user_id, score, max_score, percentage,
	passed, category_scores, difficulty_scores, question_results, percentile_rank,
	strengths, weaknesses, recommendations, badges, skill_updates, certificate_id,
	pending_review, created_at`

func scanResult(row interface{ Scan(...any) error }) (*model.AssessmentResult, error) {
	res := &model.AssessmentResult{}
	err := row.Scan(
		&res.ID, &res.AttemptID, &res.AssessmentID, &res.UserID, &res.Score, &res.MaxScore,
		&res.Percentage, &res.Passed, &res.CategoryScores, &res.DifficultyScores,
		&res.QuestionResults, &res.PercentileRank, &res.Strengths, &res.Weaknesses,
		&res.Recommendations, &res.Badges, &res.SkillUpdates, &res.CertificateID,
		&res.PendingReview, &res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Create inserts the result exactly once per attempt. When a concurrent
// scorer already inserted one, the existing row is returned instead.
func (r *ResultRepository) Create(ctx context.Context, res *model.AssessmentResult) (*model.AssessmentResult, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO results (attempt_id, assessment_id, user_id, score, max_score,
			percentage, passed, category_scores, difficulty_scores, question_results,
			percentile_rank, strengths, weaknesses, recommendations, badges,
			skill_updates, certificate_id, pending_review)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (attempt_id) DO NOTHING
		 RETURNING id, created_at`,
		res.AttemptID, res.AssessmentID, res.UserID, res.Score, res.MaxScore,
		res.Percentage, res.Passed, res.CategoryScores, res.DifficultyScores, res.QuestionResults,
		res.PercentileRank, res.Strengths, res.Weaknesses, res.Recommendations, res.Badges,
		res.SkillUpdates, res.CertificateID, res.PendingReview,
	).Scan(&res.ID, &res.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return r.GetByAttempt(ctx, res.AttemptID)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetByAttempt retrieves the result of one attempt.
func (r *ResultRepository) GetByAttempt(ctx context.Context, attemptID uuid.UUID) (*model.AssessmentResult, error) {
	return scanResult(r.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM results WHERE attempt_id = $1`, attemptID))
}

// SetCertificate links a certificate issued after the result row was
// written, e.g. through the issuance retry endpoint.
func (r *ResultRepository) SetCertificate(ctx context.Context, attemptID, certificateID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE results SET certificate_id = $1 WHERE attempt_id = $2 AND certificate_id IS NULL`,
		certificateID, attemptID)
	return err
}
