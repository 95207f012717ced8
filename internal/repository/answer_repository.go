package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datacomunidad/assess-backend/internal/model"
)

// AnswerRepository handles per-question answer rows. One row exists per
// (attempt, question); re-answering overwrites it.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert writes a single answer, replacing any previous one for the
// same question.
func (r *AnswerRepository) Upsert(ctx context.Context, attemptID uuid.UUID, ans *model.UserAnswer) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_answers (attempt_id, question_id, type, payload, time_spent,
			is_correct, points_earned, needs_review, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET payload = EXCLUDED.payload, time_spent = EXCLUDED.time_spent,
		     is_correct = EXCLUDED.is_correct, points_earned = EXCLUDED.points_earned,
		     needs_review = EXCLUDED.needs_review, submitted_at = EXCLUDED.submitted_at`,
		attemptID, ans.QuestionID, ans.Type, ans.Payload, ans.TimeSpent,
		ans.IsCorrect, ans.PointsEarned, ans.NeedsReview, ans.SubmittedAt,
	)
	return err
}

// BulkUpsert writes a batch of answers in one round trip using UNNEST.
func (r *AnswerRepository) BulkUpsert(ctx context.Context, attemptIDs []uuid.UUID, answers []model.UserAnswer) error {
	n := len(answers)
	if n == 0 {
		return nil
	}

	questionIDs := make([]uuid.UUID, n)
	types := make([]string, n)
	payloads := make([]string, n)
	timeSpents := make([]int, n)
	isCorrects := make([]*bool, n)
	points := make([]float64, n)
	needsReviews := make([]bool, n)

	for i, a := range answers {
		raw, err := json.Marshal(a.Payload)
		if err != nil {
			return err
		}
		questionIDs[i] = a.QuestionID
		types[i] = string(a.Type)
		payloads[i] = string(raw)
		timeSpents[i] = a.TimeSpent
		isCorrects[i] = a.IsCorrect
		points[i] = a.PointsEarned
		needsReviews[i] = a.NeedsReview
	}

	query := `
		INSERT INTO user_answers (attempt_id, question_id, type, payload, time_spent,
			is_correct, points_earned, needs_review, submitted_at)
		SELECT u.attempt_id, u.question_id, u.type, u.payload, u.time_spent,
			u.is_correct, u.points_earned, u.needs_review, NOW()
		FROM UNNEST(
			$1::uuid[],
			$2::uuid[],
			$3::text[],
			$4::jsonb[],
			$5::int[],
			$6::bool[],
			$7::float8[],
			$8::bool[]
		) AS u (attempt_id, question_id, type, payload, time_spent, is_correct, points_earned, needs_review)
		ON CONFLICT (attempt_id, question_id) DO UPDATE
		SET payload = EXCLUDED.payload, time_spent = EXCLUDED.time_spent,
		    is_correct = EXCLUDED.is_correct, points_earned = EXCLUDED.points_earned,
		    needs_review = EXCLUDED.needs_review, submitted_at = EXCLUDED.submitted_at
	`

	_, err := r.pool.Exec(ctx, query,
		attemptIDs, questionIDs, types, payloads, timeSpents, isCorrects, points, needsReviews)
	return err
}

// ListByAttempt retrieves all answers of one attempt.
func (r *AnswerRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.UserAnswer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, type, payload, time_spent, is_correct, points_earned,
			needs_review, submitted_at
		 FROM user_answers
		 WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.UserAnswer
	for rows.Next() {
		var a model.UserAnswer
		if err := rows.Scan(
			&a.QuestionID, &a.Type, &a.Payload, &a.TimeSpent, &a.IsCorrect,
			&a.PointsEarned, &a.NeedsReview, &a.SubmittedAt,
		); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
