package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datacomunidad/assess-backend/internal/model"
)

// QuestionRepository handles question catalog data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByIDs retrieves questions in the order of the given id list.
// Callers must treat a shorter result as a broken catalog reference.
func (r *QuestionRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.id, q.type, q.prompt, q.category, q.difficulty, q.points,
			q.options, q.correct_bool, q.blanks, q.explanation, q.resources,
			q.created_at, q.updated_at
		 FROM questions q
		 JOIN unnest($1::uuid[]) WITH ORDINALITY AS ord(id, pos) ON q.id = ord.id
		 ORDER BY ord.pos`, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(
			&q.ID, &q.Type, &q.Prompt, &q.Category, &q.Difficulty, &q.Points,
			&q.Options, &q.CorrectBool, &q.Blanks, &q.Explanation, &q.Resources,
			&q.CreatedAt, &q.UpdatedAt,
		); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a question. Used by the seeder only.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (id, type, prompt, category, difficulty, points,
			options, correct_bool, blanks, explanation, resources)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type, prompt = EXCLUDED.prompt,
			category = EXCLUDED.category, difficulty = EXCLUDED.difficulty,
			points = EXCLUDED.points, options = EXCLUDED.options,
			correct_bool = EXCLUDED.correct_bool, blanks = EXCLUDED.blanks,
			explanation = EXCLUDED.explanation, resources = EXCLUDED.resources,
			updated_at = NOW()
		 RETURNING created_at, updated_at`,
		q.ID, q.Type, q.Prompt, q.Category, q.Difficulty, q.Points,
		q.Options, q.CorrectBool, q.Blanks, q.Explanation, q.Resources,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
}
