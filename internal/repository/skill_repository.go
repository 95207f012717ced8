package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datacomunidad/assess-backend/internal/model"
)

// SkillRepository handles per-category skill level rows.
type SkillRepository struct {
	pool *pgxpool.Pool
}

// NewSkillRepository creates a new SkillRepository.
func NewSkillRepository(pool *pgxpool.Pool) *SkillRepository {
	return &SkillRepository{pool: pool}
}

// Get retrieves one user's level in one category.
func (r *SkillRepository) Get(ctx context.Context, userID, category string) (*model.UserSkillLevel, error) {
	s := &model.UserSkillLevel{}
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, category, level, attempts, last_assessed_at
		 FROM user_skills
		 WHERE user_id = $1 AND category = $2`, userID, category,
	).Scan(&s.UserID, &s.Category, &s.Level, &s.Attempts, &s.LastAssessedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Upsert writes the blended level, bumping the attempt counter.
func (r *SkillRepository) Upsert(ctx context.Context, userID, category string, level float64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_skills (user_id, category, level, attempts, last_assessed_at)
		 VALUES ($1, $2, $3, 1, NOW())
		 ON CONFLICT (user_id, category) DO UPDATE
		 SET level = EXCLUDED.level,
		     attempts = user_skills.attempts + 1,
		     last_assessed_at = NOW()`,
		userID, category, level)
	return err
}

// ListByUser retrieves all of a user's category levels.
func (r *SkillRepository) ListByUser(ctx context.Context, userID string) ([]model.UserSkillLevel, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, category, level, attempts, last_assessed_at
		 FROM user_skills
		 WHERE user_id = $1
		 ORDER BY category ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var skills []model.UserSkillLevel
	for rows.Next() {
		var s model.UserSkillLevel
		if err := rows.Scan(&s.UserID, &s.Category, &s.Level, &s.Attempts, &s.LastAssessedAt); err != nil {
			return nil, err
		}
		skills = append(skills, s)
	}
	return skills, rows.Err()
}
