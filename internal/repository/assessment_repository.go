package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datacomunidad/assess-backend/internal/model"
)

// AssessmentRepository handles assessment catalog data access. The
// catalog is written by the seeder and read everywhere else.
type AssessmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(pool *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{pool: pool}
}

const assessmentColumns = `id, slug, title, description, category, difficulty, mode,
	question_ids, cardinality(question_ids) AS question_count, time_limit_minutes,
	passing_score, shuffle_questions, allow_review, adaptive, related_skills,
	cert_validity_months, prerequisite_ids, published, created_at, updated_at`

func scanAssessment(row interface{ Scan(...any) error }) (*model.Assessment, error) {
	a := &model.Assessment{}
	err := row.Scan(
		&a.ID, &a.Slug, &a.Title, &a.Description, &a.Category, &a.Difficulty, &a.Mode,
		&a.QuestionIDs, &a.QuestionCount, &a.TimeLimitMinutes,
		&a.PassingScore, &a.ShuffleQuestions, &a.AllowReview, &a.Adaptive, &a.RelatedSkills,
		&a.CertValidityMonths, &a.PrerequisiteIDs, &a.Published, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves one assessment.
func (r *AssessmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	return scanAssessment(r.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id))
}

// GetBySlug retrieves one assessment by its catalog slug.
func (r *AssessmentRepository) GetBySlug(ctx context.Context, slug string) (*model.Assessment, error) {
	return scanAssessment(r.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE slug = $1`, slug))
}

// ListPublished retrieves published assessments with optional filters and pagination.
func (r *AssessmentRepository) ListPublished(ctx context.Context, q model.ListAssessmentsQuery) ([]model.AssessmentSummary, int64, error) {
	baseQuery := ` FROM assessments WHERE published = TRUE`
	args := []any{}

	if q.Category != "" {
		args = append(args, q.Category)
		baseQuery += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if q.Difficulty != "" {
		args = append(args, q.Difficulty)
		baseQuery += fmt.Sprintf(" AND difficulty = $%d", len(args))
	}
	if q.Mode != "" {
		args = append(args, q.Mode)
		baseQuery += fmt.Sprintf(" AND mode = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (q.Page - 1) * q.PerPage
	query := `SELECT id, slug, title, description, category, difficulty, mode,
		cardinality(question_ids), time_limit_minutes, passing_score` + baseQuery + `
		ORDER BY category ASC, difficulty ASC, title ASC
		LIMIT $` + fmt.Sprintf("%d", len(args)+1) + ` OFFSET $` + fmt.Sprintf("%d", len(args)+2)
	args = append(args, q.PerPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []model.AssessmentSummary
	for rows.Next() {
		var s model.AssessmentSummary
		if err := rows.Scan(
			&s.ID, &s.Slug, &s.Title, &s.Description, &s.Category, &s.Difficulty, &s.Mode,
			&s.QuestionCount, &s.TimeLimitMinutes, &s.PassingScore,
		); err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// ListPublishedIDs returns every published assessment id, used by the
// cache prewarmer and the leaderboard rebuild.
func (r *AssessmentRepository) ListPublishedIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM assessments WHERE published = TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts a catalog entry. Used by the seeder only.
func (r *AssessmentRepository) Create(ctx context.Context, a *model.Assessment) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO assessments (slug, title, description, category, difficulty, mode,
			question_ids, time_limit_minutes, passing_score, shuffle_questions, allow_review,
			adaptive, related_skills, cert_validity_months, prerequisite_ids, published)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title, description = EXCLUDED.description,
			category = EXCLUDED.category, difficulty = EXCLUDED.difficulty,
			mode = EXCLUDED.mode, question_ids = EXCLUDED.question_ids,
			time_limit_minutes = EXCLUDED.time_limit_minutes,
			passing_score = EXCLUDED.passing_score,
			shuffle_questions = EXCLUDED.shuffle_questions,
			allow_review = EXCLUDED.allow_review, adaptive = EXCLUDED.adaptive,
			related_skills = EXCLUDED.related_skills,
			cert_validity_months = EXCLUDED.cert_validity_months,
			prerequisite_ids = EXCLUDED.prerequisite_ids,
			published = EXCLUDED.published, updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		a.Slug, a.Title, a.Description, a.Category, a.Difficulty, a.Mode,
		a.QuestionIDs, a.TimeLimitMinutes, a.PassingScore, a.ShuffleQuestions, a.AllowReview,
		a.Adaptive, a.RelatedSkills, a.CertValidityMonths, a.PrerequisiteIDs, a.Published,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}
