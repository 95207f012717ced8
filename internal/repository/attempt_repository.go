package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/datacomunidad/assess-backend/internal/model"
)

// AttemptRepository handles attempt data access. Status updates are
// written as compare-and-set so concurrent submissions cannot race.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, user_id, assessment_id, status, question_order, current_index,
	time_remaining, deadline, flagged, score, percentage, passed, time_spent, badges,
	started_at, completed_at`

func scanAttempt(row interface{ Scan(...any) error }) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(
		&a.ID, &a.UserID, &a.AssessmentID, &a.Status, &a.QuestionOrder, &a.CurrentIndex,
		&a.TimeRemaining, &a.Deadline, &a.Flagged, &a.Score, &a.Percentage, &a.Passed,
		&a.TimeSpent, &a.Badges, &a.StartedAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Create inserts a new attempt. A partial unique index keeps at most one
// live attempt per user and assessment; on conflict no row is returned
// and the caller refetches the existing one.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (user_id, assessment_id, status, question_order,
			current_index, time_remaining, deadline, flagged)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, assessment_id) WHERE status IN ('in_progress', 'paused') DO NOTHING
		 RETURNING id, started_at`,
		a.UserID, a.AssessmentID, model.AttemptInProgress, a.QuestionOrder,
		a.CurrentIndex, a.TimeRemaining, a.Deadline, a.Flagged,
	).Scan(&a.ID, &a.StartedAt)
}

// GetByID retrieves one attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// GetActive retrieves the live attempt for a user on one assessment.
func (r *AttemptRepository) GetActive(ctx context.Context, userID string, assessmentID uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE user_id = $1 AND assessment_id = $2 AND status IN ('in_progress', 'paused')`,
		userID, assessmentID))
}

// GetActiveByUser retrieves the user's live attempt on any assessment.
func (r *AttemptRepository) GetActiveByUser(ctx context.Context, userID string) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE user_id = $1 AND status IN ('in_progress', 'paused')
		 ORDER BY started_at DESC
		 LIMIT 1`, userID))
}

// SaveProgress persists the navigation pointer, countdown and flags.
func (r *AttemptRepository) SaveProgress(ctx context.Context, id uuid.UUID, currentIndex, timeRemaining int, flagged []int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET current_index = $1, time_remaining = $2, flagged = $3, updated_at = NOW()
		 WHERE id = $4 AND status IN ('in_progress', 'paused')`,
		currentIndex, timeRemaining, flagged, id)
	return err
}

// SetPaused freezes the countdown. Only an in-progress attempt can
// pause; the return value reports whether the transition happened.
func (r *AttemptRepository) SetPaused(ctx context.Context, id uuid.UUID, timeRemaining int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, time_remaining = $2, deadline = NULL, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		model.AttemptPaused, timeRemaining, id, model.AttemptInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetResumed restarts the countdown against a fresh deadline.
func (r *AttemptRepository) SetResumed(ctx context.Context, id uuid.UUID, deadline time.Time, timeRemaining int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, deadline = $2, time_remaining = $3, updated_at = NOW()
		 WHERE id = $4 AND status = $5`,
		model.AttemptInProgress, deadline, timeRemaining, id, model.AttemptPaused)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSubmitted is the submission compare-and-set: it moves a live
// attempt to submitted or expired exactly once. A false return means
// another submission already won the race.
func (r *AttemptRepository) MarkSubmitted(ctx context.Context, id uuid.UUID, to model.AttemptStatus, timeSpent int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, time_spent = $2, deadline = NULL, time_remaining = 0, updated_at = NOW()
		 WHERE id = $3 AND status IN ('in_progress', 'paused')`,
		to, timeSpent, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Finalize records the scoring outcome and closes the attempt.
func (r *AttemptRepository) Finalize(ctx context.Context, id uuid.UUID, score, percentage float64, passed bool, badges []string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, percentage = $3, passed = $4, badges = $5,
		     completed_at = NOW(), updated_at = NOW()
		 WHERE id = $6 AND status IN ('submitted', 'expired')`,
		model.AttemptCompleted, score, percentage, passed, badges, id)
	return err
}

// ListByUser retrieves a user's attempt history, newest first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID string, page, perPage int) ([]model.Attempt, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE user_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, total, rows.Err()
}

// ListExpiredOrphans finds in-progress attempts whose deadline passed
// more than the grace period ago. These lost their live session and
// must be force-scored by the sweeper.
func (r *AttemptRepository) ListExpiredOrphans(ctx context.Context, grace time.Duration, limit int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE status = 'in_progress' AND deadline IS NOT NULL AND deadline < NOW() - $1::interval
		 ORDER BY deadline ASC
		 LIMIT $2`, grace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// ListStalledScoring finds submitted or expired attempts that have no
// result row after the grace period. Their scoring pipeline died before
// writing the result, so the sweeper must re-run it.
func (r *AttemptRepository) ListStalledScoring(ctx context.Context, grace time.Duration, limit int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE status IN ('submitted', 'expired')
		   AND updated_at < NOW() - $1::interval
		   AND NOT EXISTS (SELECT 1 FROM results r WHERE r.attempt_id = attempts.id)
		 ORDER BY updated_at ASC
		 LIMIT $2`, grace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// HasPassed reports whether the user has a completed passing attempt on
// the assessment. Used for prerequisite gating and the first-pass badge.
func (r *AttemptRepository) HasPassed(ctx context.Context, userID string, assessmentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM attempts
			WHERE user_id = $1 AND assessment_id = $2 AND status = 'completed' AND passed = TRUE
		 )`, userID, assessmentID).Scan(&exists)
	return exists, err
}

// AttemptScore pairs an attempt with its final percentage for the score
// sorted-set rebuild.
type AttemptScore struct {
	AttemptID  uuid.UUID
	UserID     string
	Percentage float64
}

// CompletedScores lists every completed attempt's percentage on one
// assessment.
func (r *AttemptRepository) CompletedScores(ctx context.Context, assessmentID uuid.UUID) ([]AttemptScore, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, percentage FROM attempts
		 WHERE assessment_id = $1 AND status = 'completed' AND percentage IS NOT NULL`,
		assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []AttemptScore
	for rows.Next() {
		var s AttemptScore
		if err := rows.Scan(&s.AttemptID, &s.UserID, &s.Percentage); err != nil {
			return nil, err
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// PercentileCounts returns how many completed attempts exist and how
// many scored strictly below the given percentage. PostgreSQL is the
// fallback when the Redis sorted set is cold.
func (r *AttemptRepository) PercentileCounts(ctx context.Context, assessmentID uuid.UUID, percentage float64) (below, total int64, err error) {
	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE percentage < $2), COUNT(*)
		 FROM attempts
		 WHERE assessment_id = $1 AND status = 'completed' AND percentage IS NOT NULL`,
		assessmentID, percentage).Scan(&below, &total)
	return below, total, err
}

// RankedUserCount returns how many distinct members hold a completed
// attempt on the assessment.
func (r *AttemptRepository) RankedUserCount(ctx context.Context, assessmentID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT user_id) FROM attempts
		 WHERE assessment_id = $1 AND status = 'completed' AND percentage IS NOT NULL`,
		assessmentID).Scan(&count)
	return count, err
}

// BestPerUser returns each user's best completed percentage on one
// assessment, ranked for the leaderboard rebuild.
func (r *AttemptRepository) BestPerUser(ctx context.Context, assessmentID uuid.UUID, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, percentage, completed_at FROM (
			SELECT user_id, percentage, completed_at,
			       ROW_NUMBER() OVER (PARTITION BY user_id ORDER BY percentage DESC, completed_at ASC) AS rn
			FROM attempts
			WHERE assessment_id = $1 AND status = 'completed' AND percentage IS NOT NULL
		 ) best
		 WHERE rn = 1
		 ORDER BY percentage DESC, completed_at ASC
		 LIMIT $2`, assessmentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	rank := 0
	for rows.Next() {
		var e model.LeaderboardEntry
		var completedAt *time.Time
		if err := rows.Scan(&e.UserID, &e.Percentage, &completedAt); err != nil {
			return nil, err
		}
		if completedAt != nil {
			e.CompletedAt = *completedAt
		}
		rank++
		e.Rank = rank
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
