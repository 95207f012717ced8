package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/metrics"
	"github.com/datacomunidad/assess-backend/internal/model"
	"github.com/datacomunidad/assess-backend/internal/repository"
	"github.com/datacomunidad/assess-backend/internal/service"
)

const ExpirySweepLimit = 100

// ExpiryWorker enforces the time limit for attempts that lost their live
// session: a crashed instance, a closed laptop, a dead connection. Any
// in-progress attempt past its deadline plus grace gets expired and
// scored from the durably saved answers. It also re-runs scoring for
// attempts whose pipeline died between submission and the result write.
type ExpiryWorker struct {
	attempts    *repository.AttemptRepository
	assessments *service.AssessmentService
	scoring     *service.ScoringService
	interval    time.Duration
	grace       time.Duration
	log         zerolog.Logger
}

func NewExpiryWorker(
	attempts *repository.AttemptRepository,
	assessments *service.AssessmentService,
	scoring *service.ScoringService,
	interval time.Duration,
	grace time.Duration,
	log zerolog.Logger,
) *ExpiryWorker {
	return &ExpiryWorker{
		attempts:    attempts,
		assessments: assessments,
		scoring:     scoring,
		interval:    interval,
		grace:       grace,
		log:         log.With().Str("component", "expiry_worker").Logger(),
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	orphans, err := w.attempts.ListExpiredOrphans(ctx, w.grace, ExpirySweepLimit)
	if err != nil {
		w.log.Error().Err(err).Msg("Orphan scan failed")
	} else {
		for i := range orphans {
			w.forceScore(ctx, &orphans[i])
		}
	}

	stalled, err := w.attempts.ListStalledScoring(ctx, w.grace, ExpirySweepLimit)
	if err != nil {
		w.log.Error().Err(err).Msg("Stalled scoring scan failed")
		return
	}
	for i := range stalled {
		if _, err := w.scoring.Recover(ctx, &stalled[i]); err != nil {
			w.log.Warn().Err(err).
				Str("attempt_id", stalled[i].ID.String()).
				Msg("Stalled scoring recovery failed")
			continue
		}
		w.log.Info().
			Str("attempt_id", stalled[i].ID.String()).
			Msg("Recovered stalled scoring")
	}
}

func (w *ExpiryWorker) forceScore(ctx context.Context, attempt *model.Attempt) {
	assessment, err := w.assessments.GetByID(ctx, attempt.AssessmentID)
	if err != nil {
		w.log.Warn().Err(err).
			Str("attempt_id", attempt.ID.String()).
			Msg("Assessment lookup failed, skipping")
		return
	}

	timeSpent := assessment.TimeLimitMinutes * 60
	won, err := w.attempts.MarkSubmitted(ctx, attempt.ID, model.AttemptExpired, timeSpent)
	if err != nil {
		w.log.Warn().Err(err).
			Str("attempt_id", attempt.ID.String()).
			Msg("Expire transition failed, skipping")
		return
	}
	if !won {
		// A live session claimed the attempt between scan and update.
		return
	}

	attempt.Status = model.AttemptExpired
	attempt.TimeSpent = timeSpent
	attempt.TimeRemaining = 0
	attempt.Deadline = nil

	if _, err := w.scoring.Recover(ctx, attempt); err != nil {
		w.log.Warn().Err(err).
			Str("attempt_id", attempt.ID.String()).
			Msg("Force scoring failed, will retry next sweep")
		return
	}

	metrics.AttemptsSubmitted.WithLabelValues(string(model.TriggerTimeout)).Inc()
	w.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("user_id", attempt.UserID).
		Msg("Expired attempt force-scored")
}
