package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/config"
	"github.com/datacomunidad/assess-backend/internal/model"
	"github.com/datacomunidad/assess-backend/internal/repository"
	"github.com/datacomunidad/assess-backend/internal/service"
)

const (
	ScoreBatchSize    = 50
	ScoreBatchTimeout = 2 * time.Second
	ScorePollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// LeaderboardWorker consumes score events and rebuilds the affected
// leaderboard snapshots. A periodic full rebuild covers anything the
// event path missed.
type LeaderboardWorker struct {
	leaderboards *service.LeaderboardService
	assessments  *repository.AssessmentRepository
	rdb          *redis.Client
	rebuildEvery time.Duration
	log          zerolog.Logger
}

func NewLeaderboardWorker(
	leaderboards *service.LeaderboardService,
	assessments *repository.AssessmentRepository,
	rdb *redis.Client,
	rebuildEvery time.Duration,
	log zerolog.Logger,
) *LeaderboardWorker {
	return &LeaderboardWorker{
		leaderboards: leaderboards,
		assessments:  assessments,
		rdb:          rdb,
		rebuildEvery: rebuildEvery,
		log:          log.With().Str("component", "leaderboard_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *LeaderboardWorker) Start(ctx context.Context) {
	w.log.Info().Msg("LeaderboardWorker started")

	w.rebuildAll(ctx)

	ticker := time.NewTicker(w.rebuildEvery)
	defer ticker.Stop()

	batch := make([]*model.ScoreEvent, 0, ScoreBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= ScoreBatchSize || time.Since(lastFlush) >= ScoreBatchTimeout) {

			w.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flush(context.Background(), batch)
			return

		case <-ticker.C:
			w.rebuildAll(ctx)

		default:
			item, err := w.rdb.BLPop(ctx, ScorePollTimeout, config.WorkerKey.ScoreEventsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var ev model.ScoreEvent
			if err := json.Unmarshal([]byte(item[1]), &ev); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &ev)
		}
	}
}

// flush rebuilds each distinct assessment once per batch. Failures are
// not requeued; the next event or the periodic rebuild heals them.
func (w *LeaderboardWorker) flush(ctx context.Context, batch []*model.ScoreEvent) {
	if len(batch) == 0 {
		return
	}

	seen := make(map[uuid.UUID]struct{}, len(batch))
	for _, ev := range batch {
		if _, ok := seen[ev.AssessmentID]; ok {
			continue
		}
		seen[ev.AssessmentID] = struct{}{}

		if _, err := w.leaderboards.Rebuild(ctx, ev.AssessmentID); err != nil {
			w.log.Warn().Err(err).
				Str("assessment_id", ev.AssessmentID.String()).
				Msg("Leaderboard rebuild failed")
		}
	}
}

func (w *LeaderboardWorker) rebuildAll(ctx context.Context) {
	ids, err := w.assessments.ListPublishedIDs(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("Published assessment scan failed")
		return
	}

	for _, id := range ids {
		if _, err := w.leaderboards.Rebuild(ctx, id); err != nil {
			w.log.Warn().Err(err).
				Str("assessment_id", id.String()).
				Msg("Leaderboard rebuild failed, skipping")
		}
	}
	w.log.Info().Int("assessments", len(ids)).Msg("Leaderboard snapshots rebuilt")
}
