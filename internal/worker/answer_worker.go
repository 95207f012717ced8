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
)

const (
	AnswerBatchSize    = 50
	AnswerBatchTimeout = 2 * time.Second
	AnswerPollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// AnswerWorker drains the answer persistence queue into PostgreSQL.
// Live sessions only touch Redis on the hot path; this worker makes
// those writes durable.
type AnswerWorker struct {
	answers *repository.AnswerRepository
	rdb     *redis.Client
	log     zerolog.Logger
}

func NewAnswerWorker(answers *repository.AnswerRepository, rdb *redis.Client, log zerolog.Logger) *AnswerWorker {
	return &AnswerWorker{
		answers: answers,
		rdb:     rdb,
		log:     log.With().Str("component", "answer_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *AnswerWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AnswerWorker started")

	batch := make([]*model.AnswerQueueItem, 0, AnswerBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= AnswerBatchSize || time.Since(lastFlush) >= AnswerBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, AnswerPollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var q model.AnswerQueueItem
			if err := json.Unmarshal([]byte(item[1]), &q); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &q)
		}
	}
}

// ----------------------------------------------------------------
// Batch upsert wrapper
// ----------------------------------------------------------------

func (w *AnswerWorker) flushSafe(ctx context.Context, batch []*model.AnswerQueueItem) {
	if len(batch) == 0 {
		return
	}

	// A single INSERT cannot upsert the same (attempt, question) twice,
	// so keep only the newest write per question.
	deduped := dedupeNewest(batch)

	attemptIDs := make([]uuid.UUID, 0, len(deduped))
	answers := make([]model.UserAnswer, 0, len(deduped))
	for _, q := range deduped {
		attemptIDs = append(attemptIDs, q.AttemptID)
		answers = append(answers, q.Answer)
	}

	if err := w.answers.BulkUpsert(ctx, attemptIDs, answers); err != nil {
		w.log.Warn().Err(err).Msg("Bulk answer upsert failed, using fallback")

		for _, q := range deduped {
			if err := w.answers.Upsert(ctx, q.AttemptID, &q.Answer); err != nil {
				w.log.Error().Err(err).Msg("Single upsert failed, requeueing")
				raw, _ := json.Marshal(q)
				w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, raw)
			}
		}
	}
}

type answerSlot struct {
	AttemptID  uuid.UUID
	QuestionID uuid.UUID
}

func dedupeNewest(batch []*model.AnswerQueueItem) []*model.AnswerQueueItem {
	keep := make(map[answerSlot]int, len(batch))
	for i, q := range batch {
		keep[answerSlot{q.AttemptID, q.Answer.QuestionID}] = i
	}
	if len(keep) == len(batch) {
		return batch
	}

	out := make([]*model.AnswerQueueItem, 0, len(keep))
	for i, q := range batch {
		if keep[answerSlot{q.AttemptID, q.Answer.QuestionID}] == i {
			out = append(out, q)
		}
	}
	return out
}
