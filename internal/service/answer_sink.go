package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/datacomunidad/assess-backend/internal/config"
	"github.com/datacomunidad/assess-backend/internal/model"
)

// AnswerSink makes recorded answers durable outside the session: the
// latest-answer hash feeds rejoin state, the persist queue feeds the
// batch flush worker. Both land in one round trip.
type AnswerSink struct {
	rdb *redis.Client
}

// NewAnswerSink creates a new AnswerSink.
func NewAnswerSink(rdb *redis.Client) *AnswerSink {
	return &AnswerSink{rdb: rdb}
}

// SaveAnswer stores the answer in the attempt hash and queues it for
// the database flush.
func (s *AnswerSink) SaveAnswer(ctx context.Context, attemptID uuid.UUID, ans model.UserAnswer) error {
	ansJSON, err := json.Marshal(ans)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	itemJSON, err := json.Marshal(model.AnswerQueueItem{AttemptID: attemptID, Answer: ans})
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, config.CacheKey.AttemptAnswersKey(attemptID), ans.QuestionID.String(), ansJSON)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, itemJSON)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue answer: %w", err)
	}
	return nil
}
