package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/config"
	"github.com/datacomunidad/assess-backend/internal/model"
	"github.com/datacomunidad/assess-backend/internal/repository"
)

// LeaderboardService serves ranked standings per assessment. Redis
// holds a prebuilt snapshot that the leaderboard worker refreshes on
// every score event; reads fall back to PostgreSQL and heal the
// snapshot when it is cold.
type LeaderboardService struct {
	attemptRepo *repository.AttemptRepository
	rdb         *redis.Client
	size        int
	log         zerolog.Logger
}

// NewLeaderboardService creates a new LeaderboardService.
func NewLeaderboardService(attemptRepo *repository.AttemptRepository, rdb *redis.Client, size int, log zerolog.Logger) *LeaderboardService {
	if size <= 0 {
		size = 20
	}
	return &LeaderboardService{
		attemptRepo: attemptRepo,
		rdb:         rdb,
		size:        size,
		log:         log.With().Str("component", "leaderboard_service").Logger(),
	}
}

// Get returns the standing for an assessment, snapshot first.
func (s *LeaderboardService) Get(ctx context.Context, assessmentID uuid.UUID) (*model.Leaderboard, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.AssessmentLeaderboardKey(assessmentID)).Bytes()
	if err == nil {
		var lb model.Leaderboard
		if err := json.Unmarshal(data, &lb); err != nil {
			return nil, fmt.Errorf("unmarshal leaderboard: %w", err)
		}
		return &lb, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("assessment_id", assessmentID.String()).Msg("Snapshot read failed, rebuilding")
	}
	return s.Rebuild(ctx, assessmentID)
}

// Rebuild recomputes the standing from PostgreSQL, stores the snapshot
// and notifies live subscribers.
func (s *LeaderboardService) Rebuild(ctx context.Context, assessmentID uuid.UUID) (*model.Leaderboard, error) {
	entries, err := s.attemptRepo.BestPerUser(ctx, assessmentID, s.size)
	if err != nil {
		return nil, fmt.Errorf("best per user: %w", err)
	}
	total, err := s.attemptRepo.RankedUserCount(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("ranked user count: %w", err)
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}

	lb := &model.Leaderboard{
		AssessmentID: assessmentID,
		Entries:      entries,
		Total:        int(total),
		UpdatedAt:    time.Now(),
	}
	data, err := json.Marshal(lb)
	if err != nil {
		return nil, fmt.Errorf("marshal leaderboard: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.AssessmentLeaderboardKey(assessmentID), data, 0)
	pipe.Publish(ctx, config.CacheKey.LeaderboardChannel(assessmentID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("assessment_id", assessmentID.String()).Msg("Snapshot store failed")
	}
	return lb, nil
}

// Subscribe opens the live update feed for an assessment's standing.
// Callers must Close the subscription.
func (s *LeaderboardService) Subscribe(ctx context.Context, assessmentID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.LeaderboardChannel(assessmentID))
}
