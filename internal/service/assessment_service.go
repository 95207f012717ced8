package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/config"
	"github.com/datacomunidad/assess-backend/internal/model"
	"github.com/datacomunidad/assess-backend/internal/repository"
	"github.com/datacomunidad/assess-backend/internal/response"
)

// Domain Errors
var (
	ErrAssessmentNotPublished = errors.New("assessment is not published")
	ErrNoQuestions            = errors.New("assessment has no questions")
)

// AssessmentService serves the published catalog and keeps the Redis
// fast lane warm: the member payload and the answer-key hash per
// assessment.
type AssessmentService struct {
	assessmentRepo *repository.AssessmentRepository
	questionRepo   *repository.QuestionRepository
	rdb            *redis.Client
	log            zerolog.Logger
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(
	assessmentRepo *repository.AssessmentRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *AssessmentService {
	return &AssessmentService{
		assessmentRepo: assessmentRepo,
		questionRepo:   questionRepo,
		rdb:            rdb,
		log:            log.With().Str("component", "assessment_service").Logger(),
	}
}

// GetByID retrieves an assessment by its UUID.
func (s *AssessmentService) GetByID(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	return s.assessmentRepo.GetByID(ctx, id)
}

// GetBySlug retrieves an assessment by its catalog slug.
func (s *AssessmentService) GetBySlug(ctx context.Context, slug string) (*model.Assessment, error) {
	return s.assessmentRepo.GetBySlug(ctx, slug)
}

// List returns the published catalog, filtered and paginated.
func (s *AssessmentService) List(ctx context.Context, q model.ListAssessmentsQuery) ([]model.AssessmentSummary, *response.Pagination, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = 20
	}
	if q.PerPage > 100 {
		q.PerPage = 100
	}

	items, total, err := s.assessmentRepo.ListPublished(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	if items == nil {
		items = []model.AssessmentSummary{}
	}

	return items, response.NewPagination(q.Page, q.PerPage, int(total)), nil
}

// WarmCache loads one assessment's member payload and answer-key hash
// into Redis. Grading and attempt starts read from here.
func (s *AssessmentService) WarmCache(ctx context.Context, assessment *model.Assessment) error {
	questions, err := s.questionRepo.ListByIDs(ctx, assessment.QuestionIDs)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	payload := buildPayload(assessment, questions)
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	keyHash := make(map[string]interface{}, len(questions))
	for i := range questions {
		key := questions[i].Key()
		keyJSON, err := json.Marshal(key)
		if err != nil {
			return fmt.Errorf("marshal answer key: %w", err)
		}
		keyHash[key.QuestionID.String()] = keyJSON
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.AssessmentPayloadKey(assessment.ID), payloadJSON, 0)
	pipe.Del(ctx, config.CacheKey.AssessmentAnswerKey(assessment.ID))
	pipe.HSet(ctx, config.CacheKey.AssessmentAnswerKey(assessment.ID), keyHash)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("assessment_id", assessment.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads every published assessment into Redis on
// startup, ahead of any attempt traffic.
func (s *AssessmentService) PrewarmAllCaches(ctx context.Context) error {
	ids, err := s.assessmentRepo.ListPublishedIDs(ctx)
	if err != nil {
		return fmt.Errorf("list published assessments: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info().Msg("No published assessments to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(ids)).Msg("Prewarming published assessments...")

	warmed := 0
	for _, id := range ids {
		assessment, err := s.assessmentRepo.GetByID(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("assessment_id", id.String()).Msg("Failed to load assessment, skipping")
			continue
		}
		if err := s.WarmCache(ctx, assessment); err != nil {
			s.log.Warn().Err(err).Str("assessment_id", id.String()).Msg("Failed to warm assessment, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().Int("warmed", warmed).Int("total", len(ids)).Msg("Prewarming complete")
	return nil
}

// GetPayload returns the cached member payload. On a cache miss it
// rebuilds from PostgreSQL and heals the cache, so an evicted key never
// blocks an attempt start.
func (s *AssessmentService) GetPayload(ctx context.Context, assessmentID uuid.UUID) (*model.AssessmentPayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.AssessmentPayloadKey(assessmentID)).Bytes()
	if err == nil {
		var payload model.AssessmentPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &payload, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	assessment, err := s.assessmentRepo.GetByID(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("payload not cached and not in db: %w", err)
	}
	if !assessment.Published {
		return nil, ErrAssessmentNotPublished
	}
	questions, err := s.questionRepo.ListByIDs(ctx, assessment.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	if err := s.WarmCache(ctx, assessment); err != nil {
		s.log.Warn().Err(err).Str("assessment_id", assessmentID.String()).Msg("Cache self-heal failed")
	}
	payload := buildPayload(assessment, questions)
	return &payload, nil
}

// GetAnswerKeys returns the grading material for an assessment, Redis
// first with a PostgreSQL fallback. Scoring must never fail because a
// cache key was evicted.
func (s *AssessmentService) GetAnswerKeys(ctx context.Context, assessmentID uuid.UUID) (map[uuid.UUID]model.AnswerKey, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.AssessmentAnswerKey(assessmentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer keys: %w", err)
	}
	if len(raw) > 0 {
		keys := make(map[uuid.UUID]model.AnswerKey, len(raw))
		for idStr, keyJSON := range raw {
			id, err := uuid.Parse(idStr)
			if err != nil {
				return nil, fmt.Errorf("parse key id %q: %w", idStr, err)
			}
			var key model.AnswerKey
			if err := json.Unmarshal([]byte(keyJSON), &key); err != nil {
				return nil, fmt.Errorf("unmarshal answer key %s: %w", idStr, err)
			}
			keys[id] = key
		}
		return keys, nil
	}

	assessment, err := s.assessmentRepo.GetByID(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("answer keys not cached and not in db: %w", err)
	}
	questions, err := s.questionRepo.ListByIDs(ctx, assessment.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	if err := s.WarmCache(ctx, assessment); err != nil {
		s.log.Warn().Err(err).Str("assessment_id", assessmentID.String()).Msg("Cache self-heal failed")
	}
	keys := make(map[uuid.UUID]model.AnswerKey, len(questions))
	for i := range questions {
		key := questions[i].Key()
		keys[key.QuestionID] = key
	}
	return keys, nil
}

func buildPayload(assessment *model.Assessment, questions []model.Question) model.AssessmentPayload {
	forMember := make([]model.QuestionForMember, len(questions))
	for i := range questions {
		forMember[i] = questions[i].ForMember()
	}
	return model.AssessmentPayload{
		AssessmentID:     assessment.ID,
		Title:            assessment.Title,
		Mode:             assessment.Mode,
		TimeLimitMinutes: assessment.TimeLimitMinutes,
		AllowReview:      assessment.AllowReview,
		Questions:        forMember,
	}
}
