package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/config"
	"github.com/datacomunidad/assess-backend/internal/engine"
	"github.com/datacomunidad/assess-backend/internal/metrics"
	"github.com/datacomunidad/assess-backend/internal/model"
	"github.com/datacomunidad/assess-backend/internal/repository"
	"github.com/datacomunidad/assess-backend/internal/response"
)

// Domain Errors
var (
	ErrNotYourAttempt      = errors.New("attempt belongs to another member")
	ErrPrerequisitesNotMet = errors.New("prerequisite assessments not passed")
	ErrAttemptFinished     = engine.ErrAttemptFinished
)

// AttemptService drives the attempt lifecycle: starting and rejoining
// live sessions, proxying member actions into the engine, and reading
// finished results. Sessions live in the engine manager; everything
// here rebuilds them from storage when an instance restart lost them.
type AttemptService struct {
	attemptRepo  *repository.AttemptRepository
	questionRepo *repository.QuestionRepository
	answerRepo   *repository.AnswerRepository
	resultRepo   *repository.ResultRepository
	assessment   *AssessmentService
	certs        *CertificateService
	manager      *engine.Manager
	rdb          *redis.Client
	clk          clock.Clock
	log          zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	questionRepo *repository.QuestionRepository,
	answerRepo *repository.AnswerRepository,
	resultRepo *repository.ResultRepository,
	assessment *AssessmentService,
	certs *CertificateService,
	manager *engine.Manager,
	rdb *redis.Client,
	clk clock.Clock,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attemptRepo:  attemptRepo,
		questionRepo: questionRepo,
		answerRepo:   answerRepo,
		resultRepo:   resultRepo,
		assessment:   assessment,
		certs:        certs,
		manager:      manager,
		rdb:          rdb,
		clk:          clk,
		log:          log.With().Str("component", "attempt_service").Logger(),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins an attempt, or rejoins the live one for this member and
// assessment. The unique live-attempt constraint resolves concurrent
// starts to a single attempt row.
func (s *AttemptService) Start(ctx context.Context, userID string, assessmentID uuid.UUID) (*model.AttemptState, error) {
	assessment, err := s.assessment.GetByID(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if !assessment.Published {
		return nil, ErrAssessmentNotPublished
	}
	if len(assessment.QuestionIDs) == 0 {
		return nil, ErrNoQuestions
	}
	for _, prereqID := range assessment.PrerequisiteIDs {
		passed, err := s.attemptRepo.HasPassed(ctx, userID, prereqID)
		if err != nil {
			return nil, fmt.Errorf("check prerequisite: %w", err)
		}
		if !passed {
			return nil, ErrPrerequisitesNotMet
		}
	}

	existing, err := s.attemptRepo.GetActive(ctx, userID, assessmentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check active attempt: %w", err)
	}
	if existing != nil {
		sess, err := s.hydrate(ctx, existing, assessment)
		if err != nil {
			return nil, err
		}
		return sess.State(), nil
	}

	s.rngMu.Lock()
	order := engine.PresentationOrder(s.rng, assessment.QuestionIDs, assessment.ShuffleQuestions)
	s.rngMu.Unlock()

	now := time.Now()
	deadline := now.Add(assessment.TimeLimit())
	attempt := &model.Attempt{
		ID:            uuid.New(),
		UserID:        userID,
		AssessmentID:  assessmentID,
		Status:        model.AttemptInProgress,
		QuestionOrder: order,
		TimeRemaining: assessment.TimeLimitMinutes * 60,
		Deadline:      &deadline,
		StartedAt:     now,
	}

	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent start won the unique slot; join that attempt.
			existing, fetchErr := s.attemptRepo.GetActive(ctx, userID, assessmentID)
			if fetchErr != nil {
				return nil, fmt.Errorf("concurrent start detected, but fetch failed: %w", fetchErr)
			}
			sess, err := s.hydrate(ctx, existing, assessment)
			if err != nil {
				return nil, err
			}
			return sess.State(), nil
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	if err := s.rdb.Set(ctx, config.CacheKey.UserActiveAttemptKey(userID), attempt.ID.String(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Active attempt cache failed")
	}
	metrics.AttemptsStarted.Inc()

	sess, err := s.hydrate(ctx, attempt, assessment)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("assessment_id", assessmentID.String()).
		Str("user_id", userID).
		Msg("Attempt started")
	return sess.State(), nil
}

// State returns the resumable view of an attempt.
func (s *AttemptService) State(ctx context.Context, userID string, attemptID uuid.UUID) (*model.AttemptState, error) {
	sess, err := s.liveSession(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	return sess.State(), nil
}

// Payload serves the cached question bundle for a live attempt, so a
// reloading client can render without touching PostgreSQL.
func (s *AttemptService) Payload(ctx context.Context, userID string, attemptID uuid.UUID) (*model.AssessmentPayload, error) {
	attempt, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, ErrNotYourAttempt
	}
	if attempt.Status.Terminal() {
		return nil, engine.ErrAttemptFinished
	}
	return s.assessment.GetPayload(ctx, attempt.AssessmentID)
}

// RecordAnswer evaluates and stores an answer for the question at the
// given presentation index.
func (s *AttemptService) RecordAnswer(ctx context.Context, userID string, attemptID uuid.UUID, questionIndex int, req model.RecordAnswerRequest) (*model.UserAnswer, error) {
	sess, err := s.liveSession(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	return sess.RecordAnswer(ctx, questionIndex, req.Payload, req.TimeSpent)
}

// Advance moves the question pointer and returns the new index.
func (s *AttemptService) Advance(ctx context.Context, userID string, attemptID uuid.UUID, direction int) (int, error) {
	sess, err := s.liveSession(ctx, userID, attemptID)
	if err != nil {
		return 0, err
	}
	return sess.Advance(direction)
}

// ToggleFlag flips the review flag on a question.
func (s *AttemptService) ToggleFlag(ctx context.Context, userID string, attemptID uuid.UUID, questionIndex int) (bool, error) {
	sess, err := s.liveSession(ctx, userID, attemptID)
	if err != nil {
		return false, err
	}
	return sess.ToggleFlag(questionIndex)
}

// Pause freezes a practice attempt.
func (s *AttemptService) Pause(ctx context.Context, userID string, attemptID uuid.UUID) error {
	sess, err := s.liveSession(ctx, userID, attemptID)
	if err != nil {
		return err
	}
	return sess.Pause(ctx)
}

// Resume unfreezes a paused attempt.
func (s *AttemptService) Resume(ctx context.Context, userID string, attemptID uuid.UUID) error {
	sess, err := s.liveSession(ctx, userID, attemptID)
	if err != nil {
		return err
	}
	return sess.Resume(ctx)
}

// Submit closes the attempt and returns its result. Safe to repeat.
func (s *AttemptService) Submit(ctx context.Context, userID string, attemptID uuid.UUID) (*model.AssessmentResult, error) {
	sess, err := s.liveSession(ctx, userID, attemptID)
	if err != nil {
		if errors.Is(err, engine.ErrAttemptFinished) {
			return s.GetResult(ctx, userID, attemptID)
		}
		return nil, err
	}
	return sess.Submit(ctx, model.TriggerUser)
}

// Exit leaves the live session without submitting. The clock keeps
// draining against the stored deadline.
func (s *AttemptService) Exit(ctx context.Context, userID string, attemptID uuid.UUID) error {
	sess, ok := s.manager.Get(attemptID)
	if !ok {
		return nil
	}
	if sess.UserID() != userID {
		return ErrNotYourAttempt
	}
	sess.Exit(ctx)
	s.manager.Remove(attemptID)
	s.log.Info().Str("attempt_id", attemptID.String()).Msg("Attempt exited")
	return nil
}

// GetResult returns the stored result for a finished attempt.
func (s *AttemptService) GetResult(ctx context.Context, userID string, attemptID uuid.UUID) (*model.AssessmentResult, error) {
	result, err := s.resultRepo.GetByAttempt(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			attempt, attErr := s.attemptRepo.GetByID(ctx, attemptID)
			if attErr == nil && attempt.UserID == userID &&
				(attempt.Status == model.AttemptSubmitted || attempt.Status == model.AttemptExpired) {
				return nil, ErrScoringInProgress
			}
		}
		return nil, err
	}
	if result.UserID != userID {
		return nil, ErrNotYourAttempt
	}
	return result, nil
}

// RetryCertificate re-runs certificate issuance after a failed mint.
// Issuance is idempotent, so repeated calls return the stored
// certificate.
func (s *AttemptService) RetryCertificate(ctx context.Context, userID string, attemptID uuid.UUID) (*model.Certificate, error) {
	attempt, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, ErrNotYourAttempt
	}

	result, err := s.GetResult(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	assessment, err := s.assessment.GetByID(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}

	cert, err := s.certs.Issue(ctx, attempt, assessment, result)
	if err != nil {
		if errors.Is(err, ErrNotEligible) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrCertificateFailed, err)
	}
	if err := s.resultRepo.SetCertificate(ctx, attemptID, cert.ID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Certificate link failed")
	}
	return cert, nil
}

// ListByUser returns a member's attempt history, newest first.
func (s *AttemptService) ListByUser(ctx context.Context, userID string, page, perPage int) ([]model.Attempt, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	attempts, total, err := s.attemptRepo.ListByUser(ctx, userID, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	return attempts, response.NewPagination(page, perPage, int(total)), nil
}

// ActiveAttempt finds the member's live attempt, cache first with a
// database fallback that heals the cache.
func (s *AttemptService) ActiveAttempt(ctx context.Context, userID string) (*model.Attempt, error) {
	key := config.CacheKey.UserActiveAttemptKey(userID)

	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		if id, parseErr := uuid.Parse(val); parseErr == nil {
			attempt, getErr := s.attemptRepo.GetByID(ctx, id)
			if getErr == nil && !attempt.Status.Terminal() {
				return attempt, nil
			}
		}
		// Stale pointer; fall through and clear it below.
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Active attempt cache read failed")
	}

	attempt, err := s.attemptRepo.GetActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = s.rdb.Del(ctx, key).Err()
		}
		return nil, err
	}
	_ = s.rdb.Set(ctx, key, attempt.ID.String(), 0).Err()
	return attempt, nil
}

// SessionCount reports live sessions on this instance.
func (s *AttemptService) SessionCount() int {
	return s.manager.ActiveCount()
}

// liveSession returns the running session for an attempt, rebuilding it
// from storage after an instance restart. Terminal attempts surface
// ErrAttemptFinished.
func (s *AttemptService) liveSession(ctx context.Context, userID string, attemptID uuid.UUID) (*engine.Session, error) {
	if sess, ok := s.manager.Get(attemptID); ok {
		if sess.UserID() != userID {
			return nil, ErrNotYourAttempt
		}
		return sess, nil
	}

	attempt, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, ErrNotYourAttempt
	}
	if attempt.Status.Terminal() {
		return nil, engine.ErrAttemptFinished
	}

	assessment, err := s.assessment.GetByID(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return s.hydrate(ctx, attempt, assessment)
}

// hydrate builds a live session from stored state: questions in
// presentation order, durable answers overlaid with the autosave hash,
// and the countdown recomputed from the deadline. An attempt found past
// its deadline submits immediately.
func (s *AttemptService) hydrate(ctx context.Context, attempt *model.Attempt, assessment *model.Assessment) (*engine.Session, error) {
	if sess, ok := s.manager.Get(attempt.ID); ok {
		return sess, nil
	}

	questions, err := s.questionRepo.ListByIDs(ctx, attempt.QuestionOrder)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	answers, err := s.loadAnswers(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}

	attempt.TimeRemaining = engine.ResumeDeadline(s.clk, attempt)

	sess, err := s.manager.Start(attempt, assessment, questions, answers)
	if err != nil {
		return nil, err
	}

	if attempt.TimeRemaining == 0 && attempt.Status == model.AttemptInProgress {
		if _, err := sess.Submit(ctx, model.TriggerTimeout); err != nil && !errors.Is(err, ErrScoringInProgress) {
			s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Overdue submission on rejoin failed")
		}
	}
	return sess, nil
}

// loadAnswers merges flushed answers with the fresher autosave hash.
func (s *AttemptService) loadAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.UserAnswer, error) {
	stored, err := s.answerRepo.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	hash, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID)).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Autosave hash read failed")
		return stored, nil
	}

	merged := make(map[uuid.UUID]model.UserAnswer, len(stored)+len(hash))
	for _, ans := range stored {
		merged[ans.QuestionID] = ans
	}
	for _, raw := range hash {
		var ans model.UserAnswer
		if err := json.Unmarshal([]byte(raw), &ans); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Autosaved answer corrupt, skipping")
			continue
		}
		merged[ans.QuestionID] = ans
	}

	out := make([]model.UserAnswer, 0, len(merged))
	for _, ans := range merged {
		out = append(out, ans)
	}
	return out, nil
}
