package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/config"
	"github.com/datacomunidad/assess-backend/internal/metrics"
	"github.com/datacomunidad/assess-backend/internal/model"
	"github.com/datacomunidad/assess-backend/internal/repository"
)

// Domain Errors
var (
	ErrScoringInProgress = errors.New("submission already in flight")
	ErrScoringFailed     = errors.New("scoring pipeline failed")
)

// ScoringService runs the submission pipeline: close the attempt, make
// answers durable, grade, analyze, rank, persist the result exactly
// once, and fold in the certificate. It backs the live engine's submit
// path and the expiry sweeper's recovery path.
type ScoringService struct {
	attemptRepo   *repository.AttemptRepository
	answerRepo    *repository.AnswerRepository
	resultRepo    *repository.ResultRepository
	skillRepo     *repository.SkillRepository
	assessmentSvc *AssessmentService
	certSvc       *CertificateService
	rdb           *redis.Client
	log           zerolog.Logger
}

// NewScoringService creates a new ScoringService.
func NewScoringService(
	attemptRepo *repository.AttemptRepository,
	answerRepo *repository.AnswerRepository,
	resultRepo *repository.ResultRepository,
	skillRepo *repository.SkillRepository,
	assessmentSvc *AssessmentService,
	certSvc *CertificateService,
	rdb *redis.Client,
	log zerolog.Logger,
) *ScoringService {
	return &ScoringService{
		attemptRepo:   attemptRepo,
		answerRepo:    answerRepo,
		resultRepo:    resultRepo,
		skillRepo:     skillRepo,
		assessmentSvc: assessmentSvc,
		certSvc:       certSvc,
		rdb:           rdb,
		log:           log.With().Str("component", "scoring_service").Logger(),
	}
}

// Submit closes and scores an attempt. The status compare-and-set
// decides a single pipeline owner; losers get the stored result once it
// exists, ErrScoringInProgress while it does not.
func (s *ScoringService) Submit(ctx context.Context, attempt *model.Attempt, trigger model.SubmitTrigger, answers []model.UserAnswer) (*model.AssessmentResult, error) {
	started := time.Now()

	to := model.AttemptSubmitted
	if trigger == model.TriggerTimeout {
		to = model.AttemptExpired
	}

	won, err := s.attemptRepo.MarkSubmitted(ctx, attempt.ID, to, attempt.TimeSpent)
	if err != nil {
		return nil, fmt.Errorf("%w: mark submitted: %s", ErrScoringFailed, err)
	}
	if !won {
		existing, err := s.resultRepo.GetByAttempt(ctx, attempt.ID)
		if err == nil {
			return existing, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScoringInProgress
		}
		return nil, fmt.Errorf("%w: get existing result: %s", ErrScoringFailed, err)
	}

	if len(answers) > 0 {
		ids := make([]uuid.UUID, len(answers))
		for i := range ids {
			ids[i] = attempt.ID
		}
		if err := s.answerRepo.BulkUpsert(ctx, ids, answers); err != nil {
			return nil, fmt.Errorf("%w: persist answers: %s", ErrScoringFailed, err)
		}
	}

	result, err := s.score(ctx, attempt, trigger, answers)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrScoringFailed, err)
	}

	metrics.AttemptsSubmitted.WithLabelValues(string(trigger)).Inc()
	metrics.ScoringDuration.Observe(time.Since(started).Seconds())
	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("trigger", string(trigger)).
		Float64("percentage", result.Percentage).
		Bool("passed", result.Passed).
		Msg("Attempt scored")
	return result, nil
}

// Recover scores an attempt whose owner died after the status flip but
// before the result landed. The sweeper calls it with stored answers.
func (s *ScoringService) Recover(ctx context.Context, attempt *model.Attempt) (*model.AssessmentResult, error) {
	existing, err := s.resultRepo.GetByAttempt(ctx, attempt.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get existing result: %w", err)
	}

	answers, err := s.answerRepo.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	trigger := model.TriggerTimeout
	if attempt.Status == model.AttemptSubmitted {
		trigger = model.TriggerUser
	}
	return s.score(ctx, attempt, trigger, answers)
}

func (s *ScoringService) score(ctx context.Context, attempt *model.Attempt, trigger model.SubmitTrigger, answers []model.UserAnswer) (*model.AssessmentResult, error) {
	assessment, err := s.assessmentSvc.GetByID(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	keys, err := s.assessmentSvc.GetAnswerKeys(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("get answer keys: %w", err)
	}

	byQuestion := make(map[uuid.UUID]*model.UserAnswer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	var score, maxScore float64
	pendingReview := 0
	questionResults := make([]model.QuestionResult, 0, len(attempt.QuestionOrder))

	for _, qid := range attempt.QuestionOrder {
		key, ok := keys[qid]
		if !ok {
			return nil, fmt.Errorf("answer key missing for question %s", qid)
		}
		maxScore += key.Points

		qr := model.QuestionResult{
			QuestionID: qid,
			Type:       key.Type,
			Category:   key.Category,
			Difficulty: key.Difficulty,
			MaxPoints:  key.Points,
		}
		if ans, answered := byQuestion[qid]; answered {
			qr.IsCorrect = ans.IsCorrect
			qr.PointsEarned = ans.PointsEarned
			qr.NeedsReview = ans.NeedsReview
			qr.TimeSpent = ans.TimeSpent
			score += ans.PointsEarned
			if ans.NeedsReview {
				pendingReview++
			}
			if assessment.AllowReview {
				payload := ans.Payload
				qr.Answer = &payload
			}
		} else {
			// Unanswered counts against the score; there is nothing to
			// review.
			incorrect := false
			qr.IsCorrect = &incorrect
		}
		if assessment.AllowReview {
			correct := key
			correct.Explanation = ""
			qr.CorrectAnswer = &correct
			qr.Explanation = key.Explanation
		}
		questionResults = append(questionResults, qr)
	}

	percentage := 0.0
	if maxScore > 0 {
		percentage = score / maxScore * 100
	}
	passed := percentage >= assessment.PassingScore

	categoryScores := breakdown(questionResults, func(qr *model.QuestionResult) string { return qr.Category })
	difficultyScores := breakdown(questionResults, func(qr *model.QuestionResult) string { return string(qr.Difficulty) })

	firstPass := false
	if passed {
		alreadyPassed, err := s.attemptRepo.HasPassed(ctx, attempt.UserID, attempt.AssessmentID)
		if err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("First-pass check failed")
		} else {
			firstPass = !alreadyPassed
		}
	}
	badges := deriveBadges(percentage, passed, attempt.TimeSpent, assessment.TimeLimitMinutes*60, firstPass)

	skillUpdates, err := s.computeSkillUpdates(ctx, attempt.UserID, categoryScores)
	if err != nil {
		return nil, err
	}

	result := &model.AssessmentResult{
		ID:               uuid.New(),
		AttemptID:        attempt.ID,
		AssessmentID:     assessment.ID,
		UserID:           attempt.UserID,
		Score:            score,
		MaxScore:         maxScore,
		Percentage:       percentage,
		Passed:           passed,
		CategoryScores:   categoryScores,
		DifficultyScores: difficultyScores,
		QuestionResults:  questionResults,
		PercentileRank:   s.percentileRank(ctx, assessment.ID, attempt.ID, percentage),
		Strengths:        deriveStrengths(categoryScores),
		Weaknesses:       deriveWeaknesses(categoryScores),
		Recommendations:  deriveRecommendations(categoryScores, assessment, passed),
		Badges:           badges,
		SkillUpdates:     skillUpdates,
		PendingReview:    pendingReview,
		CreatedAt:        time.Now(),
	}

	stored, err := s.resultRepo.Create(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}
	if stored.ID != result.ID {
		// A concurrent pipeline won the insert; its side effects stand.
		return stored, nil
	}

	if assessment.Mode == model.ModeCertification && passed {
		cert, err := s.certSvc.Issue(ctx, attempt, assessment, stored)
		if err != nil {
			// The member can retry issuance; the result stands.
			s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Certificate issuance failed")
		} else {
			stored.CertificateID = &cert.ID
			if err := s.resultRepo.SetCertificate(ctx, attempt.ID, cert.ID); err != nil {
				s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Certificate link failed")
			}
		}
	}

	if err := s.attemptRepo.Finalize(ctx, attempt.ID, score, percentage, passed, badges); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Attempt finalize failed")
	}

	s.persistSkills(ctx, attempt.UserID, skillUpdates)
	s.publishScore(ctx, assessment.ID, attempt, percentage)

	return stored, nil
}

// percentileRank ranks the attempt against every completed attempt on
// the assessment: the share scoring strictly below. The Redis sorted
// set is the fast path; PostgreSQL backs it up.
func (s *ScoringService) percentileRank(ctx context.Context, assessmentID, attemptID uuid.UUID, percentage float64) float64 {
	scoresKey := config.CacheKey.AssessmentScoresKey(assessmentID)
	if err := s.rdb.ZAdd(ctx, scoresKey, redis.Z{Score: percentage, Member: attemptID.String()}).Err(); err == nil {
		pipe := s.rdb.Pipeline()
		below := pipe.ZCount(ctx, scoresKey, "-inf", "("+strconv.FormatFloat(percentage, 'f', -1, 64))
		total := pipe.ZCard(ctx, scoresKey)
		if _, err := pipe.Exec(ctx); err == nil && total.Val() > 0 {
			return math.Round(float64(below.Val()) / float64(total.Val()) * 100)
		}
	}

	below, total, err := s.attemptRepo.PercentileCounts(ctx, assessmentID, percentage)
	if err != nil {
		s.log.Warn().Err(err).Str("assessment_id", assessmentID.String()).Msg("Percentile fallback failed")
		return 0
	}
	total++ // this attempt is not completed yet
	return math.Round(float64(below) / float64(total) * 100)
}

// computeSkillUpdates reads current levels and blends in the category
// percentages. Persisting happens only on the winning pipeline.
func (s *ScoringService) computeSkillUpdates(ctx context.Context, userID string, cats map[string]model.CategoryScore) ([]model.SkillLevelUpdate, error) {
	updates := make([]model.SkillLevelUpdate, 0, len(cats))
	for _, name := range sortedCategories(cats) {
		pct := cats[name].Percentage
		current, err := s.skillRepo.Get(ctx, userID, name)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("get skill %s: %w", name, err)
			}
			updates = append(updates, model.SkillLevelUpdate{
				Category:      name,
				PreviousLevel: 0,
				NewLevel:      pct,
			})
			continue
		}
		updates = append(updates, model.SkillLevelUpdate{
			Category:      name,
			PreviousLevel: current.Level,
			NewLevel:      blendSkill(current.Level, pct),
		})
	}
	return updates, nil
}

func (s *ScoringService) persistSkills(ctx context.Context, userID string, updates []model.SkillLevelUpdate) {
	for _, u := range updates {
		if err := s.skillRepo.Upsert(ctx, userID, u.Category, u.NewLevel); err != nil {
			s.log.Warn().Err(err).Str("category", u.Category).Msg("Skill upsert failed")
		}
	}
}

// publishScore queues the standing for the leaderboard worker and
// clears the attempt's autosave hash.
func (s *ScoringService) publishScore(ctx context.Context, assessmentID uuid.UUID, attempt *model.Attempt, percentage float64) {
	event := model.ScoreEvent{
		AssessmentID: assessmentID,
		UserID:       attempt.UserID,
		Percentage:   percentage,
		CompletedAt:  time.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.log.Warn().Err(err).Msg("Score event marshal failed")
		return
	}

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.ScoreEventsQueue, payload)
	pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(attempt.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Score event publish failed")
	}
}
