package grading

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/datacomunidad/assess-backend/internal/model"
)

// ErrPayloadMismatch means the answer payload does not carry the shape
// the question type requires. It invalidates that answer only.
var ErrPayloadMismatch = errors.New("answer payload does not match question type")

// CodeVerdict is the outcome of executing a coding answer.
type CodeVerdict struct {
	Passed   bool
	Feedback string
}

// CodeRunner executes coding-challenge submissions in a sandbox. The
// engine ships without one; wiring a real runner is a deployment
// concern.
type CodeRunner interface {
	Run(ctx context.Context, questionID uuid.UUID, code string) (CodeVerdict, error)
}

// Result is the outcome of evaluating a single answer. IsCorrect is nil
// while the verdict is pending an external collaborator; such answers
// earn zero points until resolved.
type Result struct {
	IsCorrect    *bool
	PointsEarned float64
	MaxPoints    float64
	NeedsReview  bool
	Feedback     []string
}

// Strategy evaluates one answer for one question type.
type Strategy interface {
	Evaluate(ctx context.Context, key model.AnswerKey, payload model.AnswerPayload) (Result, error)
}

// Evaluator routes an answer to the strategy for its question type.
type Evaluator interface {
	Evaluate(ctx context.Context, key model.AnswerKey, payload model.AnswerPayload) (Result, error)
}

type defaultEvaluator struct {
	strategies map[model.QuestionType]Strategy
}

func (e *defaultEvaluator) Evaluate(ctx context.Context, key model.AnswerKey, payload model.AnswerPayload) (Result, error) {
	s, ok := e.strategies[key.Type]
	if !ok {
		return pending(key.Points, "no strategy for question type"), nil
	}
	return s.Evaluate(ctx, key, payload)
}

// Option configures the evaluator.
type Option func(*config)

type config struct {
	runner CodeRunner
}

// WithCodeRunner installs a sandbox executor for coding challenges.
// Without one, coding answers are held for review instead of being
// waved through.
func WithCodeRunner(r CodeRunner) Option { return func(c *config) { c.runner = r } }

// NewEvaluator installs the built-in strategies.
func NewEvaluator(opts ...Option) Evaluator {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}
	review := reviewStrategy{}
	return &defaultEvaluator{
		strategies: map[model.QuestionType]Strategy{
			model.QuestionSingleChoice:      singleChoiceStrategy{},
			model.QuestionMultipleChoice:    multipleChoiceStrategy{},
			model.QuestionTrueFalse:         trueFalseStrategy{},
			model.QuestionFillBlank:         fillBlankStrategy{},
			model.QuestionCodingChallenge:   codingStrategy{runner: cfg.runner},
			model.QuestionPracticalScenario: review,
			model.QuestionEssay:             review,
			model.QuestionDragDrop:          review,
			model.QuestionCodeReview:        review,
			model.QuestionSQLQuery:          review,
		},
	}
}

func correct(points float64) Result {
	v := true
	return Result{IsCorrect: &v, PointsEarned: points, MaxPoints: points}
}

func incorrect(max float64) Result {
	v := false
	return Result{IsCorrect: &v, MaxPoints: max}
}

func pending(max float64, notes ...string) Result {
	return Result{MaxPoints: max, NeedsReview: true, Feedback: notes}
}

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Evaluate(_ context.Context, key model.AnswerKey, payload model.AnswerPayload) (Result, error) {
	if payload.SelectedOptionID == "" {
		return Result{MaxPoints: key.Points}, ErrPayloadMismatch
	}
	for _, id := range key.CorrectOptionIDs {
		if payload.SelectedOptionID == id {
			return correct(key.Points), nil
		}
	}
	return incorrect(key.Points), nil
}

type multipleChoiceStrategy struct{}

// Evaluate awards points only on exact set equality with the correct
// option ids. A missing or extra selection makes the whole answer
// wrong; there is no partial credit.
func (multipleChoiceStrategy) Evaluate(_ context.Context, key model.AnswerKey, payload model.AnswerPayload) (Result, error) {
	if len(payload.SelectedOptionIDs) == 0 {
		return Result{MaxPoints: key.Points}, ErrPayloadMismatch
	}
	if setEqual(toSet(key.CorrectOptionIDs), toSet(payload.SelectedOptionIDs)) {
		return correct(key.Points), nil
	}
	return incorrect(key.Points), nil
}

type trueFalseStrategy struct{}

func (trueFalseStrategy) Evaluate(_ context.Context, key model.AnswerKey, payload model.AnswerPayload) (Result, error) {
	if payload.BoolValue == nil || key.CorrectBool == nil {
		return Result{MaxPoints: key.Points}, ErrPayloadMismatch
	}
	if *payload.BoolValue == *key.CorrectBool {
		return correct(key.Points), nil
	}
	return incorrect(key.Points), nil
}

type fillBlankStrategy struct{}

// Evaluate compares blanks by ordinal after normalization. A wrong
// count of submitted blanks is an incorrect answer, not an error: a
// member may leave blanks empty.
func (fillBlankStrategy) Evaluate(_ context.Context, key model.AnswerKey, payload model.AnswerPayload) (Result, error) {
	if len(payload.Texts) != len(key.Blanks) {
		return incorrect(key.Points), nil
	}
	for i, expected := range key.Blanks {
		if normalize(payload.Texts[i]) != normalize(expected) {
			return incorrect(key.Points), nil
		}
	}
	return correct(key.Points), nil
}

type codingStrategy struct{ runner CodeRunner }

func (s codingStrategy) Evaluate(ctx context.Context, key model.AnswerKey, payload model.AnswerPayload) (Result, error) {
	if payload.Code == "" {
		return Result{MaxPoints: key.Points}, ErrPayloadMismatch
	}
	if s.runner == nil {
		return pending(key.Points, "code runner not configured"), nil
	}
	verdict, err := s.runner.Run(ctx, key.QuestionID, payload.Code)
	if err != nil {
		return pending(key.Points, "execution failed: "+err.Error()), nil
	}
	res := incorrect(key.Points)
	if verdict.Passed {
		res = correct(key.Points)
	}
	if verdict.Feedback != "" {
		res.Feedback = append(res.Feedback, verdict.Feedback)
	}
	return res, nil
}

type reviewStrategy struct{}

func (reviewStrategy) Evaluate(_ context.Context, key model.AnswerKey, payload model.AnswerPayload) (Result, error) {
	if payload.Text == "" && payload.Code == "" && len(payload.SelectedOptionIDs) == 0 {
		return Result{MaxPoints: key.Points}, ErrPayloadMismatch
	}
	return pending(key.Points, "awaiting review"), nil
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
