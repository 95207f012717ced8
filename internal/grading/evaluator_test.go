package grading

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"

	"github.com/datacomunidad/assess-backend/internal/model"
)

func boolPtr(b bool) *bool { return &b }

func singleKey(correctID string) model.AnswerKey {
	return model.AnswerKey{
		QuestionID:       uuid.New(),
		Type:             model.QuestionSingleChoice,
		Points:           2,
		CorrectOptionIDs: []string{correctID},
	}
}

func multiKey(points float64, ids ...string) model.AnswerKey {
	return model.AnswerKey{
		QuestionID:       uuid.New(),
		Type:             model.QuestionMultipleChoice,
		Points:           points,
		CorrectOptionIDs: ids,
	}
}

func assertResult(t *testing.T, got Result, isCorrect *bool, points float64, needsReview bool) {
	t.Helper()
	if isCorrect == nil {
		if got.IsCorrect != nil {
			t.Fatalf("expected is_correct=nil, got=%v", *got.IsCorrect)
		}
	} else {
		if got.IsCorrect == nil {
			t.Fatalf("expected is_correct=%v, got=nil", *isCorrect)
		}
		if *got.IsCorrect != *isCorrect {
			t.Fatalf("expected is_correct=%v, got=%v", *isCorrect, *got.IsCorrect)
		}
	}
	if got.PointsEarned != points {
		t.Fatalf("expected points=%v, got=%v", points, got.PointsEarned)
	}
	if got.NeedsReview != needsReview {
		t.Fatalf("expected needs_review=%v, got=%v", needsReview, got.NeedsReview)
	}
}

func TestEvaluateSingleChoice(t *testing.T) {
	ev := NewEvaluator()
	tests := []struct {
		name      string
		selected  string
		isCorrect *bool
		earned    float64
		wantErr   bool
	}{
		{name: "correct option", selected: "b", isCorrect: boolPtr(true), earned: 2},
		{name: "wrong option", selected: "a", isCorrect: boolPtr(false)},
		{name: "unknown option id", selected: "z", isCorrect: boolPtr(false)},
		{name: "empty selection rejected", selected: "", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ev.Evaluate(context.Background(), singleKey("b"), model.AnswerPayload{SelectedOptionID: tc.selected})
			if tc.wantErr {
				if !errors.Is(err, ErrPayloadMismatch) {
					t.Fatalf("expected ErrPayloadMismatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertResult(t, got, tc.isCorrect, tc.earned, false)
		})
	}
}

func TestEvaluateMultipleChoiceExactSet(t *testing.T) {
	ev := NewEvaluator()
	key := multiKey(4, "a", "c")
	tests := []struct {
		name      string
		selected  []string
		isCorrect *bool
		earned    float64
	}{
		{name: "exact match", selected: []string{"a", "c"}, isCorrect: boolPtr(true), earned: 4},
		{name: "order does not matter", selected: []string{"c", "a"}, isCorrect: boolPtr(true), earned: 4},
		{name: "duplicates collapse", selected: []string{"a", "a", "c"}, isCorrect: boolPtr(true), earned: 4},
		{name: "subset earns nothing", selected: []string{"a"}, isCorrect: boolPtr(false)},
		{name: "superset earns nothing", selected: []string{"a", "c", "d"}, isCorrect: boolPtr(false)},
		{name: "disjoint earns nothing", selected: []string{"b", "d"}, isCorrect: boolPtr(false)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ev.Evaluate(context.Background(), key, model.AnswerPayload{SelectedOptionIDs: tc.selected})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertResult(t, got, tc.isCorrect, tc.earned, false)
		})
	}
}

// Every non-empty subset of the option space other than the exact
// correct set must score zero. Sweeps all 15 subsets of a 4-option
// question plus randomized orderings of each.
func TestEvaluateMultipleChoiceNoPartialCredit(t *testing.T) {
	ev := NewEvaluator()
	options := []string{"a", "b", "c", "d"}
	key := multiKey(3, "b", "d")
	rng := rand.New(rand.NewSource(42))

	for mask := 1; mask < 1<<len(options); mask++ {
		subset := make([]string, 0, len(options))
		for i, id := range options {
			if mask&(1<<i) != 0 {
				subset = append(subset, id)
			}
		}
		rng.Shuffle(len(subset), func(i, j int) { subset[i], subset[j] = subset[j], subset[i] })

		exact := len(subset) == 2 && ((subset[0] == "b" && subset[1] == "d") || (subset[0] == "d" && subset[1] == "b"))
		got, err := ev.Evaluate(context.Background(), key, model.AnswerPayload{SelectedOptionIDs: subset})
		if err != nil {
			t.Fatalf("subset %v: unexpected error: %v", subset, err)
		}
		if exact {
			if got.PointsEarned != 3 {
				t.Fatalf("subset %v: expected full points, got %v", subset, got.PointsEarned)
			}
			continue
		}
		if got.PointsEarned != 0 {
			t.Fatalf("subset %v: expected zero points, got %v", subset, got.PointsEarned)
		}
		if got.IsCorrect == nil || *got.IsCorrect {
			t.Fatalf("subset %v: expected incorrect verdict", subset)
		}
	}
}

func TestEvaluateTrueFalse(t *testing.T) {
	ev := NewEvaluator()
	key := model.AnswerKey{
		QuestionID:  uuid.New(),
		Type:        model.QuestionTrueFalse,
		Points:      1,
		CorrectBool: boolPtr(true),
	}

	got, err := ev.Evaluate(context.Background(), key, model.AnswerPayload{BoolValue: boolPtr(true)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertResult(t, got, boolPtr(true), 1, false)

	got, err = ev.Evaluate(context.Background(), key, model.AnswerPayload{BoolValue: boolPtr(false)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertResult(t, got, boolPtr(false), 0, false)

	if _, err = ev.Evaluate(context.Background(), key, model.AnswerPayload{}); !errors.Is(err, ErrPayloadMismatch) {
		t.Fatalf("expected ErrPayloadMismatch for missing bool, got %v", err)
	}
}

func TestEvaluateFillBlank(t *testing.T) {
	ev := NewEvaluator()
	key := model.AnswerKey{
		QuestionID: uuid.New(),
		Type:       model.QuestionFillBlank,
		Points:     2,
		Blanks:     []string{"Gradient Descent", "overfitting"},
	}
	tests := []struct {
		name      string
		texts     []string
		isCorrect *bool
		earned    float64
	}{
		{name: "exact", texts: []string{"Gradient Descent", "overfitting"}, isCorrect: boolPtr(true), earned: 2},
		{name: "case insensitive", texts: []string{"gradient descent", "OVERFITTING"}, isCorrect: boolPtr(true), earned: 2},
		{name: "surrounding whitespace trimmed", texts: []string{"  gradient descent ", "\toverfitting\n"}, isCorrect: boolPtr(true), earned: 2},
		{name: "inner whitespace collapsed", texts: []string{"gradient   descent", "overfitting"}, isCorrect: boolPtr(true), earned: 2},
		{name: "ordinals must line up", texts: []string{"overfitting", "gradient descent"}, isCorrect: boolPtr(false)},
		{name: "one wrong blank fails all", texts: []string{"gradient descent", "underfitting"}, isCorrect: boolPtr(false)},
		{name: "missing blank fails", texts: []string{"gradient descent"}, isCorrect: boolPtr(false)},
		{name: "extra blank fails", texts: []string{"gradient descent", "overfitting", "extra"}, isCorrect: boolPtr(false)},
		{name: "empty submission is wrong not error", texts: []string{"", ""}, isCorrect: boolPtr(false)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ev.Evaluate(context.Background(), key, model.AnswerPayload{Texts: tc.texts})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertResult(t, got, tc.isCorrect, tc.earned, false)
		})
	}
}

func TestNormalizeKeepsPunctuation(t *testing.T) {
	if normalize("p-value") == normalize("pvalue") {
		t.Fatal("punctuation must stay significant")
	}
	if normalize("  K-Means\t Clustering ") != "k-means clustering" {
		t.Fatalf("unexpected normalization: %q", normalize("  K-Means\t Clustering "))
	}
}

type fakeRunner struct {
	verdict CodeVerdict
	err     error
	calls   int
}

func (f *fakeRunner) Run(_ context.Context, _ uuid.UUID, _ string) (CodeVerdict, error) {
	f.calls++
	return f.verdict, f.err
}

func TestEvaluateCodingChallenge(t *testing.T) {
	key := model.AnswerKey{QuestionID: uuid.New(), Type: model.QuestionCodingChallenge, Points: 5}
	payload := model.AnswerPayload{Code: "SELECT 1"}

	t.Run("no runner holds for review", func(t *testing.T) {
		got, err := NewEvaluator().Evaluate(context.Background(), key, payload)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertResult(t, got, nil, 0, true)
	})

	t.Run("runner pass awards points", func(t *testing.T) {
		r := &fakeRunner{verdict: CodeVerdict{Passed: true, Feedback: "12/12 tests"}}
		got, err := NewEvaluator(WithCodeRunner(r)).Evaluate(context.Background(), key, payload)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertResult(t, got, boolPtr(true), 5, false)
		if r.calls != 1 {
			t.Fatalf("expected 1 runner call, got %d", r.calls)
		}
	})

	t.Run("runner fail awards nothing", func(t *testing.T) {
		r := &fakeRunner{verdict: CodeVerdict{Passed: false}}
		got, err := NewEvaluator(WithCodeRunner(r)).Evaluate(context.Background(), key, payload)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertResult(t, got, boolPtr(false), 0, false)
	})

	t.Run("runner error falls back to review", func(t *testing.T) {
		r := &fakeRunner{err: errors.New("sandbox unavailable")}
		got, err := NewEvaluator(WithCodeRunner(r)).Evaluate(context.Background(), key, payload)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertResult(t, got, nil, 0, true)
	})

	t.Run("empty code rejected", func(t *testing.T) {
		_, err := NewEvaluator().Evaluate(context.Background(), key, model.AnswerPayload{})
		if !errors.Is(err, ErrPayloadMismatch) {
			t.Fatalf("expected ErrPayloadMismatch, got %v", err)
		}
	})
}

func TestEvaluateReviewTypesStayPending(t *testing.T) {
	ev := NewEvaluator()
	types := []model.QuestionType{
		model.QuestionEssay,
		model.QuestionPracticalScenario,
		model.QuestionCodeReview,
		model.QuestionSQLQuery,
	}
	for _, qt := range types {
		t.Run(string(qt), func(t *testing.T) {
			key := model.AnswerKey{QuestionID: uuid.New(), Type: qt, Points: 10}
			got, err := ev.Evaluate(context.Background(), key, model.AnswerPayload{Text: "my take on the scenario"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertResult(t, got, nil, 0, true)
		})
	}

	t.Run(string(model.QuestionDragDrop), func(t *testing.T) {
		key := model.AnswerKey{QuestionID: uuid.New(), Type: model.QuestionDragDrop, Points: 3}
		got, err := ev.Evaluate(context.Background(), key, model.AnswerPayload{SelectedOptionIDs: []string{"s2", "s1", "s3"}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertResult(t, got, nil, 0, true)
	})
}
