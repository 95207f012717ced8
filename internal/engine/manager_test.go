package engine

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/datacomunidad/assess-backend/internal/model"
)

func TestManagerStartDeduplicates(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(1)
	attempt := makeAttempt(questions, 600, h.clk)
	assessment := makeAssessment(model.ModePractice, 10)

	first, err := h.manager.Start(attempt, assessment, questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	second, err := h.manager.Start(attempt, assessment, questions, nil)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if first != second {
		t.Fatal("expected the same session on reattach")
	}
	if got := h.manager.ActiveCount(); got != 1 {
		t.Fatalf("expected 1 live session, got %d", got)
	}
}

func TestManagerRejectsOrderMismatch(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(2)
	attempt := makeAttempt(questions, 600, h.clk)
	attempt.QuestionOrder = attempt.QuestionOrder[:1]

	if _, err := h.manager.Start(attempt, makeAssessment(model.ModePractice, 10), questions, nil); err == nil {
		t.Fatal("expected an error for mismatched question order")
	}
}

func TestManagerDetachesOnSubmit(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(1)
	attempt := makeAttempt(questions, 600, h.clk)

	sess, err := h.manager.Start(attempt, makeAssessment(model.ModePractice, 10), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := sess.Submit(context.Background(), model.TriggerUser); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, ok := h.manager.Get(attempt.ID); ok {
		t.Fatal("expected session detached after submit")
	}
	if got := h.manager.ActiveCount(); got != 0 {
		t.Fatalf("expected 0 live sessions, got %d", got)
	}
}

func TestManagerStartRehydratesAnswers(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(2)
	attempt := makeAttempt(questions, 600, h.clk)

	prior := []model.UserAnswer{{
		QuestionID:   questions[0].ID,
		Type:         model.QuestionSingleChoice,
		Payload:      model.AnswerPayload{SelectedOptionID: "a"},
		IsCorrect:    boolPtr(true),
		PointsEarned: 10,
		SubmittedAt:  h.clk.Now(),
	}}

	sess, err := h.manager.Start(attempt, makeAssessment(model.ModePractice, 10), questions, prior)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	state := sess.State()
	if len(state.Answers) != 1 {
		t.Fatalf("expected 1 rehydrated answer, got %d", len(state.Answers))
	}
	view, ok := state.Answers[questions[0].ID.String()]
	if !ok {
		t.Fatal("expected the stored answer in state")
	}
	if view.Payload.SelectedOptionID != "a" {
		t.Fatalf("expected stored payload, got %q", view.Payload.SelectedOptionID)
	}
}

func TestManagerShutdownDrains(t *testing.T) {
	h := newHarness()
	for i := 0; i < 3; i++ {
		questions := makeQuestions(1)
		attempt := makeAttempt(questions, 600, h.clk)
		if _, err := h.manager.Start(attempt, makeAssessment(model.ModePractice, 10), questions, nil); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}

	h.manager.Shutdown(context.Background())

	if got := h.manager.ActiveCount(); got != 0 {
		t.Fatalf("expected drained manager, got %d sessions", got)
	}
	if got := h.store.saves(); got != 3 {
		t.Fatalf("expected 3 progress saves, got %d", got)
	}
	if got := h.submitter.calls(); got != 0 {
		t.Fatalf("shutdown must not submit, got %d calls", got)
	}
}

func TestPresentationOrder(t *testing.T) {
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		ids[i] = uuid.New()
	}

	t.Run("catalog order without shuffle", func(t *testing.T) {
		rng := rand.New(rand.NewSource(1))
		got := PresentationOrder(rng, ids, false)
		for i := range ids {
			if got[i] != ids[i] {
				t.Fatalf("index %d: expected catalog order preserved", i)
			}
		}
		got[0] = uuid.New()
		if ids[0] == got[0] {
			t.Fatal("expected a copied slice, not the input")
		}
	})

	t.Run("shuffle is a permutation", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		got := PresentationOrder(rng, ids, true)
		if len(got) != len(ids) {
			t.Fatalf("expected %d ids, got %d", len(ids), len(got))
		}
		seen := make(map[uuid.UUID]bool, len(got))
		for _, id := range got {
			seen[id] = true
		}
		for _, id := range ids {
			if !seen[id] {
				t.Fatalf("id %s missing from shuffled order", id)
			}
		}
	})

	t.Run("deterministic for a fixed seed", func(t *testing.T) {
		a := PresentationOrder(rand.New(rand.NewSource(7)), ids, true)
		b := PresentationOrder(rand.New(rand.NewSource(7)), ids, true)
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("index %d: expected identical orders for one seed", i)
			}
		}
	})
}

func TestResumeDeadline(t *testing.T) {
	h := newHarness()
	base := h.clk.Now()

	future := base.Add(90 * time.Second)
	past := base.Add(-10 * time.Second)

	tests := []struct {
		name    string
		attempt model.Attempt
		want    int
	}{
		{
			name:    "running drains against deadline",
			attempt: model.Attempt{Status: model.AttemptInProgress, Deadline: &future, TimeRemaining: 600},
			want:    90,
		},
		{
			name:    "expired floors at zero",
			attempt: model.Attempt{Status: model.AttemptInProgress, Deadline: &past, TimeRemaining: 600},
			want:    0,
		},
		{
			name:    "paused keeps frozen remaining",
			attempt: model.Attempt{Status: model.AttemptPaused, TimeRemaining: 125},
			want:    125,
		},
		{
			name:    "missing deadline keeps stored value",
			attempt: model.Attempt{Status: model.AttemptInProgress, TimeRemaining: 45},
			want:    45,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResumeDeadline(h.clk, &tt.attempt); got != tt.want {
				t.Fatalf("expected %d seconds, got %d", tt.want, got)
			}
		})
	}
}
