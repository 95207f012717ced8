package worker

import (
	"testing"

	"github.com/google/uuid"

	"github.com/datacomunidad/assess-backend/internal/model"
)

func item(attempt, question uuid.UUID, timeSpent int) *model.AnswerQueueItem {
	return &model.AnswerQueueItem{
		AttemptID: attempt,
		Answer: model.UserAnswer{
			QuestionID: question,
			TimeSpent:  timeSpent,
		},
	}
}

func TestDedupeNewestKeepsLastWrite(t *testing.T) {
	attempt := uuid.New()
	q1 := uuid.New()
	q2 := uuid.New()

	batch := []*model.AnswerQueueItem{
		item(attempt, q1, 5),
		item(attempt, q2, 8),
		item(attempt, q1, 12),
		item(attempt, q1, 20),
	}

	out := dedupeNewest(batch)
	if len(out) != 2 {
		t.Fatalf("expected 2 deduped items, got %d", len(out))
	}

	byQuestion := make(map[uuid.UUID]int)
	for _, q := range out {
		byQuestion[q.Answer.QuestionID] = q.Answer.TimeSpent
	}
	if byQuestion[q1] != 20 {
		t.Fatalf("expected newest write for q1 (20), got %d", byQuestion[q1])
	}
	if byQuestion[q2] != 8 {
		t.Fatalf("expected q2 untouched (8), got %d", byQuestion[q2])
	}
}

func TestDedupeNewestNoDuplicates(t *testing.T) {
	attempt := uuid.New()
	batch := []*model.AnswerQueueItem{
		item(attempt, uuid.New(), 1),
		item(attempt, uuid.New(), 2),
	}

	out := dedupeNewest(batch)
	if len(out) != len(batch) {
		t.Fatalf("expected batch unchanged, got %d items", len(out))
	}
	for i := range batch {
		if out[i] != batch[i] {
			t.Fatalf("expected identical order at %d", i)
		}
	}
}

func TestDedupeNewestSameQuestionAcrossAttempts(t *testing.T) {
	q := uuid.New()
	a1 := uuid.New()
	a2 := uuid.New()

	out := dedupeNewest([]*model.AnswerQueueItem{
		item(a1, q, 3),
		item(a2, q, 4),
	})
	if len(out) != 2 {
		t.Fatalf("expected both attempts kept, got %d", len(out))
	}
}
