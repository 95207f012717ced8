package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/grading"
	"github.com/datacomunidad/assess-backend/internal/model"
)

type fakeStore struct {
	mu            sync.Mutex
	progressSaves int
	lastIndex     int
	lastRemaining int
	lastFlagged   []int
	pauseOK       bool
	resumeOK      bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{pauseOK: true, resumeOK: true}
}

func (f *fakeStore) SaveProgress(_ context.Context, _ uuid.UUID, currentIndex, timeRemaining int, flagged []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressSaves++
	f.lastIndex = currentIndex
	f.lastRemaining = timeRemaining
	f.lastFlagged = flagged
	return nil
}

func (f *fakeStore) SetPaused(_ context.Context, _ uuid.UUID, timeRemaining int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRemaining = timeRemaining
	return f.pauseOK, nil
}

func (f *fakeStore) SetResumed(_ context.Context, _ uuid.UUID, _ time.Time, timeRemaining int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRemaining = timeRemaining
	return f.resumeOK, nil
}

func (f *fakeStore) saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progressSaves
}

type fakeSaver struct {
	mu    sync.Mutex
	saved []model.UserAnswer
	err   error
}

func (f *fakeSaver) SaveAnswer(_ context.Context, _ uuid.UUID, ans model.UserAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, ans)
	return nil
}

func (f *fakeSaver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeSubmitter struct {
	mu       sync.Mutex
	n        int
	failures int
	triggers []model.SubmitTrigger
	answers  int
}

func (f *fakeSubmitter) Submit(_ context.Context, attempt *model.Attempt, trigger model.SubmitTrigger, answers []model.UserAnswer) (*model.AssessmentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	f.triggers = append(f.triggers, trigger)
	f.answers = len(answers)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("storage unavailable")
	}
	return &model.AssessmentResult{
		AttemptID:  attempt.ID,
		Score:      10,
		MaxScore:   10,
		Percentage: 100,
		Passed:     true,
	}, nil
}

func (f *fakeSubmitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func (f *fakeSubmitter) lastTrigger() model.SubmitTrigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.triggers) == 0 {
		return ""
	}
	return f.triggers[len(f.triggers)-1]
}

type fakeSink struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeSink) record(ev string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeSink) PublishTime(_ uuid.UUID, remaining int) {
	f.record(fmt.Sprintf("time:%d", remaining))
}

func (f *fakeSink) PublishWarning(_ uuid.UUID, remaining int) {
	f.record(fmt.Sprintf("warning:%d", remaining))
}

func (f *fakeSink) PublishExpired(_ uuid.UUID)                           { f.record("expired") }
func (f *fakeSink) PublishGraded(_ uuid.UUID, _ *model.AssessmentResult) { f.record("graded") }
func (f *fakeSink) PublishSaveFailed(_ uuid.UUID, _ uuid.UUID)           { f.record("save_failed") }
func (f *fakeSink) PublishScoringPending(_ uuid.UUID)                    { f.record("scoring_pending") }

func (f *fakeSink) count(ev string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == ev {
			n++
		}
	}
	return n
}

type harness struct {
	clk       *clock.Mock
	store     *fakeStore
	saver     *fakeSaver
	submitter *fakeSubmitter
	sink      *fakeSink
	manager   *Manager
}

func newHarness() *harness {
	h := &harness{
		clk:       clock.NewMock(),
		store:     newFakeStore(),
		saver:     &fakeSaver{},
		submitter: &fakeSubmitter{},
		sink:      &fakeSink{},
	}
	h.manager = NewManager(Deps{
		Store:     h.store,
		Saver:     h.saver,
		Submitter: h.submitter,
		Events:    h.sink,
		Evaluator: grading.NewEvaluator(),
		Clock:     h.clk,
		Log:       zerolog.Nop(),
	})
	return h
}

func boolPtr(b bool) *bool { return &b }

func makeQuestions(n int) []model.Question {
	qs := make([]model.Question, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, model.Question{
			ID:         uuid.New(),
			Type:       model.QuestionSingleChoice,
			Prompt:     fmt.Sprintf("question %d", i+1),
			Category:   "statistics",
			Difficulty: model.DifficultyBeginner,
			Points:     10,
			Options: []model.QuestionOption{
				{ID: "a", Text: "right", IsCorrect: true},
				{ID: "b", Text: "wrong"},
			},
		})
	}
	return qs
}

func makeAttempt(questions []model.Question, remaining int, clk clock.Clock) *model.Attempt {
	order := make([]uuid.UUID, len(questions))
	for i := range questions {
		order[i] = questions[i].ID
	}
	deadline := clk.Now().Add(time.Duration(remaining) * time.Second)
	return &model.Attempt{
		ID:            uuid.New(),
		UserID:        "user-1",
		AssessmentID:  uuid.New(),
		Status:        model.AttemptInProgress,
		QuestionOrder: order,
		TimeRemaining: remaining,
		Deadline:      &deadline,
		StartedAt:     clk.Now(),
	}
}

func makeAssessment(mode model.AssessmentMode, minutes int) *model.Assessment {
	return &model.Assessment{
		ID:               uuid.New(),
		Title:            "Statistics Fundamentals",
		Mode:             mode,
		TimeLimitMinutes: minutes,
		PassingScore:     70,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSessionCountdownAutosubmit(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(2)
	attempt := makeAttempt(questions, 60, h.clk)

	_, err := h.manager.Start(attempt, makeAssessment(model.ModeCertification, 1), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	h.clk.Add(60 * time.Second)

	waitFor(t, "timeout submission", func() bool { return h.submitter.calls() == 1 })
	if got := h.submitter.lastTrigger(); got != model.TriggerTimeout {
		t.Fatalf("expected trigger %q, got %q", model.TriggerTimeout, got)
	}
	waitFor(t, "expired event", func() bool { return h.sink.count("expired") == 1 })
	waitFor(t, "graded event", func() bool { return h.sink.count("graded") == 1 })
	waitFor(t, "session removal", func() bool {
		_, ok := h.manager.Get(attempt.ID)
		return !ok
	})

	// No second submission once the clock keeps moving.
	h.clk.Add(30 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if got := h.submitter.calls(); got != 1 {
		t.Fatalf("expected exactly 1 submission, got %d", got)
	}
}

func TestSessionTimeoutSubmitFailureSurfaces(t *testing.T) {
	h := newHarness()
	h.submitter.failures = 1
	questions := makeQuestions(1)
	attempt := makeAttempt(questions, 60, h.clk)

	sess, err := h.manager.Start(attempt, makeAssessment(model.ModeCertification, 1), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	h.clk.Add(60 * time.Second)

	waitFor(t, "failed timeout submission", func() bool { return h.submitter.calls() == 1 })
	waitFor(t, "expired event", func() bool { return h.sink.count("expired") == 1 })
	waitFor(t, "scoring pending notice", func() bool { return h.sink.count("scoring_pending") == 1 })
	if got := h.sink.count("graded"); got != 0 {
		t.Fatalf("expected no graded event after the failure, got %d", got)
	}

	// The session stays attached so a retried submit can finish the job.
	if _, ok := h.manager.Get(attempt.ID); !ok {
		t.Fatal("expected session to stay attached for retry")
	}
	res, err := sess.Submit(context.Background(), model.TriggerTimeout)
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if res == nil || !res.Passed {
		t.Fatalf("unexpected retry result: %+v", res)
	}
	if got := h.submitter.calls(); got != 2 {
		t.Fatalf("expected 2 submission calls, got %d", got)
	}
	waitFor(t, "session removal after retry", func() bool {
		_, ok := h.manager.Get(attempt.ID)
		return !ok
	})
}

func TestSessionWarningFiresOnce(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(1)
	attempt := makeAttempt(questions, 310, h.clk)

	_, err := h.manager.Start(attempt, makeAssessment(model.ModeCertification, 6), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	h.clk.Add(10 * time.Second)
	waitFor(t, "time warning", func() bool { return h.sink.count("warning:300") == 1 })

	h.clk.Add(15 * time.Second)
	time.Sleep(20 * time.Millisecond)
	h.sink.mu.Lock()
	warnings := 0
	for _, e := range h.sink.events {
		if len(e) >= 7 && e[:7] == "warning" {
			warnings++
		}
	}
	h.sink.mu.Unlock()
	if warnings != 1 {
		t.Fatalf("expected 1 warning, got %d", warnings)
	}
}

func TestSessionTimeSyncCadence(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(1)
	attempt := makeAttempt(questions, 45, h.clk)

	_, err := h.manager.Start(attempt, makeAssessment(model.ModeCertification, 1), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	h.clk.Add(16 * time.Second)
	waitFor(t, "time sync at 30", func() bool { return h.sink.count("time:30") == 1 })
	if got := h.sink.count("time:29"); got != 0 {
		t.Fatalf("expected no off-cadence sync, got %d", got)
	}
	waitFor(t, "progress save piggyback", func() bool { return h.store.saves() >= 1 })
}

func TestSessionRecordAnswer(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(3)
	attempt := makeAttempt(questions, 600, h.clk)

	sess, err := h.manager.Start(attempt, makeAssessment(model.ModePractice, 10), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	ans, err := sess.RecordAnswer(context.Background(), 0, model.AnswerPayload{SelectedOptionID: "b"}, 12)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ans.IsCorrect == nil || *ans.IsCorrect {
		t.Fatalf("expected incorrect verdict, got %v", ans.IsCorrect)
	}

	// Re-answering replaces the verdict and payload.
	ans, err = sess.RecordAnswer(context.Background(), 0, model.AnswerPayload{SelectedOptionID: "a"}, 20)
	if err != nil {
		t.Fatalf("re-record: %v", err)
	}
	if ans.IsCorrect == nil || !*ans.IsCorrect {
		t.Fatalf("expected correct verdict, got %v", ans.IsCorrect)
	}
	if ans.PointsEarned != 10 {
		t.Fatalf("expected 10 points, got %v", ans.PointsEarned)
	}

	state := sess.State()
	view, ok := state.Answers[questions[0].ID.String()]
	if !ok {
		t.Fatal("expected answer in state")
	}
	if view.Payload.SelectedOptionID != "a" {
		t.Fatalf("expected last answer to win, got %q", view.Payload.SelectedOptionID)
	}
	waitFor(t, "both answer saves", func() bool { return h.saver.count() == 2 })

	if _, err := sess.RecordAnswer(context.Background(), 7, model.AnswerPayload{SelectedOptionID: "a"}, 0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := sess.RecordAnswer(context.Background(), 1, model.AnswerPayload{}, 0); !errors.Is(err, grading.ErrPayloadMismatch) {
		t.Fatalf("expected payload mismatch, got %v", err)
	}
}

func TestSessionSaveFailureWarnsWithoutBlocking(t *testing.T) {
	h := newHarness()
	h.saver.err = errors.New("redis down")
	questions := makeQuestions(1)
	attempt := makeAttempt(questions, 600, h.clk)

	sess, err := h.manager.Start(attempt, makeAssessment(model.ModePractice, 10), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := sess.RecordAnswer(context.Background(), 0, model.AnswerPayload{SelectedOptionID: "a"}, 5); err != nil {
		t.Fatalf("record should not surface the save failure, got %v", err)
	}
	waitFor(t, "save failed event", func() bool { return h.sink.count("save_failed") == 1 })
}

func TestSessionAdvanceClamps(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(3)
	attempt := makeAttempt(questions, 600, h.clk)

	sess, err := h.manager.Start(attempt, makeAssessment(model.ModePractice, 10), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	steps := []struct {
		delta int
		want  int
	}{
		{-1, 0},
		{1, 1},
		{1, 2},
		{1, 2},
		{-1, 1},
	}
	for i, step := range steps {
		got, err := sess.Advance(step.delta)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got != step.want {
			t.Fatalf("step %d: expected index %d, got %d", i, step.want, got)
		}
	}
}

func TestSessionDerivedQuestionTime(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(3)
	attempt := makeAttempt(questions, 600, h.clk)

	sess, err := h.manager.Start(attempt, makeAssessment(model.ModePractice, 10), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	h.clk.Add(30 * time.Second)
	ans, err := sess.RecordAnswer(context.Background(), 0, model.AnswerPayload{SelectedOptionID: "a"}, 0)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ans.TimeSpent != 30 {
		t.Fatalf("expected 30s derived, got %d", ans.TimeSpent)
	}

	if _, err := sess.Advance(1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	h.clk.Add(12 * time.Second)
	ans, err = sess.RecordAnswer(context.Background(), 1, model.AnswerPayload{SelectedOptionID: "a"}, 0)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ans.TimeSpent != 12 {
		t.Fatalf("expected 12s after the advance reset, got %d", ans.TimeSpent)
	}

	// A clamped move at the boundary keeps the question clock running.
	if _, err := sess.Advance(1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	h.clk.Add(5 * time.Second)
	if _, err := sess.Advance(1); err != nil {
		t.Fatalf("clamped advance: %v", err)
	}
	h.clk.Add(3 * time.Second)
	ans, err = sess.RecordAnswer(context.Background(), 2, model.AnswerPayload{SelectedOptionID: "a"}, 0)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ans.TimeSpent != 8 {
		t.Fatalf("expected 8s across the clamped move, got %d", ans.TimeSpent)
	}

	// The client's own measurement wins when present.
	ans, err = sess.RecordAnswer(context.Background(), 2, model.AnswerPayload{SelectedOptionID: "b"}, 45)
	if err != nil {
		t.Fatalf("re-record: %v", err)
	}
	if ans.TimeSpent != 45 {
		t.Fatalf("expected client-reported 45s, got %d", ans.TimeSpent)
	}
}

func TestSessionToggleFlag(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(3)
	attempt := makeAttempt(questions, 600, h.clk)

	sess, err := h.manager.Start(attempt, makeAssessment(model.ModePractice, 10), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	on, err := sess.ToggleFlag(2)
	if err != nil {
		t.Fatalf("flag: %v", err)
	}
	if !on {
		t.Fatal("expected flag on")
	}
	if _, err := sess.ToggleFlag(0); err != nil {
		t.Fatalf("flag: %v", err)
	}

	state := sess.State()
	if len(state.Attempt.Flagged) != 2 || state.Attempt.Flagged[0] != 0 || state.Attempt.Flagged[1] != 2 {
		t.Fatalf("expected sorted flags [0 2], got %v", state.Attempt.Flagged)
	}

	off, err := sess.ToggleFlag(2)
	if err != nil {
		t.Fatalf("unflag: %v", err)
	}
	if off {
		t.Fatal("expected flag off")
	}

	if _, err := sess.ToggleFlag(9); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestSessionPauseFreezesCountdown(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(1)
	attempt := makeAttempt(questions, 60, h.clk)

	sess, err := h.manager.Start(attempt, makeAssessment(model.ModePractice, 1), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	h.clk.Add(5 * time.Second)
	waitFor(t, "countdown at 55", func() bool { return sess.Remaining() == 55 })

	if err := sess.Pause(context.Background()); err != nil {
		t.Fatalf("pause: %v", err)
	}

	h.clk.Add(30 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if got := sess.Remaining(); got != 55 {
		t.Fatalf("expected frozen countdown 55, got %d", got)
	}

	if _, err := sess.RecordAnswer(context.Background(), 0, model.AnswerPayload{SelectedOptionID: "a"}, 0); !errors.Is(err, ErrAttemptPaused) {
		t.Fatalf("expected ErrAttemptPaused, got %v", err)
	}
	if err := sess.Pause(context.Background()); !errors.Is(err, ErrNotPausable) {
		t.Fatalf("expected ErrNotPausable on double pause, got %v", err)
	}

	if err := sess.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	h.clk.Add(55 * time.Second)
	waitFor(t, "timeout after resume", func() bool { return h.submitter.calls() == 1 })
}

func TestSessionCertificationNeverPauses(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(1)
	attempt := makeAttempt(questions, 60, h.clk)

	sess, err := h.manager.Start(attempt, makeAssessment(model.ModeCertification, 1), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := sess.Pause(context.Background()); !errors.Is(err, ErrNotPausable) {
		t.Fatalf("expected ErrNotPausable, got %v", err)
	}
	if err := sess.Resume(context.Background()); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("expected ErrNotPaused, got %v", err)
	}
}

func TestSessionSubmitIdempotent(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(2)
	attempt := makeAttempt(questions, 600, h.clk)

	sess, err := h.manager.Start(attempt, makeAssessment(model.ModeCertification, 10), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := sess.RecordAnswer(context.Background(), 0, model.AnswerPayload{SelectedOptionID: "a"}, 30); err != nil {
		t.Fatalf("record: %v", err)
	}

	first, err := sess.Submit(context.Background(), model.TriggerUser)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := sess.Submit(context.Background(), model.TriggerUser)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first != second {
		t.Fatal("expected the memoized result on re-submit")
	}
	if got := h.submitter.calls(); got != 1 {
		t.Fatalf("expected 1 pipeline run, got %d", got)
	}

	if _, err := sess.RecordAnswer(context.Background(), 0, model.AnswerPayload{SelectedOptionID: "b"}, 0); !errors.Is(err, ErrAttemptFinished) {
		t.Fatalf("expected ErrAttemptFinished, got %v", err)
	}
	if _, err := sess.Advance(1); !errors.Is(err, ErrAttemptFinished) {
		t.Fatalf("expected ErrAttemptFinished, got %v", err)
	}

	// The countdown is gone: moving the clock produces no more events.
	before := h.sink.count("expired")
	h.clk.Add(10 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	if got := h.sink.count("expired"); got != before {
		t.Fatalf("expected no expiry after submit, got %d new events", got-before)
	}
	if got := h.submitter.calls(); got != 1 {
		t.Fatalf("expected no extra submissions, got %d", got)
	}
}

func TestSessionSubmitFailureCanRetry(t *testing.T) {
	h := newHarness()
	h.submitter.failures = 1
	questions := makeQuestions(1)
	attempt := makeAttempt(questions, 600, h.clk)

	sess, err := h.manager.Start(attempt, makeAssessment(model.ModeCertification, 10), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := sess.Submit(context.Background(), model.TriggerUser); err == nil {
		t.Fatal("expected first submit to fail")
	}
	res, err := sess.Submit(context.Background(), model.TriggerUser)
	if err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if res == nil || !res.Passed {
		t.Fatalf("expected a passing result on retry, got %+v", res)
	}
	if got := h.submitter.calls(); got != 2 {
		t.Fatalf("expected 2 pipeline calls, got %d", got)
	}
}

func TestSessionExitKeepsAttemptAlive(t *testing.T) {
	h := newHarness()
	questions := makeQuestions(2)
	attempt := makeAttempt(questions, 60, h.clk)

	sess, err := h.manager.Start(attempt, makeAssessment(model.ModeCertification, 1), questions, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := sess.Advance(1); err != nil {
		t.Fatalf("advance: %v", err)
	}

	sess.Exit(context.Background())
	h.manager.Remove(attempt.ID)

	waitFor(t, "exit progress save", func() bool { return h.store.saves() >= 1 })
	h.store.mu.Lock()
	lastIndex := h.store.lastIndex
	h.store.mu.Unlock()
	if lastIndex != 1 {
		t.Fatalf("expected saved index 1, got %d", lastIndex)
	}

	// Exit never submits; the clock stops locally and the sweeper owns
	// expiry from here.
	h.clk.Add(2 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	if got := h.submitter.calls(); got != 0 {
		t.Fatalf("expected no submission after exit, got %d", got)
	}
}
