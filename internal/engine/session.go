package engine

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/model"
)

var (
	ErrAttemptFinished = errors.New("attempt already finished")
	ErrAttemptPaused   = errors.New("attempt is paused")
	ErrNotPausable     = errors.New("attempt cannot be paused")
	ErrNotPaused       = errors.New("attempt is not paused")
	ErrIndexOutOfRange = errors.New("question index out of range")
	ErrSessionNotFound = errors.New("no live session for attempt")
	ErrSessionState    = errors.New("session state is inconsistent")
)

// TimeSyncInterval is how often the countdown is pushed to the client
// and progress is persisted in the background.
const TimeSyncInterval = 15

// ProgressStore persists the parts of attempt state that change while a
// member works: pointer, countdown, flags, pause transitions.
// *repository.AttemptRepository satisfies it.
type ProgressStore interface {
	SaveProgress(ctx context.Context, id uuid.UUID, currentIndex, timeRemaining int, flagged []int) error
	SetPaused(ctx context.Context, id uuid.UUID, timeRemaining int) (bool, error)
	SetResumed(ctx context.Context, id uuid.UUID, deadline time.Time, timeRemaining int) (bool, error)
}

// AnswerSaver makes a freshly recorded answer durable. Calls happen off
// the session's critical path; failures surface as warnings, never as
// blocked input.
type AnswerSaver interface {
	SaveAnswer(ctx context.Context, attemptID uuid.UUID, ans model.UserAnswer) error
}

// Submitter runs the submission and scoring pipeline. It owns the
// status compare-and-set, so calling it twice for one attempt returns
// the same result both times.
type Submitter interface {
	Submit(ctx context.Context, attempt *model.Attempt, trigger model.SubmitTrigger, answers []model.UserAnswer) (*model.AssessmentResult, error)
}

// EventSink receives pushes for the live attempt stream.
type EventSink interface {
	PublishTime(attemptID uuid.UUID, remaining int)
	PublishWarning(attemptID uuid.UUID, remaining int)
	PublishExpired(attemptID uuid.UUID)
	PublishGraded(attemptID uuid.UUID, result *model.AssessmentResult)
	PublishSaveFailed(attemptID uuid.UUID, questionID uuid.UUID)
	PublishScoringPending(attemptID uuid.UUID)
}

// Session is the live, in-memory run of one attempt. Every operation
// serializes on the session mutex; the countdown goroutine goes through
// the same mutex, so ticks and member actions never interleave.
type Session struct {
	mu sync.Mutex

	attempt    *model.Attempt
	assessment *model.Assessment
	questions  []model.Question
	keys       map[uuid.UUID]model.AnswerKey
	answers    map[uuid.UUID]*model.UserAnswer
	flagged    map[int]struct{}

	// questionShownAt marks when the current question came on screen.
	// Reset on every pointer move and on resume; backs the derived
	// per-question time when the client reports none.
	questionShownAt time.Time

	deps Deps
	log  zerolog.Logger

	ticker       *clock.Ticker
	stopc        chan struct{}
	timerStopped bool
	warned       bool
	finished     bool
	result       *model.AssessmentResult

	// onFinished detaches the session from its manager once scoring
	// lands. Invoked outside the session mutex.
	onFinished func(attemptID uuid.UUID)
}

func newSession(attempt *model.Attempt, assessment *model.Assessment, questions []model.Question, answers []model.UserAnswer, deps Deps, log zerolog.Logger) (*Session, error) {
	if len(questions) == 0 || len(questions) != len(attempt.QuestionOrder) {
		return nil, ErrSessionState
	}

	s := &Session{
		attempt:    attempt,
		assessment: assessment,
		questions:  questions,
		keys:       make(map[uuid.UUID]model.AnswerKey, len(questions)),
		answers:    make(map[uuid.UUID]*model.UserAnswer, len(answers)),
		flagged:    make(map[int]struct{}, len(attempt.Flagged)),
		deps:       deps,
		log:        log.With().Str("attempt_id", attempt.ID.String()).Logger(),
		stopc:      make(chan struct{}),
	}
	for i := range questions {
		s.keys[questions[i].ID] = questions[i].Key()
	}
	for i := range answers {
		ans := answers[i]
		s.answers[ans.QuestionID] = &ans
	}
	for _, idx := range attempt.Flagged {
		s.flagged[idx] = struct{}{}
	}
	return s, nil
}

// start spins up the countdown. Paused sessions stay frozen until a
// resume call.
func (s *Session) start() {
	if s.attempt.Status == model.AttemptInProgress {
		s.questionShownAt = s.deps.Clock.Now()
		s.startTimerLocked()
	}
}

// AttemptID returns the attempt this session runs.
func (s *Session) AttemptID() uuid.UUID { return s.attempt.ID }

// UserID returns the owning member.
func (s *Session) UserID() string { return s.attempt.UserID }

// Remaining returns the countdown in seconds.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.TimeRemaining
}

// State snapshots the resumable view of the attempt: definition,
// questions without answer data, and the member's answers so far.
func (s *Session) State() *model.AttemptState {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempt := *s.attempt
	attempt.Flagged = s.flaggedSliceLocked()

	state := &model.AttemptState{
		Attempt:   &attempt,
		Questions: make([]model.QuestionForMember, 0, len(s.questions)),
		Answers:   make(map[string]model.AnswerView, len(s.answers)),
	}
	for i := range s.questions {
		state.Questions = append(state.Questions, s.questions[i].ForMember())
	}
	for id, ans := range s.answers {
		state.Answers[id.String()] = model.AnswerView{
			QuestionID:  ans.QuestionID,
			Payload:     ans.Payload,
			TimeSpent:   ans.TimeSpent,
			SubmittedAt: ans.SubmittedAt,
		}
	}
	return state
}

// RecordAnswer evaluates and stores the answer for the question at the
// given presentation index. Re-answering replaces the previous answer.
// A missing client time measurement falls back to the per-question
// clock. The durable save happens in the background; a failure there
// warns the member but never blocks the session.
func (s *Session) RecordAnswer(ctx context.Context, questionIndex int, payload model.AnswerPayload, timeSpent int) (*model.UserAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished || s.attempt.Status.Terminal() {
		return nil, ErrAttemptFinished
	}
	if s.attempt.Status == model.AttemptPaused {
		return nil, ErrAttemptPaused
	}
	if questionIndex < 0 || questionIndex >= len(s.questions) {
		return nil, ErrIndexOutOfRange
	}

	q := s.questions[questionIndex]
	verdict, err := s.deps.Evaluator.Evaluate(ctx, s.keys[q.ID], payload)
	if err != nil {
		return nil, err
	}

	if timeSpent <= 0 && !s.questionShownAt.IsZero() {
		timeSpent = int(s.deps.Clock.Now().Sub(s.questionShownAt).Seconds())
	}

	ans := &model.UserAnswer{
		QuestionID:   q.ID,
		Type:         q.Type,
		Payload:      payload,
		TimeSpent:    timeSpent,
		IsCorrect:    verdict.IsCorrect,
		PointsEarned: verdict.PointsEarned,
		NeedsReview:  verdict.NeedsReview,
		SubmittedAt:  s.deps.Clock.Now(),
	}
	s.answers[q.ID] = ans
	s.saveAnswerAsync(*ans)
	return ans, nil
}

// Advance moves the question pointer one step, clamped to the question
// range. A real move restarts the per-question clock; boundary moves
// are no-ops.
func (s *Session) Advance(delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished || s.attempt.Status.Terminal() {
		return 0, ErrAttemptFinished
	}
	if s.attempt.Status == model.AttemptPaused {
		return 0, ErrAttemptPaused
	}

	next := s.attempt.CurrentIndex + delta
	if next < 0 {
		next = 0
	}
	if next > len(s.questions)-1 {
		next = len(s.questions) - 1
	}
	if next != s.attempt.CurrentIndex {
		s.questionShownAt = s.deps.Clock.Now()
	}
	s.attempt.CurrentIndex = next
	s.saveProgressAsync()
	return next, nil
}

// ToggleFlag flips the review flag on a question. Returns the new flag
// state.
func (s *Session) ToggleFlag(questionIndex int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished || s.attempt.Status.Terminal() {
		return false, ErrAttemptFinished
	}
	if questionIndex < 0 || questionIndex >= len(s.questions) {
		return false, ErrIndexOutOfRange
	}

	if _, ok := s.flagged[questionIndex]; ok {
		delete(s.flagged, questionIndex)
	} else {
		s.flagged[questionIndex] = struct{}{}
	}
	s.attempt.Flagged = s.flaggedSliceLocked()
	s.saveProgressAsync()
	_, nowFlagged := s.flagged[questionIndex]
	return nowFlagged, nil
}

// Pause freezes the countdown. Only practice attempts pause; a
// certification clock never stops.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished || s.attempt.Status.Terminal() {
		return ErrAttemptFinished
	}
	if s.assessment.Mode != model.ModePractice || s.attempt.Status != model.AttemptInProgress {
		return ErrNotPausable
	}

	ok, err := s.deps.Store.SetPaused(ctx, s.attempt.ID, s.attempt.TimeRemaining)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotPausable
	}
	s.stopTimerLocked()
	s.attempt.Status = model.AttemptPaused
	s.attempt.Deadline = nil
	return nil
}

// Resume unfreezes a paused attempt against a fresh deadline computed
// from the stored remaining time.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished || s.attempt.Status.Terminal() {
		return ErrAttemptFinished
	}
	if s.attempt.Status != model.AttemptPaused {
		return ErrNotPaused
	}

	deadline := s.deps.Clock.Now().Add(time.Duration(s.attempt.TimeRemaining) * time.Second)
	ok, err := s.deps.Store.SetResumed(ctx, s.attempt.ID, deadline, s.attempt.TimeRemaining)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotPaused
	}
	s.attempt.Status = model.AttemptInProgress
	s.attempt.Deadline = &deadline
	s.questionShownAt = s.deps.Clock.Now()
	s.stopc = make(chan struct{})
	s.timerStopped = false
	s.startTimerLocked()
	return nil
}

// Submit closes the attempt and runs scoring. Safe to call repeatedly:
// after the first success every later call returns the same result.
func (s *Session) Submit(ctx context.Context, trigger model.SubmitTrigger) (*model.AssessmentResult, error) {
	s.mu.Lock()
	res, err := s.submitLocked(ctx, trigger)
	s.mu.Unlock()

	if err == nil && s.onFinished != nil {
		s.onFinished(s.attempt.ID)
	}
	return res, err
}

func (s *Session) submitLocked(ctx context.Context, trigger model.SubmitTrigger) (*model.AssessmentResult, error) {
	if s.finished {
		return s.result, nil
	}

	s.stopTimerLocked()

	limit := s.assessment.TimeLimitMinutes * 60
	s.attempt.TimeSpent = limit - s.attempt.TimeRemaining
	if s.attempt.TimeSpent < 0 {
		s.attempt.TimeSpent = 0
	}
	answers := make([]model.UserAnswer, 0, len(s.answers))
	for _, ans := range s.answers {
		answers = append(answers, *ans)
	}

	res, err := s.deps.Submitter.Submit(ctx, s.attempt, trigger, answers)
	if err != nil {
		// The status CAS may already have landed; the next submit call
		// or the expiry sweeper picks the pipeline back up.
		return nil, err
	}

	s.finished = true
	s.result = res
	s.attempt.Status = model.AttemptCompleted
	s.attempt.Score = &res.Score
	s.attempt.Percentage = &res.Percentage
	passed := res.Passed
	s.attempt.Passed = &passed
	return res, nil
}

// Exit abandons the live session without submitting. The attempt keeps
// its stored status and can be rejoined later; remaining time keeps
// draining against the deadline.
func (s *Session) Exit(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	if !s.finished && !s.attempt.Status.Terminal() {
		saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.deps.Store.SaveProgress(saveCtx, s.attempt.ID, s.attempt.CurrentIndex, s.attempt.TimeRemaining, s.flaggedSliceLocked()); err != nil {
			s.log.Warn().Err(err).Msg("exit progress save failed")
		}
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Countdown
// ────────────────────────────────────────────────────────────────────────────

func (s *Session) startTimerLocked() {
	s.ticker = s.deps.Clock.Ticker(time.Second)
	go s.runTimer(s.ticker, s.stopc)
}

func (s *Session) runTimer(ticker *clock.Ticker, stopc chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-stopc:
			return
		}
	}
}

// stopTimerLocked tears the countdown down before any terminal or
// paused state is published, so no tick can observe a finished attempt.
func (s *Session) stopTimerLocked() {
	if s.timerStopped {
		return
	}
	s.timerStopped = true
	close(s.stopc)
}

func (s *Session) tick() {
	s.mu.Lock()

	if s.finished || s.attempt.Status != model.AttemptInProgress {
		s.mu.Unlock()
		return
	}

	s.attempt.TimeRemaining--
	if s.attempt.Deadline != nil {
		// The deadline is authoritative: dropped ticks under load must
		// not stretch the attempt.
		if d := int(math.Round(s.deps.Clock.Until(*s.attempt.Deadline).Seconds())); d < s.attempt.TimeRemaining {
			s.attempt.TimeRemaining = d
		}
	}
	if s.attempt.TimeRemaining < 0 {
		s.attempt.TimeRemaining = 0
	}
	remaining := s.attempt.TimeRemaining

	if remaining <= 0 {
		s.stopTimerLocked()
		s.mu.Unlock()
		s.deps.Events.PublishExpired(s.attempt.ID)
		s.forceSubmit()
		return
	}

	if !s.warned && remaining <= s.deps.WarnAfter {
		s.warned = true
		s.deps.Events.PublishWarning(s.attempt.ID, remaining)
	}
	if remaining%TimeSyncInterval == 0 {
		s.deps.Events.PublishTime(s.attempt.ID, remaining)
		s.saveProgressAsync()
	}
	s.mu.Unlock()
}

// forceSubmit runs the timeout submission exactly once, from the timer
// goroutine. An answer typed but never recorded is lost by design of
// the countdown contract.
func (s *Session) forceSubmit() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.mu.Lock()
	res, err := s.submitLocked(ctx, model.TriggerTimeout)
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Msg("timeout submission failed, leaving to sweeper")
		s.deps.Events.PublishScoringPending(s.attempt.ID)
		return
	}
	s.deps.Events.PublishGraded(s.attempt.ID, res)
	if s.onFinished != nil {
		s.onFinished(s.attempt.ID)
	}
}

// ────────────────────────────────────────────────────────────────────────────
// Background persistence
// ────────────────────────────────────────────────────────────────────────────

func (s *Session) saveAnswerAsync(ans model.UserAnswer) {
	attemptID := s.attempt.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Saver.SaveAnswer(ctx, attemptID, ans); err != nil {
			s.log.Warn().Err(err).Str("question_id", ans.QuestionID.String()).Msg("answer save failed")
			s.deps.Events.PublishSaveFailed(attemptID, ans.QuestionID)
		}
	}()
}

func (s *Session) saveProgressAsync() {
	attemptID := s.attempt.ID
	index := s.attempt.CurrentIndex
	remaining := s.attempt.TimeRemaining
	flagged := s.flaggedSliceLocked()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Store.SaveProgress(ctx, attemptID, index, remaining, flagged); err != nil {
			s.log.Warn().Err(err).Msg("progress save failed")
		}
	}()
}

func (s *Session) flaggedSliceLocked() []int {
	out := make([]int, 0, len(s.flagged))
	for idx := range s.flagged {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
