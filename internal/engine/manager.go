package engine

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/datacomunidad/assess-backend/internal/grading"
	"github.com/datacomunidad/assess-backend/internal/model"
)

// Deps carries everything a session needs to run. The manager hands the
// same set to every session it starts.
type Deps struct {
	Store     ProgressStore
	Saver     AnswerSaver
	Submitter Submitter
	Events    EventSink
	Evaluator grading.Evaluator
	Clock     clock.Clock
	Log       zerolog.Logger

	// WarnAfter is the countdown threshold, in seconds, at which the
	// one-shot time warning fires.
	WarnAfter int
}

// Manager tracks the live sessions on this instance. One session per
// attempt; a second attach returns the session already running.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	deps     Deps
}

func NewManager(deps Deps) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.WarnAfter <= 0 {
		deps.WarnAfter = 300
	}
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		deps:     deps,
	}
}

// Start builds a session from stored state and begins its countdown.
// Answers are the durable answers recorded before a reconnect; they
// rehydrate the in-memory set so a rejoined member sees their work.
func (m *Manager) Start(attempt *model.Attempt, assessment *model.Assessment, questions []model.Question, answers []model.UserAnswer) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[attempt.ID]; ok {
		return existing, nil
	}

	s, err := newSession(attempt, assessment, questions, answers, m.deps, m.deps.Log)
	if err != nil {
		return nil, err
	}
	s.onFinished = m.Remove
	m.sessions[attempt.ID] = s
	s.start()
	return s, nil
}

// Get returns the live session for an attempt, if this instance holds
// one.
func (m *Manager) Get(attemptID uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[attemptID]
	return s, ok
}

// Remove detaches a session from the registry. The session itself is
// expected to have stopped its countdown already.
func (m *Manager) Remove(attemptID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, attemptID)
}

// ActiveCount reports how many sessions are live, for metrics.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown freezes every live session and persists its progress so a
// restarted instance can pick the attempts back up from storage.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Exit(ctx)
	}
	m.deps.Log.Info().Int("sessions", len(sessions)).Msg("session manager drained")
}

// ResumeDeadline recomputes the countdown for an attempt loaded from
// storage. Paused attempts keep their frozen remaining time; running
// attempts drain against the stored deadline, floored at zero.
func ResumeDeadline(clk clock.Clock, attempt *model.Attempt) int {
	if attempt.Status == model.AttemptPaused || attempt.Deadline == nil {
		return attempt.TimeRemaining
	}
	remaining := int(clk.Until(*attempt.Deadline).Round(time.Second).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
