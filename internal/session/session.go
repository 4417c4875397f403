// Package session owns the routine engines of the users currently walking a routine.
//
// Each user gets at most one engine. The Manager loads steps from the RoutineStore
// before touching an engine, so store failures never leave an engine half-updated.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/RoutineTimer/internal/clock"
	"github.com/BTreeMap/RoutineTimer/internal/models"
	"github.com/BTreeMap/RoutineTimer/internal/routine"
	"github.com/BTreeMap/RoutineTimer/internal/store"
)

// Snapshot is the engine state together with the routine it belongs to.
type Snapshot struct {
	UserID    string        `json:"user_id"`
	RoutineID string        `json:"routine_id,omitempty"`
	State     routine.State `json:"state"`
}

// session pairs one user's engine with the routine it was last given.
type session struct {
	mu        sync.Mutex // serialises the controlling caller
	engine    *routine.Engine
	routineID string
	lastUsed  time.Time // guarded by Manager.mu
}

// Manager maps users to their sessions.
type Manager struct {
	store    store.RoutineStore
	clock    clock.Clock
	observer func(userID string, ev routine.Event)
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// Option configures a Manager.
type Option func(*Manager)

// WithEventHook receives every engine event, tagged with the user it belongs to.
// The hook must not call back into the Manager synchronously.
func WithEventHook(fn func(userID string, ev routine.Event)) Option {
	return func(m *Manager) {
		m.observer = fn
	}
}

// WithNow overrides the wall clock used for idle tracking.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager backed by st whose engines tick on c.
func NewManager(st store.RoutineStore, c clock.Clock, opts ...Option) *Manager {
	m := &Manager{
		store:    st,
		clock:    c,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) get(userID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		s = &session{}
		s.engine = routine.NewEngine(m.clock, routine.WithObserver(func(ev routine.Event) {
			m.onEvent(userID, ev)
		}))
		m.sessions[userID] = s
	}
	s.lastUsed = m.now()
	return s
}

func (m *Manager) onEvent(userID string, ev routine.Event) {
	switch ev.Type {
	case routine.EventTick:
	case routine.EventStepElapsed:
		slog.Info("Session step time elapsed", "userID", userID, "step", ev.StepIndex)
	case routine.EventRoutineComplete:
		slog.Info("Session routine complete", "userID", userID)
	default:
		slog.Debug("Session event", "userID", userID, "type", ev.Type, "step", ev.StepIndex, "remaining", ev.RemainingSeconds)
	}
	if m.observer != nil {
		m.observer(userID, ev)
	}
}

func (s *session) snapshot(userID string) Snapshot {
	return Snapshot{UserID: userID, RoutineID: s.routineID, State: s.engine.Snapshot()}
}

// Select loads the routine's steps and hands them to the user's engine.
func (m *Manager) Select(ctx context.Context, userID, routineID string) (Snapshot, error) {
	steps, err := m.store.FetchSteps(ctx, userID, routineID)
	if err != nil {
		slog.Warn("Manager.Select: failed to load steps", "error", err, "userID", userID, "routineID", routineID)
		return Snapshot{}, err
	}

	s := m.get(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.SelectRoutine(steps)
	s.routineID = routineID
	slog.Info("Manager.Select: routine selected", "userID", userID, "routineID", routineID, "steps", len(steps))
	return s.snapshot(userID), nil
}

// Restart reselects the user's current routine from a fresh copy of its steps.
func (m *Manager) Restart(ctx context.Context, userID string) (Snapshot, error) {
	s := m.get(userID)
	s.mu.Lock()
	routineID := s.routineID
	s.mu.Unlock()

	if routineID == "" {
		return Snapshot{}, routine.ErrNoRoutineSelected
	}
	return m.Select(ctx, userID, routineID)
}

// Deselect returns the user to the routine list.
func (m *Manager) Deselect(userID string) Snapshot {
	s := m.get(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.DeselectRoutine()
	s.routineID = ""
	return s.snapshot(userID)
}

// State returns the user's current snapshot.
func (m *Manager) State(userID string) Snapshot {
	s := m.get(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(userID)
}

// Start starts the countdown of the current step.
func (m *Manager) Start(userID string) (Snapshot, error) {
	return m.apply(userID, func(e *routine.Engine) error { return e.StartTimer() })
}

// Stop pauses the countdown.
func (m *Manager) Stop(userID string) Snapshot {
	snap, _ := m.apply(userID, func(e *routine.Engine) error { e.StopTimer(); return nil })
	return snap
}

// Reset stops the countdown and zeroes it.
func (m *Manager) Reset(userID string) Snapshot {
	snap, _ := m.apply(userID, func(e *routine.Engine) error { e.ResetTimer(); return nil })
	return snap
}

// Advance moves to the next step without marking the current one completed.
func (m *Manager) Advance(userID string) (Snapshot, error) {
	return m.apply(userID, func(e *routine.Engine) error { return e.AdvanceStep() })
}

// CompleteStep marks the current step completed and advances past it.
func (m *Manager) CompleteStep(userID string) (Snapshot, error) {
	return m.apply(userID, func(e *routine.Engine) error {
		idx := e.Snapshot().CurrentStepIndex
		if err := e.MarkStepCompleted(idx); err != nil {
			if errors.Is(err, routine.ErrIndexOutOfRange) {
				return routine.ErrRoutineComplete
			}
			return err
		}
		return e.AdvanceStep()
	})
}

// EditStep persists a step edit and then refreshes the engine. When the edited step is
// the current one its countdown is reseeded and the timer stopped.
func (m *Manager) EditStep(ctx context.Context, userID, routineID, stepID string, req models.EditStepRequest) (Snapshot, error) {
	if err := req.Validate(); err != nil {
		return Snapshot{}, err
	}
	if err := m.store.PersistStepEdit(ctx, userID, routineID, stepID, req.Title, req.Description, req.DurationMinutes); err != nil {
		slog.Warn("Manager.EditStep: persist failed", "error", err, "userID", userID, "stepID", stepID)
		return Snapshot{}, err
	}

	s := m.get(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routineID != routineID {
		return s.snapshot(userID), nil
	}
	if s.engine.ApplyStepEdit(stepID, req.Title, req.Description, req.DurationMinutes) {
		if err := s.engine.EditCurrentStepDuration(req.DurationMinutes); err != nil {
			return Snapshot{}, fmt.Errorf("apply edit to step %s: %w", stepID, err)
		}
	}
	return s.snapshot(userID), nil
}

// Forget drops the user's session, e.g. when the routine it shows was deleted.
func (m *Manager) Forget(userID, routineID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routineID == routineID {
		s.engine.DeselectRoutine()
		s.routineID = ""
	}
}

// EvictIdle drops sessions that have not been used for longer than maxIdle and whose
// timer is not running. Sessions busy with a request are left alone. It returns how
// many sessions were evicted. A non-positive maxIdle evicts nothing.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		slog.Warn("Manager.EvictIdle: ignoring non-positive idle TTL", "maxIdle", maxIdle)
		return 0
	}
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for userID, s := range m.sessions {
		if s.lastUsed.After(cutoff) || !s.mu.TryLock() {
			continue
		}
		if s.engine.Snapshot().TimerRunning {
			s.mu.Unlock()
			continue
		}
		s.engine.DeselectRoutine()
		s.routineID = ""
		delete(m.sessions, userID)
		s.mu.Unlock()
		evicted++
		slog.Debug("Manager.EvictIdle: session evicted", "userID", userID, "lastUsed", s.lastUsed)
	}
	if evicted > 0 {
		slog.Info("Manager.EvictIdle: idle sessions evicted", "count", evicted, "remaining", len(m.sessions))
	}
	return evicted
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops every engine.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		s.engine.DeselectRoutine()
		s.mu.Unlock()
	}
	slog.Info("Session manager closed", "sessions", len(sessions))
}

func (m *Manager) apply(userID string, fn func(*routine.Engine) error) (Snapshot, error) {
	s := m.get(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.engine); err != nil {
		return s.snapshot(userID), err
	}
	return s.snapshot(userID), nil
}
