// Package routine drives a single selected routine through its steps.
//
// The Engine owns the step cursor, the countdown for the current step and the
// timer that feeds it. Reaching zero stops the timer and reports EventStepElapsed;
// moving on to the next step is always an explicit AdvanceStep call.
package routine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/RoutineTimer/internal/clock"
	"github.com/BTreeMap/RoutineTimer/internal/models"
)

// DefaultTickInterval is the countdown resolution.
const DefaultTickInterval = time.Second

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers a callback for engine events.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithTickInterval overrides the one second tick, mostly for tests against a real clock.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tickInterval = d
		}
	}
}

// Engine is the routine progress state machine. It expects a single controlling
// caller; the mutex only serialises that caller against the clock goroutine.
type Engine struct {
	mu           sync.Mutex
	clock        clock.Clock
	observer     Observer
	tickInterval time.Duration

	selected  bool
	steps     []models.RoutineStep
	current   int
	remaining int
	running   bool

	ticker clock.Ticker
	// generation identifies the live timer lifetime; ticks from older lifetimes are dropped.
	generation uint64
}

// NewEngine creates an idle engine that ticks on c.
func NewEngine(c clock.Clock, opts ...Option) *Engine {
	e := &Engine{
		clock:        c,
		tickInterval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SelectRoutine replaces any previous state with steps, which must already be
// sorted by index. An empty list is valid and is immediately terminal.
func (e *Engine) SelectRoutine(steps []models.RoutineStep) {
	e.mu.Lock()
	e.cancelTickerLocked()
	e.selected = true
	e.steps = append([]models.RoutineStep(nil), steps...)
	e.current = 0
	e.running = false
	e.remaining = 0
	if len(e.steps) > 0 {
		e.remaining = e.steps[0].DurationSeconds()
	}
	slog.Debug("Engine.SelectRoutine", "steps", len(e.steps), "remaining", e.remaining)
	e.mu.Unlock()
}

// DeselectRoutine resets the engine to idle and forgets the steps.
func (e *Engine) DeselectRoutine() {
	e.mu.Lock()
	e.cancelTickerLocked()
	e.selected = false
	e.steps = nil
	e.current = 0
	e.remaining = 0
	e.running = false
	slog.Debug("Engine.DeselectRoutine")
	e.mu.Unlock()
}

// StartTimer starts the countdown for the current step. A zero remaining count is
// reseeded from the step's duration first. Starting a running timer is a no-op.
func (e *Engine) StartTimer() error {
	e.mu.Lock()
	if err := e.requireCurrentLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.running {
		e.mu.Unlock()
		return nil
	}
	if e.remaining == 0 {
		e.remaining = e.steps[e.current].DurationSeconds()
	}
	if e.remaining == 0 {
		// Zero-length step: nothing to count down.
		ev := Event{Type: EventStepElapsed, StepIndex: e.current}
		e.mu.Unlock()
		e.emit(ev)
		return nil
	}

	e.generation++
	gen := e.generation
	e.running = true
	e.ticker = e.clock.Every(e.tickInterval, func() { e.tick(gen) })
	ev := Event{Type: EventTimerStarted, StepIndex: e.current, RemainingSeconds: e.remaining}
	slog.Debug("Engine.StartTimer", "step", e.current, "remaining", e.remaining)
	e.mu.Unlock()

	e.emit(ev)
	return nil
}

// StopTimer pauses the countdown, keeping the remaining seconds.
func (e *Engine) StopTimer() {
	e.mu.Lock()
	if !e.running {
		e.cancelTickerLocked()
		e.mu.Unlock()
		return
	}
	e.cancelTickerLocked()
	e.running = false
	ev := Event{Type: EventTimerStopped, StepIndex: e.current, RemainingSeconds: e.remaining}
	e.mu.Unlock()

	e.emit(ev)
}

// ResetTimer stops the countdown and zeroes the remaining seconds.
func (e *Engine) ResetTimer() {
	e.mu.Lock()
	wasRunning := e.running
	e.cancelTickerLocked()
	e.running = false
	e.remaining = 0
	ev := Event{Type: EventTimerStopped, StepIndex: e.current}
	e.mu.Unlock()

	if wasRunning {
		e.emit(ev)
	}
}

// SetRemainingSeconds seeds the countdown directly without touching the running flag.
func (e *Engine) SetRemainingSeconds(v int) error {
	if v < 0 {
		return fmt.Errorf("set remaining seconds %d: %w", v, ErrNegativeValue)
	}
	e.mu.Lock()
	e.remaining = v
	e.mu.Unlock()
	return nil
}

// MarkStepCompleted flags steps[index] as completed and stops the timer.
func (e *Engine) MarkStepCompleted(index int) error {
	e.mu.Lock()
	if !e.selected {
		e.mu.Unlock()
		return ErrNoRoutineSelected
	}
	if index < 0 || index >= len(e.steps) {
		n := len(e.steps)
		e.mu.Unlock()
		return fmt.Errorf("mark step %d of %d completed: %w", index, n, ErrIndexOutOfRange)
	}
	wasRunning := e.running
	e.cancelTickerLocked()
	e.running = false
	e.steps[index].IsCompleted = true
	ev := Event{Type: EventTimerStopped, StepIndex: e.current, RemainingSeconds: e.remaining}
	e.mu.Unlock()

	if wasRunning {
		e.emit(ev)
	}
	return nil
}

// AdvanceStep moves the cursor to the next step and seeds its countdown with the
// timer stopped. From the last step it moves to len(steps), the terminal state.
func (e *Engine) AdvanceStep() error {
	e.mu.Lock()
	if err := e.requireCurrentLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.cancelTickerLocked()
	e.running = false

	var ev Event
	if e.current < len(e.steps)-1 {
		e.current++
		e.remaining = e.steps[e.current].DurationSeconds()
		ev = Event{Type: EventStepAdvanced, StepIndex: e.current, RemainingSeconds: e.remaining}
	} else {
		e.current = len(e.steps)
		e.remaining = 0
		ev = Event{Type: EventRoutineComplete, StepIndex: e.current}
	}
	slog.Debug("Engine.AdvanceStep", "current", e.current, "steps", len(e.steps))
	e.mu.Unlock()

	e.emit(ev)
	return nil
}

// EditCurrentStepDuration applies a persisted duration change to the current step:
// the countdown is reseeded to minutes*60 and the timer is force-stopped.
func (e *Engine) EditCurrentStepDuration(minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("edit step duration %d: %w", minutes, ErrNegativeValue)
	}
	e.mu.Lock()
	if err := e.requireCurrentLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	wasRunning := e.running
	e.cancelTickerLocked()
	e.running = false
	e.steps[e.current].DurationMinutes = minutes
	e.remaining = minutes * 60
	ev := Event{Type: EventTimerStopped, StepIndex: e.current, RemainingSeconds: e.remaining}
	e.mu.Unlock()

	if wasRunning {
		e.emit(ev)
	}
	return nil
}

// ApplyStepEdit refreshes the cached copy of a step after it was edited in the store.
// It reports whether the edited step is the current one. The countdown is not touched.
func (e *Engine) ApplyStepEdit(stepID, title, description string, minutes int) (isCurrent bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.steps {
		if e.steps[i].ID != stepID {
			continue
		}
		e.steps[i].Title = title
		e.steps[i].Description = description
		if i != e.current {
			e.steps[i].DurationMinutes = minutes
		}
		return i == e.current
	}
	return false
}

// CurrentStep returns the step under the cursor.
func (e *Engine) CurrentStep() (models.RoutineStep, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireCurrentLocked(); err != nil {
		return models.RoutineStep{}, err
	}
	return e.steps[e.current], nil
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := State{
		Steps:            append([]models.RoutineStep{}, e.steps...),
		CurrentStepIndex: e.current,
		RemainingSeconds: e.remaining,
		TimerRunning:     e.running,
	}
	switch {
	case !e.selected:
		s.Phase = PhaseIdle
	case e.current >= len(e.steps):
		s.Phase = PhaseRoutineComplete
	default:
		s.Phase = PhaseStepActive
	}
	return s
}

// tick handles one clock callback for timer lifetime gen.
func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	if gen != e.generation || !e.running {
		e.mu.Unlock()
		return
	}
	if e.remaining > 0 {
		e.remaining--
	}
	events := []Event{{Type: EventTick, StepIndex: e.current, RemainingSeconds: e.remaining}}
	if e.remaining == 0 {
		e.cancelTickerLocked()
		e.running = false
		events = append(events, Event{Type: EventStepElapsed, StepIndex: e.current})
		slog.Debug("Engine step time elapsed", "step", e.current)
	}
	e.mu.Unlock()

	for _, ev := range events {
		e.emit(ev)
	}
}

// requireCurrentLocked fails unless the cursor addresses a step.
func (e *Engine) requireCurrentLocked() error {
	if !e.selected {
		return ErrNoRoutineSelected
	}
	if e.current >= len(e.steps) {
		return ErrRoutineComplete
	}
	return nil
}

// cancelTickerLocked stops the live ticker, if any, and retires its generation.
func (e *Engine) cancelTickerLocked() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
	e.generation++
}

func (e *Engine) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}
