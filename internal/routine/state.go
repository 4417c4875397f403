package routine

import "github.com/BTreeMap/RoutineTimer/internal/models"

// Phase is the outer state of the engine.
type Phase string

const (
	// PhaseIdle means no routine is selected.
	PhaseIdle Phase = "idle"
	// PhaseStepActive means the cursor points at a step of the selected routine.
	PhaseStepActive Phase = "step_active"
	// PhaseRoutineComplete means every step has been advanced past.
	PhaseRoutineComplete Phase = "routine_complete"
)

// State is a point-in-time copy of the engine state.
type State struct {
	Phase            Phase                `json:"phase"`
	Steps            []models.RoutineStep `json:"steps"`
	CurrentStepIndex int                  `json:"current_step_index"`
	RemainingSeconds int                  `json:"remaining_seconds"`
	TimerRunning     bool                 `json:"timer_running"`
}

// Finished reports whether the state is terminal (CurrentStepIndex == len(Steps)).
func (s State) Finished() bool {
	return s.Phase == PhaseRoutineComplete
}

// CompletedCount returns how many steps are flagged completed.
func (s State) CompletedCount() int {
	n := 0
	for _, step := range s.Steps {
		if step.IsCompleted {
			n++
		}
	}
	return n
}

// EventType names a change reported to an Observer.
type EventType string

const (
	EventTick            EventType = "tick"
	EventStepElapsed     EventType = "step_elapsed"
	EventTimerStarted    EventType = "timer_started"
	EventTimerStopped    EventType = "timer_stopped"
	EventStepAdvanced    EventType = "step_advanced"
	EventRoutineComplete EventType = "routine_complete"
)

// Event is delivered to the Observer after the engine lock is released.
type Event struct {
	Type             EventType `json:"type"`
	StepIndex        int       `json:"step_index"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// Observer receives engine events. It may call back into the engine.
type Observer func(Event)
