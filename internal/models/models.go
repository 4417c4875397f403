// Package models defines the core data structures for RoutineTimer.
//
// It includes routines, their ordered steps and the request payloads shared across modules.
package models

import (
	"errors"
	"sort"
	"strings"
)

// Validation constants for input validation
const (
	// MaxRoutineNameLength defines the maximum allowed length for a routine name
	MaxRoutineNameLength = 100
	// MaxStepTitleLength defines the maximum allowed length for a step title
	MaxStepTitleLength = 100
	// MaxStepDescriptionLength defines the maximum allowed length for a step description
	MaxStepDescriptionLength = 1000
	// MaxStepDurationMinutes defines the longest single step (one day)
	MaxStepDurationMinutes = 24 * 60
	// MaxStepsPerRoutine defines the maximum number of steps a routine may hold
	MaxStepsPerRoutine = 50
)

// Error variables for better error handling and testability
var (
	ErrEmptyRoutineName       = errors.New("routine name cannot be empty")
	ErrRoutineNameTooLong     = errors.New("routine name exceeds maximum length")
	ErrTooManySteps           = errors.New("too many steps in routine")
	ErrEmptyStepTitle         = errors.New("step title cannot be empty")
	ErrStepTitleTooLong       = errors.New("step title exceeds maximum length")
	ErrStepDescriptionTooLong = errors.New("step description exceeds maximum length")
	ErrInvalidStepDuration    = errors.New("step duration must be between 0 and 1440 minutes")
	ErrInvalidStepIndex       = errors.New("step index must be positive")
	ErrDuplicateStepIndex     = errors.New("step index is used more than once")
	ErrDuplicateStepID        = errors.New("step id is used more than once")
	ErrEmptyRoutineID         = errors.New("routine_id is required")
)

// RoutineStep is one timed unit of a routine.
type RoutineStep struct {
	ID              string `json:"id" yaml:"id,omitempty"`
	Index           int    `json:"index" yaml:"index"` // 1-based position within the routine
	Title           string `json:"title" yaml:"title"`
	Description     string `json:"description" yaml:"description,omitempty"`
	DurationMinutes int    `json:"duration_minutes" yaml:"duration_minutes"`
	IsCompleted     bool   `json:"is_completed" yaml:"-"`
}

// DurationSeconds returns the countdown length for the step.
func (s RoutineStep) DurationSeconds() int {
	return s.DurationMinutes * 60
}

// Validate checks the step's fields.
func (s *RoutineStep) Validate() error {
	if s.Index < 1 {
		return ErrInvalidStepIndex
	}
	return ValidateStepFields(s.Title, s.Description, s.DurationMinutes)
}

// ValidateStepFields checks the editable fields of a step.
func ValidateStepFields(title, description string, durationMinutes int) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyStepTitle
	}
	if len(title) > MaxStepTitleLength {
		return ErrStepTitleTooLong
	}
	if len(description) > MaxStepDescriptionLength {
		return ErrStepDescriptionTooLong
	}
	if durationMinutes < 0 || durationMinutes > MaxStepDurationMinutes {
		return ErrInvalidStepDuration
	}
	return nil
}

// Routine is a named, ordered sequence of steps.
type Routine struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StepCount int    `json:"step_count"` // maintained by the store
}

// ValidateRoutine checks a routine name together with the steps it is created with.
func ValidateRoutine(name string, steps []RoutineStep) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyRoutineName
	}
	if len(name) > MaxRoutineNameLength {
		return ErrRoutineNameTooLong
	}
	if len(steps) > MaxStepsPerRoutine {
		return ErrTooManySteps
	}

	for i := range steps {
		if err := steps[i].Validate(); err != nil {
			return err
		}
	}
	return CheckStepKeys(steps)
}

// CheckStepKeys rejects steps that share an index or a non-empty id.
func CheckStepKeys(steps []RoutineStep) error {
	indices := make(map[int]struct{}, len(steps))
	ids := make(map[string]struct{}, len(steps))
	for _, st := range steps {
		if _, dup := indices[st.Index]; dup {
			return ErrDuplicateStepIndex
		}
		indices[st.Index] = struct{}{}
		if st.ID == "" {
			continue
		}
		if _, dup := ids[st.ID]; dup {
			return ErrDuplicateStepID
		}
		ids[st.ID] = struct{}{}
	}
	return nil
}

// SortSteps orders steps ascending by index in place.
func SortSteps(steps []RoutineStep) {
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Index < steps[j].Index
	})
}

// CreateRoutineRequest represents the payload for creating a routine with its steps.
type CreateRoutineRequest struct {
	Name  string        `json:"name"`
	Steps []RoutineStep `json:"steps"`
}

// Validate validates a CreateRoutineRequest.
func (r *CreateRoutineRequest) Validate() error {
	return ValidateRoutine(r.Name, r.Steps)
}

// EditStepRequest represents the payload for editing a persisted step.
type EditStepRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Validate validates an EditStepRequest.
func (r *EditStepRequest) Validate() error {
	return ValidateStepFields(r.Title, r.Description, r.DurationMinutes)
}

// SelectRoutineRequest represents the payload for selecting a routine in a session.
type SelectRoutineRequest struct {
	RoutineID string `json:"routine_id"`
}

// Validate validates a SelectRoutineRequest.
func (r *SelectRoutineRequest) Validate() error {
	if strings.TrimSpace(r.RoutineID) == "" {
		return ErrEmptyRoutineID
	}
	return nil
}
