package routine

import (
	"errors"
	"fmt"
)

// ErrStateInvariantViolation is the parent of every error caused by a caller
// driving the engine outside its documented states.
var ErrStateInvariantViolation = errors.New("routine state invariant violation")

var (
	// ErrIndexOutOfRange is returned when a step index does not address a step of the selected routine.
	ErrIndexOutOfRange = fmt.Errorf("%w: step index out of range", ErrStateInvariantViolation)
	// ErrRoutineComplete is returned when an operation needs a current step but every step has been advanced past.
	ErrRoutineComplete = fmt.Errorf("%w: routine already complete", ErrStateInvariantViolation)
	// ErrNoRoutineSelected is returned when an operation needs a selected routine.
	ErrNoRoutineSelected = fmt.Errorf("%w: no routine selected", ErrStateInvariantViolation)
)

// ErrNegativeValue is returned when a countdown seed or duration is below zero.
var ErrNegativeValue = errors.New("value must be non-negative")
