package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/BTreeMap/RoutineTimer/internal/models"
	"github.com/BTreeMap/RoutineTimer/internal/routine"
	"github.com/BTreeMap/RoutineTimer/internal/store"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing routine", &store.LoadError{Op: "steps", Err: store.ErrNotFound}, http.StatusNotFound},
		{"taken routine id", &store.SaveError{Op: "add routine", Err: store.ErrAlreadyExists}, http.StatusConflict},
		{"timer running", fmt.Errorf("edit: %w", routine.ErrStateInvariantViolation), http.StatusConflict},
		{"duplicate step id", &store.SaveError{Op: "add routine", Err: models.ErrDuplicateStepID}, http.StatusBadRequest},
		{"duplicate step index", models.ErrDuplicateStepIndex, http.StatusBadRequest},
		{"negative value", routine.ErrNegativeValue, http.StatusBadRequest},
		{"driver failure", &store.SaveError{Op: "add routine", Err: errors.New("disk full")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
