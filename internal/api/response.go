// Package api provides HTTP response utilities for RoutineTimer.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/RoutineTimer/internal/models"
	"github.com/BTreeMap/RoutineTimer/internal/routine"
	"github.com/BTreeMap/RoutineTimer/internal/store"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so encoding errors surface before headers are written
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// statusForError maps domain errors onto HTTP status codes. Store failures other
// than a missing or already taken row are 500s.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, routine.ErrStateInvariantViolation), errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, routine.ErrNegativeValue), isValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		models.ErrEmptyRoutineName, models.ErrRoutineNameTooLong, models.ErrTooManySteps,
		models.ErrEmptyStepTitle, models.ErrStepTitleTooLong, models.ErrStepDescriptionTooLong,
		models.ErrInvalidStepDuration, models.ErrInvalidStepIndex, models.ErrDuplicateStepIndex,
		models.ErrDuplicateStepID, models.ErrEmptyRoutineID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// writeError logs err and writes it with the mapped status.
func writeError(w http.ResponseWriter, handler string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Server."+handler+": request failed", "error", err)
		writeJSONResponse(w, status, models.Error("Internal server error"))
		return
	}
	slog.Warn("Server."+handler+": request rejected", "error", err, "status", status)
	writeJSONResponse(w, status, models.Error(err.Error()))
}
