// Package api provides HTTP handlers for RoutineTimer endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/BTreeMap/RoutineTimer/internal/models"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "routinetimer"}))
}

func (s *Server) listRoutinesHandler(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user"]
	routines, err := s.store.FetchRoutines(r.Context(), userID)
	if err != nil {
		writeError(w, "listRoutinesHandler", err)
		return
	}
	slog.Debug("Server.listRoutinesHandler: routines fetched", "userID", userID, "count", len(routines))
	writeJSONResponse(w, http.StatusOK, models.Success(routines))
}

func (s *Server) createRoutineHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	userID := mux.Vars(r)["user"]

	var req models.CreateRoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createRoutineHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.createRoutineHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	saved, err := s.store.AddRoutine(r.Context(), userID, models.Routine{Name: req.Name}, req.Steps)
	if err != nil {
		writeError(w, "createRoutineHandler", err)
		return
	}
	slog.Info("Server.createRoutineHandler: routine created", "userID", userID, "routineID", saved.ID, "steps", saved.StepCount)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Routine created", saved))
}

func (s *Server) deleteRoutineHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, routineID := vars["user"], vars["routine"]

	if err := s.store.DeleteRoutine(r.Context(), userID, routineID); err != nil {
		writeError(w, "deleteRoutineHandler", err)
		return
	}
	s.sessions.Forget(userID, routineID)
	slog.Info("Server.deleteRoutineHandler: routine deleted", "userID", userID, "routineID", routineID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Routine deleted", nil))
}

func (s *Server) listStepsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	steps, err := s.store.FetchSteps(r.Context(), vars["user"], vars["routine"])
	if err != nil {
		writeError(w, "listStepsHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(steps))
}

func (s *Server) editStepHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	vars := mux.Vars(r)

	var req models.EditStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.editStepHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	snap, err := s.sessions.EditStep(r.Context(), vars["user"], vars["routine"], vars["step"], req)
	if err != nil {
		writeError(w, "editStepHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Step updated", snap))
}
