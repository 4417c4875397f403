// Package api provides HTTP handlers for routine session control.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/BTreeMap/RoutineTimer/internal/models"
	"github.com/BTreeMap/RoutineTimer/internal/session"
)

func (s *Server) sessionStateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.sessions.State(mux.Vars(r)["user"])))
}

func (s *Server) sessionSelectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	userID := mux.Vars(r)["user"]

	var req models.SelectRoutineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sessionSelectHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	snap, err := s.sessions.Select(r.Context(), userID, req.RoutineID)
	if err != nil {
		writeError(w, "sessionSelectHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(snap))
}

func (s *Server) sessionActionHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, action := vars["user"], vars["action"]
	slog.Debug("Server.sessionActionHandler: processing action", "userID", userID, "action", action)

	var (
		snap session.Snapshot
		err  error
	)
	switch action {
	case "deselect":
		snap = s.sessions.Deselect(userID)
	case "restart":
		snap, err = s.sessions.Restart(r.Context(), userID)
	case "start":
		snap, err = s.sessions.Start(userID)
	case "stop":
		snap = s.sessions.Stop(userID)
	case "reset":
		snap = s.sessions.Reset(userID)
	case "complete":
		snap, err = s.sessions.CompleteStep(userID)
	case "advance":
		snap, err = s.sessions.Advance(userID)
	default:
		writeJSONResponse(w, http.StatusNotFound, models.Error("unknown session action"))
		return
	}
	if err != nil {
		writeError(w, "sessionActionHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(snap))
}
