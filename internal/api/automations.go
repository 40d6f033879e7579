package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/flowline-core/internal/automation"
)

// maxQueryParamLen limits query parameter length to prevent DoS via oversized URL params.
const maxQueryParamLen = 100

// createResponse is returned by POST /automations.
type createResponse struct {
	Automation *automation.Automation `json:"automation"`
	Warnings   []string               `json:"warnings,omitempty"`
}

// runResponse wraps a run started through the API. Persisted is false when
// the run completed but could not be saved.
type runResponse struct {
	Run       *automation.Run `json:"run"`
	Persisted bool            `json:"persisted"`
}

// statusRequest is the body of PUT /automations/{id}/status.
type statusRequest struct {
	Status automation.Status `json:"status"`
}

// triggerRequest is the optional body of POST /automations/{id}/run.
type triggerRequest struct {
	Data map[string]any `json:"data"`
}

// handleListAutomations returns all automations.
//
// Query parameters:
//   - owner_id: filter by owner
func (s *Server) handleListAutomations(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if len(ownerID) > maxQueryParamLen {
		writeBadRequest(w, "owner_id exceeds maximum length")
		return
	}

	automations, err := s.engine.ListAutomations(r.Context(), ownerID)
	if err != nil {
		s.logger.Error("listing automations failed", "error", err)
		writeInternalError(w, "failed to list automations")
		return
	}
	if automations == nil {
		automations = []automation.Automation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"automations": automations, "count": len(automations)})
}

// handleGetAutomation returns a single automation by ID.
func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := automationID(w, r)
	if !ok {
		return
	}

	a, err := s.engine.GetAutomation(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err, "failed to get automation")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleCreateAutomation validates, persists and registers an automation.
// Cron diagnostics are returned as warnings; they never block creation.
func (s *Server) handleCreateAutomation(w http.ResponseWriter, r *http.Request) {
	var a automation.Automation
	if !decodeBody(w, r, &a, false) {
		return
	}

	if err := s.engine.CreateAutomation(r.Context(), &a); err != nil {
		s.writeEngineError(w, err, "failed to create automation")
		return
	}

	writeJSON(w, http.StatusCreated, createResponse{
		Automation: &a,
		Warnings:   automation.Diagnostics(&a, s.engine.Scheduler().Mode()),
	})
}

// handleDeleteAutomation removes an automation.
func (s *Server) handleDeleteAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := automationID(w, r)
	if !ok {
		return
	}

	if err := s.engine.DeleteAutomation(r.Context(), id); err != nil {
		s.writeEngineError(w, err, "failed to delete automation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetStatus changes an automation's lifecycle status.
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := automationID(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	if err := s.engine.SetStatus(r.Context(), id, req.Status); err != nil {
		s.writeEngineError(w, err, "failed to set status")
		return
	}

	a, err := s.engine.GetAutomation(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err, "failed to get automation")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleRunAutomation runs an automation now with the optional body data
// as trigger data.
func (s *Server) handleRunAutomation(w http.ResponseWriter, r *http.Request) {
	id, ok := automationID(w, r)
	if !ok {
		return
	}

	var req triggerRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	run, err := s.engine.RunNow(r.Context(), id, req.Data)
	s.writeRun(w, run, err)
}

// handleListRuns returns recent runs for an automation.
//
// Query parameters:
//   - limit: maximum runs to return (1..100, default 20)
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := automationID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if _, err := s.engine.GetAutomation(r.Context(), id); err != nil {
		s.writeEngineError(w, err, "failed to get automation")
		return
	}

	runs, err := s.engine.ListRuns(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("listing runs failed", "automation_id", id, "error", err)
		writeInternalError(w, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []automation.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// automationID reads and bounds the {id} URL parameter.
func automationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid automation ID")
		return "", false
	}
	return id, true
}

// writeRun writes the outcome of a run started through the API.
func (s *Server) writeRun(w http.ResponseWriter, run *automation.Run, err error) {
	if run == nil {
		s.writeEngineError(w, err, "failed to run automation")
		return
	}
	if err != nil {
		s.logger.Error("run completed but was not persisted", "run_id", run.ID, "error", err)
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Persisted: err == nil})
}

// writeEngineError maps engine sentinel errors to HTTP responses.
func (s *Server) writeEngineError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, automation.ErrNotFound):
		writeNotFound(w, "automation not found")
	case errors.Is(err, automation.ErrExists):
		writeConflict(w, "automation already exists")
	case errors.Is(err, automation.ErrTriggerMismatch):
		writeConflict(w, err.Error())
	case errors.Is(err, automation.ErrInvalidAutomation),
		errors.Is(err, automation.ErrInvalidName),
		errors.Is(err, automation.ErrInvalidTrigger),
		errors.Is(err, automation.ErrInvalidAction),
		errors.Is(err, automation.ErrInvalidStatus):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
