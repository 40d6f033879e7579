package api

import (
	"net/http"
	"strings"

	"github.com/nerrad567/flowline-core/internal/automation"
)

// eventRequest is the body of POST /events.
type eventRequest struct {
	EventName string         `json:"event_name"`
	Data      map[string]any `json:"data"`
	UserID    string         `json:"user_id"`
}

// evaluateRequest is the body of POST /expressions/evaluate.
type evaluateRequest struct {
	Expression string         `json:"expression"`
	Context    map[string]any `json:"context"`
}

// handleEmitEvent emits an event to every matching automation and returns
// one run per automation that fired.
func (s *Server) handleEmitEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if strings.TrimSpace(req.EventName) == "" {
		writeBadRequest(w, "event_name is required")
		return
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}

	runs, err := s.engine.EmitEvent(r.Context(), req.EventName, req.Data, req.UserID)
	if err != nil {
		s.logger.Error("event runs not fully persisted", "event", req.EventName, "error", err)
	}
	if runs == nil {
		runs = []*automation.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"event_name": req.EventName,
		"runs":       runs,
		"count":      len(runs),
		"persisted":  err == nil,
	})
}

// handleWebhook runs a webhook-triggered automation with the request body
// as trigger data. A JSON object body is used as-is; an empty body gives
// empty trigger data.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	id, ok := automationID(w, r)
	if !ok {
		return
	}

	data := map[string]any{}
	if !decodeBody(w, r, &data, true) {
		return
	}

	run, err := s.engine.HandleWebhook(r.Context(), id, data)
	s.writeRun(w, run, err)
}

// handleEvaluate evaluates an expression against a context. Evaluation
// failures yield false, exactly as in run_if guards.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if req.Context == nil {
		req.Context = map[string]any{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"expression": req.Expression,
		"result":     s.engine.Evaluate(req.Expression, req.Context),
	})
}
