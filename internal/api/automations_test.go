package api

import (
	"net/http"
	"testing"

	"github.com/nerrad567/flowline-core/internal/automation"
)

const manualAutomation = `{
	"id": "auto-manual",
	"name": "Escalate ticket",
	"owner_id": "u-1",
	"scope": "support",
	"trigger": {"type": "manual"},
	"actions": [
		{"id": "n1", "type": "notify", "config": {"message": "hi"}},
		{"id": "n2", "type": "notify", "run_if": "ticket.priority == 'high'"}
	]
}`

const webhookAutomation = `{
	"id": "auto-hook",
	"name": "Inbound order",
	"owner_id": "u-1",
	"trigger": {"type": "webhook"},
	"actions": [{"id": "n1", "type": "notify"}]
}`

func createAutomation(t *testing.T, h http.Handler, body string) {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/api/v1/automations", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCreateAutomation(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	rec := doRequest(t, router, http.MethodPost, "/api/v1/automations", manualAutomation)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp createResponse
	decodeJSON(t, rec, &resp)
	if resp.Automation.Status != automation.StatusActive {
		t.Errorf("status = %q, want active", resp.Automation.Status)
	}
	if resp.Automation.Actions[0].MaxRetries != automation.DefaultMaxRetries {
		t.Errorf("max_retries = %d, want default", resp.Automation.Actions[0].MaxRetries)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/automations", manualAutomation)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", rec.Code)
	}
}

func TestCreateAutomation_WeekdayCronWarns(t *testing.T) {
	srv := testServer(t)

	body := `{
		"name": "Weekday report",
		"owner_id": "u-1",
		"trigger": {"type": "schedule", "cron_expression": "0 9 * * 1-5"},
		"actions": [{"type": "notify"}]
	}`
	rec := doRequest(t, srv.buildRouter(), http.MethodPost, "/api/v1/automations", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp createResponse
	decodeJSON(t, rec, &resp)
	if len(resp.Warnings) == 0 {
		t.Error("expected a cron warning for a range expression in exact mode")
	}
}

func TestCreateAutomation_Invalid(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"name":`, ErrCodeBadRequest},
		{"missing name", `{"owner_id":"u-1","trigger":{"type":"manual"}}`, ErrCodeValidation},
		{"bad trigger", `{"name":"x","owner_id":"u-1","trigger":{"type":"telepathy"}}`, ErrCodeValidation},
		{"bad action", `{"name":"x","owner_id":"u-1","trigger":{"type":"manual"},"actions":[{"type":"fax"}]}`, ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodPost, "/api/v1/automations", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var e Error
			decodeJSON(t, rec, &e)
			if e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
		})
	}
}

func TestGetListDeleteAutomation(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	createAutomation(t, router, manualAutomation)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/automations/auto-manual", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/automations?owner_id=u-2", "")
	var list struct {
		Count int `json:"count"`
	}
	decodeJSON(t, rec, &list)
	if list.Count != 0 {
		t.Errorf("owner filter count = %d, want 0", list.Count)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/automations", "")
	decodeJSON(t, rec, &list)
	if list.Count != 1 {
		t.Errorf("count = %d, want 1", list.Count)
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/automations/auto-manual", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/automations/auto-manual", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
	rec = doRequest(t, router, http.MethodDelete, "/api/v1/automations/auto-manual", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
}

func TestSetStatus(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	createAutomation(t, router, manualAutomation)

	rec := doRequest(t, router, http.MethodPut, "/api/v1/automations/auto-manual/status", `{"status":"paused"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var a automation.Automation
	decodeJSON(t, rec, &a)
	if a.Status != automation.StatusPaused {
		t.Errorf("status = %q, want paused", a.Status)
	}

	rec = doRequest(t, router, http.MethodPut, "/api/v1/automations/auto-manual/status", `{"status":"sleeping"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status code = %d, want 400", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPut, "/api/v1/automations/missing/status", `{"status":"active"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing automation code = %d, want 404", rec.Code)
	}
}

func TestRunAutomation(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	createAutomation(t, router, manualAutomation)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/automations/auto-manual/run",
		`{"data":{"ticket":{"priority":"low"}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp runResponse
	decodeJSON(t, rec, &resp)
	if !resp.Run.Success || !resp.Persisted {
		t.Errorf("run = %+v, persisted = %v", resp.Run, resp.Persisted)
	}
	if len(resp.Run.ActionResults) != 2 {
		t.Fatalf("action results = %d, want 2", len(resp.Run.ActionResults))
	}
	if !resp.Run.ActionResults[1].Skipped() {
		t.Errorf("second action should be skipped: %v", resp.Run.ActionResults[1])
	}

	// Empty body is allowed.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/automations/auto-manual/run", "")
	if rec.Code != http.StatusOK {
		t.Errorf("empty body status = %d", rec.Code)
	}
}

func TestRunAutomation_Disabled(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	createAutomation(t, router, manualAutomation)
	doRequest(t, router, http.MethodPut, "/api/v1/automations/auto-manual/status", `{"status":"disabled"}`)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/automations/auto-manual/run", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/automations/nope/run", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown automation status = %d, want 404", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	srv := testServer(t)
	router := srv.buildRouter()
	createAutomation(t, router, manualAutomation)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/automations/auto-manual/runs?limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Runs  []automation.Run `json:"runs"`
		Count int              `json:"count"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Runs == nil || resp.Count != 0 {
		t.Errorf("in-memory engine runs = %+v", resp)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/automations/auto-manual/runs?limit=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
	rec = doRequest(t, router, http.MethodGet, "/api/v1/automations/missing/runs", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing automation status = %d, want 404", rec.Code)
	}
}
