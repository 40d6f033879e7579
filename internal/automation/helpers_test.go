package automation

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

// logEntry is one message captured by recordingLogger.
type logEntry struct {
	Level string
	Msg   string
	Args  []any
}

// recordingLogger captures log calls for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{Level: level, Msg: msg, Args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.log("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.log("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.log("error", msg, args) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// mockRepository is an in-memory Repository.
type mockRepository struct {
	mu          sync.Mutex
	automations map[string]*Automation
	runs        []Run
	saveRunErr  error
}

func newMockRepository() *mockRepository {
	return &mockRepository{automations: make(map[string]*Automation)}
}

func (m *mockRepository) GetByID(_ context.Context, id string) (*Automation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.automations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.DeepCopy(), nil
}

func (m *mockRepository) List(_ context.Context) ([]Automation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Automation, 0, len(m.automations))
	for _, a := range m.automations {
		out = append(out, *a.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepository) ListActive(ctx context.Context, ownerID string) ([]Automation, error) {
	all, _ := m.List(ctx)
	var out []Automation
	for _, a := range all {
		if a.Status == StatusActive && (ownerID == "" || a.OwnerID == ownerID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockRepository) Create(_ context.Context, a *Automation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.automations[a.ID]; ok {
		return ErrExists
	}
	m.automations[a.ID] = a.DeepCopy()
	return nil
}

func (m *mockRepository) Update(_ context.Context, a *Automation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.automations[a.ID]; !ok {
		return ErrNotFound
	}
	m.automations[a.ID] = a.DeepCopy()
	return nil
}

func (m *mockRepository) UpdateStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.automations[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

func (m *mockRepository) UpdateRunStats(_ context.Context, a *Automation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.automations[a.ID]
	if !ok {
		return ErrNotFound
	}
	stored.RunCount = a.RunCount
	stored.LastRunAt = cloneTimePtr(a.LastRunAt)
	stored.LastError = cloneStringPtr(a.LastError)
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.automations[id]; !ok {
		return ErrNotFound
	}
	delete(m.automations, id)
	return nil
}

func (m *mockRepository) SaveRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveRunErr != nil {
		return m.saveRunErr
	}
	m.runs = append(m.runs, *run)
	return nil
}

func (m *mockRepository) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == id {
			r := m.runs[i]
			return &r, nil
		}
	}
	return nil, ErrRunNotFound
}

func (m *mockRepository) ListRuns(_ context.Context, automationID string, _ int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Run
	for _, r := range m.runs {
		if r.AutomationID == automationID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRepository) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// recordingHandler records every call and returns scripted outcomes.
// Once the script is exhausted the last outcome repeats.
type recordingHandler struct {
	mu       sync.Mutex
	calls    []map[string]any
	outcomes []outcome
}

type outcome struct {
	result Result
	err    error
	panic  any
}

func succeed() outcome                      { return outcome{result: Success(nil)} }
func fail(msg string) outcome               { return outcome{result: Failure(msg)} }
func raise(msg string) outcome              { return outcome{err: errors.New(msg)} }
func explode(v any) outcome                 { return outcome{panic: v} }
func script(o ...outcome) *recordingHandler { return &recordingHandler{outcomes: o} }

func (h *recordingHandler) Execute(_ context.Context, _ Action, execCtx map[string]any) (Result, error) {
	h.mu.Lock()
	idx := len(h.calls)
	snapshot := deepCopyMap(execCtx)
	h.calls = append(h.calls, snapshot)
	o := h.outcomes[min(idx, len(h.outcomes)-1)]
	h.mu.Unlock()

	if o.panic != nil {
		panic(o.panic)
	}
	if o.result != nil {
		return Result(deepCopyMap(o.result)), o.err
	}
	return nil, o.err
}

func (h *recordingHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func (h *recordingHandler) lastCall() map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.calls) == 0 {
		return nil
	}
	return h.calls[len(h.calls)-1]
}

// newTestDispatcher builds a dispatcher that never sleeps and records
// the delays it was asked to wait.
func newTestDispatcher(t *testing.T, handlers map[ActionType]ActionHandler) (*Dispatcher, *[]time.Duration) {
	t.Helper()
	d, err := NewDispatcher(handlers, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	var delays []time.Duration
	var mu sync.Mutex
	d.sleep = func(_ context.Context, delay time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		delays = append(delays, delay)
		return nil
	}
	return d, &delays
}

// ─── Fixtures ───────────────────────────────────────────────────────────────

// testAutomation creates an active event automation with one notify action.
func testAutomation(id, owner, event string) *Automation {
	a := &Automation{
		ID:      id,
		Name:    "automation " + id,
		OwnerID: owner,
		Scope:   "tasks",
		Trigger: Trigger{Type: TriggerEvent, EventName: event},
		Actions: []Action{
			{ID: "notify", Type: ActionNotify, Config: map[string]any{"message": "hi {{automation.name}}"}},
		},
	}
	a.ApplyDefaults()
	return a
}

func scheduleAutomation(id, cron string) *Automation {
	a := &Automation{
		ID:      id,
		Name:    "schedule " + id,
		OwnerID: "owner-1",
		Trigger: Trigger{Type: TriggerSchedule, CronExpression: cron},
		Actions: []Action{{ID: "notify", Type: ActionNotify}},
	}
	a.ApplyDefaults()
	return a
}

// setupTestDB creates an in-memory SQLite database with the automations schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	// Each :memory: connection is a separate database.
	db.SetMaxOpenConns(1)

	// Matches migrations/20261001_000000_automations.up.sql
	schema := `
		CREATE TABLE automations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			owner_id TEXT NOT NULL,
			scope TEXT NOT NULL DEFAULT '',
			trigger_type TEXT NOT NULL,
			trigger_config TEXT NOT NULL DEFAULT '{}',
			actions_config TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'active',
			run_count INTEGER NOT NULL DEFAULT 0,
			last_run_at TEXT,
			last_error TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE automation_runs (
			id TEXT PRIMARY KEY,
			automation_id TEXT NOT NULL,
			trigger_data TEXT NOT NULL DEFAULT '{}',
			started_at TEXT NOT NULL,
			completed_at TEXT,
			action_results TEXT NOT NULL DEFAULT '[]',
			success INTEGER NOT NULL DEFAULT 0,
			error TEXT
		) STRICT;`

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return ts
}

func strPtr(s string) *string { return &s }
