package action

import (
	"context"
	"strconv"
	"sync"

	"github.com/nerrad567/flowline-core/internal/record"
)

// memoryStore is an in-memory record.Store.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]*record.Record
	nextID  int
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*record.Record)}
}

func (m *memoryStore) Create(_ context.Context, rec *record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if rec.ID == "" {
		m.nextID++
		rec.ID = "rec-" + strconv.Itoa(m.nextID)
	}
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, record.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memoryStore) Update(_ context.Context, id string, fields map[string]any) (*record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, record.ErrNotFound
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	for k, v := range fields {
		rec.Data[k] = v
	}
	cp := *rec
	return &cp, nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return record.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memoryStore) List(_ context.Context, scope, module string, _ int) ([]record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []record.Record
	for _, r := range m.records {
		if r.Scope == scope && (module == "" || r.Module == module) {
			out = append(out, *r)
		}
	}
	return out, nil
}

type published struct {
	topic   string
	payload []byte
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *mockPublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, payload: payload})
	return nil
}

type mockMailer struct {
	sent []Email
	err  error
}

func (m *mockMailer) Send(_ context.Context, msg Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockTeam struct {
	agentID  string
	taskType string
	data     map[string]any
	priority int
	err      error
}

func (t *mockTeam) AssignTask(_ context.Context, agentID, taskType string, taskData map[string]any, priority int) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	t.agentID, t.taskType, t.data, t.priority = agentID, taskType, taskData, priority
	return "task-1", nil
}

type mockSpaces struct {
	scope      string
	workflowID string
	input      map[string]any
}

func (s *mockSpaces) ExecuteWorkflow(_ context.Context, scope, workflowID string, input map[string]any) (map[string]any, error) {
	s.scope, s.workflowID, s.input = scope, workflowID, input
	return map[string]any{"status": "started"}, nil
}

// execContext mirrors what the pipeline passes to handlers.
func execContext(trigger map[string]any) map[string]any {
	ctx := map[string]any{
		"automation": map[string]any{"id": "auto-1", "name": "Test", "scope": "tasks"},
	}
	for k, v := range trigger {
		ctx[k] = v
	}
	return ctx
}
