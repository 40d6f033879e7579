package automation

import (
	"slices"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry and Engine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the in-memory automation catalog and event listener index.
//
// listeners maps an event name to the IDs of event-triggered automations
// in registration order. Only event triggers with a non-empty event name
// are indexed.
//
// All public methods are thread-safe. Returned automations are deep
// copies; callers can safely modify them.
type Registry struct {
	mu          sync.RWMutex
	automations map[string]*Automation
	listeners   map[string][]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		automations: make(map[string]*Automation),
		listeners:   make(map[string][]string),
	}
}

// Register stores a by ID, replacing any automation with the same ID, and
// indexes it under its event name when it has an event trigger.
func (r *Registry) Register(a *Automation) {
	cpy := a.DeepCopy()

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.automations[cpy.ID]; ok {
		r.unindex(old)
	}
	r.automations[cpy.ID] = cpy

	if name, ok := eventName(cpy); ok {
		r.listeners[name] = append(r.listeners[name], cpy.ID)
	}
}

// Unregister removes the automation and its listener entry.
// Returns false if the ID was not registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.automations[id]
	if !ok {
		return false
	}
	r.unindex(a)
	delete(r.automations, id)
	return true
}

// unindex removes a from its listener bucket. Caller holds mu.
func (r *Registry) unindex(a *Automation) {
	name, ok := eventName(a)
	if !ok {
		return
	}
	bucket := slices.DeleteFunc(r.listeners[name], func(id string) bool { return id == a.ID })
	if len(bucket) == 0 {
		delete(r.listeners, name)
		return
	}
	r.listeners[name] = bucket
}

func eventName(a *Automation) (string, bool) {
	if a.Trigger.Type != TriggerEvent || a.Trigger.EventName == "" {
		return "", false
	}
	return a.Trigger.EventName, true
}

// Get returns a copy of the automation with the given ID.
func (r *Registry) Get(id string) (*Automation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.automations[id]
	if !ok {
		return nil, false
	}
	return a.DeepCopy(), true
}

// List returns copies of all registered automations, optionally restricted
// to one owner, sorted by name then ID.
func (r *Registry) List(ownerID string) []Automation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Automation, 0, len(r.automations))
	for _, a := range r.automations {
		if ownerID != "" && a.OwnerID != ownerID {
			continue
		}
		out = append(out, *a.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Listeners returns copies of the automations listening for eventName,
// in registration order.
func (r *Registry) Listeners(eventName string) []*Automation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.listeners[eventName]
	out := make([]*Automation, 0, len(ids))
	for _, id := range ids {
		if a, ok := r.automations[id]; ok {
			out = append(out, a.DeepCopy())
		}
	}
	return out
}

// ListenerIDs returns the IDs indexed under eventName.
func (r *Registry) ListenerIDs(eventName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.listeners[eventName])
}

// Scheduled returns copies of the active automations with schedule triggers.
func (r *Registry) Scheduled() []*Automation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Automation
	for _, a := range r.automations {
		if a.Trigger.Type == TriggerSchedule && a.Status == StatusActive {
			out = append(out, a.DeepCopy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetStatus updates the cached status. Returns false if id is unknown.
func (r *Registry) SetStatus(id string, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.automations[id]
	if !ok {
		return false
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return true
}

// recordRun applies a completed run to the cached statistics and returns
// a copy of the updated automation, or nil if id is not registered.
func (r *Registry) recordRun(id string, run *Run) *Automation {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.automations[id]
	if !ok {
		return nil
	}
	applyRun(a, run)
	return a.DeepCopy()
}

// applyRun increments run_count, stamps last_run_at and records
// last_error when the run failed.
func applyRun(a *Automation, run *Run) {
	a.RunCount++
	completed := run.StartedAt
	if run.CompletedAt != nil {
		completed = *run.CompletedAt
	}
	a.LastRunAt = &completed
	if !run.Success {
		msg := runFailureMessage(run)
		a.LastError = &msg
	}
}

func runFailureMessage(run *Run) string {
	if run.Error != nil {
		return *run.Error
	}
	for _, res := range run.ActionResults {
		if !res.Succeeded() && !res.Skipped() {
			if msg := res.Err(); msg != "" {
				return msg
			}
		}
	}
	return "one or more actions failed"
}

// Count returns the number of registered automations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.automations)
}
