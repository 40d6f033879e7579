package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// RunListener is notified after every completed run.
// Implementations must not block; the websocket hub, MQTT publisher and
// metrics writer all satisfy this.
type RunListener interface {
	RunCompleted(ctx context.Context, a *Automation, run *Run)
}

// RunListenerFunc adapts a function to RunListener.
type RunListenerFunc func(ctx context.Context, a *Automation, run *Run)

// RunCompleted calls f.
func (f RunListenerFunc) RunCompleted(ctx context.Context, a *Automation, run *Run) {
	f(ctx, a, run)
}

// skipReason is recorded on actions whose run_if guard is false.
const skipReason = "Condition not met"

// Engine owns the automation catalog and runs automations.
//
// It is constructed once at start-up and passed to every caller that emits
// events or manages automations.
//
// Thread Safety: all methods are safe for concurrent use. Runs of the same
// automation may overlap; each produces its own Run.
type Engine struct {
	registry   *Registry
	repo       Repository
	dispatcher *Dispatcher
	evaluator  *Evaluator
	scheduler  *Scheduler
	logger     Logger
	now        func() time.Time

	listenersMu sync.RWMutex
	listeners   []RunListener
}

// NewEngine creates a new automation engine.
//
// Parameters:
//   - repo: Repository for automations and run history (may be nil for a
//     purely in-memory engine)
//   - dispatcher: Action handler table with retry
//   - logger: Logger instance (may be nil)
func NewEngine(repo Repository, dispatcher *Dispatcher, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	e := &Engine{
		registry:   NewRegistry(),
		repo:       repo,
		dispatcher: dispatcher,
		evaluator:  NewEvaluator(logger),
		logger:     logger,
		now:        time.Now,
	}
	e.scheduler = NewScheduler(e.registry, e, logger)
	return e
}

// Registry returns the engine's automation catalog.
func (e *Engine) Registry() *Registry { return e.registry }

// Scheduler returns the engine's scheduler.
func (e *Engine) Scheduler() *Scheduler { return e.scheduler }

// AddListener registers a listener for completed runs.
func (e *Engine) AddListener(l RunListener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Evaluate evaluates an expression with the engine's evaluator.
func (e *Engine) Evaluate(expr string, data map[string]any) bool {
	return e.evaluator.Evaluate(expr, data)
}

// ─── Catalog ────────────────────────────────────────────────────────────────

// RegisterAutomation adds a to the in-memory catalog, replacing any
// automation with the same ID. Nothing is persisted.
func (e *Engine) RegisterAutomation(a *Automation) {
	e.registry.Register(a)
	for _, w := range Diagnostics(a, e.scheduler.Mode()) {
		e.logger.Warn("automation will not behave as written", "automation_id", a.ID, "warning", w)
	}
	e.logger.Debug("automation registered", "automation_id", a.ID, "trigger", string(a.Trigger.Type))
}

// UnregisterAutomation removes an automation from the catalog and from
// its event listener bucket. Returns false if it was not registered.
func (e *Engine) UnregisterAutomation(id string) bool {
	ok := e.registry.Unregister(id)
	if ok {
		e.logger.Debug("automation unregistered", "automation_id", id)
	}
	return ok
}

// LoadAutomations registers every active stored automation, restricted to
// ownerID when it is non-empty. Returns the number loaded.
func (e *Engine) LoadAutomations(ctx context.Context, ownerID string) (int, error) {
	if e.repo == nil {
		return 0, nil
	}
	automations, err := e.repo.ListActive(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("loading automations: %w", err)
	}
	for i := range automations {
		e.RegisterAutomation(&automations[i])
	}
	e.logger.Info("automations loaded", "count", len(automations), "owner_id", ownerID)
	return len(automations), nil
}

// Bootstrap loads stored automations and starts the scheduler.
// ctx bounds the scheduler's lifetime.
func (e *Engine) Bootstrap(ctx context.Context, ownerID string) error {
	if _, err := e.LoadAutomations(ctx, ownerID); err != nil {
		return err
	}
	return e.StartScheduler(ctx)
}

// StartScheduler starts the schedule poll loop.
func (e *Engine) StartScheduler(ctx context.Context) error {
	return e.scheduler.Start(ctx)
}

// StopScheduler stops the poll loop and waits for it and any scheduled
// runs still in flight.
func (e *Engine) StopScheduler() {
	e.scheduler.Stop()
}

// CreateAutomation applies defaults, validates, persists and registers a.
func (e *Engine) CreateAutomation(ctx context.Context, a *Automation) error {
	a.ApplyDefaults()
	if err := ValidateAutomation(a); err != nil {
		return err
	}
	if e.repo != nil {
		if err := e.repo.Create(ctx, a); err != nil {
			return err
		}
	} else {
		if _, ok := e.registry.Get(a.ID); ok {
			return fmt.Errorf("%w: %s", ErrExists, a.ID)
		}
		now := e.now().UTC()
		a.CreatedAt, a.UpdatedAt = now, now
	}

	e.RegisterAutomation(a)
	e.logger.Info("automation created", "automation_id", a.ID, "name", a.Name)
	return nil
}

// DeleteAutomation removes an automation from storage and the catalog.
func (e *Engine) DeleteAutomation(ctx context.Context, id string) error {
	if e.repo != nil {
		if err := e.repo.Delete(ctx, id); err != nil {
			return err
		}
	} else if _, ok := e.registry.Get(id); !ok {
		return ErrNotFound
	}
	e.UnregisterAutomation(id)
	e.logger.Info("automation deleted", "automation_id", id)
	return nil
}

// SetStatus persists a status change and applies it to the catalog,
// registering the stored automation if it was not loaded. Only active
// automations fire.
func (e *Engine) SetStatus(ctx context.Context, id string, status Status) error {
	if err := ValidateStatus(status); err != nil {
		return err
	}
	if e.repo != nil {
		if err := e.repo.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
	}

	if e.registry.SetStatus(id, status) {
		e.logger.Info("automation status changed", "automation_id", id, "status", string(status))
		return nil
	}
	if e.repo == nil {
		return ErrNotFound
	}

	a, err := e.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	e.RegisterAutomation(a)
	e.logger.Info("automation status changed", "automation_id", id, "status", string(status))
	return nil
}

// GetAutomation returns a registered automation, falling back to storage.
func (e *Engine) GetAutomation(ctx context.Context, id string) (*Automation, error) {
	if a, ok := e.registry.Get(id); ok {
		return a, nil
	}
	if e.repo == nil {
		return nil, ErrNotFound
	}
	return e.repo.GetByID(ctx, id)
}

// ListAutomations returns all stored automations (or the registered ones
// for an in-memory engine), optionally filtered by owner.
func (e *Engine) ListAutomations(ctx context.Context, ownerID string) ([]Automation, error) {
	if e.repo == nil {
		return e.registry.List(ownerID), nil
	}
	all, err := e.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if ownerID == "" {
		return all, nil
	}
	out := make([]Automation, 0, len(all))
	for _, a := range all {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	return out, nil
}

// ListRuns returns the most recent runs of an automation.
func (e *Engine) ListRuns(ctx context.Context, automationID string, limit int) ([]Run, error) {
	if e.repo == nil {
		return nil, nil
	}
	return e.repo.ListRuns(ctx, automationID, limit)
}

// ─── Triggering ─────────────────────────────────────────────────────────────

// EmitEvent runs every active automation listening for eventName whose
// owner matches userID (when non-empty) and whose event filter matches
// data. Automations run one after another in registration order.
//
// One Run is returned per matched automation whatever its outcome.
// Persistence failures do not stop later automations; they are joined
// into the returned error.
func (e *Engine) EmitEvent(ctx context.Context, eventName string, data map[string]any, userID string) ([]*Run, error) {
	candidates := e.registry.Listeners(eventName)

	var runs []*Run
	var errs []error
	for _, a := range candidates {
		// Paused, disabled and errored automations stay indexed but do not fire.
		if a.Status != StatusActive {
			continue
		}
		if userID != "" && a.OwnerID != userID {
			continue
		}
		if len(a.Trigger.EventFilter) > 0 && !MatchesFilter(data, a.Trigger.EventFilter) {
			continue
		}

		run, err := e.ExecuteAutomation(ctx, a, data)
		runs = append(runs, run)
		if err != nil {
			errs = append(errs, err)
		}
	}

	e.logger.Debug("event emitted",
		"event", eventName,
		"listeners", len(candidates),
		"runs", len(runs),
	)
	return runs, errors.Join(errs...)
}

// RunNow executes an automation immediately (manual trigger). Disabled
// automations are refused.
func (e *Engine) RunNow(ctx context.Context, id string, data map[string]any) (*Run, error) {
	a, err := e.GetAutomation(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusDisabled {
		return nil, fmt.Errorf("%w: automation is disabled", ErrTriggerMismatch)
	}
	return e.ExecuteAutomation(ctx, a, data)
}

// HandleWebhook executes an active webhook-triggered automation with the
// request payload as trigger data.
func (e *Engine) HandleWebhook(ctx context.Context, id string, data map[string]any) (*Run, error) {
	a, err := e.GetAutomation(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Trigger.Type != TriggerWebhook {
		return nil, fmt.Errorf("%w: %s trigger", ErrTriggerMismatch, a.Trigger.Type)
	}
	if a.Status != StatusActive {
		return nil, fmt.Errorf("%w: automation is %s", ErrTriggerMismatch, a.Status)
	}
	return e.ExecuteAutomation(ctx, a, data)
}

// ─── Execution Pipeline ─────────────────────────────────────────────────────

// ExecuteAutomation runs a's actions in order and records the outcome.
//
// The run always completes once started: cancellation of ctx does not
// interrupt actions or their retries. The returned Run is never nil. A
// non-nil error means the run was decided but could not be persisted.
func (e *Engine) ExecuteAutomation(ctx context.Context, a *Automation, triggerData map[string]any) (*Run, error) {
	ctx = context.WithoutCancel(ctx)

	started := e.now().UTC()
	run := &Run{
		ID:            NewRunID(started),
		AutomationID:  a.ID,
		TriggerData:   nonNilMap(triggerData),
		StartedAt:     started,
		ActionResults: make([]Result, 0, len(a.Actions)),
	}

	e.runActions(ctx, a, run)

	completed := e.now().UTC()
	run.CompletedAt = &completed

	updated := e.registry.recordRun(a.ID, run)
	if updated == nil {
		updated = a.DeepCopy()
		applyRun(updated, run)
	}

	e.logger.Info("automation run complete",
		"automation_id", a.ID,
		"run_id", run.ID,
		"success", run.Success,
		"actions", len(run.ActionResults),
		"duration_ms", run.Duration().Milliseconds(),
	)

	var errs []error
	if e.repo != nil {
		if err := e.repo.SaveRun(ctx, run); err != nil {
			errs = append(errs, fmt.Errorf("saving run %s: %w", run.ID, err))
		}
		if err := e.repo.UpdateRunStats(ctx, updated); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("updating stats for %s: %w", a.ID, err))
		}
	}

	e.notify(ctx, updated, run)
	return run, errors.Join(errs...)
}

// runActions executes the action loop. Any panic outside the dispatcher
// fails the run instead of escaping.
func (e *Engine) runActions(ctx context.Context, a *Automation, run *Run) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("pipeline panic: %v", r)
			run.Error = &msg
			run.Success = false
			e.logger.Error("automation run failed", "automation_id", a.ID, "run_id", run.ID, "error", msg)
		}
	}()

	execCtx := make(map[string]any, len(run.TriggerData)+1+len(a.Actions))
	for k, v := range run.TriggerData {
		execCtx[k] = v
	}
	execCtx["automation"] = map[string]any{
		"id":    a.ID,
		"name":  a.Name,
		"scope": a.Scope,
	}

	for _, action := range a.Actions {
		if action.RunIf != "" && !e.evaluator.Evaluate(action.RunIf, execCtx) {
			run.ActionResults = append(run.ActionResults, Result{
				KeyActionID: action.ID,
				KeySkipped:  true,
				KeyReason:   skipReason,
			})
			continue
		}

		result := cloneResult(e.dispatcher.Execute(ctx, action, execCtx))
		result[KeyActionID] = action.ID
		run.ActionResults = append(run.ActionResults, result)
		execCtx["action_"+action.ID] = map[string]any(result)
	}

	run.Success = allSucceeded(run.ActionResults)
}

// cloneResult copies a handler's result so annotating it never writes to
// a map the handler may still hold.
func cloneResult(r Result) Result {
	out := make(Result, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// allSucceeded is true when every result succeeded or was skipped.
func allSucceeded(results []Result) bool {
	for _, r := range results {
		if !r.Succeeded() && !r.Skipped() {
			return false
		}
	}
	return true
}

func (e *Engine) notify(ctx context.Context, a *Automation, run *Run) {
	e.listenersMu.RLock()
	listeners := make([]RunListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.listenersMu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("run listener panicked", "run_id", run.ID, "panic", fmt.Sprint(r))
				}
			}()
			l.RunCompleted(ctx, a, run)
		}()
	}
}
