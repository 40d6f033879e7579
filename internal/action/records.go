package action

import (
	"context"
	"fmt"

	"github.com/nerrad567/flowline-core/internal/automation"
	"github.com/nerrad567/flowline-core/internal/record"
)

// ─── Record handlers ───────────────────────────────────────────────

// RecordHandler executes create, update and delete actions against a
// record.Store addressed by the action's target scope and module.
type RecordHandler struct {
	op    automation.ActionType
	store record.Store
}

// NewCreateHandler returns a handler that inserts the rendered data template.
func NewCreateHandler(store record.Store) *RecordHandler {
	return &RecordHandler{op: automation.ActionCreate, store: store}
}

// NewUpdateHandler returns a handler that merges the rendered data template
// into the record named by config.record_id.
func NewUpdateHandler(store record.Store) *RecordHandler {
	return &RecordHandler{op: automation.ActionUpdate, store: store}
}

// NewDeleteHandler returns a handler that removes the record named by
// config.record_id.
func NewDeleteHandler(store record.Store) *RecordHandler {
	return &RecordHandler{op: automation.ActionDelete, store: store}
}

// Execute implements automation.ActionHandler.
func (h *RecordHandler) Execute(ctx context.Context, action automation.Action, execCtx map[string]any) (automation.Result, error) {
	if h.store == nil {
		return nil, fmt.Errorf("%w: record store", ErrNotConfigured)
	}

	switch h.op {
	case automation.ActionCreate:
		return h.create(ctx, action, execCtx)
	case automation.ActionUpdate:
		return h.update(ctx, action, execCtx)
	case automation.ActionDelete:
		return h.delete(ctx, action, execCtx)
	default:
		return nil, fmt.Errorf("record handler cannot execute %q", h.op)
	}
}

func (h *RecordHandler) create(ctx context.Context, action automation.Action, execCtx map[string]any) (automation.Result, error) {
	scope := targetScope(action, execCtx)
	if scope == "" || action.TargetModule == "" {
		return nil, fmt.Errorf("%w: target_scope and target_module", ErrMissingConfig)
	}

	rec := &record.Record{
		Scope:     scope,
		Module:    action.TargetModule,
		Data:      automation.Render(action.DataTemplate, execCtx),
		CreatedBy: createdBy(execCtx),
	}
	if err := h.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	return automation.Success(map[string]any{
		"record_id": rec.ID,
		"scope":     rec.Scope,
		"module":    rec.Module,
	}), nil
}

func (h *RecordHandler) update(ctx context.Context, action automation.Action, execCtx map[string]any) (automation.Result, error) {
	id, err := requireString(action, "record_id", execCtx)
	if err != nil {
		return nil, err
	}

	rec, err := h.store.Update(ctx, id, automation.Render(action.DataTemplate, execCtx))
	if err != nil {
		return nil, err
	}

	return automation.Success(map[string]any{
		"record_id": rec.ID,
		"data":      rec.Data,
	}), nil
}

func (h *RecordHandler) delete(ctx context.Context, action automation.Action, execCtx map[string]any) (automation.Result, error) {
	id, err := requireString(action, "record_id", execCtx)
	if err != nil {
		return nil, err
	}
	if err := h.store.Delete(ctx, id); err != nil {
		return nil, err
	}
	return automation.Success(map[string]any{"record_id": id}), nil
}

// targetScope prefers the action's target_scope and falls back to the
// owning automation's scope.
func targetScope(action automation.Action, execCtx map[string]any) string {
	if action.TargetScope != "" {
		return action.TargetScope
	}
	s, _ := automation.ResolvePath("automation.scope", execCtx).(string)
	return s
}

func createdBy(execCtx map[string]any) string {
	if id, ok := automation.ResolvePath("automation.id", execCtx).(string); ok && id != "" {
		return "automation:" + id
	}
	return ""
}
