package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/flowline-core/internal/automation"
)

// TeamService assigns tasks to agents.
type TeamService interface {
	AssignTask(ctx context.Context, agentID, taskType string, taskData map[string]any, priority int) (taskID string, err error)
}

// SpaceRegistry runs workflows within a scope.
type SpaceRegistry interface {
	ExecuteWorkflow(ctx context.Context, scope, workflowID string, input map[string]any) (map[string]any, error)
}

// DefaultTaskPriority is used when an agent task action sets no priority.
const DefaultTaskPriority = 5

// AgentTaskHandler hands work to an agent through a TeamService.
type AgentTaskHandler struct {
	team TeamService
}

// NewAgentTaskHandler creates an agent task handler.
func NewAgentTaskHandler(team TeamService) *AgentTaskHandler {
	return &AgentTaskHandler{team: team}
}

// Execute implements automation.ActionHandler.
//
// Config keys: agent_id, task_type (default "automation"), priority
// (default 5). The rendered data template becomes the task data.
func (h *AgentTaskHandler) Execute(ctx context.Context, action automation.Action, execCtx map[string]any) (automation.Result, error) {
	if h.team == nil {
		return nil, fmt.Errorf("%w: team service", ErrNotConfigured)
	}

	agentID, err := requireString(action, "agent_id", execCtx)
	if err != nil {
		return nil, err
	}
	taskType := configString(action, "task_type", execCtx)
	if taskType == "" {
		taskType = "automation"
	}
	priority := configInt(action, "priority", execCtx, DefaultTaskPriority)

	taskData := automation.Render(action.DataTemplate, execCtx)
	if taskData == nil {
		taskData = map[string]any{}
	}

	taskID, err := h.team.AssignTask(ctx, agentID, taskType, taskData, priority)
	if err != nil {
		return nil, fmt.Errorf("assigning task to %s: %w", agentID, err)
	}

	return automation.Success(map[string]any{
		"task_id":  taskID,
		"agent_id": agentID,
	}), nil
}

// WorkflowHandler starts workflows through a SpaceRegistry.
type WorkflowHandler struct {
	spaces SpaceRegistry
}

// NewWorkflowHandler creates a workflow handler.
func NewWorkflowHandler(spaces SpaceRegistry) *WorkflowHandler {
	return &WorkflowHandler{spaces: spaces}
}

// Execute implements automation.ActionHandler.
//
// Config keys: workflow_id. The workflow runs in target_scope (or the
// automation's scope) and receives the rendered data template merged over
// the trigger data.
func (h *WorkflowHandler) Execute(ctx context.Context, action automation.Action, execCtx map[string]any) (automation.Result, error) {
	if h.spaces == nil {
		return nil, fmt.Errorf("%w: space registry", ErrNotConfigured)
	}

	workflowID, err := requireString(action, "workflow_id", execCtx)
	if err != nil {
		return nil, err
	}
	scope := targetScope(action, execCtx)
	if scope == "" {
		return nil, fmt.Errorf("%w: target_scope", ErrMissingConfig)
	}

	input := make(map[string]any, len(execCtx))
	for k, v := range execCtx {
		if k == "automation" || strings.HasPrefix(k, "action_") {
			continue
		}
		input[k] = v
	}
	for k, v := range automation.Render(action.DataTemplate, execCtx) {
		input[k] = v
	}

	output, err := h.spaces.ExecuteWorkflow(ctx, scope, workflowID, input)
	if err != nil {
		return nil, fmt.Errorf("executing workflow %s: %w", workflowID, err)
	}

	return automation.Success(map[string]any{
		"workflow_id": workflowID,
		"output":      output,
	}), nil
}
