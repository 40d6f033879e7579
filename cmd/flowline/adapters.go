package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/flowline-core/internal/action"
	"github.com/nerrad567/flowline-core/internal/automation"
	"github.com/nerrad567/flowline-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/flowline-core/internal/infrastructure/logging"
	"github.com/nerrad567/flowline-core/internal/infrastructure/mqtt"
)

// busQoS is used for every message the engine publishes.
const busQoS byte = 1

// ─── Collaborators ──────────────────────────────────────────────────────────

// mqttTeam hands agent tasks to the team service over MQTT. Task IDs are
// assigned here so the action result can report them immediately.
type mqttTeam struct {
	pub    action.Publisher
	topics mqtt.Topics
	now    func() time.Time
}

// agentTaskMessage is published to flowline/agent/{agent_id}/task.
type agentTaskMessage struct {
	TaskID     string         `json:"task_id"`
	AgentID    string         `json:"agent_id"`
	TaskType   string         `json:"task_type"`
	TaskData   map[string]any `json:"task_data"`
	Priority   int            `json:"priority"`
	AssignedAt string         `json:"assigned_at"`
}

// AssignTask implements action.TeamService.
func (t *mqttTeam) AssignTask(_ context.Context, agentID, taskType string, taskData map[string]any, priority int) (string, error) {
	msg := agentTaskMessage{
		TaskID:     uuid.NewString(),
		AgentID:    agentID,
		TaskType:   taskType,
		TaskData:   taskData,
		Priority:   priority,
		AssignedAt: t.now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encoding agent task: %w", err)
	}
	if err := t.pub.Publish(t.topics.AgentTask(agentID), payload, busQoS, false); err != nil {
		return "", fmt.Errorf("publishing agent task: %w", err)
	}
	return msg.TaskID, nil
}

// mqttSpaces requests workflow executions over MQTT. The workflow runs
// asynchronously; the output reports the execution ID to correlate on.
type mqttSpaces struct {
	pub    action.Publisher
	topics mqtt.Topics
	now    func() time.Time
}

// workflowMessage is published to flowline/space/{scope}/workflow/{id}.
type workflowMessage struct {
	ExecutionID string         `json:"execution_id"`
	Scope       string         `json:"scope"`
	WorkflowID  string         `json:"workflow_id"`
	Input       map[string]any `json:"input"`
	RequestedAt string         `json:"requested_at"`
}

// ExecuteWorkflow implements action.SpaceRegistry.
func (s *mqttSpaces) ExecuteWorkflow(_ context.Context, scope, workflowID string, input map[string]any) (map[string]any, error) {
	msg := workflowMessage{
		ExecutionID: uuid.NewString(),
		Scope:       scope,
		WorkflowID:  workflowID,
		Input:       input,
		RequestedAt: s.now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding workflow request: %w", err)
	}
	if err := s.pub.Publish(s.topics.Workflow(scope, workflowID), payload, busQoS, false); err != nil {
		return nil, fmt.Errorf("publishing workflow request: %w", err)
	}
	return map[string]any{"execution_id": msg.ExecutionID, "status": "dispatched"}, nil
}

// ─── Run listeners ──────────────────────────────────────────────────────────

// runSummary is published to flowline/core/automation/{id}/run.
type runSummary struct {
	RunID         string              `json:"run_id"`
	AutomationID  string              `json:"automation_id"`
	Name          string              `json:"name"`
	Scope         string              `json:"scope,omitempty"`
	Success       bool                `json:"success"`
	Error         *string             `json:"error,omitempty"`
	StartedAt     time.Time           `json:"started_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	DurationMS    int64               `json:"duration_ms"`
	ActionResults []automation.Result `json:"action_results"`
}

// runPublisher publishes a summary of every completed run.
type runPublisher struct {
	pub    action.Publisher
	topics mqtt.Topics
	log    *logging.Logger
}

// RunCompleted implements automation.RunListener.
func (p *runPublisher) RunCompleted(_ context.Context, a *automation.Automation, run *automation.Run) {
	payload, err := json.Marshal(runSummary{
		RunID:         run.ID,
		AutomationID:  a.ID,
		Name:          a.Name,
		Scope:         a.Scope,
		Success:       run.Success,
		Error:         run.Error,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
		DurationMS:    run.Duration().Milliseconds(),
		ActionResults: run.ActionResults,
	})
	if err != nil {
		p.log.Warn("encoding run summary failed", "run_id", run.ID, "error", err)
		return
	}
	if err := p.pub.Publish(p.topics.AutomationRun(a.ID), payload, busQoS, false); err != nil {
		p.log.Warn("publishing run summary failed", "run_id", run.ID, "error", err)
	}
}

// metricsWriter is the subset of the InfluxDB client used for run metrics.
type metricsWriter interface {
	WriteRun(m influxdb.RunMetric)
	WriteAction(m influxdb.ActionMetric)
}

// runMetrics records one run point and one point per action result.
type runMetrics struct {
	writer metricsWriter
}

// RunCompleted implements automation.RunListener.
func (m *runMetrics) RunCompleted(_ context.Context, a *automation.Automation, run *automation.Run) {
	completedAt := run.StartedAt
	if run.CompletedAt != nil {
		completedAt = *run.CompletedAt
	}

	actionTypes := make(map[string]automation.ActionType, len(a.Actions))
	for _, act := range a.Actions {
		actionTypes[act.ID] = act.Type
	}

	var failed, skipped int
	for _, r := range run.ActionResults {
		actionID, _ := r[automation.KeyActionID].(string)
		outcome := "succeeded"
		switch {
		case r.Skipped():
			outcome = "skipped"
			skipped++
		case !r.Succeeded():
			outcome = "failed"
			failed++
		}

		m.writer.WriteAction(influxdb.ActionMetric{
			AutomationID: a.ID,
			ActionID:     actionID,
			ActionType:   string(actionTypes[actionID]),
			Outcome:      outcome,
			Attempts:     attempts(r),
			CompletedAt:  completedAt,
		})
	}

	m.writer.WriteRun(influxdb.RunMetric{
		AutomationID: a.ID,
		Scope:        a.Scope,
		Trigger:      string(a.Trigger.Type),
		Success:      run.Success,
		Duration:     run.Duration(),
		Actions:      len(run.ActionResults),
		Failed:       failed,
		Skipped:      skipped,
		CompletedAt:  completedAt,
	})
}

// attempts reads the attempt count recorded on failed results. Results
// without one took a single attempt, or none when skipped.
func attempts(r automation.Result) int {
	switch n := r[automation.KeyAttempts].(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	if r.Skipped() {
		return 0
	}
	return 1
}
