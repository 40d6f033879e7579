package automation

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// TriggerType identifies what causes an automation to run.
type TriggerType string

const (
	TriggerEvent     TriggerType = "event"
	TriggerSchedule  TriggerType = "schedule"
	TriggerWebhook   TriggerType = "webhook"
	TriggerCondition TriggerType = "condition"
	TriggerManual    TriggerType = "manual"
)

// AllTriggerTypes returns all valid trigger types.
func AllTriggerTypes() []TriggerType {
	return []TriggerType{TriggerEvent, TriggerSchedule, TriggerWebhook, TriggerCondition, TriggerManual}
}

// ActionType identifies which handler executes an action.
type ActionType string

const (
	ActionCreate    ActionType = "create"
	ActionUpdate    ActionType = "update"
	ActionDelete    ActionType = "delete"
	ActionNotify    ActionType = "notify"
	ActionEmail     ActionType = "email"
	ActionWebhook   ActionType = "webhook"
	ActionAgentTask ActionType = "agent_task"
	ActionWorkflow  ActionType = "workflow"
	ActionCustom    ActionType = "custom"
)

// AllActionTypes returns all valid action types.
func AllActionTypes() []ActionType {
	return []ActionType{
		ActionCreate,
		ActionUpdate,
		ActionDelete,
		ActionNotify,
		ActionEmail,
		ActionWebhook,
		ActionAgentTask,
		ActionWorkflow,
		ActionCustom,
	}
}

// Status is the lifecycle state of an automation.
type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusDisabled Status = "disabled"
	StatusError    Status = "error"
)

// AllStatuses returns all valid automation statuses.
func AllStatuses() []Status {
	return []Status{StatusActive, StatusPaused, StatusDisabled, StatusError}
}

// Defaults applied by ApplyDefaults.
const (
	DefaultTimezone             = "UTC"
	DefaultCheckIntervalSeconds = 300
	DefaultMaxRetries           = 3
	DefaultRetryDelaySeconds    = 60
)

// Trigger describes what causes an automation to run.
//
// An event trigger with an empty EventName is never indexed and so never
// fires.
type Trigger struct {
	ID     string         `json:"id" yaml:"id"`
	Type   TriggerType    `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`

	// Event triggers
	EventName   string         `json:"event_name,omitempty" yaml:"event_name,omitempty"`
	EventFilter map[string]any `json:"event_filter,omitempty" yaml:"event_filter,omitempty"`

	// Schedule triggers (minute hour day month weekday)
	CronExpression string `json:"cron_expression,omitempty" yaml:"cron_expression,omitempty"`
	Timezone       string `json:"timezone" yaml:"timezone"`

	// Condition triggers
	ConditionExpression  string `json:"condition_expression,omitempty" yaml:"condition_expression,omitempty"`
	CheckIntervalSeconds int    `json:"check_interval_seconds" yaml:"check_interval_seconds"`
}

// Action is one unit of work performed by an automation.
type Action struct {
	ID     string         `json:"id" yaml:"id"`
	Type   ActionType     `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`

	// Record targeting (create/update/delete)
	TargetScope  string         `json:"target_scope,omitempty" yaml:"target_scope,omitempty"`
	TargetModule string         `json:"target_module,omitempty" yaml:"target_module,omitempty"`
	DataTemplate map[string]any `json:"data_template,omitempty" yaml:"data_template,omitempty"`

	// Guard expression; empty means always run
	RunIf string `json:"run_if,omitempty" yaml:"run_if,omitempty"`

	// Fixed-delay retry
	MaxRetries        int `json:"max_retries" yaml:"max_retries"`
	RetryDelaySeconds int `json:"retry_delay_seconds" yaml:"retry_delay_seconds"`
}

// actionFields has Action's fields without its decode methods.
type actionFields Action

// decodeDefaults is an Action with the retry policy defaults. Decoding
// over it leaves the defaults in place only for keys the input omits, so
// an explicit retry_delay_seconds of 0 is kept.
func decodeDefaults() actionFields {
	return actionFields{MaxRetries: DefaultMaxRetries, RetryDelaySeconds: DefaultRetryDelaySeconds}
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Action) UnmarshalJSON(data []byte) error {
	fields := decodeDefaults()
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*a = Action(fields)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (a *Action) UnmarshalYAML(node *yaml.Node) error {
	fields := decodeDefaults()
	if err := node.Decode(&fields); err != nil {
		return err
	}
	*a = Action(fields)
	return nil
}

// RetryDelay returns the fixed pause between attempts.
func (a Action) RetryDelay() time.Duration {
	return time.Duration(a.RetryDelaySeconds) * time.Second
}

// Automation is a named, owned rule pairing one Trigger with an ordered
// list of Actions. Action order is execution order.
type Automation struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
	OwnerID     string  `json:"owner_id" yaml:"owner_id"`
	Scope       string  `json:"scope" yaml:"scope"`

	Trigger Trigger  `json:"trigger" yaml:"trigger"`
	Actions []Action `json:"actions" yaml:"actions"`

	Status Status `json:"status" yaml:"status"`

	// Running statistics
	RunCount  int        `json:"run_count" yaml:"-"`
	LastRunAt *time.Time `json:"last_run_at,omitempty" yaml:"-"`
	LastError *string    `json:"last_error,omitempty" yaml:"-"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Result is the outcome of one action. It always carries a "success" or
// "skipped" key plus handler-specific data, and "error" on failure.
type Result map[string]any

// Result keys shared by the pipeline and handlers.
const (
	KeySuccess  = "success"
	KeyError    = "error"
	KeySkipped  = "skipped"
	KeyReason   = "reason"
	KeyActionID = "action_id"
	KeyAttempts = "attempts"
)

// Success builds a successful result carrying the given data.
func Success(data map[string]any) Result {
	r := make(Result, len(data)+1)
	for k, v := range data {
		r[k] = v
	}
	r[KeySuccess] = true
	return r
}

// Failure builds a failed result with an error message.
func Failure(msg string) Result {
	return Result{KeySuccess: false, KeyError: msg}
}

// Succeeded reports whether success == true.
func (r Result) Succeeded() bool {
	ok, _ := r[KeySuccess].(bool)
	return ok
}

// Skipped reports whether skipped == true.
func (r Result) Skipped() bool {
	ok, _ := r[KeySkipped].(bool)
	return ok
}

// Err returns the recorded error message, if any.
func (r Result) Err() string {
	s, _ := r[KeyError].(string)
	return s
}

// Run is the record of one execution of an automation.
// It is immutable once CompletedAt is set.
type Run struct {
	ID            string         `json:"id"`
	AutomationID  string         `json:"automation_id"`
	TriggerData   map[string]any `json:"trigger_data"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	ActionResults []Result       `json:"action_results"`
	Success       bool           `json:"success"`
	Error         *string        `json:"error,omitempty"`
}

// Duration returns the run's wall time, or zero while still running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// ApplyDefaults fills unset fields with their defaults. IDs are generated
// for the automation, its trigger and any action without one. A zero
// retry_delay_seconds is a valid delay; its default is applied when an
// action is decoded without the key.
func (a *Automation) ApplyDefaults() {
	if a.ID == "" {
		a.ID = GenerateID()
	}
	if a.Status == "" {
		a.Status = StatusActive
	}
	if a.Trigger.ID == "" {
		a.Trigger.ID = GenerateID()
	}
	if a.Trigger.Timezone == "" {
		a.Trigger.Timezone = DefaultTimezone
	}
	if a.Trigger.CheckIntervalSeconds == 0 {
		a.Trigger.CheckIntervalSeconds = DefaultCheckIntervalSeconds
	}
	for i := range a.Actions {
		act := &a.Actions[i]
		if act.ID == "" {
			act.ID = GenerateID()
		}
		if act.MaxRetries == 0 {
			act.MaxRetries = DefaultMaxRetries
		}
	}
}

// DeepCopy creates a complete independent copy of the Automation.
// All map and slice fields are cloned so modifications to the copy
// do not affect the registry's cached instance.
func (a *Automation) DeepCopy() *Automation {
	if a == nil {
		return nil
	}

	cpy := *a
	cpy.Description = cloneStringPtr(a.Description)
	cpy.LastError = cloneStringPtr(a.LastError)
	cpy.LastRunAt = cloneTimePtr(a.LastRunAt)

	cpy.Trigger.Config = deepCopyMap(a.Trigger.Config)
	cpy.Trigger.EventFilter = deepCopyMap(a.Trigger.EventFilter)

	if a.Actions != nil {
		cpy.Actions = make([]Action, len(a.Actions))
		for i, action := range a.Actions {
			cpy.Actions[i] = action
			cpy.Actions[i].Config = deepCopyMap(action.Config)
			cpy.Actions[i].DataTemplate = deepCopyMap(action.DataTemplate)
		}
	}

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case Result:
		return Result(deepCopyMap(val))
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
