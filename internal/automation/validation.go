package automation

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Validation constants.
const (
	maxNameLength        = 200
	maxDescriptionLen    = 1000
	maxActions           = 50
	minRetries           = 1
	maxRetries           = 10
	maxRetryDelaySeconds = 3600
	maxCheckInterval     = 86400
	maxEventNameLength   = 200
)

// Pre-computed validation sets for O(1) lookups.
var (
	validTriggerTypes map[TriggerType]struct{}
	validActionTypes  map[ActionType]struct{}
	validStatuses     map[Status]struct{}
)

func init() {
	validTriggerTypes = make(map[TriggerType]struct{}, len(AllTriggerTypes()))
	for _, t := range AllTriggerTypes() {
		validTriggerTypes[t] = struct{}{}
	}
	validActionTypes = make(map[ActionType]struct{}, len(AllActionTypes()))
	for _, t := range AllActionTypes() {
		validActionTypes[t] = struct{}{}
	}
	validStatuses = make(map[Status]struct{}, len(AllStatuses()))
	for _, s := range AllStatuses() {
		validStatuses[s] = struct{}{}
	}
}

// ValidateAutomation performs comprehensive validation on an automation.
// Defaults should be applied first. Returns the first failure found.
func ValidateAutomation(a *Automation) error {
	if a == nil {
		return ErrInvalidAutomation
	}
	if err := ValidateName(a.Name); err != nil {
		return err
	}
	if a.Description != nil && len(*a.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidAutomation, maxDescriptionLen)
	}
	if strings.TrimSpace(a.OwnerID) == "" {
		return fmt.Errorf("%w: owner_id is required", ErrInvalidAutomation)
	}
	if err := ValidateStatus(a.Status); err != nil {
		return err
	}
	if err := ValidateTrigger(a.Trigger); err != nil {
		return err
	}
	if len(a.Actions) > maxActions {
		return fmt.Errorf("%w: exceeds maximum of %d actions", ErrInvalidAction, maxActions)
	}

	seen := make(map[string]struct{}, len(a.Actions))
	for i, action := range a.Actions {
		if err := ValidateAction(action); err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
		if _, dup := seen[action.ID]; dup {
			return fmt.Errorf("action[%d]: %w: duplicate id %q", i, ErrInvalidAction, action.ID)
		}
		seen[action.ID] = struct{}{}
	}
	return nil
}

// ValidateName checks if an automation name is valid.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateStatus checks that s is one of AllStatuses.
func ValidateStatus(s Status) error {
	if _, ok := validStatuses[s]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return nil
}

// ValidateTrigger checks a trigger's type-specific fields.
//
// An event trigger without an event name is accepted (it is simply never
// indexed); Diagnostics reports it.
func ValidateTrigger(t Trigger) error {
	if _, ok := validTriggerTypes[t.Type]; !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTrigger, t.Type)
	}
	if t.Timezone != "" {
		if _, err := time.LoadLocation(t.Timezone); err != nil {
			return fmt.Errorf("%w: timezone %q: %v", ErrInvalidTrigger, t.Timezone, err) //nolint:errorlint // single %w for the sentinel
		}
	}
	if t.CheckIntervalSeconds < 0 || t.CheckIntervalSeconds > maxCheckInterval {
		return fmt.Errorf("%w: check_interval_seconds must be 0-%d", ErrInvalidTrigger, maxCheckInterval)
	}

	switch t.Type { //nolint:exhaustive // remaining types have no required fields
	case TriggerEvent:
		if len(t.EventName) > maxEventNameLength {
			return fmt.Errorf("%w: event_name exceeds %d characters", ErrInvalidTrigger, maxEventNameLength)
		}
	case TriggerSchedule:
		if len(strings.Fields(t.CronExpression)) != cronFieldCount {
			return fmt.Errorf("%w: cron_expression must have %d fields", ErrInvalidTrigger, cronFieldCount)
		}
	case TriggerCondition:
		if strings.TrimSpace(t.ConditionExpression) == "" {
			return fmt.Errorf("%w: condition_expression is required", ErrInvalidTrigger)
		}
	}
	return nil
}

// ValidateAction checks if an action is valid.
func ValidateAction(action Action) error {
	if action.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidAction)
	}
	if _, ok := validActionTypes[action.Type]; !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, action.Type)
	}
	if action.MaxRetries < minRetries || action.MaxRetries > maxRetries {
		return fmt.Errorf("%w: max_retries must be %d-%d", ErrInvalidAction, minRetries, maxRetries)
	}
	if action.RetryDelaySeconds < 0 || action.RetryDelaySeconds > maxRetryDelaySeconds {
		return fmt.Errorf("%w: retry_delay_seconds must be 0-%d", ErrInvalidAction, maxRetryDelaySeconds)
	}
	return nil
}

// Diagnostics returns human-readable warnings for an automation that is
// valid but will not behave as its author probably expects.
func Diagnostics(a *Automation, mode CronMode) []string {
	var warnings []string
	t := a.Trigger

	switch t.Type { //nolint:exhaustive // only event and schedule triggers have silent failure modes
	case TriggerEvent:
		if t.EventName == "" {
			warnings = append(warnings, "event trigger has no event_name and will never fire")
		}
	case TriggerSchedule:
		warnings = append(warnings, CronWarnings(t.CronExpression, mode)...)
	}

	for _, action := range a.Actions {
		if action.Type == ActionCustom {
			warnings = append(warnings, fmt.Sprintf("action %s: custom actions need a registered handler", action.ID))
		}
	}
	return warnings
}

// GenerateID creates a new UUID for an automation, trigger or action.
func GenerateID() string {
	return uuid.New().String()
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0) //nolint:gosec // IDs, not secrets
)

// NewRunID creates a time-ordered ULID for a run started at t.
// Run IDs sort in start order.
func NewRunID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
