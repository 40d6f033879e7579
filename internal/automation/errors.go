package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotFound is returned when an automation ID does not exist.
	ErrNotFound = errors.New("automation: not found")

	// ErrExists is returned when creating an automation with an ID that already exists.
	ErrExists = errors.New("automation: already exists")

	// ErrInvalidAutomation is returned when automation validation fails.
	ErrInvalidAutomation = errors.New("automation: invalid")

	// ErrInvalidName is returned when an automation name is empty or too long.
	ErrInvalidName = errors.New("automation: invalid name")

	// ErrInvalidTrigger is returned when a trigger is malformed.
	ErrInvalidTrigger = errors.New("automation: invalid trigger")

	// ErrInvalidAction is returned when an action is malformed.
	ErrInvalidAction = errors.New("automation: invalid action")

	// ErrInvalidStatus is returned for a status outside the closed set.
	ErrInvalidStatus = errors.New("automation: invalid status")

	// ErrTriggerMismatch is returned when an automation is fired through a
	// channel its trigger type does not accept (e.g. a webhook call on an
	// event automation).
	ErrTriggerMismatch = errors.New("automation: trigger type mismatch")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("automation: run not found")

	// ErrUnknownActionType is returned when registering a handler for a
	// type outside the ActionType set.
	ErrUnknownActionType = errors.New("automation: unknown action type")

	// ErrSchedulerRunning is returned by StartScheduler when already started.
	ErrSchedulerRunning = errors.New("automation: scheduler already running")
)
