package automation

import (
	"context"
	"fmt"
	"time"
)

// ActionHandler executes one action type.
//
// Implementations return a Result whose "success" key reports the outcome.
// A returned error is treated like a failed result: the dispatcher records
// it and retries. Handlers must not modify execCtx.
type ActionHandler interface {
	Execute(ctx context.Context, action Action, execCtx map[string]any) (Result, error)
}

// HandlerFunc adapts a function to the ActionHandler interface.
type HandlerFunc func(ctx context.Context, action Action, execCtx map[string]any) (Result, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, action Action, execCtx map[string]any) (Result, error) {
	return f(ctx, action, execCtx)
}

// Dispatcher routes actions to their handler and applies fixed-delay retry.
//
// The handler table is fixed at construction. Action types without a
// handler produce a failed result rather than an error.
type Dispatcher struct {
	handlers map[ActionType]ActionHandler
	logger   Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher over the given handler table.
//
// Parameters:
//   - handlers: One handler per action type (types may be omitted)
//   - logger: Logger for attempt failures (may be nil)
//
// Returns:
//   - error: ErrUnknownActionType if a key is outside AllActionTypes,
//     or ErrInvalidAction if a handler is nil
func NewDispatcher(handlers map[ActionType]ActionHandler, logger Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	known := make(map[ActionType]struct{}, len(AllActionTypes()))
	for _, t := range AllActionTypes() {
		known[t] = struct{}{}
	}

	table := make(map[ActionType]ActionHandler, len(handlers))
	for t, h := range handlers {
		if _, ok := known[t]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownActionType, t)
		}
		if h == nil {
			return nil, fmt.Errorf("%w: nil handler for %q", ErrInvalidAction, t)
		}
		table[t] = h
	}

	return &Dispatcher{
		handlers: table,
		logger:   logger,
		sleep:    sleepContext,
	}, nil
}

// Handles reports whether a handler is registered for t.
func (d *Dispatcher) Handles(t ActionType) bool {
	_, ok := d.handlers[t]
	return ok
}

// Execute runs the action's handler up to action.MaxRetries times,
// stopping at the first successful result and pausing
// action.RetryDelaySeconds between attempts. Handler errors and panics
// count as failed attempts.
//
// On exhaustion the result is {success: false, error: <last error>,
// attempts: <attempts made>}.
func (d *Dispatcher) Execute(ctx context.Context, action Action, execCtx map[string]any) Result {
	handler, ok := d.handlers[action.Type]
	if !ok {
		return Failure(fmt.Sprintf("no handler for action type %s", action.Type))
	}

	maxAttempts := max(action.MaxRetries, 1)
	var lastErr string
	attempts := 0

	for attempts < maxAttempts {
		attempts++

		result, err := d.attempt(ctx, handler, action, execCtx)
		switch {
		case err != nil:
			lastErr = err.Error()
		case result == nil:
			lastErr = "handler returned no result"
		case result.Succeeded():
			return result
		default:
			lastErr = result.Err()
		}

		d.logger.Warn("action attempt failed",
			"action_id", action.ID,
			"action_type", string(action.Type),
			"attempt", attempts,
			"max_retries", maxAttempts,
			"error", lastErr,
		)

		if attempts < maxAttempts {
			if sleepErr := d.sleep(ctx, action.RetryDelay()); sleepErr != nil {
				lastErr = fmt.Sprintf("retry interrupted: %v", sleepErr)
				break
			}
		}
	}

	return Result{
		KeySuccess:  false,
		KeyError:    lastErr,
		KeyAttempts: attempts,
	}
}

// attempt calls the handler once, converting a panic into an error.
func (d *Dispatcher) attempt(ctx context.Context, h ActionHandler, action Action, execCtx map[string]any) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Execute(ctx, action, execCtx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
