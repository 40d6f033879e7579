package action

import "errors"

var (
	// ErrMissingConfig is returned when a required config key is absent or empty.
	ErrMissingConfig = errors.New("action: missing config")

	// ErrNotConfigured is returned when a handler's collaborator was not provided.
	ErrNotConfigured = errors.New("action: collaborator not configured")
)
