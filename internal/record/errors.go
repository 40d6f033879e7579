package record

import "errors"

var (
	// ErrNotFound is returned when a record ID does not exist.
	ErrNotFound = errors.New("record: not found")

	// ErrInvalidRecord is returned when scope or module is missing.
	ErrInvalidRecord = errors.New("record: invalid")
)
