package maillog

import "errors"

var (
	// ErrLogNotFound is returned when an operation references an unknown record id.
	ErrLogNotFound = errors.New("maillog: log record not found")

	// ErrNilRecord is returned when Create is called with a nil record.
	ErrNilRecord = errors.New("maillog: record cannot be nil")

	// ErrInvalidStatus is returned for status values outside the state machine.
	ErrInvalidStatus = errors.New("maillog: invalid status")

	// ErrInvalidPriority is returned for unknown priority values.
	ErrInvalidPriority = errors.New("maillog: invalid priority")

	// ErrInvalidTransition is returned when a status update would move a
	// record out of a terminal state.
	ErrInvalidTransition = errors.New("maillog: invalid status transition")
)
