package mailer

import "errors"

var (
	// ErrInvalidConfig is returned when required relay settings are missing.
	ErrInvalidConfig = errors.New("mailer: invalid configuration")

	// ErrClosed is reported in results after Close has been called.
	ErrClosed = errors.New("mailer: mailer is closed")
)
