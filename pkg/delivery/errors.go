package delivery

import "errors"

var (
	// ErrTransportRequired is returned by New when no transport is supplied.
	ErrTransportRequired = errors.New("delivery: transport is required")

	// ErrStoreRequired is returned by New when no log storage is supplied.
	ErrStoreRequired = errors.New("delivery: log storage is required")

	// ErrRegistryRequired is returned by New when no template registry is supplied.
	ErrRegistryRequired = errors.New("delivery: template registry is required")
)
