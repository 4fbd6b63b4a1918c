package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrGraphUnavailable signals that the graph index cannot serve the
	// request and no primary-store fallback exists for it.
	ErrGraphUnavailable = errors.New("graph store unavailable")
)
