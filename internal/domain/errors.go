package domain

import "errors"

var (
	// ErrStorageUnavailable is returned when the progress store cannot be
	// read or written. It is surfaced to the caller and never retried.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrStorageCorrupt is returned when the durable store exists but its
	// contents cannot be decoded.
	ErrStorageCorrupt = errors.New("storage corrupt")

	// ErrInvalidOutcome is returned for votes other than known/unknown.
	ErrInvalidOutcome = errors.New("invalid vote outcome")

	// ErrMissingUser is returned when an operation is called without a user identity.
	ErrMissingUser = errors.New("missing user identity")
)
