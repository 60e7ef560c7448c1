package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	// Invariant rejections. These refuse the operation entirely; no partial
	// state change is applied when one of them is returned.
	ErrInsufficientBalance   = errors.New("insufficient available balance")
	ErrInsufficientAvailable = errors.New("insufficient available quantity")
	ErrInsufficientFrozen    = errors.New("insufficient frozen quantity")
	ErrPositionClosed        = errors.New("position is closed")

	// ErrDuplicateSource is returned by journal stores when a row with the
	// same (source_type, source_id) pair already exists. Settlement treats it
	// as the idempotent no-op case, not as a failure.
	ErrDuplicateSource = errors.New("duplicate source reference")

	ErrNodeDisabled = errors.New("execution node disabled")
	ErrInvalidOrder = errors.New("invalid order parameters")
)
