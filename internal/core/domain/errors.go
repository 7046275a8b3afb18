package domain

import "errors"

var (
	// ErrContentionTimeout is returned when a strategy exhausts its retry budget.
	ErrContentionTimeout = errors.New("contention timeout")

	// ErrStoreUnavailable wraps transport failures from Redis or MySQL.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInterruptedWait is returned when a backoff wait is cut short by the context.
	ErrInterruptedWait = errors.New("interrupted wait")

	// ErrConflict reports a lost optimistic race: an aborted watched
	// transaction or a version mismatch.
	ErrConflict = errors.New("concurrent modification")

	ErrRecordNotFound   = errors.New("inventory record not found")
	ErrMalformedCounter = errors.New("malformed counter value")
)
