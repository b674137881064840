package ratelimit

import "errors"

var (
	// ErrInvalidLimit indicates a non-positive ceiling.
	ErrInvalidLimit = errors.New("invalid limit")

	// ErrInvalidWindow indicates a non-positive window size.
	ErrInvalidWindow = errors.New("invalid window")

	// ErrKeyRequired indicates an empty rate limit key.
	ErrKeyRequired = errors.New("key is required")

	// ErrStoreRequired indicates a nil store backend.
	ErrStoreRequired = errors.New("store is required")
)
