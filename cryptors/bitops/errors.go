package bitops

import "errors"

var (
	// ErrAllocation is returned when storage for a buffer cannot be obtained.
	ErrAllocation = errors.New("bitops: storage allocation failed")
	// ErrIndex is returned when a bit index or range lies outside a buffer.
	ErrIndex = errors.New("bitops: bit index out of range")
)
