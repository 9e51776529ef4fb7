package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientSamples is matched by InsufficientSamplesError
	ErrInsufficientSamples = errors.New("insufficient samples")
	// ErrIndexOutOfRange is matched by IndexError
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrStaleGeneration means indices were sampled before the last Clear
	ErrStaleGeneration = errors.New("stale buffer generation")
	// ErrClosed is returned by every operation after Close
	ErrClosed = errors.New("replay buffer closed")
	// ErrInvalidArgument wraps caller mistakes: bad batch sizes, mismatched
	// slices, priorities or beta outside their domain, nil transitions
	ErrInvalidArgument = errors.New("invalid argument")
)

// InsufficientSamplesError is returned when a batch cannot be filled yet.
// Callers are expected to skip the training step.
type InsufficientSamplesError struct {
	Requested int
	Available int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("insufficient samples: requested %d, %d available", e.Requested, e.Available)
}

func (e *InsufficientSamplesError) Is(target error) bool {
	return target == ErrInsufficientSamples
}

// IndexError is returned for a slot outside the filled region of the buffer
type IndexError struct {
	Index     int
	Available int
	Capacity  int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range: %d of %d slots filled", e.Index, e.Available, e.Capacity)
}

func (e *IndexError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}
