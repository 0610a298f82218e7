package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineUnavailable means no engine access mode works.
	ErrEngineUnavailable = errors.New("container engine is not available")

	// ErrNotFound means the container does not exist. Callers asking
	// "does it exist" absorb it.
	ErrNotFound = errors.New("container not found")

	// ErrTimeout means a bounded engine call exceeded its deadline.
	ErrTimeout = errors.New("engine operation timed out")

	// ErrInvalidIdentifier is matched by every InvalidIdentifierError.
	ErrInvalidIdentifier = errors.New("invalid instance identifier")
)

// InvalidIdentifierError reports an instance id outside [0, Max).
type InvalidIdentifierError struct {
	ID  int
	Max int
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("instance ID must be between 0 and %d, got %d", e.Max-1, e.ID)
}

func (e *InvalidIdentifierError) Is(target error) bool {
	return target == ErrInvalidIdentifier
}

// EngineError wraps an engine reported failure with the operation and container it hit.
type EngineError struct {
	Op        string
	Container string
	Err       error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Container, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// NewEngineError wraps err as an EngineError. Errors already carrying one of the
// taxonomy sentinels keep it and only gain the operation context.
func NewEngineError(op, container string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrEngineUnavailable) {
		return fmt.Errorf("%s %s: %w", op, container, err)
	}
	return &EngineError{Op: op, Container: container, Err: err}
}
