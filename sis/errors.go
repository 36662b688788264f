package sis

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when a network, an initial state or a
	// simulator configuration is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIterationLimitExceeded is returned when a run would take more steps
	// than the configured cap.
	ErrIterationLimitExceeded = errors.New("iteration limit exceeded")
)

// IterationLimitError reports a run rejected because it requested more steps
// than allowed. It matches ErrIterationLimitExceeded with errors.Is.
type IterationLimitError struct {
	Steps int // requested number of steps
	Limit int // configured cap
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("number of iterations (%d) exceeds the maximum number of iterations (%d)", e.Steps, e.Limit)
}

func (e *IterationLimitError) Is(target error) bool {
	return target == ErrIterationLimitExceeded
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
