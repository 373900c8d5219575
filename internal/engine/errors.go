package engine

import (
	"errors"
	"fmt"
)

// ErrTaskCreationFailed matches any *TaskCreationError via errors.Is.
var ErrTaskCreationFailed = errors.New("task creation failed")

// TaskCreationError reports that the marketplace did not produce a usable
// task for key. Nothing was written to the ledger.
type TaskCreationError struct {
	Key   string
	Cause error
}

func (e *TaskCreationError) Error() string {
	return fmt.Sprintf("%s: task creation failed: %v", e.Key, e.Cause)
}

func (e *TaskCreationError) Unwrap() error {
	return e.Cause
}

// Is reports ErrTaskCreationFailed as a match.
func (e *TaskCreationError) Is(target error) bool {
	return target == ErrTaskCreationFailed
}
