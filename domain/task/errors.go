package task

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a task does not exist or belongs to a
// different API key. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("task not found")

// ErrNotReady is returned when a result is requested before the task
// has completed.
var ErrNotReady = errors.New("task is not completed")

// ConflictError is returned when a cancellation is requested for a task
// already in a terminal state.
type ConflictError struct {
	TaskID string
	Status Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("task %s is already %s", e.TaskID, e.Status)
}
