package errors

import (
	"errors"
	"fmt"

	"github.com/qolzam/kinit-dal/internal/database/interfaces"
)

// Task service errors.
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrInvalidTaskData   = errors.New("invalid task data")
	ErrSchedulerOffline  = errors.New("scheduler broker unavailable")
	ErrDatabaseOperation = errors.New("database operation failed")
)

// Error codes
const (
	CodeTaskNotFound     = "TASK_NOT_FOUND"
	CodeInvalidData      = "INVALID_DATA"
	CodeSchedulerOffline = "SCHEDULER_UNAVAILABLE"
	CodeDatabaseError    = "DATABASE_ERROR"
)

// TaskError carries a code, a message and the error that caused it.
type TaskError struct {
	Code    string
	Message string
	Cause   error
}

func (e *TaskError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TaskError) Unwrap() error {
	return e.Cause
}

// Is matches the package sentinel that corresponds to the error code.
func (e *TaskError) Is(target error) bool {
	switch e.Code {
	case CodeTaskNotFound:
		return target == ErrTaskNotFound
	case CodeInvalidData:
		return target == ErrInvalidTaskData
	case CodeSchedulerOffline:
		return target == ErrSchedulerOffline
	case CodeDatabaseError:
		return target == ErrDatabaseOperation
	}
	return false
}

func NewTaskError(code, message string, cause error) *TaskError {
	return &TaskError{Code: code, Message: message, Cause: cause}
}

// Wrap converts repository and bridge errors into a TaskError. Other errors pass through.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return err
	}
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return NewTaskError(CodeTaskNotFound, "Task not found", err)
	case errors.Is(err, interfaces.ErrInvalidFilter),
		errors.Is(err, interfaces.ErrInvalidIdentifier),
		errors.Is(err, interfaces.ErrInvalidPayload):
		return NewTaskError(CodeInvalidData, "Invalid task data", err)
	case errors.Is(err, interfaces.ErrStoreUnavailable):
		return NewTaskError(CodeDatabaseError, "Database operation failed", err)
	}
	return err
}

// WrapPublishError marks a failed enqueue after the task itself was stored.
func WrapPublishError(err error) *TaskError {
	return NewTaskError(CodeSchedulerOffline, "Task stored but not scheduled", err)
}
