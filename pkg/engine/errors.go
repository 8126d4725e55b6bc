package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable indicates the engine could not be reached or
	// rejected the request. Network failures, timeouts and non-2xx
	// responses all collapse into this kind; the engine gives callers no
	// partial-success structure to act on.
	ErrUnavailable = errors.New("workflow engine unavailable or rejected the request")

	// ErrWorkflowGone indicates the referenced workflow no longer exists
	// on the engine (deleted out-of-band).
	ErrWorkflowGone = errors.New("remote workflow no longer exists")
)

// Error wraps engine client failures with operation context.
type Error struct {
	Op         string // Operation being performed (e.g., "Create", "Activate")
	WorkflowID string
	StatusCode int // HTTP status, 0 on transport failure
	Err        error
}

func (e *Error) Error() string {
	if e.WorkflowID == "" {
		return fmt.Sprintf("engine %s failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("engine %s failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates an engine client error with context.
func NewError(op, workflowID string, statusCode int, err error) *Error {
	return &Error{
		Op:         op,
		WorkflowID: workflowID,
		StatusCode: statusCode,
		Err:        err,
	}
}

// IsUnavailable checks if an error indicates the engine was unreachable or
// rejected a call.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsWorkflowGone checks if an error indicates the remote workflow was
// deleted out-of-band.
func IsWorkflowGone(err error) bool {
	return errors.Is(err, ErrWorkflowGone)
}
