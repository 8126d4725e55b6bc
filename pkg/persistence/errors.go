// Package persistence provides standardized error types for store operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrStrategyNotFound indicates no strategy exists for the given id.
	ErrStrategyNotFound = errors.New("strategy not found")

	// ErrStrategyAlreadyExists indicates a strategy with the same id
	// already exists.
	ErrStrategyAlreadyExists = errors.New("strategy already exists")

	// ErrUnitOfWorkClosed indicates Commit or Rollback was called on an
	// already-finished unit of work.
	ErrUnitOfWorkClosed = errors.New("unit of work already closed")
)

// StrategyError wraps strategy store errors with operation context.
type StrategyError struct {
	Op         string // Operation being performed (e.g., "StrategyByID", "UpdateStatus")
	StrategyID string
	Err        error
}

func (e *StrategyError) Error() string {
	if e.StrategyID == "" {
		return fmt.Sprintf("%s operation failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for strategy %s: %v", e.Op, e.StrategyID, e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}

func (e *StrategyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStrategyError creates a strategy store error with context.
func NewStrategyError(op, strategyID string, err error) *StrategyError {
	return &StrategyError{
		Op:         op,
		StrategyID: strategyID,
		Err:        err,
	}
}

// IsStrategyNotFound checks if an error indicates a missing strategy.
func IsStrategyNotFound(err error) bool {
	return errors.Is(err, ErrStrategyNotFound)
}
