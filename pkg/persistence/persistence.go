// Package persistence provides the storage abstraction for strategies.
package persistence

import (
	"context"
	"time"

	"github.com/quantfold/quantfold/pkg/models"
)

// Persistence is the strategy store used by the lifecycle coordinator and
// the local scheduler.
type Persistence interface {
	// StrategyByID returns the strategy with the given id, or
	// ErrStrategyNotFound.
	StrategyByID(ctx context.Context, id string) (*models.Strategy, error)

	// Strategies returns all stored strategies. Used by the local
	// scheduler to re-arm timers from persisted ACTIVE rows at startup.
	Strategies(ctx context.Context) ([]*models.Strategy, error)

	// SaveStrategy inserts or replaces a strategy row.
	SaveStrategy(ctx context.Context, strategy *models.Strategy) error

	// Begin opens the unit of work wrapping one lifecycle operation's
	// local mutations. Mutations are invisible to readers until Commit.
	Begin(ctx context.Context) (UnitOfWork, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// UnitOfWork is the transactional scope for a single lifecycle operation.
// Either Commit or Rollback must be called exactly once.
type UnitOfWork interface {
	// UpdateStatus sets the strategy's status and next-scheduled
	// timestamp. A nil nextScheduledAt clears the column.
	UpdateStatus(ctx context.Context, id string, status models.StrategyStatus, nextScheduledAt *time.Time, updatedAt time.Time) error

	// UpdateRemoteWorkflowID points the strategy at a provisioned remote
	// workflow.
	UpdateRemoteWorkflowID(ctx context.Context, id string, workflowID string, updatedAt time.Time) error

	Commit() error
	Rollback() error
}
