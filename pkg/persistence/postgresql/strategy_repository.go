package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/quantfold/pkg/models"
	"github.com/quantfold/quantfold/pkg/persistence"
)

const strategyColumns = `
	id
  , owner_id
  , name
  , budget
  , risk_level
  , frequency
  , status
  , remote_workflow_id
  , next_scheduled_at
  , created_at
  , updated_at
`

// StrategyRepository handles strategy-related database operations.
type StrategyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStrategyRepository creates a new strategy repository.
func NewStrategyRepository(db *sql.DB, logger *slog.Logger) *StrategyRepository {
	return &StrategyRepository{db: db, logger: logger}
}

// GetAll returns all strategies ordered by creation time.
func (r *StrategyRepository) GetAll(ctx context.Context) ([]*models.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistence.NewStrategyError("Strategies", "", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	strategies := make([]*models.Strategy, 0)

	for rows.Next() {
		strategy, err := scanStrategy(rows)
		if err != nil {
			return nil, persistence.NewStrategyError("Strategies", "", err)
		}

		strategies = append(strategies, strategy)
	}

	if err := rows.Err(); err != nil {
		return nil, persistence.NewStrategyError("Strategies", "", err)
	}

	return strategies, nil
}

// GetByID returns the strategy with the given id, or ErrStrategyNotFound.
func (r *StrategyRepository) GetByID(ctx context.Context, id string) (*models.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE id = $1`

	strategy, err := scanStrategy(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewStrategyError("StrategyByID", id, persistence.ErrStrategyNotFound)
		}

		return nil, persistence.NewStrategyError("StrategyByID", id, err)
	}

	return strategy, nil
}

// Save inserts or replaces a strategy row.
func (r *StrategyRepository) Save(ctx context.Context, strategy *models.Strategy) error {
	now := time.Now().UTC()

	if strategy.CreatedAt.IsZero() {
		strategy.CreatedAt = now
	}

	strategy.UpdatedAt = now

	query := `
		INSERT INTO strategies (
			id, owner_id, name, budget, risk_level, frequency, status,
			remote_workflow_id, next_scheduled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			name = EXCLUDED.name,
			budget = EXCLUDED.budget,
			risk_level = EXCLUDED.risk_level,
			frequency = EXCLUDED.frequency,
			status = EXCLUDED.status,
			remote_workflow_id = EXCLUDED.remote_workflow_id,
			next_scheduled_at = EXCLUDED.next_scheduled_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		strategy.ID,
		strategy.OwnerID,
		strategy.Name,
		strategy.Budget.String(),
		string(strategy.RiskLevel),
		string(strategy.Frequency),
		string(strategy.Status),
		strategy.RemoteWorkflowID,
		strategy.NextScheduledAt,
		strategy.CreatedAt,
		strategy.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStrategyError("SaveStrategy", strategy.ID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStrategy(row rowScanner) (*models.Strategy, error) {
	var (
		strategy         models.Strategy
		budget           string
		riskLevel        string
		frequency        string
		status           string
		remoteWorkflowID sql.NullString
		nextScheduledAt  sql.NullTime
	)

	err := row.Scan(
		&strategy.ID,
		&strategy.OwnerID,
		&strategy.Name,
		&budget,
		&riskLevel,
		&frequency,
		&status,
		&remoteWorkflowID,
		&nextScheduledAt,
		&strategy.CreatedAt,
		&strategy.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedBudget, err := decimal.NewFromString(budget)
	if err != nil {
		return nil, fmt.Errorf("failed to parse budget %q: %w", budget, err)
	}

	strategy.Budget = parsedBudget
	strategy.RiskLevel = models.RiskLevel(riskLevel)
	strategy.Frequency = models.Frequency(frequency)
	strategy.Status = models.StrategyStatus(status)

	if remoteWorkflowID.Valid {
		strategy.RemoteWorkflowID = &remoteWorkflowID.String
	}

	if nextScheduledAt.Valid {
		scheduledAt := nextScheduledAt.Time
		strategy.NextScheduledAt = &scheduledAt
	}

	return &strategy, nil
}

type unitOfWork struct {
	tx     *sql.Tx
	closed bool
}

func (u *unitOfWork) UpdateStatus(ctx context.Context, id string, status models.StrategyStatus, nextScheduledAt *time.Time, updatedAt time.Time) error {
	if u.closed {
		return persistence.ErrUnitOfWorkClosed
	}

	result, err := u.tx.ExecContext(ctx,
		`UPDATE strategies SET status = $2, next_scheduled_at = $3, updated_at = $4 WHERE id = $1`,
		id, string(status), nextScheduledAt, updatedAt,
	)
	if err != nil {
		return persistence.NewStrategyError("UpdateStatus", id, err)
	}

	return requireRow(result, "UpdateStatus", id)
}

func (u *unitOfWork) UpdateRemoteWorkflowID(ctx context.Context, id string, workflowID string, updatedAt time.Time) error {
	if u.closed {
		return persistence.ErrUnitOfWorkClosed
	}

	result, err := u.tx.ExecContext(ctx,
		`UPDATE strategies SET remote_workflow_id = $2, updated_at = $3 WHERE id = $1`,
		id, workflowID, updatedAt,
	)
	if err != nil {
		return persistence.NewStrategyError("UpdateRemoteWorkflowID", id, err)
	}

	return requireRow(result, "UpdateRemoteWorkflowID", id)
}

func (u *unitOfWork) Commit() error {
	if u.closed {
		return persistence.ErrUnitOfWorkClosed
	}

	u.closed = true

	if err := u.tx.Commit(); err != nil {
		return persistence.NewStrategyError("Commit", "", err)
	}

	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.closed {
		return persistence.ErrUnitOfWorkClosed
	}

	u.closed = true

	if err := u.tx.Rollback(); err != nil {
		return persistence.NewStrategyError("Rollback", "", err)
	}

	return nil
}

func requireRow(result sql.Result, op, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStrategyError(op, id, err)
	}

	if affected == 0 {
		return persistence.NewStrategyError(op, id, persistence.ErrStrategyNotFound)
	}

	return nil
}
