// Package postgresql provides the PostgreSQL strategy store.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"github.com/quantfold/quantfold/pkg/models"
	"github.com/quantfold/quantfold/pkg/persistence"
)

// Persistence implements the strategy store on PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	strategyRepo *StrategyRepository
}

// NewPersistence connects to PostgreSQL and runs pending schema migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := NewMigrationManager(logger, database, migrations())

	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		strategyRepo: NewStrategyRepository(database, logger),
	}, nil
}

// StrategyByID returns the strategy with the given id.
func (p *Persistence) StrategyByID(ctx context.Context, id string) (*models.Strategy, error) {
	return p.strategyRepo.GetByID(ctx, id)
}

// Strategies returns all strategies.
func (p *Persistence) Strategies(ctx context.Context) ([]*models.Strategy, error) {
	return p.strategyRepo.GetAll(ctx)
}

// SaveStrategy inserts or replaces a strategy row.
func (p *Persistence) SaveStrategy(ctx context.Context, strategy *models.Strategy) error {
	return p.strategyRepo.Save(ctx, strategy)
}

// Begin opens a database transaction as the unit of work for one lifecycle
// operation.
func (p *Persistence) Begin(ctx context.Context) (persistence.UnitOfWork, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.NewStrategyError("Begin", "", err)
	}

	return &unitOfWork{tx: tx}, nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
