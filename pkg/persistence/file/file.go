// Package file provides a file-based strategy store for tests and the local
// deployment mode.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/quantfold/quantfold/pkg/models"
	"github.com/quantfold/quantfold/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of one JSON file per
// strategy. A unit of work holds the store lock for its whole lifetime, so
// concurrent units of work on the same store are serialized.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

// NewPersistence creates a file store rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

func (p *Persistence) strategyPath(id string) string {
	return filepath.Join(p.root, "strategies", id+".json")
}

// StrategyByID returns the strategy stored under the given id.
func (p *Persistence) StrategyByID(ctx context.Context, id string) (*models.Strategy, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.readStrategy(id)
}

func (p *Persistence) readStrategy(id string) (*models.Strategy, error) {
	raw, err := os.ReadFile(p.strategyPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStrategyError("StrategyByID", id, persistence.ErrStrategyNotFound)
		}

		return nil, persistence.NewStrategyError("StrategyByID", id, err)
	}

	var strategy models.Strategy
	if err := json.Unmarshal(raw, &strategy); err != nil {
		return nil, persistence.NewStrategyError("StrategyByID", id, fmt.Errorf("corrupt strategy file: %w", err))
	}

	return &strategy, nil
}

// Strategies returns every stored strategy.
func (p *Persistence) Strategies(ctx context.Context) ([]*models.Strategy, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(p.root, "strategies"))
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Strategy{}, nil
		}

		return nil, persistence.NewStrategyError("Strategies", "", err)
	}

	strategies := make([]*models.Strategy, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		strategy, err := p.readStrategy(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		strategies = append(strategies, strategy)
	}

	return strategies, nil
}

// SaveStrategy inserts or replaces a strategy row.
func (p *Persistence) SaveStrategy(ctx context.Context, strategy *models.Strategy) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.writeStrategy(strategy)
}

func (p *Persistence) writeStrategy(strategy *models.Strategy) error {
	if err := os.MkdirAll(filepath.Join(p.root, "strategies"), 0o755); err != nil {
		return persistence.NewStrategyError("SaveStrategy", strategy.ID, err)
	}

	raw, err := json.MarshalIndent(strategy, "", "  ")
	if err != nil {
		return persistence.NewStrategyError("SaveStrategy", strategy.ID, err)
	}

	if err := os.WriteFile(p.strategyPath(strategy.ID), raw, 0o644); err != nil {
		return persistence.NewStrategyError("SaveStrategy", strategy.ID, err)
	}

	return nil
}

// Begin opens a unit of work. Staged mutations are written out on Commit and
// discarded on Rollback; the store lock is held until either.
func (p *Persistence) Begin(ctx context.Context) (persistence.UnitOfWork, error) {
	p.mu.Lock()

	return &unitOfWork{store: p, staged: make(map[string]*models.Strategy)}, nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for the file store.
func (p *Persistence) Close(ctx context.Context) error {
	return nil
}

type unitOfWork struct {
	store  *Persistence
	staged map[string]*models.Strategy
	closed bool
}

func (u *unitOfWork) load(id string) (*models.Strategy, error) {
	if strategy, ok := u.staged[id]; ok {
		return strategy, nil
	}

	return u.store.readStrategy(id)
}

func (u *unitOfWork) UpdateStatus(ctx context.Context, id string, status models.StrategyStatus, nextScheduledAt *time.Time, updatedAt time.Time) error {
	if u.closed {
		return persistence.ErrUnitOfWorkClosed
	}

	strategy, err := u.load(id)
	if err != nil {
		return persistence.NewStrategyError("UpdateStatus", id, err)
	}

	strategy.Status = status
	strategy.NextScheduledAt = nextScheduledAt
	strategy.UpdatedAt = updatedAt
	u.staged[id] = strategy

	return nil
}

func (u *unitOfWork) UpdateRemoteWorkflowID(ctx context.Context, id string, workflowID string, updatedAt time.Time) error {
	if u.closed {
		return persistence.ErrUnitOfWorkClosed
	}

	strategy, err := u.load(id)
	if err != nil {
		return persistence.NewStrategyError("UpdateRemoteWorkflowID", id, err)
	}

	strategy.RemoteWorkflowID = &workflowID
	strategy.UpdatedAt = updatedAt
	u.staged[id] = strategy

	return nil
}

func (u *unitOfWork) Commit() error {
	if u.closed {
		return persistence.ErrUnitOfWorkClosed
	}

	defer u.finish()

	for _, strategy := range u.staged {
		if err := u.store.writeStrategy(strategy); err != nil {
			return err
		}
	}

	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.closed {
		return persistence.ErrUnitOfWorkClosed
	}

	u.finish()

	return nil
}

func (u *unitOfWork) finish() {
	u.closed = true
	u.staged = nil
	u.store.mu.Unlock()
}
