// Package scheduler runs strategy analysis on an in-process timer for
// deployments without a remote workflow engine.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"github.com/quantfold/quantfold/pkg/models"
	"github.com/quantfold/quantfold/pkg/persistence"
)

// Callback is invoked on the strategy's cadence. It runs the analysis
// pipeline directly; the pipeline itself is an external collaborator.
type Callback func(ctx context.Context, strategyID string)

// LocalScheduler arms one cron entry per strategy. State is held in an
// explicit map owned by this instance and injected where needed; there is no
// process-wide registry. Nothing is persisted: armed timers are lost on
// restart, and callers must re-arm from stored ACTIVE rows via RearmActive.
type LocalScheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	id        cron.EntryID
	frequency models.Frequency
	armed     bool
}

// NewLocalScheduler creates a stopped scheduler; call Start to begin firing.
func NewLocalScheduler(logger *slog.Logger) *LocalScheduler {
	return &LocalScheduler{
		cron:    cron.New(),
		logger:  logger.With("module", "scheduler"),
		entries: make(map[string]*entry),
	}
}

// Start begins dispatching armed entries.
func (s *LocalScheduler) Start() {
	s.cron.Start()
	s.logger.Info("Local scheduler started")
}

// ScheduleStrategy registers a recurring job for the strategy, disarmed.
// Re-registering an already-known strategy replaces its cadence.
func (s *LocalScheduler) ScheduleStrategy(ctx context.Context, strategyID string, frequency models.Frequency, callback Callback) error {
	cronExpr, err := frequency.CronExpression()
	if err != nil {
		return fmt.Errorf("failed to schedule strategy %s: %w", strategyID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[strategyID]; ok {
		s.cron.Remove(existing.id)
		delete(s.entries, strategyID)
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.mu.Lock()
		current, ok := s.entries[strategyID]
		armed := ok && current.armed
		s.mu.Unlock()

		if !armed {
			return
		}

		s.logger.Info("Running scheduled analysis", "strategy_id", strategyID)
		callback(ctx, strategyID)
	})
	if err != nil {
		return fmt.Errorf("failed to register cron entry for strategy %s: %w", strategyID, err)
	}

	s.entries[strategyID] = &entry{id: entryID, frequency: frequency}

	s.logger.Info("Scheduled strategy", "strategy_id", strategyID, "frequency", frequency, "cron", cronExpr)

	return nil
}

// StartStrategy arms a registered strategy's timer without re-registering.
func (s *LocalScheduler) StartStrategy(strategyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	registered, ok := s.entries[strategyID]
	if !ok {
		return fmt.Errorf("strategy %s is not scheduled", strategyID)
	}

	registered.armed = true

	return nil
}

// StopStrategy disarms a registered strategy's timer. Unknown strategies are
// a no-op: stopping an unscheduled strategy is already the desired state.
func (s *LocalScheduler) StopStrategy(strategyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if registered, ok := s.entries[strategyID]; ok {
		registered.armed = false
	}
}

// IsArmed reports whether the strategy's timer is currently armed.
func (s *LocalScheduler) IsArmed(strategyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	registered, ok := s.entries[strategyID]

	return ok && registered.armed
}

// ArmedStrategies returns the ids of all currently armed strategies.
func (s *LocalScheduler) ArmedStrategies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	armed := lo.PickBy(s.entries, func(_ string, e *entry) bool {
		return e.armed
	})

	return lo.Keys(armed)
}

// RearmActive schedules and arms every persisted ACTIVE strategy. Timers do
// not survive a restart, so this is the explicit recovery step processes run
// at startup.
func (s *LocalScheduler) RearmActive(ctx context.Context, store persistence.Persistence, callback Callback) error {
	strategies, err := store.Strategies(ctx)
	if err != nil {
		return fmt.Errorf("failed to load strategies for re-arming: %w", err)
	}

	active := lo.Filter(strategies, func(strategy *models.Strategy, _ int) bool {
		return strategy.IsActive()
	})

	for _, strategy := range active {
		if err := s.ScheduleStrategy(ctx, strategy.ID, strategy.Frequency, callback); err != nil {
			return err
		}

		if err := s.StartStrategy(strategy.ID); err != nil {
			return err
		}
	}

	s.logger.Info("Re-armed active strategies", "count", len(active))

	return nil
}

// Shutdown cancels every outstanding timer and waits for running callbacks.
func (s *LocalScheduler) Shutdown() {
	s.mu.Lock()
	for strategyID, registered := range s.entries {
		s.cron.Remove(registered.id)
		delete(s.entries, strategyID)
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Local scheduler stopped")
}
