package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/quantfold/pkg/models"
	"github.com/quantfold/quantfold/pkg/persistence/file"
)

func noopCallback(ctx context.Context, strategyID string) {}

func TestScheduleStrategy_RegistersDisarmed(t *testing.T) {
	scheduler := NewLocalScheduler(slog.Default())
	defer scheduler.Shutdown()

	require.NoError(t, scheduler.ScheduleStrategy(t.Context(), "s1", models.FrequencyDaily, noopCallback))

	assert.False(t, scheduler.IsArmed("s1"))
	assert.Empty(t, scheduler.ArmedStrategies())
}

func TestScheduleStrategy_UnknownFrequency(t *testing.T) {
	scheduler := NewLocalScheduler(slog.Default())
	defer scheduler.Shutdown()

	err := scheduler.ScheduleStrategy(t.Context(), "s1", models.Frequency("HOURLY"), noopCallback)
	assert.Error(t, err)
}

func TestStartStrategy_ArmsRegistered(t *testing.T) {
	scheduler := NewLocalScheduler(slog.Default())
	defer scheduler.Shutdown()

	require.NoError(t, scheduler.ScheduleStrategy(t.Context(), "s1", models.FrequencyDaily, noopCallback))
	require.NoError(t, scheduler.StartStrategy("s1"))

	assert.True(t, scheduler.IsArmed("s1"))
	assert.Equal(t, []string{"s1"}, scheduler.ArmedStrategies())
}

func TestStartStrategy_UnknownStrategy(t *testing.T) {
	scheduler := NewLocalScheduler(slog.Default())
	defer scheduler.Shutdown()

	assert.Error(t, scheduler.StartStrategy("ghost"))
}

func TestStopStrategy_Disarms(t *testing.T) {
	scheduler := NewLocalScheduler(slog.Default())
	defer scheduler.Shutdown()

	require.NoError(t, scheduler.ScheduleStrategy(t.Context(), "s1", models.FrequencyDaily, noopCallback))
	require.NoError(t, scheduler.StartStrategy("s1"))

	scheduler.StopStrategy("s1")
	assert.False(t, scheduler.IsArmed("s1"))

	// Unknown strategies are a no-op.
	scheduler.StopStrategy("ghost")
}

func TestScheduleStrategy_ReplaceResetsArming(t *testing.T) {
	scheduler := NewLocalScheduler(slog.Default())
	defer scheduler.Shutdown()

	require.NoError(t, scheduler.ScheduleStrategy(t.Context(), "s1", models.FrequencyDaily, noopCallback))
	require.NoError(t, scheduler.StartStrategy("s1"))

	require.NoError(t, scheduler.ScheduleStrategy(t.Context(), "s1", models.FrequencyWeekly, noopCallback))
	assert.False(t, scheduler.IsArmed("s1"))
}

func TestRearmActive(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	save := func(id string, status models.StrategyStatus) {
		require.NoError(t, store.SaveStrategy(t.Context(), &models.Strategy{
			ID:        id,
			OwnerID:   "user-1",
			Name:      "Strategy " + id,
			Budget:    decimal.NewFromInt(100),
			RiskLevel: models.RiskLevelLow,
			Frequency: models.FrequencyDaily,
			Status:    status,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}))
	}

	save("active-1", models.StrategyStatusActive)
	save("active-2", models.StrategyStatusActive)
	save("paused-1", models.StrategyStatusPaused)
	save("stopped-1", models.StrategyStatusStopped)

	scheduler := NewLocalScheduler(slog.Default())
	defer scheduler.Shutdown()

	require.NoError(t, scheduler.RearmActive(t.Context(), store, noopCallback))

	armed := scheduler.ArmedStrategies()
	assert.Len(t, armed, 2)
	assert.True(t, scheduler.IsArmed("active-1"))
	assert.True(t, scheduler.IsArmed("active-2"))
	assert.False(t, scheduler.IsArmed("paused-1"))
	assert.False(t, scheduler.IsArmed("stopped-1"))
}

func TestShutdown_ClearsEntries(t *testing.T) {
	scheduler := NewLocalScheduler(slog.Default())

	require.NoError(t, scheduler.ScheduleStrategy(t.Context(), "s1", models.FrequencyDaily, noopCallback))
	scheduler.Shutdown()

	assert.False(t, scheduler.IsArmed("s1"))
	assert.Error(t, scheduler.StartStrategy("s1"))
}
