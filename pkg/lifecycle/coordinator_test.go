package lifecycle_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/quantfold/pkg/lifecycle"
	"github.com/quantfold/quantfold/pkg/models"
	"github.com/quantfold/quantfold/pkg/persistence/file"
	"github.com/quantfold/quantfold/pkg/template"
	"github.com/quantfold/quantfold/pkg/testutil"
)

type fixture struct {
	store       *file.Persistence
	engine      *testutil.FakeEngine
	coordinator *lifecycle.Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	fakeEngine := testutil.NewFakeEngine()
	renderer := template.NewRenderer("http://api.local", "http://engine.local")
	provisioner := template.NewProvisioner(fakeEngine, renderer, slog.Default())

	return &fixture{
		store:       store,
		engine:      fakeEngine,
		coordinator: lifecycle.NewCoordinator(store, fakeEngine, provisioner, nil, slog.Default()),
	}
}

func (f *fixture) seed(t *testing.T, status models.StrategyStatus, workflowID *string) *models.Strategy {
	t.Helper()

	strategy := &models.Strategy{
		ID:               "s1",
		OwnerID:          "user-1",
		Name:             "Momentum",
		Budget:           decimal.NewFromInt(500),
		RiskLevel:        models.RiskLevelMedium,
		Frequency:        models.FrequencyDaily,
		Status:           status,
		RemoteWorkflowID: workflowID,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	require.NoError(t, f.store.SaveStrategy(t.Context(), strategy))

	return strategy
}

func (f *fixture) stored(t *testing.T, id string) *models.Strategy {
	t.Helper()

	strategy, err := f.store.StrategyByID(t.Context(), id)
	require.NoError(t, err)

	return strategy
}

func owner() lifecycle.Caller {
	return lifecycle.Caller{UserID: "user-1", Credential: "cred-1"}
}

func TestStart_ProvisionsActivatesCommits(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusStopped, nil)

	require.NoError(t, f.coordinator.Start(t.Context(), "s1", owner()))

	stored := f.stored(t, "s1")
	assert.Equal(t, models.StrategyStatusActive, stored.Status)
	assert.NotNil(t, stored.NextScheduledAt)
	require.NotNil(t, stored.RemoteWorkflowID)

	workflow := f.engine.Workflow(*stored.RemoteWorkflowID)
	require.NotNil(t, workflow)
	assert.True(t, workflow.Active)
	assert.Equal(t, 1, f.engine.CreateCalls)
}

func TestStart_ReusesProvisionedWorkflow(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusStopped, nil)

	require.NoError(t, f.coordinator.Start(t.Context(), "s1", owner()))
	require.NoError(t, f.coordinator.Pause(t.Context(), "s1", owner()))
	require.NoError(t, f.coordinator.Start(t.Context(), "s1", owner()))

	// Template unchanged, so the second start reuses the first workflow.
	assert.Equal(t, 1, f.engine.CreateCalls)

	stored := f.stored(t, "s1")
	require.NotNil(t, stored.RemoteWorkflowID)
	assert.True(t, f.engine.Workflow(*stored.RemoteWorkflowID).Active)
}

func TestStart_NotFound(t *testing.T) {
	f := newFixture(t)

	err := f.coordinator.Start(t.Context(), "ghost", owner())
	require.Error(t, err)
	assert.Equal(t, lifecycle.KindNotFound, lifecycle.KindOf(err))
}

func TestStart_PermissionDenied(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusStopped, nil)

	err := f.coordinator.Start(t.Context(), "s1", lifecycle.Caller{UserID: "intruder", Credential: "cred-1"})
	require.Error(t, err)
	assert.Equal(t, lifecycle.KindPermissionDenied, lifecycle.KindOf(err))

	// Nothing happened locally or remotely.
	assert.Equal(t, models.StrategyStatusStopped, f.stored(t, "s1").Status)
	assert.Zero(t, f.engine.CreateCalls)
}

func TestStart_MissingCredential(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusStopped, nil)

	err := f.coordinator.Start(t.Context(), "s1", lifecycle.Caller{UserID: "user-1"})
	require.Error(t, err)
	assert.Equal(t, lifecycle.KindUnauthenticated, lifecycle.KindOf(err))
}

func TestStart_ActivationFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusStopped, nil)
	f.engine.FailActivate = errors.New("engine down")

	err := f.coordinator.Start(t.Context(), "s1", owner())
	require.Error(t, err)
	assert.Equal(t, lifecycle.KindEngineUnavailable, lifecycle.KindOf(err))

	stored := f.stored(t, "s1")
	assert.Equal(t, models.StrategyStatusStopped, stored.Status)
	assert.Nil(t, stored.RemoteWorkflowID)
}

func TestStart_VerificationRetrySucceeds(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusStopped, nil)
	f.engine.IgnoreActivations = 1

	require.NoError(t, f.coordinator.Start(t.Context(), "s1", owner()))

	assert.Equal(t, 2, f.engine.ActivateCalls)
	assert.Equal(t, models.StrategyStatusActive, f.stored(t, "s1").Status)
}

func TestStart_VerificationFailsAfterRetry(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusStopped, nil)
	f.engine.IgnoreActivations = 2

	err := f.coordinator.Start(t.Context(), "s1", owner())
	require.Error(t, err)
	assert.Equal(t, lifecycle.KindVerificationFailed, lifecycle.KindOf(err))
	assert.True(t, lifecycle.IsVerificationFailed(err))

	// Exactly one retry, then compensation and rollback.
	assert.Equal(t, 2, f.engine.ActivateCalls)
	assert.Equal(t, 1, f.engine.DeactivateCalls)
	assert.Equal(t, models.StrategyStatusStopped, f.stored(t, "s1").Status)
}

func TestPause_DeactivatesAndCommits(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusStopped, nil)
	require.NoError(t, f.coordinator.Start(t.Context(), "s1", owner()))

	require.NoError(t, f.coordinator.Pause(t.Context(), "s1", owner()))

	stored := f.stored(t, "s1")
	assert.Equal(t, models.StrategyStatusPaused, stored.Status)
	assert.Nil(t, stored.NextScheduledAt)

	require.NotNil(t, stored.RemoteWorkflowID)
	assert.False(t, f.engine.Workflow(*stored.RemoteWorkflowID).Active)
	assert.Equal(t, 1, f.engine.DeactivateCalls)
}

func TestPause_NoRemoteWorkflow(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusActive, nil)

	require.NoError(t, f.coordinator.Pause(t.Context(), "s1", owner()))

	assert.Equal(t, models.StrategyStatusPaused, f.stored(t, "s1").Status)
	assert.Zero(t, f.engine.DeactivateCalls)
	assert.Zero(t, f.engine.GetCalls)
}

func TestPause_VerificationFailsAfterRetry(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusStopped, nil)
	require.NoError(t, f.coordinator.Start(t.Context(), "s1", owner()))

	f.engine.IgnoreDeactivations = 2

	err := f.coordinator.Pause(t.Context(), "s1", owner())
	require.Error(t, err)
	assert.Equal(t, lifecycle.KindVerificationFailed, lifecycle.KindOf(err))

	assert.Equal(t, 2, f.engine.DeactivateCalls)
	assert.Equal(t, models.StrategyStatusActive, f.stored(t, "s1").Status)
}

func TestStop_Commits(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusStopped, nil)
	require.NoError(t, f.coordinator.Start(t.Context(), "s1", owner()))

	require.NoError(t, f.coordinator.Stop(t.Context(), "s1", owner()))

	stored := f.stored(t, "s1")
	assert.Equal(t, models.StrategyStatusStopped, stored.Status)
	assert.Nil(t, stored.NextScheduledAt)
	assert.False(t, f.engine.Workflow(*stored.RemoteWorkflowID).Active)
}

func TestTrigger_InactiveStrategy(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusPaused, nil)

	result := f.coordinator.Trigger(t.Context(), "s1", owner())

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "not active")
	assert.Zero(t, f.engine.WebhookCalls)
}

func TestTrigger_InvokesWebhook(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusStopped, nil)
	require.NoError(t, f.coordinator.Start(t.Context(), "s1", owner()))

	result := f.coordinator.Trigger(t.Context(), "s1", owner())

	assert.True(t, result.Success)
	assert.Equal(t, 1, f.engine.WebhookCalls)
	assert.Equal(t, "http://engine.local/webhook/strategy/s1", f.engine.LastWebhookURL)
	assert.Equal(t, true, f.engine.LastWebhookPayload["triggered"])
}

func TestTrigger_InactiveWorkflow(t *testing.T) {
	f := newFixture(t)

	// Install a workflow matching the current template but left disarmed,
	// as after an out-of-band deactivation.
	renderer := template.NewRenderer("http://api.local", "http://engine.local")
	strategy := f.seed(t, models.StrategyStatusActive, nil)

	definition, err := renderer.Render(template.Params{
		StrategyID: strategy.ID,
		Name:       strategy.Name,
		Frequency:  strategy.Frequency,
		Credential: "cred-1",
	})
	require.NoError(t, err)

	f.engine.Seed(&models.Workflow{ID: "wf-1", Name: definition.Name, Active: false, Definition: *definition})

	workflowID := "wf-1"
	strategy.RemoteWorkflowID = &workflowID
	require.NoError(t, f.store.SaveStrategy(t.Context(), strategy))

	result := f.coordinator.Trigger(t.Context(), "s1", owner())

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "not active")
	assert.Zero(t, f.engine.WebhookCalls)
}

func TestTrigger_WebhookFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusStopped, nil)
	require.NoError(t, f.coordinator.Start(t.Context(), "s1", owner()))

	f.engine.FailWebhook = errors.New("timeout")

	result := f.coordinator.Trigger(t.Context(), "s1", owner())

	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "failed to trigger")
}

func TestTrigger_RebuildsChangedWorkflow(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusStopped, nil)
	require.NoError(t, f.coordinator.Start(t.Context(), "s1", owner()))

	oldID := *f.stored(t, "s1").RemoteWorkflowID

	// A different credential renders a different definition, forcing a
	// rebuild mid-trigger. The replacement must be activated before the
	// webhook fires.
	result := f.coordinator.Trigger(t.Context(), "s1", lifecycle.Caller{UserID: "user-1", Credential: "cred-2"})
	require.True(t, result.Success)

	stored := f.stored(t, "s1")
	require.NotNil(t, stored.RemoteWorkflowID)
	assert.NotEqual(t, oldID, *stored.RemoteWorkflowID)

	workflow := f.engine.Workflow(*stored.RemoteWorkflowID)
	require.NotNil(t, workflow)
	assert.True(t, workflow.Active)
	assert.Nil(t, f.engine.Workflow(oldID))
	assert.Equal(t, 1, f.engine.WebhookCalls)
}

func TestTrigger_PermissionDenied(t *testing.T) {
	f := newFixture(t)
	f.seed(t, models.StrategyStatusActive, nil)

	result := f.coordinator.Trigger(t.Context(), "s1", lifecycle.Caller{UserID: "intruder", Credential: "cred-1"})

	assert.False(t, result.Success)
	assert.Zero(t, f.engine.WebhookCalls)
}
