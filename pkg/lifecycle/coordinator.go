package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantfold/quantfold/pkg/engine"
	"github.com/quantfold/quantfold/pkg/eventbus"
	"github.com/quantfold/quantfold/pkg/events"
	"github.com/quantfold/quantfold/pkg/models"
	"github.com/quantfold/quantfold/pkg/otelhelper"
	"github.com/quantfold/quantfold/pkg/persistence"
	"github.com/quantfold/quantfold/pkg/template"
)

// webhookTimeout bounds a manual trigger's webhook invocation. A slower
// engine response counts as a failure, not a pending call.
const webhookTimeout = 30 * time.Second

// Caller identifies who is performing a lifecycle operation. Credential is
// the opaque bearer token forwarded to the engine so provisioned workflows
// can call back into the API; it is never persisted.
type Caller struct {
	UserID     string
	Credential string
}

// Result is the outcome of a manual trigger. Trigger never returns an
// error: a failed manual action must not look like a system outage, so
// every failure is folded into Success=false with a reason.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Coordinator transitions strategies between ACTIVE, PAUSED and STOPPED
// while keeping the local row and the remote engine state coherent under
// partial failure.
//
// Each operation holds a per-strategy lock for its whole duration, mutates
// the local row inside a unit of work first, performs the remote calls, and
// verifies the remote state before committing. On any fatal failure the
// local transaction rolls back and remote side effects are compensated
// best-effort: either both sides agree afterwards, or the strategy is left
// in its prior committed state and the residual remote inconsistency is
// logged.
type Coordinator struct {
	store       persistence.Persistence
	engine      engine.Client
	provisioner *template.Provisioner
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
	locks       *keyedMutex
	tracer      trace.Tracer
	now         func() time.Time
}

// NewCoordinator wires a coordinator. eventBus may be nil when lifecycle
// notifications are not needed.
func NewCoordinator(
	store persistence.Persistence,
	engineClient engine.Client,
	provisioner *template.Provisioner,
	eventBus eventbus.EventPublisher,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		store:       store,
		engine:      engineClient,
		provisioner: provisioner,
		eventBus:    eventBus,
		logger:      logger.With("module", "lifecycle"),
		locks:       newKeyedMutex(),
		tracer:      otel.Tracer("quantfold/lifecycle"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start transitions a strategy to ACTIVE: provision the remote workflow if
// needed, rebuild it when the template changed, activate it, and verify the
// engine actually applied the activation before committing the local row.
func (c *Coordinator) Start(ctx context.Context, strategyID string, caller Caller) error {
	const op = "Start"

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "lifecycle.start",
		attribute.String(otelhelper.StrategyIDKey, strategyID),
		attribute.String(otelhelper.OperationKey, op),
	)
	defer span.End()

	if err := c.start(ctx, op, strategyID, caller); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

func (c *Coordinator) start(ctx context.Context, op, strategyID string, caller Caller) error {
	unlock := c.locks.Lock(strategyID)
	defer unlock()

	strategy, err := c.loadOwned(ctx, op, strategyID, caller)
	if err != nil {
		return err
	}

	if caller.Credential == "" {
		return NewError(KindUnauthenticated, op, strategyID, fmt.Errorf("missing credential"))
	}

	now := c.now()

	uow, err := c.store.Begin(ctx)
	if err != nil {
		return NewError(KindInternal, op, strategyID, err)
	}

	if err := uow.UpdateStatus(ctx, strategyID, models.StrategyStatusActive, &now, now); err != nil {
		c.rollback(uow, op, strategyID)

		return NewError(KindInternal, op, strategyID, err)
	}

	workflowID, err := c.provisioner.EnsureWorkflowExists(ctx, uow, strategy, caller.Credential)
	if err != nil {
		c.rollback(uow, op, strategyID)

		return NewError(c.engineKind(err), op, strategyID, err)
	}

	// Rebuild failure is non-fatal: stale-but-working analysis logic
	// beats blocking the user's start.
	workflowID = c.maybeRebuild(ctx, uow, strategy, workflowID, caller.Credential)

	if err := c.engine.Activate(ctx, workflowID); err != nil {
		c.rollback(uow, op, strategyID)

		return NewError(KindEngineUnavailable, op, strategyID, err)
	}

	if err := c.verifyActive(ctx, workflowID, true); err != nil {
		c.compensateDeactivate(ctx, workflowID)
		c.rollback(uow, op, strategyID)

		return NewError(c.verifyKind(err), op, strategyID, err)
	}

	if err := uow.Commit(); err != nil {
		c.compensateDeactivate(ctx, workflowID)

		return NewError(KindInternal, op, strategyID, err)
	}

	c.publish(ctx, strategyID, events.StrategyStarted{
		BaseEvent:        events.NewBaseEvent(events.StrategyStartedEvent, strategyID),
		RemoteWorkflowID: workflowID,
		NextScheduledAt:  &now,
	})

	c.logger.Info("Strategy started", "strategy_id", strategyID, "workflow_id", workflowID)

	return nil
}

// Pause transitions a strategy to PAUSED and disarms its remote workflow.
func (c *Coordinator) Pause(ctx context.Context, strategyID string, caller Caller) error {
	return c.halt(ctx, "Pause", strategyID, caller, models.StrategyStatusPaused)
}

// Stop transitions a strategy to STOPPED and disarms its remote workflow.
func (c *Coordinator) Stop(ctx context.Context, strategyID string, caller Caller) error {
	return c.halt(ctx, "Stop", strategyID, caller, models.StrategyStatusStopped)
}

func (c *Coordinator) halt(ctx context.Context, op, strategyID string, caller Caller, target models.StrategyStatus) error {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "lifecycle.halt",
		attribute.String(otelhelper.StrategyIDKey, strategyID),
		attribute.String(otelhelper.OperationKey, op),
	)
	defer span.End()

	if err := c.doHalt(ctx, op, strategyID, caller, target); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

func (c *Coordinator) doHalt(ctx context.Context, op, strategyID string, caller Caller, target models.StrategyStatus) error {
	unlock := c.locks.Lock(strategyID)
	defer unlock()

	strategy, err := c.loadOwned(ctx, op, strategyID, caller)
	if err != nil {
		return err
	}

	now := c.now()

	uow, err := c.store.Begin(ctx)
	if err != nil {
		return NewError(KindInternal, op, strategyID, err)
	}

	if err := uow.UpdateStatus(ctx, strategyID, target, nil, now); err != nil {
		c.rollback(uow, op, strategyID)

		return NewError(KindInternal, op, strategyID, err)
	}

	workflowID := ""
	if strategy.HasRemoteWorkflow() {
		workflowID = *strategy.RemoteWorkflowID

		if err := c.engine.Deactivate(ctx, workflowID); err != nil {
			c.rollback(uow, op, strategyID)

			return NewError(KindEngineUnavailable, op, strategyID, err)
		}

		if err := c.verifyInactive(ctx, workflowID); err != nil {
			c.rollback(uow, op, strategyID)

			return NewError(c.verifyKind(err), op, strategyID, err)
		}
	}

	if err := uow.Commit(); err != nil {
		return NewError(KindInternal, op, strategyID, err)
	}

	if target == models.StrategyStatusPaused {
		c.publish(ctx, strategyID, events.StrategyPaused{
			BaseEvent:        events.NewBaseEvent(events.StrategyPausedEvent, strategyID),
			RemoteWorkflowID: workflowID,
		})
	} else {
		c.publish(ctx, strategyID, events.StrategyStopped{
			BaseEvent:        events.NewBaseEvent(events.StrategyStoppedEvent, strategyID),
			RemoteWorkflowID: workflowID,
		})
	}

	c.logger.Info("Strategy halted", "strategy_id", strategyID, "status", target)

	return nil
}

// Trigger invokes the strategy's remote webhook for an immediate prediction
// run. The strategy row is never mutated (beyond recording a first-time
// provisioned workflow id) and no error is ever returned.
func (c *Coordinator) Trigger(ctx context.Context, strategyID string, caller Caller) Result {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "lifecycle.trigger",
		attribute.String(otelhelper.StrategyIDKey, strategyID),
		attribute.String(otelhelper.OperationKey, "Trigger"),
	)
	defer span.End()

	result := c.trigger(ctx, strategyID, caller)
	span.SetAttributes(attribute.Bool("quantfold.trigger.success", result.Success))

	return result
}

func (c *Coordinator) trigger(ctx context.Context, strategyID string, caller Caller) Result {
	unlock := c.locks.Lock(strategyID)
	defer unlock()

	strategy, err := c.loadOwned(ctx, "Trigger", strategyID, caller)
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}

	if !strategy.IsActive() {
		return Result{Success: false, Message: fmt.Sprintf("strategy %s is not active", strategyID)}
	}

	if caller.Credential == "" {
		return Result{Success: false, Message: "missing credential"}
	}

	workflow, err := c.triggerWorkflow(ctx, strategy, caller.Credential)
	if err != nil {
		return Result{Success: false, Message: err.Error()}
	}

	// Webhooks on inactive workflows are refused by the engine; check
	// the authoritative flag first so the caller gets a reason instead
	// of an opaque engine error.
	if !workflow.Active {
		return Result{Success: false, Message: fmt.Sprintf("workflow %s for strategy %s is not active", workflow.ID, strategyID)}
	}

	webhookURL := c.provisioner.Renderer().WebhookURL(strategyID)

	response, err := c.engine.InvokeWebhook(ctx, webhookURL, map[string]any{"triggered": true}, webhookTimeout)
	if err != nil {
		c.logger.Warn("Manual trigger failed", "strategy_id", strategyID, "error", err)

		result := Result{Success: false, Message: fmt.Sprintf("failed to trigger predictions: %v", err)}
		c.publishTriggerResult(ctx, strategyID, workflow.ID, result)

		return result
	}

	c.logger.Info("Predictions triggered",
		"strategy_id", strategyID,
		"workflow_id", workflow.ID,
		"status_code", response.StatusCode)

	result := Result{Success: true, Message: "predictions triggered"}
	c.publishTriggerResult(ctx, strategyID, workflow.ID, result)

	return result
}

// triggerWorkflow makes sure the strategy has a current workflow and returns
// the engine's view of it.
func (c *Coordinator) triggerWorkflow(ctx context.Context, strategy *models.Strategy, credential string) (*models.Workflow, error) {
	if !strategy.HasRemoteWorkflow() {
		uow, err := c.store.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open unit of work: %w", err)
		}

		if _, err := c.provisioner.EnsureWorkflowExists(ctx, uow, strategy, credential); err != nil {
			c.rollback(uow, "Trigger", strategy.ID)

			return nil, err
		}

		if err := uow.Commit(); err != nil {
			return nil, fmt.Errorf("failed to record provisioned workflow: %w", err)
		}
	}

	workflowID := *strategy.RemoteWorkflowID

	rebuilt, err := c.provisioner.RebuildFromTemplate(ctx, workflowID, strategy, credential)
	if err != nil {
		c.logger.Warn("Rebuild failed, continuing with installed workflow",
			"strategy_id", strategy.ID,
			"workflow_id", workflowID,
			"error", err)

		return c.engine.Get(ctx, workflowID)
	}

	if rebuilt.ID == workflowID {
		return rebuilt, nil
	}

	// The rebuild replaced the workflow. The strategy is ACTIVE, so the
	// replacement must be armed before its webhook will accept calls.
	if err := c.persistWorkflowID(ctx, strategy, rebuilt.ID); err != nil {
		c.logger.Error("Failed to record rebuilt workflow id; local row is stale",
			"strategy_id", strategy.ID,
			"workflow_id", rebuilt.ID,
			"error", err)
	}

	if err := c.engine.Activate(ctx, rebuilt.ID); err != nil {
		return nil, fmt.Errorf("failed to activate rebuilt workflow: %w", err)
	}

	return c.engine.Get(ctx, rebuilt.ID)
}

// maybeRebuild upgrades the workflow to the current template during Start.
// Returns the id to activate: the rebuilt workflow's when the rebuild
// succeeded, the prior one otherwise.
func (c *Coordinator) maybeRebuild(ctx context.Context, uow persistence.UnitOfWork, strategy *models.Strategy, workflowID, credential string) string {
	rebuilt, err := c.provisioner.RebuildFromTemplate(ctx, workflowID, strategy, credential)
	if err != nil {
		c.logger.Warn("Rebuild failed, continuing with installed workflow",
			"strategy_id", strategy.ID,
			"workflow_id", workflowID,
			"error", err)

		return workflowID
	}

	if rebuilt.ID == workflowID {
		return workflowID
	}

	if err := uow.UpdateRemoteWorkflowID(ctx, strategy.ID, rebuilt.ID, c.now()); err != nil {
		c.logger.Error("Failed to record rebuilt workflow id inside unit of work",
			"strategy_id", strategy.ID,
			"workflow_id", rebuilt.ID,
			"error", err)

		return workflowID
	}

	strategy.RemoteWorkflowID = &rebuilt.ID

	return rebuilt.ID
}

// loadOwned reads the strategy and enforces the ownership precondition
// before anything is mutated locally or remotely.
func (c *Coordinator) loadOwned(ctx context.Context, op, strategyID string, caller Caller) (*models.Strategy, error) {
	strategy, err := c.store.StrategyByID(ctx, strategyID)
	if err != nil {
		if persistence.IsStrategyNotFound(err) {
			return nil, NewError(KindNotFound, op, strategyID, err)
		}

		return nil, NewError(KindInternal, op, strategyID, err)
	}

	if strategy.OwnerID != caller.UserID {
		return nil, NewError(KindPermissionDenied, op, strategyID,
			fmt.Errorf("caller %s does not own strategy %s", caller.UserID, strategyID))
	}

	return strategy, nil
}

// verifyActive re-reads the workflow after an activate call. The engine has
// been observed to accept an activation and not apply it, so a mismatch gets
// exactly one re-activate retry before failing.
func (c *Coordinator) verifyActive(ctx context.Context, workflowID string, retryAvailable bool) error {
	workflow, err := c.engine.Get(ctx, workflowID)
	if err != nil {
		return err
	}

	if workflow.Active {
		return nil
	}

	if !retryAvailable {
		return errVerificationMismatch
	}

	c.logger.Warn("Activation not applied, retrying once", "workflow_id", workflowID)

	if err := c.engine.Activate(ctx, workflowID); err != nil {
		return err
	}

	return c.verifyActive(ctx, workflowID, false)
}

// verifyInactive mirrors verifyActive for deactivation, with one retry.
func (c *Coordinator) verifyInactive(ctx context.Context, workflowID string) error {
	workflow, err := c.engine.Get(ctx, workflowID)
	if err != nil {
		return err
	}

	if !workflow.Active {
		return nil
	}

	c.logger.Warn("Deactivation not applied, retrying once", "workflow_id", workflowID)

	if err := c.engine.Deactivate(ctx, workflowID); err != nil {
		return err
	}

	workflow, err = c.engine.Get(ctx, workflowID)
	if err != nil {
		return err
	}

	if workflow.Active {
		return errVerificationMismatch
	}

	return nil
}

// compensateDeactivate undoes an activation after a failed start. Failure
// here leaves remote state ahead of local state; that residual inconsistency
// is logged, never silently dropped, and never masks the original error.
func (c *Coordinator) compensateDeactivate(ctx context.Context, workflowID string) {
	if err := c.engine.Deactivate(ctx, workflowID); err != nil {
		c.logger.Error("Compensation failed, remote workflow may remain active",
			"workflow_id", workflowID,
			"error", err)
	}
}

func (c *Coordinator) rollback(uow persistence.UnitOfWork, op, strategyID string) {
	if err := uow.Rollback(); err != nil {
		c.logger.Error("Rollback failed", "op", op, "strategy_id", strategyID, "error", err)
	}
}

func (c *Coordinator) persistWorkflowID(ctx context.Context, strategy *models.Strategy, workflowID string) error {
	uow, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}

	if err := uow.UpdateRemoteWorkflowID(ctx, strategy.ID, workflowID, c.now()); err != nil {
		c.rollback(uow, "Trigger", strategy.ID)

		return err
	}

	if err := uow.Commit(); err != nil {
		return err
	}

	strategy.RemoteWorkflowID = &workflowID

	return nil
}

func (c *Coordinator) engineKind(err error) Kind {
	if engine.IsUnavailable(err) || engine.IsWorkflowGone(err) {
		return KindEngineUnavailable
	}

	return KindInternal
}

func (c *Coordinator) verifyKind(err error) Kind {
	if isVerificationMismatch(err) {
		return KindVerificationFailed
	}

	return KindEngineUnavailable
}

func (c *Coordinator) publish(ctx context.Context, strategyID string, event eventbus.Event) {
	if c.eventBus == nil {
		return
	}

	if err := c.eventBus.Publish(ctx, strategyID, event); err != nil {
		c.logger.Warn("Failed to publish lifecycle event",
			"strategy_id", strategyID,
			"event_type", event.GetType(),
			"error", err)
	}
}

func (c *Coordinator) publishTriggerResult(ctx context.Context, strategyID, workflowID string, result Result) {
	c.publish(ctx, strategyID, events.PredictionsTriggered{
		BaseEvent:        events.NewBaseEvent(events.PredictionsTriggeredEvent, strategyID),
		RemoteWorkflowID: workflowID,
		Success:          result.Success,
		Message:          result.Message,
	})
}
