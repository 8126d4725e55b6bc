package template

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/quantfold/pkg/engine"
	"github.com/quantfold/quantfold/pkg/models"
	"github.com/quantfold/quantfold/pkg/persistence"
)

// Provisioner keeps a strategy's remote workflow in line with the current
// template version.
type Provisioner struct {
	engine   engine.Client
	renderer *Renderer
	logger   *slog.Logger
}

// NewProvisioner creates a provisioner over the given engine client.
func NewProvisioner(engineClient engine.Client, renderer *Renderer, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		engine:   engineClient,
		renderer: renderer,
		logger:   logger.With("module", "provisioner"),
	}
}

// Renderer exposes the provisioner's renderer for webhook URL construction.
func (p *Provisioner) Renderer() *Renderer {
	return p.renderer
}

// EnsureWorkflowExists provisions a remote workflow for the strategy if none
// is recorded yet, writing the new id through the caller's unit of work.
// Already-provisioned strategies make zero engine create calls. The returned
// id is also written back to strategy.RemoteWorkflowID.
func (p *Provisioner) EnsureWorkflowExists(ctx context.Context, uow persistence.UnitOfWork, strategy *models.Strategy, credential string) (string, error) {
	if strategy.HasRemoteWorkflow() {
		return *strategy.RemoteWorkflowID, nil
	}

	definition, err := p.renderer.Render(Params{
		StrategyID: strategy.ID,
		Name:       strategy.Name,
		Frequency:  strategy.Frequency,
		Credential: credential,
	})
	if err != nil {
		return "", err
	}

	// A strategy without a recorded workflow id must not own one remotely
	// either. Anything already carrying this strategy's name is a
	// leftover from an earlier failed operation; sweep it so that
	// creating cannot accumulate duplicates.
	p.sweepByName(ctx, WorkflowName(strategy.ID))

	workflow, err := p.engine.Create(ctx, definition)
	if err != nil {
		return "", fmt.Errorf("failed to provision workflow for strategy %s: %w", strategy.ID, err)
	}

	if err := uow.UpdateRemoteWorkflowID(ctx, strategy.ID, workflow.ID, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("failed to record workflow id for strategy %s: %w", strategy.ID, err)
	}

	strategy.RemoteWorkflowID = &workflow.ID

	p.logger.Info("Provisioned remote workflow",
		"strategy_id", strategy.ID,
		"workflow_id", workflow.ID)

	return workflow.ID, nil
}

// RebuildFromTemplate re-renders the current template version and replaces
// the installed workflow when the definitions differ structurally. When
// nothing changed, the installed workflow is returned untouched and no
// remote write happens. The returned workflow's id may differ from
// existingID; callers must persist it.
//
// A workflow deleted out-of-band is treated as absent: a fresh one is
// created from the template rather than failing the caller's operation.
func (p *Provisioner) RebuildFromTemplate(ctx context.Context, existingID string, strategy *models.Strategy, credential string) (*models.Workflow, error) {
	desired, err := p.renderer.Render(Params{
		StrategyID: strategy.ID,
		Name:       strategy.Name,
		Frequency:  strategy.Frequency,
		Credential: credential,
	})
	if err != nil {
		return nil, err
	}

	installed, err := p.engine.Get(ctx, existingID)
	if err != nil {
		if engine.IsWorkflowGone(err) {
			p.logger.Warn("Installed workflow missing remotely, creating fresh",
				"strategy_id", strategy.ID,
				"workflow_id", existingID)

			workflow, createErr := p.engine.Create(ctx, desired)
			if createErr != nil {
				return nil, fmt.Errorf("failed to recreate missing workflow for strategy %s: %w", strategy.ID, createErr)
			}

			return workflow, nil
		}

		return nil, fmt.Errorf("failed to fetch installed workflow %s: %w", existingID, err)
	}

	if installed.Definition.Equal(desired) {
		return installed, nil
	}

	p.logger.Info("Template changed, rebuilding workflow",
		"strategy_id", strategy.ID,
		"workflow_id", existingID,
		"template_version", Version)

	workflow, err := p.engine.Create(ctx, desired)
	if err != nil {
		return nil, fmt.Errorf("failed to create rebuilt workflow for strategy %s: %w", strategy.ID, err)
	}

	// Delete-and-recreate, never append: two live workflows for one
	// strategy is the duplicate-activation failure mode. A failed delete
	// leaves the old, soon-inactive workflow behind; the next ensure
	// sweep picks it up.
	if err := p.engine.Delete(ctx, existingID); err != nil {
		p.logger.Warn("Failed to delete replaced workflow",
			"strategy_id", strategy.ID,
			"workflow_id", existingID,
			"error", err)
	}

	return workflow, nil
}

// sweepByName deletes every remote workflow carrying the given name.
// Best-effort: a failed sweep only risks an orphan, never a wrong state.
func (p *Provisioner) sweepByName(ctx context.Context, name string) {
	workflows, err := p.engine.List(ctx)
	if err != nil {
		p.logger.Warn("Failed to list workflows for duplicate sweep", "name", name, "error", err)

		return
	}

	for _, workflow := range workflows {
		if workflow.Name != name {
			continue
		}

		p.logger.Warn("Sweeping orphaned workflow", "workflow_id", workflow.ID, "name", name)

		if err := p.engine.Delete(ctx, workflow.ID); err != nil {
			p.logger.Warn("Failed to delete orphaned workflow", "workflow_id", workflow.ID, "error", err)
		}
	}
}
