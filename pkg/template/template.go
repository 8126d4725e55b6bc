// Package template renders and provisions strategy workflow definitions.
package template

import (
	"fmt"
	"strings"

	"github.com/quantfold/quantfold/pkg/models"
)

// Version identifies the current template revision. Bumping it (or changing
// any rendered node) propagates to every previously-provisioned strategy the
// next time it is started or triggered: the provisioner diffs the rendered
// definition against the installed one and rebuilds on mismatch. Workflows
// are versioned by template content, not by strategy, so no manual
// migration step exists or is needed.
const Version = 3

const workflowNamePrefix = "quantfold-strategy-"

// Params are the strategy attributes the template is rendered with.
type Params struct {
	StrategyID string           `validate:"required"`
	Name       string           `validate:"required"`
	Frequency  models.Frequency `validate:"required"`
	Credential string           `validate:"required"`
}

// Renderer builds workflow definitions from the versioned template.
type Renderer struct {
	apiBaseURL     string
	webhookBaseURL string
}

// NewRenderer creates a renderer. apiBaseURL is where provisioned workflows
// call back to deliver predictions; webhookBaseURL is where the engine
// exposes workflow webhooks.
func NewRenderer(apiBaseURL, webhookBaseURL string) *Renderer {
	return &Renderer{
		apiBaseURL:     strings.TrimSuffix(apiBaseURL, "/"),
		webhookBaseURL: strings.TrimSuffix(webhookBaseURL, "/"),
	}
}

// WorkflowName returns the deterministic remote name for a strategy's
// workflow. At most one remote workflow should ever carry this name.
func WorkflowName(strategyID string) string {
	return workflowNamePrefix + strategyID
}

// WebhookPath returns the engine-side webhook path for manual triggers.
func WebhookPath(strategyID string) string {
	return "strategy/" + strategyID
}

// WebhookURL returns the full URL the coordinator invokes for manual runs.
func (r *Renderer) WebhookURL(strategyID string) string {
	return r.webhookBaseURL + "/webhook/" + WebhookPath(strategyID)
}

// Render produces the definition for the current template version and
// validates it against the definition schema before it is handed to the
// engine.
func (r *Renderer) Render(params Params) (*models.WorkflowDefinition, error) {
	cronExpr, err := params.Frequency.CronExpression()
	if err != nil {
		return nil, fmt.Errorf("failed to render template for strategy %s: %w", params.StrategyID, err)
	}

	definition := &models.WorkflowDefinition{
		Name: WorkflowName(params.StrategyID),
		Nodes: []*models.Node{
			{
				Name:        "Schedule Trigger",
				Type:        "trigger:schedule",
				TypeVersion: 1,
				Parameters: map[string]any{
					"cron": cronExpr,
				},
				Position: []int{0, 0},
			},
			{
				Name:        "Manual Trigger",
				Type:        "trigger:webhook",
				TypeVersion: 1,
				Parameters: map[string]any{
					"path":   WebhookPath(params.StrategyID),
					"method": "POST",
				},
				Position: []int{0, 200},
			},
			{
				Name:        "Run Analysis",
				Type:        "http:request",
				TypeVersion: 2,
				Parameters: map[string]any{
					"method": "POST",
					"url":    r.apiBaseURL + "/internal/strategies/" + params.StrategyID + "/analyze",
					"body": map[string]any{
						"strategy_id":      params.StrategyID,
						"strategy_name":    params.Name,
						"template_version": Version,
					},
				},
				Credentials: map[string]string{
					"strategyApi": params.Credential,
				},
				Position: []int{200, 100},
			},
			{
				Name:        "Publish Predictions",
				Type:        "http:request",
				TypeVersion: 2,
				Parameters: map[string]any{
					"method": "POST",
					"url":    r.apiBaseURL + "/internal/strategies/" + params.StrategyID + "/predictions",
				},
				Credentials: map[string]string{
					"strategyApi": params.Credential,
				},
				Position: []int{400, 100},
			},
		},
		Connections: map[string][]models.Connection{
			"Schedule Trigger": {
				{TargetNode: "Run Analysis", Input: "main"},
			},
			"Manual Trigger": {
				{TargetNode: "Run Analysis", Input: "main"},
			},
			"Run Analysis": {
				{TargetNode: "Publish Predictions", Input: "main"},
			},
		},
		Settings: map[string]any{
			"template_version": Version,
		},
	}

	if err := ValidateDefinition(definition); err != nil {
		return nil, fmt.Errorf("rendered definition for strategy %s is invalid: %w", params.StrategyID, err)
	}

	return definition, nil
}
