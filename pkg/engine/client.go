// Package engine provides the HTTP client for the remote workflow engine.
package engine

import (
	"context"
	"time"

	"github.com/quantfold/quantfold/pkg/models"
)

// Client is the remote engine's REST surface. Operations are synchronous
// single HTTP calls with no built-in retry; retry policy belongs to the
// caller.
//
// Activate and Deactivate report only that the engine accepted the request.
// The engine has been observed to accept and then fail to apply state
// changes, so callers must re-read the workflow with Get to learn the
// authoritative active flag.
type Client interface {
	// Create installs a new workflow from the given definition and
	// returns the engine's representation of it, including its id.
	Create(ctx context.Context, definition *models.WorkflowDefinition) (*models.Workflow, error)

	// Get fetches a workflow by id. Returns ErrWorkflowGone if the
	// workflow no longer exists remotely.
	Get(ctx context.Context, id string) (*models.Workflow, error)

	// Activate arms the workflow's schedule.
	Activate(ctx context.Context, id string) error

	// Deactivate disarms the workflow's schedule.
	Deactivate(ctx context.Context, id string) error

	// Delete removes the workflow from the engine.
	Delete(ctx context.Context, id string) error

	// List returns all workflows known to the engine.
	List(ctx context.Context) ([]*models.Workflow, error)

	// InvokeWebhook POSTs the payload to a workflow's webhook URL with a
	// bounded timeout. Webhooks on inactive workflows are refused by the
	// engine.
	InvokeWebhook(ctx context.Context, url string, payload map[string]any, timeout time.Duration) (*WebhookResponse, error)
}

// WebhookResponse is the engine's reply to a webhook invocation.
type WebhookResponse struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body,omitempty"`
}
