package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/quantfold/quantfold/pkg/models"
)

const defaultRequestTimeout = 30 * time.Second

// Config holds the connection settings for the remote engine. Both fields
// are required; construction fails fast instead of deferring the error to
// the first remote call.
type Config struct {
	BaseURL string `validate:"required,url"`
	APIKey  string `validate:"required"`
}

// HTTPClient implements Client over the engine's REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient validates the config and builds a client.
func NewHTTPClient(config Config, logger *slog.Logger) (*HTTPClient, error) {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(config); err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}

	return &HTTPClient{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger.With("module", "engine"),
	}, nil
}

// Create installs a new workflow from the definition.
func (c *HTTPClient) Create(ctx context.Context, definition *models.WorkflowDefinition) (*models.Workflow, error) {
	var workflow models.Workflow

	err := c.do(ctx, http.MethodPost, "/workflows", definition, &workflow)
	if err != nil {
		return nil, NewError("Create", "", statusOf(err), err)
	}

	c.logger.Info("Created remote workflow", "workflow_id", workflow.ID, "name", workflow.Name)

	return &workflow, nil
}

// Get fetches a workflow; the returned Active flag is authoritative.
func (c *HTTPClient) Get(ctx context.Context, id string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := c.do(ctx, http.MethodGet, "/workflows/"+id, nil, &workflow)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, NewError("Get", id, http.StatusNotFound, ErrWorkflowGone)
		}

		return nil, NewError("Get", id, statusOf(err), err)
	}

	return &workflow, nil
}

// Activate arms the workflow's schedule.
func (c *HTTPClient) Activate(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/workflows/"+id+"/activate", nil, nil); err != nil {
		return NewError("Activate", id, statusOf(err), err)
	}

	return nil
}

// Deactivate disarms the workflow's schedule.
func (c *HTTPClient) Deactivate(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/workflows/"+id+"/deactivate", nil, nil); err != nil {
		return NewError("Deactivate", id, statusOf(err), err)
	}

	return nil
}

// Delete removes the workflow from the engine.
func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/workflows/"+id, nil, nil); err != nil {
		return NewError("Delete", id, statusOf(err), err)
	}

	return nil
}

// List returns all workflows known to the engine.
func (c *HTTPClient) List(ctx context.Context) ([]*models.Workflow, error) {
	var response struct {
		Data []*models.Workflow `json:"data"`
	}

	if err := c.do(ctx, http.MethodGet, "/workflows?all=true", nil, &response); err != nil {
		return nil, NewError("List", "", statusOf(err), err)
	}

	return response.Data, nil
}

// FindByName returns the workflows carrying the given name. Used by the
// provisioner to sweep duplicates before creating.
func (c *HTTPClient) FindByName(ctx context.Context, name string) ([]*models.Workflow, error) {
	workflows, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	return lo.Filter(workflows, func(w *models.Workflow, _ int) bool {
		return w.Name == name
	}), nil
}

// InvokeWebhook POSTs the payload to the workflow's webhook URL. The timeout
// bounds the whole invocation; a slow engine is a failure, not a pending
// call.
func (c *HTTPClient) InvokeWebhook(ctx context.Context, url string, payload map[string]any, timeout time.Duration) (*WebhookResponse, error) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError("InvokeWebhook", "", 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewError("InvokeWebhook", "", 0, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewError("InvokeWebhook", "", 0, fmt.Errorf("%w: %w", ErrUnavailable, err))
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close webhook response body", "error", err)
		}
	}()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError("InvokeWebhook", "", resp.StatusCode, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewError("InvokeWebhook", "", resp.StatusCode,
			fmt.Errorf("%w: webhook returned status %d", ErrUnavailable, resp.StatusCode))
	}

	return &WebhookResponse{StatusCode: resp.StatusCode, Body: string(responseBody)}, nil
}

// statusError carries the HTTP status through the generic request helper.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func statusOf(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}

	return 0
}

// do performs one JSON request against the engine API.
func (c *HTTPClient) do(ctx context.Context, method, path string, requestBody, responseBody any) error {
	var reader io.Reader

	if requestBody != nil {
		raw, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}

		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("X-API-Key", c.apiKey)

	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &statusError{
			status: resp.StatusCode,
			err:    fmt.Errorf("%w: %s %s returned status %d", ErrUnavailable, method, path, resp.StatusCode),
		}
	}

	if responseBody == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(responseBody); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}

	return nil
}
