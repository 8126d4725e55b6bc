// Package testutil provides shared test doubles for the quantfold packages.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/quantfold/quantfold/pkg/engine"
	"github.com/quantfold/quantfold/pkg/models"
)

// FakeEngine is an in-memory engine.Client with scriptable failures. The
// Ignore* fields make Activate/Deactivate accept the call without applying
// it, mimicking the remote engine behavior the coordinator verifies against.
type FakeEngine struct {
	mu        sync.Mutex
	workflows map[string]*models.Workflow
	nextID    int

	CreateCalls     int
	GetCalls        int
	ActivateCalls   int
	DeactivateCalls int
	DeleteCalls     int
	ListCalls       int
	WebhookCalls    int

	FailCreate     error
	FailGet        error
	FailActivate   error
	FailDeactivate error
	FailDelete     error
	FailWebhook    error

	// IgnoreActivations / IgnoreDeactivations are decremented per
	// swallowed call.
	IgnoreActivations   int
	IgnoreDeactivations int

	LastWebhookURL     string
	LastWebhookPayload map[string]any
}

// NewFakeEngine creates an empty fake engine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{workflows: make(map[string]*models.Workflow)}
}

// Seed installs a workflow directly, bypassing call counters.
func (f *FakeEngine) Seed(workflow *models.Workflow) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clone := *workflow
	f.workflows[workflow.ID] = &clone
}

// Workflow returns the stored workflow, or nil.
func (f *FakeEngine) Workflow(id string) *models.Workflow {
	f.mu.Lock()
	defer f.mu.Unlock()

	workflow, ok := f.workflows[id]
	if !ok {
		return nil
	}

	clone := *workflow

	return &clone
}

func (f *FakeEngine) Create(ctx context.Context, definition *models.WorkflowDefinition) (*models.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CreateCalls++

	if f.FailCreate != nil {
		return nil, f.FailCreate
	}

	f.nextID++
	workflow := &models.Workflow{
		ID:         fmt.Sprintf("wf-%d", f.nextID),
		Name:       definition.Name,
		Active:     false,
		Definition: *definition,
	}
	f.workflows[workflow.ID] = workflow

	clone := *workflow

	return &clone, nil
}

func (f *FakeEngine) Get(ctx context.Context, id string) (*models.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.GetCalls++

	if f.FailGet != nil {
		return nil, f.FailGet
	}

	workflow, ok := f.workflows[id]
	if !ok {
		return nil, engine.NewError("Get", id, http.StatusNotFound, engine.ErrWorkflowGone)
	}

	clone := *workflow

	return &clone, nil
}

func (f *FakeEngine) Activate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ActivateCalls++

	if f.FailActivate != nil {
		return f.FailActivate
	}

	if f.IgnoreActivations > 0 {
		f.IgnoreActivations--

		return nil
	}

	if workflow, ok := f.workflows[id]; ok {
		workflow.Active = true
	}

	return nil
}

func (f *FakeEngine) Deactivate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.DeactivateCalls++

	if f.FailDeactivate != nil {
		return f.FailDeactivate
	}

	if f.IgnoreDeactivations > 0 {
		f.IgnoreDeactivations--

		return nil
	}

	if workflow, ok := f.workflows[id]; ok {
		workflow.Active = false
	}

	return nil
}

func (f *FakeEngine) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.DeleteCalls++

	if f.FailDelete != nil {
		return f.FailDelete
	}

	delete(f.workflows, id)

	return nil
}

func (f *FakeEngine) List(ctx context.Context) ([]*models.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ListCalls++

	workflows := make([]*models.Workflow, 0, len(f.workflows))
	for _, workflow := range f.workflows {
		clone := *workflow
		workflows = append(workflows, &clone)
	}

	return workflows, nil
}

func (f *FakeEngine) InvokeWebhook(ctx context.Context, url string, payload map[string]any, timeout time.Duration) (*engine.WebhookResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.WebhookCalls++
	f.LastWebhookURL = url
	f.LastWebhookPayload = payload

	if f.FailWebhook != nil {
		return nil, f.FailWebhook
	}

	return &engine.WebhookResponse{StatusCode: http.StatusOK, Body: `{"status":"ok"}`}, nil
}
