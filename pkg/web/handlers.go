// Package web provides the HTTP handlers for strategy lifecycle operations.
package web

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/quantfold/quantfold/pkg/lifecycle"
	"github.com/quantfold/quantfold/pkg/persistence"
)

// Lifecycle is the coordinator surface the handlers depend on.
type Lifecycle interface {
	Start(ctx context.Context, strategyID string, caller lifecycle.Caller) error
	Pause(ctx context.Context, strategyID string, caller lifecycle.Caller) error
	Stop(ctx context.Context, strategyID string, caller lifecycle.Caller) error
	Trigger(ctx context.Context, strategyID string, caller lifecycle.Caller) lifecycle.Result
}

type APIHandlers struct {
	coordinator Lifecycle
	store       persistence.Persistence
}

func NewAPIHandlers(coordinator Lifecycle, store persistence.Persistence) *APIHandlers {
	return &APIHandlers{
		coordinator: coordinator,
		store:       store,
	}
}

// caller extracts the acting user and their forwarded credential. Identity
// verification itself is an upstream collaborator; by the time a request
// lands here the gateway has authenticated the user id header.
func caller(c fiber.Ctx) lifecycle.Caller {
	credential := ""

	if authorization := c.Get("Authorization"); authorization != "" {
		credential = strings.TrimPrefix(authorization, "Bearer ")
	}

	return lifecycle.Caller{
		UserID:     c.Get("X-User-ID"),
		Credential: credential,
	}
}

func (h *APIHandlers) StartStrategy(c fiber.Ctx) error {
	strategyID := c.Params("id")

	if err := h.coordinator.Start(c.Context(), strategyID, caller(c)); err != nil {
		return handleLifecycleError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ACTIVE", "strategy_id": strategyID})
}

func (h *APIHandlers) PauseStrategy(c fiber.Ctx) error {
	strategyID := c.Params("id")

	if err := h.coordinator.Pause(c.Context(), strategyID, caller(c)); err != nil {
		return handleLifecycleError(c, err)
	}

	return c.JSON(fiber.Map{"status": "PAUSED", "strategy_id": strategyID})
}

func (h *APIHandlers) StopStrategy(c fiber.Ctx) error {
	strategyID := c.Params("id")

	if err := h.coordinator.Stop(c.Context(), strategyID, caller(c)); err != nil {
		return handleLifecycleError(c, err)
	}

	return c.JSON(fiber.Map{"status": "STOPPED", "strategy_id": strategyID})
}

// TriggerStrategy always answers 200 with the trigger result; a failed
// manual trigger is an outcome, not a transport error.
func (h *APIHandlers) TriggerStrategy(c fiber.Ctx) error {
	strategyID := c.Params("id")

	result := h.coordinator.Trigger(c.Context(), strategyID, caller(c))

	return c.JSON(result)
}

func (h *APIHandlers) GetStrategy(c fiber.Ctx) error {
	strategy, err := h.store.StrategyByID(c.Context(), c.Params("id"))
	if err != nil {
		if persistence.IsStrategyNotFound(err) {
			return notFound(c, "strategy not found")
		}

		return internalError(c, err)
	}

	return c.JSON(strategy)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.store.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
