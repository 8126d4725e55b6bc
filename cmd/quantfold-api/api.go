// Package main provides the Quantfold lifecycle API server.
package main

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/quantfold/quantfold/pkg/persistence"
	"github.com/quantfold/quantfold/pkg/web"
)

type API struct {
	logger      *slog.Logger
	coordinator web.Lifecycle
	store       persistence.Persistence
}

func NewAPI(logger *slog.Logger, coordinator web.Lifecycle, store persistence.Persistence) *API {
	return &API{
		logger:      logger,
		coordinator: coordinator,
		store:       store,
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.coordinator, a.store)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Quantfold API")
	})

	s := app.Group("/strategies")
	s.Get("/:id", handlers.GetStrategy)
	s.Post("/:id/start", handlers.StartStrategy)
	s.Post("/:id/pause", handlers.PauseStrategy)
	s.Post("/:id/stop", handlers.StopStrategy)
	s.Post("/:id/trigger", handlers.TriggerStrategy)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
