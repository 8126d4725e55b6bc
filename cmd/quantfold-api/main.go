package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/quantfold/quantfold/pkg/engine"
	"github.com/quantfold/quantfold/pkg/eventbus"
	"github.com/quantfold/quantfold/pkg/lifecycle"
	"github.com/quantfold/quantfold/pkg/log"
	"github.com/quantfold/quantfold/pkg/otelhelper"
	"github.com/quantfold/quantfold/pkg/persistence/postgresql"
	"github.com/quantfold/quantfold/pkg/template"
)

func main() {
	cmd := &cli.Command{
		Name:                  "quantfold-api",
		Usage:                 "Start the Quantfold strategy lifecycle API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for the strategy store",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "engine-url",
				Usage:    "Base URL of the remote workflow engine",
				Required: true,
				Sources:  cli.EnvVars("ENGINE_URL"),
			},
			&cli.StringFlag{
				Name:     "engine-api-key",
				Usage:    "API key for the remote workflow engine",
				Required: true,
				Sources:  cli.EnvVars("ENGINE_API_KEY"),
			},
			&cli.StringFlag{
				Name:     "api-base-url",
				Usage:    "Public base URL workflows call back into",
				Required: true,
				Sources:  cli.EnvVars("API_BASE_URL"),
			},
			&cli.StringFlag{
				Name:     "webhook-base-url",
				Usage:    "Base URL where the engine exposes workflow webhooks",
				Required: true,
				Sources:  cli.EnvVars("WEBHOOK_BASE_URL"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "HTTP port to listen on",
				Value:   8080,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			tracerProvider, err := otelhelper.InitTracer(ctx, "quantfold-api")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}
			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					slog.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			logger := log.WithModule("quantfold-api")
			logger.Info("Initializing Quantfold API")

			// Remote-engine settings are validated here, at startup,
			// not at the first remote operation.
			engineClient, err := engine.NewHTTPClient(engine.Config{
				BaseURL: command.String("engine-url"),
				APIKey:  command.String("engine-api-key"),
			}, logger)
			if err != nil {
				return err
			}

			store, err := postgresql.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return fmt.Errorf("failed to initialize strategy store: %w", err)
			}
			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.Error("Failed to close strategy store", "error", err)
				}
			}()

			bus := eventbus.NewInProcessEventBus(logger)
			defer func() {
				if err := bus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			renderer := template.NewRenderer(
				command.String("api-base-url"),
				command.String("webhook-base-url"),
			)
			provisioner := template.NewProvisioner(engineClient, renderer, logger)
			coordinator := lifecycle.NewCoordinator(store, engineClient, provisioner, bus, logger)

			api := NewAPI(logger, coordinator, store)

			port := command.Int("port")
			logger.Info("Starting HTTP server", "port", port)

			return api.Start(port)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("quantfold-api exited with error", "error", err)
		os.Exit(1)
	}
}
