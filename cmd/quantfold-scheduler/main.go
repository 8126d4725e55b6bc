package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/quantfold/quantfold/pkg/log"
	"github.com/quantfold/quantfold/pkg/otelhelper"
	"github.com/quantfold/quantfold/pkg/persistence"
	"github.com/quantfold/quantfold/pkg/persistence/file"
	"github.com/quantfold/quantfold/pkg/persistence/postgresql"
	"github.com/quantfold/quantfold/pkg/scheduler"
)

func newPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	}

	return file.NewPersistence(databaseURL), nil
}

func main() {
	cmd := &cli.Command{
		Name:                  "quantfold-scheduler",
		Usage:                 "Run strategy analysis on local timers, without a remote workflow engine",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Strategy store URL (postgres://... or a file:// directory)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "analysis-url",
				Usage:   "Analysis service endpoint invoked on each run (logs only when empty)",
				Value:   "",
				Sources: cli.EnvVars("ANALYSIS_URL"),
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

			tracerProvider, err := otelhelper.InitTracer(ctx, "quantfold-scheduler")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}
			defer func() {
				if err := tracerProvider.Shutdown(ctx); err != nil {
					slog.Error("Failed to shutdown tracer provider", "error", err)
				}
			}()

			logger := log.WithModule("quantfold-scheduler")
			logger.Info("Initializing Quantfold local scheduler")

			store, err := newPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return fmt.Errorf("failed to initialize strategy store: %w", err)
			}
			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.Error("Failed to close strategy store", "error", err)
				}
			}()

			var runner AnalysisRunner
			if analysisURL := command.String("analysis-url"); analysisURL != "" {
				runner = NewHTTPRunner(analysisURL, logger)
			} else {
				runner = NewLogRunner(logger)
			}

			localScheduler := scheduler.NewLocalScheduler(logger)

			callback := func(ctx context.Context, strategyID string) {
				if err := runner.Run(ctx, strategyID); err != nil {
					logger.Error("Analysis run failed", "strategy_id", strategyID, "error", err)
				}
			}

			// Armed timers do not survive a restart; recover them from
			// the persisted ACTIVE rows before starting.
			if err := localScheduler.RearmActive(ctx, store, callback); err != nil {
				return fmt.Errorf("failed to re-arm active strategies: %w", err)
			}

			localScheduler.Start()
			defer localScheduler.Shutdown()

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-signals:
				logger.Info("Received signal, shutting down", "signal", sig)
			case <-ctx.Done():
				logger.Info("Context cancelled, shutting down")
			}

			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("quantfold-scheduler exited with error", "error", err)
		os.Exit(1)
	}
}
