// Package main provides the Quantfold local scheduler, the deployment mode
// without a remote workflow engine.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// AnalysisRunner invokes the analysis pipeline for one strategy. The
// pipeline itself is an external collaborator; the scheduler only decides
// when it runs.
type AnalysisRunner interface {
	Run(ctx context.Context, strategyID string) error
}

// HTTPRunner posts to the analysis service endpoint.
type HTTPRunner struct {
	analysisURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

func NewHTTPRunner(analysisURL string, logger *slog.Logger) *HTTPRunner {
	return &HTTPRunner{
		analysisURL: analysisURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger.With("module", "analysis-runner"),
	}
}

func (r *HTTPRunner) Run(ctx context.Context, strategyID string) error {
	body, err := json.Marshal(map[string]any{"strategy_id": strategyID, "triggered": true})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.analysisURL, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			r.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	r.logger.Info("Analysis run dispatched", "strategy_id", strategyID, "status", resp.StatusCode)

	return nil
}

// LogRunner is the stand-in used when no analysis endpoint is configured.
type LogRunner struct {
	logger *slog.Logger
}

func NewLogRunner(logger *slog.Logger) *LogRunner {
	return &LogRunner{logger: logger.With("module", "analysis-runner")}
}

func (r *LogRunner) Run(ctx context.Context, strategyID string) error {
	r.logger.Info("Analysis run due (no analysis endpoint configured)", "strategy_id", strategyID)

	return nil
}
