// Command extractor-supervisor starts the Supervisor: it connects every
// configured environment, admits and runs the configured worker plan,
// and exposes an internal health and metrics surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paraito/registre-extractor/internal/app"
	"github.com/paraito/registre-extractor/internal/common"
)

func main() {
	configPath := os.Getenv("EXTRACTOR_CONFIG")

	a, err := app.NewApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.HandleFunc("/metrics", metricsHandler(a))

	srv := &http.Server{
		Addr:         internalAddr(),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("starting internal health server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error().Err(err).Msg("internal health server failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	runDone := make(chan error, 1)
	go func() {
		runDone <- a.Supervisor.Run(ctx)
	}()

	select {
	case <-sigChan:
		a.Logger.Info().Msg("shutdown signal received")
		cancel()
		if err := <-runDone; err != nil {
			a.Logger.Warn().Err(err).Msg("supervisor did not drain cleanly")
		}
	case err := <-runDone:
		if err != nil {
			a.Logger.Error().Err(err).Msg("supervisor exited with error")
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("internal health server shutdown failed")
	}

	a.Close()
	common.PrintShutdownBanner(a.Logger)
}

// internalAddr resolves the internal health/metrics bind address,
// overridable for deployments that run several supervisors per host.
func internalAddr() string {
	if addr := os.Getenv("EXTRACTOR_INTERNAL_ADDR"); addr != "" {
		return addr
	}
	return ":9090"
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// metricsHandler reports a minimal process-level snapshot. The Health
// Monitor owns the detailed per-environment view, logged and charted on
// its own schedule; this endpoint is for an external liveness probe.
func metricsHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"version":            common.GetVersion(),
			"build":              common.GetBuild(),
			"uptime_seconds":     time.Since(a.StartTime).Seconds(),
			"extraction_workers": a.Config.Worker.ExtractionCount,
			"ocr_workers":        a.Config.Worker.OCRCount,
		})
	}
}
