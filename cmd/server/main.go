// Package main is the entry point for the sentinel-risk HTTP service.
//
// The service exposes the portfolio risk engine over JSON:
//   - Merton allocation
//   - correlated Monte Carlo simulation and the risk report derived from it
//   - stress scenario sweeps with an adversarial tail fit
//   - VaR backtesting with Kupiec and Christoffersen tests
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/sentinel-risk/internal/config"
	"github.com/aristath/sentinel-risk/internal/metrics"
	"github.com/aristath/sentinel-risk/internal/modules/engine"
	"github.com/aristath/sentinel-risk/internal/server"
	"github.com/aristath/sentinel-risk/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Int("workers", cfg.Simulation.Workers).
		Int("default_paths", cfg.Simulation.DefaultPaths).
		Int("max_paths", cfg.Simulation.MaxPaths).
		Msg("Starting sentinel-risk")

	m := metrics.New()
	svc := engine.New(engine.Options{
		Workers:             cfg.Simulation.Workers,
		ScenarioConcurrency: cfg.Simulation.ScenarioConcurrency,
	}, m, log)

	srv := server.New(server.Config{
		Log:     log,
		Config:  cfg,
		Engine:  svc,
		Metrics: m,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// In-flight simulations get the request timeout to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
