// Command main is the entry point for the studiodesk API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studiodesk/internal/bootstrap"
	"studiodesk/internal/config"
	"studiodesk/internal/middleware"
	"studiodesk/internal/observability"
	"studiodesk/internal/server"
)

// @title studiodesk API
// @version 1.0
// @description Creator studio forum, username setup, billing checks and spreadsheet generation.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@studiodesk.local

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	seedPreset := flag.String("seed", "", "apply a seed preset when the forum is empty (e.g. demo)")
	flag.Parse()

	if err := run(*seedPreset); err != nil {
		middleware.Logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(seedPreset string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	middleware.Logger = middleware.NewLogger(os.Stdout, cfg.Env, slog.LevelInfo)
	for _, w := range cfg.Warnings() {
		middleware.Logger.Warn("config", "warning", w)
	}

	stopTracing, err := observability.SetupTracing(context.Background(), observability.TracingConfig{
		ServiceName:    "studiodesk-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	db, rdb, err := bootstrap.InitRuntime(cfg, bootstrap.Options{SeedPreset: seedPreset})
	if err != nil {
		return err
	}
	srv, err := server.NewServerWithDeps(cfg, db, rdb)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	served := make(chan error, 1)
	go func() { served <- srv.Start() }()

	select {
	case err = <-served:
	case <-ctx.Done():
		middleware.Logger.Info("shutting down")
	}

	drain, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return errors.Join(err, srv.Shutdown(drain), stopTracing(drain))
}
