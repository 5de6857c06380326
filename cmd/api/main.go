// Command api is the Share4Life blood escalation API server.
//
// Usage:
//
//	blood-api
//	API_PORT=8080 blood-api

// @title Share4Life Blood Escalation API
// @version 1.0.0
// @description Emergency blood request escalation, donor matching, ping dispatch, and fulfillment tracking for the Share4Life network.
// @host localhost:8000
// @BasePath /
// @schemes http https
// @contact.name Share4Life
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/share4life/blood-core/internal/api"
	"github.com/share4life/blood-core/internal/config"
	"github.com/share4life/blood-core/internal/db"
	"github.com/share4life/blood-core/internal/eligibility"
	"github.com/share4life/blood-core/internal/escalate"
	"github.com/share4life/blood-core/internal/fulfill"
	"github.com/share4life/blood-core/internal/listener"
	"github.com/share4life/blood-core/internal/maintenance"
	"github.com/share4life/blood-core/internal/match"
	"github.com/share4life/blood-core/internal/notify"
	"github.com/share4life/blood-core/internal/ping"

	_ "github.com/share4life/blood-core/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Connect to database
	logger.Info("Connecting to database...")
	pool, err := db.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Database connected",
		"min_conns", cfg.DBPoolMinConns,
		"max_conns", cfg.DBPoolMaxConns)

	// Connect to Redis for real-time donor/request channels
	realtime := notify.NewRealtime(cfg, logger)
	defer realtime.Close()
	if err := realtime.Ping(ctx); err != nil {
		logger.Warn("Redis unreachable, realtime pushes degraded", "error", err)
	} else {
		logger.Info("Redis connected", "addr", cfg.RedisAddr)
	}

	// Wire the escalation pipeline
	calc := eligibility.Calculator{Cooldown: cfg.EligibilityCooldown}
	matcher := match.New(pool.Pool, calc)
	matcher.RadiusSmallKm = cfg.RadiusSmallKm
	matcher.RadiusLargeKm = cfg.RadiusLargeKm

	notifyStore := notify.NewStore(pool.Pool)

	dispatcher := ping.New(matcher, ping.NewPGStore(pool.Pool), realtime, notifyStore, logger)
	dispatcher.Cooldown = cfg.PingCooldown
	dispatcher.MaxRepings = cfg.MaxRepings

	engine := escalate.New(escalate.NewPGStore(pool.Pool), dispatcher, notifyStore, notifyStore, logger)
	engine.Cfg = escalate.Config{
		StageInterval: cfg.StageInterval,
		LoopInterval:  cfg.LoopInterval,
		MaxWindow:     cfg.MaxEscalationWindow,
		Workers:       cfg.TickWorkers,
	}

	fulfillSvc := fulfill.NewService(pool.Pool, notifyStore, realtime, logger)

	// Start LISTEN/NOTIFY consumer for donation verification events
	go listener.Start(ctx, cfg.DatabaseURL, pool.Pool, realtime, logger)

	// Start maintenance tickers (escalation, cleanup, eligibility reminders)
	go maintenance.Start(ctx, pool.Pool, engine, maintenance.Config{
		EscalateInterval: cfg.TickInterval,
		CleanupInterval:  cfg.CleanupInterval,
		ReminderInterval: cfg.ReminderInterval,
	}, logger)

	// Create router
	router := api.NewRouter(pool.Pool, cfg, matcher, fulfillSvc, realtime)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting Share4Life Blood API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
