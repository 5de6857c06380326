// Command bloodctl is the Share4Life operations CLI.
//
// Usage:
//
//	bloodctl escalate tick
//	bloodctl match --request <uuid> --scope auto
//	bloodctl fulfill recompute --request <uuid>
//	bloodctl maintenance cleanup
//	bloodctl maintenance remind
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/share4life/blood-core/internal/blood"
	"github.com/share4life/blood-core/internal/config"
	"github.com/share4life/blood-core/internal/db"
	"github.com/share4life/blood-core/internal/eligibility"
	"github.com/share4life/blood-core/internal/escalate"
	"github.com/share4life/blood-core/internal/fulfill"
	"github.com/share4life/blood-core/internal/maintenance"
	"github.com/share4life/blood-core/internal/match"
	"github.com/share4life/blood-core/internal/notify"
	"github.com/share4life/blood-core/internal/ping"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "bloodctl",
		Short: "Share4Life blood escalation operations CLI",
	}

	root.AddCommand(escalateCmd())
	root.AddCommand(matchCmd())
	root.AddCommand(fulfillCmd())
	root.AddCommand(maintenanceCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// escalate command
// --------------------------------------------------------------------------

func escalateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escalate",
		Short: "Drive the emergency escalation state machine",
	}
	cmd.AddCommand(escalateTickCmd())
	return cmd
}

func escalateTickCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one escalation pass over all active emergency requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				engine := buildEngine(cfg, pool)
				start := time.Now()
				result := engine.RunTick(ctx)
				logger.Info("Escalation tick finished",
					"duration", time.Since(start).Round(time.Millisecond),
					"summary", result.Summary())
				for _, e := range result.Errors {
					logger.Error("tick error", "error", e)
				}
				return nil
			})
		},
	}
	return cmd
}

// --------------------------------------------------------------------------
// match command
// --------------------------------------------------------------------------

func matchCmd() *cobra.Command {
	var requestID string
	var scope string
	cmd := &cobra.Command{
		Use:   "match",
		Short: "List donors a request would match, without pinging anyone",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(requestID)
			if err != nil {
				return fmt.Errorf("--request must be a UUID: %w", err)
			}
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				store := escalate.NewPGStore(pool.Pool)
				req, err := store.RequestByID(ctx, id)
				if err != nil {
					return fmt.Errorf("load request: %w", err)
				}

				matcher := buildMatcher(cfg, pool)
				var donors []blood.DonorProfile
				switch scope {
				case "city":
					donors, err = matcher.ByCity(ctx, req)
				case "5km":
					donors, err = matcher.ByRadius(ctx, req, cfg.RadiusSmallKm)
				case "10km":
					donors, err = matcher.ByRadius(ctx, req, cfg.RadiusLargeKm)
				default:
					donors, err = matcher.CityThenRadius(ctx, req)
				}
				if err != nil {
					return err
				}

				logger.Info("Match complete",
					"request", id, "scope", scope,
					"blood_group", req.BloodGroup, "city", req.City,
					"donors", len(donors))
				for _, d := range donors {
					logger.Info("donor", "id", d.UserID, "group", d.BloodGroup, "city", d.City)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&requestID, "request", "", "Blood request ID (required)")
	cmd.Flags().StringVar(&scope, "scope", "auto", "Match scope (city, 5km, 10km, auto)")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

// --------------------------------------------------------------------------
// fulfill command
// --------------------------------------------------------------------------

func fulfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fulfill",
		Short: "Fulfillment bookkeeping",
	}
	cmd.AddCommand(fulfillRecomputeCmd())
	return cmd
}

func fulfillRecomputeCmd() *cobra.Command {
	var requestID string
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute a request's fulfillment status from verified donations",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(requestID)
			if err != nil {
				return fmt.Errorf("--request must be a UUID: %w", err)
			}
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				tx, err := pool.Pool.Begin(ctx)
				if err != nil {
					return fmt.Errorf("begin: %w", err)
				}
				defer tx.Rollback(ctx)

				result, err := fulfill.Recompute(ctx, tx, id, time.Now())
				if err != nil {
					return err
				}
				if err := tx.Commit(ctx); err != nil {
					return fmt.Errorf("commit: %w", err)
				}

				logger.Info("Recompute complete",
					"request", id,
					"verified_units", result.VerifiedUnits,
					"units_needed", result.UnitsNeeded,
					"status", result.Status,
					"fulfilled", result.Fulfilled)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&requestID, "request", "", "Blood request ID (required)")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

// --------------------------------------------------------------------------
// maintenance command
// --------------------------------------------------------------------------

func maintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Run maintenance tasks once",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Purge read notifications and stale ping logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				maintenance.RunCleanup(ctx, pool.Pool, logger)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remind",
		Short: "Send eligibility reminders to donors whose window reopened today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, cfg *config.Config, pool *db.Pool) error {
				maintenance.SendEligibilityReminders(ctx, pool.Pool, logger)
				return nil
			})
		},
	})
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

func buildMatcher(cfg *config.Config, pool *db.Pool) *match.Matcher {
	calc := eligibility.Calculator{Cooldown: cfg.EligibilityCooldown}
	m := match.New(pool.Pool, calc)
	m.RadiusSmallKm = cfg.RadiusSmallKm
	m.RadiusLargeKm = cfg.RadiusLargeKm
	return m
}

func buildEngine(cfg *config.Config, pool *db.Pool) *escalate.Engine {
	notifyStore := notify.NewStore(pool.Pool)
	realtime := notify.NewRealtime(cfg, logger)

	dispatcher := ping.New(buildMatcher(cfg, pool), ping.NewPGStore(pool.Pool), realtime, notifyStore, logger)
	dispatcher.Cooldown = cfg.PingCooldown
	dispatcher.MaxRepings = cfg.MaxRepings

	engine := escalate.New(escalate.NewPGStore(pool.Pool), dispatcher, notifyStore, notifyStore, logger)
	engine.Cfg = escalate.Config{
		StageInterval: cfg.StageInterval,
		LoopInterval:  cfg.LoopInterval,
		MaxWindow:     cfg.MaxEscalationWindow,
		Workers:       cfg.TickWorkers,
	}
	return engine
}

// run handles config loading, DB connection, and context cancellation.
func run(fn func(ctx context.Context, cfg *config.Config, pool *db.Pool) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}
