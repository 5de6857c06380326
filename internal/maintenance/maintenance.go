// Package maintenance runs periodic background tasks as Go tickers: the
// escalation scheduler tick, cleanup of old notifications and ping logs, and
// donor eligibility reminders. All scheduled work is driven from Go since
// the API is already a persistent, long-running service (required for
// LISTEN/NOTIFY).
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/share4life/blood-core/internal/escalate"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	EscalateInterval time.Duration // escalation scheduler tick
	CleanupInterval  time.Duration // old notifications + stale ping logs
	ReminderInterval time.Duration // donor eligibility reminders
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		EscalateInterval: 30 * time.Second,
		CleanupInterval:  30 * time.Minute,
		ReminderInterval: 1 * time.Hour,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, pool *pgxpool.Pool, engine *escalate.Engine, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"escalate", cfg.EscalateInterval,
		"cleanup", cfg.CleanupInterval,
		"reminders", cfg.ReminderInterval)

	tickers := make([]*time.Ticker, 0, 3)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Escalation: advance all due emergency requests one stage
	if cfg.EscalateInterval > 0 {
		t := time.NewTicker(cfg.EscalateInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { engine.RunTick(ctx) })
	}

	// Cleanup: remove read notifications and ping logs of long-closed requests
	if cfg.CleanupInterval > 0 {
		t := time.NewTicker(cfg.CleanupInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { RunCleanup(ctx, pool, logger) })
	}

	// Reminders: tell donors when their eligibility window reopens
	if cfg.ReminderInterval > 0 {
		t := time.NewTicker(cfg.ReminderInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { SendEligibilityReminders(ctx, pool, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// RunCleanup removes read notifications older than 30 days and ping logs whose
// request closed more than 30 days ago.
func RunCleanup(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) {
	tag, err := pool.Exec(ctx, `
		DELETE FROM notifications
		WHERE read_at IS NOT NULL
		  AND created_at < NOW() - INTERVAL '30 days'`)
	if err != nil {
		logger.Warn("Cleanup: failed to purge old notifications", "error", err)
	} else if tag.RowsAffected() > 0 {
		logger.Info("Cleanup: purged old notifications", "count", tag.RowsAffected())
	}

	tag, err = pool.Exec(ctx, `
		DELETE FROM donor_ping_logs l
		USING blood_requests r
		WHERE r.id = l.request_id
		  AND r.is_active = false
		  AND r.created_at < NOW() - INTERVAL '30 days'`)
	if err != nil {
		logger.Warn("Cleanup: failed to purge stale ping logs", "error", err)
	} else if tag.RowsAffected() > 0 {
		logger.Info("Cleanup: purged stale ping logs", "count", tag.RowsAffected())
	}
}

// SendEligibilityReminders notifies donors whose 90-day window reopened
// today. The NOT EXISTS guard makes the reminder one-shot within a week even
// though the ticker fires hourly.
func SendEligibilityReminders(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) {
	tag, err := pool.Exec(ctx, `
		INSERT INTO notifications (user_id, category, title, body, url, level)
		SELECT
			p.user_id,
			'DONATION',
			'You can donate blood again',
			'You are eligible to donate again from ' || to_char(last.eligible_at, 'YYYY-MM-DD') || '.',
			'/blood/feed/',
			'SUCCESS'
		FROM donor_profiles p
		JOIN LATERAL (
			SELECT d.donated_at + INTERVAL '90 days' AS eligible_at
			FROM donations d
			WHERE d.donor_id = p.user_id AND d.status = 'VERIFIED'
			ORDER BY d.donated_at DESC
			LIMIT 1
		) last ON true
		WHERE p.is_active = true
		  AND p.is_donor = true
		  AND last.eligible_at::date = CURRENT_DATE
		  AND NOT EXISTS (
			SELECT 1 FROM notifications n
			WHERE n.user_id = p.user_id
			  AND n.category = 'DONATION'
			  AND n.title = 'You can donate blood again'
			  AND n.created_at > NOW() - INTERVAL '7 days'
		  )`)
	if err != nil {
		logger.Warn("Eligibility reminders: failed", "error", err)
	} else if tag.RowsAffected() > 0 {
		logger.Info("Eligibility reminders: sent", "count", tag.RowsAffected())
	}
}
