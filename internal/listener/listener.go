// Package listener provides a Postgres LISTEN/NOTIFY consumer for donation
// verification events. It holds a dedicated pgx connection (not from the
// pool) listening on the `donation_verified` channel.
//
// The schema trigger fires pg_notify whenever a donation row transitions to
// VERIFIED, including writes from the admin surface or other services,
// so fulfillment is recomputed no matter which writer verified.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/share4life/blood-core/internal/fulfill"
	"github.com/share4life/blood-core/internal/notify"
)

const (
	channel          = "donation_verified"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// VerifiedEvent is the JSON payload from pg_notify('donation_verified', ...).
type VerifiedEvent struct {
	DonationID string `json:"donation_id"`
	RequestID  string `json:"request_id"`
	DonorID    string `json:"donor_id"`
	Units      int    `json:"units"`
}

// Start opens a dedicated connection and listens on the donation_verified
// channel. It reconnects automatically on connection loss. Blocks until ctx
// is cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, pool *pgxpool.Pool, realtime *notify.Realtime, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, pool, realtime, logger)
		if ctx.Err() != nil {
			logger.Info("Donation listener stopped (context cancelled)")
			return
		}

		logger.Error("Donation listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, pool *pgxpool.Pool, realtime *notify.Realtime, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+channel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	logger.Info("Donation listener connected", "channel", channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		var event VerifiedEvent
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			logger.Warn("Failed to parse donation event",
				"payload", notification.Payload, "error", err)
			continue
		}

		logger.Info("Donation verified event received",
			"donation_id", event.DonationID,
			"request_id", event.RequestID)

		// Process asynchronously to avoid blocking the listener
		go handleVerified(ctx, pool, realtime, event, logger)
	}
}

// handleVerified recomputes fulfillment for the linked request and publishes
// the updated progress to the request's realtime channel.
func handleVerified(ctx context.Context, pool *pgxpool.Pool, realtime *notify.Realtime, event VerifiedEvent, logger *slog.Logger) {
	if event.RequestID == "" {
		return // donation not linked to a request
	}
	requestID, err := uuid.Parse(event.RequestID)
	if err != nil {
		logger.Warn("Bad request id in donation event",
			"request_id", event.RequestID, "error", err)
		return
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		logger.Warn("Fulfillment recompute begin failed",
			"request_id", event.RequestID, "error", err)
		return
	}
	defer tx.Rollback(ctx)

	result, err := fulfill.Recompute(ctx, tx, requestID, time.Now())
	if err != nil {
		logger.Warn("Fulfillment recompute failed",
			"request_id", event.RequestID, "error", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		logger.Warn("Fulfillment recompute commit failed",
			"request_id", event.RequestID, "error", err)
		return
	}

	logger.Info("Fulfillment recomputed",
		"request_id", event.RequestID,
		"verified_units", result.VerifiedUnits,
		"units_needed", result.UnitsNeeded,
		"fulfilled", result.Fulfilled)

	if realtime != nil {
		update := map[string]any{
			"type":           "FULFILLMENT_UPDATE",
			"request_id":     result.RequestID.String(),
			"verified_units": result.VerifiedUnits,
			"units_needed":   result.UnitsNeeded,
			"status":         string(result.Status),
		}
		if err := realtime.PublishRequestEvent(ctx, result.RequestID, update); err != nil {
			logger.Warn("Fulfillment event publish failed",
				"request_id", result.RequestID, "error", err)
		}
	}
}
