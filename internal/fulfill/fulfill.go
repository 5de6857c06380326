// Package fulfill recomputes a request's fulfillment whenever a donation is
// verified, closing the request once enough verified units accumulate.
// This is the only path that can close a request outside of cancellation or
// rejection; the escalation engine observes it through its "any donation
// exists" termination check.
package fulfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/share4life/blood-core/internal/blood"
	"github.com/share4life/blood-core/internal/db"
	"github.com/share4life/blood-core/internal/notify"
)

// Verified blood donations award donor points: a flat award plus a per-unit
// bonus, granted once per donation with the VERIFIED transition.
const (
	pointsPerDonation = 150
	pointsPerUnit     = 20
)

// ErrNotPending is returned when verifying a donation that is not awaiting
// verification (already VERIFIED calls are an idempotent no-op instead).
var ErrNotPending = errors.New("donation is not pending verification")

// Result is the outcome of a fulfillment recompute.
type Result struct {
	RequestID     uuid.UUID
	VerifiedUnits int
	UnitsNeeded   int
	Status        blood.RequestStatus
	Fulfilled     bool
}

// Decide applies the fulfillment rule: enough verified units close the
// request; any verified progress moves an OPEN request to IN_PROGRESS.
func Decide(current blood.RequestStatus, unitsNeeded, verifiedUnits int) (blood.RequestStatus, bool) {
	if verifiedUnits >= unitsNeeded {
		return blood.RequestFulfilled, true
	}
	if current == blood.RequestOpen && verifiedUnits > 0 {
		return blood.RequestInProgress, false
	}
	return current, false
}

// Service verifies donations and recomputes request fulfillment.
type Service struct {
	Pool     *pgxpool.Pool
	Sink     notify.Sink
	Realtime *notify.Realtime
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewService creates a fulfillment service.
func NewService(pool *pgxpool.Pool, sink notify.Sink, realtime *notify.Realtime, logger *slog.Logger) *Service {
	return &Service{Pool: pool, Sink: sink, Realtime: realtime, Logger: logger, Now: time.Now}
}

// VerifyDonation transitions a COMPLETED donation to VERIFIED, awards donor
// points, and recomputes the linked request's fulfillment in one
// transaction. Verifying an already-VERIFIED donation is a no-op.
func (s *Service) VerifyDonation(ctx context.Context, donationID, verifierID uuid.UUID) (*Result, error) {
	now := s.Now()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var d blood.Donation
	err = tx.QueryRow(ctx, `
		SELECT id, donor_id, request_id, units, status, donated_at, verified_at, verified_by
		FROM donations WHERE id = $1
		FOR UPDATE`, donationID).Scan(
		&d.ID, &d.DonorID, &d.RequestID, &d.Units, &d.Status,
		&d.DonatedAt, &d.VerifiedAt, &d.VerifiedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("load donation %s: %w", donationID, err)
	}

	if d.Status == blood.DonationVerified {
		return nil, nil // idempotent
	}
	if d.Status != blood.DonationCompleted {
		return nil, ErrNotPending
	}

	_, err = tx.Exec(ctx, `
		UPDATE donations
		SET status = $2, verified_at = $3, verified_by = $4
		WHERE id = $1`,
		d.ID, blood.DonationVerified, now, verifierID,
	)
	if err != nil {
		return nil, fmt.Errorf("mark verified: %w", err)
	}

	// Point award rides the VERIFIED transition, so it happens exactly once
	// per donation.
	points := pointsPerDonation + pointsPerUnit*d.Units
	_, err = tx.Exec(ctx, `
		UPDATE donor_profiles SET points = points + $2 WHERE user_id = $1`,
		d.DonorID, points,
	)
	if err != nil {
		return nil, fmt.Errorf("award points: %w", err)
	}

	var result *Result
	if d.RequestID != nil {
		result, err = Recompute(ctx, tx, *d.RequestID, now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.afterVerify(ctx, &d, result)
	return result, nil
}

// Recompute sums verified units for the request and applies the fulfillment
// rule. Runs inside the caller's transaction so the check is point-in-time
// against the same snapshot as the triggering write.
func Recompute(ctx context.Context, q db.Querier, requestID uuid.UUID, now time.Time) (*Result, error) {
	var (
		status      blood.RequestStatus
		unitsNeeded int
		isActive    bool
	)
	err := q.QueryRow(ctx, `
		SELECT status, units_needed, is_active FROM blood_requests WHERE id = $1
		FOR UPDATE`, requestID).Scan(&status, &unitsNeeded, &isActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("request %s not found", requestID)
		}
		return nil, fmt.Errorf("load request: %w", err)
	}

	var verified int
	if err := q.QueryRow(ctx, "verified_units_sum", requestID).Scan(&verified); err != nil {
		return nil, fmt.Errorf("sum verified units: %w", err)
	}

	newStatus, fulfilled := Decide(status, unitsNeeded, verified)
	result := &Result{
		RequestID:     requestID,
		VerifiedUnits: verified,
		UnitsNeeded:   unitsNeeded,
		Status:        newStatus,
		Fulfilled:     fulfilled,
	}

	if newStatus == status {
		return result, nil
	}

	if fulfilled {
		_, err = q.Exec(ctx, `
			UPDATE blood_requests
			SET status = $2, is_active = false, fulfilled_at = $3
			WHERE id = $1`,
			requestID, newStatus, now,
		)
	} else {
		_, err = q.Exec(ctx, `
			UPDATE blood_requests SET status = $2 WHERE id = $1`,
			requestID, newStatus,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("update request status: %w", err)
	}
	return result, nil
}

// afterVerify emits best-effort notifications after the transaction commits.
func (s *Service) afterVerify(ctx context.Context, d *blood.Donation, result *Result) {
	if s.Sink != nil {
		err := s.Sink.Notify(ctx, d.DonorID,
			"Donation verified",
			"Your blood donation has been verified. Thank you.",
			"/blood/donor/history/", notify.LevelSuccess)
		if err != nil {
			s.Logger.Warn("donor verify notification failed",
				"donation_id", d.ID, "error", err)
		}
	}

	if result == nil || s.Realtime == nil {
		return
	}
	event := map[string]any{
		"type":           "FULFILLMENT_UPDATE",
		"request_id":     result.RequestID.String(),
		"verified_units": result.VerifiedUnits,
		"units_needed":   result.UnitsNeeded,
		"status":         string(result.Status),
	}
	if err := s.Realtime.PublishRequestEvent(ctx, result.RequestID, event); err != nil {
		s.Logger.Warn("fulfillment event publish failed",
			"request_id", result.RequestID, "error", err)
	}
}
