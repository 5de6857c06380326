// Package eligibility computes donor eligibility from donation history.
// A donor is ineligible for a fixed cooldown window after their most recent
// VERIFIED donation; a donor with no verified history is always eligible.
package eligibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/share4life/blood-core/internal/blood"
	"github.com/share4life/blood-core/internal/db"
)

// DefaultCooldown is the standard window between whole-blood donations.
const DefaultCooldown = 90 * 24 * time.Hour

// Calculator evaluates eligibility windows. The zero value uses
// DefaultCooldown.
type Calculator struct {
	Cooldown time.Duration
}

func (c Calculator) cooldown() time.Duration {
	if c.Cooldown <= 0 {
		return DefaultCooldown
	}
	return c.Cooldown
}

// NextEligibleFrom returns the timestamp the donor becomes eligible again
// given their last verified donation. Nil when there is no history.
func (c Calculator) NextEligibleFrom(last *blood.Donation) *time.Time {
	if last == nil {
		return nil
	}
	next := last.DonatedAt.Add(c.cooldown())
	return &next
}

// EligibleAt reports eligibility at a point in time. The boundary is
// inclusive: a donor is eligible exactly at donatedAt + cooldown.
func (c Calculator) EligibleAt(last *blood.Donation, now time.Time) bool {
	next := c.NextEligibleFrom(last)
	return next == nil || !now.Before(*next)
}

// LastVerifiedDonation returns the donor's most recent VERIFIED donation
// ordered by donatedAt, or nil when none exists.
func LastVerifiedDonation(ctx context.Context, q db.Querier, donorID uuid.UUID) (*blood.Donation, error) {
	var d blood.Donation
	err := q.QueryRow(ctx, "last_verified_donation", donorID).Scan(
		&d.ID, &d.DonorID, &d.RequestID, &d.Units, &d.Status,
		&d.DonatedAt, &d.VerifiedAt, &d.VerifiedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last verified donation: %w", err)
	}
	return &d, nil
}

// IsEligible reports whether the donor may donate now.
func (c Calculator) IsEligible(ctx context.Context, q db.Querier, donorID uuid.UUID, now time.Time) (bool, error) {
	last, err := LastVerifiedDonation(ctx, q, donorID)
	if err != nil {
		return false, err
	}
	return c.EligibleAt(last, now), nil
}

// NextEligibleAt returns when the donor becomes eligible again, or nil when
// they have no verified history.
func (c Calculator) NextEligibleAt(ctx context.Context, q db.Querier, donorID uuid.UUID) (*time.Time, error) {
	last, err := LastVerifiedDonation(ctx, q, donorID)
	if err != nil {
		return nil, err
	}
	return c.NextEligibleFrom(last), nil
}
