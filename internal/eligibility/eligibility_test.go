package eligibility_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/share4life/blood-core/internal/blood"
	"github.com/share4life/blood-core/internal/eligibility"
)

func donation(donatedAt time.Time) *blood.Donation {
	return &blood.Donation{
		Units:     1,
		Status:    blood.DonationVerified,
		DonatedAt: donatedAt,
	}
}

func TestEligibleAt_NoHistory(t *testing.T) {
	var calc eligibility.Calculator
	require.True(t, calc.EligibleAt(nil, time.Now()))
}

func TestEligibleAt_WithinCooldown(t *testing.T) {
	var calc eligibility.Calculator
	donated := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.False(t, calc.EligibleAt(donation(donated), donated.Add(24*time.Hour)))
	require.False(t, calc.EligibleAt(donation(donated), donated.Add(89*24*time.Hour)))
}

func TestEligibleAt_BoundaryInclusive(t *testing.T) {
	var calc eligibility.Calculator
	donated := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	boundary := donated.Add(90 * 24 * time.Hour)

	require.False(t, calc.EligibleAt(donation(donated), boundary.Add(-time.Second)))
	require.True(t, calc.EligibleAt(donation(donated), boundary))
	require.True(t, calc.EligibleAt(donation(donated), boundary.Add(time.Second)))
}

func TestNextEligibleFrom(t *testing.T) {
	var calc eligibility.Calculator
	require.Nil(t, calc.NextEligibleFrom(nil))

	donated := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	next := calc.NextEligibleFrom(donation(donated))
	require.NotNil(t, next)
	require.Equal(t, donated.Add(90*24*time.Hour), *next)
}

func TestCustomCooldown(t *testing.T) {
	calc := eligibility.Calculator{Cooldown: 56 * 24 * time.Hour}
	donated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.False(t, calc.EligibleAt(donation(donated), donated.Add(55*24*time.Hour)))
	require.True(t, calc.EligibleAt(donation(donated), donated.Add(56*24*time.Hour)))
}

func TestZeroCooldownFallsBackToDefault(t *testing.T) {
	calc := eligibility.Calculator{}
	donated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next := calc.NextEligibleFrom(donation(donated))
	require.Equal(t, donated.Add(eligibility.DefaultCooldown), *next)
}
