package blood_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/share4life/blood-core/internal/blood"
)

func TestCanDonate_UniversalDonor(t *testing.T) {
	for _, recipient := range blood.Groups {
		require.True(t, blood.CanDonate(blood.ONeg, recipient),
			"O- should donate to %s", recipient)
	}
}

func TestCanDonate_UniversalRecipient(t *testing.T) {
	for _, donor := range blood.Groups {
		require.True(t, blood.CanDonate(donor, blood.ABPos),
			"%s should donate to AB+", donor)
	}
}

func TestCanDonate_RhBarrier(t *testing.T) {
	// Rh-positive blood never goes to an Rh-negative recipient.
	require.False(t, blood.CanDonate(blood.OPos, blood.ONeg))
	require.False(t, blood.CanDonate(blood.APos, blood.ANeg))
	require.False(t, blood.CanDonate(blood.ABPos, blood.ABNeg))
}

func TestCanDonate_ABOBarrier(t *testing.T) {
	require.False(t, blood.CanDonate(blood.APos, blood.BPos))
	require.False(t, blood.CanDonate(blood.BNeg, blood.ANeg))
	require.False(t, blood.CanDonate(blood.ABNeg, blood.OPos))
}

func TestCanDonate_SelfAlwaysAllowed(t *testing.T) {
	for _, g := range blood.Groups {
		require.True(t, blood.CanDonate(g, g))
	}
}

func TestCompatibleDonors_Counts(t *testing.T) {
	require.Len(t, blood.CompatibleDonors(blood.ONeg), 1)
	require.Len(t, blood.CompatibleDonors(blood.APos), 4)
	require.Len(t, blood.CompatibleDonors(blood.ABPos), 8)
	require.Empty(t, blood.CompatibleDonors(blood.Group("X+")))
}

func TestCompatibleDonorStrings(t *testing.T) {
	require.Equal(t, []string{"O-", "O+"}, blood.CompatibleDonorStrings(blood.OPos))
}

func TestParseGroup(t *testing.T) {
	g, err := blood.ParseGroup(" ab+ ")
	require.NoError(t, err)
	require.Equal(t, blood.ABPos, g)

	_, err = blood.ParseGroup("C+")
	require.Error(t, err)

	_, err = blood.ParseGroup("")
	require.Error(t, err)
}
