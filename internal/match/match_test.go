package match_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/share4life/blood-core/internal/blood"
	"github.com/share4life/blood-core/internal/match"
)

func ptr(f float64) *float64 { return &f }

func cityRequest(group blood.Group, city string) *blood.Request {
	return &blood.Request{
		ID:         uuid.New(),
		BloodGroup: group,
		City:       city,
	}
}

func gpsRequest(group blood.Group, lat, lon float64) *blood.Request {
	r := cityRequest(group, "kathmandu")
	r.Latitude = ptr(lat)
	r.Longitude = ptr(lon)
	return r
}

func donor(group blood.Group, city string) blood.DonorProfile {
	return blood.DonorProfile{
		UserID:     uuid.New(),
		BloodGroup: group,
		City:       city,
		IsDonor:    true,
		IsActive:   true,
	}
}

func gpsDonor(group blood.Group, lat, lon float64) blood.DonorProfile {
	d := donor(group, "kathmandu")
	d.Latitude = ptr(lat)
	d.Longitude = ptr(lon)
	return d
}

func TestConfirmCity_SynonymsMatch(t *testing.T) {
	req := cityRequest(blood.APos, "Kathmandu")
	donors := []blood.DonorProfile{
		donor(blood.ONeg, "KTM"),
		donor(blood.APos, "kathmandu valley"),
		donor(blood.APos, "Pokhara"),
	}

	out := match.ConfirmCity(req, donors, "kathmandu")
	require.Len(t, out, 2)
}

func TestConfirmCity_IncompatibleGroupExcluded(t *testing.T) {
	req := cityRequest(blood.ONeg, "Kathmandu")
	donors := []blood.DonorProfile{
		donor(blood.OPos, "Kathmandu"), // Rh barrier
		donor(blood.ONeg, "Kathmandu"),
	}

	out := match.ConfirmCity(req, donors, "kathmandu")
	require.Len(t, out, 1)
	require.Equal(t, blood.ONeg, out[0].BloodGroup)
}

func TestConfirmCity_InactiveAndNonDonorExcluded(t *testing.T) {
	req := cityRequest(blood.APos, "Kathmandu")

	inactive := donor(blood.APos, "Kathmandu")
	inactive.IsActive = false
	nonDonor := donor(blood.APos, "Kathmandu")
	nonDonor.IsDonor = false

	out := match.ConfirmCity(req, []blood.DonorProfile{inactive, nonDonor}, "kathmandu")
	require.Empty(t, out)
}

func TestWithinRadius_DistanceCutoff(t *testing.T) {
	// Request at Thamel; one donor ~5 km away in Patan, one ~145 km away
	// in Pokhara.
	req := gpsRequest(blood.APos, 27.7152, 85.3123)
	near := gpsDonor(blood.APos, 27.6727, 85.3250)
	far := gpsDonor(blood.APos, 28.2096, 83.9856)

	out := match.WithinRadius(req, []blood.DonorProfile{near, far}, 10)
	require.Len(t, out, 1)
	require.Equal(t, near.UserID, out[0].UserID)

	out = match.WithinRadius(req, []blood.DonorProfile{near, far}, 3)
	require.Empty(t, out)
}

func TestWithinRadius_DonorWithoutCoordsExcluded(t *testing.T) {
	req := gpsRequest(blood.APos, 27.7152, 85.3123)
	noCoords := donor(blood.APos, "Kathmandu")

	out := match.WithinRadius(req, []blood.DonorProfile{noCoords}, 100)
	require.Empty(t, out)
}

func TestWithinRadius_RequestWithoutGPS(t *testing.T) {
	req := cityRequest(blood.APos, "Kathmandu")
	d := gpsDonor(blood.APos, 27.7152, 85.3123)

	require.Nil(t, match.WithinRadius(req, []blood.DonorProfile{d}, 100))
}

func TestWithinRadius_CompatibilityApplies(t *testing.T) {
	req := gpsRequest(blood.BNeg, 27.7152, 85.3123)
	donors := []blood.DonorProfile{
		gpsDonor(blood.ONeg, 27.7160, 85.3130),
		gpsDonor(blood.BPos, 27.7160, 85.3130), // Rh barrier
	}

	out := match.WithinRadius(req, donors, 5)
	require.Len(t, out, 1)
	require.Equal(t, blood.ONeg, out[0].BloodGroup)
}
