package geo_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/share4life/blood-core/internal/geo"
)

func TestHaversineKm_ZeroDistance(t *testing.T) {
	require.Zero(t, geo.HaversineKm(27.7172, 85.3240, 27.7172, 85.3240))
}

func TestHaversineKm_KathmanduToPokhara(t *testing.T) {
	// Kathmandu to Pokhara is roughly 145 km great-circle.
	d := geo.HaversineKm(27.7172, 85.3240, 28.2096, 83.9856)
	require.InDelta(t, 145, d, 10)
}

func TestHaversineKm_Symmetric(t *testing.T) {
	a := geo.HaversineKm(27.7172, 85.3240, 27.6710, 85.4298)
	b := geo.HaversineKm(27.6710, 85.4298, 27.7172, 85.3240)
	require.InDelta(t, a, b, 1e-9)
}

func TestHaversineKm_ShortDistance(t *testing.T) {
	// Thamel to Patan Durbar Square, about 5 km apart.
	d := geo.HaversineKm(27.7152, 85.3123, 27.6727, 85.3250)
	require.Greater(t, d, 3.0)
	require.Less(t, d, 7.0)
}
