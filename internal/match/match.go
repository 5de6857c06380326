// Package match resolves the eligible, blood-compatible donor set for a
// request within a city or radius scope.
//
// Matching is two-phase: a tolerant storage prefilter (blood group ANY +
// city alias ILIKE, or coordinate presence) pulls a candidate set, then Go
// confirms canonical city equality or haversine distance and checks donor
// eligibility. The confirm step guards against substring false positives
// from the storage filter.
package match

import (
	"context"
	"fmt"
	"time"

	"github.com/share4life/blood-core/internal/blood"
	"github.com/share4life/blood-core/internal/db"
	"github.com/share4life/blood-core/internal/eligibility"
	"github.com/share4life/blood-core/internal/geo"
)

// Matcher resolves donor candidates for requests.
type Matcher struct {
	DB            db.Querier
	Calc          eligibility.Calculator
	RadiusSmallKm float64
	RadiusLargeKm float64
}

// New creates a matcher with the standard 5/10 km radius tiers.
func New(q db.Querier, calc eligibility.Calculator) *Matcher {
	return &Matcher{DB: q, Calc: calc, RadiusSmallKm: 5, RadiusLargeKm: 10}
}

// ByCity returns eligible compatible donors whose profile city canonicalizes
// to the same key as the request's city.
func (m *Matcher) ByCity(ctx context.Context, req *blood.Request) ([]blood.DonorProfile, error) {
	key := geo.Canonicalize(req.City)
	if key == "" {
		return nil, nil
	}

	candidates, err := m.donorsByCityAliases(ctx, req.BloodGroup, geo.Aliases(req.City))
	if err != nil {
		return nil, err
	}

	confirmed := ConfirmCity(req, candidates, key)
	return m.filterEligible(ctx, confirmed)
}

// ByRadius returns eligible compatible donors within radiusKm of the
// request's coordinates. Requests without coordinates and donors without
// coordinates match nothing.
func (m *Matcher) ByRadius(ctx context.Context, req *blood.Request, radiusKm float64) ([]blood.DonorProfile, error) {
	if !req.HasGPS() {
		return nil, nil
	}

	candidates, err := m.donorsWithCoords(ctx, req.BloodGroup)
	if err != nil {
		return nil, err
	}

	confirmed := WithinRadius(req, candidates, radiusKm)
	return m.filterEligible(ctx, confirmed)
}

// CityThenRadius tries a city match, then the small radius, then the large
// radius, returning the first non-empty donor set. An empty result is a
// routing signal (escalate to organizations), not an error.
func (m *Matcher) CityThenRadius(ctx context.Context, req *blood.Request) ([]blood.DonorProfile, error) {
	donors, err := m.ByCity(ctx, req)
	if err != nil || len(donors) > 0 {
		return donors, err
	}

	donors, err = m.ByRadius(ctx, req, m.RadiusSmallKm)
	if err != nil || len(donors) > 0 {
		return donors, err
	}

	return m.ByRadius(ctx, req, m.RadiusLargeKm)
}

// DonorsForStage maps an escalation stage to its matching scope.
func (m *Matcher) DonorsForStage(ctx context.Context, req *blood.Request, stage blood.Stage) ([]blood.DonorProfile, error) {
	switch stage {
	case blood.StageCity:
		return m.ByCity(ctx, req)
	case blood.StageRadius5:
		return m.ByRadius(ctx, req, m.RadiusSmallKm)
	case blood.StageRadius10:
		return m.ByRadius(ctx, req, m.RadiusLargeKm)
	default:
		return nil, fmt.Errorf("no matching scope for stage %s", stage)
	}
}

// filterEligible drops donors inside their post-donation cooldown window.
func (m *Matcher) filterEligible(ctx context.Context, donors []blood.DonorProfile) ([]blood.DonorProfile, error) {
	now := time.Now()
	var out []blood.DonorProfile
	for _, d := range donors {
		ok, err := m.Calc.IsEligible(ctx, m.DB, d.UserID, now)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Pure confirm steps
// --------------------------------------------------------------------------

// ConfirmCity keeps donors that are active donor profiles, blood-compatible
// with the request, and whose city canonicalizes to key.
func ConfirmCity(req *blood.Request, donors []blood.DonorProfile, key string) []blood.DonorProfile {
	var out []blood.DonorProfile
	for _, d := range donors {
		if !d.IsActive || !d.IsDonor {
			continue
		}
		if !blood.CanDonate(d.BloodGroup, req.BloodGroup) {
			continue
		}
		if geo.Canonicalize(d.City) != key {
			continue
		}
		out = append(out, d)
	}
	return out
}

// WithinRadius keeps compatible donors with coordinates inside radiusKm of
// the request. Donors lacking coordinates are excluded, not treated as
// matches.
func WithinRadius(req *blood.Request, donors []blood.DonorProfile, radiusKm float64) []blood.DonorProfile {
	if !req.HasGPS() {
		return nil
	}
	var out []blood.DonorProfile
	for _, d := range donors {
		if !d.IsActive || !d.IsDonor {
			continue
		}
		if !blood.CanDonate(d.BloodGroup, req.BloodGroup) {
			continue
		}
		if !d.HasCoords() {
			continue
		}
		dist := geo.HaversineKm(*req.Latitude, *req.Longitude, *d.Latitude, *d.Longitude)
		if dist <= radiusKm {
			out = append(out, d)
		}
	}
	return out
}
