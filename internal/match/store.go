package match

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/share4life/blood-core/internal/blood"
)

func (m *Matcher) donorsByCityAliases(ctx context.Context, recipient blood.Group, aliases []string) ([]blood.DonorProfile, error) {
	groups := blood.CompatibleDonorStrings(recipient)
	if len(groups) == 0 || len(aliases) == 0 {
		return nil, nil
	}

	rows, err := m.DB.Query(ctx, "donors_by_city_aliases", groups, aliases)
	if err != nil {
		return nil, fmt.Errorf("donors by city aliases: %w", err)
	}
	return scanProfiles(rows)
}

func (m *Matcher) donorsWithCoords(ctx context.Context, recipient blood.Group) ([]blood.DonorProfile, error) {
	groups := blood.CompatibleDonorStrings(recipient)
	if len(groups) == 0 {
		return nil, nil
	}

	rows, err := m.DB.Query(ctx, "donors_with_coords", groups)
	if err != nil {
		return nil, fmt.Errorf("donors with coords: %w", err)
	}
	return scanProfiles(rows)
}

func scanProfiles(rows pgx.Rows) ([]blood.DonorProfile, error) {
	defer rows.Close()

	var donors []blood.DonorProfile
	for rows.Next() {
		var d blood.DonorProfile
		if err := rows.Scan(
			&d.UserID, &d.BloodGroup, &d.City, &d.Latitude, &d.Longitude,
			&d.IsDonor, &d.IsActive, &d.Points,
		); err != nil {
			return nil, fmt.Errorf("scan donor profile: %w", err)
		}
		donors = append(donors, d)
	}
	return donors, rows.Err()
}
