package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/share4life/blood-core/internal/db"
	"github.com/share4life/blood-core/internal/geo"
)

// Store persists notifications in Postgres.
type Store struct {
	DB db.Querier
}

// NewStore creates a notification store bound to a pool or transaction.
func NewStore(q db.Querier) *Store {
	return &Store{DB: q}
}

// Create inserts one notification record.
func (s *Store) Create(ctx context.Context, n Notification) error {
	if n.Category == "" {
		n.Category = CategorySystem
	}
	if n.Level == "" {
		n.Level = LevelInfo
	}
	_, err := s.DB.Exec(ctx, `
		INSERT INTO notifications (user_id, category, title, body, url, level)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.UserID, n.Category, n.Title, n.Body, n.URL, n.Level,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Notify implements Sink. Notifications emitted through the sink belong to
// the emergency escalation flow.
func (s *Store) Notify(ctx context.Context, userID uuid.UUID, title, body, url, level string) error {
	return s.Create(ctx, Notification{
		UserID:   userID,
		Category: CategoryEmergency,
		Title:    title,
		Body:     body,
		URL:      url,
		Level:    level,
	})
}

// NotifyCityOrgs fans a notification out to every active ADMIN/VERIFIER/STAFF
// member of approved organizations in the given city. Returns the number of
// members notified.
func (s *Store) NotifyCityOrgs(ctx context.Context, city, title, body, url string) (int, error) {
	aliases := geo.Aliases(city)
	if len(aliases) == 0 {
		return 0, nil
	}

	rows, err := s.DB.Query(ctx, "org_members_by_city_aliases", aliases)
	if err != nil {
		return 0, fmt.Errorf("org members by city: %w", err)
	}
	defer rows.Close()

	var members []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scan org member: %w", err)
		}
		members = append(members, id)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	notified := 0
	for _, id := range members {
		err := s.Create(ctx, Notification{
			UserID:   id,
			Category: CategoryEmergency,
			Title:    title,
			Body:     body,
			URL:      url,
			Level:    LevelInfo,
		})
		if err != nil {
			return notified, err
		}
		notified++
	}
	return notified, nil
}
