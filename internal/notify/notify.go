// Package notify provides the two outbound channels of the escalation core:
// persistent notification records (seen after next login) and fire-and-forget
// realtime pushes over redis pub/sub addressed by user id.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Notification levels.
const (
	LevelInfo    = "INFO"
	LevelSuccess = "SUCCESS"
	LevelWarning = "WARNING"
	LevelDanger  = "DANGER"
)

// Notification categories.
const (
	CategorySystem    = "SYSTEM"
	CategoryBlood     = "BLOOD"
	CategoryEmergency = "EMERGENCY"
	CategoryDonation  = "DONATION"
)

// Notification is one persistent in-app notification record.
type Notification struct {
	UserID   uuid.UUID
	Category string
	Title    string
	Body     string
	URL      string
	Level    string
}

// Sink persists user-facing notifications. Implemented by Store; the
// escalation engine and ping dispatcher depend on this interface only.
type Sink interface {
	Notify(ctx context.Context, userID uuid.UUID, title, body, url, level string) error
}

// PingPublisher delivers realtime donor pings. Delivery is best-effort and
// must never block stage advancement.
type PingPublisher interface {
	PublishPing(ctx context.Context, donorID uuid.UUID, payload PingPayload) error
}

// PingPayload is the realtime message sent to a donor's private channel.
type PingPayload struct {
	Type        string    `json:"type"` // always "DONOR_PING"
	RequestID   string    `json:"request_id"`
	BloodGroup  string    `json:"blood_group"`
	UnitsNeeded int       `json:"units_needed"`
	City        string    `json:"city"`
	Hospital    string    `json:"hospital"`
	IsEmergency bool      `json:"is_emergency"`
	DetailURL   string    `json:"detail_url"`
	DistanceKm  *float64  `json:"distance_km"`
	Stage       string    `json:"stage"`
	SentAt      time.Time `json:"sent_at"`
}
