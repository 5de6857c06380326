// Package ping turns a matched donor set into deduplicated, rate-limited
// donor notifications for one escalation stage.
//
// Dedup layers, in order: a DonorResponse row excludes the donor from the
// request permanently; a ping log row enforces the per-pair cooldown and the
// global max-reping cap. Donors passing both get a realtime push and, on
// their very first ping for a request, one persistent notification.
package ping

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/share4life/blood-core/internal/blood"
	"github.com/share4life/blood-core/internal/geo"
	"github.com/share4life/blood-core/internal/notify"
)

// Defaults for the cooldown/reping limits.
const (
	DefaultCooldown   = 180 * time.Second
	DefaultMaxRepings = 3
)

// Matcher resolves the donor set for a stage.
type Matcher interface {
	DonorsForStage(ctx context.Context, req *blood.Request, stage blood.Stage) ([]blood.DonorProfile, error)
}

// Store is the ping-history and response-exclusion storage the dispatcher
// consults and records into.
type Store interface {
	// RespondedDonorIDs returns donors with any response row for the request.
	RespondedDonorIDs(ctx context.Context, requestID uuid.UUID) (map[uuid.UUID]struct{}, error)
	// PingLogs returns existing ping logs for the request keyed by donor.
	PingLogs(ctx context.Context, requestID uuid.UUID) (map[uuid.UUID]blood.PingLog, error)
	// RecordPing upserts the ping log row and reports whether this was the
	// donor's first ping for the request. A concurrent-insert race resolves
	// through the (request, donor) unique constraint, never as an error.
	RecordPing(ctx context.Context, requestID, donorID uuid.UUID, stage blood.Stage, at time.Time) (first bool, err error)
}

// Dispatcher sends stage pings.
type Dispatcher struct {
	Matcher  Matcher
	Store    Store
	Realtime notify.PingPublisher
	Sink     notify.Sink

	Cooldown   time.Duration
	MaxRepings int

	Logger *slog.Logger
	Now    func() time.Time
}

// New creates a dispatcher with default cooldown/reping limits.
func New(matcher Matcher, store Store, realtime notify.PingPublisher, sink notify.Sink, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		Matcher:    matcher,
		Store:      store,
		Realtime:   realtime,
		Sink:       sink,
		Cooldown:   DefaultCooldown,
		MaxRepings: DefaultMaxRepings,
		Logger:     logger,
		Now:        time.Now,
	}
}

// SendStage pings the donor set matched for a stage and returns the count of
// donors pinged. Delivery failures are logged and do not abort the rest of
// the donor set.
func (d *Dispatcher) SendStage(ctx context.Context, req *blood.Request, stage blood.Stage) (int, error) {
	donors, err := d.Matcher.DonorsForStage(ctx, req, stage)
	if err != nil {
		return 0, err
	}
	if len(donors) == 0 {
		return 0, nil
	}

	responded, err := d.Store.RespondedDonorIDs(ctx, req.ID)
	if err != nil {
		return 0, err
	}
	logs, err := d.Store.PingLogs(ctx, req.ID)
	if err != nil {
		return 0, err
	}

	now := d.Now()
	sent := 0

	for _, donor := range donors {
		// Rule 1: any response row excludes the donor permanently.
		if _, ok := responded[donor.UserID]; ok {
			continue
		}

		// Rule 2: cooldown and global max-reping cap.
		if log, ok := logs[donor.UserID]; ok {
			if log.PingCount >= d.MaxRepings {
				continue
			}
			if now.Sub(log.LastPingAt) < d.Cooldown {
				continue
			}
		}

		first, err := d.Store.RecordPing(ctx, req.ID, donor.UserID, stage, now)
		if err != nil {
			d.Logger.Warn("record ping failed",
				"request_id", req.ID, "donor_id", donor.UserID, "error", err)
			continue
		}

		payload := d.buildPayload(req, &donor, stage, now)
		if err := d.Realtime.PublishPing(ctx, donor.UserID, payload); err != nil {
			// Best-effort: the persistent notification still reaches the
			// donor after next login.
			d.Logger.Warn("realtime ping failed",
				"request_id", req.ID, "donor_id", donor.UserID, "error", err)
		}

		if first && d.Sink != nil {
			err := d.Sink.Notify(ctx, donor.UserID,
				"Emergency blood request near you",
				pingBody(req),
				req.DetailURL(),
				notify.LevelDanger,
			)
			if err != nil {
				d.Logger.Warn("first-ping notification failed",
					"request_id", req.ID, "donor_id", donor.UserID, "error", err)
			}
		}

		sent++
	}

	return sent, nil
}

func (d *Dispatcher) buildPayload(req *blood.Request, donor *blood.DonorProfile, stage blood.Stage, now time.Time) notify.PingPayload {
	var dist *float64
	if req.HasGPS() && donor.HasCoords() {
		km := geo.HaversineKm(*req.Latitude, *req.Longitude, *donor.Latitude, *donor.Longitude)
		km = math.Round(km*100) / 100
		dist = &km
	}

	return notify.PingPayload{
		Type:        "DONOR_PING",
		RequestID:   req.ID.String(),
		BloodGroup:  string(req.BloodGroup),
		UnitsNeeded: req.UnitsNeeded,
		City:        req.City,
		Hospital:    req.HospitalName,
		IsEmergency: req.IsEmergency,
		DetailURL:   req.DetailURL(),
		DistanceKm:  dist,
		Stage:       string(stage),
		SentAt:      now.UTC(),
	}
}

func pingBody(req *blood.Request) string {
	return string(req.BloodGroup) + " blood needed at " + req.HospitalName + ", " + req.City + "."
}
