package ping

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/share4life/blood-core/internal/blood"
	"github.com/share4life/blood-core/internal/db"
)

// PGStore is the Postgres-backed ping/response store.
type PGStore struct {
	DB db.Querier
}

// NewPGStore creates a store bound to a pool or transaction.
func NewPGStore(q db.Querier) *PGStore {
	return &PGStore{DB: q}
}

// RespondedDonorIDs returns donors with any response row for the request,
// regardless of response status.
func (s *PGStore) RespondedDonorIDs(ctx context.Context, requestID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	rows, err := s.DB.Query(ctx, "responded_donor_ids", requestID)
	if err != nil {
		return nil, fmt.Errorf("responded donor ids: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan responded donor: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// PingLogs returns existing ping logs for the request keyed by donor.
func (s *PGStore) PingLogs(ctx context.Context, requestID uuid.UUID) (map[uuid.UUID]blood.PingLog, error) {
	rows, err := s.DB.Query(ctx, "ping_logs_for_request", requestID)
	if err != nil {
		return nil, fmt.Errorf("ping logs: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]blood.PingLog)
	for rows.Next() {
		var l blood.PingLog
		if err := rows.Scan(&l.RequestID, &l.DonorID, &l.Stage, &l.LastPingAt, &l.PingCount); err != nil {
			return nil, fmt.Errorf("scan ping log: %w", err)
		}
		out[l.DonorID] = l
	}
	return out, rows.Err()
}

// RecordPing upserts the (request, donor) ping log. The unique constraint
// collapses concurrent first pings into one row; the returned count tells
// callers whether this was the first ping for the pair.
func (s *PGStore) RecordPing(ctx context.Context, requestID, donorID uuid.UUID, stage blood.Stage, at time.Time) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
		INSERT INTO donor_ping_logs (request_id, donor_id, stage, last_ping_at, ping_count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (request_id, donor_id) DO UPDATE
		SET stage = EXCLUDED.stage,
		    last_ping_at = EXCLUDED.last_ping_at,
		    ping_count = donor_ping_logs.ping_count + 1
		RETURNING ping_count`,
		requestID, donorID, stage, at,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("record ping: %w", err)
	}
	return count == 1, nil
}
