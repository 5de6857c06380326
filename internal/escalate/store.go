package escalate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/share4life/blood-core/internal/blood"
	"github.com/share4life/blood-core/internal/db"
)

// PGStore is the Postgres-backed escalation store.
type PGStore struct {
	DB db.Querier
}

// NewPGStore creates a store bound to a pool or transaction.
func NewPGStore(q db.Querier) *PGStore {
	return &PGStore{DB: q}
}

// EscalatableRequests returns emergency, active, OPEN/IN_PROGRESS,
// not-REJECTED requests in creation order.
func (s *PGStore) EscalatableRequests(ctx context.Context) ([]blood.Request, error) {
	rows, err := s.DB.Query(ctx, "escalatable_requests")
	if err != nil {
		return nil, fmt.Errorf("escalatable requests: %w", err)
	}
	defer rows.Close()

	var reqs []blood.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *r)
	}
	return reqs, rows.Err()
}

// RequestByID loads one request.
func (s *PGStore) RequestByID(ctx context.Context, id uuid.UUID) (*blood.Request, error) {
	row := s.DB.QueryRow(ctx, "request_by_id", id)
	r, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", id, err)
	}
	return r, nil
}

// GetOrCreateState loads the request's escalation state, inserting a fresh
// CITY-stage row due immediately when missing. The insert is race-safe:
// concurrent creators collapse onto the single existing row.
func (s *PGStore) GetOrCreateState(ctx context.Context, requestID uuid.UUID, now time.Time) (*blood.EscalationState, error) {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO escalation_states (request_id, stage, next_run_at, is_done)
		VALUES ($1, $2, $3, false)
		ON CONFLICT (request_id) DO NOTHING`,
		requestID, blood.StageCity, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create escalation state: %w", err)
	}

	var st blood.EscalationState
	err = s.DB.QueryRow(ctx, "escalation_state_by_request", requestID).Scan(
		&st.RequestID, &st.Stage, &st.NextRunAt, &st.LastRunAt, &st.IsDone, &st.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("load escalation state: %w", err)
	}
	return &st, nil
}

// SaveState persists the state row.
func (s *PGStore) SaveState(ctx context.Context, st *blood.EscalationState) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE escalation_states
		SET stage = $2, next_run_at = $3, last_run_at = $4, is_done = $5,
		    updated_at = NOW()
		WHERE request_id = $1`,
		st.RequestID, st.Stage, st.NextRunAt, st.LastRunAt, st.IsDone,
	)
	if err != nil {
		return fmt.Errorf("save escalation state: %w", err)
	}
	return nil
}

// HasAcceptedResponse reports whether any donor accepted the request.
func (s *PGStore) HasAcceptedResponse(ctx context.Context, requestID uuid.UUID) (bool, error) {
	var exists bool
	if err := s.DB.QueryRow(ctx, "accepted_response_exists", requestID).Scan(&exists); err != nil {
		return false, fmt.Errorf("accepted response check: %w", err)
	}
	return exists, nil
}

// HasAnyDonation reports whether any donation is linked to the request.
func (s *PGStore) HasAnyDonation(ctx context.Context, requestID uuid.UUID) (bool, error) {
	var exists bool
	if err := s.DB.QueryRow(ctx, "donation_exists_for_request", requestID).Scan(&exists); err != nil {
		return false, fmt.Errorf("donation exists check: %w", err)
	}
	return exists, nil
}

func scanRequest(row pgx.Row) (*blood.Request, error) {
	var r blood.Request
	err := row.Scan(
		&r.ID, &r.PatientName, &r.BloodGroup, &r.City, &r.Latitude, &r.Longitude,
		&r.HospitalName, &r.UnitsNeeded, &r.IsEmergency, &r.Status,
		&r.VerificationStatus, &r.IsActive, &r.CreatedBy, &r.TargetOrgID,
		&r.CreatedAt, &r.FulfilledAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan request: %w", err)
	}
	return &r, nil
}
