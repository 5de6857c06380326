// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/share4life/blood-core/internal/config"
)

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx.
// Stores accept it so the escalation engine can bind them to a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers all statements the escalation engine,
// matcher, and API layers use. Prepared statements eliminate parse overhead
// on the hot scheduler path.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Requests
		"request_by_id": `
			SELECT id, patient_name, blood_group, city, latitude, longitude,
			       hospital_name, units_needed, is_emergency, status,
			       verification_status, is_active, created_by, target_org_id,
			       created_at, fulfilled_at
			FROM blood_requests WHERE id = $1`,
		"escalatable_requests": `
			SELECT id, patient_name, blood_group, city, latitude, longitude,
			       hospital_name, units_needed, is_emergency, status,
			       verification_status, is_active, created_by, target_org_id,
			       created_at, fulfilled_at
			FROM blood_requests
			WHERE is_emergency = true
			  AND is_active = true
			  AND status IN ('OPEN', 'IN_PROGRESS')
			  AND verification_status <> 'REJECTED'
			ORDER BY created_at`,

		// Escalation state
		"escalation_state_by_request": `
			SELECT request_id, stage, next_run_at, last_run_at, is_done, updated_at
			FROM escalation_states WHERE request_id = $1`,

		// Termination checks
		"accepted_response_exists": `
			SELECT EXISTS (
				SELECT 1 FROM donor_responses
				WHERE request_id = $1 AND status = 'ACCEPTED')`,
		"donation_exists_for_request": `
			SELECT EXISTS (
				SELECT 1 FROM donations WHERE request_id = $1)`,

		// Ping dedup
		"responded_donor_ids": `
			SELECT donor_id FROM donor_responses WHERE request_id = $1`,
		"ping_logs_for_request": `
			SELECT request_id, donor_id, stage, last_ping_at, ping_count
			FROM donor_ping_logs WHERE request_id = $1`,

		// Eligibility
		"last_verified_donation": `
			SELECT id, donor_id, request_id, units, status, donated_at,
			       verified_at, verified_by
			FROM donations
			WHERE donor_id = $1 AND status = 'VERIFIED'
			ORDER BY donated_at DESC LIMIT 1`,

		// Matching: storage-level prefilters (tolerant; confirmed in Go)
		"donors_by_city_aliases": `
			SELECT user_id, blood_group, city, latitude, longitude,
			       is_donor, is_active, points
			FROM donor_profiles
			WHERE is_active = true AND is_donor = true
			  AND blood_group = ANY($1::text[])
			  AND city <> ''
			  AND EXISTS (
				SELECT 1 FROM unnest($2::text[]) AS a(alias)
				WHERE donor_profiles.city ILIKE '%' || a.alias || '%')`,
		"donors_with_coords": `
			SELECT user_id, blood_group, city, latitude, longitude,
			       is_donor, is_active, points
			FROM donor_profiles
			WHERE is_active = true AND is_donor = true
			  AND blood_group = ANY($1::text[])
			  AND latitude IS NOT NULL AND longitude IS NOT NULL`,

		// Organizations
		"org_members_by_city_aliases": `
			SELECT DISTINCT m.user_id
			FROM organization_members m
			JOIN organizations o ON o.id = m.org_id
			WHERE o.status = 'APPROVED'
			  AND m.is_active = true
			  AND m.role IN ('ADMIN', 'VERIFIER', 'STAFF')
			  AND lower(btrim(o.city)) = ANY($1::text[])`,

		// Donations / fulfillment
		"donation_by_id": `
			SELECT id, donor_id, request_id, units, status, donated_at,
			       verified_at, verified_by
			FROM donations WHERE id = $1`,
		"verified_units_sum": `
			SELECT COALESCE(SUM(units), 0) FROM donations
			WHERE request_id = $1 AND status = 'VERIFIED'`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
