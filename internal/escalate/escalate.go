// Package escalate advances emergency blood requests through a bounded
// outreach pipeline: CITY → RADIUS_5 → RADIUS_10 → ORG → LOOP, where LOOP
// repings until a donor accepts, a donation appears, the request closes, or
// the maximum escalation window elapses.
//
// The engine runs as a periodic batch: one pass over all escalatable
// requests per tick, with bounded parallelism across requests and strict
// per-request sequencing via the nextRunAt gate. State is persisted last, so
// a failed tick leaves the request exactly where it was and the next tick
// retries the same stage; ping side effects are idempotent under retry
// through the dispatcher's cooldown and unique-constraint dedup.
package escalate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/share4life/blood-core/internal/blood"
)

// Defaults for scheduling intervals.
const (
	DefaultStageInterval = 1 * time.Minute
	DefaultLoopInterval  = 1 * time.Minute
	DefaultMaxWindow     = 60 * time.Minute
	defaultWorkers       = 4
)

// Store is the request/state storage the engine drives.
type Store interface {
	// EscalatableRequests returns emergency, active, OPEN/IN_PROGRESS,
	// not-REJECTED requests.
	EscalatableRequests(ctx context.Context) ([]blood.Request, error)
	// GetOrCreateState loads the request's escalation state, creating it at
	// stage CITY due immediately when missing.
	GetOrCreateState(ctx context.Context, requestID uuid.UUID, now time.Time) (*blood.EscalationState, error)
	// SaveState persists stage, lastRunAt, nextRunAt, and isDone.
	SaveState(ctx context.Context, st *blood.EscalationState) error
	// HasAcceptedResponse reports whether any donor accepted the request.
	HasAcceptedResponse(ctx context.Context, requestID uuid.UUID) (bool, error)
	// HasAnyDonation reports whether any donation is linked to the request.
	HasAnyDonation(ctx context.Context, requestID uuid.UUID) (bool, error)
}

// Pinger sends stage pings (the ping dispatcher).
type Pinger interface {
	SendStage(ctx context.Context, req *blood.Request, stage blood.Stage) (int, error)
}

// OrgNotifier fans a notification out to organization members in a city.
type OrgNotifier interface {
	NotifyCityOrgs(ctx context.Context, city, title, body, url string) (int, error)
}

// Sink persists requester-facing notifications.
type Sink interface {
	Notify(ctx context.Context, userID uuid.UUID, title, body, url, level string) error
}

// Config controls escalation pacing.
type Config struct {
	StageInterval time.Duration
	LoopInterval  time.Duration
	MaxWindow     time.Duration
	Workers       int
}

// DefaultConfig returns the production pacing defaults.
func DefaultConfig() Config {
	return Config{
		StageInterval: DefaultStageInterval,
		LoopInterval:  DefaultLoopInterval,
		MaxWindow:     DefaultMaxWindow,
		Workers:       defaultWorkers,
	}
}

// Engine is the escalation state machine driver.
type Engine struct {
	Store  Store
	Pinger Pinger
	Orgs   OrgNotifier
	Sink   Sink
	Cfg    Config

	Logger *slog.Logger
	Now    func() time.Time
}

// New creates an engine with default pacing.
func New(store Store, pinger Pinger, orgs OrgNotifier, sink Sink, logger *slog.Logger) *Engine {
	return &Engine{
		Store:  store,
		Pinger: pinger,
		Orgs:   orgs,
		Sink:   sink,
		Cfg:    DefaultConfig(),
		Logger: logger,
		Now:    time.Now,
	}
}

// TickResult tracks the outcome of one scheduler pass.
type TickResult struct {
	RequestsSeen int
	Advanced     int
	Terminated   int
	Skipped      int
	Duration     time.Duration
	Errors       []string
}

// Summary returns a human-readable summary.
func (r *TickResult) Summary() string {
	return fmt.Sprintf("seen=%d advanced=%d terminated=%d skipped=%d errors=%d dur=%s",
		r.RequestsSeen, r.Advanced, r.Terminated, r.Skipped, len(r.Errors),
		r.Duration.Round(time.Millisecond))
}
