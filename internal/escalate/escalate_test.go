package escalate_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/share4life/blood-core/internal/blood"
	"github.com/share4life/blood-core/internal/escalate"
)

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

type fakeStore struct {
	requests  []blood.Request
	states    map[uuid.UUID]*blood.EscalationState
	accepted  map[uuid.UUID]bool
	donations map[uuid.UUID]bool

	stateErr error
}

func newFakeStore(reqs ...blood.Request) *fakeStore {
	return &fakeStore{
		requests:  reqs,
		states:    make(map[uuid.UUID]*blood.EscalationState),
		accepted:  make(map[uuid.UUID]bool),
		donations: make(map[uuid.UUID]bool),
	}
}

func (f *fakeStore) EscalatableRequests(ctx context.Context) ([]blood.Request, error) {
	return f.requests, nil
}

func (f *fakeStore) GetOrCreateState(ctx context.Context, requestID uuid.UUID, now time.Time) (*blood.EscalationState, error) {
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	if st, ok := f.states[requestID]; ok {
		cp := *st
		return &cp, nil
	}
	st := &blood.EscalationState{
		RequestID: requestID,
		Stage:     blood.StageCity,
		NextRunAt: &now,
	}
	f.states[requestID] = st
	cp := *st
	return &cp, nil
}

func (f *fakeStore) SaveState(ctx context.Context, st *blood.EscalationState) error {
	cp := *st
	f.states[st.RequestID] = &cp
	return nil
}

func (f *fakeStore) HasAcceptedResponse(ctx context.Context, requestID uuid.UUID) (bool, error) {
	return f.accepted[requestID], nil
}

func (f *fakeStore) HasAnyDonation(ctx context.Context, requestID uuid.UUID) (bool, error) {
	return f.donations[requestID], nil
}

type stagePing struct {
	requestID uuid.UUID
	stage     blood.Stage
}

type fakePinger struct {
	pings []stagePing
	sent  int
	err   error
}

func (f *fakePinger) SendStage(ctx context.Context, req *blood.Request, stage blood.Stage) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.pings = append(f.pings, stagePing{requestID: req.ID, stage: stage})
	return f.sent, nil
}

type fakeOrgs struct {
	cities []string
	count  int
}

func (f *fakeOrgs) NotifyCityOrgs(ctx context.Context, city, title, body, url string) (int, error) {
	f.cities = append(f.cities, city)
	return f.count, nil
}

type notified struct {
	userID uuid.UUID
	title  string
	level  string
}

type fakeSink struct {
	sent []notified
}

func (f *fakeSink) Notify(ctx context.Context, userID uuid.UUID, title, body, url, level string) error {
	f.sent = append(f.sent, notified{userID: userID, title: title, level: level})
	return nil
}

// --------------------------------------------------------------------------
// Fixture
// --------------------------------------------------------------------------

type fixture struct {
	engine *escalate.Engine
	store  *fakeStore
	pinger *fakePinger
	orgs   *fakeOrgs
	sink   *fakeSink
	now    time.Time
}

func newFixture(reqs ...blood.Request) *fixture {
	f := &fixture{
		store:  newFakeStore(reqs...),
		pinger: &fakePinger{sent: 1},
		orgs:   &fakeOrgs{count: 1},
		sink:   &fakeSink{},
		now:    time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	f.engine = escalate.New(f.store, f.pinger, f.orgs, f.sink, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.engine.Now = func() time.Time { return f.now }
	return f
}

// tick advances the clock past the scheduling interval and runs one pass.
func (f *fixture) tick(t *testing.T) escalate.TickResult {
	t.Helper()
	result := f.engine.RunTick(context.Background())
	f.now = f.now.Add(90 * time.Second)
	return result
}

func ptr(v float64) *float64 { return &v }

func gpsRequest(createdAt time.Time) blood.Request {
	creator := uuid.New()
	return blood.Request{
		ID:           uuid.New(),
		BloodGroup:   blood.APos,
		City:         "Kathmandu",
		Latitude:     ptr(27.7172),
		Longitude:    ptr(85.3240),
		HospitalName: "Bir Hospital",
		UnitsNeeded:  2,
		IsEmergency:  true,
		Status:       blood.RequestOpen,
		IsActive:     true,
		CreatedBy:    &creator,
		CreatedAt:    createdAt,
	}
}

func cityOnlyRequest(createdAt time.Time) blood.Request {
	r := gpsRequest(createdAt)
	r.Latitude, r.Longitude = nil, nil
	return r
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestRunTick_FullStageSequenceWithGPS(t *testing.T) {
	f := newFixture()
	req := gpsRequest(f.now)
	f.store.requests = []blood.Request{req}
	f.engine.Cfg.MaxWindow = 24 * time.Hour // keep the window out of the way

	// CITY → RADIUS_5 → RADIUS_10 → ORG → LOOP, then LOOP repeats.
	wantStages := []blood.Stage{
		blood.StageRadius5, blood.StageRadius10, blood.StageOrg,
		blood.StageLoop, blood.StageLoop,
	}
	for i, want := range wantStages {
		result := f.tick(t)
		require.Empty(t, result.Errors, "tick %d", i)
		require.Equal(t, 1, result.Advanced, "tick %d", i)
		require.Equal(t, want, f.store.states[req.ID].Stage, "tick %d", i)
	}

	// Pings: 5km hop, 10km hop, 10km re-ping before ORG, then each LOOP
	// pass pings city + 10km.
	var stages []blood.Stage
	for _, p := range f.pinger.pings {
		stages = append(stages, p.stage)
	}
	require.Equal(t, []blood.Stage{
		blood.StageRadius5,
		blood.StageRadius10,
		blood.StageRadius10,
		blood.StageCity, blood.StageRadius10,
		blood.StageCity, blood.StageRadius10,
	}, stages)

	// ORG hop notified the request's city institutions once.
	require.Equal(t, []string{"Kathmandu"}, f.orgs.cities)
}

func TestRunTick_NoGPSJumpsToOrg(t *testing.T) {
	f := newFixture()
	req := cityOnlyRequest(f.now)
	f.store.requests = []blood.Request{req}
	f.engine.Cfg.MaxWindow = 24 * time.Hour

	f.tick(t)
	require.Equal(t, blood.StageOrg, f.store.states[req.ID].Stage)

	f.tick(t)
	require.Equal(t, blood.StageLoop, f.store.states[req.ID].Stage)
	require.Equal(t, []string{"Kathmandu"}, f.orgs.cities)

	// LOOP without GPS pings the city scope only.
	f.tick(t)
	var stages []blood.Stage
	for _, p := range f.pinger.pings {
		stages = append(stages, p.stage)
	}
	require.Equal(t, []blood.Stage{blood.StageCity}, stages)
}

func TestRunTick_NotRescheduledUntilDue(t *testing.T) {
	f := newFixture()
	req := gpsRequest(f.now)
	f.store.requests = []blood.Request{req}

	result := f.engine.RunTick(context.Background())
	require.Equal(t, 1, result.Advanced)

	// Immediately again: nextRunAt is a minute out, nothing to do.
	result = f.engine.RunTick(context.Background())
	require.Equal(t, 1, result.Skipped)
	require.Zero(t, result.Advanced)
}

func TestRunTick_AcceptedResponseTerminates(t *testing.T) {
	f := newFixture()
	req := gpsRequest(f.now)
	f.store.requests = []blood.Request{req}
	f.tick(t)

	f.store.accepted[req.ID] = true
	result := f.tick(t)
	require.Equal(t, 1, result.Terminated)

	st := f.store.states[req.ID]
	require.True(t, st.IsDone)
	require.Equal(t, blood.StageDone, st.Stage)
	require.Nil(t, st.NextRunAt)
}

func TestRunTick_DonationTerminates(t *testing.T) {
	f := newFixture()
	req := gpsRequest(f.now)
	f.store.requests = []blood.Request{req}
	f.tick(t)

	f.store.donations[req.ID] = true
	result := f.tick(t)
	require.Equal(t, 1, result.Terminated)
	require.True(t, f.store.states[req.ID].IsDone)
}

func TestRunTick_MaxWindowTerminates(t *testing.T) {
	f := newFixture()
	req := gpsRequest(f.now.Add(-2 * time.Hour)) // created long before the 60min window
	f.store.requests = []blood.Request{req}

	result := f.engine.RunTick(context.Background())
	require.Equal(t, 1, result.Terminated)

	st := f.store.states[req.ID]
	require.True(t, st.IsDone)
	require.Nil(t, st.NextRunAt)
}

func TestRunTick_InactiveRequestTerminates(t *testing.T) {
	f := newFixture()
	req := gpsRequest(f.now)
	req.IsActive = false
	f.store.requests = []blood.Request{req}

	result := f.engine.RunTick(context.Background())
	require.Equal(t, 1, result.Terminated)
}

func TestRunTick_DoneStateSkipped(t *testing.T) {
	f := newFixture()
	req := gpsRequest(f.now)
	f.store.requests = []blood.Request{req}
	f.store.states[req.ID] = &blood.EscalationState{
		RequestID: req.ID,
		Stage:     blood.StageDone,
		IsDone:    true,
	}

	result := f.engine.RunTick(context.Background())
	require.Equal(t, 1, result.Skipped)
	require.Empty(t, f.pinger.pings)
}

func TestRunTick_ErrorIsolatedPerRequest(t *testing.T) {
	f := newFixture()
	good := gpsRequest(f.now)
	bad := gpsRequest(f.now)
	f.store.requests = []blood.Request{bad, good}
	f.engine.Cfg.Workers = 1

	// First request's ping fails; the batch still advances the second.
	f.pinger.err = errors.New("redis down")
	result := f.engine.RunTick(context.Background())
	require.Len(t, result.Errors, 2)
	require.Zero(t, result.Advanced)

	// Failed requests keep their stage, so the next tick retries CITY.
	f.pinger.err = nil
	result = f.engine.RunTick(context.Background())
	require.Equal(t, 2, result.Advanced)
	require.Equal(t, blood.StageRadius5, f.store.states[good.ID].Stage)
	require.Equal(t, blood.StageRadius5, f.store.states[bad.ID].Stage)
}

func TestRunTick_RequesterNotifications(t *testing.T) {
	f := newFixture()
	req := gpsRequest(f.now)
	f.store.requests = []blood.Request{req}

	f.tick(t)
	require.Len(t, f.sink.sent, 1)
	require.Equal(t, *req.CreatedBy, f.sink.sent[0].userID)
	require.Equal(t, "Emergency escalation started", f.sink.sent[0].title)
}

func TestRunTick_GuestRequestSkipsRequesterNotify(t *testing.T) {
	f := newFixture()
	req := gpsRequest(f.now)
	req.CreatedBy = nil
	f.store.requests = []blood.Request{req}

	f.tick(t)
	require.Empty(t, f.sink.sent)
	require.Equal(t, blood.StageRadius5, f.store.states[req.ID].Stage)
}

func TestRunTick_ZeroDonorsWarnsRequester(t *testing.T) {
	f := newFixture()
	f.pinger.sent = 0
	req := gpsRequest(f.now)
	f.store.requests = []blood.Request{req}

	f.tick(t)
	require.Len(t, f.sink.sent, 1)
	require.Equal(t, "WARNING", f.sink.sent[0].level)
}
