package blood_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/share4life/blood-core/internal/blood"
)

func TestRequest_HasGPS(t *testing.T) {
	req := &blood.Request{}
	require.False(t, req.HasGPS())

	lat := 27.7172
	req.Latitude = &lat
	require.False(t, req.HasGPS())

	lon := 85.3240
	req.Longitude = &lon
	require.True(t, req.HasGPS())
}

func TestRequest_DetailURL(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	req := &blood.Request{ID: id}
	require.Equal(t, "/blood/request/11111111-2222-3333-4444-555555555555/", req.DetailURL())
}

func TestEscalationState_ScheduleNext(t *testing.T) {
	st := &blood.EscalationState{Stage: blood.StageCity}
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	st.ScheduleNext(now, time.Minute)
	require.NotNil(t, st.NextRunAt)
	require.Equal(t, now.Add(time.Minute), *st.NextRunAt)
}

func TestEscalationState_Finish(t *testing.T) {
	now := time.Now()
	st := &blood.EscalationState{Stage: blood.StageLoop, NextRunAt: &now}

	st.Finish()
	require.True(t, st.IsDone)
	require.Equal(t, blood.StageDone, st.Stage)
	require.Nil(t, st.NextRunAt)
}

func TestDonorProfile_HasCoords(t *testing.T) {
	p := &blood.DonorProfile{}
	require.False(t, p.HasCoords())

	lat, lon := 27.7, 85.3
	p.Latitude, p.Longitude = &lat, &lon
	require.True(t, p.HasCoords())
}
