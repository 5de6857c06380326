package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/share4life/blood-core/internal/notify"
)

func newTestRealtime(t *testing.T) (*notify.Realtime, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return notify.NewRealtimeWithClient(rdb, slog.New(slog.NewTextHandler(io.Discard, nil))), rdb
}

func TestPublishPing(t *testing.T) {
	rt, rdb := newTestRealtime(t)
	donorID := uuid.New()

	sub := rdb.Subscribe(context.Background(), notify.DonorChannel(donorID))
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	dist := 4.2
	payload := notify.PingPayload{
		Type:        "DONOR_PING",
		RequestID:   uuid.NewString(),
		BloodGroup:  "A+",
		UnitsNeeded: 2,
		City:        "Kathmandu",
		Hospital:    "Bir Hospital",
		IsEmergency: true,
		DetailURL:   "/blood/request/x/",
		DistanceKm:  &dist,
		Stage:       "RADIUS_5",
		SentAt:      time.Now().UTC(),
	}
	require.NoError(t, rt.PublishPing(context.Background(), donorID, payload))

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	require.Equal(t, "DONOR_PING", got["type"])
	require.Equal(t, "A+", got["blood_group"])
	require.Equal(t, "Kathmandu", got["city"])
	require.Equal(t, true, got["is_emergency"])
	require.InDelta(t, 4.2, got["distance_km"].(float64), 1e-9)
	require.Equal(t, "RADIUS_5", got["stage"])
}

func TestPublishRequestEvent(t *testing.T) {
	rt, rdb := newTestRealtime(t)
	requestID := uuid.New()

	sub := rdb.Subscribe(context.Background(), notify.RequestChannel(requestID))
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	event := map[string]any{
		"type":           "FULFILLMENT_UPDATE",
		"request_id":     requestID.String(),
		"verified_units": 1,
	}
	require.NoError(t, rt.PublishRequestEvent(context.Background(), requestID, event))

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	require.Equal(t, "FULFILLMENT_UPDATE", got["type"])
	require.Equal(t, requestID.String(), got["request_id"])
}

func TestChannelNames(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	require.Equal(t, "donor:11111111-2222-3333-4444-555555555555", notify.DonorChannel(id))
	require.Equal(t, "blood_request:11111111-2222-3333-4444-555555555555", notify.RequestChannel(id))
}
