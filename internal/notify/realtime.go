package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/share4life/blood-core/internal/config"
)

const publishTimeout = 2 * time.Second

// DonorChannel returns the redis pub/sub channel for a donor's private
// realtime feed.
func DonorChannel(donorID uuid.UUID) string {
	return "donor:" + donorID.String()
}

// RequestChannel returns the channel carrying events about one request.
func RequestChannel(requestID uuid.UUID) string {
	return "blood_request:" + requestID.String()
}

// Realtime publishes messages to redis pub/sub channels. Publishes are
// bounded by a short timeout so a slow broker cannot stall a scheduler tick.
type Realtime struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRealtime connects a redis client from config.
func NewRealtime(cfg *config.Config, logger *slog.Logger) *Realtime {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Realtime{rdb: rdb, logger: logger}
}

// NewRealtimeWithClient wraps an existing client (used by tests).
func NewRealtimeWithClient(rdb *redis.Client, logger *slog.Logger) *Realtime {
	return &Realtime{rdb: rdb, logger: logger}
}

// Ping verifies broker connectivity.
func (r *Realtime) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (r *Realtime) Close() error {
	return r.rdb.Close()
}

// PublishPing sends a DONOR_PING payload to the donor's channel.
func (r *Realtime) PublishPing(ctx context.Context, donorID uuid.UUID, payload PingPayload) error {
	return r.publish(ctx, DonorChannel(donorID), payload)
}

// PublishRequestEvent sends an arbitrary event to a request's channel,
// e.g. fulfillment updates watched by the request detail page.
func (r *Realtime) PublishRequestEvent(ctx context.Context, requestID uuid.UUID, event any) error {
	return r.publish(ctx, RequestChannel(requestID), event)
}

func (r *Realtime) publish(ctx context.Context, channel string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal realtime message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := r.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}
