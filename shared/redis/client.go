// Package redis wraps go-redis for the webhook event de-duplication store.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultEventTTL is how long a processed webhook event id is remembered.
const DefaultEventTTL = 72 * time.Hour

const eventKeyPrefix = "stripe:event:"

// NewClient parses redisURL, connects and verifies the connection.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return rdb, nil
}

// EventStore remembers processor event ids that have been fully handled.
type EventStore struct {
	rdb    goredis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewEventStore returns an EventStore. A non-positive ttl selects
// DefaultEventTTL.
func NewEventStore(rdb goredis.Cmdable, ttl time.Duration, logger *slog.Logger) *EventStore {
	if ttl <= 0 {
		ttl = DefaultEventTTL
	}
	return &EventStore{rdb: rdb, ttl: ttl, logger: logger}
}

// Seen reports whether eventID was already remembered.
func (s *EventStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, eventKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", eventID, err)
	}
	return n > 0, nil
}

// Remember records eventID. It returns false when the id was already present.
func (s *EventStore) Remember(ctx context.Context, eventID string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, eventKeyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", eventID, err)
	}
	if !ok {
		s.logger.Debug("Webhook event already remembered", slog.String("event_id", eventID))
	}
	return ok, nil
}

// HealthCheck pings the server.
func (s *EventStore) HealthCheck(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
