package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/domain"
	"github.com/soundchain/marketplace-gateway/shared/metrics"
	sharedredis "github.com/soundchain/marketplace-gateway/shared/redis"
)

const cacheName = "pending_status"

// StatusCache mirrors per-track pending markers in Redis so status reads
// do not hit the backend. Entries expire on their own; the reconciler
// clears them explicitly once a track settles.
type StatusCache struct {
	redis   *sharedredis.Redis
	ttl     time.Duration
	metrics *metrics.Metrics
}

func NewStatusCache(redis *sharedredis.Redis, ttl time.Duration, m *metrics.Metrics) domain.StatusCache {
	return &StatusCache{redis: redis, ttl: ttl, metrics: m}
}

func (c *StatusCache) SetPending(ctx context.Context, trackID string, req domain.PendingRequest) error {
	key := sharedredis.PendingStatusKey(trackID)
	if err := c.redis.Set(ctx, key, req.String(), c.ttl); err != nil {
		return fmt.Errorf("set pending marker: %w", err)
	}
	return nil
}

func (c *StatusCache) GetPending(ctx context.Context, trackID string) (domain.PendingRequest, bool, error) {
	key := sharedredis.PendingStatusKey(trackID)
	value, err := c.redis.Get(ctx, key)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			c.record(false)
			return domain.PendingNone, false, nil
		}
		return domain.PendingNone, false, fmt.Errorf("get pending marker: %w", err)
	}

	c.record(true)
	return domain.ParsePendingRequest(value), true, nil
}

func (c *StatusCache) ClearPending(ctx context.Context, trackID string) error {
	key := sharedredis.PendingStatusKey(trackID)
	if err := c.redis.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear pending marker: %w", err)
	}
	return nil
}

func (c *StatusCache) record(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheOperation(cacheName, hit)
	}
}
