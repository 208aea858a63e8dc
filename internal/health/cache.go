package health

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/arcanous/video-qa-worker/internal/storage"
)

// statsCacheKey is the single Redis key the stats cache occupies.
const statsCacheKey = "video-qa-worker:stats"

// statsCacheTTL bounds how stale a cached /stats response can be before a
// dashboard polling it falls back to a fresh gateway read.
const statsCacheTTL = 5 * time.Second

// StatsCache is an optional short-lived cache over storage.Gateway.Stats,
// repurposing the teacher's go-redis/v8 dependency (originally its job
// queue client, see DESIGN.md) as a read-through cache instead. A nil
// *StatsCache disables caching entirely; the health view falls straight
// through to the gateway.
type StatsCache struct {
	client *redis.Client
	log    *logrus.Logger
}

// NewStatsCache dials Redis at addr and verifies connectivity with a Ping.
// Mirrors queue.NewQueue's connect-and-ping shape.
func NewStatsCache(ctx context.Context, addr string, log *logrus.Logger) (*StatsCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}

	return &StatsCache{client: client, log: log}, nil
}

// Close releases the underlying Redis connection pool.
func (c *StatsCache) Close() error {
	return c.client.Close()
}

// Get returns the cached stats and true on a hit. Any Redis error
// (miss, timeout, connection refused) is treated as a cache miss: the
// caller falls through to the gateway rather than surfacing the error.
func (c *StatsCache) Get(ctx context.Context) (storage.QueueStats, bool) {
	raw, err := c.client.Get(ctx, statsCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Debug("health: stats cache read failed, falling through to gateway")
		}
		return storage.QueueStats{}, false
	}

	var stats storage.QueueStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		c.log.WithError(err).Warn("health: stats cache holds unreadable data")
		return storage.QueueStats{}, false
	}
	return stats, true
}

// Set populates the cache with a fresh stats snapshot. Failures are logged
// and swallowed: a cache write is never allowed to fail a /stats request.
func (c *StatsCache) Set(ctx context.Context, stats storage.QueueStats) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statsCacheKey, raw, statsCacheTTL).Err(); err != nil {
		c.log.WithError(err).Debug("health: stats cache write failed")
	}
}
