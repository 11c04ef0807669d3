package exposure

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/aurumpay/backend/internal/models"
	"github.com/go-redis/redis/v8"
)

const snapshotCacheKey = "exposure:snapshot"

// Cache holds the most recent snapshot in redis with a short, explicit
// TTL. Correctness of reconciliation never depends on it: the engine
// always takes fresh snapshots, only dashboard reads go through here.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a snapshot cache
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached snapshot if one is present and unexpired
func (c *Cache) Get(ctx context.Context) (models.Snapshot, bool) {
	data, err := c.client.Get(ctx, snapshotCacheKey).Bytes()
	if err != nil {
		return models.Snapshot{}, false
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("Discarding unreadable cached snapshot: %v", err)
		return models.Snapshot{}, false
	}
	return snap, true
}

// Set stores a snapshot with the configured TTL. Cache write failures are
// logged and ignored: the caller already has the fresh snapshot.
func (c *Cache) Set(ctx context.Context, snap models.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("Error marshaling snapshot for cache: %v", err)
		return
	}

	if err := c.client.Set(ctx, snapshotCacheKey, data, c.ttl).Err(); err != nil {
		log.Printf("Error caching snapshot: %v", err)
	}
}

// Invalidate drops the cached snapshot
func (c *Cache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, snapshotCacheKey).Err(); err != nil {
		log.Printf("Error invalidating snapshot cache: %v", err)
	}
}
