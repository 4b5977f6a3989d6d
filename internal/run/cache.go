package run

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hearthside/leadscore/internal/scoring"
)

// ==========================================
// LATEST-SCORE CACHE
// ==========================================

// Cache keeps each contact's latest scores in Redis so dashboard reads skip
// Postgres. The database remains the source of truth; a cache miss falls
// through to the store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a latest-score cache. A non-positive TTL defaults to
// twice the typical run interval so stale entries age out on their own.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(contactID uuid.UUID) string {
	return fmt.Sprintf("leadscore:latest:%s", contactID)
}

// StoreLatest writes every snapshot from a committed run, pipelined.
func (c *Cache) StoreLatest(ctx context.Context, snapshots []scoring.ScoreSnapshot) error {
	pipe := c.client.Pipeline()
	for i := range snapshots {
		data, err := json.Marshal(&snapshots[i])
		if err != nil {
			return fmt.Errorf("marshal snapshot for %s: %w", snapshots[i].ContactID, err)
		}
		pipe.Set(ctx, cacheKey(snapshots[i].ContactID), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache pipeline: %w", err)
	}
	return nil
}

// GetLatest returns the cached snapshot for a contact, or nil on a miss.
func (c *Cache) GetLatest(ctx context.Context, contactID uuid.UUID) (*scoring.ScoreSnapshot, error) {
	data, err := c.client.Get(ctx, cacheKey(contactID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var snap scoring.ScoreSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal cached snapshot: %w", err)
	}
	return &snap, nil
}
