// hunt/store/snapshot_cache.go
package store

import (
	"context"
	"fmt"
	"time"

	redisu "github.com/cryptichunt/go-services/shared/redis"
	"github.com/redis/go-redis/v9"
)

// SnapshotCache keeps the latest serialized leaderboard snapshot in Redis so
// the plain pull endpoint doesn't recompute the ranking on every request.
// The hub and the warmer refresh it; a miss just means callers recompute.
type SnapshotCache struct {
	client *redis.ClusterClient
	ttl    time.Duration
}

// NewSnapshotCache creates a new SnapshotCache instance.
func NewSnapshotCache(client *redis.ClusterClient, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		client: client,
		ttl:    ttl,
	}
}

// Put stores the serialized snapshot with the cache TTL.
func (sc *SnapshotCache) Put(ctx context.Context, snapshot []byte) error {
	err := sc.client.Set(ctx, redisu.LeaderboardSnapshotKey, snapshot, sc.ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to cache leaderboard snapshot: %w", err)
	}
	return nil
}

// Get retrieves the cached serialized snapshot.
// Returns ErrRedisKeyNotFound when the cache is cold or expired.
func (sc *SnapshotCache) Get(ctx context.Context) ([]byte, error) {
	val, err := sc.client.Get(ctx, redisu.LeaderboardSnapshotKey).Bytes()
	if err == redis.Nil {
		return nil, redisu.ErrRedisKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached leaderboard snapshot: %w", err)
	}
	return val, nil
}
