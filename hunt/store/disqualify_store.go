// hunt/store/disqualify_store.go
package store

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	redisu "github.com/cryptichunt/go-services/shared/redis"
	"github.com/redis/go-redis/v9"
)

// DisqualifyStore handles team disqualification flags in Redis. A
// disqualified team cannot submit answers and is excluded from the
// leaderboard until reinstated (or until a timed disqualification expires).
type DisqualifyStore struct {
	client *redis.ClusterClient
}

// NewDisqualifyStore creates a new DisqualifyStore instance.
func NewDisqualifyStore(client *redis.ClusterClient) *DisqualifyStore {
	return &DisqualifyStore{
		client: client,
	}
}

// DisqualifyTeam flags a team with an optional expiration time. A nil
// expiresAt means the disqualification stands until reinstatement.
func (ds *DisqualifyStore) DisqualifyTeam(ctx context.Context, teamID string, expiresAt *time.Time, reason string) error {
	key := fmt.Sprintf(redisu.DisqualifiedKeyPrefix, teamID)

	var dqExpiresAt int64
	var duration time.Duration

	if expiresAt != nil {
		dqExpiresAt = expiresAt.Unix()
		duration = time.Until(*expiresAt)
		if duration < 0 {
			duration = 1 * time.Millisecond // Already expired, set minimal duration
		}
	} else {
		dqExpiresAt = 0
		duration = 0 // No expiration
	}

	// Store the flag with the expiration timestamp as value
	err := ds.client.Set(ctx, key, dqExpiresAt, duration).Err()
	if err != nil {
		return fmt.Errorf("failed to disqualify team %s: %w", teamID, err)
	}

	if reason != "" {
		reasonKey := fmt.Sprintf(redisu.DisqualifiedReasonKeyPrefix, teamID)
		if err := ds.client.Set(ctx, reasonKey, reason, duration).Err(); err != nil {
			log.Printf("Warning: Failed to store disqualification reason for %s: %v", teamID, err)
		}
	}

	if expiresAt != nil {
		log.Printf("Team %s disqualified until %v. Reason: %s", teamID, *expiresAt, reason)
	} else {
		log.Printf("Team %s disqualified. Reason: %s", teamID, reason)
	}

	return nil
}

// ReinstateTeam removes a team's disqualification.
func (ds *DisqualifyStore) ReinstateTeam(ctx context.Context, teamID string) error {
	key := fmt.Sprintf(redisu.DisqualifiedKeyPrefix, teamID)
	reasonKey := fmt.Sprintf(redisu.DisqualifiedReasonKeyPrefix, teamID)

	deletedCount, err := ds.client.Del(ctx, key, reasonKey).Result()
	if err != nil {
		return fmt.Errorf("failed to reinstate team %s: %w", teamID, err)
	}

	if deletedCount > 0 {
		log.Printf("Team %s has been reinstated (%d keys deleted)", teamID, deletedCount)
	} else {
		log.Printf("Team %s was not disqualified (no keys found)", teamID)
	}

	return nil
}

// IsTeamDisqualified checks whether a team is currently disqualified.
// Expired timed disqualifications are cleaned up lazily.
func (ds *DisqualifyStore) IsTeamDisqualified(ctx context.Context, teamID string) (bool, error) {
	key := fmt.Sprintf(redisu.DisqualifiedKeyPrefix, teamID)
	val, err := ds.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil // Not disqualified
	}
	if err != nil {
		return false, fmt.Errorf("failed to check disqualification for %s: %w", teamID, err)
	}

	expiresAt, parseErr := strconv.ParseInt(val, 10, 64)
	if parseErr != nil {
		log.Printf("Warning: Disqualification flag for %s has invalid timestamp: %s. Treating as not disqualified.", teamID, val)
		return false, nil
	}

	// Check if a timed disqualification has expired
	if expiresAt > 0 && time.Now().Unix() >= expiresAt {
		// Expired, clean it up asynchronously
		go func() {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := ds.ReinstateTeam(cleanupCtx, teamID); err != nil {
				log.Printf("Error cleaning up expired disqualification for %s: %v", teamID, err)
			}
		}()
		return false, nil
	}

	return true, nil
}

// GetDisqualificationReason returns the stored reason, or "" when none is set.
func (ds *DisqualifyStore) GetDisqualificationReason(ctx context.Context, teamID string) (string, error) {
	reasonKey := fmt.Sprintf(redisu.DisqualifiedReasonKeyPrefix, teamID)
	reason, err := ds.client.Get(ctx, reasonKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get disqualification reason for %s: %w", teamID, err)
	}
	return reason, nil
}
