// shared/redis/constants.go
package redis

import "fmt"

const (
	// Key constants for Redis hunt data. The hash tags keep a team's keys on
	// one cluster slot.
	DisqualifiedKeyPrefix       = "disqualified:{%s}:"        // Disqualification flag: disqualified:{teamID}
	DisqualifiedReasonKeyPrefix = "disqualified_reason:{%s}:" // Disqualification reason: disqualified_reason:{teamID}

	// LeaderboardSnapshotKey holds the latest serialized leaderboard snapshot.
	LeaderboardSnapshotKey = "leaderboard:snapshot"
)

// ErrRedisKeyNotFound is returned when an expected Redis key is missing.
var ErrRedisKeyNotFound = fmt.Errorf("redis key not found")
