// shared/models/progress.go
package models

import "time"

// TeamProgress is the durable per-team game record. CurrentLevel and
// TotalScore never decrease over the life of a team; both are mutated only by
// the progression engine through conditional updates.
type TeamProgress struct {
	TeamID         string     `bson:"_id" json:"teamId"`
	CurrentLevel   int        `bson:"current_level" json:"currentLevel"` // starts at 1
	TotalScore     int        `bson:"total_score" json:"totalScore"`
	LastActivityAt time.Time  `bson:"last_activity_at" json:"lastActivityAt"`          // bumped on every submission attempt
	LastAnswerAt   *time.Time `bson:"last_answer_at,omitempty" json:"lastAnswerAt"`    // bumped only on a correct submission
	CreatedAt      *time.Time `bson:"created_at,omitempty" json:"createdAt,omitempty"`
}

// LeaderboardRow is a team's progress joined with its display name, as read
// back from the leaderboard aggregation. Input to the ranker.
type LeaderboardRow struct {
	TeamID       string     `bson:"_id" json:"teamId"`
	TeamName     string     `bson:"team_name" json:"teamName"`
	TotalScore   int        `bson:"total_score" json:"totalScore"`
	CurrentLevel int        `bson:"current_level" json:"currentLevel"`
	LastAnswerAt *time.Time `bson:"last_answer_at,omitempty" json:"lastAnswerAt"`
}
