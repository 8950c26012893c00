// hunt/store/progress_store.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptichunt/go-services/shared/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ProgressStore is the MongoDB data store for per-team progress records.
//
// All mutations are conditional updates whose filters include the previously
// read last_activity_at value. Of two concurrent submissions for the same
// team, exactly one filter matches; the loser observes a miss and is treated
// as rate limited by the caller. This is what serializes same-team
// submissions without blocking other teams.
type ProgressStore struct {
	collection      *mongo.Collection
	teamsCollection string // foreign collection name for the leaderboard $lookup
}

// NewProgressStore creates a new ProgressStore instance.
func NewProgressStore(collection *mongo.Collection, teamsCollection string) *ProgressStore {
	return &ProgressStore{
		collection:      collection,
		teamsCollection: teamsCollection,
	}
}

// CreateProgress inserts the initial progress record for a newly formed team:
// level 1, zero score, never answered.
func (ps *ProgressStore) CreateProgress(ctx context.Context, teamID string) error {
	now := time.Now()
	progress := models.TeamProgress{
		TeamID:         teamID,
		CurrentLevel:   1,
		TotalScore:     0,
		LastActivityAt: now,
		CreatedAt:      &now,
	}
	_, err := ps.collection.InsertOne(ctx, progress)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("progress record for team %s already exists: %w", teamID, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create progress record for team %s: %w", teamID, err)
	}
	return nil
}

// GetProgress retrieves a team's progress record.
func (ps *ProgressStore) GetProgress(ctx context.Context, teamID string) (*models.TeamProgress, error) {
	var progress models.TeamProgress
	filter := bson.M{"_id": teamID}
	err := ps.collection.FindOne(ctx, filter).Decode(&progress)
	if err != nil {
		return nil, err // Returns mongo.ErrNoDocuments if not found
	}
	return &progress, nil
}

// TouchActivity updates only last_activity_at, conditional on the value read
// before the cooldown check. Returns false (no error) when the condition did
// not match, i.e. another submission for this team got there first.
func (ps *ProgressStore) TouchActivity(ctx context.Context, teamID string, prevActivityAt, now time.Time) (bool, error) {
	filter := bson.M{"_id": teamID, "last_activity_at": prevActivityAt}
	update := bson.M{"$set": bson.M{"last_activity_at": now}}
	res, err := ps.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to touch activity for team %s: %w", teamID, err)
	}
	return res.MatchedCount == 1, nil
}

// ApplyCorrectAnswer commits a correct submission in a single conditional
// update: add the level's points, advance the level by one, and stamp both
// timestamps. The filter pins the level and last_activity_at the caller read,
// so a concurrent submission cannot double-apply. Returns the post-update
// record; (nil, false, nil) means the condition did not match.
func (ps *ProgressStore) ApplyCorrectAnswer(ctx context.Context, teamID string, level, points int, prevActivityAt, now time.Time) (*models.TeamProgress, bool, error) {
	filter := bson.M{
		"_id":              teamID,
		"current_level":    level,
		"last_activity_at": prevActivityAt,
	}
	update := bson.M{
		"$inc": bson.M{"total_score": points, "current_level": 1},
		"$set": bson.M{"last_activity_at": now, "last_answer_at": now},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.TeamProgress
	err := ps.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to apply correct answer for team %s at level %d: %w", teamID, level, err)
	}
	return &updated, true, nil
}

// ListLeaderboardRows returns every team's progress joined with its display
// name, sorted by team id. The stable retrieval order is what makes the
// ranker's tie-breaking deterministic.
func (ps *ProgressStore) ListLeaderboardRows(ctx context.Context) ([]models.LeaderboardRow, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: ps.teamsCollection},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "team"},
		}}},
		bson.D{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$team"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "team_name", Value: "$team.name"},
			{Key: "total_score", Value: 1},
			{Key: "current_level", Value: 1},
			{Key: "last_answer_at", Value: 1},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}

	cursor, err := ps.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error running leaderboard aggregation: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []models.LeaderboardRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("error decoding leaderboard rows: %w", err)
	}
	return rows, nil
}
