// hunt/store/team_store.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cryptichunt/go-services/shared/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// TeamStore is the MongoDB data store for team identity records.
type TeamStore struct {
	collection *mongo.Collection
}

// NewTeamStore creates a new TeamStore instance.
func NewTeamStore(collection *mongo.Collection) *TeamStore {
	return &TeamStore{
		collection: collection,
	}
}

// CreateTeam inserts a new team document.
func (ts *TeamStore) CreateTeam(ctx context.Context, team *models.Team) error {
	if team.CreatedAt == nil {
		now := time.Now()
		team.CreatedAt = &now
	}
	_, err := ts.collection.InsertOne(ctx, team)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("team %s already exists: %w", team.ID, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create team %s: %w", team.ID, err)
	}
	return nil
}

// GetTeamByID retrieves a team by its id.
func (ts *TeamStore) GetTeamByID(ctx context.Context, teamID string) (*models.Team, error) {
	var team models.Team
	filter := bson.M{"_id": teamID}
	err := ts.collection.FindOne(ctx, filter).Decode(&team)
	if err != nil {
		return nil, err // Returns mongo.ErrNoDocuments if not found
	}
	return &team, nil
}
