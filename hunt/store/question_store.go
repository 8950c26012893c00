// hunt/store/question_store.go
package store

import (
	"context"
	"fmt"

	"github.com/cryptichunt/go-services/shared/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// QuestionStore is the MongoDB data store for questions (levels). The admin
// collaborator owns writes; the hunt core only reads.
type QuestionStore struct {
	collection *mongo.Collection
}

// NewQuestionStore creates a new QuestionStore instance.
func NewQuestionStore(collection *mongo.Collection) *QuestionStore {
	return &QuestionStore{
		collection: collection,
	}
}

// GetByLevel retrieves the question for a level number.
func (qs *QuestionStore) GetByLevel(ctx context.Context, level int) (*models.Question, error) {
	var question models.Question
	filter := bson.M{"_id": level}
	err := qs.collection.FindOne(ctx, filter).Decode(&question)
	if err != nil {
		return nil, err // Returns mongo.ErrNoDocuments if not found
	}
	return &question, nil
}

// CountLevels returns the total number of defined levels. Levels are a
// contiguous sequence starting at 1, so the count is also the final level.
func (qs *QuestionStore) CountLevels(ctx context.Context) (int, error) {
	count, err := qs.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count levels: %w", err)
	}
	return int(count), nil
}

// EnabledHints returns the enabled hints for a level, in document order.
func (qs *QuestionStore) EnabledHints(ctx context.Context, level int) ([]models.Hint, error) {
	question, err := qs.GetByLevel(ctx, level)
	if err != nil {
		return nil, err
	}

	hints := make([]models.Hint, 0, len(question.Hints))
	for _, hint := range question.Hints {
		if hint.Enabled {
			hints = append(hints, hint)
		}
	}
	return hints, nil
}
