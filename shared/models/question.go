// shared/models/question.go
package models

// Hint is a single hint attached to a question. Admins toggle Enabled;
// players only ever see enabled hints.
type Hint struct {
	ID      string `bson:"id" json:"id"`
	Content string `bson:"content" json:"content"`
	Enabled bool   `bson:"enabled" json:"-"`
}

// Question is one puzzle level. Levels form a contiguous sequence starting at
// 1, so the level number doubles as the document id. Owned by the admin
// collaborator; read-only to the hunt core.
type Question struct {
	Level         int    `bson:"_id" json:"level"`
	Title         string `bson:"title" json:"title"`
	Description   string `bson:"description" json:"description"`
	ImageURL      string `bson:"image_url,omitempty" json:"imageUrl,omitempty"`
	Points        int    `bson:"points" json:"points"`
	CorrectAnswer string `bson:"correct_answer" json:"-"`
	Hints         []Hint `bson:"hints,omitempty" json:"-"`
}
