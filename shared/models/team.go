// shared/models/team.go
package models

import "time"

// Team represents a registered hunt team stored persistently in MongoDB.
// Team formation (membership, sign-in) is owned by the web collaborator; the
// hunt core only needs the identity and display name.
type Team struct {
	ID        string     `bson:"_id" json:"id"`
	Name      string     `bson:"name" json:"name"`
	CreatedAt *time.Time `bson:"created_at,omitempty" json:"createdAt,omitempty"`
}
