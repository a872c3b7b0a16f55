package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CollectionLink associates an external license collection (by its composite
// collection id) with exactly one project, scoped to the linking user.
// Unique per (userId, collectionId).
type CollectionLink struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID `bson:"userId" json:"-"`
	CollectionID string             `bson:"collectionId" json:"collectionId"`
	ProjectID    primitive.ObjectID `bson:"projectId" json:"projectId"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}
