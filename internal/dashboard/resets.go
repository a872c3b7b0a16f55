package dashboard

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/keyforge/keyforge/pkg/logger"
)

// Reset events may live under a few historical collection names; the first
// one that exists wins.
var resetCollections = []string{"hwidresets", "hwid_resets", "resets", "hwidResets"}

// MongoResetStore counts HWID reset events recorded in the app database.
type MongoResetStore struct {
	db *mongo.Database
}

func NewMongoResetStore(db *mongo.Database) *MongoResetStore {
	return &MongoResetStore{db: db}
}

// CountBetween counts reset events for the given projects inside [start, end].
// Missing collections yield zero; a broken candidate is skipped in favor of
// the next one.
func (r *MongoResetStore) CountBetween(ctx context.Context, projectIDs []primitive.ObjectID, start, end time.Time) (int64, error) {
	if len(projectIDs) == 0 {
		return 0, nil
	}

	// Legacy writers stored the project reference as a hex string under
	// either field name, so match both encodings.
	refs := make(bson.A, 0, len(projectIDs)*2)
	for _, id := range projectIDs {
		refs = append(refs, id, id.Hex())
	}
	filter := bson.M{
		"createdAt": bson.M{"$gte": start, "$lte": end},
		"$or": bson.A{
			bson.M{"projectId": bson.M{"$in": refs}},
			bson.M{"project": bson.M{"$in": refs}},
		},
	}

	for _, name := range resetCollections {
		names, err := r.db.ListCollectionNames(ctx, bson.M{"name": name})
		if err != nil || len(names) == 0 {
			continue
		}
		n, err := r.db.Collection(name).CountDocuments(ctx, filter)
		if err != nil {
			logger.Warnf("dashboard: counting resets in %s: %v", name, err)
			continue
		}
		return n, nil
	}
	return 0, nil
}
