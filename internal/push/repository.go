package push

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/keyforge/keyforge/internal/models"
)

// Repository persists one web-push subscription per user.
type Repository interface {
	GetByUser(ctx context.Context, userID primitive.ObjectID) (*models.NotificationSubscription, error)
	Upsert(ctx context.Context, sub *models.NotificationSubscription) error
	// UpdateStatuses changes only the status filter; reports whether a
	// subscription existed.
	UpdateStatuses(ctx context.Context, userID primitive.ObjectID, statuses []string) (bool, error)
	DeleteByUser(ctx context.Context, userID primitive.ObjectID) error
	ListByStatus(ctx context.Context, status string) ([]models.NotificationSubscription, error)
	DeleteByID(ctx context.Context, id primitive.ObjectID) error
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) GetByUser(ctx context.Context, userID primitive.ObjectID) (*models.NotificationSubscription, error) {
	var sub models.NotificationSubscription
	err := r.col.FindOne(ctx, bson.M{"userId": userID}).Decode(&sub)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *MongoRepository) Upsert(ctx context.Context, sub *models.NotificationSubscription) error {
	now := time.Now().UTC()
	_, err := r.col.UpdateOne(ctx,
		bson.M{"userId": sub.UserID},
		bson.M{
			"$set": bson.M{
				"endpoint":  sub.Endpoint,
				"keys":      sub.Keys,
				"statuses":  sub.Statuses,
				"updatedAt": now,
			},
			"$setOnInsert": bson.M{"createdAt": now},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *MongoRepository) UpdateStatuses(ctx context.Context, userID primitive.ObjectID, statuses []string) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"userId": userID},
		bson.M{"$set": bson.M{"statuses": statuses, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (r *MongoRepository) DeleteByUser(ctx context.Context, userID primitive.ObjectID) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"userId": userID})
	return err
}

func (r *MongoRepository) ListByStatus(ctx context.Context, status string) ([]models.NotificationSubscription, error) {
	cur, err := r.col.Find(ctx, bson.M{"statuses": status})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.NotificationSubscription
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoRepository) DeleteByID(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	return err
}
