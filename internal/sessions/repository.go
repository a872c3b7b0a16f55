package sessions

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/keyforge/keyforge/internal/models"
)

// Repository provides device-session persistence operations
type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Session, error)
	DeleteByID(ctx context.Context, userID, id primitive.ObjectID) (*models.Session, error)
	DeleteByToken(ctx context.Context, token string) error
}

// MongoRepository implements Repository using a Mongo collection
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, s *models.Session) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.LastActive.IsZero() {
		s.LastActive = now
	}
	_, err := r.col.InsertOne(ctx, s)
	return err
}

func (r *MongoRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Session, error) {
	cur, err := r.col.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoRepository) DeleteByID(ctx context.Context, userID, id primitive.ObjectID) (*models.Session, error) {
	var s models.Session
	err := r.col.FindOneAndDelete(ctx, bson.M{"_id": id, "userId": userID}).Decode(&s)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *MongoRepository) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"token": token})
	return err
}
