package projects

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/keyforge/keyforge/internal/models"
)

// Repository abstracts project persistence
type Repository interface {
	Create(ctx context.Context, p *models.Project) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Project, error)
	GetBySlug(ctx context.Context, slug string) (*models.Project, error)
	ListVisible(ctx context.Context, userID primitive.ObjectID, email string) ([]models.Project, error)
	ListByClientEmail(ctx context.Context, email string) ([]models.Project, error)
	ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Project, error)
	CountVisibleCreatedBefore(ctx context.Context, userID primitive.ObjectID, email string, before time.Time) (int64, error)
	AddLinkedClient(ctx context.Context, id primitive.ObjectID, client models.LinkedClient) error
	RemoveLinkedClient(ctx context.Context, id primitive.ObjectID, email string) error
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, p *models.Project) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.LinkedClients == nil {
		p.LinkedClients = []models.LinkedClient{}
	}
	res, err := r.col.InsertOne(ctx, p)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		p.ID = oid
	}
	return nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Project, error) {
	var p models.Project
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetBySlug looks a project up by slug. Slugs are unique across all owners.
func (r *MongoRepository) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	var p models.Project
	err := r.col.FindOne(ctx, bson.M{"slug": slug}).Decode(&p)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListVisible returns projects the user owns plus projects where their email
// appears as a linked client, newest first.
func (r *MongoRepository) ListVisible(ctx context.Context, userID primitive.ObjectID, email string) ([]models.Project, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"owner": userID},
		bson.M{"linkedClients.email": email},
	}}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Project
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByClientEmail returns projects where the email appears as a linked
// client, regardless of owner.
func (r *MongoRepository) ListByClientEmail(ctx context.Context, email string) ([]models.Project, error) {
	cur, err := r.col.Find(ctx, bson.M{"linkedClients.email": email})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Project
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoRepository) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Project, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := r.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Project
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountVisibleCreatedBefore counts visible projects created up to a cutoff,
// used for day-over-day deltas.
func (r *MongoRepository) CountVisibleCreatedBefore(ctx context.Context, userID primitive.ObjectID, email string, before time.Time) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{
		"$or": bson.A{
			bson.M{"owner": userID},
			bson.M{"linkedClients.email": email},
		},
		"createdAt": bson.M{"$lte": before},
	})
}

func (r *MongoRepository) AddLinkedClient(ctx context.Context, id primitive.ObjectID, client models.LinkedClient) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"linkedClients": client},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
	return err
}

func (r *MongoRepository) RemoveLinkedClient(ctx context.Context, id primitive.ObjectID, email string) error {
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$pull": bson.M{"linkedClients": bson.M{"email": email}},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
	return err
}
