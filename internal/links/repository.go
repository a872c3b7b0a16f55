package links

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/keyforge/keyforge/internal/models"
)

// Repository persists collection-to-project links. A user holds at most one
// link per collection id; relinking moves the collection to another project.
type Repository interface {
	Upsert(ctx context.Context, userID primitive.ObjectID, collectionID string, projectID primitive.ObjectID) error
	Delete(ctx context.Context, userID primitive.ObjectID, collectionID string) error
	Get(ctx context.Context, userID, projectID primitive.ObjectID, collectionID string) (*models.CollectionLink, error)
	ListByUserProject(ctx context.Context, userID, projectID primitive.ObjectID) ([]models.CollectionLink, error)
	ListByUserCollections(ctx context.Context, userID primitive.ObjectID, collectionIDs []string) ([]models.CollectionLink, error)
	ListByProjects(ctx context.Context, projectIDs []primitive.ObjectID) ([]models.CollectionLink, error)
	CountByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error)
	CountByProjects(ctx context.Context, projectIDs []primitive.ObjectID, createdBefore *time.Time) (int64, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Upsert(ctx context.Context, userID primitive.ObjectID, collectionID string, projectID primitive.ObjectID) error {
	now := time.Now().UTC()
	_, err := r.col.UpdateOne(ctx,
		bson.M{"userId": userID, "collectionId": collectionID},
		bson.M{
			"$set":         bson.M{"projectId": projectID, "updatedAt": now},
			"$setOnInsert": bson.M{"createdAt": now},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *MongoRepository) Delete(ctx context.Context, userID primitive.ObjectID, collectionID string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"userId": userID, "collectionId": collectionID})
	return err
}

func (r *MongoRepository) Get(ctx context.Context, userID, projectID primitive.ObjectID, collectionID string) (*models.CollectionLink, error) {
	var link models.CollectionLink
	err := r.col.FindOne(ctx, bson.M{
		"userId":       userID,
		"projectId":    projectID,
		"collectionId": collectionID,
	}).Decode(&link)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

func (r *MongoRepository) ListByUserProject(ctx context.Context, userID, projectID primitive.ObjectID) ([]models.CollectionLink, error) {
	return r.find(ctx, bson.M{"userId": userID, "projectId": projectID})
}

func (r *MongoRepository) ListByUserCollections(ctx context.Context, userID primitive.ObjectID, collectionIDs []string) ([]models.CollectionLink, error) {
	if len(collectionIDs) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{"userId": userID, "collectionId": bson.M{"$in": collectionIDs}})
}

func (r *MongoRepository) ListByProjects(ctx context.Context, projectIDs []primitive.ObjectID) ([]models.CollectionLink, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	return r.find(ctx, bson.M{"projectId": bson.M{"$in": projectIDs}})
}

func (r *MongoRepository) CountByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"projectId": projectID})
}

func (r *MongoRepository) CountByProjects(ctx context.Context, projectIDs []primitive.ObjectID, createdBefore *time.Time) (int64, error) {
	if len(projectIDs) == 0 {
		return 0, nil
	}
	filter := bson.M{"projectId": bson.M{"$in": projectIDs}}
	if createdBefore != nil {
		filter["createdAt"] = bson.M{"$lte": *createdBefore}
	}
	return r.col.CountDocuments(ctx, filter)
}

func (r *MongoRepository) find(ctx context.Context, filter bson.M) ([]models.CollectionLink, error) {
	cur, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.CollectionLink
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
