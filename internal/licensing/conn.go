package licensing

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/keyforge/keyforge/internal/database"
)

// LicenseDoc is one document read from an external license collection.
// Fields the collection does not carry stay zero.
type LicenseDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Key       string             `bson:"key,omitempty"`
	HWID      string             `bson:"hwid,omitempty"`
	Code      string             `bson:"code,omitempty"`
	ExpireAt  *time.Time         `bson:"expireAt,omitempty"`
	UpdatedAt *time.Time         `bson:"updatedAt,omitempty"`
}

// KeyDoc is one freshly issued key written to an external collection.
type KeyDoc struct {
	Key            string     `bson:"key"`
	HWID           string     `bson:"hwid"`
	Status         string     `bson:"status"`
	CreatedAt      time.Time  `bson:"createdAt"`
	UpdatedAt      time.Time  `bson:"updatedAt"`
	ExpirationDays int        `bson:"expirationDays"`
	ExpireAt       *time.Time `bson:"expireAt"`
}

// licenseFilter matches documents that look like license entries.
var licenseFilter = bson.M{"$or": bson.A{
	bson.M{"key": bson.M{"$exists": true}},
	bson.M{"hwid": bson.M{"$exists": true}},
	bson.M{"code": bson.M{"$exists": true}},
}}

// Conn is a live connection to one external integration. Implementations
// are request-scoped: open, use, Close.
type Conn interface {
	ListDatabases(ctx context.Context) ([]string, error)
	ListCollections(ctx context.Context, db string) ([]string, error)
	// ProbeLicenseCollection reports whether at least one document carries a
	// key, hwid or code field.
	ProbeLicenseCollection(ctx context.Context, db, coll string) (bool, error)
	CountDocuments(ctx context.Context, db, coll string) (int64, error)
	FindLicenseDocs(ctx context.Context, db, coll string) ([]LicenseDoc, error)
	InsertKeys(ctx context.Context, db, coll string, docs []KeyDoc) (int, error)
	ResetHWID(ctx context.Context, db, coll string, docID primitive.ObjectID) (bool, error)
	DeleteKey(ctx context.Context, db, coll string, docID primitive.ObjectID) (bool, error)
	Close(ctx context.Context) error
}

// Connector dials external integrations by URI.
type Connector interface {
	Connect(ctx context.Context, uri string) (Conn, error)
}

// MongoConnector dials user-supplied MongoDB URIs with a short timeout.
// Connections are never pooled across requests.
type MongoConnector struct {
	Timeout time.Duration
}

func NewMongoConnector(timeout time.Duration) *MongoConnector {
	return &MongoConnector{Timeout: timeout}
}

func (c *MongoConnector) Connect(ctx context.Context, uri string) (Conn, error) {
	client, err := database.ConnectExternal(ctx, uri, c.Timeout)
	if err != nil {
		return nil, err
	}
	return &mongoConn{client: client}, nil
}

type mongoConn struct {
	client *mongo.Client
}

func (c *mongoConn) ListDatabases(ctx context.Context) ([]string, error) {
	return c.client.ListDatabaseNames(ctx, bson.M{})
}

func (c *mongoConn) ListCollections(ctx context.Context, db string) ([]string, error) {
	return c.client.Database(db).ListCollectionNames(ctx, bson.M{})
}

func (c *mongoConn) ProbeLicenseCollection(ctx context.Context, db, coll string) (bool, error) {
	err := c.client.Database(db).Collection(coll).FindOne(ctx, licenseFilter).Err()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *mongoConn) CountDocuments(ctx context.Context, db, coll string) (int64, error) {
	return c.client.Database(db).Collection(coll).CountDocuments(ctx, bson.M{})
}

func (c *mongoConn) FindLicenseDocs(ctx context.Context, db, coll string) ([]LicenseDoc, error) {
	cur, err := c.client.Database(db).Collection(coll).Find(ctx, licenseFilter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []LicenseDoc
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *mongoConn) InsertKeys(ctx context.Context, db, coll string, docs []KeyDoc) (int, error) {
	payload := make([]interface{}, len(docs))
	for i, d := range docs {
		payload[i] = d
	}
	res, err := c.client.Database(db).Collection(coll).InsertMany(ctx, payload,
		options.InsertMany().SetOrdered(false))
	if res != nil {
		return len(res.InsertedIDs), err
	}
	return 0, err
}

func (c *mongoConn) ResetHWID(ctx context.Context, db, coll string, docID primitive.ObjectID) (bool, error) {
	res, err := c.client.Database(db).Collection(coll).UpdateOne(ctx,
		bson.M{"_id": docID},
		bson.M{"$set": bson.M{"hwid": "", "updatedAt": time.Now().UTC()}})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (c *mongoConn) DeleteKey(ctx context.Context, db, coll string, docID primitive.ObjectID) (bool, error) {
	res, err := c.client.Database(db).Collection(coll).DeleteOne(ctx, bson.M{"_id": docID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (c *mongoConn) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}
