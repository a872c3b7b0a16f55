package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/licensing"
	"github.com/keyforge/keyforge/internal/models"
)

// memLinkStore is an in-memory licensing.LinkStore.
type memLinkStore struct {
	rows []models.CollectionLink
}

func (f *memLinkStore) Get(ctx context.Context, userID, projectID primitive.ObjectID, collectionID string) (*models.CollectionLink, error) {
	for _, l := range f.rows {
		if l.UserID == userID && l.ProjectID == projectID && l.CollectionID == collectionID {
			return &l, nil
		}
	}
	return nil, nil
}

func (f *memLinkStore) ListByUserProject(ctx context.Context, userID, projectID primitive.ObjectID) ([]models.CollectionLink, error) {
	var out []models.CollectionLink
	for _, l := range f.rows {
		if l.UserID == userID && l.ProjectID == projectID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *memLinkStore) ListByUserCollections(ctx context.Context, userID primitive.ObjectID, collectionIDs []string) ([]models.CollectionLink, error) {
	var out []models.CollectionLink
	for _, l := range f.rows {
		if l.UserID != userID {
			continue
		}
		for _, id := range collectionIDs {
			if l.CollectionID == id {
				out = append(out, l)
				break
			}
		}
	}
	return out, nil
}

func (f *memLinkStore) ListByProjects(ctx context.Context, projectIDs []primitive.ObjectID) ([]models.CollectionLink, error) {
	var out []models.CollectionLink
	for _, l := range f.rows {
		for _, id := range projectIDs {
			if l.ProjectID == id {
				out = append(out, l)
				break
			}
		}
	}
	return out, nil
}

// memLicenseConn keeps external license documents per db.collection.
type memLicenseConn struct {
	data map[string]map[string][]licensing.LicenseDoc
}

func (c *memLicenseConn) docs(db, coll string) []licensing.LicenseDoc { return c.data[db][coll] }

func (c *memLicenseConn) ListDatabases(ctx context.Context) ([]string, error) {
	var out []string
	for db := range c.data {
		out = append(out, db)
	}
	return out, nil
}

func (c *memLicenseConn) ListCollections(ctx context.Context, db string) ([]string, error) {
	var out []string
	for coll := range c.data[db] {
		out = append(out, coll)
	}
	return out, nil
}

func (c *memLicenseConn) ProbeLicenseCollection(ctx context.Context, db, coll string) (bool, error) {
	for _, d := range c.docs(db, coll) {
		if d.Key != "" || d.HWID != "" || d.Code != "" {
			return true, nil
		}
	}
	return false, nil
}

func (c *memLicenseConn) CountDocuments(ctx context.Context, db, coll string) (int64, error) {
	return int64(len(c.docs(db, coll))), nil
}

func (c *memLicenseConn) FindLicenseDocs(ctx context.Context, db, coll string) ([]licensing.LicenseDoc, error) {
	return c.docs(db, coll), nil
}

func (c *memLicenseConn) InsertKeys(ctx context.Context, db, coll string, docs []licensing.KeyDoc) (int, error) {
	if c.data[db] == nil {
		c.data[db] = map[string][]licensing.LicenseDoc{}
	}
	for _, d := range docs {
		c.data[db][coll] = append(c.data[db][coll], licensing.LicenseDoc{
			ID:  primitive.NewObjectID(),
			Key: d.Key,
		})
	}
	return len(docs), nil
}

func (c *memLicenseConn) ResetHWID(ctx context.Context, db, coll string, docID primitive.ObjectID) (bool, error) {
	for i, d := range c.docs(db, coll) {
		if d.ID == docID {
			c.data[db][coll][i].HWID = ""
			return true, nil
		}
	}
	return false, nil
}

func (c *memLicenseConn) DeleteKey(ctx context.Context, db, coll string, docID primitive.ObjectID) (bool, error) {
	docs := c.docs(db, coll)
	for i, d := range docs {
		if d.ID == docID {
			c.data[db][coll] = append(docs[:i], docs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (c *memLicenseConn) Close(ctx context.Context) error { return nil }

type memConnector struct {
	conns map[string]*memLicenseConn
}

func (f *memConnector) Connect(ctx context.Context, uri string) (licensing.Conn, error) {
	conn, ok := f.conns[uri]
	if !ok {
		return nil, errors.New("dial failed")
	}
	return conn, nil
}

// keysStack wires the keys handler over a real engine with one owner, one
// linked project and one external "licenses.keys" collection.
type keysStack struct {
	*apiStack
	owner   *models.User
	client  *models.User
	project *models.Project
	links   *memLinkStore
	conn    *memLicenseConn
	docID   primitive.ObjectID
}

const testCollectionID = "int1-licenses-keys"

func newKeysRouter(t *testing.T) *keysStack {
	t.Helper()
	s := newAPIStack(t)

	owner := s.seedUser(t, "owner@acme.dev", models.PlanEmpresarial)
	owner.Integrations = []models.Integration{{
		ID:        "int1",
		Name:      "MongoDB",
		Connected: true,
		Config:    &models.IntegrationConfig{URI: "mongodb://one"},
	}}
	client := s.seedUser(t, "client@acme.dev", models.PlanClient)

	projRepo := newMemProjectRepo()
	project := &models.Project{
		Name:  "Launcher",
		Slug:  "launcher",
		Owner: owner.ID,
		LinkedClients: []models.LinkedClient{
			{Email: client.Email},
		},
	}
	require.NoError(t, projRepo.Create(context.Background(), project))

	docID := primitive.NewObjectID()
	conn := &memLicenseConn{data: map[string]map[string][]licensing.LicenseDoc{
		"licenses": {
			"keys": {
				{ID: docID, Key: "AAAA-BBBB", HWID: "hw1"},
			},
		},
	}}
	linkStore := &memLinkStore{rows: []models.CollectionLink{{
		UserID:       owner.ID,
		ProjectID:    project.ID,
		CollectionID: testCollectionID,
	}}}

	engine := licensing.NewEngine(projRepo, s.userRepo, linkStore, &memConnector{
		conns: map[string]*memLicenseConn{"mongodb://one": conn},
	})
	NewKeysHandler(engine).Register(s.api, s.authed)

	return &keysStack{
		apiStack: s,
		owner:    owner,
		client:   client,
		project:  project,
		links:    linkStore,
		conn:     conn,
		docID:    docID,
	}
}

func TestGenerateKeysRequiresPlan(t *testing.T) {
	s := newKeysRouter(t)
	none := s.seedUser(t, "free@acme.dev", models.PlanNone)

	w := doJSON(t, s.router, http.MethodPost, "/api/keys/generate", gin.H{
		"projectId": s.project.ID.Hex(), "collectionId": testCollectionID, "quantity": 5,
	}, cookieFor(t, none))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "Seu plano não permite gerar keys")
}

func TestGenerateKeysOwner(t *testing.T) {
	s := newKeysRouter(t)

	w := doJSON(t, s.router, http.MethodPost, "/api/keys/generate", gin.H{
		"projectId": s.project.ID.Hex(), "collectionId": testCollectionID, "quantity": 5,
	}, cookieFor(t, s.owner))
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, true, body["ok"])
	require.EqualValues(t, 5, body["inserted"])
	require.Equal(t, "licenses", body["dbName"])
	require.Equal(t, "keys", body["collName"])
	require.Len(t, body["sample"].([]any), 5)
	require.Len(t, s.conn.docs("licenses", "keys"), 6)
}

func TestGenerateKeysUnlinkedCollection(t *testing.T) {
	s := newKeysRouter(t)

	w := doJSON(t, s.router, http.MethodPost, "/api/keys/generate", gin.H{
		"projectId": s.project.ID.Hex(), "collectionId": "int1-licenses-other", "quantity": 5,
	}, cookieFor(t, s.owner))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "não está vinculada")
}

func TestGenerateKeysMissingFields(t *testing.T) {
	s := newKeysRouter(t)

	w := doJSON(t, s.router, http.MethodPost, "/api/keys/generate", gin.H{
		"projectId": s.project.ID.Hex(),
	}, cookieFor(t, s.owner))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListKeysOwner(t *testing.T) {
	s := newKeysRouter(t)

	w := doJSON(t, s.router, http.MethodGet, "/api/keys", nil, cookieFor(t, s.owner))
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, "empresarial", body["role"])
	rows := body["keys"].([]any)
	require.Len(t, rows, 1)
	first := rows[0].(map[string]any)
	require.Equal(t, "AAAA-BBBB", first["key"])
	require.Equal(t, "hw1", first["hwid"])
}

func TestResetHWIDOwner(t *testing.T) {
	s := newKeysRouter(t)
	keyID := testCollectionID + "-" + s.docID.Hex()

	w := doJSON(t, s.router, http.MethodPost, "/api/keys/reset-hwid", gin.H{"keyId": keyID}, cookieFor(t, s.owner))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":true`)
	require.Empty(t, s.conn.docs("licenses", "keys")[0].HWID)
}

func TestResetHWIDClientThroughOwnerIntegration(t *testing.T) {
	s := newKeysRouter(t)
	keyID := testCollectionID + "-" + s.docID.Hex()

	w := doJSON(t, s.router, http.MethodPost, "/api/keys/reset-hwid", gin.H{"keyId": keyID}, cookieFor(t, s.client))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":true`)
}

func TestResetHWIDMissingKeyID(t *testing.T) {
	s := newKeysRouter(t)

	w := doJSON(t, s.router, http.MethodPost, "/api/keys/reset-hwid", gin.H{}, cookieFor(t, s.owner))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "keyId obrigatório")
}

func TestRemoveKeyUnknownDocument(t *testing.T) {
	s := newKeysRouter(t)
	keyID := testCollectionID + "-" + primitive.NewObjectID().Hex()

	w := doJSON(t, s.router, http.MethodPost, "/api/keys/remove", gin.H{"keyId": keyID}, cookieFor(t, s.owner))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "Documento não encontrado")
}

func TestRemoveKeyOwner(t *testing.T) {
	s := newKeysRouter(t)
	keyID := testCollectionID + "-" + s.docID.Hex()

	w := doJSON(t, s.router, http.MethodPost, "/api/keys/remove", gin.H{"keyId": keyID}, cookieFor(t, s.owner))
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, s.conn.docs("licenses", "keys"))
}
