package handlers

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/internal/projects"
)

// memProjectRepo is an in-memory projects.Repository.
type memProjectRepo struct {
	mu   sync.Mutex
	rows map[primitive.ObjectID]*models.Project
}

func newMemProjectRepo() *memProjectRepo {
	return &memProjectRepo{rows: map[primitive.ObjectID]*models.Project{}}
}

func (r *memProjectRepo) Create(ctx context.Context, p *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = primitive.NewObjectID()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	r.rows[p.ID] = p
	return nil
}

func (r *memProjectRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id], nil
}

func (r *memProjectRepo) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, nil
}

func (r *memProjectRepo) ListVisible(ctx context.Context, userID primitive.ObjectID, email string) ([]models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Project
	for _, p := range r.rows {
		if p.Owner == userID || p.HasLinkedClient(email) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memProjectRepo) ListByClientEmail(ctx context.Context, email string) ([]models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Project
	for _, p := range r.rows {
		if p.HasLinkedClient(email) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memProjectRepo) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Project
	for _, id := range ids {
		if p, ok := r.rows[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memProjectRepo) CountVisibleCreatedBefore(ctx context.Context, userID primitive.ObjectID, email string, before time.Time) (int64, error) {
	rows, _ := r.ListVisible(ctx, userID, email)
	var n int64
	for _, p := range rows {
		if p.CreatedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

func (r *memProjectRepo) AddLinkedClient(ctx context.Context, id primitive.ObjectID, client models.LinkedClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.rows[id]; p != nil {
		p.LinkedClients = append(p.LinkedClients, client)
	}
	return nil
}

func (r *memProjectRepo) RemoveLinkedClient(ctx context.Context, id primitive.ObjectID, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.rows[id]
	if p == nil {
		return nil
	}
	kept := p.LinkedClients[:0]
	for _, c := range p.LinkedClients {
		if c.Email != email {
			kept = append(kept, c)
		}
	}
	p.LinkedClients = kept
	return nil
}

type stubLinkCounter struct{ n int64 }

func (s stubLinkCounter) CountByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	return s.n, nil
}

type stubKeyCounter struct{ n int64 }

func (s stubKeyCounter) CountProjectKeys(ctx context.Context, user *models.User, projectID primitive.ObjectID) (int64, error) {
	return s.n, nil
}

type projectsStack struct {
	*apiStack
	repo *memProjectRepo
}

func newProjectsRouter(t *testing.T) *projectsStack {
	t.Helper()
	s := newAPIStack(t)
	repo := newMemProjectRepo()
	svc := projects.NewService(repo, s.userRepo, stubLinkCounter{n: 2}, stubKeyCounter{n: 7})
	NewProjectsHandler(svc).Register(s.api, s.authed)
	return &projectsStack{apiStack: s, repo: repo}
}

func TestCreateProjectRequiresEmpresarial(t *testing.T) {
	s := newProjectsRouter(t)
	client := s.seedUser(t, "client@acme.dev", models.PlanClient)

	w := doJSON(t, s.router, http.MethodPost, "/api/projects", gin.H{"name": "Launcher"}, cookieFor(t, client))
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "plano empresarial")
}

func TestCreateProject(t *testing.T) {
	s := newProjectsRouter(t)
	owner := s.seedUser(t, "owner@acme.dev", models.PlanEmpresarial)

	w := doJSON(t, s.router, http.MethodPost, "/api/projects", gin.H{
		"name": "Launcher Pro", "clientEmail": "client@acme.dev",
	}, cookieFor(t, owner))
	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, "Launcher Pro", body["name"])
	require.Equal(t, "active", body["status"])
	require.EqualValues(t, 1, body["clientsCount"])
}

func TestCreateProjectDuplicateSlug(t *testing.T) {
	s := newProjectsRouter(t)
	owner := s.seedUser(t, "owner@acme.dev", models.PlanEmpresarial)
	cookie := cookieFor(t, owner)

	w := doJSON(t, s.router, http.MethodPost, "/api/projects", gin.H{"name": "Launcher"}, cookie)
	require.Equal(t, http.StatusCreated, w.Code)

	// same name, different owner casing: slug collides
	w = doJSON(t, s.router, http.MethodPost, "/api/projects", gin.H{"name": "LAUNCHER"}, cookie)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "Slug já existe")
}

func TestCreateProjectInvalidStatus(t *testing.T) {
	s := newProjectsRouter(t)
	owner := s.seedUser(t, "owner@acme.dev", models.PlanEmpresarial)

	w := doJSON(t, s.router, http.MethodPost, "/api/projects", gin.H{
		"name": "Launcher", "status": "frozen",
	}, cookieFor(t, owner))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListProjectsIncludesLinkedOnes(t *testing.T) {
	s := newProjectsRouter(t)
	owner := s.seedUser(t, "owner@acme.dev", models.PlanEmpresarial)
	client := s.seedUser(t, "client@acme.dev", models.PlanClient)

	w := doJSON(t, s.router, http.MethodPost, "/api/projects", gin.H{
		"name": "Launcher", "clientEmail": client.Email,
	}, cookieFor(t, owner))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s.router, http.MethodGet, "/api/projects", nil, cookieFor(t, client))
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, "client", body["role"])
	rows := body["projects"].([]any)
	require.Len(t, rows, 1)
	first := rows[0].(map[string]any)
	require.Equal(t, "Launcher", first["name"])
	require.EqualValues(t, 2, first["collectionsCount"])
	require.EqualValues(t, 7, first["keysTotal"])
}

func TestLinkAndUnlinkClient(t *testing.T) {
	s := newProjectsRouter(t)
	owner := s.seedUser(t, "owner@acme.dev", models.PlanEmpresarial)
	cookie := cookieFor(t, owner)

	w := doJSON(t, s.router, http.MethodPost, "/api/projects", gin.H{"name": "Launcher"}, cookie)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeBody(t, w)["id"].(string)

	w = doJSON(t, s.router, http.MethodPost, "/api/projects/"+id+"/link-client", gin.H{"email": "new@acme.dev"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	// second link is a conflict
	w = doJSON(t, s.router, http.MethodPost, "/api/projects/"+id+"/link-client", gin.H{"email": "new@acme.dev"}, cookie)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "já vinculado")

	w = doJSON(t, s.router, http.MethodPost, "/api/projects/"+id+"/unlink-client", gin.H{"email": "new@acme.dev"}, cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s.router, http.MethodPost, "/api/projects/"+id+"/unlink-client", gin.H{"email": "new@acme.dev"}, cookie)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "não está vinculado")
}

func TestLinkClientUnknownProject(t *testing.T) {
	s := newProjectsRouter(t)
	owner := s.seedUser(t, "owner@acme.dev", models.PlanEmpresarial)

	w := doJSON(t, s.router, http.MethodPost, "/api/projects/"+primitive.NewObjectID().Hex()+"/link-client",
		gin.H{"email": "new@acme.dev"}, cookieFor(t, owner))
	require.Equal(t, http.StatusNotFound, w.Code)
}
