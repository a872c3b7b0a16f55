package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/dashboard"
	"github.com/keyforge/keyforge/internal/models"
)

type stubDashLinks struct{}

func (stubDashLinks) ListByProjects(ctx context.Context, projectIDs []primitive.ObjectID) ([]models.CollectionLink, error) {
	var out []models.CollectionLink
	for _, id := range projectIDs {
		out = append(out, models.CollectionLink{ProjectID: id, CollectionID: "int1-licenses-keys"})
	}
	return out, nil
}

func (stubDashLinks) CountByProjects(ctx context.Context, projectIDs []primitive.ObjectID, createdBefore *time.Time) (int64, error) {
	return int64(len(projectIDs)), nil
}

type stubDashKeys struct{ n int64 }

func (s stubDashKeys) SumCollectionKeys(ctx context.Context, user *models.User, collectionIDs []string) int64 {
	return s.n * int64(len(collectionIDs))
}

type stubDashResets struct{ n int64 }

func (s stubDashResets) CountBetween(ctx context.Context, projectIDs []primitive.ObjectID, start, end time.Time) (int64, error) {
	return s.n, nil
}

func TestDashboardOverview(t *testing.T) {
	s := newAPIStack(t)
	owner := s.seedUser(t, "owner@acme.dev", models.PlanEmpresarial)

	projRepo := newMemProjectRepo()
	require.NoError(t, projRepo.Create(context.Background(), &models.Project{Name: "Launcher", Owner: owner.ID}))

	svc := dashboard.NewService(projRepo, s.userRepo, stubDashLinks{}, stubDashKeys{n: 9}, stubDashResets{n: 3})
	NewDashboardHandler(svc).Register(s.api, s.authed)

	w := doJSON(t, s.router, http.MethodGet, "/api/dashboard/overview", nil, cookieFor(t, owner))
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, "empresarial", body["role"])
	require.EqualValues(t, 1, body["projectsTotal"])
	require.EqualValues(t, 1, body["collectionsTotal"])
	require.EqualValues(t, 9, body["keysActiveTotal"])
	require.EqualValues(t, 3, body["resetsToday"])
	require.NotEmpty(t, body["announcements"])
	require.Empty(t, body["giveaways"])
}

func TestDashboardOverviewClientRole(t *testing.T) {
	s := newAPIStack(t)
	owner := s.seedUser(t, "owner@acme.dev", models.PlanEmpresarial)
	client := s.seedUser(t, "client@corp.dev", models.PlanNone)

	projRepo := newMemProjectRepo()
	require.NoError(t, projRepo.Create(context.Background(), &models.Project{
		Name:  "Launcher",
		Owner: owner.ID,
		LinkedClients: []models.LinkedClient{
			{Email: client.Email},
		},
	}))

	svc := dashboard.NewService(projRepo, s.userRepo, stubDashLinks{}, stubDashKeys{n: 4}, stubDashResets{})
	NewDashboardHandler(svc).Register(s.api, s.authed)

	w := doJSON(t, s.router, http.MethodGet, "/api/dashboard/overview", nil, cookieFor(t, client))
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, "client", body["role"])
	require.EqualValues(t, 1, body["projectsTotal"])
	require.EqualValues(t, 4, body["keysActiveTotal"])
}

func TestDashboardOverviewRequiresAuth(t *testing.T) {
	s := newAPIStack(t)
	svc := dashboard.NewService(newMemProjectRepo(), s.userRepo, stubDashLinks{}, stubDashKeys{}, stubDashResets{})
	NewDashboardHandler(svc).Register(s.api, s.authed)

	w := doJSON(t, s.router, http.MethodGet, "/api/dashboard/overview", nil, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
