package projects

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/models"
)

type fakeRepo struct {
	projects map[primitive.ObjectID]*models.Project
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{projects: map[primitive.ObjectID]*models.Project{}}
}

func (f *fakeRepo) Create(ctx context.Context, p *models.Project) error {
	p.ID = primitive.NewObjectID()
	f.projects[p.ID] = p
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	for _, p := range f.projects {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListVisible(ctx context.Context, userID primitive.ObjectID, email string) ([]models.Project, error) {
	var out []models.Project
	for _, p := range f.projects {
		if p.Owner == userID || p.HasLinkedClient(email) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListByClientEmail(ctx context.Context, email string) ([]models.Project, error) {
	var out []models.Project
	for _, p := range f.projects {
		if p.HasLinkedClient(email) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Project, error) {
	var out []models.Project
	for _, id := range ids {
		if p, ok := f.projects[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountVisibleCreatedBefore(ctx context.Context, userID primitive.ObjectID, email string, before time.Time) (int64, error) {
	var n int64
	for _, p := range f.projects {
		if (p.Owner == userID || p.HasLinkedClient(email)) && !p.CreatedAt.After(before) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) AddLinkedClient(ctx context.Context, id primitive.ObjectID, client models.LinkedClient) error {
	p, ok := f.projects[id]
	if !ok {
		return errors.New("missing project")
	}
	p.LinkedClients = append(p.LinkedClients, client)
	return nil
}

func (f *fakeRepo) RemoveLinkedClient(ctx context.Context, id primitive.ObjectID, email string) error {
	p, ok := f.projects[id]
	if !ok {
		return errors.New("missing project")
	}
	out := p.LinkedClients[:0]
	for _, c := range p.LinkedClients {
		if c.Email != email {
			out = append(out, c)
		}
	}
	p.LinkedClients = out
	return nil
}

type fakeUsers struct {
	byEmail map[string]*models.User
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return f.byEmail[email], nil
}

type fakeCounters struct {
	links map[primitive.ObjectID]int64
	keys  map[primitive.ObjectID]int64
}

func (f *fakeCounters) CountByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	return f.links[projectID], nil
}

func (f *fakeCounters) CountProjectKeys(ctx context.Context, user *models.User, projectID primitive.ObjectID) (int64, error) {
	return f.keys[projectID], nil
}

func newTestService(repo *fakeRepo, users *fakeUsers) (*Service, *fakeCounters) {
	if users == nil {
		users = &fakeUsers{byEmail: map[string]*models.User{}}
	}
	counters := &fakeCounters{links: map[primitive.ObjectID]int64{}, keys: map[primitive.ObjectID]int64{}}
	return NewService(repo, users, counters, counters), counters
}

func empresarialUser() *models.User {
	return &models.User{ID: primitive.NewObjectID(), Email: "owner@acme.dev", Plan: models.PlanEmpresarial}
}

func clientUser() *models.User {
	return &models.User{ID: primitive.NewObjectID(), Email: "client@acme.dev", Plan: models.PlanClient}
}

func TestCreateRequiresEmpresarial(t *testing.T) {
	svc, _ := newTestService(newFakeRepo(), nil)
	for _, u := range []*models.User{clientUser(), {ID: primitive.NewObjectID(), Plan: models.PlanNone}} {
		if _, err := svc.Create(context.Background(), u, CreateParams{Name: "App"}); err != ErrAccessDenied {
			t.Errorf("plan %q: expected ErrAccessDenied, got %v", u.Plan, err)
		}
	}
}

func TestCreateSlugAndDefaults(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, nil)
	owner := empresarialUser()

	got, err := svc.Create(context.Background(), owner, CreateParams{Name: "  Aplicação de Testes  "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Name != "Aplicação de Testes" {
		t.Errorf("name not trimmed: %q", got.Name)
	}
	if got.Status != string(models.ProjectActive) {
		t.Errorf("expected default status active, got %q", got.Status)
	}
	oid, _ := primitive.ObjectIDFromHex(got.ID)
	if repo.projects[oid].Slug != "aplicacao-de-testes" {
		t.Errorf("unexpected slug %q", repo.projects[oid].Slug)
	}
}

func TestCreateDuplicateSlug(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, nil)
	owner := empresarialUser()

	if _, err := svc.Create(context.Background(), owner, CreateParams{Name: "My App"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	// Same slug from a different owner is still rejected.
	if _, err := svc.Create(context.Background(), empresarialUser(), CreateParams{Name: "my app"}); err != ErrDuplicateSlug {
		t.Errorf("expected ErrDuplicateSlug, got %v", err)
	}
}

func TestCreateSeedsClient(t *testing.T) {
	repo := newFakeRepo()
	account := clientUser()
	account.Name = "Cliente Um"
	users := &fakeUsers{byEmail: map[string]*models.User{account.Email: account}}
	svc, _ := newTestService(repo, users)

	got, err := svc.Create(context.Background(), empresarialUser(), CreateParams{Name: "App", ClientEmail: "Client@Acme.dev "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.ClientsCount != 1 {
		t.Fatalf("expected 1 linked client, got %d", got.ClientsCount)
	}
	oid, _ := primitive.ObjectIDFromHex(got.ID)
	linked := repo.projects[oid].LinkedClients[0]
	if linked.Email != "client@acme.dev" || linked.Name != "Cliente Um" || linked.UserID == nil || *linked.UserID != account.ID {
		t.Errorf("client not resolved: %+v", linked)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(newFakeRepo(), nil)
	owner := empresarialUser()

	if _, err := svc.Create(context.Background(), owner, CreateParams{Name: "   "}); err != ErrNameRequired {
		t.Errorf("blank name: expected ErrNameRequired, got %v", err)
	}
	if _, err := svc.Create(context.Background(), owner, CreateParams{Name: "App", Status: "bogus"}); err != ErrInvalidStatus {
		t.Errorf("bad status: expected ErrInvalidStatus, got %v", err)
	}
	if _, err := svc.Create(context.Background(), owner, CreateParams{Name: "App", ClientEmail: "not-an-email"}); err != ErrInvalidEmail {
		t.Errorf("bad email: expected ErrInvalidEmail, got %v", err)
	}
}

func TestListVisibility(t *testing.T) {
	repo := newFakeRepo()
	svc, counters := newTestService(repo, nil)
	owner := empresarialUser()
	client := clientUser()

	mine, _ := svc.Create(context.Background(), owner, CreateParams{Name: "Mine", ClientEmail: client.Email})
	_, _ = svc.Create(context.Background(), empresarialUser(), CreateParams{Name: "Other"})

	mineID, _ := primitive.ObjectIDFromHex(mine.ID)
	counters.links[mineID] = 2
	counters.keys[mineID] = 40

	got, err := svc.List(context.Background(), owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("owner should see 1 project, got %d", len(got))
	}
	if got[0].CollectionsCount != 2 || got[0].KeysTotal != 40 {
		t.Errorf("counts not propagated: %+v", got[0])
	}

	asClient, err := svc.List(context.Background(), client)
	if err != nil {
		t.Fatalf("list as client: %v", err)
	}
	if len(asClient) != 1 || asClient[0].Name != "Mine" {
		t.Fatalf("client should see the linked project, got %+v", asClient)
	}
}

func TestLinkAndUnlinkClient(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, nil)
	owner := empresarialUser()

	created, _ := svc.Create(context.Background(), owner, CreateParams{Name: "App"})

	if err := svc.LinkClient(context.Background(), owner, created.ID, "New@Client.dev"); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := svc.LinkClient(context.Background(), owner, created.ID, "new@client.dev"); err != ErrAlreadyLinked {
		t.Errorf("expected ErrAlreadyLinked, got %v", err)
	}
	if err := svc.UnlinkClient(context.Background(), owner, created.ID, "new@client.dev"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if err := svc.UnlinkClient(context.Background(), owner, created.ID, "new@client.dev"); err != ErrNotLinked {
		t.Errorf("expected ErrNotLinked, got %v", err)
	}
}

func TestLinkClientAuthorization(t *testing.T) {
	repo := newFakeRepo()
	svc, _ := newTestService(repo, nil)
	owner := empresarialUser()
	created, _ := svc.Create(context.Background(), owner, CreateParams{Name: "App"})

	// A plain client cannot manage links, even on projects they can see.
	if err := svc.LinkClient(context.Background(), clientUser(), created.ID, "x@y.dev"); err != ErrAccessDenied {
		t.Errorf("client: expected ErrAccessDenied, got %v", err)
	}
	// Any empresarial account passes the check, owner or not.
	if err := svc.LinkClient(context.Background(), empresarialUser(), created.ID, "x@y.dev"); err != nil {
		t.Errorf("other empresarial: expected success, got %v", err)
	}
}

func TestLinkClientUnknownProject(t *testing.T) {
	svc, _ := newTestService(newFakeRepo(), nil)
	owner := empresarialUser()

	if err := svc.LinkClient(context.Background(), owner, "not-hex", "x@y.dev"); err != ErrNotFound {
		t.Errorf("bad id: expected ErrNotFound, got %v", err)
	}
	if err := svc.LinkClient(context.Background(), owner, primitive.NewObjectID().Hex(), "x@y.dev"); err != ErrNotFound {
		t.Errorf("missing project: expected ErrNotFound, got %v", err)
	}
}
