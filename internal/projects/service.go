package projects

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/pkg/logger"
)

var (
	ErrNameRequired  = errors.New("project name is required")
	ErrInvalidStatus = errors.New("invalid project status")
	ErrDuplicateSlug = errors.New("project slug already exists")
	ErrInvalidEmail  = errors.New("invalid email")
	ErrEmailRequired = errors.New("email is required")
	ErrAlreadyLinked = errors.New("client already linked")
	ErrNotLinked     = errors.New("client is not linked")
	ErrNotFound      = errors.New("project not found")
	ErrAccessDenied  = errors.New("access denied")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserLookup resolves accounts by email when linking clients.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// LinkCounter counts collection links attached to a project.
type LinkCounter interface {
	CountByProject(ctx context.Context, projectID primitive.ObjectID) (int64, error)
}

// KeyCounter sums live license keys across a project's linked collections
// using the given user's integrations.
type KeyCounter interface {
	CountProjectKeys(ctx context.Context, user *models.User, projectID primitive.ObjectID) (int64, error)
}

// Service implements project management and client linking.
type Service struct {
	repo  Repository
	users UserLookup
	links LinkCounter
	keys  KeyCounter
}

func NewService(repo Repository, users UserLookup, links LinkCounter, keys KeyCounter) *Service {
	return &Service{repo: repo, users: users, links: links, keys: keys}
}

// ClientView is the linked-client shape exposed to the API.
type ClientView struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Summary is the project card shown in listings.
type Summary struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Status           string       `json:"status"`
	ClientsCount     int          `json:"clientsCount"`
	CollectionsCount int64        `json:"collectionsCount"`
	KeysTotal        int64        `json:"keysTotal"`
	UpdatedAt        string       `json:"updatedAt"`
	LinkedClients    []ClientView `json:"linkedClients"`
}

func clientViews(clients []models.LinkedClient) []ClientView {
	out := make([]ClientView, 0, len(clients))
	for _, c := range clients {
		out = append(out, ClientView{Email: c.Email, Name: c.Name})
	}
	return out
}

func (s *Service) summarize(ctx context.Context, user *models.User, p *models.Project) Summary {
	collections, err := s.links.CountByProject(ctx, p.ID)
	if err != nil {
		logger.Warnf("count links for project %s: %v", p.ID.Hex(), err)
		collections = 0
	}
	keys, err := s.keys.CountProjectKeys(ctx, user, p.ID)
	if err != nil {
		logger.Warnf("count keys for project %s: %v", p.ID.Hex(), err)
		keys = 0
	}
	return Summary{
		ID:               p.ID.Hex(),
		Name:             p.Name,
		Status:           string(p.Status),
		ClientsCount:     len(p.LinkedClients),
		CollectionsCount: collections,
		KeysTotal:        keys,
		UpdatedAt:        p.UpdatedAt.UTC().Format(time.RFC3339),
		LinkedClients:    clientViews(p.LinkedClients),
	}
}

// List returns every project the user owns or is linked to as a client,
// with per-project collection and live key counts. Key counts use the
// requester's own integrations, so clients without integrations see zero.
func (s *Service) List(ctx context.Context, user *models.User) ([]Summary, error) {
	rows, err := s.repo.ListVisible(ctx, user.ID, strings.ToLower(user.Email))
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(rows))
	for i := range rows {
		out = append(out, s.summarize(ctx, user, &rows[i]))
	}
	return out, nil
}

// CreateParams carries the create-project input.
type CreateParams struct {
	Name        string
	Status      string
	ClientEmail string
}

// Create builds a project for an empresarial owner. The slug is derived from
// the name and must be unique across all owners. An optional client email
// seeds the linked-client list.
func (s *Service) Create(ctx context.Context, user *models.User, params CreateParams) (*Summary, error) {
	if user.Role() != models.RoleEmpresarial {
		return nil, ErrAccessDenied
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	status := models.ProjectStatus(params.Status)
	if status == "" {
		status = models.ProjectActive
	}
	if !models.ValidProjectStatus(status) {
		return nil, ErrInvalidStatus
	}

	slug := Slugify(name)
	existing, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateSlug
	}

	var linked []models.LinkedClient
	if email := strings.ToLower(strings.TrimSpace(params.ClientEmail)); email != "" {
		client, err := s.resolveClient(ctx, email)
		if err != nil {
			return nil, err
		}
		linked = append(linked, *client)
	}

	project := &models.Project{
		Name:          name,
		Slug:          slug,
		Status:        status,
		Owner:         user.ID,
		LinkedClients: linked,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, err
	}
	summary := Summary{
		ID:            project.ID.Hex(),
		Name:          project.Name,
		Status:        string(project.Status),
		ClientsCount:  len(project.LinkedClients),
		UpdatedAt:     project.UpdatedAt.UTC().Format(time.RFC3339),
		LinkedClients: clientViews(project.LinkedClients),
	}
	return &summary, nil
}

// resolveClient validates the email and fills in name and user id when an
// account with that email exists.
func (s *Service) resolveClient(ctx context.Context, email string) (*models.LinkedClient, error) {
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	client := &models.LinkedClient{Email: email}
	account, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account != nil {
		client.Name = account.Name
		client.UserID = &account.ID
	}
	return client, nil
}

// loadAuthorized fetches the project and checks the caller may manage its
// clients: the owner always can, and so can any empresarial user.
func (s *Service) loadAuthorized(ctx context.Context, user *models.User, projectID string) (*models.Project, error) {
	oid, err := primitive.ObjectIDFromHex(projectID)
	if err != nil {
		return nil, ErrNotFound
	}
	project, err := s.repo.GetByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrNotFound
	}
	if project.Owner != user.ID && user.Role() != models.RoleEmpresarial {
		return nil, ErrAccessDenied
	}
	return project, nil
}

// LinkClient grants a client email access to the project.
func (s *Service) LinkClient(ctx context.Context, user *models.User, projectID, email string) error {
	project, err := s.loadAuthorized(ctx, user, projectID)
	if err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ErrEmailRequired
	}
	if project.HasLinkedClient(email) {
		return ErrAlreadyLinked
	}
	client, err := s.resolveClient(ctx, email)
	if err != nil {
		return err
	}
	return s.repo.AddLinkedClient(ctx, project.ID, *client)
}

// UnlinkClient revokes a client email's access to the project.
func (s *Service) UnlinkClient(ctx context.Context, user *models.User, projectID, email string) error {
	project, err := s.loadAuthorized(ctx, user, projectID)
	if err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ErrEmailRequired
	}
	if !project.HasLinkedClient(email) {
		return ErrNotLinked
	}
	return s.repo.RemoveLinkedClient(ctx, project.ID, email)
}
