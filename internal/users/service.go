package users

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/auth"
	"github.com/keyforge/keyforge/internal/models"
)

var (
	// ErrEmailTaken is returned when registering an email that already has
	// an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrBadCredentials covers both unknown email and wrong password so the
	// login response does not reveal which one failed.
	ErrBadCredentials = errors.New("invalid credentials")
	// ErrNotFound is returned when a token references a deleted user.
	ErrNotFound = errors.New("user not found")
	// ErrWrongPassword is returned by ChangePassword when the current
	// password does not match.
	ErrWrongPassword = errors.New("current password incorrect")
)

// Service encapsulates account business logic
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service {
	return &Service{repo: r}
}

// Register creates an account with plan "none" and a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		Name:     strings.TrimSpace(name),
		Email:    email,
		Password: hash,
		Plan:     models.PlanNone,
	}
	return s.repo.Create(ctx, u)
}

// Authenticate verifies credentials and returns the account.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrBadCredentials
	}
	if err := auth.CheckPassword(u.Password, password); err != nil {
		return nil, ErrBadCredentials
	}
	return u, nil
}

// GetByID resolves a user by the hex id carried in a session token.
func (s *Service) GetByID(ctx context.Context, hexID string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(hexID)
	if err != nil {
		return nil, ErrNotFound
	}
	u, err := s.repo.GetByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// UpdateProfile applies a partial update of name, email and avatar image.
// Empty strings mean "not supplied"; the caller validates the fields it
// passes.
func (s *Service) UpdateProfile(ctx context.Context, id primitive.ObjectID, name, email, image string) (*models.User, error) {
	fields := bson.M{}
	if name != "" {
		fields["name"] = strings.TrimSpace(name)
	}
	if email != "" {
		fields["email"] = strings.ToLower(strings.TrimSpace(email))
	}
	if image != "" {
		fields["image"] = image
	}
	u, err := s.repo.UpdateProfile(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, id primitive.ObjectID, current, next string) error {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrNotFound
	}
	if err := auth.CheckPassword(u.Password, current); err != nil {
		return ErrWrongPassword
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	return s.repo.SetPassword(ctx, id, hash)
}

// ConnectIntegration stores (or replaces) an external database integration
// with its connection URI and marks it connected.
func (s *Service) ConnectIntegration(ctx context.Context, id primitive.ObjectID, integrationID, uri string) ([]models.Integration, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	next := models.Integration{
		ID:        integrationID,
		Name:      "MongoDB",
		Connected: true,
		Config:    &models.IntegrationConfig{URI: uri},
	}
	integrations := u.Integrations
	replaced := false
	for i := range integrations {
		if integrations[i].ID == integrationID {
			integrations[i] = next
			replaced = true
			break
		}
	}
	if !replaced {
		integrations = append(integrations, next)
	}
	if err := s.repo.SetIntegrations(ctx, id, integrations); err != nil {
		return nil, err
	}
	return integrations, nil
}

// DisconnectIntegration keeps the integration row but clears its connected
// flag and drops the stored URI.
func (s *Service) DisconnectIntegration(ctx context.Context, id primitive.ObjectID, integrationID string) ([]models.Integration, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	integrations := u.Integrations
	for i := range integrations {
		if integrations[i].ID == integrationID {
			integrations[i] = models.Integration{ID: integrationID, Name: "MongoDB", Connected: false}
		}
	}
	if err := s.repo.SetIntegrations(ctx, id, integrations); err != nil {
		return nil, err
	}
	return integrations, nil
}
