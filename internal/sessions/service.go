package sessions

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/models"
)

// ErrNotFound is returned when revoking a session that does not exist or
// belongs to someone else.
var ErrNotFound = errors.New("session not found")

// Service wraps repository operations with business logic
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service { return &Service{repo: r} }

// Create records a device session for a fresh login. Device and location are
// client-reported and best-effort.
func (s *Service) Create(ctx context.Context, userID primitive.ObjectID, token, device, location, ip string) error {
	if device == "" {
		device = "Unknown Device"
	}
	if location == "" {
		location = "Unknown Location"
	}
	return s.repo.Create(ctx, &models.Session{
		UserID:   userID,
		Token:    token,
		Device:   device,
		Location: location,
		IP:       ip,
	})
}

// List returns the user's device sessions. The session whose token matches
// currentToken is flagged so the UI can mark "this device".
type View struct {
	ID         string `json:"id"`
	Device     string `json:"device"`
	Location   string `json:"location"`
	LastActive string `json:"lastActive"`
	Current    bool   `json:"current"`
}

func (s *Service) List(ctx context.Context, userID primitive.ObjectID, currentToken string) ([]View, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(rows))
	for _, r := range rows {
		out = append(out, View{
			ID:         r.ID.Hex(),
			Device:     r.Device,
			Location:   r.Location,
			LastActive: r.LastActive.UTC().Format("2006-01-02T15:04:05.000Z"),
			Current:    r.Token == currentToken,
		})
	}
	return out, nil
}

// Revoke deletes a session by id and returns it so the caller can blacklist
// its token for the remaining lifetime.
func (s *Service) Revoke(ctx context.Context, userID primitive.ObjectID, sessionID string) (*models.Session, error) {
	oid, err := primitive.ObjectIDFromHex(sessionID)
	if err != nil {
		return nil, ErrNotFound
	}
	sess, err := s.repo.DeleteByID(ctx, userID, oid)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Logout removes the session row matching the presented token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.repo.DeleteByToken(ctx, token)
}
