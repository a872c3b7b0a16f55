package dashboard

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/pkg/logger"
)

// No DST in Brazil since 2019, so a fixed offset is fine.
var saoPaulo = time.FixedZone("America/Sao_Paulo", -3*60*60)

// ProjectStore lists and counts the projects visible to a user.
type ProjectStore interface {
	ListVisible(ctx context.Context, userID primitive.ObjectID, email string) ([]models.Project, error)
	CountVisibleCreatedBefore(ctx context.Context, userID primitive.ObjectID, email string, before time.Time) (int64, error)
}

// UserStore resolves project owners for the client key-count path.
type UserStore interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// LinkStore reads collection links per project.
type LinkStore interface {
	ListByProjects(ctx context.Context, projectIDs []primitive.ObjectID) ([]models.CollectionLink, error)
	CountByProjects(ctx context.Context, projectIDs []primitive.ObjectID, createdBefore *time.Time) (int64, error)
}

// KeyCounter sums license documents across external collections using the
// given user's integrations. Unreachable collections count as zero.
type KeyCounter interface {
	SumCollectionKeys(ctx context.Context, user *models.User, collectionIDs []string) int64
}

// ResetStore counts HWID resets recorded in the app database.
type ResetStore interface {
	CountBetween(ctx context.Context, projectIDs []primitive.ObjectID, start, end time.Time) (int64, error)
}

// Service assembles the aggregate numbers for the dashboard overview.
type Service struct {
	projects ProjectStore
	users    UserStore
	links    LinkStore
	keys     KeyCounter
	resets   ResetStore

	now func() time.Time
}

func NewService(projects ProjectStore, users UserStore, links LinkStore, keys KeyCounter, resets ResetStore) *Service {
	return &Service{
		projects: projects,
		users:    users,
		links:    links,
		keys:     keys,
		resets:   resets,
		now:      time.Now,
	}
}

// Announcement is a static panel notice shown on the dashboard.
type Announcement struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	When         string `json:"when"`
	AuthorName   string `json:"authorName"`
	AuthorAvatar string `json:"authorAvatar,omitempty"`
	CTALabel     string `json:"ctaLabel,omitempty"`
	CTAHref      string `json:"ctaHref,omitempty"`
}

// Deltas carries day-over-day percentage strings. Metrics without history
// stay empty instead of faking a number.
type Deltas struct {
	Projects      string `json:"projects"`
	Collections   string `json:"collections"`
	Keys          string `json:"keys"`
	Resets        string `json:"resets"`
	LinkedClients string `json:"linkedClients"`
}

// Overview is the GET /dashboard/overview response body.
type Overview struct {
	Role               string         `json:"role"`
	ProjectsTotal      int            `json:"projectsTotal"`
	CollectionsTotal   int64          `json:"collectionsTotal"`
	KeysActiveTotal    int64          `json:"keysActiveTotal"`
	ResetsToday        int64          `json:"resetsToday"`
	LinkedClientsTotal int            `json:"linkedClientsTotal"`
	Deltas             Deltas         `json:"deltas"`
	Announcements      []Announcement `json:"announcements"`
	Giveaways          []Announcement `json:"giveaways"`
}

var announcements = []Announcement{
	{
		ID:           "n1",
		Title:        "Update — Sistema de geração de keys adicionado",
		Subtitle:     "Novo sistema de geração de keys disponível. Agora é possível criar e gerenciar keys com mais agilidade e controle no painel.",
		When:         "Hoje",
		AuthorName:   "Equipe",
		AuthorAvatar: "/avatar.jpg",
		CTALabel:     "Abrir keys",
		CTAHref:      "/keys",
	},
}

// dayRange returns the start and end of t's calendar day in São Paulo time.
func dayRange(t time.Time) (time.Time, time.Time) {
	local := t.In(saoPaulo)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, saoPaulo)
	return start, start.Add(24*time.Hour - time.Millisecond)
}

// fmtDeltaPct renders the change from prev to current as a signed percent
// string. Without a meaningful baseline it reports "+100%" for growth from
// zero and "" otherwise.
func fmtDeltaPct(current, prev int64) string {
	if prev <= 0 {
		if current > 0 {
			return "+100%"
		}
		return ""
	}
	pct := int(math.Round(float64(current-prev) / float64(prev) * 100))
	if pct == 0 {
		return ""
	}
	return fmt.Sprintf("%+d%%", pct)
}

// Overview computes the role-scoped aggregates for the user. Key totals are
// live counts against external integrations; dead integrations contribute
// zero rather than failing the page.
func (s *Service) Overview(ctx context.Context, user *models.User) (*Overview, error) {
	role := user.Role()
	email := models.NormalizeEmail(user.Email)

	visible, err := s.projects.ListVisible(ctx, user.ID, email)
	if err != nil {
		return nil, err
	}
	projectIDs := make([]primitive.ObjectID, len(visible))
	for i, p := range visible {
		projectIDs[i] = p.ID
	}

	linkedClientsTotal := 0
	if role == models.RoleEmpresarial {
		for _, p := range visible {
			if p.Owner == user.ID {
				linkedClientsTotal += len(p.LinkedClients)
			}
		}
	}

	collectionsTotal, err := s.links.CountByProjects(ctx, projectIDs, nil)
	if err != nil {
		return nil, err
	}

	keysActiveTotal, err := s.countActiveKeys(ctx, user, role, visible, projectIDs)
	if err != nil {
		return nil, err
	}

	start, end := dayRange(s.now())
	resetsToday, err := s.resets.CountBetween(ctx, projectIDs, start, end)
	if err != nil {
		logger.Warnf("dashboard: counting resets for user %s: %v", user.ID.Hex(), err)
		resetsToday = 0
	}

	_, yesterdayEnd := dayRange(s.now().Add(-24 * time.Hour))
	projectsPrev, err := s.projects.CountVisibleCreatedBefore(ctx, user.ID, email, yesterdayEnd)
	if err != nil {
		return nil, err
	}
	collectionsPrev, err := s.links.CountByProjects(ctx, projectIDs, &yesterdayEnd)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Role:               string(role),
		ProjectsTotal:      len(visible),
		CollectionsTotal:   collectionsTotal,
		KeysActiveTotal:    keysActiveTotal,
		ResetsToday:        resetsToday,
		LinkedClientsTotal: linkedClientsTotal,
		Deltas: Deltas{
			Projects:    fmtDeltaPct(int64(len(visible)), projectsPrev),
			Collections: fmtDeltaPct(collectionsTotal, collectionsPrev),
		},
		Announcements: announcements,
		Giveaways:     []Announcement{},
	}, nil
}

// countActiveKeys sums license documents in every linked collection. The
// empresarial path counts through the requester's own integrations; the
// client path counts each project through its owner's integrations.
func (s *Service) countActiveKeys(ctx context.Context, user *models.User, role models.Role, visible []models.Project, projectIDs []primitive.ObjectID) (int64, error) {
	if role == models.RoleEmpresarial {
		links, err := s.links.ListByProjects(ctx, projectIDs)
		if err != nil {
			return 0, err
		}
		ids := make([]string, len(links))
		for i, l := range links {
			ids[i] = l.CollectionID
		}
		return s.keys.SumCollectionKeys(ctx, user, ids), nil
	}

	var total int64
	for _, p := range visible {
		owner, err := s.users.GetByID(ctx, p.Owner)
		if err != nil {
			return 0, err
		}
		if owner == nil {
			continue
		}
		links, err := s.links.ListByProjects(ctx, []primitive.ObjectID{p.ID})
		if err != nil {
			return 0, err
		}
		ids := make([]string, len(links))
		for i, l := range links {
			ids[i] = l.CollectionID
		}
		total += s.keys.SumCollectionKeys(ctx, owner, ids)
	}
	return total, nil
}
