package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/auth"
	"github.com/keyforge/keyforge/internal/config"
	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/internal/sessions"
	"github.com/keyforge/keyforge/internal/users"
	"github.com/keyforge/keyforge/pkg/middleware"
)

const testSecret = "handlers-test-secret"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Environment: "test"},
		JWT:    config.JWTConfig{Secret: testSecret, TokenTTL: time.Hour},
	}
}

// memUserRepo is an in-memory users.Repository.
type memUserRepo struct {
	mu   sync.Mutex
	rows map[primitive.ObjectID]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{rows: map[primitive.ObjectID]*models.User{}}
}

func (r *memUserRepo) add(u *models.User) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	r.rows[u.ID] = u
	return u
}

func (r *memUserRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	u.Email = models.NormalizeEmail(u.Email)
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	return r.add(u), nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id], nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = models.NormalizeEmail(email)
	for _, u := range r.rows {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) UpdateProfile(ctx context.Context, id primitive.ObjectID, fields bson.M) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.rows[id]
	if u == nil {
		return nil, nil
	}
	if v, ok := fields["name"].(string); ok {
		u.Name = v
	}
	if v, ok := fields["email"].(string); ok {
		u.Email = v
	}
	if v, ok := fields["image"].(string); ok {
		u.Image = v
	}
	u.UpdatedAt = time.Now().UTC()
	return u, nil
}

func (r *memUserRepo) SetPassword(ctx context.Context, id primitive.ObjectID, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u := r.rows[id]; u != nil {
		u.Password = hash
	}
	return nil
}

func (r *memUserRepo) SetIntegrations(ctx context.Context, id primitive.ObjectID, integrations []models.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u := r.rows[id]; u != nil {
		u.Integrations = integrations
	}
	return nil
}

func (r *memUserRepo) ApplyPlan(ctx context.Context, id primitive.ObjectID, plan models.Plan, paidAt, expiresAt time.Time, transactionHash, externalID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.rows[id]
	if u == nil {
		return nil, nil
	}
	u.Plan = plan
	u.PlanPaidAt = &paidAt
	u.PlanExpiresAt = &expiresAt
	u.PlanLastTransactionHash = transactionHash
	u.PlanExternalID = externalID
	return u, nil
}

// memSessionRepo is an in-memory sessions.Repository.
type memSessionRepo struct {
	mu   sync.Mutex
	rows []*models.Session
}

func (r *memSessionRepo) Create(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	r.rows = append(r.rows, s)
	return nil
}

func (r *memSessionRepo) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Session
	for _, s := range r.rows {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memSessionRepo) DeleteByID(ctx context.Context, userID, id primitive.ObjectID) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.rows {
		if s.UserID == userID && s.ID == id {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return s, nil
		}
	}
	return nil, nil
}

func (r *memSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.rows {
		if s.Token == token {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// apiStack bundles the pieces most handler tests need: a router with the
// auth middleware wired over in-memory users and sessions.
type apiStack struct {
	router      *gin.Engine
	api         *gin.RouterGroup
	authed      gin.HandlerFunc
	userRepo    *memUserRepo
	sessionRepo *memSessionRepo
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
}

func newAPIStack(t *testing.T) *apiStack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	userRepo := newMemUserRepo()
	sessionRepo := &memSessionRepo{}
	usersSvc := users.NewService(userRepo)
	router := gin.New()
	return &apiStack{
		router:      router,
		api:         router.Group("/api"),
		authed:      middleware.RequireUser(testSecret, usersSvc),
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		usersSvc:    usersSvc,
		sessionsSvc: sessions.NewService(sessionRepo),
	}
}

// seedUser stores a user with the given plan and a known password.
func (s *apiStack) seedUser(t *testing.T, email string, plan models.Plan) *models.User {
	t.Helper()
	hash, err := auth.HashPassword("sup3r-s3cret")
	require.NoError(t, err)
	return s.userRepo.add(&models.User{
		Name:     "Test User",
		Email:    email,
		Password: hash,
		Plan:     plan,
	})
}

// cookieFor signs a session token for the user and wraps it in the auth cookie.
func cookieFor(t *testing.T, u *models.User) *http.Cookie {
	t.Helper()
	token, err := auth.SignToken(testSecret, u, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CookieName, Value: token}
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, jsonBody(t, body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}
