package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/auth"
	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/internal/sessions"
	usersvc "github.com/keyforge/keyforge/internal/users"
)

const testSecret = "secret-for-tests"

type fakeLoader struct {
	user *models.User
	err  error
}

func (f *fakeLoader) GetByID(ctx context.Context, hexID string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func authedRouter(loader *fakeLoader) *gin.Engine {
	r := gin.New()
	r.Use(RequireUser(testSecret, loader))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(200, gin.H{"email": CurrentUser(c).Email})
	})
	return r
}

func signedCookie(t *testing.T, u *models.User) *http.Cookie {
	t.Helper()
	token, err := auth.SignToken(testSecret, u, time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CookieName, Value: token}
}

func TestRequireUser_NoCookie(t *testing.T) {
	r := authedRouter(&fakeLoader{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/me", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireUser_BadToken(t *testing.T) {
	r := authedRouter(&fakeLoader{})
	rq := httptest.NewRequest("GET", "/me", nil)
	rq.AddCookie(&http.Cookie{Name: auth.CookieName, Value: "not-a-jwt"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, rq)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireUser_OK(t *testing.T) {
	u := &models.User{ID: primitive.NewObjectID(), Email: "dev@corp.dev"}
	r := authedRouter(&fakeLoader{user: u})
	rq := httptest.NewRequest("GET", "/me", nil)
	rq.AddCookie(signedCookie(t, u))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, rq)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "dev@corp.dev")
}

func TestRequireUser_DeletedAccount(t *testing.T) {
	u := &models.User{ID: primitive.NewObjectID(), Email: "gone@corp.dev"}
	r := authedRouter(&fakeLoader{err: usersvc.ErrNotFound})
	rq := httptest.NewRequest("GET", "/me", nil)
	rq.AddCookie(signedCookie(t, u))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, rq)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "Usuário não encontrado")
}

func TestRequireUser_LoaderFailure(t *testing.T) {
	u := &models.User{ID: primitive.NewObjectID(), Email: "dev@corp.dev"}
	r := authedRouter(&fakeLoader{err: errors.New("mongo: network timeout")})
	rq := httptest.NewRequest("GET", "/me", nil)
	rq.AddCookie(signedCookie(t, u))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, rq)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireUser_RevokedToken(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	sessions.SetRevocationClient(redis.NewClient(&redis.Options{Addr: m.Addr()}))
	defer sessions.SetRevocationClient(nil)

	u := &models.User{ID: primitive.NewObjectID(), Email: "dev@corp.dev"}
	cookie := signedCookie(t, u)
	sessions.RevokeToken(context.Background(), cookie.Value, time.Hour)

	r := authedRouter(&fakeLoader{user: u})
	rq := httptest.NewRequest("GET", "/me", nil)
	rq.AddCookie(cookie)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, rq)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
