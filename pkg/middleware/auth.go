package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyforge/keyforge/internal/auth"
	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/internal/sessions"
	usersvc "github.com/keyforge/keyforge/internal/users"
)

const (
	userKey  = "user"
	tokenKey = "token"
)

// UserLoader resolves the account referenced by a verified token.
type UserLoader interface {
	GetByID(ctx context.Context, hexID string) (*models.User, error)
}

// RequireUser returns a Gin middleware that authenticates the session cookie:
// verify the JWT, reject blacklisted tokens, load the account and stash it in
// the request context.
func RequireUser(secret string, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(auth.CookieName)
		if err != nil || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Não autenticado."})
			return
		}

		ident, err := auth.VerifyToken(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token inválido."})
			return
		}
		if sessions.IsTokenRevoked(c.Request.Context(), token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token inválido."})
			return
		}

		user, err := users.GetByID(c.Request.Context(), ident.UserID)
		if errors.Is(err, usersvc.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Usuário não encontrado."})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Erro interno."})
			return
		}

		c.Set(userKey, user)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// CurrentUser returns the authenticated user stored by RequireUser.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

// CurrentToken returns the raw session token stored by RequireUser.
func CurrentToken(c *gin.Context) string {
	v, ok := c.Get(tokenKey)
	if !ok {
		return ""
	}
	t, _ := v.(string)
	return t
}
