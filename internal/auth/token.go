package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keyforge/keyforge/internal/models"
)

// CookieName is the HTTP-only cookie the session token travels in.
const CookieName = "auth_token"

// ErrInvalidToken covers signature, expiry and claim failures. Handlers map
// it to 401 without detail.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the decoded content of a session token.
type Identity struct {
	UserID string
	Email  string
}

// SignToken creates the signed session JWT for a user.
func SignToken(secret string, u *models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":    u.ID.Hex(),
		"email": u.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyToken validates signature and expiry and returns the identity.
func VerifyToken(secret, tokenStr string) (Identity, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return Identity{}, ErrInvalidToken
	}
	mapc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	id, _ := mapc["id"].(string)
	email, _ := mapc["email"].(string)
	if id == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: id, Email: email}, nil
}

// TokenRemaining returns how long the token is still valid, zero when
// already expired or unreadable. Used to size the revocation blacklist TTL.
func TokenRemaining(secret, tokenStr string) time.Duration {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return 0
	}
	exp, err := tok.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	if d := time.Until(exp.Time); d > 0 {
		return d
	}
	return 0
}
