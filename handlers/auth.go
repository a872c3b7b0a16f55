package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/keyforge/keyforge/internal/auth"
	"github.com/keyforge/keyforge/internal/config"
	"github.com/keyforge/keyforge/internal/sessions"
	"github.com/keyforge/keyforge/internal/users"
	"github.com/keyforge/keyforge/pkg/logger"
	"github.com/keyforge/keyforge/pkg/middleware"
)

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest authenticates a user. Device and location are reported by the
// frontend and fall back to generic labels.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device"`
	Location string `json:"location"`
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
}

func NewAuthHandler(cfg *config.Config, u *users.Service, s *sessions.Service) *AuthHandler {
	return &AuthHandler{cfg: cfg, usersSvc: u, sessionsSvc: s}
}

// Register routes under /auth
func (h *AuthHandler) Register(rg *gin.RouterGroup, authed gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.POST("/register", h.SignUp)
	a.POST("/login", h.Login)
	a.GET("/me", authed, h.Me)
	a.POST("/logout", authed, h.Logout)
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Corpo da requisição inválido."})
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Preencha nome, e-mail e senha."})
		return
	}

	u, err := h.usersSvc.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Já existe uma conta com esse e-mail."})
			return
		}
		logger.Errorf("register: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao registrar."})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Conta criada com sucesso.",
		"user": gin.H{
			"id":    u.ID.Hex(),
			"name":  u.Name,
			"email": u.Email,
			"plan":  u.Plan,
		},
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Corpo da requisição inválido."})
		return
	}
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Preencha e-mail e senha."})
		return
	}

	u, err := h.usersSvc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Credenciais inválidas."})
			return
		}
		logger.Errorf("login: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao fazer login."})
		return
	}

	token, err := auth.SignToken(h.cfg.JWT.Secret, u, h.cfg.JWT.TokenTTL)
	if err != nil {
		logger.Errorf("sign token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao fazer login."})
		return
	}

	if err := h.sessionsSvc.Create(c.Request.Context(), u.ID, token, req.Device, req.Location, c.ClientIP()); err != nil {
		logger.Warnf("create session for user %s: %v", u.ID.Hex(), err)
	}

	h.setCookie(c, token, int(h.cfg.JWT.TokenTTL.Seconds()))
	c.JSON(http.StatusOK, gin.H{
		"message": "Login efetuado com sucesso.",
		"user": gin.H{
			"id":    u.ID.Hex(),
			"name":  u.Name,
			"email": u.Email,
			"plan":  u.Plan,
		},
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	u := middleware.CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{
		"id":    u.ID.Hex(),
		"name":  u.Name,
		"email": u.Email,
		"image": orNil(u.Image),

		"plan":          u.Plan,
		"planPaidAt":    u.PlanPaidAt,
		"planExpiresAt": u.PlanExpiresAt,
		"planActive":    u.PlanActive(time.Now()),

		"planLastTransactionHash": orNil(u.PlanLastTransactionHash),
		"planExternalId":          orNil(u.PlanExternalID),
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.CurrentToken(c)
	if err := h.sessionsSvc.Logout(c.Request.Context(), token); err != nil {
		logger.Warnf("logout: %v", err)
	}
	if remaining := auth.TokenRemaining(h.cfg.JWT.Secret, token); remaining > 0 {
		sessions.RevokeToken(c.Request.Context(), token, remaining)
	}
	h.setCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logout efetuado com sucesso."})
}

func (h *AuthHandler) setCookie(c *gin.Context, token string, maxAge int) {
	secure := h.cfg.Server.Environment == "production"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, token, maxAge, "/", "", secure, true)
}

// orNil maps an empty string onto an explicit JSON null.
func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
