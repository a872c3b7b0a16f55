package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/keyforge/keyforge/internal/auth"
	"github.com/keyforge/keyforge/internal/config"
	"github.com/keyforge/keyforge/internal/database"
	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/internal/sessions"
	"github.com/keyforge/keyforge/internal/storage"
	"github.com/keyforge/keyforge/internal/users"
	"github.com/keyforge/keyforge/pkg/logger"
	"github.com/keyforge/keyforge/pkg/middleware"
)

// maxAvatarBytes limits inline avatar uploads (post-compression on the
// frontend).
const maxAvatarBytes = 512 * 1024

// ProfileRequest is a partial update; nil means "leave untouched".
type ProfileRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Image *string `json:"image"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type RevokeSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type ConnectIntegrationRequest struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

type DisconnectIntegrationRequest struct {
	ID string `json:"id"`
}

// SettingsHandler serves profile, password, device-session and integration
// management. Avatars go to MinIO when configured, otherwise they stay
// inline on the user document.
type SettingsHandler struct {
	cfg         *config.Config
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	avatars     *storage.AvatarStore
}

func NewSettingsHandler(cfg *config.Config, u *users.Service, s *sessions.Service, avatars *storage.AvatarStore) *SettingsHandler {
	return &SettingsHandler{cfg: cfg, usersSvc: u, sessionsSvc: s, avatars: avatars}
}

// Register routes under /settings
func (h *SettingsHandler) Register(rg *gin.RouterGroup, authed gin.HandlerFunc) {
	s := rg.Group("/settings", authed)
	s.PATCH("/profile", h.UpdateProfile)
	s.POST("/change-password", h.ChangePassword)
	s.GET("/sessions", h.ListSessions)
	s.DELETE("/sessions", h.RevokeSession)
	s.GET("/integrations", h.ListIntegrations)
	s.POST("/integrations/connect", h.ConnectIntegration)
	s.POST("/integrations/disconnect", h.DisconnectIntegration)
}

func (h *SettingsHandler) UpdateProfile(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Corpo da requisição inválido."})
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nome não pode ser vazio."})
		return
	}
	if req.Email != nil && strings.TrimSpace(*req.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email não pode ser vazio."})
		return
	}

	var name, email, image string
	if req.Name != nil {
		name = *req.Name
	}
	if req.Email != nil {
		email = *req.Email
	}
	if req.Image != nil {
		img := *req.Image
		if !strings.HasPrefix(img, "data:image/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Imagem inválida. Deve ser uma string base64 de imagem."})
			return
		}
		if len(img) > maxAvatarBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Imagem muito grande. Máximo permitido: 0.5 MB."})
			return
		}
		image = img
		if h.avatars != nil && storage.IsDataURL(img) {
			url, err := h.avatars.PutAvatar(c.Request.Context(), user.ID.Hex(), img)
			if err != nil {
				logger.Warnf("store avatar for user %s: %v", user.ID.Hex(), err)
			} else {
				image = url
			}
		}
	}

	updated, err := h.usersSvc.UpdateProfile(c.Request.Context(), user.ID, name, email, image)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Usuário não encontrado."})
			return
		}
		logger.Errorf("update profile: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao atualizar perfil."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"name": updated.Name, "email": updated.Email, "image": orNil(updated.Image)})
}

func (h *SettingsHandler) ChangePassword(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Corpo da requisição inválido."})
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Preencha a senha atual e nova."})
		return
	}

	err := h.usersSvc.ChangePassword(c.Request.Context(), user.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, users.ErrWrongPassword) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Senha atual incorreta."})
			return
		}
		logger.Errorf("change password: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao alterar senha."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Senha alterada com sucesso."})
}

func (h *SettingsHandler) ListSessions(c *gin.Context) {
	user := middleware.CurrentUser(c)

	views, err := h.sessionsSvc.List(c.Request.Context(), user.ID, middleware.CurrentToken(c))
	if err != nil {
		logger.Errorf("list sessions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao buscar sessões."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views})
}

func (h *SettingsHandler) RevokeSession(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req RevokeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID da sessão é obrigatório."})
		return
	}

	revoked, err := h.sessionsSvc.Revoke(c.Request.Context(), user.ID, req.SessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Sessão não encontrada."})
			return
		}
		logger.Errorf("revoke session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao revogar sessão."})
		return
	}

	// Kill the revoked device's token for its remaining lifetime.
	if remaining := auth.TokenRemaining(h.cfg.JWT.Secret, revoked.Token); remaining > 0 {
		sessions.RevokeToken(c.Request.Context(), revoked.Token, remaining)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Sessão revogada com sucesso."})
}

func (h *SettingsHandler) ListIntegrations(c *gin.Context) {
	user := middleware.CurrentUser(c)
	integrations := user.Integrations
	if integrations == nil {
		integrations = []models.Integration{}
	}
	c.JSON(http.StatusOK, gin.H{"integrations": integrations})
}

func (h *SettingsHandler) ConnectIntegration(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req ConnectIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" || req.URI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID e URI são obrigatórios."})
		return
	}
	if !strings.HasPrefix(req.URI, "mongodb://") && !strings.HasPrefix(req.URI, "mongodb+srv://") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "URI inválida. Deve começar com mongodb:// ou mongodb+srv://"})
		return
	}

	// Dial once before saving so an unreachable URI fails loudly here
	// instead of silently zeroing every later listing.
	client, err := database.ConnectExternal(c.Request.Context(), req.URI, h.cfg.ExternalDB.Timeout)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Não foi possível conectar ao banco informado."})
		return
	}
	disconnect(c, client)

	integrations, err := h.usersSvc.ConnectIntegration(c.Request.Context(), user.ID, req.ID, req.URI)
	if err != nil {
		logger.Errorf("connect integration: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao conectar integração."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"integrations": integrations})
}

func (h *SettingsHandler) DisconnectIntegration(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req DisconnectIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID é obrigatório."})
		return
	}

	integrations, err := h.usersSvc.DisconnectIntegration(c.Request.Context(), user.ID, req.ID)
	if err != nil {
		logger.Errorf("disconnect integration: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao desconectar integração."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"integrations": integrations})
}

func disconnect(c *gin.Context, client *mongo.Client) {
	if err := client.Disconnect(c.Request.Context()); err != nil {
		logger.Warnf("disconnect external client: %v", err)
	}
}
