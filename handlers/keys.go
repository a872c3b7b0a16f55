package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyforge/keyforge/internal/licensing"
	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/pkg/logger"
	"github.com/keyforge/keyforge/pkg/middleware"
)

type GenerateKeysRequest struct {
	ProjectID      string `json:"projectId"`
	CollectionID   string `json:"collectionId"`
	Quantity       int    `json:"quantity"`
	ExpirationDays *int   `json:"expirationDays"`
	Length         int    `json:"length"`
	Prefix         string `json:"prefix"`
	Dashed         *bool  `json:"dashed"`
}

type KeyActionRequest struct {
	KeyID string `json:"keyId"`
}

// KeysHandler serves key listing, issuance and lifecycle actions.
type KeysHandler struct {
	engine *licensing.Engine
}

func NewKeysHandler(engine *licensing.Engine) *KeysHandler {
	return &KeysHandler{engine: engine}
}

// Register routes under /keys
func (h *KeysHandler) Register(rg *gin.RouterGroup, authed gin.HandlerFunc) {
	k := rg.Group("/keys", authed)
	k.GET("", h.List)
	k.POST("/generate", h.Generate)
	k.POST("/reset-hwid", h.ResetHWID)
	k.POST("/remove", h.Remove)
}

func (h *KeysHandler) List(c *gin.Context) {
	user := middleware.CurrentUser(c)

	rows, err := h.engine.ListKeys(c.Request.Context(), user)
	if err != nil {
		logger.Errorf("list keys: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao buscar keys."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": user.Role(), "keys": rows})
}

func (h *KeysHandler) Generate(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req GenerateKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Corpo da requisição inválido."})
		return
	}

	result, err := h.engine.Generate(c.Request.Context(), user, licensing.GenerateParams{
		ProjectID:      req.ProjectID,
		CollectionID:   req.CollectionID,
		Quantity:       req.Quantity,
		ExpirationDays: req.ExpirationDays,
		Length:         req.Length,
		Prefix:         req.Prefix,
		Dashed:         req.Dashed,
	})
	if err != nil {
		switch {
		case errors.Is(err, licensing.ErrPlanRequired):
			c.JSON(http.StatusForbidden, gin.H{"error": "Seu plano não permite gerar keys."})
		case errors.Is(err, licensing.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": "projectId e collectionId são obrigatórios."})
		case errors.Is(err, licensing.ErrProjectNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Projeto não encontrado ou sem permissão."})
		case errors.Is(err, licensing.ErrAccessDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "Projeto não encontrado ou você não está vinculado."})
		case errors.Is(err, licensing.ErrCollectionNotLinked):
			c.JSON(http.StatusNotFound, gin.H{"error": "Essa coleção não está vinculada a esse projeto."})
		case errors.Is(err, licensing.ErrMalformedRef):
			c.JSON(http.StatusBadRequest, gin.H{"error": "collectionId inválido."})
		case errors.Is(err, licensing.ErrIntegrationUnavailable):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Integração desconectada ou sem URI."})
		case errors.Is(err, licensing.ErrGenerationFailed):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Falha ao gerar keys (duplicadas)."})
		default:
			logger.Errorf("generate keys: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao gerar keys."})
		}
		return
	}

	c.JSON(http.StatusOK, struct {
		OK bool `json:"ok"`
		*licensing.GenerateResult
	}{true, result})
}

func (h *KeysHandler) ResetHWID(c *gin.Context) {
	h.mutate(c, h.engine.ResetHWID, "Erro ao resetar HWID.")
}

func (h *KeysHandler) Remove(c *gin.Context) {
	h.mutate(c, h.engine.RemoveKey, "Erro ao remover key.")
}

func (h *KeysHandler) mutate(c *gin.Context, op func(ctx context.Context, user *models.User, keyID string) error, internal string) {
	user := middleware.CurrentUser(c)

	var req KeyActionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.KeyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "keyId obrigatório."})
		return
	}

	err := op(c.Request.Context(), user, req.KeyID)
	if err != nil {
		switch {
		case errors.Is(err, licensing.ErrPlanRequired):
			c.JSON(http.StatusForbidden, gin.H{"error": "Plano insuficiente para esta ação."})
		case errors.Is(err, licensing.ErrMalformedRef):
			c.JSON(http.StatusBadRequest, gin.H{"error": "keyId inválido."})
		case errors.Is(err, licensing.ErrIntegrationUnavailable):
			c.JSON(http.StatusNotFound, gin.H{"error": "Integração não encontrada ou desconectada."})
		case errors.Is(err, licensing.ErrAccessDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "Acesso negado a esta key."})
		case errors.Is(err, licensing.ErrDocumentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Documento não encontrado."})
		default:
			logger.Errorf("key mutation: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": internal})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
