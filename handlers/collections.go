package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keyforge/keyforge/internal/licensing"
	"github.com/keyforge/keyforge/internal/links"
	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/pkg/logger"
	"github.com/keyforge/keyforge/pkg/middleware"
)

type LinkCollectionRequest struct {
	CollectionID string `json:"collectionId"`
	ProjectID    string `json:"projectId"`
}

type UnlinkCollectionRequest struct {
	CollectionID string `json:"collectionId"`
}

// CollectionsHandler serves license-collection discovery and project linking.
type CollectionsHandler struct {
	engine *licensing.Engine
	links  links.Repository
}

func NewCollectionsHandler(engine *licensing.Engine, links links.Repository) *CollectionsHandler {
	return &CollectionsHandler{engine: engine, links: links}
}

// Register routes under /collections
func (h *CollectionsHandler) Register(rg *gin.RouterGroup, authed gin.HandlerFunc) {
	col := rg.Group("/collections", authed)
	col.GET("", h.List)
	col.POST("/link", h.Link)
	col.POST("/unlink", h.Unlink)
}

func (h *CollectionsHandler) List(c *gin.Context) {
	user := middleware.CurrentUser(c)

	rows, err := h.engine.ListCollections(c.Request.Context(), user)
	if err != nil {
		logger.Errorf("list collections: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao buscar coleções."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": user.Role(), "collections": rows})
}

func (h *CollectionsHandler) Link(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user.Role() != models.RoleEmpresarial {
		c.JSON(http.StatusForbidden, gin.H{"error": "Apenas usuários empresariais podem vincular projetos."})
		return
	}

	var req LinkCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CollectionID == "" || req.ProjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collectionId e projectId são obrigatórios."})
		return
	}
	projectID, err := primitive.ObjectIDFromHex(req.ProjectID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "projectId inválido."})
		return
	}

	if err := h.links.Upsert(c.Request.Context(), user.ID, req.CollectionID, projectID); err != nil {
		logger.Errorf("link collection: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao vincular coleção."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *CollectionsHandler) Unlink(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user.Role() != models.RoleEmpresarial {
		c.JSON(http.StatusForbidden, gin.H{"error": "Apenas usuários empresariais podem desvincular projetos."})
		return
	}

	var req UnlinkCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CollectionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collectionId é obrigatório."})
		return
	}

	if err := h.links.Delete(c.Request.Context(), user.ID, req.CollectionID); err != nil {
		logger.Errorf("unlink collection: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao desvincular coleção."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
