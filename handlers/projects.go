package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyforge/keyforge/internal/projects"
	"github.com/keyforge/keyforge/pkg/logger"
	"github.com/keyforge/keyforge/pkg/middleware"
)

type CreateProjectRequest struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	ClientEmail string `json:"clientEmail"`
}

type LinkClientRequest struct {
	Email string `json:"email"`
}

// ProjectsHandler serves project CRUD and client linking.
type ProjectsHandler struct {
	svc *projects.Service
}

func NewProjectsHandler(svc *projects.Service) *ProjectsHandler {
	return &ProjectsHandler{svc: svc}
}

// Register routes under /projects
func (h *ProjectsHandler) Register(rg *gin.RouterGroup, authed gin.HandlerFunc) {
	p := rg.Group("/projects", authed)
	p.GET("", h.List)
	p.POST("", h.Create)
	p.POST("/:id/link-client", h.LinkClient)
	p.POST("/:id/unlink-client", h.UnlinkClient)
}

func (h *ProjectsHandler) List(c *gin.Context) {
	user := middleware.CurrentUser(c)

	summaries, err := h.svc.List(c.Request.Context(), user)
	if err != nil {
		logger.Errorf("list projects: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao buscar projetos."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": user.Role(), "projects": summaries})
}

func (h *ProjectsHandler) Create(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Corpo da requisição inválido."})
		return
	}

	summary, err := h.svc.Create(c.Request.Context(), user, projects.CreateParams{
		Name:        req.Name,
		Status:      req.Status,
		ClientEmail: req.ClientEmail,
	})
	if err != nil {
		switch {
		case errors.Is(err, projects.ErrAccessDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "Apenas usuários com plano empresarial podem criar projetos."})
		case errors.Is(err, projects.ErrNameRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Nome do projeto é obrigatório."})
		case errors.Is(err, projects.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Status inválido."})
		case errors.Is(err, projects.ErrDuplicateSlug):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Slug já existe. Escolha outro nome."})
		case errors.Is(err, projects.ErrInvalidEmail):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email inválido."})
		default:
			logger.Errorf("create project: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao criar projeto."})
		}
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (h *ProjectsHandler) LinkClient(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req LinkClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Corpo da requisição inválido."})
		return
	}

	err := h.svc.LinkClient(c.Request.Context(), user, c.Param("id"), req.Email)
	if err != nil {
		h.linkError(c, err, "Cliente já vinculado.", "Erro interno ao vincular cliente.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cliente vinculado com sucesso."})
}

func (h *ProjectsHandler) UnlinkClient(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req LinkClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Corpo da requisição inválido."})
		return
	}

	err := h.svc.UnlinkClient(c.Request.Context(), user, c.Param("id"), req.Email)
	if err != nil {
		h.linkError(c, err, "Cliente não está vinculado.", "Erro interno ao desvincular cliente.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cliente desvinculado com sucesso."})
}

func (h *ProjectsHandler) linkError(c *gin.Context, err error, conflict, internal string) {
	switch {
	case errors.Is(err, projects.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Projeto não encontrado."})
	case errors.Is(err, projects.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Permissão negada."})
	case errors.Is(err, projects.ErrEmailRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email é obrigatório."})
	case errors.Is(err, projects.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email inválido."})
	case errors.Is(err, projects.ErrAlreadyLinked), errors.Is(err, projects.ErrNotLinked):
		c.JSON(http.StatusBadRequest, gin.H{"error": conflict})
	default:
		logger.Errorf("project client link: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": internal})
	}
}
