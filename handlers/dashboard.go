package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyforge/keyforge/internal/dashboard"
	"github.com/keyforge/keyforge/pkg/logger"
	"github.com/keyforge/keyforge/pkg/middleware"
)

// DashboardHandler serves the aggregated overview panel.
type DashboardHandler struct {
	svc *dashboard.Service
}

func NewDashboardHandler(svc *dashboard.Service) *DashboardHandler {
	return &DashboardHandler{svc: svc}
}

// Register routes under /dashboard
func (h *DashboardHandler) Register(rg *gin.RouterGroup, authed gin.HandlerFunc) {
	d := rg.Group("/dashboard")
	d.GET("/overview", authed, h.Overview)
}

func (h *DashboardHandler) Overview(c *gin.Context) {
	user := middleware.CurrentUser(c)

	overview, err := h.svc.Overview(c.Request.Context(), user)
	if err != nil {
		logger.Errorf("dashboard overview for %s: %v", user.ID.Hex(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno ao buscar overview."})
		return
	}
	c.JSON(http.StatusOK, overview)
}
