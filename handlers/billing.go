package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyforge/keyforge/internal/billing"
	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/internal/push"
	"github.com/keyforge/keyforge/pkg/logger"
	"github.com/keyforge/keyforge/pkg/middleware"
)

type ActivatePlanRequest struct {
	Plan            string `json:"plan"`
	TransactionHash string `json:"transaction_hash"`
	ExternalID      string `json:"externalId"`
}

// BillingHandler serves plan activation.
type BillingHandler struct {
	svc  *billing.Service
	push *push.Service
}

func NewBillingHandler(svc *billing.Service, pushSvc *push.Service) *BillingHandler {
	return &BillingHandler{svc: svc, push: pushSvc}
}

// Register routes under /billing
func (h *BillingHandler) Register(rg *gin.RouterGroup, authed gin.HandlerFunc) {
	b := rg.Group("/billing", authed)
	b.POST("/activate", h.Activate)
}

func (h *BillingHandler) Activate(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req ActivatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Corpo da requisição inválido."})
		return
	}

	activation, err := h.svc.Activate(c.Request.Context(), user.ID, models.Plan(req.Plan), req.TransactionHash, req.ExternalID)
	if err != nil {
		var notConfirmed *billing.NotConfirmedError
		switch {
		case errors.Is(err, billing.ErrInvalidPlan):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Plano inválido."})
		case errors.Is(err, billing.ErrHashRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_hash ausente."})
		case errors.Is(err, billing.ErrVerification):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Não foi possível verificar pagamento."})
		case errors.As(err, &notConfirmed):
			c.JSON(http.StatusConflict, gin.H{"error": "Pagamento ainda não confirmado.", "status": notConfirmed.RawStatus})
		case errors.Is(err, billing.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Usuário não encontrado."})
		default:
			logger.Errorf("activate plan: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno."})
		}
		return
	}

	resp := gin.H{
		"ok":            true,
		"plan":          activation.Plan,
		"planPaidAt":    activation.PlanPaidAt,
		"planExpiresAt": activation.PlanExpiresAt,
	}
	if activation.AlreadyApplied {
		resp["alreadyApplied"] = true
	} else if h.push != nil {
		// Fresh activation worth announcing to subscribed devices.
		payload := push.Payload{
			Title: "Pagamento confirmado",
			Body:  "Seu plano " + string(activation.Plan) + " está ativo.",
		}
		if err := h.push.Dispatch(c.Request.Context(), "paid", payload); err != nil {
			logger.Warnf("dispatch paid notification: %v", err)
		}
	}
	c.JSON(http.StatusOK, resp)
}
