package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyforge/keyforge/internal/payments"
	"github.com/keyforge/keyforge/pkg/logger"
)

// PaymentsHandler proxies PIX transaction creation and status lookups so the
// gateway token never reaches the frontend.
type PaymentsHandler struct {
	client *payments.Client
}

func NewPaymentsHandler(client *payments.Client) *PaymentsHandler {
	return &PaymentsHandler{client: client}
}

// Register routes under /create-payment. The checkout runs before the buyer
// has an account, so these routes take no session cookie.
func (h *PaymentsHandler) Register(rg *gin.RouterGroup, _ gin.HandlerFunc) {
	rg.POST("/create-payment", h.Create)
	rg.GET("/create-payment", h.Status)
}

func (h *PaymentsHandler) Create(c *gin.Context) {
	var req payments.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Corpo da requisição inválido."})
		return
	}
	if req.UTMQuery == nil {
		req.UTMQuery = utmFromQuery(c)
	}

	tx, err := h.client.CreateTransaction(c.Request.Context(), req)
	if err != nil {
		var gw *payments.GatewayError
		switch {
		case errors.Is(err, payments.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Valor do pagamento inválido."})
		case errors.Is(err, payments.ErrEmptyCart):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Itens do pedido inválidos."})
		case errors.As(err, &gw):
			c.JSON(gw.StatusCode, gin.H{"error": gw.Message})
		default:
			logger.Errorf("create payment: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno do servidor."})
		}
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *PaymentsHandler) Status(c *gin.Context) {
	hash := c.Query("transaction_hash")
	if hash == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_hash é obrigatório."})
		return
	}

	tx, err := h.client.TransactionStatus(c.Request.Context(), hash)
	if err != nil {
		if errors.Is(err, payments.ErrUpstream) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "Falha ao consultar status na TriboPay."})
			return
		}
		logger.Errorf("payment status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro interno do servidor."})
		return
	}

	c.JSON(http.StatusOK, tx)
}

// utmFromQuery folds utm_* query parameters into the tracking map.
func utmFromQuery(c *gin.Context) map[string]string {
	keys := []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}
	out := map[string]string{}
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
