package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyforge/keyforge/internal/models"
	"github.com/keyforge/keyforge/internal/push"
	"github.com/keyforge/keyforge/pkg/logger"
	"github.com/keyforge/keyforge/pkg/middleware"
)

// WebPushSubscription mirrors the browser PushSubscription JSON.
type WebPushSubscription struct {
	Endpoint string                  `json:"endpoint"`
	Keys     models.SubscriptionKeys `json:"keys"`
}

type SubscribeRequest struct {
	Subscription *WebPushSubscription `json:"subscription"`
	Statuses     []string             `json:"statuses"`
	Enabled      *bool                `json:"enabled"`
}

// NotificationsHandler serves Web Push subscription management.
type NotificationsHandler struct {
	svc *push.Service
}

func NewNotificationsHandler(svc *push.Service) *NotificationsHandler {
	return &NotificationsHandler{svc: svc}
}

// Register routes under /notifications
func (h *NotificationsHandler) Register(rg *gin.RouterGroup, authed gin.HandlerFunc) {
	n := rg.Group("/notifications")
	n.GET("/subscribe", authed, h.GetPreferences)
	n.POST("/subscribe", authed, h.Subscribe)
	n.GET("/test", h.Test)
}

func (h *NotificationsHandler) GetPreferences(c *gin.Context) {
	user := middleware.CurrentUser(c)

	prefs, err := h.svc.GetPreferences(c.Request.Context(), user.ID)
	if err != nil {
		logger.Errorf("load push preferences: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro ao carregar preferências"})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *NotificationsHandler) Subscribe(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Corpo da requisição inválido."})
		return
	}

	params := push.SubscribeParams{Enabled: req.Enabled, Statuses: req.Statuses}
	if req.Subscription != nil {
		params.Endpoint = req.Subscription.Endpoint
		params.Keys = req.Subscription.Keys
		params.HasEndpoint = true
	}

	prefs, err := h.svc.Subscribe(c.Request.Context(), user.ID, params)
	if err != nil {
		if errors.Is(err, push.ErrNoSubscription) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Nenhuma subscription encontrada para este usuário. Ative as notificações primeiro."})
			return
		}
		logger.Errorf("save push subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erro ao salvar subscription"})
		return
	}
	if !prefs.Enabled {
		c.JSON(http.StatusOK, gin.H{"ok": true, "enabled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "enabled": true, "statuses": prefs.Statuses})
}

// Test reports the VAPID configuration state. Always 200.
func (h *NotificationsHandler) Test(c *gin.Context) {
	configured, publicKey := h.svc.Configured()
	if !configured {
		c.JSON(http.StatusOK, gin.H{
			"ok":         false,
			"configured": false,
			"message":    "VAPID não configurado. Defina VAPID_PUBLIC_KEY e VAPID_PRIVATE_KEY.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"configured": true,
		"publicKey":  publicKey,
		"message":    "Push notifications configuradas corretamente.",
	})
}
