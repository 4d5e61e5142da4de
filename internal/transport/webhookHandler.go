package transport

import (
	"net/http"

	"github.com/ds124wfegd/studio-booking/internal/service"
	"github.com/gin-gonic/gin"
)

type WebhookHandler struct {
	notificationService service.NotificationService
}

func NewWebhookHandler(notificationService service.NotificationService) *WebhookHandler {
	return &WebhookHandler{notificationService: notificationService}
}

func (h *WebhookHandler) Register(c *gin.Context) {
	var req service.RegisterWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	w, err := h.notificationService.RegisterWebhook(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "webhook registered", w)
}

func (h *WebhookHandler) Deliveries(c *gin.Context) {
	logs, err := h.notificationService.ListDeliveries(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "", logs)
}
