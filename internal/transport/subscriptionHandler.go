package transport

import (
	"net/http"

	"github.com/ds124wfegd/WB_L3/parking/internal/service"
	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	subscriptions service.SubscriptionService
}

func NewSubscriptionHandler(subscriptions service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var req service.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sub, err := h.subscriptions.Subscribe(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, 0)
		return
	}
	ok(c, http.StatusCreated, "Subscription registered", sub)
}
