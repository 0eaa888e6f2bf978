// README: Telegram webhook endpoint.
package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"caravan/internal/gateway/telegram"
)

// Deliverer is implemented by *telegram.Gateway.
type Deliverer interface {
	Deliver(ctx context.Context, u tgbotapi.Update, h telegram.Handler)
}

type WebhookHandler struct {
	gateway Deliverer
	events  telegram.Handler
	secret  string
}

func NewWebhookHandler(gw Deliverer, events telegram.Handler, secret string) *WebhookHandler {
	return &WebhookHandler{gateway: gw, events: events, secret: secret}
}

// Receive always answers 200 for a well-formed update so Telegram does not redeliver it.
func (h *WebhookHandler) Receive(c *gin.Context) {
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(h.secret)) != 1 {
		writeError(c, http.StatusNotFound, "not found")
		return
	}
	var u tgbotapi.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		writeError(c, http.StatusBadRequest, "invalid update")
		return
	}
	h.gateway.Deliver(c.Request.Context(), u, h.events)
	c.Status(http.StatusOK)
}
