// README: HTTP router registration.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"caravan/internal/gateway/telegram"
	"caravan/internal/http/handlers"
	"caravan/internal/http/middleware"
	"caravan/internal/infra"
	"caravan/internal/modules/moderation"
	"caravan/internal/modules/order"
	"caravan/internal/modules/pricing"
)

// RoleModerator is the role claim required by the moderator API.
const RoleModerator = "admin"

type RouterDeps struct {
	// Webhook is nil in polling mode.
	Webhook       handlers.Deliverer
	Events        telegram.Handler
	WebhookSecret string

	// Verifier is nil when Firebase is not configured; the moderator API is then not mounted.
	Verifier   infra.TokenVerifier
	Moderation *moderation.Workflow
	Orders     *order.Service
	Pricing    *pricing.Service

	Log *slog.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.Logging(d.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	if d.Webhook != nil {
		wh := handlers.NewWebhookHandler(d.Webhook, d.Events, d.WebhookSecret)
		r.POST("/telegram/webhook/:secret", wh.Receive)
	}

	if d.Verifier != nil {
		api := r.Group("/api", middleware.Auth(d.Verifier), middleware.RequireRole(RoleModerator))

		mod := handlers.NewModerationHandler(d.Moderation)
		api.GET("/moderation/applications", mod.ListApplications)
		api.GET("/moderation/topups", mod.ListTopUps)
		api.POST("/moderation/:kind/:id/approve", mod.Approve)
		api.POST("/moderation/:kind/:id/reject", mod.Reject)
		api.POST("/moderation/:kind/:id/reply", mod.Reply)

		orders := handlers.NewOrderHandler(d.Orders, d.Pricing)
		api.GET("/orders/:id", orders.Get)
		api.GET("/pricing/:category", orders.GetRate)
		api.PUT("/pricing/:category", orders.SetRate)
	}

	return r
}
