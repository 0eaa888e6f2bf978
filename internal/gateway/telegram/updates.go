package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"caravan/internal/gateway"
)

// Handler consumes decoded inbound events. Implemented by *bot.Router.
type Handler interface {
	HandleEvent(ctx context.Context, ev gateway.InboundEvent) error
}

// Deliver decodes one update, answers its callback and hands the event to h.
// Handler errors are logged; the update is considered consumed either way.
func (g *Gateway) Deliver(ctx context.Context, u tgbotapi.Update, h Handler) {
	ev, callbackID, ok := Decode(u)
	if !ok {
		return
	}
	g.AnswerCallback(callbackID, "")
	if err := h.HandleEvent(ctx, ev); err != nil {
		g.log.Warn("handle update",
			slog.Int("update_id", u.UpdateID),
			slog.String("kind", ev.Kind.String()),
			slog.Int64("user_id", int64(ev.UserID)),
			slog.Any("err", err))
	}
}

// Poll delivers updates until ctx is done or the channel closes.
func (g *Gateway) Poll(ctx context.Context, updates <-chan tgbotapi.Update, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			g.Deliver(ctx, u, h)
		}
	}
}
