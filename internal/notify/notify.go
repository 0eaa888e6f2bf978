// README: Best-effort outbound notifications with a single fallback notice to the admin channel.
package notify

import (
	"context"
	"log/slog"

	"caravan/internal/gateway"
	"caravan/internal/i18n"
	"caravan/internal/types"
)

// Notifier sends after state is committed. A failure is logged and never returned.
type Notifier struct {
	gw    gateway.Gateway
	texts *i18n.Bundle
	admin types.ChatID
	log   *slog.Logger
}

func New(gw gateway.Gateway, texts *i18n.Bundle, admin types.ChatID, log *slog.Logger) *Notifier {
	return &Notifier{gw: gw, texts: texts, admin: admin, log: log.With(slog.String("component", "notify"))}
}

// Admin is the moderators' channel.
func (n *Notifier) Admin() types.ChatID { return n.admin }

// Send delivers text to chat. ok is false when the platform refused it; subject names the
// record in the fallback notice.
func (n *Notifier) Send(ctx context.Context, chat types.ChatID, text string, kb gateway.Keyboard, subject string) (types.MessageRef, bool) {
	ref, err := n.gw.SendMessage(ctx, chat, text, kb)
	if err != nil {
		n.fallback(ctx, chat, subject, err)
		return types.MessageRef{}, false
	}
	return ref, true
}

// Photo sends fileRef with caption, or plain text when fileRef is empty.
func (n *Notifier) Photo(ctx context.Context, chat types.ChatID, fileRef, caption string, kb gateway.Keyboard, subject string) (types.MessageRef, bool) {
	if fileRef == "" {
		return n.Send(ctx, chat, caption, kb, subject)
	}
	ref, err := n.gw.SendPhoto(ctx, chat, fileRef, caption, kb)
	if err != nil {
		n.fallback(ctx, chat, subject, err)
		return types.MessageRef{}, false
	}
	return ref, true
}

func (n *Notifier) Edit(ctx context.Context, ref types.MessageRef, text string, kb gateway.Keyboard) {
	if ref.MessageID == 0 {
		return
	}
	if err := n.gw.EditMessage(ctx, ref, text, kb); err != nil {
		n.log.Warn("edit message", slog.Int64("chat_id", int64(ref.ChatID)), slog.Int("message_id", ref.MessageID), slog.Any("err", err))
	}
}

func (n *Notifier) Delete(ctx context.Context, ref types.MessageRef) {
	if ref.MessageID == 0 {
		return
	}
	if err := n.gw.DeleteMessage(ctx, ref); err != nil {
		n.log.Warn("delete message", slog.Int64("chat_id", int64(ref.ChatID)), slog.Int("message_id", ref.MessageID), slog.Any("err", err))
	}
}

func (n *Notifier) fallback(ctx context.Context, chat types.ChatID, subject string, err error) {
	n.log.Warn("notify user", slog.Int64("chat_id", int64(chat)), slog.String("subject", subject), slog.Any("err", err))
	if n.admin == 0 || chat == n.admin {
		return
	}
	text := n.texts.Resolve(n.texts.Default(), "notify.failed", i18n.Params{"chat": int64(chat), "subject": subject})
	if _, err := n.gw.SendMessage(ctx, n.admin, text, nil); err != nil {
		n.log.Error("fallback notice", slog.String("subject", subject), slog.Any("err", err))
	}
}
