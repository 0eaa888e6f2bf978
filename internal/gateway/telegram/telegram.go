// README: Telegram Bot API adapter for the messaging gateway.
package telegram

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"caravan/internal/gateway"
	"caravan/internal/types"
)

// API is the subset of *tgbotapi.BotAPI the adapter needs.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Gateway struct {
	api API
	log *slog.Logger
}

func New(api API, log *slog.Logger) *Gateway {
	return &Gateway{api: api, log: log.With(slog.String("component", "telegram"))}
}

func (g *Gateway) SendMessage(_ context.Context, chat types.ChatID, text string, kb gateway.Keyboard) (types.MessageRef, error) {
	msg := tgbotapi.NewMessage(int64(chat), text)
	if markup := inlineMarkup(kb); markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := g.api.Send(msg)
	if err != nil {
		return types.MessageRef{}, gateway.Wrap("send message", err)
	}
	return types.MessageRef{ChatID: chat, MessageID: sent.MessageID}, nil
}

func (g *Gateway) EditMessage(_ context.Context, ref types.MessageRef, text string, kb gateway.Keyboard) error {
	edit := tgbotapi.NewEditMessageText(int64(ref.ChatID), ref.MessageID, text)
	edit.ReplyMarkup = inlineMarkup(kb)
	if _, err := g.api.Request(edit); err != nil {
		return gateway.Wrap("edit message", err)
	}
	return nil
}

func (g *Gateway) SendPhoto(_ context.Context, chat types.ChatID, fileRef, caption string, kb gateway.Keyboard) (types.MessageRef, error) {
	photo := tgbotapi.NewPhoto(int64(chat), tgbotapi.FileID(fileRef))
	photo.Caption = caption
	if markup := inlineMarkup(kb); markup != nil {
		photo.ReplyMarkup = *markup
	}
	sent, err := g.api.Send(photo)
	if err != nil {
		return types.MessageRef{}, gateway.Wrap("send photo", err)
	}
	return types.MessageRef{ChatID: chat, MessageID: sent.MessageID}, nil
}

func (g *Gateway) DeleteMessage(_ context.Context, ref types.MessageRef) error {
	if _, err := g.api.Request(tgbotapi.NewDeleteMessage(int64(ref.ChatID), ref.MessageID)); err != nil {
		return gateway.Wrap("delete message", err)
	}
	return nil
}

// AnswerCallback stops the client-side spinner of a pressed button.
func (g *Gateway) AnswerCallback(callbackID, text string) {
	if callbackID == "" {
		return
	}
	if _, err := g.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		g.log.Debug("answer callback", slog.Any("err", err))
	}
}

func inlineMarkup(kb gateway.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Action))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// Decode converts an update into an inbound event. ok is false for updates the bot ignores.
// callbackID is set for button presses so the caller can answer them.
func Decode(u tgbotapi.Update) (ev gateway.InboundEvent, callbackID string, ok bool) {
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		cq := u.CallbackQuery
		ev = gateway.InboundEvent{
			Kind:      gateway.EventButton,
			UserID:    types.UserID(cq.From.ID),
			ChatID:    types.ChatID(cq.From.ID),
			Username:  cq.From.UserName,
			FirstName: cq.From.FirstName,
			Action:    cq.Data,
			At:        time.Now(),
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			ev.ChatID = types.ChatID(cq.Message.Chat.ID)
			ev.ChatType = cq.Message.Chat.Type
			ev.Message = types.MessageRef{ChatID: types.ChatID(cq.Message.Chat.ID), MessageID: cq.Message.MessageID}
		}
		return ev, cq.ID, true
	case u.Message != nil && u.Message.From != nil && u.Message.Chat != nil:
		m := u.Message
		ev = gateway.InboundEvent{
			UserID:    types.UserID(m.From.ID),
			ChatID:    types.ChatID(m.Chat.ID),
			ChatType:  m.Chat.Type,
			Username:  m.From.UserName,
			FirstName: m.From.FirstName,
			At:        m.Time(),
		}
		switch {
		case len(m.Photo) > 0:
			ev.Kind = gateway.EventPhoto
			// Sizes are ascending; the last one is the original.
			ev.FileRef = m.Photo[len(m.Photo)-1].FileID
		case m.Contact != nil:
			ev.Kind = gateway.EventContact
			ev.Phone = m.Contact.PhoneNumber
		case m.Text != "":
			ev.Kind = gateway.EventText
			ev.Text = m.Text
		default:
			return ev, "", false
		}
		return ev, "", true
	}
	return ev, "", false
}
