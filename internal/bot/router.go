// README: Bot router: turns inbound platform events into onboarding, menu, conversation, dispatch and moderation calls.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"caravan/internal/action"
	"caravan/internal/config"
	"caravan/internal/conversation"
	"caravan/internal/dispatch"
	"caravan/internal/gateway"
	"caravan/internal/modules/ledger"
	"caravan/internal/modules/moderation"
	"caravan/internal/modules/order"
	"caravan/internal/modules/pricing"
	"caravan/internal/modules/user"
	"caravan/internal/notify"
	"caravan/internal/render"
	"caravan/internal/types"
)

// Deps are the services the router drives.
type Deps struct {
	Users      *user.Service
	Ledger     *ledger.Service
	Orders     *order.Service
	Prices     *pricing.Service
	Dispatch   *dispatch.Service
	Moderation *moderation.Workflow
	Machine    *conversation.Machine
	Sessions   conversation.SessionStore
	Gateway    gateway.Gateway
	Notifier   *notify.Notifier
	Render     *render.Renderer
	Support    config.SupportConfig
}

type Router struct {
	users      *user.Service
	ledger     *ledger.Service
	orders     *order.Service
	prices     *pricing.Service
	dispatch   *dispatch.Service
	moderation *moderation.Workflow
	engine     *conversation.Engine
	notify     *notify.Notifier
	render     *render.Renderer
	support    config.SupportConfig
	log        *slog.Logger
}

func New(d Deps, log *slog.Logger) *Router {
	r := &Router{
		users:      d.Users,
		ledger:     d.Ledger,
		orders:     d.Orders,
		prices:     d.Prices,
		dispatch:   d.Dispatch,
		moderation: d.Moderation,
		notify:     d.Notifier,
		render:     d.Render,
		support:    d.Support,
		log:        log.With(slog.String("component", "bot")),
	}
	r.engine = conversation.NewEngine(d.Machine, d.Sessions, conversation.SubmitFunc(r.submit), d.Gateway, d.Render, d.Prices, log)
	return r
}

// Engine exposes the conversation engine for tests and tooling.
func (r *Router) Engine() *conversation.Engine { return r.engine }

// conversational verbs are only meaningful inside a session.
var conversational = map[string]bool{
	action.Back: true, action.Cancel: true, action.Confirm: true, action.Skip: true,
	action.Choose: true, action.Country: true, action.Region: true, action.City: true,
	action.ManualCity: true, action.Year: true, action.Month: true, action.Day: true,
}

// HandleEvent processes one inbound event. Domain failures become a notice to the user;
// the returned error is for storage failures the caller should log.
func (r *Router) HandleEvent(ctx context.Context, ev gateway.InboundEvent) error {
	if ev.UserID == 0 {
		return nil
	}
	u, err := r.users.Ensure(ctx, user.EnsureCommand{ID: ev.UserID, Username: ev.Username, FullName: ev.FirstName})
	if err != nil {
		return err
	}
	lang := r.language(u)

	if ev.Kind == gateway.EventButton {
		a, err := action.Parse(ev.Action)
		if err != nil {
			r.notice(ctx, u, lang, err)
			return nil
		}
		if !conversational[a.Verb] {
			return r.command(ctx, ev, u, lang, a)
		}
	}

	if ev.Kind == gateway.EventText {
		switch {
		case isCommand(ev.Text, "/start"):
			if err := r.engine.Abort(ctx, u.ID); err != nil {
				return err
			}
			r.languagePicker(ctx, u.ID.Chat())
			return nil
		case isCommand(ev.Text, "/id"):
			r.chatInfo(ctx, ev, lang)
			return nil
		case isCommand(ev.Text, "/help"):
			r.help(ctx, u, lang)
			return nil
		}
	}

	out, err := r.engine.HandleEvent(ctx, ev)
	if err != nil {
		r.log.Error("conversation", slog.Int64("user", int64(u.ID)), slog.Any("err", err))
		r.notice(ctx, u, lang, err)
		return nil
	}
	switch {
	case out.Ended:
		r.mainMenu(ctx, u, r.language(u))
	case !out.Handled && ev.Kind == gateway.EventButton:
		r.send(ctx, u.ID.Chat(), r.render.T(lang, "notice.expired", nil), nil)
		r.mainMenu(ctx, u, lang)
	case !out.Handled && u.Language == "":
		r.languagePicker(ctx, u.ID.Chat())
	case !out.Handled:
		r.mainMenu(ctx, u, lang)
	}
	return nil
}

func (r *Router) command(ctx context.Context, ev gateway.InboundEvent, u *user.User, lang string, a action.Action) error {
	var err error
	switch a.Verb {
	case action.Lang:
		err = r.setLanguage(ctx, u, a.Arg)
	case action.Menu:
		err = r.menu(ctx, u, lang, a.Arg)
	case action.Abort:
		if err = r.engine.Abort(ctx, u.ID); err == nil {
			r.mainMenu(ctx, u, lang)
		}
	case action.Accept:
		_, err = r.dispatch.Accept(ctx, dispatch.AcceptCommand{OrderID: types.ID(a.Arg), ActorID: u.ID, Card: ev.Message})
	case action.Approve:
		_, err = r.moderation.Approve(ctx, moderation.Decision{
			Kind:        moderation.Kind(a.Kind),
			ID:          types.ID(a.Arg),
			ModeratorID: u.ID,
			Card:        ev.Message,
		})
	case action.Reject:
		err = r.startModeratorFlow(ctx, u, lang, conversation.FlowRejectReason, a, ev.Message)
	case action.Reply:
		err = r.startModeratorFlow(ctx, u, lang, conversation.FlowTicketReply, a, ev.Message)
	case action.View:
		err = r.moderation.View(ctx, moderation.Kind(a.Kind), types.ID(a.Arg), u.ID)
	case action.CancelOrd:
		err = r.cancelOrder(ctx, u, lang, types.ID(a.Arg))
	default:
		err = action.ErrMalformed
	}
	if err != nil {
		r.log.Debug("action refused", slog.String("action", a.String()), slog.Int64("user", int64(u.ID)), slog.Any("err", err))
		r.notice(ctx, u, lang, err)
	}
	return nil
}

// startModeratorFlow opens the one-step reason or reply conversation in the moderator's
// private chat. The draft carries the request and its card.
func (r *Router) startModeratorFlow(ctx context.Context, u *user.User, lang string, flow conversation.FlowID, a action.Action, card types.MessageRef) error {
	kind := moderation.Kind(a.Kind)
	if _, err := r.moderation.Authorize(ctx, u.ID); err != nil {
		return err
	}
	req, err := r.moderation.Get(ctx, kind, types.ID(a.Arg))
	if err != nil {
		return err
	}
	if !req.Pending() {
		return moderation.ErrAlreadyResolved
	}
	return r.engine.Start(ctx, u.ID, lang, flow, conversation.Draft{
		conversation.KeyTargetKind:  string(kind),
		conversation.KeyTargetID:    a.Arg,
		conversation.KeyCardChat:    strconv.FormatInt(int64(card.ChatID), 10),
		conversation.KeyCardMessage: strconv.Itoa(card.MessageID),
	})
}

func (r *Router) cancelOrder(ctx context.Context, u *user.User, lang string, id types.ID) error {
	o, err := r.dispatch.Cancel(ctx, id, u.ID)
	if err != nil {
		return err
	}
	r.send(ctx, u.ID.Chat(), r.render.T(lang, "notice.order.cancelled", nil)+"\n\n"+r.render.OrderLine(lang, o), nil)
	return nil
}

func (r *Router) language(u *user.User) string {
	if u.Language != "" {
		return u.Language
	}
	return r.render.Texts().Default()
}

func (r *Router) notice(ctx context.Context, u *user.User, lang string, err error) {
	r.send(ctx, u.ID.Chat(), r.render.T(lang, noticeKey(err), nil), nil)
}

func (r *Router) send(ctx context.Context, chat types.ChatID, text string, kb gateway.Keyboard) {
	r.notify.Send(ctx, chat, text, kb, "user "+types.UserID(chat).String())
}

func isCommand(text, cmd string) bool {
	f := strings.Fields(text)
	if len(f) == 0 {
		return false
	}
	name, _, _ := strings.Cut(f[0], "@")
	return strings.EqualFold(name, cmd)
}

// isAny reports whether err matches any target.
func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
