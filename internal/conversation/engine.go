// README: Conversation engine: loads the user's session, runs one transition and carries out its effects.
package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"caravan/internal/action"
	"caravan/internal/gateway"
	"caravan/internal/i18n"
	"caravan/internal/modules/order"
	"caravan/internal/render"
	"caravan/internal/types"
)

// Submission is a confirmed draft handed to the submitter.
type Submission struct {
	Flow          FlowID
	UserID        types.UserID
	Lang          string
	Draft         Draft
	SubmissionKey string
}

// Receipt is the message shown after a successful submission.
type Receipt struct {
	Key    string
	Params i18n.Params
}

type Submitter interface {
	Submit(ctx context.Context, sub Submission) (Receipt, error)
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, sub Submission) (Receipt, error)

func (f SubmitFunc) Submit(ctx context.Context, sub Submission) (Receipt, error) { return f(ctx, sub) }

// Prices quotes the summary. Implemented by *pricing.Service.
type Prices interface {
	Cost(ctx context.Context, category order.Category, quantity int) (int64, error)
}

type Engine struct {
	machine   *Machine
	sessions  SessionStore
	submitter Submitter
	gw        gateway.Gateway
	render    *render.Renderer
	prices    Prices
	log       *slog.Logger
}

func NewEngine(m *Machine, sessions SessionStore, submitter Submitter, gw gateway.Gateway, r *render.Renderer, prices Prices, log *slog.Logger) *Engine {
	return &Engine{
		machine:   m,
		sessions:  sessions,
		submitter: submitter,
		gw:        gw,
		render:    r,
		prices:    prices,
		log:       log.With(slog.String("component", "conversation")),
	}
}

// Outcome tells the caller what the event did.
type Outcome struct {
	// Handled is false when the user has no session.
	Handled bool
	// Ended is set when the session was closed by a submission or a cancel.
	Ended     bool
	Submitted bool
	// Invalid wraps ErrValidation when the input was rejected and the step re-prompted.
	Invalid error
}

// Start replaces any session of the user with a fresh one at the first step of flow.
func (e *Engine) Start(ctx context.Context, user types.UserID, lang string, flow FlowID, preset Draft) error {
	s, effects, err := e.machine.Start(flow, lang, string(types.NewID()), preset)
	if err != nil {
		return err
	}
	if err := e.sessions.Save(ctx, user, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	for _, eff := range effects {
		if p, ok := eff.(Prompt); ok {
			e.show(ctx, user.Chat(), types.MessageRef{}, s, p)
		}
	}
	e.log.Debug("session started", slog.Int64("user", int64(user)), slog.String("flow", string(flow)))
	return nil
}

// Active returns the user's session, if any.
func (e *Engine) Active(ctx context.Context, user types.UserID) (SessionState, bool, error) {
	return e.sessions.Load(ctx, user)
}

// Abort drops the user's session without a message.
func (e *Engine) Abort(ctx context.Context, user types.UserID) error {
	return e.sessions.Delete(ctx, user)
}

// HandleEvent feeds ev to the user's session. A failed submission leaves the session
// at the confirm step and returns the error.
func (e *Engine) HandleEvent(ctx context.Context, ev gateway.InboundEvent) (Outcome, error) {
	s, ok, err := e.sessions.Load(ctx, ev.UserID)
	if err != nil {
		return Outcome{Handled: true}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return Outcome{}, nil
	}
	next, effects := e.machine.Transition(s, inputOf(ev))
	out := Outcome{Handled: true}
	var pressed types.MessageRef
	if ev.Kind == gateway.EventButton {
		pressed = ev.Message
	}
	for _, eff := range effects {
		switch x := eff.(type) {
		case Prompt:
			if x.Error != "" {
				out.Invalid = fmt.Errorf("%w: %s", ErrValidation, x.Error)
			}
			if err := e.sessions.Save(ctx, ev.UserID, next); err != nil {
				return out, fmt.Errorf("save session: %w", err)
			}
			e.show(ctx, ev.ChatID, pressed, next, x)
		case Submit:
			receipt, err := e.submitter.Submit(ctx, Submission{
				Flow:          x.Flow,
				UserID:        ev.UserID,
				Lang:          s.Lang,
				Draft:         x.Draft,
				SubmissionKey: x.SubmissionKey,
			})
			if err != nil {
				return out, err
			}
			e.close(ctx, ev.UserID)
			out.Ended, out.Submitted = true, true
			e.send(ctx, ev.ChatID, pressed, e.render.T(s.Lang, receipt.Key, receipt.Params), nil)
		case End:
			e.close(ctx, ev.UserID)
			out.Ended = true
			e.send(ctx, ev.ChatID, pressed, e.render.T(s.Lang, "flow.cancelled", nil), nil)
		}
	}
	return out, nil
}

func (e *Engine) close(ctx context.Context, user types.UserID) {
	if err := e.sessions.Delete(ctx, user); err != nil {
		e.log.Error("delete session", slog.Int64("user", int64(user)), slog.Any("err", err))
	}
}

func inputOf(ev gateway.InboundEvent) Input {
	in := Input{Kind: ev.Kind, Text: ev.Text, FileRef: ev.FileRef, Phone: ev.Phone}
	if ev.Kind == gateway.EventButton {
		// A malformed token leaves the action empty and fails validation.
		if a, err := action.Parse(ev.Action); err == nil {
			in.Action = a
		}
	}
	return in
}

func (e *Engine) show(ctx context.Context, chat types.ChatID, pressed types.MessageRef, s SessionState, p Prompt) {
	text := e.render.T(s.Lang, p.Key, p.Params)
	if p.Error != "" {
		text = e.render.T(s.Lang, p.Error, nil) + "\n\n" + text
	}
	if p.Summary {
		text += "\n\n" + e.Summary(ctx, s)
	}
	e.send(ctx, chat, pressed, text, e.keyboard(s.Lang, p.Buttons))
}

// send edits the message whose button was pressed, or sends a new one.
func (e *Engine) send(ctx context.Context, chat types.ChatID, pressed types.MessageRef, text string, kb gateway.Keyboard) {
	if pressed.MessageID != 0 {
		if err := e.gw.EditMessage(ctx, pressed, text, kb); err == nil {
			return
		}
	}
	if _, err := e.gw.SendMessage(ctx, chat, text, kb); err != nil {
		e.log.Warn("send prompt", slog.Int64("chat_id", int64(chat)), slog.Any("err", err))
	}
}

func (e *Engine) keyboard(lang string, rows [][]Button) gateway.Keyboard {
	kb := make(gateway.Keyboard, 0, len(rows))
	for _, row := range rows {
		out := make([]gateway.Button, 0, len(row))
		for _, b := range row {
			label := b.Label
			if b.Key != "" {
				label = e.render.T(lang, b.Key, nil)
			}
			out = append(out, gateway.Btn(label, b.Action))
		}
		kb = append(kb, out)
	}
	return kb
}

// Summary renders the draft as the confirm step shows it.
func (e *Engine) Summary(ctx context.Context, s SessionState) string {
	lang := s.Lang
	d := s.Draft
	switch s.Flow {
	case FlowDriver:
		return e.render.T(lang, "summary.driver", i18n.Params{
			"direction": e.render.T(lang, "direction."+d["direction"], nil),
			"name":      d["name"],
			"phone":     d["phone"],
			"car":       d["carmodel"],
			"number":    d["carnumber"],
			"year":      d["caryear"],
			"capacity":  d["capacity"],
		})
	case FlowTopUp:
		return e.render.T(lang, "summary.topup", i18n.Params{"amount": d["amount"]})
	}
	cmd, err := OrderCommand(s.Flow, 0, s.SubmissionKey, d)
	if err != nil {
		return ""
	}
	o := &order.Order{
		Category:   cmd.Category,
		FullName:   cmd.FullName,
		Phone:      cmd.Phone,
		From:       cmd.From,
		To:         cmd.To,
		TravelDate: cmd.TravelDate,
		Payload:    cmd.Payload,
	}
	if o.Category.Dispatched() && e.prices != nil {
		cost, err := e.prices.Cost(ctx, o.Category, o.Quantity())
		if err != nil {
			e.log.Warn("quote order", slog.String("category", string(o.Category)), slog.Any("err", err))
		}
		o.Cost = cost
	}
	return e.render.Order(lang, o, render.Full)
}
