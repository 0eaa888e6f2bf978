// README: Dispatch broadcaster: posts new orders to provider channels and arbitrates acceptance.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"caravan/internal/action"
	"caravan/internal/config"
	"caravan/internal/gateway"
	"caravan/internal/i18n"
	"caravan/internal/modules/ledger"
	"caravan/internal/modules/order"
	"caravan/internal/modules/user"
	"caravan/internal/notify"
	"caravan/internal/render"
	"caravan/internal/types"
)

var (
	ErrPermission    = errors.New("only drivers and admins can accept orders")
	ErrNotDispatched = errors.New("order category is not broadcast")
)

// Orders is implemented by *order.Service.
type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	Accept(ctx context.Context, cmd order.AcceptCommand) (order.AcceptResult, error)
	Cancel(ctx context.Context, cmd order.CancelCommand) (*order.Order, error)
}

// Prices is implemented by *pricing.Service.
type Prices interface {
	Cost(ctx context.Context, category order.Category, quantity int) (int64, error)
}

type Users interface {
	Get(ctx context.Context, id types.UserID) (*user.User, error)
}

// Credits is implemented by *ledger.Service.
type Credits interface {
	Balance(ctx context.Context, id types.UserID) (int64, error)
	Announce(ctx context.Context, e ledger.Entry)
}

type Service struct {
	orders   Orders
	prices   Prices
	users    Users
	credits  Credits
	cards    CardStore
	notify   *notify.Notifier
	render   *render.Renderer
	channels config.ChannelsConfig
	log      *slog.Logger
}

func NewService(orders Orders, prices Prices, users Users, credits Credits, cards CardStore, n *notify.Notifier, r *render.Renderer, channels config.ChannelsConfig, log *slog.Logger) *Service {
	return &Service{
		orders:   orders,
		prices:   prices,
		users:    users,
		credits:  credits,
		cards:    cards,
		notify:   n,
		render:   r,
		channels: channels,
		log:      log.With(slog.String("component", "dispatch")),
	}
}

// ChannelFor maps a dispatched category to its provider channel.
func (s *Service) ChannelFor(c order.Category) (types.ChatID, bool) {
	switch c {
	case order.CategoryTaxi, order.CategoryParcel:
		return types.ChatID(s.channels.TaxiParcel), true
	case order.CategoryCargo:
		return types.ChatID(s.channels.Cargo), true
	}
	return 0, false
}

// Broadcast posts the order card with a single accept action. A failed post is logged and
// reported to the admin channel; the order stays pending either way.
func (s *Service) Broadcast(ctx context.Context, o *order.Order) error {
	channel, ok := s.ChannelFor(o.Category)
	if !ok {
		return ErrNotDispatched
	}
	lang := s.render.Texts().Default()
	text := s.render.Order(lang, o, render.Public)
	kb := gateway.Keyboard{gateway.Row(
		gateway.Btn(s.render.T(lang, "btn.accept", nil), action.NewKind(action.Accept, string(o.Category), string(o.ID))),
	)}
	ref, sent := s.notify.Send(ctx, channel, text, kb, "order "+string(o.ID))
	if !sent {
		return nil
	}
	if err := s.cards.Record(ctx, o.ID, ref); err != nil {
		s.log.Warn("record card", slog.String("order_id", string(o.ID)), slog.Any("err", err))
	}
	s.log.Info("order broadcast", slog.String("order_id", string(o.ID)), slog.Int64("channel", int64(channel)))
	return nil
}

type AcceptCommand struct {
	OrderID types.ID
	ActorID types.UserID
	// Card is the message the button was pressed on. Used when no card was recorded.
	Card types.MessageRef
}

// Accept claims a pending order for the actor.
//
// The pending, role and balance checks below only produce early, friendly errors. The claim
// itself is the compare-and-set in order.Service.Accept, which debits in the same commit, so
// concurrent callers still get exactly one winner.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*order.Order, error) {
	o, err := s.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.Category.Dispatched() {
		return nil, ErrNotDispatched
	}
	if o.Status != order.StatusPending {
		return nil, order.ErrAlreadyAccepted
	}
	cost, err := s.prices.Cost(ctx, o.Category, o.Quantity())
	if err != nil {
		return nil, fmt.Errorf("price order %s: %w", o.ID, err)
	}
	actor, err := s.users.Get(ctx, cmd.ActorID)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrPermission
	}
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanAccept() {
		return nil, ErrPermission
	}
	admin := actor.Role == user.RoleAdmin
	if !admin {
		bal, err := s.credits.Balance(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if bal < cost {
			return nil, ledger.ErrInsufficientCredit
		}
	}
	res, err := s.orders.Accept(ctx, order.AcceptCommand{
		OrderID:   o.ID,
		ActorID:   actor.ID,
		ActorType: order.ActorDriver,
		Cost:      cost,
		Charge:    !admin,
	})
	if err != nil {
		return nil, err
	}
	if res.Entry != nil {
		s.credits.Announce(ctx, *res.Entry)
	}
	s.removeCard(ctx, o.ID, cmd.Card)
	s.introduce(ctx, res.Order, actor)
	s.log.Info("order accepted",
		slog.String("order_id", string(o.ID)),
		slog.Int64("driver", int64(actor.ID)),
		slog.Int64("cost", cost),
		slog.Bool("charged", !admin))
	return res.Order, nil
}

// Cancel withdraws a pending order on behalf of its requester and removes the card.
func (s *Service) Cancel(ctx context.Context, orderID types.ID, requester types.UserID) (*order.Order, error) {
	o, err := s.orders.Cancel(ctx, order.CancelCommand{OrderID: orderID, RequesterID: requester})
	if err != nil {
		return nil, err
	}
	s.removeCard(ctx, o.ID, types.MessageRef{})
	return o, nil
}

func (s *Service) removeCard(ctx context.Context, id types.ID, pressed types.MessageRef) {
	card, ok, err := s.cards.Take(ctx, id)
	if err != nil {
		s.log.Warn("take card", slog.String("order_id", string(id)), slog.Any("err", err))
	}
	ref := pressed
	if ok {
		ref = card.Ref
	}
	s.notify.Delete(ctx, ref)
}

// introduce sends each side the other's contact details.
func (s *Service) introduce(ctx context.Context, o *order.Order, driver *user.User) {
	subject := "order " + string(o.ID)

	lang := s.languageOf(ctx, o.RequesterID)
	text := s.render.T(lang, "notify.order.accepted", i18n.Params{
		"name":   driver.FullName,
		"phone":  driver.Phone,
		"car":    driver.CarModel,
		"number": driver.CarNumber,
	}) + "\n\n" + s.render.Order(lang, o, render.Public)
	s.notify.Photo(ctx, o.RequesterID.Chat(), driver.CarPhoto, text, nil, subject)

	dlang := driver.Language
	if dlang == "" {
		dlang = s.render.Texts().Default()
	}
	text = s.render.T(dlang, "notify.order.taken", i18n.Params{"cost": o.Cost}) + "\n\n" + s.render.Order(dlang, o, render.Full)
	s.notify.Send(ctx, driver.ID.Chat(), text, nil, subject)
}

func (s *Service) languageOf(ctx context.Context, id types.UserID) string {
	u, err := s.users.Get(ctx, id)
	if err != nil || u.Language == "" {
		return s.render.Texts().Default()
	}
	return u.Language
}
