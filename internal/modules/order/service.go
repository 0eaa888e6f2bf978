// README: Order service implements creation, acceptance, cancellation and ticket resolution.
package order

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"caravan/internal/events"
	"caravan/internal/modules/ledger"
	"caravan/internal/types"
)

type Repository interface {
	Create(ctx context.Context, o *Order) (*Order, bool, error)
	Get(ctx context.Context, id types.ID) (*Order, error)
	ListByRequester(ctx context.Context, requester types.UserID, limit int) ([]Order, error)
	Accept(ctx context.Context, cmd AcceptCommand) (AcceptResult, error)
	UpdateStatus(ctx context.Context, t Transition) (bool, error)
	Events(ctx context.Context, id types.ID) ([]Event, error)
}

type Service struct {
	store  Repository
	events events.Publisher
	log    *slog.Logger
}

func NewService(store Repository, pub events.Publisher, log *slog.Logger) *Service {
	return &Service{store: store, events: pub, log: log.With(slog.String("component", "order"))}
}

type CreateCommand struct {
	SubmissionKey string
	Category      Category
	RequesterID   types.UserID
	FullName      string
	Phone         string
	From          Location
	To            Location
	TravelDate    string
	Payload       Payload
	// Cost is the quote shown in the summary. Accept prices the order again.
	Cost int64
}

// AcceptCommand claims a pending order. Charge is false for admins, who accept for free.
type AcceptCommand struct {
	OrderID   types.ID
	ActorID   types.UserID
	ActorType ActorType
	Cost      int64
	Charge    bool
}

type AcceptResult struct {
	Order *Order
	Entry *ledger.Entry
}

type CancelCommand struct {
	OrderID     types.ID
	RequesterID types.UserID
}

type ResolveCommand struct {
	OrderID     types.ID
	ModeratorID types.UserID
	Approve     bool
	Reason      string
}

type Transition struct {
	OrderID    types.ID
	From       Status
	To         Status
	Version    int
	ActorType  ActorType
	ActorID    *types.UserID
	AcceptedBy *types.UserID
	Reason     string
}

// Create persists a pending order. Repeating a submission key returns the first order with
// created=false, so a double confirm never produces two orders.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, bool, error) {
	if err := validateCreate(cmd); err != nil {
		return nil, false, err
	}
	o := &Order{
		ID:            types.NewID(),
		SubmissionKey: cmd.SubmissionKey,
		Category:      cmd.Category,
		RequesterID:   cmd.RequesterID,
		FullName:      cmd.FullName,
		Phone:         cmd.Phone,
		From:          cmd.From,
		To:            cmd.To,
		TravelDate:    cmd.TravelDate,
		Status:        StatusPending,
		Payload:       cmd.Payload,
		Cost:          cmd.Cost,
		CreatedAt:     time.Now().UTC(),
	}
	stored, created, err := s.store.Create(ctx, o)
	if err != nil {
		return nil, false, err
	}
	if created {
		s.publish(ctx, events.OrderCreated, stored, cmd.RequesterID, StatusNone)
	}
	return stored, created, nil
}

func validateCreate(cmd CreateCommand) error {
	if cmd.SubmissionKey == "" || cmd.RequesterID == 0 || !cmd.Category.Valid() {
		return ErrBadRequest
	}
	if strings.TrimSpace(cmd.FullName) == "" || strings.TrimSpace(cmd.Phone) == "" {
		return ErrBadRequest
	}
	if cmd.Cost < 0 {
		return ErrBadRequest
	}
	if cmd.Category == CategoryTaxi && cmd.Payload.Passengers < 1 {
		return ErrBadRequest
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByRequester(ctx context.Context, requester types.UserID, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.ListByRequester(ctx, requester, limit)
}

func (s *Service) Events(ctx context.Context, id types.ID) ([]Event, error) {
	return s.store.Events(ctx, id)
}

// Accept is the single atomic read-check-write of the acceptance protocol. Losers of a race
// get ErrAlreadyAccepted; a short balance gets ledger.ErrInsufficientCredit and nothing changes.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (AcceptResult, error) {
	if cmd.OrderID == "" || cmd.ActorID == 0 || cmd.Cost < 0 {
		return AcceptResult{}, ErrBadRequest
	}
	if cmd.ActorType == "" {
		cmd.ActorType = ActorDriver
	}
	res, err := s.store.Accept(ctx, cmd)
	if err != nil {
		return AcceptResult{}, err
	}
	s.publish(ctx, events.OrderAccepted, res.Order, cmd.ActorID, StatusPending)
	return res, nil
}

// Cancel is legal only for the requester and only while pending.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.RequesterID != cmd.RequesterID {
		return nil, ErrNotOwner
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, ErrInvalidState
	}
	actor := cmd.RequesterID
	if err := s.transition(ctx, Transition{
		OrderID:   o.ID,
		From:      o.Status,
		To:        StatusCancelled,
		Version:   o.StatusVersion,
		ActorType: ActorRequester,
		ActorID:   &actor,
	}); err != nil {
		return nil, err
	}
	o.Status = StatusCancelled
	o.StatusVersion++
	s.publish(ctx, events.OrderCancelled, o, actor, StatusPending)
	return o, nil
}

// Resolve approves or rejects a ticket order on behalf of a moderator.
func (s *Service) Resolve(ctx context.Context, cmd ResolveCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if !o.Category.Ticket() {
		return nil, ErrBadRequest
	}
	to := StatusRejected
	var acceptedBy *types.UserID
	mod := cmd.ModeratorID
	if cmd.Approve {
		to = StatusAccepted
		acceptedBy = &mod
	}
	if !CanTransition(o.Status, to) {
		return nil, ErrInvalidState
	}
	if err := s.transition(ctx, Transition{
		OrderID:    o.ID,
		From:       o.Status,
		To:         to,
		Version:    o.StatusVersion,
		ActorType:  ActorModerator,
		ActorID:    &mod,
		AcceptedBy: acceptedBy,
		Reason:     cmd.Reason,
	}); err != nil {
		return nil, err
	}
	o.Status = to
	o.StatusVersion++
	o.AcceptedBy = acceptedBy
	o.Reason = cmd.Reason
	s.publish(ctx, events.OrderResolved, o, mod, StatusPending)
	return o, nil
}

func (s *Service) transition(ctx context.Context, t Transition) error {
	ok, err := s.store.UpdateStatus(ctx, t)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (s *Service) publish(ctx context.Context, t events.Type, o *Order, actor types.UserID, from Status) {
	err := s.events.Publish(ctx, events.Event{
		Type:      t,
		SubjectID: string(o.ID),
		Kind:      string(o.Category),
		ActorID:   int64(actor),
		From:      string(from),
		To:        string(o.Status),
		Amount:    o.Cost,
	})
	if err != nil {
		s.log.Warn("publish order event", slog.String("order_id", string(o.ID)), slog.Any("err", err))
	}
}
