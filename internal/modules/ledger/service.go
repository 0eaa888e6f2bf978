// README: Credit ledger service: balance reads, debits, credits and journal history.
package ledger

import (
	"context"
	"log/slog"

	"caravan/internal/events"
	"caravan/internal/types"
)

type Repository interface {
	Balance(ctx context.Context, id types.UserID) (int64, error)
	Debit(ctx context.Context, m Mutation) (Entry, error)
	Credit(ctx context.Context, m Mutation) (Entry, error)
	History(ctx context.Context, id types.UserID, limit int) ([]Entry, error)
}

type Service struct {
	store  Repository
	events events.Publisher
	log    *slog.Logger
}

func NewService(store Repository, pub events.Publisher, log *slog.Logger) *Service {
	return &Service{store: store, events: pub, log: log.With(slog.String("component", "ledger"))}
}

func (s *Service) Balance(ctx context.Context, id types.UserID) (int64, error) {
	return s.store.Balance(ctx, id)
}

// Debit fails with ErrInsufficientCredit and leaves the balance untouched when it would go negative.
func (s *Service) Debit(ctx context.Context, m Mutation) (Entry, error) {
	e, err := s.store.Debit(ctx, m)
	if err != nil {
		return Entry{}, err
	}
	s.Announce(ctx, e)
	return e, nil
}

// Credit adds balls. Only an approved top-up reaches this path.
func (s *Service) Credit(ctx context.Context, m Mutation) (Entry, error) {
	e, err := s.store.Credit(ctx, m)
	if err != nil {
		return Entry{}, err
	}
	s.Announce(ctx, e)
	return e, nil
}

func (s *Service) History(ctx context.Context, id types.UserID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.History(ctx, id, limit)
}

// Announce emits the journal entry as an event. Callers that mutate balances inside
// their own transaction call it after commit.
func (s *Service) Announce(ctx context.Context, e Entry) {
	t := events.LedgerCredited
	if e.Kind == KindDebit {
		t = events.LedgerDebited
	}
	err := s.events.Publish(ctx, events.Event{
		Type:      t,
		SubjectID: string(e.ID),
		ActorID:   int64(e.UserID),
		Amount:    e.Amount,
		Attrs:     map[string]string{"reference": e.Reference},
		At:        e.CreatedAt,
	})
	if err != nil {
		s.log.Warn("publish ledger event", slog.String("entry", string(e.ID)), slog.Any("err", err))
	}
}
