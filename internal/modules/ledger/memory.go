// README: In-memory ledger over the in-memory user store.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"caravan/internal/modules/user"
	"caravan/internal/types"
)

// Balances is implemented by *user.MemoryStore.
type Balances interface {
	AdjustBalance(id types.UserID, delta int64) (balance int64, ok bool, err error)
}

type MemoryStore struct {
	users Balances

	mu      sync.Mutex
	entries []Entry
}

func NewMemoryStore(users Balances) *MemoryStore {
	return &MemoryStore{users: users}
}

func (m *MemoryStore) Balance(_ context.Context, id types.UserID) (int64, error) {
	bal, _, err := m.users.AdjustBalance(id, 0)
	if errors.Is(err, user.ErrNotFound) {
		return 0, ErrUnknownUser
	}
	return bal, err
}

func (m *MemoryStore) Debit(_ context.Context, mu Mutation) (Entry, error) {
	if mu.Amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	return m.apply(KindDebit, mu, -mu.Amount)
}

func (m *MemoryStore) Credit(_ context.Context, mu Mutation) (Entry, error) {
	if mu.Amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	return m.apply(KindCredit, mu, mu.Amount)
}

func (m *MemoryStore) apply(kind EntryKind, mu Mutation, delta int64) (Entry, error) {
	bal, ok, err := m.users.AdjustBalance(mu.UserID, delta)
	if errors.Is(err, user.ErrNotFound) {
		return Entry{}, ErrUnknownUser
	}
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, ErrInsufficientCredit
	}
	e := Entry{
		ID:           types.NewID(),
		UserID:       mu.UserID,
		Kind:         kind,
		Amount:       mu.Amount,
		BalanceAfter: bal,
		Reference:    mu.Reference,
		CreatedAt:    time.Now().UTC(),
	}
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return e, nil
}

func (m *MemoryStore) History(_ context.Context, id types.UserID, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].UserID == id {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}
