// README: In-memory moderation store. Approval effects run while the record is locked.
package moderation

import (
	"context"
	"sort"
	"sync"
	"time"

	"caravan/internal/modules/ledger"
	"caravan/internal/modules/user"
	"caravan/internal/types"
)

// Promoter is implemented by *user.MemoryStore.
type Promoter interface {
	Promote(ctx context.Context, id types.UserID, p user.Profile) error
}

// Crediter is implemented by *ledger.MemoryStore.
type Crediter interface {
	Credit(ctx context.Context, m ledger.Mutation) (ledger.Entry, error)
}

type MemoryStore struct {
	users  Promoter
	ledger Crediter

	mu     sync.Mutex
	apps   map[types.ID]*DriverApplication
	topups map[types.ID]*TopUpRequest
	keys   map[string]types.ID
}

func NewMemoryStore(users Promoter, credits Crediter) *MemoryStore {
	return &MemoryStore{
		users:  users,
		ledger: credits,
		apps:   map[types.ID]*DriverApplication{},
		topups: map[types.ID]*TopUpRequest{},
		keys:   map[string]types.ID{},
	}
}

func (m *MemoryStore) CreateApplication(_ context.Context, a *DriverApplication) (*DriverApplication, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[a.SubmissionKey]; ok {
		if existing, ok := m.apps[id]; ok {
			cp := *existing
			return &cp, false, nil
		}
	}
	cp := *a
	m.apps[a.ID] = &cp
	m.keys[a.SubmissionKey] = a.ID
	return a, true, nil
}

func (m *MemoryStore) GetApplication(_ context.Context, id types.ID) (*DriverApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) PendingApplications(_ context.Context, limit int) ([]DriverApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DriverApplication
	for _, a := range m.apps {
		if a.Status == StatusPending {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ApproveApplication(ctx context.Context, id types.ID, moderator types.UserID) (*DriverApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}
	if err := m.users.Promote(ctx, a.ApplicantID, a.Profile()); err != nil {
		return nil, err
	}
	resolve(&a.Status, &a.ModeratorID, &a.Reason, &a.ResolvedAt, StatusApproved, moderator, "")
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) RejectApplication(_ context.Context, id types.ID, moderator types.UserID, reason string) (*DriverApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}
	resolve(&a.Status, &a.ModeratorID, &a.Reason, &a.ResolvedAt, StatusRejected, moderator, reason)
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) CreateTopUp(_ context.Context, t *TopUpRequest) (*TopUpRequest, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.keys[t.SubmissionKey]; ok {
		if existing, ok := m.topups[id]; ok {
			cp := *existing
			return &cp, false, nil
		}
	}
	cp := *t
	m.topups[t.ID] = &cp
	m.keys[t.SubmissionKey] = t.ID
	return t, true, nil
}

func (m *MemoryStore) GetTopUp(_ context.Context, id types.ID) (*TopUpRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.topups[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) PendingTopUps(_ context.Context, limit int) ([]TopUpRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TopUpRequest
	for _, t := range m.topups {
		if t.Status == StatusPending {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ApproveTopUp(ctx context.Context, id types.ID, moderator types.UserID) (*TopUpRequest, *ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.topups[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if t.Status != StatusPending {
		return nil, nil, ErrAlreadyResolved
	}
	entry, err := m.ledger.Credit(ctx, ledger.Mutation{UserID: t.DriverID, Amount: t.Amount, Reference: ledger.TopUpRef(t.ID)})
	if err != nil {
		return nil, nil, err
	}
	resolve(&t.Status, &t.ModeratorID, &t.Reason, &t.ResolvedAt, StatusApproved, moderator, "")
	cp := *t
	return &cp, &entry, nil
}

func (m *MemoryStore) RejectTopUp(_ context.Context, id types.ID, moderator types.UserID, reason string) (*TopUpRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.topups[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}
	resolve(&t.Status, &t.ModeratorID, &t.Reason, &t.ResolvedAt, StatusRejected, moderator, reason)
	cp := *t
	return &cp, nil
}

func resolve(status *Status, mod **types.UserID, reason *string, at **time.Time, to Status, moderator types.UserID, why string) {
	now := time.Now().UTC()
	*status = to
	*mod = &moderator
	*reason = why
	*at = &now
}
