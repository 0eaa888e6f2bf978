// README: In-memory order store for local mode and tests.
package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"caravan/internal/modules/ledger"
	"caravan/internal/types"
)

// Debiter is implemented by *ledger.MemoryStore.
type Debiter interface {
	Debit(ctx context.Context, m ledger.Mutation) (ledger.Entry, error)
}

// MemoryStore serializes every mutation behind one mutex, so the pending check and the
// debit in Accept happen as one step.
type MemoryStore struct {
	debiter Debiter

	mu           sync.Mutex
	orders       map[types.ID]*Order
	bySubmission map[string]types.ID
	events       []Event
}

func NewMemoryStore(debiter Debiter) *MemoryStore {
	return &MemoryStore{
		debiter:      debiter,
		orders:       map[types.ID]*Order{},
		bySubmission: map[string]types.ID{},
	}
}

func (m *MemoryStore) Create(_ context.Context, o *Order) (*Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.bySubmission[o.SubmissionKey]; ok {
		cp := *m.orders[id]
		return &cp, false, nil
	}
	stored := *o
	m.orders[o.ID] = &stored
	m.bySubmission[o.SubmissionKey] = o.ID
	m.appendLocked(Event{OrderID: o.ID, FromStatus: StatusNone, ToStatus: o.Status, ActorType: ActorRequester, ActorID: &o.RequesterID, CreatedAt: o.CreatedAt})
	cp := stored
	return &cp, true, nil
}

func (m *MemoryStore) Get(_ context.Context, id types.ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) ListByRequester(_ context.Context, requester types.UserID, limit int) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.RequesterID == requester {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Accept(ctx context.Context, cmd AcceptCommand) (AcceptResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[cmd.OrderID]
	if !ok {
		return AcceptResult{}, ErrNotFound
	}
	if o.Status != StatusPending {
		return AcceptResult{}, ErrAlreadyAccepted
	}
	var res AcceptResult
	if cmd.Charge && cmd.Cost > 0 {
		entry, err := m.debiter.Debit(ctx, ledger.Mutation{UserID: cmd.ActorID, Amount: cmd.Cost, Reference: ledger.OrderRef(o.ID)})
		if err != nil {
			return AcceptResult{}, err
		}
		res.Entry = &entry
	}
	now := time.Now().UTC()
	actor := cmd.ActorID
	o.Status = StatusAccepted
	o.StatusVersion++
	o.AcceptedBy = &actor
	o.Cost = cmd.Cost
	o.ResolvedAt = &now
	m.appendLocked(Event{OrderID: o.ID, FromStatus: StatusPending, ToStatus: StatusAccepted, ActorType: cmd.ActorType, ActorID: &actor, CreatedAt: now})
	cp := *o
	res.Order = &cp
	return res, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, t Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[t.OrderID]
	if !ok || o.Status != t.From || o.StatusVersion != t.Version {
		return false, nil
	}
	now := time.Now().UTC()
	o.Status = t.To
	o.StatusVersion++
	if t.AcceptedBy != nil {
		a := *t.AcceptedBy
		o.AcceptedBy = &a
	}
	o.Reason = t.Reason
	o.ResolvedAt = &now
	m.appendLocked(Event{OrderID: o.ID, FromStatus: t.From, ToStatus: t.To, ActorType: t.ActorType, ActorID: t.ActorID, CreatedAt: now})
	return true, nil
}

func (m *MemoryStore) Events(_ context.Context, id types.ID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.OrderID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) appendLocked(e Event) {
	e.ID = int64(len(m.events) + 1)
	m.events = append(m.events, e)
}
