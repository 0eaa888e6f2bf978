// README: In-memory user store for local mode and tests.
package user

import (
	"context"
	"sort"
	"sync"
	"time"

	"caravan/internal/types"
)

type MemoryStore struct {
	mu    sync.Mutex
	users map[types.UserID]*User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: map[types.UserID]*User{}}
}

func (m *MemoryStore) Ensure(_ context.Context, u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.users[u.ID]; ok {
		cp := *cur
		return &cp, nil
	}
	now := time.Now()
	nu := &User{
		ID:        u.ID,
		Role:      RoleCustomer,
		Language:  u.Language,
		Username:  u.Username,
		FullName:  u.FullName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.users[u.ID] = nu
	cp := *nu
	return &cp, nil
}

func (m *MemoryStore) Get(_ context.Context, id types.UserID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) update(id types.UserID, fn func(u *User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SetLanguage(_ context.Context, id types.UserID, lang string) error {
	return m.update(id, func(u *User) { u.Language = lang })
}

func (m *MemoryStore) SetContact(_ context.Context, id types.UserID, fullName, phone string) error {
	return m.update(id, func(u *User) { u.FullName, u.Phone = fullName, phone })
}

func (m *MemoryStore) SetRole(_ context.Context, id types.UserID, role Role) error {
	return m.update(id, func(u *User) { u.Role = role })
}

func (m *MemoryStore) Promote(_ context.Context, id types.UserID, p Profile) error {
	return m.update(id, func(u *User) {
		if u.Role != RoleAdmin {
			u.Role = RoleDriver
		}
		u.FullName, u.Phone, u.Direction = p.FullName, p.Phone, p.Direction
		u.CarModel, u.CarNumber, u.CarPhoto = p.CarModel, p.CarNumber, p.CarPhoto
	})
}

func (m *MemoryStore) ListByRole(_ context.Context, role Role) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AdjustBalance adds delta under the store lock. ok is false, and nothing changes,
// when the result would be negative.
func (m *MemoryStore) AdjustBalance(id types.UserID, delta int64) (balance int64, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, found := m.users[id]
	if !found {
		return 0, false, ErrNotFound
	}
	if u.Balance+delta < 0 {
		return u.Balance, false, nil
	}
	u.Balance += delta
	return u.Balance, true, nil
}
