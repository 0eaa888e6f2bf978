// README: User directory service.
package user

import (
	"context"
	"fmt"

	"caravan/internal/types"
)

type Repository interface {
	Ensure(ctx context.Context, u *User) (*User, error)
	Get(ctx context.Context, id types.UserID) (*User, error)
	SetLanguage(ctx context.Context, id types.UserID, lang string) error
	SetContact(ctx context.Context, id types.UserID, fullName, phone string) error
	SetRole(ctx context.Context, id types.UserID, role Role) error
	Promote(ctx context.Context, id types.UserID, p Profile) error
	ListByRole(ctx context.Context, role Role) ([]User, error)
}

type Service struct {
	store  Repository
	admins map[types.UserID]bool
}

// NewService builds the directory. Users listed in admins are raised to admin on first sight.
func NewService(store Repository, admins ...types.UserID) *Service {
	set := make(map[types.UserID]bool, len(admins))
	for _, a := range admins {
		set[a] = true
	}
	return &Service{store: store, admins: set}
}

type EnsureCommand struct {
	ID       types.UserID
	Language string
	Username string
	FullName string
}

// Ensure returns the user, creating a customer record on first contact.
func (s *Service) Ensure(ctx context.Context, cmd EnsureCommand) (*User, error) {
	u, err := s.store.Ensure(ctx, &User{ID: cmd.ID, Language: cmd.Language, Username: cmd.Username, FullName: cmd.FullName})
	if err != nil {
		return nil, fmt.Errorf("ensure user %d: %w", cmd.ID, err)
	}
	if s.admins[u.ID] && u.Role != RoleAdmin {
		if err := s.store.SetRole(ctx, u.ID, RoleAdmin); err != nil {
			return nil, err
		}
		u.Role = RoleAdmin
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id types.UserID) (*User, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) SetLanguage(ctx context.Context, id types.UserID, lang string) error {
	return s.store.SetLanguage(ctx, id, lang)
}

func (s *Service) SetContact(ctx context.Context, id types.UserID, fullName, phone string) error {
	return s.store.SetContact(ctx, id, fullName, phone)
}

func (s *Service) SetRole(ctx context.Context, id types.UserID, role Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	return s.store.SetRole(ctx, id, role)
}

// Promote is called only by the moderation workflow on an approved driver application.
func (s *Service) Promote(ctx context.Context, id types.UserID, p Profile) error {
	return s.store.Promote(ctx, id, p)
}

// Admins lists moderator accounts.
func (s *Service) Admins(ctx context.Context) ([]User, error) {
	return s.store.ListByRole(ctx, RoleAdmin)
}
