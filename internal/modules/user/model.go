// README: User directory records (role, language, phone, ball balance).
package user

import (
	"errors"
	"time"

	"caravan/internal/types"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// CanAccept reports whether the role may claim broadcast orders.
func (r Role) CanAccept() bool {
	return r == RoleDriver || r == RoleAdmin
}

type User struct {
	ID        types.UserID
	Role      Role
	Language  string
	Phone     string
	FullName  string
	Username  string
	Direction string
	CarModel  string
	CarNumber string
	CarPhoto  string
	// Balance is changed only through the ledger.
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Profile is what an approved driver application copies onto the user.
type Profile struct {
	FullName  string
	Phone     string
	Direction string
	CarModel  string
	CarNumber string
	CarPhoto  string
}

var (
	ErrNotFound    = errors.New("user not found")
	ErrInvalidRole = errors.New("invalid role")
)
