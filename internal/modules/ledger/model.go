// README: Ball ledger entries and errors.
package ledger

import (
	"errors"
	"time"

	"caravan/internal/types"
)

type EntryKind string

const (
	KindDebit  EntryKind = "debit"
	KindCredit EntryKind = "credit"
)

// Entry is one journal row. BalanceAfter is the balance right after the mutation.
type Entry struct {
	ID           types.ID
	UserID       types.UserID
	Kind         EntryKind
	Amount       int64
	BalanceAfter int64
	Reference    string
	CreatedAt    time.Time
}

// Mutation is a requested balance change.
type Mutation struct {
	UserID    types.UserID
	Amount    int64
	Reference string
}

var (
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrUnknownUser        = errors.New("ledger: unknown user")
)

// OrderRef and TopUpRef build journal references.
func OrderRef(id types.ID) string { return "order:" + string(id) }

func TopUpRef(id types.ID) string { return "topup:" + string(id) }
