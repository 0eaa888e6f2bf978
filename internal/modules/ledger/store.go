// README: Ledger store backed by PostgreSQL; balance lives on users, history in ledger_entries.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"caravan/internal/types"
)

// Querier is implemented by *pgxpool.Pool and pgx.Tx so mutations can join a caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Balance(ctx context.Context, id types.UserID) (int64, error) {
	var bal int64
	err := s.db.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1`, int64(id)).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUnknownUser
	}
	return bal, err
}

func (s *Store) Debit(ctx context.Context, m Mutation) (Entry, error) {
	var e Entry
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		e, err = DebitWith(ctx, tx, m)
		return err
	})
	return e, err
}

func (s *Store) Credit(ctx context.Context, m Mutation) (Entry, error) {
	var e Entry
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		e, err = CreditWith(ctx, tx, m)
		return err
	})
	return e, err
}

func (s *Store) History(ctx context.Context, id types.UserID, limit int) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, kind, amount, balance_after, reference, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, int64(id), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var uid int64
		if err := rows.Scan(&e.ID, &uid, &e.Kind, &e.Amount, &e.BalanceAfter, &e.Reference, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = types.UserID(uid)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DebitWith decrements the balance only if it covers the amount, then journals the change.
// Zero rows updated means either an unknown user or a short balance.
func DebitWith(ctx context.Context, q Querier, m Mutation) (Entry, error) {
	if m.Amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	var bal int64
	err := q.QueryRow(ctx, `
		UPDATE users SET balance = balance - $2, updated_at = NOW()
		WHERE id = $1 AND balance >= $2
		RETURNING balance`, int64(m.UserID), m.Amount).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, int64(m.UserID)).Scan(&exists); err != nil {
			return Entry{}, err
		}
		if !exists {
			return Entry{}, ErrUnknownUser
		}
		return Entry{}, ErrInsufficientCredit
	}
	if err != nil {
		return Entry{}, err
	}
	return journal(ctx, q, KindDebit, m, bal)
}

func CreditWith(ctx context.Context, q Querier, m Mutation) (Entry, error) {
	if m.Amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	var bal int64
	err := q.QueryRow(ctx, `
		UPDATE users SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING balance`, int64(m.UserID), m.Amount).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrUnknownUser
	}
	if err != nil {
		return Entry{}, err
	}
	return journal(ctx, q, KindCredit, m, bal)
}

func journal(ctx context.Context, q Querier, kind EntryKind, m Mutation, bal int64) (Entry, error) {
	e := Entry{
		ID:           types.NewID(),
		UserID:       m.UserID,
		Kind:         kind,
		Amount:       m.Amount,
		BalanceAfter: bal,
		Reference:    m.Reference,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := q.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, kind, amount, balance_after, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(e.ID), int64(e.UserID), string(e.Kind), e.Amount, e.BalanceAfter, e.Reference, e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}
