// README: Order store backed by PostgreSQL.
package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caravan/internal/modules/ledger"
	"caravan/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const orderColumns = `
	id, submission_key, category, requester_id, full_name, phone,
	from_country, from_region, from_city, to_country, to_region, to_city,
	travel_date, status, status_version, accepted_by, cost, payload, reason,
	created_at, resolved_at`

// Create inserts o. A repeated submission key returns the stored order and created=false.
func (s *Store) Create(ctx context.Context, o *Order) (*Order, bool, error) {
	payload, err := json.Marshal(o.Payload)
	if err != nil {
		return nil, false, err
	}
	var created bool
	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO orders (
				id, submission_key, category, requester_id, full_name, phone,
				from_country, from_region, from_city, to_country, to_region, to_city,
				travel_date, status, status_version, cost, payload, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 0, $15, $16, $17)
			ON CONFLICT (submission_key) DO NOTHING`,
			string(o.ID), o.SubmissionKey, string(o.Category), int64(o.RequesterID), o.FullName, o.Phone,
			o.From.Country, o.From.Region, o.From.City, o.To.Country, o.To.Region, o.To.City,
			o.TravelDate, string(o.Status), o.Cost, payload, o.CreatedAt,
		)
		if err != nil {
			return err
		}
		created = tag.RowsAffected() == 1
		if !created {
			return nil
		}
		return appendEvent(ctx, tx, &Event{
			OrderID:    o.ID,
			FromStatus: StatusNone,
			ToStatus:   o.Status,
			ActorType:  ActorRequester,
			ActorID:    &o.RequesterID,
			CreatedAt:  o.CreatedAt,
		})
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		return o, true, nil
	}
	existing, err := scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE submission_key = $1`, o.SubmissionKey))
	return existing, false, err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	return scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id)))
}

func (s *Store) ListByRequester(ctx context.Context, requester types.UserID, limit int) ([]Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE requester_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, int64(requester), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// Accept moves the order from pending to accepted and, when cmd.Charge is set, debits the
// acceptor in the same transaction. Only one concurrent caller can match status = 'pending'.
func (s *Store) Accept(ctx context.Context, cmd AcceptCommand) (AcceptResult, error) {
	var res AcceptResult
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx, `
			UPDATE orders
			SET status = 'accepted',
			    status_version = status_version + 1,
			    accepted_by = $2,
			    cost = $3,
			    resolved_at = NOW()
			WHERE id = $1 AND status = 'pending'
			RETURNING `+orderColumns, string(cmd.OrderID), int64(cmd.ActorID), cmd.Cost))
		if errors.Is(err, ErrNotFound) {
			if _, getErr := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(cmd.OrderID))); getErr != nil {
				return getErr
			}
			return ErrAlreadyAccepted
		}
		if err != nil {
			return err
		}
		if cmd.Charge && cmd.Cost > 0 {
			entry, err := ledger.DebitWith(ctx, tx, ledger.Mutation{
				UserID:    cmd.ActorID,
				Amount:    cmd.Cost,
				Reference: ledger.OrderRef(o.ID),
			})
			if err != nil {
				return err
			}
			res.Entry = &entry
		}
		res.Order = o
		return appendEvent(ctx, tx, &Event{
			OrderID:    o.ID,
			FromStatus: StatusPending,
			ToStatus:   StatusAccepted,
			ActorType:  cmd.ActorType,
			ActorID:    &cmd.ActorID,
			CreatedAt:  time.Now().UTC(),
		})
	})
	if err != nil {
		return AcceptResult{}, err
	}
	return res, nil
}

// UpdateStatus is a compare-and-set on (status, status_version).
func (s *Store) UpdateStatus(ctx context.Context, t Transition) (bool, error) {
	var ok bool
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders
			SET status = $1,
			    status_version = status_version + 1,
			    accepted_by = COALESCE($2, accepted_by),
			    reason = $3,
			    resolved_at = NOW()
			WHERE id = $4 AND status = $5 AND status_version = $6`,
			string(t.To), userIDPtr(t.AcceptedBy), t.Reason, string(t.OrderID), string(t.From), t.Version,
		)
		if err != nil {
			return err
		}
		ok = tag.RowsAffected() == 1
		if !ok {
			return nil
		}
		return appendEvent(ctx, tx, &Event{
			OrderID:    t.OrderID,
			FromStatus: t.From,
			ToStatus:   t.To,
			ActorType:  t.ActorType,
			ActorID:    t.ActorID,
			CreatedAt:  time.Now().UTC(),
		})
	})
	return ok, err
}

func (s *Store) Events(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, from_status, to_status, actor_type, actor_id, created_at
		FROM order_state_events WHERE order_id = $1 ORDER BY id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var actor sql.NullInt64
		if err := rows.Scan(&e.ID, &e.OrderID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actor, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actor.Valid {
			a := types.UserID(actor.Int64)
			e.ActorID = &a
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func appendEvent(ctx context.Context, tx pgx.Tx, e *Event) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_state_events (order_id, from_status, to_status, actor_type, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID), string(e.FromStatus), string(e.ToStatus), string(e.ActorType), userIDPtr(e.ActorID), e.CreatedAt,
	)
	return err
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var requester int64
	var acceptedBy sql.NullInt64
	var payload []byte
	var resolvedAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.SubmissionKey, &o.Category, &requester, &o.FullName, &o.Phone,
		&o.From.Country, &o.From.Region, &o.From.City, &o.To.Country, &o.To.Region, &o.To.City,
		&o.TravelDate, &o.Status, &o.StatusVersion, &acceptedBy, &o.Cost, &payload, &o.Reason,
		&o.CreatedAt, &resolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.RequesterID = types.UserID(requester)
	if acceptedBy.Valid {
		a := types.UserID(acceptedBy.Int64)
		o.AcceptedBy = &a
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		o.ResolvedAt = &t
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &o.Payload); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

func userIDPtr(v *types.UserID) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}
