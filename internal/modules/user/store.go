// README: User store backed by PostgreSQL.
package user

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"caravan/internal/types"
)

// Querier is implemented by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Ensure inserts the user as a customer unless the row exists, then returns the stored row.
func (s *Store) Ensure(ctx context.Context, u *User) (*User, error) {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, role, language, username, full_name, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING`,
		int64(u.ID), string(RoleCustomer), u.Language, u.Username, u.FullName,
	)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, u.ID)
}

func (s *Store) Get(ctx context.Context, id types.UserID) (*User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, role, language, phone, full_name, username, direction,
		       car_model, car_number, car_photo, balance, created_at, updated_at
		FROM users WHERE id = $1`, int64(id))
	var u User
	var uid int64
	err := row.Scan(&uid, &u.Role, &u.Language, &u.Phone, &u.FullName, &u.Username, &u.Direction,
		&u.CarModel, &u.CarNumber, &u.CarPhoto, &u.Balance, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.ID = types.UserID(uid)
	return &u, nil
}

func (s *Store) SetLanguage(ctx context.Context, id types.UserID, lang string) error {
	return s.exec(ctx, `UPDATE users SET language = $2, updated_at = NOW() WHERE id = $1`, int64(id), lang)
}

func (s *Store) SetContact(ctx context.Context, id types.UserID, fullName, phone string) error {
	return s.exec(ctx, `
		UPDATE users SET full_name = $2, phone = $3, updated_at = NOW() WHERE id = $1`,
		int64(id), fullName, phone)
}

func (s *Store) SetRole(ctx context.Context, id types.UserID, role Role) error {
	return s.exec(ctx, `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, int64(id), string(role))
}

// Promote makes the user a driver and stores the vehicle profile.
func (s *Store) Promote(ctx context.Context, id types.UserID, p Profile) error {
	return PromoteWith(ctx, s.db, id, p)
}

// PromoteWith runs the promotion on q so it can share a caller's transaction.
// Admins keep their role.
func PromoteWith(ctx context.Context, q Querier, id types.UserID, p Profile) error {
	tag, err := q.Exec(ctx, `
		UPDATE users SET
			role = CASE WHEN role = 'admin' THEN role ELSE 'driver' END,
			full_name = $2, phone = $3, direction = $4,
			car_model = $5, car_number = $6, car_photo = $7,
			updated_at = NOW()
		WHERE id = $1`,
		int64(id), p.FullName, p.Phone, p.Direction, p.CarModel, p.CarNumber, p.CarPhoto)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListByRole(ctx context.Context, role Role) ([]User, error) {
	rows, err := s.db.Query(ctx, `SELECT id, language FROM users WHERE role = $1 ORDER BY id`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var uid int64
		var u User
		if err := rows.Scan(&uid, &u.Language); err != nil {
			return nil, err
		}
		u.ID = types.UserID(uid)
		u.Role = role
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
