// README: Ball pricing overrides stored in PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetRate(ctx context.Context, category string) (Rate, error) {
	r := Rate{Category: category}
	err := s.db.QueryRow(ctx, `SELECT per_unit, flat FROM ball_pricing WHERE category = $1`, category).Scan(&r.PerUnit, &r.Flat)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rate{}, ErrRateNotFound
	}
	return r, err
}

func (s *Store) SetRate(ctx context.Context, r Rate) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ball_pricing (category, per_unit, flat, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (category) DO UPDATE SET per_unit = EXCLUDED.per_unit, flat = EXCLUDED.flat, updated_at = NOW()`,
		r.Category, r.PerUnit, r.Flat)
	return err
}
