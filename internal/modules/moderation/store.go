// README: Moderation store backed by PostgreSQL. Approvals apply their effect in the same transaction.
package moderation

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caravan/internal/modules/ledger"
	"caravan/internal/modules/user"
	"caravan/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const applicationColumns = `
	id, submission_key, applicant_id, direction, full_name, phone, passport_photo, sts_photo,
	license_photo, car_model, car_number, car_year, capacity, car_photo, status, moderator_id,
	reason, created_at, resolved_at`

const topUpColumns = `
	id, submission_key, driver_id, amount, proof_ref, status, moderator_id, reason, created_at, resolved_at`

func (s *Store) CreateApplication(ctx context.Context, a *DriverApplication) (*DriverApplication, bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO driver_applications (
			id, submission_key, applicant_id, direction, full_name, phone, passport_photo, sts_photo,
			license_photo, car_model, car_number, car_year, capacity, car_photo, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (submission_key) DO NOTHING`,
		string(a.ID), a.SubmissionKey, int64(a.ApplicantID), a.Direction, a.FullName, a.Phone,
		a.PassportPhoto, a.STSPhoto, a.LicensePhoto, a.CarModel, a.CarNumber, a.CarYear, a.Capacity,
		a.CarPhoto, string(a.Status), a.CreatedAt)
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 1 {
		return a, true, nil
	}
	existing, err := scanApplication(s.db.QueryRow(ctx, `SELECT `+applicationColumns+` FROM driver_applications WHERE submission_key = $1`, a.SubmissionKey))
	return existing, false, err
}

func (s *Store) GetApplication(ctx context.Context, id types.ID) (*DriverApplication, error) {
	return scanApplication(s.db.QueryRow(ctx, `SELECT `+applicationColumns+` FROM driver_applications WHERE id = $1`, string(id)))
}

func (s *Store) PendingApplications(ctx context.Context, limit int) ([]DriverApplication, error) {
	rows, err := s.db.Query(ctx, `SELECT `+applicationColumns+` FROM driver_applications WHERE status = 'pending' ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DriverApplication
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ApproveApplication resolves the application and promotes the applicant atomically.
func (s *Store) ApproveApplication(ctx context.Context, id types.ID, moderator types.UserID) (*DriverApplication, error) {
	var out *DriverApplication
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		a, err := resolveApplication(ctx, tx, id, StatusApproved, moderator, "")
		if err != nil {
			return err
		}
		if err := user.PromoteWith(ctx, tx, a.ApplicantID, a.Profile()); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

func (s *Store) RejectApplication(ctx context.Context, id types.ID, moderator types.UserID, reason string) (*DriverApplication, error) {
	var out *DriverApplication
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		out, err = resolveApplication(ctx, tx, id, StatusRejected, moderator, reason)
		return err
	})
	return out, err
}

func resolveApplication(ctx context.Context, tx pgx.Tx, id types.ID, to Status, moderator types.UserID, reason string) (*DriverApplication, error) {
	a, err := scanApplication(tx.QueryRow(ctx, `
		UPDATE driver_applications
		SET status = $2, moderator_id = $3, reason = $4, resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+applicationColumns, string(id), string(to), int64(moderator), reason))
	if errors.Is(err, ErrNotFound) {
		return nil, missingOrResolved(ctx, tx, `SELECT EXISTS (SELECT 1 FROM driver_applications WHERE id = $1)`, id)
	}
	return a, err
}

func (s *Store) CreateTopUp(ctx context.Context, t *TopUpRequest) (*TopUpRequest, bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO topup_requests (id, submission_key, driver_id, amount, proof_ref, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (submission_key) DO NOTHING`,
		string(t.ID), t.SubmissionKey, int64(t.DriverID), t.Amount, t.ProofRef, string(t.Status), t.CreatedAt)
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 1 {
		return t, true, nil
	}
	existing, err := scanTopUp(s.db.QueryRow(ctx, `SELECT `+topUpColumns+` FROM topup_requests WHERE submission_key = $1`, t.SubmissionKey))
	return existing, false, err
}

func (s *Store) GetTopUp(ctx context.Context, id types.ID) (*TopUpRequest, error) {
	return scanTopUp(s.db.QueryRow(ctx, `SELECT `+topUpColumns+` FROM topup_requests WHERE id = $1`, string(id)))
}

func (s *Store) PendingTopUps(ctx context.Context, limit int) ([]TopUpRequest, error) {
	rows, err := s.db.Query(ctx, `SELECT `+topUpColumns+` FROM topup_requests WHERE status = 'pending' ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TopUpRequest
	for rows.Next() {
		t, err := scanTopUp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ApproveTopUp resolves the request and credits the driver in one transaction.
func (s *Store) ApproveTopUp(ctx context.Context, id types.ID, moderator types.UserID) (*TopUpRequest, *ledger.Entry, error) {
	var out *TopUpRequest
	var entry ledger.Entry
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		t, err := resolveTopUp(ctx, tx, id, StatusApproved, moderator, "")
		if err != nil {
			return err
		}
		entry, err = ledger.CreditWith(ctx, tx, ledger.Mutation{UserID: t.DriverID, Amount: t.Amount, Reference: ledger.TopUpRef(t.ID)})
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, &entry, nil
}

func (s *Store) RejectTopUp(ctx context.Context, id types.ID, moderator types.UserID, reason string) (*TopUpRequest, error) {
	var out *TopUpRequest
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		out, err = resolveTopUp(ctx, tx, id, StatusRejected, moderator, reason)
		return err
	})
	return out, err
}

func resolveTopUp(ctx context.Context, tx pgx.Tx, id types.ID, to Status, moderator types.UserID, reason string) (*TopUpRequest, error) {
	t, err := scanTopUp(tx.QueryRow(ctx, `
		UPDATE topup_requests
		SET status = $2, moderator_id = $3, reason = $4, resolved_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+topUpColumns, string(id), string(to), int64(moderator), reason))
	if errors.Is(err, ErrNotFound) {
		return nil, missingOrResolved(ctx, tx, `SELECT EXISTS (SELECT 1 FROM topup_requests WHERE id = $1)`, id)
	}
	return t, err
}

func missingOrResolved(ctx context.Context, tx pgx.Tx, query string, id types.ID) error {
	var exists bool
	if err := tx.QueryRow(ctx, query, string(id)).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadyResolved
}

func scanApplication(row pgx.Row) (*DriverApplication, error) {
	var a DriverApplication
	var applicant int64
	var moderator sql.NullInt64
	var resolvedAt sql.NullTime
	err := row.Scan(&a.ID, &a.SubmissionKey, &applicant, &a.Direction, &a.FullName, &a.Phone,
		&a.PassportPhoto, &a.STSPhoto, &a.LicensePhoto, &a.CarModel, &a.CarNumber, &a.CarYear,
		&a.Capacity, &a.CarPhoto, &a.Status, &moderator, &a.Reason, &a.CreatedAt, &resolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.ApplicantID = types.UserID(applicant)
	a.ModeratorID = nullUser(moderator)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}

func scanTopUp(row pgx.Row) (*TopUpRequest, error) {
	var t TopUpRequest
	var driver int64
	var moderator sql.NullInt64
	var resolvedAt sql.NullTime
	err := row.Scan(&t.ID, &t.SubmissionKey, &driver, &t.Amount, &t.ProofRef, &t.Status, &moderator, &t.Reason, &t.CreatedAt, &resolvedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.DriverID = types.UserID(driver)
	t.ModeratorID = nullUser(moderator)
	if resolvedAt.Valid {
		rt := resolvedAt.Time
		t.ResolvedAt = &rt
	}
	return &t, nil
}

func nullUser(v sql.NullInt64) *types.UserID {
	if !v.Valid {
		return nil
	}
	u := types.UserID(v.Int64)
	return &u
}
