package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/class-reservation/internal/model"
)

// EntitlementRepo persists customers' prepaid balances.  Balance changes
// only happen through UpdateRemainingTx inside the reservation
// coordinator's transaction, after the row was read with a lock.
type EntitlementRepo struct {
	db      *sql.DB
	dialect Dialect
}

// NewEntitlementRepo returns a new EntitlementRepo bound to the given database.
func NewEntitlementRepo(db *sql.DB, d Dialect) *EntitlementRepo {
	return &EntitlementRepo{db: db, dialect: d}
}

const entitlementColumns = `id, customer_id, kind, remaining, active, valid_from, valid_until, created_at, updated_at`

func scanEntitlement(row rowScanner) (*model.Entitlement, error) {
	var (
		e          model.Entitlement
		kind       string
		validUntil sql.NullTime
	)
	if err := row.Scan(&e.ID, &e.CustomerID, &kind, &e.Remaining, &e.Active, &e.ValidFrom,
		&validUntil, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	k, err := model.ParseEntitlementKind(kind)
	if err != nil {
		return nil, err
	}
	e.Kind = k
	e.ValidFrom = e.ValidFrom.UTC()
	e.ValidUntil = timePtr(validUntil)
	return &e, nil
}

// Create inserts an entitlement and assigns the generated ID.  Issuing
// entitlements belongs to billing; this is used by seeding and tests.
func (r *EntitlementRepo) Create(ctx context.Context, e *model.Entitlement) error {
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	const q = `INSERT INTO entitlements (customer_id, kind, remaining, active, valid_from, valid_until, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, e.CustomerID, e.Kind.String(), e.Remaining, e.Active,
		e.ValidFrom.UTC(), nullTime(e.ValidUntil), e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	return nil
}

// GetByID fetches an entitlement by id.  It returns ErrNotFound when the
// row does not exist.
func (r *EntitlementRepo) GetByID(ctx context.Context, id uint64) (*model.Entitlement, error) {
	e, err := scanEntitlement(r.db.QueryRowContext(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// GetByIDTx fetches an entitlement inside tx and locks it on MySQL.
func (r *EntitlementRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Entitlement, error) {
	q := `SELECT ` + entitlementColumns + ` FROM entitlements WHERE id = ?` + r.dialect.forUpdate()
	e, err := scanEntitlement(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ActiveForCustomerTx returns the customer's entitlements flagged active,
// locked on MySQL, ordered by id.  Validity windows are evaluated by the
// ledger, not in SQL, so that selection follows one set of rules.
func (r *EntitlementRepo) ActiveForCustomerTx(ctx context.Context, tx *sql.Tx, customerID uint64) ([]model.Entitlement, error) {
	q := `SELECT ` + entitlementColumns + ` FROM entitlements WHERE customer_id = ? AND active = ? ORDER BY id` + r.dialect.forUpdate()
	rows, err := tx.QueryContext(ctx, q, customerID, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Entitlement, 0)
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateRemainingTx stores a new balance for an entitlement inside tx.
func (r *EntitlementRepo) UpdateRemainingTx(ctx context.Context, tx *sql.Tx, id uint64, remaining int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE entitlements SET remaining = ?, updated_at = ? WHERE id = ?`,
		remaining, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
