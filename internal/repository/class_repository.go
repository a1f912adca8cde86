// Package repository contains data access logic for the reservation engine.
// This file covers classes: scheduled, capacity-limited occurrences that
// customers reserve.  The catalog owns classes; the engine reads them and
// locks them while it decides on capacity.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/class-reservation/internal/model"
)

// ClassRepo manages persistence for classes.
type ClassRepo struct {
	db      *sql.DB
	dialect Dialect
}

// NewClassRepo constructs a ClassRepo with the given DB handle.
func NewClassRepo(db *sql.DB, d Dialect) *ClassRepo {
	return &ClassRepo{db: db, dialect: d}
}

// DB exposes the underlying sql.DB.  It allows callers to begin
// transactions spanning multiple repositories.
func (r *ClassRepo) DB() *sql.DB {
	return r.db
}

const classColumns = `id, title, capacity, waitlist_limit, starts_at, ends_at, status, credit_cost, created_at, updated_at`

func scanClass(row rowScanner) (model.Class, error) {
	var c model.Class
	err := row.Scan(&c.ID, &c.Title, &c.Capacity, &c.WaitlistLimit, &c.StartsAt, &c.EndsAt,
		&c.Status, &c.CreditCost, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.Class{}, err
	}
	c.StartsAt = c.StartsAt.UTC()
	c.EndsAt = c.EndsAt.UTC()
	return c, nil
}

// Create inserts a new class and assigns the generated ID.  Status defaults
// to SCHEDULED and CreditCost to 1 when left empty.  It exists for seeding
// and tests; the catalog service owns class creation in production.
func (r *ClassRepo) Create(ctx context.Context, c *model.Class) error {
	if c.Status == "" {
		c.Status = model.ClassScheduled
	}
	if c.CreditCost < 1 {
		c.CreditCost = 1
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	const q = `INSERT INTO classes (title, capacity, waitlist_limit, starts_at, ends_at, status, credit_cost, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, c.Title, c.Capacity, c.WaitlistLimit,
		c.StartsAt.UTC(), c.EndsAt.UTC(), c.Status, c.CreditCost, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

// GetByID retrieves a class by its ID.  It returns ErrNotFound if there is
// no matching row.
func (r *ClassRepo) GetByID(ctx context.Context, id uint64) (*model.Class, error) {
	c, err := scanClass(r.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// SetStatus changes the status of a class (SCHEDULED or CANCELLED).
func (r *ClassRepo) SetStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE classes SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
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

// SnapshotTx reads a class together with its current CONFIRMED and
// WAITLISTED counts inside tx.  On MySQL the class row is locked FOR UPDATE,
// so every transaction that takes a snapshot of the same class is
// serialised until commit and the counts cannot go stale before the caller
// writes.  It returns ErrNotFound when the class does not exist.
func (r *ClassRepo) SnapshotTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.ClassSnapshot, error) {
	q := `SELECT ` + classColumns + ` FROM classes WHERE id = ?` + r.dialect.forUpdate()
	c, err := scanClass(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	snap := &model.ClassSnapshot{Class: c}
	const countQ = `SELECT status, COUNT(*) FROM reservations
                    WHERE class_id = ? AND status IN ('CONFIRMED', 'WAITLISTED')
                    GROUP BY status`
	rows, err := tx.QueryContext(ctx, countQ, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		switch status {
		case "CONFIRMED":
			snap.Confirmed = n
		case "WAITLISTED":
			snap.Waitlisted = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Snapshot is SnapshotTx outside of a transaction, for read-only views such
// as the public availability endpoint.  No lock is taken.
func (r *ClassRepo) Snapshot(ctx context.Context, id uint64) (*model.ClassSnapshot, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: r.dialect == MySQL})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	c, err := scanClass(tx.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	snap := &model.ClassSnapshot{Class: c}
	err = tx.QueryRowContext(ctx,
		`SELECT
            COALESCE(SUM(CASE WHEN status = 'CONFIRMED' THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN status = 'WAITLISTED' THEN 1 ELSE 0 END), 0)
         FROM reservations WHERE class_id = ?`, id).Scan(&snap.Confirmed, &snap.Waitlisted)
	if err != nil {
		return nil, err
	}
	return snap, nil
}
