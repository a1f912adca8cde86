// Package testfixtures provides helpers shared by tests: a migrated SQLite
// database, a controllable clock and seed records.
package testfixtures

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/iliyamo/class-reservation/internal/database"
	"github.com/iliyamo/class-reservation/internal/model"
	"github.com/iliyamo/class-reservation/internal/repository"
)

// SQLiteHarness bundles a migrated temporary SQLite database with the
// repositories over it.
type SQLiteHarness struct {
	DB           *sql.DB
	Classes      *repository.ClassRepo
	Reservations *repository.ReservationRepo
	Entitlements *repository.EntitlementRepo
}

// NewSQLiteHarness opens a fresh database file under tb.TempDir and
// migrates it.  The database is closed when the test ends.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	ctx := context.Background()
	path := filepath.Join(tb.TempDir(), "reservations.db")
	db, err := database.OpenSQLite(ctx, path)
	if err != nil {
		tb.Fatalf("failed to open sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })
	if err := repository.Migrate(ctx, db, repository.SQLite); err != nil {
		tb.Fatalf("failed to migrate sqlite: %v", err)
	}
	return &SQLiteHarness{
		DB:           db,
		Classes:      repository.NewClassRepo(db, repository.SQLite),
		Reservations: repository.NewReservationRepo(db, repository.SQLite),
		Entitlements: repository.NewEntitlementRepo(db, repository.SQLite),
	}
}

// ClassOption adjusts a class before it is inserted.
type ClassOption func(*model.Class)

// WithCapacity sets capacity and waitlist limit.
func WithCapacity(capacity, waitlistLimit int) ClassOption {
	return func(c *model.Class) {
		c.Capacity = capacity
		c.WaitlistLimit = waitlistLimit
	}
}

// WithCreditCost sets the credit price of the class.
func WithCreditCost(cost int) ClassOption {
	return func(c *model.Class) { c.CreditCost = cost }
}

// StartingAt schedules a one-hour class at start.
func StartingAt(start time.Time) ClassOption {
	return func(c *model.Class) {
		c.StartsAt = start
		c.EndsAt = start.Add(time.Hour)
	}
}

// Cancelled marks the class as called off.
func Cancelled() ClassOption {
	return func(c *model.Class) { c.Status = model.ClassCancelled }
}

// CreateClass inserts a one-hour class starting a day after ReferenceTime
// with capacity 1 and no waitlist, adjusted by opts.
func (h *SQLiteHarness) CreateClass(tb testing.TB, opts ...ClassOption) *model.Class {
	tb.Helper()
	start := ReferenceTime().Add(24 * time.Hour)
	c := &model.Class{
		Title:    "Morning Flow",
		Capacity: 1,
		StartsAt: start,
		EndsAt:   start.Add(time.Hour),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := h.Classes.Create(context.Background(), c); err != nil {
		tb.Fatalf("failed to create class: %v", err)
	}
	return c
}

// CreateEntitlement inserts an active entitlement valid from a week before
// ReferenceTime with no expiry.
func (h *SQLiteHarness) CreateEntitlement(tb testing.TB, customerID uint64, kind model.EntitlementKind, remaining int) *model.Entitlement {
	tb.Helper()
	e := &model.Entitlement{
		CustomerID: customerID,
		Kind:       kind,
		Remaining:  remaining,
		Active:     true,
		ValidFrom:  ReferenceTime().Add(-7 * 24 * time.Hour),
	}
	if err := h.Entitlements.Create(context.Background(), e); err != nil {
		tb.Fatalf("failed to create entitlement: %v", err)
	}
	return e
}

// Remaining reads an entitlement's balance.
func (h *SQLiteHarness) Remaining(tb testing.TB, entitlementID uint64) int {
	tb.Helper()
	e, err := h.Entitlements.GetByID(context.Background(), entitlementID)
	if err != nil {
		tb.Fatalf("failed to load entitlement %d: %v", entitlementID, err)
	}
	return e.Remaining
}

// Reservation reads a reservation by id.
func (h *SQLiteHarness) Reservation(tb testing.TB, id uint64) *model.Reservation {
	tb.Helper()
	r, err := h.Reservations.GetByID(context.Background(), id)
	if err != nil {
		tb.Fatalf("failed to load reservation %d: %v", id, err)
	}
	return r
}

// CountReservations counts a class's reservations in the given status.
func (h *SQLiteHarness) CountReservations(tb testing.TB, classID uint64, status string) int {
	tb.Helper()
	var n int
	err := h.DB.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM reservations WHERE class_id = ? AND status = ?`, classID, status).Scan(&n)
	if err != nil {
		tb.Fatalf("failed to count reservations: %v", err)
	}
	return n
}
