// Package waitlist orders the overflow queue of a class.  A reservation's
// booked_at (then its id) is the source of truth for waitlist order; the
// stored position is a projection that is rewritten whenever the queue
// changes, so positions stay dense and strictly increasing with booked_at.
package waitlist

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/iliyamo/class-reservation/internal/model"
)

// Store is the persistence the manager needs.  *repository.ReservationRepo
// satisfies it.
type Store interface {
	ListWaitlistedTx(ctx context.Context, tx *sql.Tx, classID uint64) ([]model.Reservation, error)
	SetWaitlistPositionTx(ctx context.Context, tx *sql.Tx, id uint64, position int) error
}

// Manager assigns, retracts and promotes waitlist positions for one class
// at a time.  All methods run inside the caller's transaction.
type Manager struct {
	store Store
}

// NewManager returns a Manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Order sorts waitlisted reservations first-come-first-served: booked_at
// ascending, ties broken by id.
func Order(entries []model.Reservation) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.BookedAt.Equal(b.BookedAt) {
			return a.BookedAt.Before(b.BookedAt)
		}
		return a.ID < b.ID
	})
}

// Admit returns the position for a reservation joining the back of the
// class's waitlist.
func (m *Manager) Admit(ctx context.Context, tx *sql.Tx, classID uint64) (int, error) {
	entries, err := m.store.ListWaitlistedTx(ctx, tx, classID)
	if err != nil {
		return 0, fmt.Errorf("waitlist admit class %d: %w", classID, err)
	}
	return len(entries) + 1, nil
}

// Promote returns the head of the class's waitlist, or nil when the
// waitlist is empty.  Flipping it to CONFIRMED and calling Retract is left
// to the caller so the whole change lands in one transaction.
func (m *Manager) Promote(ctx context.Context, tx *sql.Tx, classID uint64) (*model.Reservation, error) {
	entries, err := m.store.ListWaitlistedTx(ctx, tx, classID)
	if err != nil {
		return nil, fmt.Errorf("waitlist promote class %d: %w", classID, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	Order(entries)
	head := entries[0]
	return &head, nil
}

// Retract renumbers the remaining waitlist 1..n by rank after an entry has
// left it (promotion or cancellation).  Only rows whose stored position
// differs from their rank are written.
func (m *Manager) Retract(ctx context.Context, tx *sql.Tx, classID uint64) error {
	entries, err := m.store.ListWaitlistedTx(ctx, tx, classID)
	if err != nil {
		return fmt.Errorf("waitlist retract class %d: %w", classID, err)
	}
	Order(entries)
	for i, e := range entries {
		rank := i + 1
		if e.WaitlistPosition != nil && *e.WaitlistPosition == rank {
			continue
		}
		if err := m.store.SetWaitlistPositionTx(ctx, tx, e.ID, rank); err != nil {
			return fmt.Errorf("waitlist renumber reservation %d: %w", e.ID, err)
		}
	}
	return nil
}
