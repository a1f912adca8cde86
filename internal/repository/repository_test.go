package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/class-reservation/internal/booking"
	"github.com/iliyamo/class-reservation/internal/model"
	"github.com/iliyamo/class-reservation/internal/repository"
	"github.com/iliyamo/class-reservation/internal/testfixtures"
)

func withTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	fn(tx)
	require.NoError(t, tx.Commit())
}

func newReservation(classID, customerID uint64, status booking.Status, bookedAt time.Time) *model.Reservation {
	return &model.Reservation{
		ClassID:    classID,
		CustomerID: customerID,
		Status:     status,
		BookedAt:   bookedAt,
	}
}

func TestClassSnapshotCountsActiveStates(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()
	class := h.CreateClass(t, testfixtures.WithCapacity(3, 2))
	at := testfixtures.ReferenceTime()

	withTx(t, h.DB, func(tx *sql.Tx) {
		require.NoError(t, h.Reservations.CreateTx(ctx, tx, newReservation(class.ID, 1, booking.Confirmed, at)))
		require.NoError(t, h.Reservations.CreateTx(ctx, tx, newReservation(class.ID, 2, booking.Confirmed, at)))
		pos := 1
		w := newReservation(class.ID, 3, booking.Waitlisted, at)
		w.WaitlistPosition = &pos
		require.NoError(t, h.Reservations.CreateTx(ctx, tx, w))
		require.NoError(t, h.Reservations.CreateTx(ctx, tx, newReservation(class.ID, 4, booking.Cancelled, at)))
		require.NoError(t, h.Reservations.CreateTx(ctx, tx, newReservation(class.ID, 5, booking.Completed, at)))
	})

	var snap *model.ClassSnapshot
	withTx(t, h.DB, func(tx *sql.Tx) {
		var err error
		snap, err = h.Classes.SnapshotTx(ctx, tx, class.ID)
		require.NoError(t, err)
	})
	assert.Equal(t, 2, snap.Confirmed)
	assert.Equal(t, 1, snap.Waitlisted)
	assert.True(t, snap.HasCapacity())
	assert.True(t, snap.HasWaitlistRoom())
	assert.True(t, snap.StartsAt.Equal(class.StartsAt))

	plain, err := h.Classes.Snapshot(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Confirmed, plain.Confirmed)
	assert.Equal(t, snap.Waitlisted, plain.Waitlisted)

	_, err = h.Classes.Snapshot(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestClassSetStatus(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()
	class := h.CreateClass(t)

	require.NoError(t, h.Classes.SetStatus(ctx, class.ID, model.ClassCancelled))
	got, err := h.Classes.GetByID(ctx, class.ID)
	require.NoError(t, err)
	assert.True(t, got.Cancelled())

	assert.ErrorIs(t, h.Classes.SetStatus(ctx, 999, model.ClassCancelled), repository.ErrNotFound)
}

func TestReservationUniquePair(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()
	class := h.CreateClass(t, testfixtures.WithCapacity(5, 0))
	at := testfixtures.ReferenceTime()

	withTx(t, h.DB, func(tx *sql.Tx) {
		require.NoError(t, h.Reservations.CreateTx(ctx, tx, newReservation(class.ID, 7, booking.Confirmed, at)))
	})

	tx, err := h.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()
	err = h.Reservations.CreateTx(ctx, tx, newReservation(class.ID, 7, booking.Cancelled, at))
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestReservationRoundTripsNullableColumns(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()
	class := h.CreateClass(t, testfixtures.WithCapacity(5, 0))
	ent := h.CreateEntitlement(t, 9, model.CreditCount, 3)
	at := testfixtures.ReferenceTime().Add(1500 * time.Microsecond)

	res := newReservation(class.ID, 9, booking.Confirmed, at)
	res.EntitlementID = &ent.ID
	res.DebitedUnits = 2
	withTx(t, h.DB, func(tx *sql.Tx) {
		require.NoError(t, h.Reservations.CreateTx(ctx, tx, res))
	})

	got := h.Reservation(t, res.ID)
	assert.Equal(t, booking.Confirmed, got.Status)
	assert.True(t, got.BookedAt.Equal(at), "booked_at %s != %s", got.BookedAt, at)
	require.NotNil(t, got.EntitlementID)
	assert.Equal(t, ent.ID, *got.EntitlementID)
	assert.Equal(t, 2, got.DebitedUnits)
	assert.Nil(t, got.WaitlistPosition)
	assert.Nil(t, got.CancelledAt)

	cancelledAt := at.Add(time.Minute)
	reason, by := "sick", "CUSTOMER:9"
	got.Status = booking.Cancelled
	got.CancelledAt = &cancelledAt
	got.CancelReason = &reason
	got.CancelledBy = &by
	withTx(t, h.DB, func(tx *sql.Tx) {
		require.NoError(t, h.Reservations.UpdateTx(ctx, tx, got))
	})

	again := h.Reservation(t, res.ID)
	assert.Equal(t, booking.Cancelled, again.Status)
	require.NotNil(t, again.CancelledAt)
	assert.True(t, again.CancelledAt.Equal(cancelledAt))
	require.NotNil(t, again.CancelReason)
	assert.Equal(t, "sick", *again.CancelReason)
	require.NotNil(t, again.CancelledBy)
	assert.Equal(t, "CUSTOMER:9", *again.CancelledBy)
}

func TestListWaitlistedOrdersByBookedAt(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()
	class := h.CreateClass(t, testfixtures.WithCapacity(1, 5))
	base := testfixtures.ReferenceTime()

	withTx(t, h.DB, func(tx *sql.Tx) {
		require.NoError(t, h.Reservations.CreateTx(ctx, tx, newReservation(class.ID, 1, booking.Waitlisted, base.Add(2*time.Second))))
		require.NoError(t, h.Reservations.CreateTx(ctx, tx, newReservation(class.ID, 2, booking.Waitlisted, base)))
		require.NoError(t, h.Reservations.CreateTx(ctx, tx, newReservation(class.ID, 3, booking.Confirmed, base)))
		require.NoError(t, h.Reservations.CreateTx(ctx, tx, newReservation(class.ID, 4, booking.Waitlisted, base.Add(time.Second))))
	})

	withTx(t, h.DB, func(tx *sql.Tx) {
		list, err := h.Reservations.ListWaitlistedTx(ctx, tx, class.ID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []uint64{2, 4, 1}, []uint64{list[0].CustomerID, list[1].CustomerID, list[2].CustomerID})

		require.NoError(t, h.Reservations.SetWaitlistPositionTx(ctx, tx, list[0].ID, 1))
		classID, err := h.Reservations.ClassOfTx(ctx, tx, list[0].ID)
		require.NoError(t, err)
		assert.Equal(t, class.ID, classID)
	})

	byCustomer, err := h.Reservations.ListByCustomer(ctx, 2)
	require.NoError(t, err)
	require.Len(t, byCustomer, 1)
	require.NotNil(t, byCustomer[0].WaitlistPosition)
	assert.Equal(t, 1, *byCustomer[0].WaitlistPosition)

	byClass, err := h.Reservations.ListByClass(ctx, class.ID)
	require.NoError(t, err)
	assert.Len(t, byClass, 4)

	_, err = h.Reservations.GetByID(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEntitlementBalanceUpdates(t *testing.T) {
	h := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()
	until := testfixtures.ReferenceTime().Add(30 * 24 * time.Hour)
	first := h.CreateEntitlement(t, 5, model.SessionCount, 10)
	second := &model.Entitlement{
		CustomerID: 5,
		Kind:       model.Unlimited,
		Active:     true,
		ValidFrom:  testfixtures.ReferenceTime(),
		ValidUntil: &until,
	}
	require.NoError(t, h.Entitlements.Create(ctx, second))
	inactive := &model.Entitlement{CustomerID: 5, Kind: model.CreditCount, Remaining: 4, ValidFrom: testfixtures.ReferenceTime()}
	require.NoError(t, h.Entitlements.Create(ctx, inactive))

	withTx(t, h.DB, func(tx *sql.Tx) {
		list, err := h.Entitlements.ActiveForCustomerTx(ctx, tx, 5)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, first.ID, list[0].ID)
		assert.Equal(t, model.Unlimited, list[1].Kind)
		require.NotNil(t, list[1].ValidUntil)
		assert.True(t, list[1].ValidUntil.Equal(until))

		require.NoError(t, h.Entitlements.UpdateRemainingTx(ctx, tx, first.ID, 9))
		assert.ErrorIs(t, h.Entitlements.UpdateRemainingTx(ctx, tx, 999, 1), repository.ErrNotFound)
	})
	assert.Equal(t, 9, h.Remaining(t, first.ID))
}
