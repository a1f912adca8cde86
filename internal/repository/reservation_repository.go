package repository

import (
    "context"
    "database/sql"
    "errors"
    "fmt"
    "time"

    "github.com/iliyamo/class-reservation/internal/booking"
    "github.com/iliyamo/class-reservation/internal/model"
)

// ReservationRepo provides persistence for reservations.  Rows are never
// deleted: cancellation and fulfilment are status changes, and a cancelled
// row is reused when the same customer books the same class again.  All
// timestamp fields are stored in UTC.
type ReservationRepo struct {
    db      *sql.DB
    dialect Dialect
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB, d Dialect) *ReservationRepo {
    return &ReservationRepo{db: db, dialect: d}
}

const reservationColumns = `id, class_id, customer_id, status, waitlist_position, booked_at,
    cancelled_at, cancel_reason, cancelled_by, fulfilled_at, entitlement_id, debited_units,
    created_at, updated_at`

// scanReservation maps one reservations row onto model.Reservation,
// translating nullable columns into pointers.
func scanReservation(row rowScanner) (*model.Reservation, error) {
    var (
        res          model.Reservation
        status       string
        position     sql.NullInt64
        cancelledAt  sql.NullTime
        cancelReason sql.NullString
        cancelledBy  sql.NullString
        fulfilledAt  sql.NullTime
        entitlement  sql.NullInt64
    )
    err := row.Scan(&res.ID, &res.ClassID, &res.CustomerID, &status, &position, &res.BookedAt,
        &cancelledAt, &cancelReason, &cancelledBy, &fulfilledAt, &entitlement, &res.DebitedUnits,
        &res.CreatedAt, &res.UpdatedAt)
    if err != nil {
        return nil, err
    }
    if res.Status, err = booking.ParseStatus(status); err != nil {
        return nil, err
    }
    if position.Valid {
        p := int(position.Int64)
        res.WaitlistPosition = &p
    }
    if cancelReason.Valid {
        s := cancelReason.String
        res.CancelReason = &s
    }
    if cancelledBy.Valid {
        s := cancelledBy.String
        res.CancelledBy = &s
    }
    if entitlement.Valid {
        id := uint64(entitlement.Int64)
        res.EntitlementID = &id
    }
    res.BookedAt = res.BookedAt.UTC()
    res.CancelledAt = timePtr(cancelledAt)
    res.FulfilledAt = timePtr(fulfilledAt)
    return &res, nil
}

func scanReservations(rows *sql.Rows) ([]model.Reservation, error) {
    defer rows.Close()
    out := make([]model.Reservation, 0)
    for rows.Next() {
        res, err := scanReservation(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *res)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// CreateTx inserts a new reservation within the scope of an existing
// transaction and populates the generated ID.  A second row for the same
// (customer, class) pair violates the unique key and yields ErrConflict.
// The caller must commit or rollback the transaction.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
    now := time.Now().UTC()
    res.CreatedAt, res.UpdatedAt = now, now
    const q = `INSERT INTO reservations (class_id, customer_id, status, waitlist_position, booked_at,
                   cancelled_at, cancel_reason, cancelled_by, fulfilled_at, entitlement_id, debited_units,
                   created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    result, err := tx.ExecContext(ctx, q, res.ClassID, res.CustomerID, res.Status.String(),
        nullInt(res.WaitlistPosition), res.BookedAt.UTC(), nullTime(res.CancelledAt),
        nullString(res.CancelReason), nullString(res.CancelledBy), nullTime(res.FulfilledAt),
        nullID(res.EntitlementID), res.DebitedUnits, res.CreatedAt, res.UpdatedAt)
    if err != nil {
        if isDuplicate(err) {
            return fmt.Errorf("reservation for customer %d class %d: %w", res.CustomerID, res.ClassID, ErrConflict)
        }
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    res.ID = uint64(id)
    return nil
}

// UpdateTx writes every mutable column of res back to its row.  The
// coordinator always rewrites the full state so that fields tied to a
// status (position, cancellation, fulfilment) never linger.
func (r *ReservationRepo) UpdateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
    res.UpdatedAt = time.Now().UTC()
    const q = `UPDATE reservations
               SET status = ?, waitlist_position = ?, booked_at = ?, cancelled_at = ?, cancel_reason = ?,
                   cancelled_by = ?, fulfilled_at = ?, entitlement_id = ?, debited_units = ?, updated_at = ?
               WHERE id = ?`
    result, err := tx.ExecContext(ctx, q, res.Status.String(), nullInt(res.WaitlistPosition),
        res.BookedAt.UTC(), nullTime(res.CancelledAt), nullString(res.CancelReason),
        nullString(res.CancelledBy), nullTime(res.FulfilledAt), nullID(res.EntitlementID),
        res.DebitedUnits, res.UpdatedAt, res.ID)
    if err != nil {
        return err
    }
    n, err := result.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return ErrNotFound
    }
    return nil
}

// GetByIDTx loads a reservation inside tx, locking it on MySQL.  It returns
// ErrNotFound when no row exists.
func (r *ReservationRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error) {
    q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?` + r.dialect.forUpdate()
    res, err := scanReservation(tx.QueryRowContext(ctx, q, id))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return res, err
}

// ClassOfTx returns the class a reservation belongs to without locking the
// reservation row, so callers can lock the class first and keep the lock
// order class, reservation, entitlement.
func (r *ReservationRepo) ClassOfTx(ctx context.Context, tx *sql.Tx, id uint64) (uint64, error) {
    var classID uint64
    err := tx.QueryRowContext(ctx, `SELECT class_id FROM reservations WHERE id = ?`, id).Scan(&classID)
    if errors.Is(err, sql.ErrNoRows) {
        return 0, ErrNotFound
    }
    return classID, err
}

// GetByPairTx loads the reservation row for a (customer, class) pair inside
// tx, whatever its status.  It returns ErrNotFound when the customer never
// booked the class.
func (r *ReservationRepo) GetByPairTx(ctx context.Context, tx *sql.Tx, customerID, classID uint64) (*model.Reservation, error) {
    q := `SELECT ` + reservationColumns + ` FROM reservations WHERE customer_id = ? AND class_id = ?` + r.dialect.forUpdate()
    res, err := scanReservation(tx.QueryRowContext(ctx, q, customerID, classID))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return res, err
}

// ListWaitlistedTx returns the WAITLISTED reservations of a class ordered
// by booked_at then id.  The rows are locked on MySQL because callers
// promote or renumber them.
func (r *ReservationRepo) ListWaitlistedTx(ctx context.Context, tx *sql.Tx, classID uint64) ([]model.Reservation, error) {
    q := `SELECT ` + reservationColumns + ` FROM reservations
          WHERE class_id = ? AND status = 'WAITLISTED'
          ORDER BY booked_at, id` + r.dialect.forUpdate()
    rows, err := tx.QueryContext(ctx, q, classID)
    if err != nil {
        return nil, err
    }
    return scanReservations(rows)
}

// SetWaitlistPositionTx updates only the cached waitlist position of a
// reservation.
func (r *ReservationRepo) SetWaitlistPositionTx(ctx context.Context, tx *sql.Tx, id uint64, position int) error {
    _, err := tx.ExecContext(ctx,
        `UPDATE reservations SET waitlist_position = ?, updated_at = ? WHERE id = ? AND status = 'WAITLISTED'`,
        position, time.Now().UTC(), id)
    return err
}

// GetByID returns a single reservation.  It returns ErrNotFound when the
// row does not exist.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
    res, err := scanReservation(r.db.QueryRowContext(ctx,
        `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrNotFound
    }
    return res, err
}

// ListByCustomer returns all reservations of a customer, newest booking
// first.  When none exist an empty slice is returned.
func (r *ReservationRepo) ListByCustomer(ctx context.Context, customerID uint64) ([]model.Reservation, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+reservationColumns+` FROM reservations WHERE customer_id = ? ORDER BY booked_at DESC, id DESC`,
        customerID)
    if err != nil {
        return nil, err
    }
    return scanReservations(rows)
}

// ListByClass returns every reservation of a class ordered by booked_at
// then id, which is also waitlist order.
func (r *ReservationRepo) ListByClass(ctx context.Context, classID uint64) ([]model.Reservation, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+reservationColumns+` FROM reservations WHERE class_id = ? ORDER BY booked_at, id`,
        classID)
    if err != nil {
        return nil, err
    }
    return scanReservations(rows)
}
