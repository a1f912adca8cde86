// Package service hosts the reservation coordinator: the only place that
// changes reservations and entitlement balances.  Every operation runs in a
// single database transaction that locks the class row first, so capacity
// and waitlist decisions are made against committed rows and never against
// cached counters.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/class-reservation/internal/booking"
	"github.com/iliyamo/class-reservation/internal/ledger"
	"github.com/iliyamo/class-reservation/internal/logging"
	"github.com/iliyamo/class-reservation/internal/metrics"
	"github.com/iliyamo/class-reservation/internal/model"
	"github.com/iliyamo/class-reservation/internal/queue"
	"github.com/iliyamo/class-reservation/internal/repository"
	"github.com/iliyamo/class-reservation/internal/waitlist"
)

// Recorder receives reservation events after the transaction that produced
// them has committed.  Errors are logged and counted but never undo the
// reservation change.
type Recorder interface {
	Record(ctx context.Context, ev queue.Event) error
}

// Policy holds the time windows the coordinator enforces.
type Policy struct {
	// CancelLeadTime is how long before the class starts customers may
	// still cancel.  Staff are not bound by it.
	CancelLeadTime time.Duration
	// CheckInOpensBefore and CheckInClosesAfter widen the class's
	// [starts_at, ends_at] interval into the check-in window.
	CheckInOpensBefore time.Duration
	CheckInClosesAfter time.Duration
}

// DefaultPolicy is used when configuration does not override the windows.
func DefaultPolicy() Policy {
	return Policy{
		CancelLeadTime:     2 * time.Hour,
		CheckInOpensBefore: 30 * time.Minute,
		CheckInClosesAfter: 15 * time.Minute,
	}
}

// Action tells the caller how a reserve request was satisfied.
type Action string

const (
	ActionConfirmed   Action = "CONFIRMED"
	ActionWaitlisted  Action = "WAITLISTED"
	ActionReactivated Action = "REACTIVATED"
)

// ReserveResult is returned by Reserve.
type ReserveResult struct {
	Reservation *model.Reservation `json:"reservation"`
	Action      Action             `json:"action"`
}

// CancelResult names the cancelled reservation and, when the cancellation
// freed a seat, the waitlisted reservation that took it.
type CancelResult struct {
	Cancelled *model.Reservation `json:"cancelled"`
	Promoted  *model.Reservation `json:"promoted,omitempty"`
}

// CheckInResult is returned by CheckIn.
type CheckInResult struct {
	Reservation *model.Reservation `json:"reservation"`
}

// Availability is the public view of a class's occupancy.
type Availability struct {
	ClassID       uint64    `json:"class_id"`
	Title         string    `json:"title"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	Capacity      int       `json:"capacity"`
	Confirmed     int       `json:"confirmed"`
	Available     int       `json:"available"`
	WaitlistLimit int       `json:"waitlist_limit"`
	Waitlisted    int       `json:"waitlisted"`
	Bookable      bool      `json:"bookable"`
}

// Roster is the staff view of a class: who is coming, who is waiting and
// what happened to the rest.
type Roster struct {
	Class     model.Class         `json:"class"`
	Confirmed []model.Reservation `json:"confirmed"`
	Waitlist  []model.Reservation `json:"waitlist"`
	CheckedIn []model.Reservation `json:"checked_in"`
	NoShow    []model.Reservation `json:"no_show"`
	Cancelled []model.Reservation `json:"cancelled"`
}

// ReservationService coordinates the booking state machine, the waitlist
// and the balance ledger.  It is safe for concurrent use.
type ReservationService struct {
	db           *sql.DB
	classes      *repository.ClassRepo
	reservations *repository.ReservationRepo
	entitlements *repository.EntitlementRepo
	waitlist     *waitlist.Manager
	policy       Policy
	recorder     Recorder
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// Option customises a ReservationService.
type Option func(*ReservationService)

// WithRecorder sets the sink that receives events after commit.
func WithRecorder(r Recorder) Option {
	return func(s *ReservationService) { s.recorder = r }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ReservationService) { s.metrics = m }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *ReservationService) { s.logger = l }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *ReservationService) { s.now = now }
}

// NewReservationService wires a coordinator over db.
func NewReservationService(db *sql.DB, dialect repository.Dialect, policy Policy, opts ...Option) *ReservationService {
	if db == nil {
		panic("nil database passed to NewReservationService")
	}
	reservations := repository.NewReservationRepo(db, dialect)
	s := &ReservationService{
		db:           db,
		classes:      repository.NewClassRepo(db, dialect),
		reservations: reservations,
		entitlements: repository.NewEntitlementRepo(db, dialect),
		waitlist:     waitlist.NewManager(reservations),
		policy:       policy,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// clock returns the current time in UTC truncated to what DATETIME(6)
// stores, so values read back compare equal to the ones written.
func (s *ReservationService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *ReservationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	pairs := append([]any{"service", "reservation", "operation", operation}, attrs...)
	return logging.With(ctx, s.logger, pairs...)
}

// finish reports the outcome of an operation to metrics and the log.
// Expected business failures are logged at info, anything else at error.
func (s *ReservationService) finish(logger *slog.Logger, operation string, started time.Time, err error) {
	outcome := "OK"
	if err != nil {
		outcome = booking.Code(err)
	}
	s.metrics.ObserveOperation(operation, outcome, time.Since(started))
	switch {
	case err == nil:
		logger.Debug("operation completed")
	case booking.IsExpected(err):
		logger.Info("operation rejected", "code", outcome, "error", err)
	default:
		logger.Error("operation failed", "code", outcome, "error", err)
	}
}

// record hands events to the recorder once the transaction is committed.
// The request context may already be cancelled by then, so the events get
// their own deadline.
func (s *ReservationService) record(ctx context.Context, logger *slog.Logger, events ...queue.Event) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, ev := range events {
		if err := s.recorder.Record(ctx, ev); err != nil {
			s.metrics.IncPublishFailure(ev.Name)
			logger.Warn("event not recorded", "event", ev.Name, "event_id", ev.ID, "error", err)
		}
	}
}

// Reserve books classID for customerID.  The customer's entitlement is
// debited at reservation time whether the result is CONFIRMED or
// WAITLISTED; a reservation that cannot be placed at all leaves the balance
// untouched.  A CANCELLED reservation for the same pair is reactivated in
// place rather than duplicated.
func (s *ReservationService) Reserve(ctx context.Context, customerID, classID uint64) (result ReserveResult, err error) {
	started := time.Now()
	logger := s.loggerWith(ctx, "reserve", "customer_id", customerID, "class_id", classID)
	defer func() { s.finish(logger, "reserve", started, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ReserveResult{}, fmt.Errorf("begin reserve: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	snap, err := s.classes.SnapshotTx(ctx, tx, classID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ReserveResult{}, fmt.Errorf("class %d: %w", classID, booking.ErrResourceNotFound)
		}
		return ReserveResult{}, fmt.Errorf("load class %d: %w", classID, err)
	}
	// read under the class lock so booked_at follows the order in which
	// waitlist positions are handed out
	now := s.clock()
	if !snap.Bookable(now) {
		return ReserveResult{}, fmt.Errorf("class %d is cancelled or has started: %w", classID, booking.ErrResourceNotFound)
	}

	existing, err := s.reservations.GetByPairTx(ctx, tx, customerID, classID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return ReserveResult{}, fmt.Errorf("load reservation: %w", err)
	}
	current := booking.None
	if existing != nil {
		current = existing.Status
		if current.Active() {
			return ReserveResult{}, fmt.Errorf("reservation %d is %s: %w", existing.ID, current, booking.ErrAlreadyBooked)
		}
	}

	candidates, err := s.entitlements.ActiveForCustomerTx(ctx, tx, customerID)
	if err != nil {
		return ReserveResult{}, fmt.Errorf("load entitlements: %w", err)
	}
	ent := ledger.Select(candidates, snap.CreditCost, now)
	if ent == nil {
		return ReserveResult{}, booking.ErrNoActiveEntitlement
	}
	posting, err := ledger.Debit(ent, snap.CreditCost, now)
	if err != nil {
		return ReserveResult{}, err
	}
	if posting.Units > 0 {
		if err := s.entitlements.UpdateRemainingTx(ctx, tx, ent.ID, ent.Remaining); err != nil {
			return ReserveResult{}, fmt.Errorf("debit entitlement %d: %w", ent.ID, err)
		}
	}

	next, err := booking.Next(current, booking.Reserve, booking.Occupancy{
		CapacityAvailable: snap.HasCapacity(),
		WaitlistRoom:      snap.HasWaitlistRoom(),
	})
	if err != nil {
		// the debit above is discarded with the transaction
		return ReserveResult{}, err
	}

	res := existing
	action := ActionReactivated
	if res == nil {
		res = &model.Reservation{ClassID: classID, CustomerID: customerID}
		action = ActionConfirmed
		if next == booking.Waitlisted {
			action = ActionWaitlisted
		}
	}
	res.Status = next
	res.BookedAt = now
	res.WaitlistPosition = nil
	res.CancelledAt, res.CancelReason, res.CancelledBy = nil, nil, nil
	res.FulfilledAt = nil
	entitlementID := posting.EntitlementID
	res.EntitlementID = &entitlementID
	res.DebitedUnits = posting.Units
	if next == booking.Waitlisted {
		position, err := s.waitlist.Admit(ctx, tx, classID)
		if err != nil {
			return ReserveResult{}, err
		}
		res.WaitlistPosition = &position
	}

	if existing == nil {
		if err := s.reservations.CreateTx(ctx, tx, res); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ReserveResult{}, fmt.Errorf("%v: %w", err, booking.ErrAlreadyBooked)
			}
			return ReserveResult{}, fmt.Errorf("create reservation: %w", err)
		}
	} else if err := s.reservations.UpdateTx(ctx, tx, res); err != nil {
		return ReserveResult{}, fmt.Errorf("reactivate reservation %d: %w", res.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return ReserveResult{}, fmt.Errorf("commit reserve: %w", err)
	}
	committed = true

	name := queue.EventConfirmed
	switch {
	case action == ActionReactivated:
		name = queue.EventReactivated
	case next == booking.Waitlisted:
		name = queue.EventWaitlisted
	}
	s.record(ctx, logger, queue.NewEvent(name, res, now))
	return ReserveResult{Reservation: res, Action: action}, nil
}

// Cancel cancels a CONFIRMED or WAITLISTED reservation on behalf of actor,
// restores exactly the units that were debited for it and, when a
// confirmed seat was freed, promotes the head of the waitlist in the same
// transaction.  Customers may only cancel their own reservations and only
// until CancelLeadTime before the class starts.
func (s *ReservationService) Cancel(ctx context.Context, reservationID uint64, actor model.Actor, reason string) (result CancelResult, err error) {
	started := time.Now()
	logger := s.loggerWith(ctx, "cancel", "reservation_id", reservationID, "actor", actor.String())
	defer func() { s.finish(logger, "cancel", started, err) }()

	now := s.clock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CancelResult{}, fmt.Errorf("begin cancel: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	snap, res, err := s.lockReservation(ctx, tx, reservationID)
	if err != nil {
		return CancelResult{}, err
	}
	if !actor.IsStaff() && res.CustomerID != actor.ID {
		return CancelResult{}, fmt.Errorf("reservation %d belongs to another customer: %w", res.ID, booking.ErrForbidden)
	}
	previous := res.Status
	next, err := booking.Next(previous, booking.Cancel, booking.Occupancy{})
	if err != nil {
		return CancelResult{}, fmt.Errorf("reservation %d is %s: %w", res.ID, previous, err)
	}
	if !actor.IsStaff() {
		deadline := snap.StartsAt.Add(-s.policy.CancelLeadTime)
		if now.After(deadline) {
			return CancelResult{}, fmt.Errorf("deadline was %s: %w", deadline.Format(time.RFC3339), booking.ErrOutsideCancellationWindow)
		}
	}

	if res.DebitedUnits > 0 && res.EntitlementID != nil {
		posting := ledger.Posting{EntitlementID: *res.EntitlementID, Units: res.DebitedUnits}
		ent, err := s.entitlements.GetByIDTx(ctx, tx, posting.EntitlementID)
		if err != nil {
			return CancelResult{}, fmt.Errorf("load entitlement %d: %w", posting.EntitlementID, err)
		}
		if err := ledger.Credit(ent, posting); err != nil {
			return CancelResult{}, err
		}
		if err := s.entitlements.UpdateRemainingTx(ctx, tx, ent.ID, ent.Remaining); err != nil {
			return CancelResult{}, fmt.Errorf("credit entitlement %d: %w", ent.ID, err)
		}
	}

	by := actor.String()
	res.Status = next
	res.WaitlistPosition = nil
	res.CancelledAt = &now
	res.CancelledBy = &by
	if reason != "" {
		res.CancelReason = &reason
	} else {
		res.CancelReason = nil
	}
	if err := s.reservations.UpdateTx(ctx, tx, res); err != nil {
		return CancelResult{}, fmt.Errorf("cancel reservation %d: %w", res.ID, err)
	}

	var promoted *model.Reservation
	// snap.Confirmed still counts the reservation cancelled above
	if previous == booking.Confirmed && snap.Confirmed-1 < snap.Capacity {
		head, err := s.waitlist.Promote(ctx, tx, snap.ID)
		if err != nil {
			return CancelResult{}, err
		}
		if head != nil {
			status, err := booking.Next(head.Status, booking.Promote, booking.Occupancy{CapacityAvailable: true})
			if err != nil {
				return CancelResult{}, fmt.Errorf("promote reservation %d: %w", head.ID, err)
			}
			head.Status = status
			head.WaitlistPosition = nil
			if err := s.reservations.UpdateTx(ctx, tx, head); err != nil {
				return CancelResult{}, fmt.Errorf("promote reservation %d: %w", head.ID, err)
			}
			promoted = head
		}
	}
	if previous == booking.Waitlisted || promoted != nil {
		if err := s.waitlist.Retract(ctx, tx, snap.ID); err != nil {
			return CancelResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return CancelResult{}, fmt.Errorf("commit cancel: %w", err)
	}
	committed = true

	events := []queue.Event{queue.NewEvent(queue.EventCancelled, res, now)}
	if promoted != nil {
		s.metrics.IncPromotion()
		logger.Info("waitlist promoted", "promoted_id", promoted.ID, "class_id", snap.ID)
		events = append(events, queue.NewEvent(queue.EventPromoted, promoted, now))
	}
	s.record(ctx, logger, events...)
	return CancelResult{Cancelled: res, Promoted: promoted}, nil
}

// CheckIn marks a CONFIRMED reservation as attended.  It must happen inside
// the class's check-in window.
func (s *ReservationService) CheckIn(ctx context.Context, reservationID uint64) (result CheckInResult, err error) {
	started := time.Now()
	logger := s.loggerWith(ctx, "check_in", "reservation_id", reservationID)
	defer func() { s.finish(logger, "check_in", started, err) }()

	now := s.clock()
	res, err := s.fulfil(ctx, reservationID, booking.CheckIn, func(snap *model.ClassSnapshot) error {
		opens, closes := s.checkInWindow(snap.Class)
		if now.Before(opens) || now.After(closes) {
			return fmt.Errorf("window is %s to %s: %w",
				opens.Format(time.RFC3339), closes.Format(time.RFC3339), booking.ErrOutsideCheckInWindow)
		}
		return nil
	}, now)
	if err != nil {
		return CheckInResult{}, err
	}
	s.record(ctx, logger, queue.NewEvent(queue.EventCheckedIn, res, now))
	return CheckInResult{Reservation: res}, nil
}

// MarkNoShow records that the customer of a CONFIRMED reservation never
// checked in.  It is only allowed once the check-in window has closed, and
// the debited units are kept.
func (s *ReservationService) MarkNoShow(ctx context.Context, reservationID uint64) (res *model.Reservation, err error) {
	started := time.Now()
	logger := s.loggerWith(ctx, "mark_no_show", "reservation_id", reservationID)
	defer func() { s.finish(logger, "mark_no_show", started, err) }()

	now := s.clock()
	res, err = s.fulfil(ctx, reservationID, booking.MarkNoShow, func(snap *model.ClassSnapshot) error {
		_, closes := s.checkInWindow(snap.Class)
		if !now.After(closes) {
			return fmt.Errorf("check-in open until %s: %w", closes.Format(time.RFC3339), booking.ErrOutsideCheckInWindow)
		}
		return nil
	}, now)
	if err != nil {
		return nil, err
	}
	s.record(ctx, logger, queue.NewEvent(queue.EventNoShow, res, now))
	return res, nil
}

func (s *ReservationService) checkInWindow(c model.Class) (opens, closes time.Time) {
	return c.StartsAt.Add(-s.policy.CheckInOpensBefore), c.EndsAt.Add(s.policy.CheckInClosesAfter)
}

// fulfil applies a terminal transition (check-in or no-show) to a
// reservation.  The state machine is consulted before the window check, so
// a reservation in the wrong state reports that rather than a timing error.
func (s *ReservationService) fulfil(ctx context.Context, reservationID uint64, action booking.Action,
	window func(*model.ClassSnapshot) error, now time.Time) (*model.Reservation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin %s: %w", action, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	snap, res, err := s.lockReservation(ctx, tx, reservationID)
	if err != nil {
		return nil, err
	}
	next, err := booking.Next(res.Status, action, booking.Occupancy{})
	if err != nil {
		return nil, fmt.Errorf("reservation %d is %s: %w", res.ID, res.Status, err)
	}
	if err := window(snap); err != nil {
		return nil, err
	}
	res.Status = next
	if next == booking.Completed {
		res.FulfilledAt = &now
	}
	if err := s.reservations.UpdateTx(ctx, tx, res); err != nil {
		return nil, fmt.Errorf("%s reservation %d: %w", action, res.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s: %w", action, err)
	}
	committed = true
	return res, nil
}

// lockReservation locks the reservation's class and then the reservation
// itself, in that order.
func (s *ReservationService) lockReservation(ctx context.Context, tx *sql.Tx, reservationID uint64) (*model.ClassSnapshot, *model.Reservation, error) {
	classID, err := s.reservations.ClassOfTx(ctx, tx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("reservation %d: %w", reservationID, booking.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("load reservation %d: %w", reservationID, err)
	}
	snap, err := s.classes.SnapshotTx(ctx, tx, classID)
	if err != nil {
		return nil, nil, fmt.Errorf("load class %d: %w", classID, err)
	}
	res, err := s.reservations.GetByIDTx(ctx, tx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("reservation %d: %w", reservationID, booking.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("load reservation %d: %w", reservationID, err)
	}
	return snap, res, nil
}

// Get returns one reservation.  Customers only see their own.
func (s *ReservationService) Get(ctx context.Context, actor model.Actor, reservationID uint64) (*model.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("reservation %d: %w", reservationID, booking.ErrNotFound)
		}
		return nil, err
	}
	if !actor.IsStaff() && res.CustomerID != actor.ID {
		return nil, fmt.Errorf("reservation %d: %w", reservationID, booking.ErrForbidden)
	}
	return res, nil
}

// ListForCustomer returns a customer's reservations, newest first.
func (s *ReservationService) ListForCustomer(ctx context.Context, customerID uint64) ([]model.Reservation, error) {
	return s.reservations.ListByCustomer(ctx, customerID)
}

// Roster groups a class's reservations by state.  The waitlist is in
// promotion order.
func (s *ReservationService) Roster(ctx context.Context, classID uint64) (*Roster, error) {
	class, err := s.classes.GetByID(ctx, classID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("class %d: %w", classID, booking.ErrResourceNotFound)
		}
		return nil, err
	}
	all, err := s.reservations.ListByClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	r := &Roster{
		Class:     *class,
		Confirmed: []model.Reservation{},
		Waitlist:  []model.Reservation{},
		CheckedIn: []model.Reservation{},
		NoShow:    []model.Reservation{},
		Cancelled: []model.Reservation{},
	}
	for _, res := range all {
		switch res.Status {
		case booking.Confirmed:
			r.Confirmed = append(r.Confirmed, res)
		case booking.Waitlisted:
			r.Waitlist = append(r.Waitlist, res)
		case booking.Completed:
			r.CheckedIn = append(r.CheckedIn, res)
		case booking.NoShow:
			r.NoShow = append(r.NoShow, res)
		case booking.Cancelled:
			r.Cancelled = append(r.Cancelled, res)
		}
	}
	waitlist.Order(r.Waitlist)
	return r, nil
}

// Availability reports a class's current occupancy without locking.
func (s *ReservationService) Availability(ctx context.Context, classID uint64) (*Availability, error) {
	snap, err := s.classes.Snapshot(ctx, classID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("class %d: %w", classID, booking.ErrResourceNotFound)
		}
		return nil, err
	}
	available := snap.Capacity - snap.Confirmed
	if available < 0 {
		available = 0
	}
	return &Availability{
		ClassID:       snap.ID,
		Title:         snap.Title,
		StartsAt:      snap.StartsAt,
		EndsAt:        snap.EndsAt,
		Capacity:      snap.Capacity,
		Confirmed:     snap.Confirmed,
		Available:     available,
		WaitlistLimit: snap.WaitlistLimit,
		Waitlisted:    snap.Waitlisted,
		Bookable:      snap.Bookable(s.clock()),
	}, nil
}
