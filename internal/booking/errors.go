// Package booking holds the reservation state machine and the failure
// taxonomy shared by every layer that creates, cancels or fulfils a
// reservation.  Nothing in this package performs I/O.
package booking

import "errors"

// Sentinel failures returned by the reservation coordinator.  Handlers map
// them onto HTTP statuses with errors.Is; Code maps them onto the stable
// wire codes.
var (
	ErrResourceNotFound          = errors.New("booking: class not found or no longer bookable")
	ErrAlreadyBooked             = errors.New("booking: customer already holds an active reservation for this class")
	ErrNoActiveEntitlement       = errors.New("booking: no active entitlement")
	ErrInsufficientBalance       = errors.New("booking: insufficient balance")
	ErrWaitlistFull              = errors.New("booking: class and waitlist are full")
	ErrNotFound                  = errors.New("booking: reservation not found")
	ErrOutsideCancellationWindow = errors.New("booking: cancellation window has closed")
	ErrOutsideCheckInWindow      = errors.New("booking: outside check-in window")
	ErrAlreadyCheckedIn          = errors.New("booking: reservation already checked in")
	ErrForbidden                 = errors.New("booking: reservation belongs to another customer")
)

// Code returns the wire code for err.  Unknown errors are reported as
// INTERNAL; nil yields the empty string.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrResourceNotFound):
		return "RESOURCE_NOT_FOUND"
	case errors.Is(err, ErrAlreadyBooked):
		return "ALREADY_BOOKED"
	case errors.Is(err, ErrNoActiveEntitlement):
		return "NO_ACTIVE_ENTITLEMENT"
	case errors.Is(err, ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, ErrWaitlistFull):
		return "WAITLIST_FULL"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrOutsideCancellationWindow):
		return "OUTSIDE_CANCELLATION_WINDOW"
	case errors.Is(err, ErrOutsideCheckInWindow):
		return "OUTSIDE_CHECKIN_WINDOW"
	case errors.Is(err, ErrAlreadyCheckedIn):
		return "ALREADY_CHECKED_IN"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	}
	return "INTERNAL"
}

// IsExpected reports whether err is one of the typed outcomes above, as
// opposed to a storage or programming failure.
func IsExpected(err error) bool {
	c := Code(err)
	return c != "" && c != "INTERNAL"
}
