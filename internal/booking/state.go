package booking

import "fmt"

// Status is the lifecycle state of a reservation.  None is the state of a
// reservation that does not exist yet.
type Status uint8

const (
	None Status = iota
	Confirmed
	Waitlisted
	Cancelled
	NoShow
	Completed
)

// String returns the persisted name of the status.
func (s Status) String() string {
	switch s {
	case None:
		return "NONE"
	case Confirmed:
		return "CONFIRMED"
	case Waitlisted:
		return "WAITLISTED"
	case Cancelled:
		return "CANCELLED"
	case NoShow:
		return "NO_SHOW"
	case Completed:
		return "COMPLETED"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Active reports whether the status holds a claim on the class.  Only
// CANCELLED releases the (customer, class) pair for re-use.
func (s Status) Active() bool {
	return s != None && s != Cancelled
}

// ParseStatus converts a persisted status name back into a Status.
func ParseStatus(v string) (Status, error) {
	switch v {
	case "CONFIRMED":
		return Confirmed, nil
	case "WAITLISTED":
		return Waitlisted, nil
	case "CANCELLED":
		return Cancelled, nil
	case "NO_SHOW":
		return NoShow, nil
	case "COMPLETED":
		return Completed, nil
	}
	return None, fmt.Errorf("booking: unknown status %q", v)
}

// MarshalText lets Status render as its name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Action is an event applied to a reservation.
type Action uint8

const (
	Reserve Action = iota + 1
	Cancel
	Promote
	CheckIn
	MarkNoShow
)

func (a Action) String() string {
	switch a {
	case Reserve:
		return "reserve"
	case Cancel:
		return "cancel"
	case Promote:
		return "promote"
	case CheckIn:
		return "check_in"
	case MarkNoShow:
		return "mark_no_show"
	}
	return fmt.Sprintf("Action(%d)", uint8(a))
}

// Occupancy describes the class at decision time.  It is only consulted
// by Reserve.
type Occupancy struct {
	CapacityAvailable bool
	WaitlistRoom      bool
}

// Next returns the state reached by applying action to a reservation in
// state current.  Illegal combinations return one of the package sentinels
// and leave the caller's state untouched.
func Next(current Status, action Action, occ Occupancy) (Status, error) {
	switch action {
	case Reserve:
		switch current {
		case None, Cancelled:
			if occ.CapacityAvailable {
				return Confirmed, nil
			}
			if occ.WaitlistRoom {
				return Waitlisted, nil
			}
			return current, ErrWaitlistFull
		case Confirmed, Waitlisted, NoShow, Completed:
			return current, ErrAlreadyBooked
		}
	case Cancel:
		switch current {
		case Confirmed, Waitlisted:
			return Cancelled, nil
		case None, Cancelled, NoShow, Completed:
			return current, ErrNotFound
		}
	case Promote:
		switch current {
		case Waitlisted:
			return Confirmed, nil
		case None, Confirmed, Cancelled, NoShow, Completed:
			return current, ErrNotFound
		}
	case CheckIn:
		switch current {
		case Confirmed:
			return Completed, nil
		case Completed:
			return current, ErrAlreadyCheckedIn
		case None, Waitlisted, Cancelled, NoShow:
			return current, ErrNotFound
		}
	case MarkNoShow:
		switch current {
		case Confirmed:
			return NoShow, nil
		case None, Waitlisted, Cancelled, NoShow, Completed:
			return current, ErrNotFound
		}
	}
	return current, fmt.Errorf("booking: unsupported transition %s on %s", action, current)
}
