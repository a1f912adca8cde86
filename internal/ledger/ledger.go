// Package ledger implements the balance rules applied to a customer's
// entitlement when a reservation is granted or withdrawn.  The functions
// mutate the in-memory record only; persisting the result (under a row lock)
// is the caller's job.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/class-reservation/internal/booking"
	"github.com/iliyamo/class-reservation/internal/model"
)

// Posting records what a debit took from which entitlement so that the
// matching credit restores exactly that amount to exactly that record.
type Posting struct {
	EntitlementID uint64
	Units         int
}

// Cost returns the number of units a reservation consumes from an
// entitlement of the given kind.  classCost is the class's credit price;
// values below one fall back to one.  Sessions are all-or-nothing per visit
// and unlimited passes never consume anything.
func Cost(kind model.EntitlementKind, classCost int) int {
	switch kind {
	case model.Unlimited:
		return 0
	case model.SessionCount:
		return 1
	case model.CreditCount:
		if classCost < 1 {
			return 1
		}
		return classCost
	}
	return 0
}

// covers reports whether e can pay for a class priced at classCost.
func covers(e model.Entitlement, classCost int) bool {
	if e.Kind == model.Unlimited {
		return true
	}
	return e.Remaining >= Cost(e.Kind, classCost)
}

// Select picks the entitlement a reservation consumes.  Only entitlements in
// force at now qualify.  Among those, ones that can cover the cost come first,
// then the earliest-expiring (open-ended last), then the lowest ID, so the
// choice is stable for a given set of rows.  It returns nil when nothing
// qualifies.
func Select(candidates []model.Entitlement, classCost int, now time.Time) *model.Entitlement {
	eligible := make([]model.Entitlement, 0, len(candidates))
	for _, e := range candidates {
		if e.InForce(now) {
			eligible = append(eligible, e)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if ca, cb := covers(a, classCost), covers(b, classCost); ca != cb {
			return ca
		}
		switch {
		case a.ValidUntil == nil && b.ValidUntil != nil:
			return false
		case a.ValidUntil != nil && b.ValidUntil == nil:
			return true
		case a.ValidUntil != nil && b.ValidUntil != nil && !a.ValidUntil.Equal(*b.ValidUntil):
			return a.ValidUntil.Before(*b.ValidUntil)
		}
		return a.ID < b.ID
	})
	chosen := eligible[0]
	return &chosen
}

// Debit takes the cost of one reservation from e.  It fails with
// booking.ErrNoActiveEntitlement when e is not in force and with
// booking.ErrInsufficientBalance when a counted balance cannot cover the
// cost; e is left unchanged on failure.
func Debit(e *model.Entitlement, classCost int, now time.Time) (Posting, error) {
	if e == nil || !e.InForce(now) {
		return Posting{}, booking.ErrNoActiveEntitlement
	}
	units := Cost(e.Kind, classCost)
	switch e.Kind {
	case model.Unlimited:
		return Posting{EntitlementID: e.ID}, nil
	case model.SessionCount, model.CreditCount:
		if e.Remaining < units {
			return Posting{}, fmt.Errorf("%w: %d %s left, %d needed",
				booking.ErrInsufficientBalance, e.Remaining, e.Kind, units)
		}
		e.Remaining -= units
		return Posting{EntitlementID: e.ID, Units: units}, nil
	}
	return Posting{}, fmt.Errorf("ledger: unsupported entitlement kind %s", e.Kind)
}

// Credit reverses p on e.  A posting of zero units (an unlimited pass) is a
// no-op.  Credit ignores the entitlement's current validity; the units go
// back to the record they came from.
func Credit(e *model.Entitlement, p Posting) error {
	if p.Units == 0 {
		return nil
	}
	if e == nil {
		return fmt.Errorf("ledger: credit of %d units to missing entitlement %d", p.Units, p.EntitlementID)
	}
	if e.ID != p.EntitlementID {
		return fmt.Errorf("ledger: posting for entitlement %d applied to %d", p.EntitlementID, e.ID)
	}
	if e.Kind == model.Unlimited {
		return nil
	}
	e.Remaining += p.Units
	return nil
}
