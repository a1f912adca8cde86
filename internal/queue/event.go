// Package queue defines the reservation events exchanged over the message
// broker, the publisher that emits them and the consumer that records them.
package queue

import (
    "time"

    "github.com/google/uuid"

    "github.com/iliyamo/class-reservation/internal/model"
)

// Event names.  The name doubles as the AMQP message type.
const (
    EventConfirmed   = "reservation.confirmed"
    EventWaitlisted  = "reservation.waitlisted"
    EventReactivated = "reservation.reactivated"
    EventCancelled   = "reservation.cancelled"
    EventPromoted    = "reservation.promoted"
    EventCheckedIn   = "reservation.checked_in"
    EventNoShow      = "reservation.no_show"
)

// Event is published after a reservation changed state.  It contains enough
// information for downstream consumers (notifications, analytics, audit) to
// act without querying the primary database.
type Event struct {
    ID               string    `json:"id"`
    Name             string    `json:"name"`
    ReservationID    uint64    `json:"reservation_id"`
    ClassID          uint64    `json:"class_id"`
    CustomerID       uint64    `json:"customer_id"`
    Status           string    `json:"status"`
    WaitlistPosition *int      `json:"waitlist_position,omitempty"`
    EntitlementID    *uint64   `json:"entitlement_id,omitempty"`
    Units            int       `json:"units"`
    Actor            string    `json:"actor,omitempty"`
    Reason           string    `json:"reason,omitempty"`
    OccurredAt       time.Time `json:"occurred_at"`
}

// NewEvent builds an event named name describing res as it is after the
// change.  Every event gets a fresh random ID so consumers can deduplicate
// redeliveries.
func NewEvent(name string, res *model.Reservation, at time.Time) Event {
    ev := Event{
        ID:            uuid.NewString(),
        Name:          name,
        ReservationID: res.ID,
        ClassID:       res.ClassID,
        CustomerID:    res.CustomerID,
        Status:        res.Status.String(),
        EntitlementID: res.EntitlementID,
        Units:         res.DebitedUnits,
        OccurredAt:    at.UTC(),
    }
    if res.WaitlistPosition != nil {
        p := *res.WaitlistPosition
        ev.WaitlistPosition = &p
    }
    if res.CancelledBy != nil {
        ev.Actor = *res.CancelledBy
    }
    if res.CancelReason != nil {
        ev.Reason = *res.CancelReason
    }
    return ev
}
