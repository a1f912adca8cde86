package model

import "time"

// Class represents one scheduled occurrence of a class that customers can
// reserve.  Classes are owned by the catalog; the reservation engine only
// reads them.  This struct corresponds to a row in the `classes` table.
//
// Fields:
//  ID            – primary key identifier.
//  Title         – display title of the class.
//  Capacity      – number of CONFIRMED reservations allowed (>= 1).
//  WaitlistLimit – number of WAITLISTED reservations allowed (>= 0).
//  StartsAt      – when the class begins (UTC).
//  EndsAt        – when the class ends (UTC).
//  Status        – SCHEDULED or CANCELLED.
//  CreditCost    – credits consumed from a CREDIT_COUNT entitlement.
type Class struct {
    ID            uint64    `json:"id"`             // classes.id
    Title         string    `json:"title"`          // classes.title
    Capacity      int       `json:"capacity"`       // classes.capacity
    WaitlistLimit int       `json:"waitlist_limit"` // classes.waitlist_limit
    StartsAt      time.Time `json:"starts_at"`      // classes.starts_at
    EndsAt        time.Time `json:"ends_at"`        // classes.ends_at
    Status        string    `json:"status"`         // classes.status
    CreditCost    int       `json:"credit_cost"`    // classes.credit_cost
    CreatedAt     time.Time `json:"created_at"`     // classes.created_at
    UpdatedAt     time.Time `json:"updated_at"`     // classes.updated_at
}

// Class status values.
const (
    ClassScheduled = "SCHEDULED"
    ClassCancelled = "CANCELLED"
)

// Cancelled reports whether the class was called off by the catalog.
func (c Class) Cancelled() bool { return c.Status == ClassCancelled }

// ClassSnapshot is a class read together with its current occupancy
// inside the coordinating transaction.
type ClassSnapshot struct {
    Class
    Confirmed  int // reservations currently CONFIRMED
    Waitlisted int // reservations currently WAITLISTED
}

// HasCapacity reports whether another reservation can be CONFIRMED.
func (s ClassSnapshot) HasCapacity() bool { return s.Confirmed < s.Capacity }

// HasWaitlistRoom reports whether another reservation can be WAITLISTED.
func (s ClassSnapshot) HasWaitlistRoom() bool { return s.Waitlisted < s.WaitlistLimit }

// Bookable reports whether the class can still take reservations at now:
// it exists, is not cancelled and has not started yet.
func (s ClassSnapshot) Bookable(now time.Time) bool {
    return !s.Cancelled() && s.StartsAt.After(now)
}
