package model

import (
    "time"

    "github.com/iliyamo/class-reservation/internal/booking"
)

// Reservation records a customer's claim on a class.  There is at most one
// row per (customer, class) pair; a cancelled row is reactivated when the
// customer books the same class again.
//
// Fields:
//  ID               – primary key identifier.
//  ClassID          – class being reserved.
//  CustomerID       – customer holding the reservation.
//  Status           – CONFIRMED, WAITLISTED, CANCELLED, NO_SHOW or COMPLETED.
//  WaitlistPosition – 1-based rank on the waitlist; nil unless WAITLISTED.
//  BookedAt         – when the reservation was (re)booked; waitlist order.
//  CancelledAt      – set while CANCELLED.
//  CancelReason     – free text recorded on cancellation.
//  CancelledBy      – actor that cancelled ("CUSTOMER:42", "STAFF:7").
//  FulfilledAt      – check-in time; set once COMPLETED.
//  EntitlementID    – entitlement debited for this reservation.
//  DebitedUnits     – units taken from that entitlement (0 for UNLIMITED).
type Reservation struct {
    ID               uint64         `json:"id"`                          // reservations.id
    ClassID          uint64         `json:"class_id"`                    // reservations.class_id
    CustomerID       uint64         `json:"customer_id"`                 // reservations.customer_id
    Status           booking.Status `json:"status"`                      // reservations.status
    WaitlistPosition *int           `json:"waitlist_position,omitempty"` // reservations.waitlist_position (nullable)
    BookedAt         time.Time      `json:"booked_at"`                   // reservations.booked_at
    CancelledAt      *time.Time     `json:"cancelled_at,omitempty"`      // reservations.cancelled_at (nullable)
    CancelReason     *string        `json:"cancel_reason,omitempty"`     // reservations.cancel_reason (nullable)
    CancelledBy      *string        `json:"cancelled_by,omitempty"`      // reservations.cancelled_by (nullable)
    FulfilledAt      *time.Time     `json:"fulfilled_at,omitempty"`      // reservations.fulfilled_at (nullable)
    EntitlementID    *uint64        `json:"entitlement_id,omitempty"`    // reservations.entitlement_id (nullable)
    DebitedUnits     int            `json:"debited_units"`               // reservations.debited_units
    CreatedAt        time.Time      `json:"created_at"`                  // reservations.created_at
    UpdatedAt        time.Time      `json:"updated_at"`                  // reservations.updated_at
}
