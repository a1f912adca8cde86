package model

import (
    "fmt"
    "time"
)

// EntitlementKind is the closed set of prepaid balance types.
type EntitlementKind uint8

const (
    Unlimited EntitlementKind = iota + 1
    SessionCount
    CreditCount
)

func (k EntitlementKind) String() string {
    switch k {
    case Unlimited:
        return "UNLIMITED"
    case SessionCount:
        return "SESSION_COUNT"
    case CreditCount:
        return "CREDIT_COUNT"
    }
    return fmt.Sprintf("EntitlementKind(%d)", uint8(k))
}

// MarshalText renders the kind by name in JSON payloads.
func (k EntitlementKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ParseEntitlementKind converts a persisted kind name into an EntitlementKind.
func ParseEntitlementKind(v string) (EntitlementKind, error) {
    switch v {
    case "UNLIMITED":
        return Unlimited, nil
    case "SESSION_COUNT":
        return SessionCount, nil
    case "CREDIT_COUNT":
        return CreditCount, nil
    }
    return 0, fmt.Errorf("model: unknown entitlement kind %q", v)
}

// Entitlement is a customer's prepaid right to attend classes: an unlimited
// subscription, a punch card of sessions or a credit pack.  It corresponds
// to a row in the `entitlements` table.
//
// Fields:
//  ID         – primary key identifier.
//  CustomerID – owner of the entitlement.
//  Kind       – UNLIMITED, SESSION_COUNT or CREDIT_COUNT.
//  Remaining  – sessions or credits left; unused for UNLIMITED.
//  Active     – whether the entitlement may be consumed at all.
//  ValidFrom  – start of the validity window.
//  ValidUntil – end of the validity window; nil means open ended.
type Entitlement struct {
    ID         uint64          `json:"id"`                    // entitlements.id
    CustomerID uint64          `json:"customer_id"`           // entitlements.customer_id
    Kind       EntitlementKind `json:"kind"`                  // entitlements.kind
    Remaining  int             `json:"remaining"`             // entitlements.remaining
    Active     bool            `json:"active"`                // entitlements.active
    ValidFrom  time.Time       `json:"valid_from"`            // entitlements.valid_from
    ValidUntil *time.Time      `json:"valid_until,omitempty"` // entitlements.valid_until (nullable)
    CreatedAt  time.Time       `json:"created_at"`            // entitlements.created_at
    UpdatedAt  time.Time       `json:"updated_at"`            // entitlements.updated_at
}

// InForce reports whether the entitlement is active and inside its
// validity window at t.
func (e Entitlement) InForce(t time.Time) bool {
    if !e.Active || t.Before(e.ValidFrom) {
        return false
    }
    return e.ValidUntil == nil || t.Before(*e.ValidUntil)
}
