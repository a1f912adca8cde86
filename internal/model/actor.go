package model

import (
    "fmt"
    "strings"
)

// Role is the caller role carried in the access token.  Users and their
// credentials live in the identity service; the reservation engine only
// sees the role and id of whoever is calling.
type Role string

const (
    RoleCustomer Role = "CUSTOMER" // books and cancels their own reservations
    RoleStaff    Role = "STAFF"    // front desk: books for others, checks in, overrides policy windows
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
    return r == RoleCustomer || r == RoleStaff
}

// ParseRole normalises s (case-insensitive) into a Role.
func ParseRole(s string) (Role, error) {
    r := Role(strings.ToUpper(strings.TrimSpace(s)))
    if !r.Valid() {
        return "", fmt.Errorf("unknown role %q", s)
    }
    return r, nil
}

// Actor identifies who performs an operation.
//
// Fields:
//  Role – role of the caller.
//  ID   – user id of the caller (customer id for customers).
type Actor struct {
    Role Role
    ID   uint64
}

// Customer returns an actor for the customer with the given id.
func Customer(id uint64) Actor { return Actor{Role: RoleCustomer, ID: id} }

// Staff returns an actor for the staff member with the given id.
func Staff(id uint64) Actor { return Actor{Role: RoleStaff, ID: id} }

// IsStaff reports whether the actor acts on behalf of the studio.
func (a Actor) IsStaff() bool { return a.Role == RoleStaff }

// String renders the actor as stored in reservations.cancelled_by,
// e.g. "CUSTOMER:42".
func (a Actor) String() string {
    return fmt.Sprintf("%s:%d", a.Role, a.ID)
}
