package middleware

// identity.go defines the context keys shared by the middleware and the
// handlers.  JWTAuth stores the caller under them; everything downstream
// reads the caller through Actor.

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/class-reservation/internal/model"
)

const (
    ctxUserID = "user_id"
    ctxRole   = "role"
)

// SetActor stores the authenticated caller on the echo context.
func SetActor(c echo.Context, a model.Actor) {
    c.Set(ctxUserID, a.ID)
    c.Set(ctxRole, a.Role)
}

// Actor returns the authenticated caller.  ok is false when the request did
// not pass JWTAuth.
func Actor(c echo.Context) (model.Actor, bool) {
    id, ok := c.Get(ctxUserID).(uint64)
    if !ok || id == 0 {
        return model.Actor{}, false
    }
    role, ok := c.Get(ctxRole).(model.Role)
    if !ok || !role.Valid() {
        return model.Actor{}, false
    }
    return model.Actor{Role: role, ID: id}, true
}

// currentUserID returns the caller's id for rate-limit keys, or "anon".
func currentUserID(c echo.Context) string {
    if a, ok := Actor(c); ok {
        return strconv.FormatUint(a.ID, 10)
    }
    return "anon"
}
