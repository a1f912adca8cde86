package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/class-reservation/internal/booking"
)

// statusFor maps a coordinator failure onto an HTTP status.
func statusFor(err error) int {
    switch {
    case errors.Is(err, booking.ErrResourceNotFound), errors.Is(err, booking.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, booking.ErrAlreadyBooked),
        errors.Is(err, booking.ErrWaitlistFull),
        errors.Is(err, booking.ErrAlreadyCheckedIn):
        return http.StatusConflict
    case errors.Is(err, booking.ErrNoActiveEntitlement), errors.Is(err, booking.ErrInsufficientBalance):
        return http.StatusPaymentRequired
    case errors.Is(err, booking.ErrOutsideCancellationWindow), errors.Is(err, booking.ErrOutsideCheckInWindow):
        return http.StatusUnprocessableEntity
    case errors.Is(err, booking.ErrForbidden):
        return http.StatusForbidden
    }
    return http.StatusInternalServerError
}

// writeError renders err as {"error": CODE, "message": ...}.  Internal
// failures never leak their message to the client.
func writeError(c echo.Context, err error) error {
    status := statusFor(err)
    code := booking.Code(err)
    msg := err.Error()
    if status == http.StatusInternalServerError {
        code, msg = "INTERNAL", "internal error"
    }
    return c.JSON(status, echo.Map{"error": code, "message": msg})
}
