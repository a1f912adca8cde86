package handler

import (
    "context"
    "net/http"
    "strconv"
    "strings"
    "unicode/utf8"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/class-reservation/internal/booking"
    "github.com/iliyamo/class-reservation/internal/middleware"
    "github.com/iliyamo/class-reservation/internal/model"
    "github.com/iliyamo/class-reservation/internal/service"
)

// ReservationService is the part of the reservation coordinator the HTTP
// layer depends on.  *service.ReservationService implements it.
type ReservationService interface {
    Reserve(ctx context.Context, customerID, classID uint64) (service.ReserveResult, error)
    Cancel(ctx context.Context, reservationID uint64, actor model.Actor, reason string) (service.CancelResult, error)
    CheckIn(ctx context.Context, reservationID uint64) (service.CheckInResult, error)
    MarkNoShow(ctx context.Context, reservationID uint64) (*model.Reservation, error)
    Get(ctx context.Context, actor model.Actor, reservationID uint64) (*model.Reservation, error)
    ListForCustomer(ctx context.Context, customerID uint64) ([]model.Reservation, error)
    Roster(ctx context.Context, classID uint64) (*service.Roster, error)
    Availability(ctx context.Context, classID uint64) (*service.Availability, error)
}

// maxReasonLen bounds the free-text cancellation reason.
const maxReasonLen = 255

// ReservationHandler exposes the reservation coordinator over HTTP.  All
// authenticated methods assume JWTAuth and RequireRole already ran.
type ReservationHandler struct {
    svc ReservationService
}

// NewReservationHandler constructs a ReservationHandler.  svc must be non-nil.
func NewReservationHandler(svc ReservationService) *ReservationHandler {
    if svc == nil {
        panic("nil service passed to NewReservationHandler")
    }
    return &ReservationHandler{svc: svc}
}

// pathID parses a positive integer path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, false
    }
    return id, true
}

// cancelBody is the optional JSON body of a cancellation.
type cancelBody struct {
    Reason string `json:"reason"`
}

func bindReason(c echo.Context) (string, error) {
    var body cancelBody
    if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
        return "", err
    }
    reason := strings.TrimSpace(body.Reason)
    if reason == "" {
        reason = strings.TrimSpace(c.QueryParam("reason"))
    }
    return truncateReason(strings.ToValidUTF8(reason, ""), maxReasonLen), nil
}

// truncateReason cuts s to at most limit bytes without splitting a
// multi-byte character.
func truncateReason(s string, limit int) string {
    if len(s) <= limit {
        return s
    }
    n := 0
    for n < len(s) {
        _, size := utf8.DecodeRuneInString(s[n:])
        if n+size > limit {
            break
        }
        n += size
    }
    return s[:n]
}

// reserveStatus answers 202 for anything that ended up on the waitlist,
// including a reactivation, and 201 otherwise.
func reserveStatus(r service.ReserveResult) int {
    if r.Reservation != nil && r.Reservation.Status == booking.Waitlisted {
        return http.StatusAccepted
    }
    return http.StatusCreated
}

// Reserve handles POST /v1/classes/:id/reservations for the calling
// customer.  It answers 201 when a seat was confirmed and 202 when the
// customer joined the waitlist.
func (h *ReservationHandler) Reserve(c echo.Context) error {
    actor, ok := middleware.Actor(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    classID, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid class id"})
    }
    res, err := h.svc.Reserve(c.Request().Context(), actor.ID, classID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(reserveStatus(res), res)
}

// ListMine handles GET /v1/my-reservations.
func (h *ReservationHandler) ListMine(c echo.Context) error {
    actor, ok := middleware.Actor(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    items, err := h.svc.ListForCustomer(c.Request().Context(), actor.ID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items, "count": len(items)})
}

// Get handles GET /v1/reservations/:id and its staff twin.  Customers only
// see their own reservations.
func (h *ReservationHandler) Get(c echo.Context) error {
    actor, ok := middleware.Actor(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    res, err := h.svc.Get(c.Request().Context(), actor, id)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, res)
}

// Cancel handles DELETE /v1/reservations/:id and DELETE
// /v1/staff/reservations/:id.  The caller's role decides whether the
// cancellation deadline applies.  The reason comes from an optional JSON
// body {"reason": "..."} or the reason query parameter.
func (h *ReservationHandler) Cancel(c echo.Context) error {
    actor, ok := middleware.Actor(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    reason, err := bindReason(c)
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    res, err := h.svc.Cancel(c.Request().Context(), id, actor, reason)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, res)
}

// ReserveFor handles POST /v1/staff/classes/:id/reservations, booking on
// behalf of the customer named in the body {"customer_id": 42}.
func (h *ReservationHandler) ReserveFor(c echo.Context) error {
    classID, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid class id"})
    }
    var body struct {
        CustomerID uint64 `json:"customer_id"`
    }
    if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if body.CustomerID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "customer_id is required"})
    }
    res, err := h.svc.Reserve(c.Request().Context(), body.CustomerID, classID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(reserveStatus(res), res)
}

// Roster handles GET /v1/staff/classes/:id/roster.
func (h *ReservationHandler) Roster(c echo.Context) error {
    classID, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid class id"})
    }
    roster, err := h.svc.Roster(c.Request().Context(), classID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, roster)
}

// CheckIn handles POST /v1/staff/reservations/:id/check-in.
func (h *ReservationHandler) CheckIn(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    res, err := h.svc.CheckIn(c.Request().Context(), id)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, res)
}

// MarkNoShow handles POST /v1/staff/reservations/:id/no-show.
func (h *ReservationHandler) MarkNoShow(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }
    res, err := h.svc.MarkNoShow(c.Request().Context(), id)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"reservation": res})
}

// Availability handles GET /v1/classes/:id/availability.  No
// authentication is required.
func (h *ReservationHandler) Availability(c echo.Context) error {
    classID, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid class id"})
    }
    av, err := h.svc.Availability(c.Request().Context(), classID)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, av)
}
