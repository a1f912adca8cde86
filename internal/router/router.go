package router // package router defines how HTTP routes are registered for the API

import (
    "database/sql"

    "github.com/labstack/echo/v4"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "github.com/iliyamo/class-reservation/internal/handler"
    "github.com/iliyamo/class-reservation/internal/middleware"
    "github.com/iliyamo/class-reservation/internal/model"
)

// RegisterRoutes registers the unauthenticated operational routes:
// liveness at /healthz, readiness at /readyz and Prometheus metrics at
// /metrics.
func RegisterRoutes(e *echo.Echo, db *sql.DB, gatherer prometheus.Gatherer) {
    e.GET("/healthz", handler.Health)
    if db != nil {
        e.GET("/readyz", handler.Ready(db))
    }
    if gatherer != nil {
        e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
    }
}

// RegisterPublic registers browse endpoints that guests may call.  cache
// wraps the availability lookup; pass nil to serve it uncached.
func RegisterPublic(e *echo.Echo, h *handler.ReservationHandler, cache echo.MiddlewareFunc, mw ...echo.MiddlewareFunc) {
    g := e.Group("/v1", mw...)
    if cache != nil {
        g.GET("/classes/:id/availability", h.Availability, cache)
        return
    }
    g.GET("/classes/:id/availability", h.Availability)
}

// RegisterCustomer registers customer-scoped endpoints under /v1.  All
// routes require a valid JWT and the CUSTOMER role; a customer only ever
// books, views and cancels their own reservations.
func RegisterCustomer(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, mw ...echo.MiddlewareFunc) {
    chain := append([]echo.MiddlewareFunc{
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(model.RoleCustomer),
    }, mw...)
    g := e.Group("/v1", chain...)

    g.POST("/classes/:id/reservations", h.Reserve)
    g.GET("/my-reservations", h.ListMine)
    g.GET("/reservations/:id", h.Get)
    g.DELETE("/reservations/:id", h.Cancel)
}

// RegisterStaff registers front-desk endpoints under /v1/staff.  All
// routes require a valid JWT and the STAFF role.
func RegisterStaff(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, mw ...echo.MiddlewareFunc) {
    chain := append([]echo.MiddlewareFunc{
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(model.RoleStaff),
    }, mw...)
    g := e.Group("/v1/staff", chain...)

    g.POST("/classes/:id/reservations", h.ReserveFor)
    g.GET("/classes/:id/roster", h.Roster)
    g.GET("/reservations/:id", h.Get)
    g.DELETE("/reservations/:id", h.Cancel)
    g.POST("/reservations/:id/check-in", h.CheckIn)
    g.POST("/reservations/:id/no-show", h.MarkNoShow)
}
