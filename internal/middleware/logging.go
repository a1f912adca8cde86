package middleware

import (
    "log/slog"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/class-reservation/internal/logging"
)

// RequestLogger attaches a request-scoped logger (request id, method,
// route) to the request context and logs each completed request.  The
// reservation service picks the logger up from the context, so its log
// lines carry the same request id.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
    if base == nil {
        base = slog.Default()
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            req := c.Request()
            requestID := req.Header.Get(echo.HeaderXRequestID)
            if requestID == "" {
                requestID = c.Response().Header().Get(echo.HeaderXRequestID)
            }
            logger := base.With(
                "request_id", requestID,
                "method", req.Method,
                "route", c.Path(),
            )
            c.SetRequest(req.WithContext(logging.ContextWithLogger(req.Context(), logger)))

            err := next(c)
            if err != nil {
                c.Error(err)
            }
            attrs := []any{"status", c.Response().Status, "duration", time.Since(start)}
            if a, ok := Actor(c); ok {
                attrs = append(attrs, "actor", a.String())
            }
            logger.Info("request completed", attrs...)
            return nil
        }
    }
}
