package middleware

import (
    "bytes"
    "encoding/json"
    "log/slog"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/class-reservation/internal/config"
    "github.com/iliyamo/class-reservation/internal/logging"
    "github.com/iliyamo/class-reservation/internal/model"
    "github.com/iliyamo/class-reservation/internal/utils"
)

const secret = "middleware-secret"

func signed(t *testing.T, claims jwt.MapClaims) string {
    t.Helper()
    s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    require.NoError(t, err)
    return s
}

// serve runs one request through mw and a handler that echoes the actor.
func serve(t *testing.T, mw []echo.MiddlewareFunc, bearer string) *httptest.ResponseRecorder {
    t.Helper()
    e := echo.New()
    e.GET("/probe", func(c echo.Context) error {
        a, ok := Actor(c)
        if !ok {
            return c.String(http.StatusOK, "anonymous")
        }
        return c.String(http.StatusOK, a.String())
    }, mw...)
    req := httptest.NewRequest(http.MethodGet, "/probe", nil)
    if bearer != "" {
        req.Header.Set("Authorization", "Bearer "+bearer)
    }
    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, req)
    return rec
}

func TestJWTAuth(t *testing.T) {
    exp := time.Now().Add(time.Hour).Unix()
    issued, err := utils.NewAccessToken(secret, 42, model.RoleCustomer, time.Hour)
    require.NoError(t, err)

    tests := []struct {
        name   string
        bearer string
        status int
        body   string
    }{
        {"issued token", issued.Token, http.StatusOK, "CUSTOMER:42"},
        {"numeric subject", signed(t, jwt.MapClaims{"sub": float64(7), "role": "staff", "exp": exp}), http.StatusOK, "STAFF:7"},
        {"missing header", "", http.StatusUnauthorized, ""},
        {"garbage", "abc.def.ghi", http.StatusUnauthorized, ""},
        {"expired", signed(t, jwt.MapClaims{"sub": "1", "role": "CUSTOMER", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized, ""},
        {"no expiry", signed(t, jwt.MapClaims{"sub": "1", "role": "CUSTOMER"}), http.StatusUnauthorized, ""},
        {"unknown role", signed(t, jwt.MapClaims{"sub": "1", "role": "OWNER", "exp": exp}), http.StatusUnauthorized, ""},
        {"bad subject", signed(t, jwt.MapClaims{"sub": "abc", "role": "CUSTOMER", "exp": exp}), http.StatusUnauthorized, ""},
        {"zero subject", signed(t, jwt.MapClaims{"sub": "0", "role": "CUSTOMER", "exp": exp}), http.StatusUnauthorized, ""},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            rec := serve(t, []echo.MiddlewareFunc{JWTAuth(secret)}, tt.bearer)
            assert.Equal(t, tt.status, rec.Code)
            if tt.body != "" {
                assert.Equal(t, tt.body, rec.Body.String())
            }
        })
    }
}

func TestJWTAuthRejectsOtherSecret(t *testing.T) {
    tok, err := utils.NewAccessToken("another-secret", 1, model.RoleStaff, time.Hour)
    require.NoError(t, err)
    rec := serve(t, []echo.MiddlewareFunc{JWTAuth(secret)}, tok.Token)
    assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
    customer, err := utils.NewAccessToken(secret, 1, model.RoleCustomer, time.Hour)
    require.NoError(t, err)
    staff, err := utils.NewAccessToken(secret, 2, model.RoleStaff, time.Hour)
    require.NoError(t, err)

    staffOnly := []echo.MiddlewareFunc{JWTAuth(secret), RequireRole(model.RoleStaff)}
    assert.Equal(t, http.StatusOK, serve(t, staffOnly, staff.Token).Code)
    assert.Equal(t, http.StatusForbidden, serve(t, staffOnly, customer.Token).Code)

    // without JWTAuth there is no caller at all
    assert.Equal(t, http.StatusUnauthorized, serve(t, []echo.MiddlewareFunc{RequireRole(model.RoleStaff)}, "").Code)
}

func TestLocalTokenBucket(t *testing.T) {
    cfg := config.RateLimitConfig{
        Enabled:        true,
        Capacity:       2,
        RefillTokens:   1,
        RefillInterval: time.Hour,
        TTL:            time.Hour,
        KeyStrategy:    "ip",
        Prefix:         "rl",
    }
    mw := []echo.MiddlewareFunc{NewTokenBucket(cfg, nil)}

    e := echo.New()
    e.GET("/probe", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, mw...)
    hit := func(ip string) *httptest.ResponseRecorder {
        req := httptest.NewRequest(http.MethodGet, "/probe", nil)
        req.RemoteAddr = ip + ":1234"
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, req)
        return rec
    }

    first := hit("10.0.0.1")
    assert.Equal(t, http.StatusNoContent, first.Code)
    assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
    assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
    assert.Equal(t, http.StatusNoContent, hit("10.0.0.1").Code)

    blocked := hit("10.0.0.1")
    assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
    assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

    // a different key has its own bucket
    assert.Equal(t, http.StatusNoContent, hit("10.0.0.2").Code)
}

func TestTokenBucketDisabled(t *testing.T) {
    mw := NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil)
    for i := 0; i < 5; i++ {
        assert.Equal(t, http.StatusOK, serve(t, []echo.MiddlewareFunc{mw}, "").Code)
    }
}

func TestBuildRateKey(t *testing.T) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/classes/3/reservations", nil)
    req.RemoteAddr = "192.0.2.10:5555"
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/v1/classes/:id/reservations")
    SetActor(c, model.Customer(42))

    route := "POST /v1/classes/:id/reservations"
    tests := map[string]string{
        "ip":         "rl:ip:192.0.2.10",
        "user":       "rl:user:42",
        "route":      "rl:route:" + route,
        "ip_user":    "rl:ip:192.0.2.10:user:42",
        "user_route": "rl:user:42:route:" + route,
        "":           "rl:ip:192.0.2.10:user:42:route:" + route,
    }
    for strategy, want := range tests {
        cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}
        assert.Equal(t, want, buildRateKey(cfg, c), strategy)
    }
}

func TestCachePassThroughWithoutRedis(t *testing.T) {
    cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Second, Prefix: "cache"}
    rec := serve(t, []echo.MiddlewareFunc{NewRedisCache(cfg, nil)}, "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestPayloadRoundTrip(t *testing.T) {
    hdr := http.Header{"Content-Type": {"application/json"}}
    payload, err := encodePayload(http.StatusOK, hdr, []byte(`{"available":2}`))
    require.NoError(t, err)

    status, gotHdr, body, ok := decodePayload(payload)
    require.True(t, ok)
    assert.Equal(t, http.StatusOK, status)
    assert.Equal(t, "application/json", gotHdr.Get("Content-Type"))
    assert.Equal(t, `{"available":2}`, string(body))

    _, _, _, ok = decodePayload([]byte{0, 1})
    assert.False(t, ok)
    _, _, _, ok = decodePayload(append(payload[:8:8], '{'))
    assert.False(t, ok)
}

func TestCacheKeyDistinguishesClasses(t *testing.T) {
    cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "route_query"}
    e := echo.New()
    keyFor := func(id string) string {
        c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/classes/"+id+"/availability", nil), httptest.NewRecorder())
        c.SetPath("/v1/classes/:id/availability")
        c.SetParamNames("id")
        c.SetParamValues(id)
        return cacheKeyFrom(cfg, c)
    }
    assert.Equal(t, keyFor("1"), keyFor("1"))
    assert.NotEqual(t, keyFor("1"), keyFor("2"))
    assert.True(t, strings.HasPrefix(keyFor("1"), "cache:"))
}

func TestCaptureWriterLimit(t *testing.T) {
    rec := httptest.NewRecorder()
    cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
    _, err := cw.Write([]byte("abcdef"))
    require.NoError(t, err)
    assert.Equal(t, "abcdef", rec.Body.String())
    assert.Equal(t, "abcd", cw.buf.String())
    assert.True(t, cw.truncated())
}

func TestRequestLogger(t *testing.T) {
    var buf bytes.Buffer
    base := slog.New(slog.NewJSONHandler(&buf, nil))

    e := echo.New()
    var fromCtx *slog.Logger
    e.GET("/probe", func(c echo.Context) error {
        fromCtx = logging.FromContext(c.Request().Context())
        return c.NoContent(http.StatusNoContent)
    }, RequestLogger(base))

    req := httptest.NewRequest(http.MethodGet, "/probe", nil)
    req.Header.Set(echo.HeaderXRequestID, "req-1")
    e.ServeHTTP(httptest.NewRecorder(), req)

    require.NotNil(t, fromCtx)
    var line map[string]any
    require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
    assert.Equal(t, "request completed", line["msg"])
    assert.Equal(t, "req-1", line["request_id"])
    assert.Equal(t, "/probe", line["route"])
    assert.Equal(t, float64(http.StatusNoContent), line["status"])
}
