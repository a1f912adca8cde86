package handler_test

import (
    "encoding/json"
    "io"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"
    "unicode/utf8"

    "github.com/labstack/echo/v4"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/class-reservation/internal/handler"
    "github.com/iliyamo/class-reservation/internal/metrics"
    "github.com/iliyamo/class-reservation/internal/model"
    "github.com/iliyamo/class-reservation/internal/repository"
    "github.com/iliyamo/class-reservation/internal/router"
    "github.com/iliyamo/class-reservation/internal/service"
    "github.com/iliyamo/class-reservation/internal/testfixtures"
    "github.com/iliyamo/class-reservation/internal/utils"
)

const testSecret = "handler-test-secret"

type api struct {
    e     *echo.Echo
    h     *testfixtures.SQLiteHarness
    clock *testfixtures.Clock
}

func newAPI(t *testing.T) *api {
    t.Helper()
    h := testfixtures.NewSQLiteHarness(t)
    clock := testfixtures.NewClock(time.Time{})
    registry := prometheus.NewRegistry()
    svc := service.NewReservationService(h.DB, repository.SQLite, service.DefaultPolicy(),
        service.WithClock(clock.Now),
        service.WithMetrics(metrics.MustNewMetrics(registry)),
    )
    rh := handler.NewReservationHandler(svc)

    e := echo.New()
    router.RegisterRoutes(e, h.DB, registry)
    router.RegisterPublic(e, rh, nil)
    router.RegisterCustomer(e, rh, testSecret)
    router.RegisterStaff(e, rh, testSecret)
    return &api{e: e, h: h, clock: clock}
}

func token(t *testing.T, role model.Role, id uint64) string {
    t.Helper()
    tok, err := utils.NewAccessToken(testSecret, id, role, 15*time.Minute)
    require.NoError(t, err)
    return tok.Token
}

func (a *api) do(t *testing.T, method, path, bearer, body string) *httptest.ResponseRecorder {
    t.Helper()
    var r io.Reader
    if body != "" {
        r = strings.NewReader(body)
    }
    req := httptest.NewRequest(method, path, r)
    if body != "" {
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    }
    if bearer != "" {
        req.Header.Set("Authorization", "Bearer "+bearer)
    }
    rec := httptest.NewRecorder()
    a.e.ServeHTTP(rec, req)
    return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
    t.Helper()
    var out map[string]any
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
    return out
}

func TestReserveConfirmAndWaitlist(t *testing.T) {
    a := newAPI(t)
    class := a.h.CreateClass(t, testfixtures.WithCapacity(1, 1))
    a.h.CreateEntitlement(t, 1, model.Unlimited, 0)
    a.h.CreateEntitlement(t, 2, model.Unlimited, 0)
    path := "/v1/classes/" + itoa(class.ID) + "/reservations"

    rec := a.do(t, http.MethodPost, path, token(t, model.RoleCustomer, 1), "")
    require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
    body := decode(t, rec)
    assert.Equal(t, "CONFIRMED", body["action"])
    assert.Equal(t, "CONFIRMED", body["reservation"].(map[string]any)["status"])

    rec = a.do(t, http.MethodPost, path, token(t, model.RoleCustomer, 2), "")
    require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
    res := decode(t, rec)["reservation"].(map[string]any)
    assert.Equal(t, "WAITLISTED", res["status"])
    assert.Equal(t, float64(1), res["waitlist_position"])

    rec = a.do(t, http.MethodPost, path, token(t, model.RoleCustomer, 1), "")
    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.Equal(t, "ALREADY_BOOKED", decode(t, rec)["error"])
}

func TestReserveErrorsMapToStatus(t *testing.T) {
    a := newAPI(t)
    full := a.h.CreateClass(t, testfixtures.WithCapacity(1, 0))
    a.h.CreateEntitlement(t, 1, model.Unlimited, 0)
    a.h.CreateEntitlement(t, 2, model.Unlimited, 0)
    require.Equal(t, http.StatusCreated,
        a.do(t, http.MethodPost, "/v1/classes/"+itoa(full.ID)+"/reservations", token(t, model.RoleCustomer, 1), "").Code)

    tests := []struct {
        name     string
        customer uint64
        path     string
        status   int
        code     string
    }{
        {"waitlist full", 2, "/v1/classes/" + itoa(full.ID) + "/reservations", http.StatusConflict, "WAITLIST_FULL"},
        {"no entitlement", 3, "/v1/classes/" + itoa(full.ID) + "/reservations", http.StatusPaymentRequired, "NO_ACTIVE_ENTITLEMENT"},
        {"unknown class", 1, "/v1/classes/9999/reservations", http.StatusNotFound, "RESOURCE_NOT_FOUND"},
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            rec := a.do(t, http.MethodPost, tt.path, token(t, model.RoleCustomer, tt.customer), "")
            assert.Equal(t, tt.status, rec.Code, rec.Body.String())
            assert.Equal(t, tt.code, decode(t, rec)["error"])
        })
    }

    rec := a.do(t, http.MethodPost, "/v1/classes/abc/reservations", token(t, model.RoleCustomer, 1), "")
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthAndRoles(t *testing.T) {
    a := newAPI(t)
    class := a.h.CreateClass(t)
    path := "/v1/classes/" + itoa(class.ID) + "/reservations"

    assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodPost, path, "", "").Code)
    assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodPost, path, "not-a-jwt", "").Code)
    assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, path, token(t, model.RoleStaff, 9), "").Code)
    assert.Equal(t, http.StatusForbidden,
        a.do(t, http.MethodGet, "/v1/staff/classes/"+itoa(class.ID)+"/roster", token(t, model.RoleCustomer, 1), "").Code)
}

func TestCustomerCancelOwnReservationOnly(t *testing.T) {
    a := newAPI(t)
    class := a.h.CreateClass(t, testfixtures.WithCapacity(1, 1))
    ent := a.h.CreateEntitlement(t, 1, model.SessionCount, 3)
    a.h.CreateEntitlement(t, 2, model.Unlimited, 0)
    classPath := "/v1/classes/" + itoa(class.ID) + "/reservations"

    rec := a.do(t, http.MethodPost, classPath, token(t, model.RoleCustomer, 1), "")
    require.Equal(t, http.StatusCreated, rec.Code)
    id := uint64(decode(t, rec)["reservation"].(map[string]any)["id"].(float64))
    require.Equal(t, http.StatusAccepted, a.do(t, http.MethodPost, classPath, token(t, model.RoleCustomer, 2), "").Code)

    resPath := "/v1/reservations/" + itoa(id)
    rec = a.do(t, http.MethodGet, resPath, token(t, model.RoleCustomer, 2), "")
    assert.Equal(t, http.StatusForbidden, rec.Code)
    rec = a.do(t, http.MethodDelete, resPath, token(t, model.RoleCustomer, 2), "")
    assert.Equal(t, http.StatusForbidden, rec.Code)

    rec = a.do(t, http.MethodDelete, resPath, token(t, model.RoleCustomer, 1), `{"reason":"sick"}`)
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
    body := decode(t, rec)
    cancelled := body["cancelled"].(map[string]any)
    assert.Equal(t, "CANCELLED", cancelled["status"])
    assert.Equal(t, "sick", cancelled["cancel_reason"])
    promoted := body["promoted"].(map[string]any)
    assert.Equal(t, float64(2), promoted["customer_id"])
    assert.Equal(t, "CONFIRMED", promoted["status"])
    assert.Equal(t, 3, a.h.Remaining(t, ent.ID))

    rec = a.do(t, http.MethodGet, "/v1/my-reservations", token(t, model.RoleCustomer, 1), "")
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, float64(1), decode(t, rec)["count"])
}

func TestCustomerCancelAfterDeadline(t *testing.T) {
    a := newAPI(t)
    class := a.h.CreateClass(t)
    a.h.CreateEntitlement(t, 1, model.Unlimited, 0)
    rec := a.do(t, http.MethodPost, "/v1/classes/"+itoa(class.ID)+"/reservations", token(t, model.RoleCustomer, 1), "")
    require.Equal(t, http.StatusCreated, rec.Code)
    id := itoa(uint64(decode(t, rec)["reservation"].(map[string]any)["id"].(float64)))

    a.clock.Set(class.StartsAt.Add(-time.Hour))
    rec = a.do(t, http.MethodDelete, "/v1/reservations/"+id, token(t, model.RoleCustomer, 1), "")
    assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
    assert.Equal(t, "OUTSIDE_CANCELLATION_WINDOW", decode(t, rec)["error"])

    rec = a.do(t, http.MethodDelete, "/v1/staff/reservations/"+id+"?reason=studio+closed", token(t, model.RoleStaff, 7), "")
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
    cancelled := decode(t, rec)["cancelled"].(map[string]any)
    assert.Equal(t, "studio closed", cancelled["cancel_reason"])
    assert.Equal(t, "STAFF:7", cancelled["cancelled_by"])
}

func TestCancelReasonKeepsWholeCharacters(t *testing.T) {
    a := newAPI(t)
    class := a.h.CreateClass(t)
    a.h.CreateEntitlement(t, 1, model.Unlimited, 0)
    rec := a.do(t, http.MethodPost, "/v1/classes/"+itoa(class.ID)+"/reservations", token(t, model.RoleCustomer, 1), "")
    require.Equal(t, http.StatusCreated, rec.Code)
    id := uint64(decode(t, rec)["reservation"].(map[string]any)["id"].(float64))

    reason := strings.Repeat("é", 200) // 400 bytes
    rec = a.do(t, http.MethodDelete, "/v1/reservations/"+itoa(id), token(t, model.RoleCustomer, 1), `{"reason":"`+reason+`"}`)
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

    stored := a.h.Reservation(t, id).CancelReason
    require.NotNil(t, stored)
    assert.True(t, utf8.ValidString(*stored))
    assert.Equal(t, strings.Repeat("é", 127), *stored)
}

func TestStaffFlow(t *testing.T) {
    a := newAPI(t)
    class := a.h.CreateClass(t, testfixtures.WithCapacity(2, 0))
    a.h.CreateEntitlement(t, 1, model.Unlimited, 0)
    a.h.CreateEntitlement(t, 2, model.Unlimited, 0)
    staff := token(t, model.RoleStaff, 7)
    classPath := "/v1/staff/classes/" + itoa(class.ID)

    assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, classPath+"/reservations", staff, `{}`).Code)

    ids := make([]string, 0, 2)
    for _, customer := range []string{"1", "2"} {
        rec := a.do(t, http.MethodPost, classPath+"/reservations", staff, `{"customer_id":`+customer+`}`)
        require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
        ids = append(ids, itoa(uint64(decode(t, rec)["reservation"].(map[string]any)["id"].(float64))))
    }

    rec := a.do(t, http.MethodPost, "/v1/staff/reservations/"+ids[0]+"/check-in", staff, "")
    assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
    assert.Equal(t, "OUTSIDE_CHECKIN_WINDOW", decode(t, rec)["error"])

    a.clock.Set(class.StartsAt.Add(-10 * time.Minute))
    rec = a.do(t, http.MethodPost, "/v1/staff/reservations/"+ids[0]+"/check-in", staff, "")
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
    assert.Equal(t, "COMPLETED", decode(t, rec)["reservation"].(map[string]any)["status"])
    rec = a.do(t, http.MethodPost, "/v1/staff/reservations/"+ids[0]+"/check-in", staff, "")
    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.Equal(t, "ALREADY_CHECKED_IN", decode(t, rec)["error"])

    a.clock.Set(class.EndsAt.Add(time.Hour))
    rec = a.do(t, http.MethodPost, "/v1/staff/reservations/"+ids[1]+"/no-show", staff, "")
    require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
    assert.Equal(t, "NO_SHOW", decode(t, rec)["reservation"].(map[string]any)["status"])

    rec = a.do(t, http.MethodGet, classPath+"/roster", staff, "")
    require.Equal(t, http.StatusOK, rec.Code)
    roster := decode(t, rec)
    assert.Len(t, roster["checked_in"], 1)
    assert.Len(t, roster["no_show"], 1)
    assert.Len(t, roster["confirmed"], 0)
    assert.Equal(t, class.Title, roster["class"].(map[string]any)["title"])

    rec = a.do(t, http.MethodGet, "/v1/staff/classes/9999/roster", staff, "")
    assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAvailabilityIsPublic(t *testing.T) {
    a := newAPI(t)
    class := a.h.CreateClass(t, testfixtures.WithCapacity(3, 2))
    a.h.CreateEntitlement(t, 1, model.Unlimited, 0)
    require.Equal(t, http.StatusCreated,
        a.do(t, http.MethodPost, "/v1/classes/"+itoa(class.ID)+"/reservations", token(t, model.RoleCustomer, 1), "").Code)

    rec := a.do(t, http.MethodGet, "/v1/classes/"+itoa(class.ID)+"/availability", "", "")
    require.Equal(t, http.StatusOK, rec.Code)
    body := decode(t, rec)
    assert.Equal(t, float64(3), body["capacity"])
    assert.Equal(t, float64(1), body["confirmed"])
    assert.Equal(t, float64(2), body["available"])
    assert.Equal(t, true, body["bookable"])

    assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/v1/classes/9999/availability", "", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
    a := newAPI(t)
    rec := a.do(t, http.MethodGet, "/healthz", "", "")
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "ok", rec.Body.String())

    rec = a.do(t, http.MethodGet, "/readyz", "", "")
    assert.Equal(t, http.StatusOK, rec.Code)

    a.do(t, http.MethodPost, "/v1/classes/9999/reservations", token(t, model.RoleCustomer, 1), "")
    rec = a.do(t, http.MethodGet, "/metrics", "", "")
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Contains(t, rec.Body.String(), "class_reservation_engine_operations_total")
}
