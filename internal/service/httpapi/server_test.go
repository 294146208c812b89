package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/nailflow/capacity/internal/clock"
	"github.com/nailflow/capacity/internal/domain"
	"github.com/nailflow/capacity/internal/service/admin"
	"github.com/nailflow/capacity/internal/service/httpapi"
	"github.com/nailflow/capacity/internal/service/ledger"
	"github.com/nailflow/capacity/internal/storage/memory"
)

const testAdminToken = "test-admin-token"

type testEnv struct {
	server *httptest.Server
	repo   domain.CapacityRepository
	clk    *clock.FixedClock
}

func newTestEnv(t *testing.T, options ...ledger.Option) *testEnv {
	t.Helper()

	loc, err := time.LoadLocation(clock.DefaultTimezone)
	require.NoError(t, err)
	clk := clock.NewFixedClock(time.Date(2026, time.August, 26, 12, 0, 0, 0, loc), loc)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	entry := logger.WithField("test", true)

	repo := memory.NewCapacityRepository()
	audit := memory.NewAuditRepository()
	ldg := ledger.New(repo, clk, entry, append([]ledger.Option{ledger.WithAudit(audit)}, options...)...)
	controller := admin.NewController(repo, audit, ldg, clk, entry, nil)

	server := httpapi.NewServer(ldg, controller, entry,
		httpapi.WithIdempotency(memory.NewIdempotencyRepository(), time.Hour),
		httpapi.WithAdminToken(testAdminToken),
	)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, repo: repo, clk: clk}
}

func (e *testEnv) admit(t *testing.T, idempotencyKey string, body []byte) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/v1/admissions", bytes.NewReader(body))
	require.NoError(t, err)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (e *testEnv) adminRequest(t *testing.T, method, path, token string, body []byte) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Admin-User", "admin-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

func TestAdmit_Allowed(t *testing.T) {
	env := newTestEnv(t)

	resp := env.admit(t, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decision struct {
		Allowed   bool   `json:"allowed"`
		Remaining int    `json:"remaining"`
		WeekStart string `json:"week_start"`
	}
	decodeJSON(t, resp, &decision)
	require.True(t, decision.Allowed)
	require.Equal(t, ledger.DefaultWeeklyCapacity-1, decision.Remaining)
	require.NotEmpty(t, decision.WeekStart)
}

func TestAdmit_RejectedWhenFull(t *testing.T) {
	env := newTestEnv(t, ledger.WithDefaultCapacity(1))

	resp := env.admit(t, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.admit(t, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decision struct {
		Allowed   bool `json:"allowed"`
		Remaining int  `json:"remaining"`
	}
	decodeJSON(t, resp, &decision)
	require.False(t, decision.Allowed)
	require.Equal(t, 0, decision.Remaining)
}

func TestAdmit_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t)

	first := env.admit(t, "key-1", nil)
	require.Equal(t, http.StatusOK, first.StatusCode)
	firstBody, err := io.ReadAll(first.Body)
	require.NoError(t, err)
	_ = first.Body.Close()

	second := env.admit(t, "key-1", nil)
	require.Equal(t, http.StatusOK, second.StatusCode)
	require.Equal(t, "true", second.Header.Get("X-Idempotency-Replayed"))
	secondBody, err := io.ReadAll(second.Body)
	require.NoError(t, err)
	_ = second.Body.Close()

	require.Equal(t, string(firstBody), string(secondBody))

	// Повтор не увеличивает счётчик второй раз.
	record, err := env.repo.Get(env.clk.CurrentWeekStart())
	require.NoError(t, err)
	require.Equal(t, 1, record.OrdersCount)
}

func TestAdmit_IdempotencyHashMismatch(t *testing.T) {
	env := newTestEnv(t)

	first := env.admit(t, "key-1", nil)
	require.Equal(t, http.StatusOK, first.StatusCode)
	_ = first.Body.Close()

	// Тот же ключ, другое тело запроса.
	second := env.admit(t, "key-1", []byte(`{"customer_id":"c-1"}`))
	require.Equal(t, http.StatusUnprocessableEntity, second.StatusCode)
	_ = second.Body.Close()
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.adminRequest(t, http.MethodGet, "/v1/admin/capacity", "", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.adminRequest(t, http.MethodGet, "/v1/admin/capacity", "wrong-token", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.adminRequest(t, http.MethodGet, "/v1/admin/capacity", testAdminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		WeekStart     string `json:"week_start"`
		NextWeekStart string `json:"next_week_start"`
		Capacity      int    `json:"capacity"`
		OrdersCount   int    `json:"orders_count"`
		Remaining     int    `json:"remaining"`
	}
	decodeJSON(t, resp, &status)
	require.Equal(t, ledger.DefaultWeeklyCapacity, status.Capacity)
	require.Equal(t, 0, status.OrdersCount)
	require.NotEmpty(t, status.NextWeekStart)
}

func TestAdminUpdateCapacity(t *testing.T) {
	env := newTestEnv(t)

	resp := env.adminRequest(t, http.MethodPut, "/v1/admin/capacity", testAdminToken, []byte(`{"capacity":60}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		Capacity  int `json:"capacity"`
		Remaining int `json:"remaining"`
	}
	decodeJSON(t, resp, &status)
	require.Equal(t, 60, status.Capacity)
	require.Equal(t, 60, status.Remaining)
}

func TestAdminUpdateCapacity_Invalid(t *testing.T) {
	env := newTestEnv(t)

	resp := env.adminRequest(t, http.MethodPut, "/v1/admin/capacity", testAdminToken, []byte(`{"capacity":0}`))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.adminRequest(t, http.MethodPut, "/v1/admin/capacity", testAdminToken, []byte(`not-json`))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAdminResetCount(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		resp := env.admit(t, "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}

	resp := env.adminRequest(t, http.MethodPost, "/v1/admin/capacity/reset", testAdminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status struct {
		OrdersCount int `json:"orders_count"`
		Remaining   int `json:"remaining"`
	}
	decodeJSON(t, resp, &status)
	require.Equal(t, 0, status.OrdersCount)
	require.Equal(t, ledger.DefaultWeeklyCapacity, status.Remaining)
}

func TestAdminCreateNextWeek(t *testing.T) {
	env := newTestEnv(t)

	resp := env.adminRequest(t, http.MethodPost, "/v1/admin/capacity/next-week", testAdminToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var status struct {
		WeekStart   string `json:"week_start"`
		Capacity    int    `json:"capacity"`
		OrdersCount int    `json:"orders_count"`
	}
	decodeJSON(t, resp, &status)
	require.Equal(t, ledger.DefaultWeeklyCapacity, status.Capacity)
	require.Equal(t, 0, status.OrdersCount)

	// Повторное создание того же окна — конфликт.
	resp = env.adminRequest(t, http.MethodPost, "/v1/admin/capacity/next-week", testAdminToken, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestAdminHistory(t *testing.T) {
	env := newTestEnv(t)

	resp := env.admit(t, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = env.adminRequest(t, http.MethodGet, "/v1/admin/capacity/history", testAdminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		Occurred string `json:"occurred_at"`
	}
	decodeJSON(t, resp, &events)
	require.Len(t, events, 2)
	require.Equal(t, domain.AuditWeekCreated, events[0].Type)
	require.Equal(t, domain.AuditOrderAdmitted, events[1].Type)
}
