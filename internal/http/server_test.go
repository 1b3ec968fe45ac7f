package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"revenue/internal/auth"
	"revenue/internal/core"
	"revenue/internal/ledger"
	applog "revenue/internal/log"
	"revenue/internal/storage/memory"
)

type testAPI struct {
	t   *testing.T
	srv *Server
}

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard})
}

func newTestAPI(t *testing.T, mutate ...func(*Options)) *testAPI {
	t.Helper()
	store := memory.New()
	logger := quietLogger()

	opts := Options{
		Auth: auth.NewService(store, auth.Config{
			Secret:     []byte("0123456789abcdef0123456789abcdef"),
			Issuer:     "revenue-test",
			TTL:        time.Hour,
			BcryptCost: bcrypt.MinCost,
		}, logger),
		Ledger:             ledger.NewService(store, nil, ledger.Config{CacheTTL: time.Minute}, logger),
		Logger:             logger,
		RateLimitPerMinute: 1000,
	}
	for _, m := range mutate {
		m(&opts)
	}

	srv := NewServer(opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testAPI{t: t, srv: srv}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "192.0.2.10:1234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) signUp(email string) string {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/api/auth/signup", "", map[string]string{"email": email, "password": "secret123"})
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[sessionResponse](a.t, rr).Token
}

func (a *testAPI) create(token, collection string, amount any, date string) entryResponse {
	a.t.Helper()
	rr := a.do(http.MethodPost, "/api/"+collection, token, map[string]any{
		"amount": amount, "description": "entry " + date, "date": date,
	})
	require.Equal(a.t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[entryResponse](a.t, rr)
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := api.do(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rr.Code, path)
	}

	api = newTestAPI(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("store unreachable") }
	})
	rr := api.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	api := newTestAPI(t)

	rr := api.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	require.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "client-abc-123")
	rr = httptest.NewRecorder()
	api.srv.Handler.ServeHTTP(rr, req)
	require.Equal(t, "client-abc-123", rr.Header().Get("X-Request-ID"))
}

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t)
	creds := map[string]string{"email": "Alice@Example.com", "password": "secret123", "name": "Alice"}

	rr := api.do(http.MethodPost, "/api/auth/signup", "", creds)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	signedUp := decode[sessionResponse](t, rr)
	require.Equal(t, "alice@example.com", signedUp.Email)
	require.NotEmpty(t, signedUp.UserID)

	rr = api.do(http.MethodPost, "/api/auth/signup", "", creds)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "email", decode[errorResponse](t, rr).Field)

	rr = api.do(http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "alice@example.com", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = api.do(http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "alice@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, rr.Code)
	token := decode[sessionResponse](t, rr).Token

	rr = api.do(http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	profile := decode[profileResponse](t, rr)
	require.Equal(t, signedUp.UserID, profile.ID)
	require.Equal(t, "Alice", profile.Name)

	rr = api.do(http.MethodPut, "/api/profile", token, map[string]string{"name": "Alice Liddell"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Alice Liddell", decode[profileResponse](t, rr).Name)

	rr = api.do(http.MethodPost, "/api/auth/signout", token, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = api.do(http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSignUpValidation(t *testing.T) {
	api := newTestAPI(t)

	tests := []struct {
		name      string
		body      any
		wantCode  int
		wantField string
	}{
		{"missing email", map[string]string{"password": "secret123"}, http.StatusUnprocessableEntity, "email"},
		{"bad email", map[string]string{"email": "nope", "password": "secret123"}, http.StatusUnprocessableEntity, "email"},
		{"short password", map[string]string{"email": "a@example.com", "password": "123"}, http.StatusUnprocessableEntity, "password"},
		{"unknown field", map[string]string{"email": "a@example.com", "password": "secret123", "role": "admin"}, http.StatusBadRequest, ""},
		{"not json", "email=a@example.com", http.StatusBadRequest, ""},
		{"empty body", "", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(http.MethodPost, "/api/auth/signup", "", tt.body)
			require.Equal(t, tt.wantCode, rr.Code, rr.Body.String())
			require.Equal(t, tt.wantField, decode[errorResponse](t, rr).Field)
		})
	}
}

func TestRequiresBearerToken(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/incomes", "/api/expenses/total", "/api/dashboard", "/api/reports/monthly", "/api/profile"} {
		rr := api.do(http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rr.Code, path)
		require.Contains(t, rr.Header().Get("WWW-Authenticate"), "Bearer")
	}

	rr := api.do(http.MethodGet, "/api/incomes", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestEntryLifecycle(t *testing.T) {
	api := newTestAPI(t)
	token := api.signUp("alice@example.com")

	jan := api.create(token, "incomes", "100", "2024-01-05")
	api.create(token, "incomes", 50, "2024-02-01")
	require.Equal(t, core.Income, jan.Kind)
	require.Equal(t, "100.00", jan.Amount)
	require.Equal(t, int64(10000), jan.AmountCents)

	rr := api.do(http.MethodGet, "/api/incomes?year=2024&month=1", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[entryListResponse](t, rr)
	require.Len(t, list.Entries, 2)
	require.Equal(t, "2024-02-01", list.Entries[0].Date)
	require.Equal(t, "150.00", list.Total)
	require.Equal(t, "100.00", list.MonthTotal)

	rr = api.do(http.MethodPut, "/api/incomes/"+jan.ID, token, map[string]any{
		"amount": "120,5", "description": "  raise  ", "date": "2024-01-06",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[entryResponse](t, rr)
	require.Equal(t, jan.ID, updated.ID)
	require.Equal(t, "120.50", updated.Amount)
	require.Equal(t, "raise", updated.Description)
	require.Equal(t, "2024-01-06", updated.Date)

	rr = api.do(http.MethodGet, "/api/incomes/"+jan.ID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "120.50", decode[entryResponse](t, rr).Amount)

	rr = api.do(http.MethodDelete, "/api/incomes/"+jan.ID, token, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = api.do(http.MethodGet, "/api/incomes/"+jan.ID, token, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(http.MethodGet, "/api/incomes?year=2024&month=1", token, nil)
	list = decode[entryListResponse](t, rr)
	require.Len(t, list.Entries, 1)
	require.Equal(t, "50.00", list.Total)
	require.Equal(t, "0.00", list.MonthTotal)
}

func TestEntriesAreIsolatedPerUser(t *testing.T) {
	api := newTestAPI(t)
	alice := api.signUp("alice@example.com")
	bob := api.signUp("bob@example.com")

	e := api.create(alice, "expenses", "30", "2024-03-01")

	rr := api.do(http.MethodGet, "/api/expenses", bob, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, decode[entryListResponse](t, rr).Entries)

	rr = api.do(http.MethodGet, "/api/expenses/"+e.ID, bob, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(http.MethodPut, "/api/expenses/"+e.ID, bob, map[string]any{"amount": 1, "description": "x", "date": "2024-03-01"})
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(http.MethodDelete, "/api/expenses/"+e.ID, bob, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = api.do(http.MethodGet, "/api/expenses/"+e.ID, alice, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "30.00", decode[entryResponse](t, rr).Amount)

	rr = api.do(http.MethodGet, "/api/incomes/"+e.ID, alice, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEntryValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.signUp("alice@example.com")

	tests := []struct {
		name      string
		body      any
		wantCode  int
		wantField string
	}{
		{"missing amount", map[string]any{"description": "x", "date": "2024-01-01"}, http.StatusUnprocessableEntity, "amount"},
		{"zero amount", map[string]any{"amount": 0, "description": "x", "date": "2024-01-01"}, http.StatusUnprocessableEntity, "amount"},
		{"negative amount", map[string]any{"amount": "-5", "description": "x", "date": "2024-01-01"}, http.StatusUnprocessableEntity, "amount"},
		{"text amount", map[string]any{"amount": "ten", "description": "x", "date": "2024-01-01"}, http.StatusUnprocessableEntity, "amount"},
		{"blank description", map[string]any{"amount": 5, "description": "   ", "date": "2024-01-01"}, http.StatusUnprocessableEntity, "description"},
		{"long description", map[string]any{"amount": 5, "description": strings.Repeat("a", 201), "date": "2024-01-01"}, http.StatusUnprocessableEntity, "description"},
		{"missing date", map[string]any{"amount": 5, "description": "x"}, http.StatusUnprocessableEntity, "date"},
		{"bad date", map[string]any{"amount": 5, "description": "x", "date": "yesterday"}, http.StatusUnprocessableEntity, "date"},
		{"amount object", `{"amount": {"v": 1}, "description": "x", "date": "2024-01-01"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(http.MethodPost, "/api/expenses", token, tt.body)
			require.Equal(t, tt.wantCode, rr.Code, rr.Body.String())
			require.Equal(t, tt.wantField, decode[errorResponse](t, rr).Field)
		})
	}
}

func TestTotals(t *testing.T) {
	api := newTestAPI(t)
	token := api.signUp("alice@example.com")

	rr := api.do(http.MethodGet, "/api/expenses/total", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "0.00", decode[totalResponse](t, rr).Total)

	api.create(token, "expenses", "100", "2024-01-05")
	api.create(token, "expenses", "50", "2024-02-01")

	rr = api.do(http.MethodGet, "/api/expenses/total", token, nil)
	require.Equal(t, "150.00", decode[totalResponse](t, rr).Total)

	rr = api.do(http.MethodGet, "/api/expenses/total?year=2024&month=1", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	total := decode[totalResponse](t, rr)
	require.Equal(t, "100.00", total.Total)
	require.Equal(t, 2024, total.Year)
	require.Equal(t, 1, total.Month)

	tests := []struct {
		query     string
		wantField string
	}{
		{"?month=1", "year"},
		{"?year=2024", "month"},
		{"?year=2024&month=13", "month"},
		{"?year=abc&month=1", "year"},
	}
	for _, tt := range tests {
		rr := api.do(http.MethodGet, "/api/expenses/total"+tt.query, token, nil)
		require.Equal(t, http.StatusUnprocessableEntity, rr.Code, tt.query)
		require.Equal(t, tt.wantField, decode[errorResponse](t, rr).Field, tt.query)
	}
}

func TestDashboardAndReport(t *testing.T) {
	api := newTestAPI(t)
	token := api.signUp("alice@example.com")

	rr := api.do(http.MethodGet, "/api/dashboard", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	empty := decode[summaryResponse](t, rr)
	require.Equal(t, "0.00", empty.NetProfit)
	require.Zero(t, empty.ProfitMargin)

	api.create(token, "incomes", "200", "2024-01-05")
	api.create(token, "expenses", "50", "2024-01-10")

	rr = api.do(http.MethodGet, "/api/dashboard", token, nil)
	summary := decode[summaryResponse](t, rr)
	require.Equal(t, "200.00", summary.TotalIncome)
	require.Equal(t, "50.00", summary.TotalExpenses)
	require.Equal(t, "150.00", summary.NetProfit)
	require.InDelta(t, 75.0, summary.ProfitMargin, 0.001)

	rr = api.do(http.MethodGet, "/api/reports/monthly?year=2024", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	report := decode[reportResponse](t, rr)
	require.Equal(t, 2024, report.Year)
	require.Len(t, report.Months, 12)
	require.Equal(t, "150.00", report.Months[0].Net)
	require.Equal(t, "0.00", report.Months[1].Net)
}

// failingLedger fails every list with a store error.
type failingLedger struct {
	Ledger
}

func (failingLedger) List(context.Context, auth.Session, core.Kind) ([]core.Entry, error) {
	return nil, errors.New("connection reset by peer")
}

func TestUnexpectedErrorsAreGeneric(t *testing.T) {
	api := newTestAPI(t, func(o *Options) { o.Ledger = failingLedger{Ledger: o.Ledger} })
	token := api.signUp("alice@example.com")

	rr := api.do(http.MethodGet, "/api/incomes", token, nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, GenericErrorMessage, decode[errorResponse](t, rr).Error)
	require.NotContains(t, rr.Body.String(), "connection reset")
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, func(o *Options) { o.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		rr := api.do(http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "a@example.com", "password": "secret123"})
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	rr := api.do(http.MethodPost, "/api/auth/signin", "", map[string]string{"email": "a@example.com", "password": "secret123"})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "60", rr.Header().Get("Retry-After"))
	require.EqualValues(t, 1, api.srv.Metrics().RateLimited)

	rr = api.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	api := newTestAPI(t)
	rr := api.do(http.MethodGet, "/api/transfers", "", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}
