package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"budgets/internal/core"
	applog "budgets/internal/log"
	"budgets/internal/middleware/ratelimit"
	"budgets/internal/services"
	"budgets/internal/storage/memory"
)

type testAPI struct {
	t     *testing.T
	srv   *Server
	store *memory.Store
}

func newTestAPI(t *testing.T, opts Options) *testAPI {
	t.Helper()
	store := memory.New()
	logger := applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	srv := NewServer(":0", services.NewBudgetService(store), logger, opts)
	t.Cleanup(func() { srv.rateLimiter.Stop() })
	return &testAPI{t: t, srv: srv, store: store}
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rr.Code, want, rr.Body.String())
	}
}

func TestHealthAndReady(t *testing.T) {
	api := newTestAPI(t, Options{})

	for _, path := range []string{"/healthz", "/readyz"} {
		expectStatus(t, api.do(http.MethodGet, path, ""), http.StatusOK)
	}

	api.store.Close()
	rr := api.do(http.MethodGet, "/readyz", "")
	expectStatus(t, rr, http.StatusServiceUnavailable)
	if body := decode[errorBody](t, rr); body.Kind != core.KindStoreUnavailable {
		t.Fatalf("kind = %q", body.Kind)
	}
}

func TestGroceriesOverHTTP(t *testing.T) {
	api := newTestAPI(t, Options{})

	rr := api.do(http.MethodPost, "/users", `{"email":" ana@example.com "}`)
	expectStatus(t, rr, http.StatusOK)
	if u := decode[userResponse](t, rr); u.Email != "ana@example.com" || u.ID == "" {
		t.Fatalf("user = %+v", u)
	}

	rr = api.do(http.MethodPost, "/users/ana@example.com/budgets", `{"name":"Groceries","amount":"200","emoji":"🛒"}`)
	expectStatus(t, rr, http.StatusCreated)
	budget := decode[budgetResponse](t, rr)
	if budget.Amount.Cents != 20000 || budget.Emoji != "🛒" {
		t.Fatalf("budget = %+v", budget)
	}
	if loc := rr.Header().Get("Location"); loc != "/budgets/"+budget.ID {
		t.Fatalf("Location = %q", loc)
	}

	rr = api.do(http.MethodPost, "/budgets/"+budget.ID+"/transactions", `{"amount":50,"description":"market"}`)
	expectStatus(t, rr, http.StatusCreated)
	tx := decode[transactionResponse](t, rr)
	if tx.Amount.Cents != 5000 || tx.Emoji != "🛒" {
		t.Fatalf("transaction = %+v", tx)
	}

	rr = api.do(http.MethodPost, "/budgets/"+budget.ID+"/transactions", `{"amount":"160,00"}`)
	expectStatus(t, rr, http.StatusUnprocessableEntity)
	if body := decode[errorBody](t, rr); body.Kind != core.KindBudgetExceeded {
		t.Fatalf("kind = %q", body.Kind)
	}

	rr = api.do(http.MethodGet, "/budgets/"+budget.ID, "")
	expectStatus(t, rr, http.StatusOK)
	got := decode[budgetResponse](t, rr)
	if got.Spent.Cents != 5000 || got.Remaining.Cents != 15000 || len(got.Transactions) != 1 || got.Reached {
		t.Fatalf("budget = %+v", got)
	}
	if !strings.Contains(rr.Body.String(), `"spent":50.00`) {
		t.Fatalf("amounts should render with two decimals: %s", rr.Body.String())
	}

	rr = api.do(http.MethodGet, "/users/ana@example.com/budgets", "")
	expectStatus(t, rr, http.StatusOK)
	if list := decode[[]budgetResponse](t, rr); len(list) != 1 || len(list[0].Transactions) != 1 {
		t.Fatalf("list = %+v", list)
	}

	rr = api.do(http.MethodGet, "/users/ana@example.com/transactions?period=last7", "")
	expectStatus(t, rr, http.StatusOK)
	if txs := decode[[]budgetTransactionResponse](t, rr); len(txs) != 1 || txs[0].BudgetName != "Groceries" {
		t.Fatalf("transactions = %+v", txs)
	}

	rr = api.do(http.MethodGet, "/users/ana@example.com/dashboard", "")
	expectStatus(t, rr, http.StatusOK)
	ov := decode[overviewResponse](t, rr)
	if ov.TotalSpent.Cents != 5000 || ov.TransactionCount != 1 || ov.ReachedRatio != "0/1" {
		t.Fatalf("overview = %+v", ov)
	}
	if len(ov.Budgets) != 1 || len(ov.RecentTransactions) != 1 || len(ov.RecentBudgets) != 1 {
		t.Fatalf("overview feeds = %+v", ov)
	}

	expectStatus(t, api.do(http.MethodDelete, "/transactions/"+tx.ID, ""), http.StatusNoContent)
	expectStatus(t, api.do(http.MethodDelete, "/transactions/"+tx.ID, ""), http.StatusNotFound)
	expectStatus(t, api.do(http.MethodDelete, "/budgets/"+budget.ID, ""), http.StatusNoContent)
	expectStatus(t, api.do(http.MethodGet, "/budgets/"+budget.ID, ""), http.StatusNotFound)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t, Options{})
	expectStatus(t, api.do(http.MethodPost, "/users", `{"email":"bo@example.com"}`), http.StatusOK)
	expectStatus(t, api.do(http.MethodPost, "/users/bo@example.com/budgets", `{"name":"Rent","amount":900}`), http.StatusCreated)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		status   int
		wantKind string
	}{
		{"duplicate budget", http.MethodPost, "/users/bo@example.com/budgets", `{"name":"Rent","amount":1}`, http.StatusConflict, core.KindConflict},
		{"unknown user", http.MethodGet, "/users/nobody@example.com/budgets", "", http.StatusNotFound, core.KindNotFound},
		{"unknown user budget", http.MethodPost, "/users/nobody@example.com/budgets", `{"name":"X","amount":1}`, http.StatusNotFound, core.KindNotFound},
		{"empty email", http.MethodPost, "/users", `{"email":"   "}`, http.StatusBadRequest, core.KindInvalidArgument},
		{"malformed json", http.MethodPost, "/users", `{"email":`, http.StatusBadRequest, core.KindInvalidArgument},
		{"empty body", http.MethodPost, "/users", "", http.StatusBadRequest, core.KindInvalidArgument},
		{"unknown field", http.MethodPost, "/users", `{"email":"a@b.c","admin":true}`, http.StatusBadRequest, core.KindInvalidArgument},
		{"trailing data", http.MethodPost, "/users", `{"email":"a@b.c"}{}`, http.StatusBadRequest, core.KindInvalidArgument},
		{"missing amount", http.MethodPost, "/users/bo@example.com/budgets", `{"name":"Food"}`, http.StatusBadRequest, core.KindInvalidArgument},
		{"negative amount", http.MethodPost, "/users/bo@example.com/budgets", `{"name":"Food","amount":-5}`, http.StatusBadRequest, core.KindInvalidArgument},
		{"garbage amount", http.MethodPost, "/users/bo@example.com/budgets", `{"name":"Food","amount":"lots"}`, http.StatusBadRequest, core.KindInvalidArgument},
		{"empty name", http.MethodPost, "/users/bo@example.com/budgets", `{"name":"","amount":5}`, http.StatusBadRequest, core.KindInvalidArgument},
		{"bad period", http.MethodGet, "/users/bo@example.com/transactions?period=last2", "", http.StatusBadRequest, core.KindInvalidArgument},
		{"amount past int64", http.MethodPost, "/users/bo@example.com/budgets", `{"name":"Huge","amount":"92233720368547758.07"}`, http.StatusBadRequest, core.KindInvalidArgument},
		{"missing budget", http.MethodPost, "/budgets/nope/transactions", `{"amount":1}`, http.StatusNotFound, core.KindNotFound},
		{"delete missing budget", http.MethodDelete, "/budgets/nope", "", http.StatusNotFound, core.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := api.do(tt.method, tt.path, tt.body)
			expectStatus(t, rr, tt.status)
			if body := decode[errorBody](t, rr); body.Kind != tt.wantKind || body.Error == "" {
				t.Fatalf("body = %+v, want kind %q", body, tt.wantKind)
			}
		})
	}
}

func TestOversizedBody(t *testing.T) {
	api := newTestAPI(t, Options{})
	big := `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	expectStatus(t, api.do(http.MethodPost, "/users", big), http.StatusBadRequest)
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t, Options{})
	rr := api.do(http.MethodPut, "/budgets/abc", `{}`)
	expectStatus(t, rr, http.StatusMethodNotAllowed)
	if allow := rr.Header().Get("Allow"); !strings.Contains(allow, http.MethodDelete) {
		t.Fatalf("Allow = %q", allow)
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	api := newTestAPI(t, Options{})
	rr := api.do(http.MethodGet, "/healthz", "")
	for _, h := range []string{"X-Request-ID", "X-Content-Type-Options", "X-Frame-Options", "Cache-Control"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing header %s", h)
		}
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	api := newTestAPI(t, Options{RateLimit: ratelimit.Config{
		RequestsPerMinute: 2,
		Methods:           []string{http.MethodPost},
	}})

	for i := 0; i < 2; i++ {
		expectStatus(t, api.do(http.MethodPost, "/users", `{"email":"c@example.com"}`), http.StatusOK)
	}
	rr := api.do(http.MethodPost, "/users", `{"email":"c@example.com"}`)
	expectStatus(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After missing")
	}
	if body := decode[errorBody](t, rr); body.Kind != "rate_limited" {
		t.Fatalf("kind = %q", body.Kind)
	}

	// Reads are not counted.
	expectStatus(t, api.do(http.MethodGet, "/users/c@example.com/budgets", ""), http.StatusOK)
}

func TestAmountUnmarshal(t *testing.T) {
	tests := []struct {
		in      string
		cents   int64
		wantErr bool
	}{
		{`{"amount":12.5}`, 1250, false},
		{`{"amount":"12.50"}`, 1250, false},
		{`{"amount":"12,34"}`, 1234, false},
		{`{"amount":0.005}`, 1, false},
		{`{"amount":null}`, 0, true},
		{`{}`, 0, true},
		{`{"amount":0}`, 0, true},
		{`{"amount":"92233720368547758.07"}`, 0, true},
		{`{"amount":1e20}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var req addTransactionRequest
			if err := json.NewDecoder(bytes.NewBufferString(tt.in)).Decode(&req); err != nil {
				t.Fatalf("decode: %v", err)
			}
			m, err := req.Amount.Money()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", m)
				}
				return
			}
			if err != nil || m.Cents != tt.cents {
				t.Fatalf("Money() = %v, %v; want %d cents", m, err, tt.cents)
			}
		})
	}
}
