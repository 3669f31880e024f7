package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fintraka/internal/auth"
	"fintraka/internal/core"
	applog "fintraka/internal/log"
	"fintraka/internal/services"
	"fintraka/internal/storage/memory"
)

var fixedNow = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.New()
	ledger := services.NewLedgerService(store, services.WithClock(func() time.Time { return fixedNow }))
	if _, err := ledger.EnsureGlobalCategories(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	authSvc := services.NewAuthService(store,
		auth.NewPasswords(bcrypt.MinCost),
		auth.NewTokens("0123456789abcdef", "fintraka-test", time.Hour))

	srv := NewServer(Options{
		Ledger:         ledger,
		Auth:           authSvc,
		Store:          store,
		Logger:         applog.New(applog.Config{Level: slog.LevelError, Output: io.Discard}),
		LoginRateLimit: 3,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, want, w.Body.String())
	}
}

// signUp registers username and returns a session token.
func signUp(t *testing.T, srv *Server, username string) string {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/api/auth/register", "",
		`{"username":"`+username+`","email":"`+username+`@example.com","password":"secret1"}`)
	expectStatus(t, w, http.StatusCreated)

	w = do(t, srv, http.MethodPost, "/api/auth/login", "", `{"username":"`+username+`","password":"secret1"}`)
	expectStatus(t, w, http.StatusOK)
	return decode[map[string]string](t, w)["token"]
}

func globalCategoryID(t *testing.T, srv *Server, token, name string) int64 {
	t.Helper()
	w := do(t, srv, http.MethodGet, "/api/categories", token, "")
	expectStatus(t, w, http.StatusOK)
	for _, c := range decode[[]categoryJSON](t, w) {
		if c.Name == name && c.IsGlobal {
			return c.ID
		}
	}
	t.Fatalf("global category %q not listed", name)
	return 0
}

func createTx(t *testing.T, srv *Server, token, body string) transactionJSON {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/api/transactions", token, body)
	expectStatus(t, w, http.StatusCreated)
	return decode[transactionJSON](t, w)
}

func TestHealthAndReadiness(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/healthz", "", "")
	expectStatus(t, w, http.StatusOK)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on every response")
	}

	w = do(t, srv, http.MethodGet, "/readyz", "", "")
	expectStatus(t, w, http.StatusOK)
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/auth/register", "", `{"username":"alice","email":"alice@example.com","password":"secret1"}`)
	expectStatus(t, w, http.StatusCreated)
	reg := decode[struct {
		User    userJSON `json:"user"`
		Message string   `json:"message"`
	}](t, w)
	if reg.User.Username != "alice" || reg.Message != "User created successfully" {
		t.Fatalf("unexpected register body %+v", reg)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Fatal("register response must not echo the password")
	}

	w = do(t, srv, http.MethodPost, "/api/auth/register", "", `{"username":"alice","password":"secret1"}`)
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, srv, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"wrong!!"}`)
	expectStatus(t, w, http.StatusUnauthorized)

	w = do(t, srv, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"secret1"}`)
	expectStatus(t, w, http.StatusOK)
	token := decode[map[string]string](t, w)["token"]

	w = do(t, srv, http.MethodGet, "/api/auth/me", token, "")
	expectStatus(t, w, http.StatusOK)
	if me := decode[userJSON](t, w); me.ID != reg.User.ID {
		t.Fatalf("me = %+v, want id %d", me, reg.User.ID)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"garbage token", "Token nope"},
		{"wrong scheme", "Basic abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, req)
			expectStatus(t, w, http.StatusUnauthorized)
			if w.Header().Get("WWW-Authenticate") != "Token" {
				t.Errorf("expected WWW-Authenticate challenge, got %q", w.Header().Get("WWW-Authenticate"))
			}
			if body := decode[errorBody](t, w); body.Error.Kind != "unauthorized" {
				t.Errorf("kind = %q", body.Error.Kind)
			}
		})
	}
}

func TestLoginRateLimit(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		w := do(t, srv, http.MethodPost, "/api/auth/login", "", `{"username":"ghost","password":"secret1"}`)
		expectStatus(t, w, http.StatusUnauthorized)
	}
	w := do(t, srv, http.MethodPost, "/api/auth/login", "", `{"username":"ghost","password":"secret1"}`)
	expectStatus(t, w, http.StatusTooManyRequests)
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if body := decode[errorBody](t, w); body.Error.Kind != "rate_limited" {
		t.Errorf("kind = %q", body.Error.Kind)
	}

	// registration is not rate limited
	w = do(t, srv, http.MethodPost, "/api/auth/register", "", `{"username":"bob","password":"secret1"}`)
	expectStatus(t, w, http.StatusCreated)
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice")
	bob := signUp(t, srv, "bob")

	w := do(t, srv, http.MethodGet, "/api/categories", alice, "")
	expectStatus(t, w, http.StatusOK)
	if n := len(decode[[]categoryJSON](t, w)); n != len(core.DefaultGlobalCategories) {
		t.Fatalf("fresh user should see %d global categories, got %d", len(core.DefaultGlobalCategories), n)
	}

	w = do(t, srv, http.MethodPost, "/api/categories", alice, `{"name":"Pets"}`)
	expectStatus(t, w, http.StatusCreated)
	pets := decode[categoryJSON](t, w)
	if pets.IsGlobal || pets.User == nil {
		t.Fatalf("user category must be owned: %+v", pets)
	}

	w = do(t, srv, http.MethodPost, "/api/categories", alice, `{"name":"   "}`)
	expectStatus(t, w, http.StatusBadRequest)

	// bob neither sees nor touches alice's category
	w = do(t, srv, http.MethodGet, "/api/categories/"+itoa(pets.ID), bob, "")
	expectStatus(t, w, http.StatusNotFound)
	w = do(t, srv, http.MethodPut, "/api/categories/"+itoa(pets.ID), bob, `{"name":"Mine"}`)
	expectStatus(t, w, http.StatusNotFound)

	w = do(t, srv, http.MethodPatch, "/api/categories/"+itoa(pets.ID), alice, `{"name":"Animals"}`)
	expectStatus(t, w, http.StatusOK)
	if got := decode[categoryJSON](t, w); got.Name != "Animals" {
		t.Fatalf("rename: %+v", got)
	}

	// globals are read-only
	rent := globalCategoryID(t, srv, alice, "Rent")
	w = do(t, srv, http.MethodPut, "/api/categories/"+itoa(rent), alice, `{"name":"Mortgage"}`)
	expectStatus(t, w, http.StatusNotFound)
	w = do(t, srv, http.MethodDelete, "/api/categories/"+itoa(rent), alice, "")
	expectStatus(t, w, http.StatusNotFound)

	// PATCH without a name echoes the row, but only inside the mutation scope
	w = do(t, srv, http.MethodPatch, "/api/categories/"+itoa(pets.ID), alice, `{}`)
	expectStatus(t, w, http.StatusOK)
	if got := decode[categoryJSON](t, w); got.Name != "Animals" {
		t.Fatalf("empty patch: %+v", got)
	}
	w = do(t, srv, http.MethodPatch, "/api/categories/"+itoa(rent), alice, `{}`)
	expectStatus(t, w, http.StatusNotFound)
	w = do(t, srv, http.MethodPatch, "/api/categories/"+itoa(pets.ID), bob, `{}`)
	expectStatus(t, w, http.StatusNotFound)

	// deleting a category keeps its transactions, uncategorized
	tx := createTx(t, srv, alice, `{"amount":"5.00","type":"EXPENSE","date":"2024-05-10","category":`+itoa(pets.ID)+`}`)
	w = do(t, srv, http.MethodDelete, "/api/categories/"+itoa(pets.ID), alice, "")
	expectStatus(t, w, http.StatusNoContent)
	w = do(t, srv, http.MethodGet, "/api/transactions/"+itoa(tx.ID), alice, "")
	expectStatus(t, w, http.StatusOK)
	if got := decode[transactionJSON](t, w); got.Category != nil || got.CategoryName != nil {
		t.Fatalf("transaction should be uncategorized after category delete: %+v", got)
	}
}

func TestTransactionCRUD(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice")
	bob := signUp(t, srv, "bob")
	rent := globalCategoryID(t, srv, alice, "Rent")

	tx := createTx(t, srv, alice, `{"amount":"200.50","type":"EXPENSE","date":"2024-05-15","category":`+itoa(rent)+`,"description":"May rent"}`)
	if tx.Amount != "200.50" || tx.CategoryName == nil || *tx.CategoryName != "Rent" || tx.Date.String() != "2024-05-15" {
		t.Fatalf("unexpected created transaction %+v", tx)
	}

	tests := []struct {
		name string
		body string
	}{
		{"negative amount", `{"amount":"-1","type":"EXPENSE","date":"2024-05-15"}`},
		{"three decimals", `{"amount":"1.001","type":"EXPENSE","date":"2024-05-15"}`},
		{"bad type", `{"amount":"1","type":"TRANSFER","date":"2024-05-15"}`},
		{"bad date", `{"amount":"1","type":"INCOME","date":"2024-13-01"}`},
		{"missing amount", `{"type":"INCOME","date":"2024-05-15"}`},
		{"unknown category", `{"amount":"1","type":"INCOME","date":"2024-05-15","category":99999}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, http.MethodPost, "/api/transactions", alice, tt.body)
			expectStatus(t, w, http.StatusBadRequest)
		})
	}

	// bob cannot reference alice's private category
	w := do(t, srv, http.MethodPost, "/api/categories", alice, `{"name":"Private"}`)
	expectStatus(t, w, http.StatusCreated)
	private := decode[categoryJSON](t, w)
	w = do(t, srv, http.MethodPost, "/api/transactions", bob, `{"amount":"1","type":"EXPENSE","date":"2024-05-15","category":`+itoa(private.ID)+`}`)
	expectStatus(t, w, http.StatusBadRequest)

	// scoping: bob sees none of alice's rows
	w = do(t, srv, http.MethodGet, "/api/transactions", bob, "")
	expectStatus(t, w, http.StatusOK)
	if got := decode[[]transactionJSON](t, w); len(got) != 0 {
		t.Fatalf("bob should see no transactions, got %d", len(got))
	}
	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		w = do(t, srv, method, "/api/transactions/"+itoa(tx.ID), bob, "")
		expectStatus(t, w, http.StatusNotFound)
	}
	w = do(t, srv, http.MethodPatch, "/api/transactions/"+itoa(tx.ID), bob, `{"description":"mine"}`)
	expectStatus(t, w, http.StatusNotFound)

	// PATCH touches only supplied fields; user in the body is ignored
	w = do(t, srv, http.MethodPatch, "/api/transactions/"+itoa(tx.ID), alice, `{"description":"Rent, May","user":999}`)
	expectStatus(t, w, http.StatusOK)
	patched := decode[transactionJSON](t, w)
	if patched.Description != "Rent, May" || patched.Amount != "200.50" || patched.User != tx.User {
		t.Fatalf("patch: %+v", patched)
	}

	// PUT replaces: omitted category clears it
	w = do(t, srv, http.MethodPut, "/api/transactions/"+itoa(tx.ID), alice, `{"amount":"210","type":"EXPENSE","date":"2024-05-16"}`)
	expectStatus(t, w, http.StatusOK)
	replaced := decode[transactionJSON](t, w)
	if replaced.Amount != "210.00" || replaced.Category != nil || replaced.Description != "" || replaced.CreatedAt != tx.CreatedAt {
		t.Fatalf("put: %+v", replaced)
	}

	w = do(t, srv, http.MethodPut, "/api/transactions/"+itoa(tx.ID), alice, `{"description":"only"}`)
	expectStatus(t, w, http.StatusBadRequest)

	w = do(t, srv, http.MethodGet, "/api/transactions/abc", alice, "")
	expectStatus(t, w, http.StatusNotFound)

	w = do(t, srv, http.MethodDelete, "/api/transactions/"+itoa(tx.ID), alice, "")
	expectStatus(t, w, http.StatusNoContent)
	w = do(t, srv, http.MethodGet, "/api/transactions/"+itoa(tx.ID), alice, "")
	expectStatus(t, w, http.StatusNotFound)
}

func TestTransactionFilters(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice")
	rent := globalCategoryID(t, srv, alice, "Rent")

	createTx(t, srv, alice, `{"amount":"1000","type":"INCOME","date":"2024-05-01"}`)
	createTx(t, srv, alice, `{"amount":"200.50","type":"EXPENSE","date":"2024-05-15","category":`+itoa(rent)+`}`)
	createTx(t, srv, alice, `{"amount":"50","type":"EXPENSE","date":"2024-04-10"}`)

	tests := []struct {
		query string
		want  int
		code  int
	}{
		{"", 3, http.StatusOK},
		{"?type=EXPENSE", 2, http.StatusOK},
		{"?category=" + itoa(rent), 1, http.StatusOK},
		{"?date_from=2024-05-01", 2, http.StatusOK},
		{"?date_from=2024-04-01&date_to=2024-04-30", 1, http.StatusOK},
		{"?type=expense", 0, http.StatusBadRequest},
		{"?date_from=yesterday", 0, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := do(t, srv, http.MethodGet, "/api/transactions"+tt.query, alice, "")
			expectStatus(t, w, tt.code)
			if tt.code != http.StatusOK {
				return
			}
			if got := decode[[]transactionJSON](t, w); len(got) != tt.want {
				t.Fatalf("got %d rows, want %d", len(got), tt.want)
			}
		})
	}

	// newest first
	w := do(t, srv, http.MethodGet, "/api/transactions", alice, "")
	rows := decode[[]transactionJSON](t, w)
	if rows[0].Date.String() != "2024-05-15" || rows[2].Date.String() != "2024-04-10" {
		t.Fatalf("unexpected order: %s, %s, %s", rows[0].Date, rows[1].Date, rows[2].Date)
	}
}

func TestReports(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice")
	bob := signUp(t, srv, "bob")
	rent := globalCategoryID(t, srv, alice, "Rent")
	food := globalCategoryID(t, srv, alice, "Food & Dining")

	createTx(t, srv, alice, `{"amount":"1000.00","type":"INCOME","date":"2024-05-01"}`)
	createTx(t, srv, alice, `{"amount":"200.50","type":"EXPENSE","date":"2024-05-15","category":`+itoa(rent)+`}`)
	createTx(t, srv, alice, `{"amount":"30","type":"EXPENSE","date":"2024-05-16","category":`+itoa(food)+`}`)
	createTx(t, srv, alice, `{"amount":"20","type":"EXPENSE","date":"2024-05-17"}`)
	createTx(t, srv, alice, `{"amount":"50","type":"EXPENSE","date":"2024-04-10","category":`+itoa(food)+`}`)
	createTx(t, srv, alice, `{"amount":"75","type":"EXPENSE","date":"2024-05-25"}`)

	t.Run("summary", func(t *testing.T) {
		w := do(t, srv, http.MethodGet, "/api/transactions/summary", alice, "")
		expectStatus(t, w, http.StatusOK)
		got := decode[summaryJSON](t, w)
		want := summaryJSON{TotalBalance: 624.5, MonthlyIncome: 1000, MonthlyExpenses: 250.5, MonthlyBalance: 749.5}
		if got != want {
			t.Fatalf("summary = %+v, want %+v", got, want)
		}

		w = do(t, srv, http.MethodGet, "/api/transactions/summary", bob, "")
		if got := decode[summaryJSON](t, w); got != (summaryJSON{}) {
			t.Fatalf("bob's summary should be all zero, got %+v", got)
		}
	})

	t.Run("spending by category", func(t *testing.T) {
		w := do(t, srv, http.MethodGet, "/api/transactions/spending_by_category", alice, "")
		expectStatus(t, w, http.StatusOK)
		got := decode[[]spendingJSON](t, w)
		want := []spendingJSON{{CategoryName: "Rent", Total: 200.5}, {CategoryName: "Food & Dining", Total: 30}}
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("spending = %+v, want %+v", got, want)
		}
	})

	t.Run("monthly trend", func(t *testing.T) {
		w := do(t, srv, http.MethodGet, "/api/transactions/monthly_trend", alice, "")
		expectStatus(t, w, http.StatusOK)
		got := decode[[]monthJSON](t, w)
		if len(got) != 5 {
			t.Fatalf("expected January through May, got %d months", len(got))
		}
		if got[0] != (monthJSON{Month: "2024-01"}) {
			t.Errorf("January should be zero: %+v", got[0])
		}
		if got[3] != (monthJSON{Month: "2024-04", Expenses: 50, Balance: -50}) {
			t.Errorf("April = %+v", got[3])
		}
		// the 2024-05-25 row is after today and left out, matching the summary
		if got[4] != (monthJSON{Month: "2024-05", Income: 1000, Expenses: 250.5, Balance: 749.5}) {
			t.Errorf("May = %+v", got[4])
		}

		w = do(t, srv, http.MethodGet, "/api/transactions/monthly_trend?year=2023", alice, "")
		if got := decode[[]monthJSON](t, w); len(got) != 12 {
			t.Errorf("past year should have 12 months, got %d", len(got))
		}
		w = do(t, srv, http.MethodGet, "/api/transactions/monthly_trend?year=2025", alice, "")
		if body := strings.TrimSpace(w.Body.String()); body != "[]" {
			t.Errorf("future year should be empty, got %s", body)
		}
		w = do(t, srv, http.MethodGet, "/api/transactions/monthly_trend?year=next", alice, "")
		expectStatus(t, w, http.StatusBadRequest)
	})
}

func TestExport(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice")
	createTx(t, srv, alice, `{"amount":"200.50","type":"EXPENSE","date":"2024-05-15","description":"rent, May"}`)
	createTx(t, srv, alice, `{"amount":"1000","type":"INCOME","date":"2024-05-01"}`)

	w := do(t, srv, http.MethodGet, "/api/transactions/export?type=EXPENSE", alice, "")
	expectStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "transactions_20240520.csv") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	rows, err := csv.NewReader(bytes.NewReader(w.Body.Bytes())).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 2 || rows[1][4] != "200.50" || rows[1][5] != "rent, May" {
		t.Fatalf("unexpected csv %v", rows)
	}

	w = do(t, srv, http.MethodGet, "/api/transactions/export?format=xlsx", alice, "")
	expectStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Header().Get("Content-Disposition"), ".xlsx") || !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected an xlsx attachment, got %q", w.Header().Get("Content-Disposition"))
	}

	w = do(t, srv, http.MethodGet, "/api/transactions/export?format=pdf", alice, "")
	expectStatus(t, w, http.StatusBadRequest)
}

func TestRouting(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice")

	w := do(t, srv, http.MethodGet, "/api/transactions/", alice, "")
	expectStatus(t, w, http.StatusOK)

	w = do(t, srv, http.MethodGet, "/api/nothing-here", alice, "")
	expectStatus(t, w, http.StatusNotFound)
	if body := decode[errorBody](t, w); body.Error.Kind != "not_found" {
		t.Errorf("kind = %q", body.Error.Kind)
	}

	w = do(t, srv, http.MethodDelete, "/api/auth/me", alice, "")
	expectStatus(t, w, http.StatusMethodNotAllowed)

	w = do(t, srv, http.MethodPost, "/api/transactions", alice, `{"amount":"1","type":"INCOME","date":"2024-05-01","colour":"red"}`)
	expectStatus(t, w, http.StatusBadRequest)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
