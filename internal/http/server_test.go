package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/analytics"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

var fixedNow = time.Date(2025, 3, 20, 15, 0, 0, 0, time.UTC)

type testEnv struct {
	srv      *Server
	expenses *services.ExpenseService
	prefs    *services.PreferencesService
}

func newTestEnv(t *testing.T, opts ...func(*Config)) *testEnv {
	t.Helper()
	kv := storage.NewMemoryKV()
	n := 0
	expenses := services.NewExpenseService(kv, nil,
		services.WithLocation(time.UTC),
		services.WithClock(func() time.Time { return fixedNow }),
		services.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("exp-%d", n)
		}),
	)
	prefs := services.NewPreferencesService(kv, nil)

	cfg := Config{
		Addr:               ":0",
		RateLimitPerMinute: 1000,
		Logger:             log.New(log.Config{Output: &bytes.Buffer{}}),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	srv := NewServer(cfg, expenses, prefs)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, expenses: expenses, prefs: prefs}
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *testEnv) create(t *testing.T, body string) core.Expense {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/expenses", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[core.Expense](t, rec)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	failing := newTestEnv(t, func(c *Config) {
		c.Ready = func(context.Context) error { return errors.New("database down") }
	})
	rec := failing.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreateExpense(t *testing.T) {
	env := newTestEnv(t)

	e := env.create(t, `{"amount": 12.345, "description": "  Lunch ", "category": "food", "date": "2025-03-18T12:00:00.000Z"}`)
	assert.Equal(t, "exp-1", e.ID)
	assert.Equal(t, 12.35, e.Amount)
	assert.Equal(t, "Lunch", e.Description)
	assert.Equal(t, "Food & Dining", e.Category.Name)

	e = env.create(t, `{"amount": "7,50", "description": "Bus", "category": "transport"}`)
	assert.Equal(t, 7.5, e.Amount)
	assert.Equal(t, core.FormatDate(fixedNow), e.Date, "missing date is stamped with now")

	e = env.create(t, `{"amount": 3, "description": "Mystery", "category": "nope"}`)
	assert.Equal(t, core.FallbackCategoryID, e.Category.ID)
}

func TestCreateExpense_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"amount": `, http.StatusBadRequest},
		{"trailing data", `{"amount": 1, "description": "a"} {}`, http.StatusBadRequest},
		{"negative amount", `{"amount": -5, "description": "Lunch", "category": "food"}`, http.StatusUnprocessableEntity},
		{"non-numeric amount", `{"amount": "abc", "description": "Lunch", "category": "food"}`, http.StatusUnprocessableEntity},
		{"missing amount", `{"description": "Lunch", "category": "food"}`, http.StatusUnprocessableEntity},
		{"empty description", `{"amount": 5, "description": "  ", "category": "food"}`, http.StatusUnprocessableEntity},
		{"bad date", `{"amount": 5, "description": "Lunch", "category": "food", "date": "yesterday"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/expenses", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
	assert.Empty(t, env.expenses.Expenses())
}

func TestListExpenses_Filters(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, `{"amount": 10, "description": "Coffee beans", "category": "food", "date": "2025-03-01"}`)
	env.create(t, `{"amount": 20, "description": "Coffee shop", "category": "food", "date": "2025-03-15"}`)
	env.create(t, `{"amount": 30, "description": "Train", "category": "transport", "date": "2025-03-15"}`)

	rec := env.do(t, http.MethodGet, "/api/expenses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[analytics.FilterResult](t, rec)
	assert.Equal(t, 3, all.Count)
	assert.Equal(t, "Train", all.Expenses[0].Description, "newest first")

	rec = env.do(t, http.MethodGet, "/api/expenses?search=coffee&start=2025-03-10", "")
	res := decode[analytics.FilterResult](t, rec)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "Coffee shop", res.Expenses[0].Description)
	assert.Equal(t, 20.0, res.Total)

	rec = env.do(t, http.MethodGet, "/api/expenses?category=transport", "")
	assert.Equal(t, 1, decode[analytics.FilterResult](t, rec).Count)

	rec = env.do(t, http.MethodGet, "/api/expenses?start=not-a-date", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpdateAndDeleteExpense(t *testing.T) {
	env := newTestEnv(t)
	e := env.create(t, `{"amount": 10, "description": "Lunch", "category": "food", "date": "2025-03-18"}`)

	rec := env.do(t, http.MethodPatch, "/api/expenses/"+e.ID, `{"amount": 11.5, "category": "entertainment"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[core.Expense](t, rec)
	assert.Equal(t, 11.5, updated.Amount)
	assert.Equal(t, "entertainment", updated.Category.ID)
	assert.Equal(t, "Lunch", updated.Description)

	rec = env.do(t, http.MethodPatch, "/api/expenses/"+e.ID, `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/expenses/missing", `{"amount": 1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/expenses/"+e.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/expenses/"+e.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/expenses/"+e.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/expenses/"+e.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearExpenses(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, `{"amount": 10, "description": "Lunch", "category": "food"}`)

	rec := env.do(t, http.MethodDelete, "/api/expenses", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, env.expenses.Expenses())
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, `{"amount": 10, "description": "Lunch", "category": "food", "date": "2025-03-18"}`)

	rec := env.do(t, http.MethodGet, "/api/expenses/export?format=yaml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "yaml")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "expenses.yaml")
	assert.Contains(t, rec.Body.String(), "description: Lunch")

	rec = env.do(t, http.MethodGet, "/api/expenses/export?format=csv", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/expenses/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	exported := rec.Body.String()

	env.create(t, `{"amount": 99, "description": "Extra", "category": "shopping"}`)
	require.Len(t, env.expenses.Expenses(), 2)

	rec = env.do(t, http.MethodPost, "/api/expenses/import", exported)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[ImportResponse](t, rec).Imported)
	require.Len(t, env.expenses.Expenses(), 1)

	rec = env.do(t, http.MethodPost, "/api/expenses/import", `{"not": "a list"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Len(t, env.expenses.Expenses(), 1, "rejected import leaves data untouched")
}

func TestAnalytics(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, `{"amount": 150, "description": "Groceries", "category": "food", "date": "2025-03-18"}`)
	env.create(t, `{"amount": 25, "description": "Taxi", "category": "transport", "date": "2025-03-19"}`)

	rec := env.do(t, http.MethodGet, "/api/analytics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[AnalyticsResponse](t, rec)
	assert.Equal(t, 175.0, resp.Snapshot.TotalThisMonth)
	require.Len(t, resp.Snapshot.CategoryBreakdown, 2)
	assert.Equal(t, "food", resp.Snapshot.CategoryBreakdown[0].Category.ID)
	assert.Len(t, resp.Snapshot.DailySpending, 7)
	require.NotNil(t, resp.Insights.TopCategory)
	assert.Equal(t, 1, env.srv.Stats().CachedViews)

	env.create(t, `{"amount": 25, "description": "Cinema", "category": "entertainment", "date": "2025-03-20"}`)
	rec = env.do(t, http.MethodGet, "/api/analytics", "")
	resp = decode[AnalyticsResponse](t, rec)
	assert.Equal(t, 200.0, resp.Snapshot.TotalThisMonth, "a mutation invalidates the cached view")
}

func TestAnalyticsCacheKey(t *testing.T) {
	base := time.Date(2025, 3, 20, 15, 0, 0, 0, time.UTC)

	assert.Equal(t, analyticsCacheKey(3, base), analyticsCacheKey(3, base.Add(900*time.Millisecond)))
	assert.NotEqual(t, analyticsCacheKey(3, base), analyticsCacheKey(3, base.Add(time.Second)),
		"each second gets its own view")
	assert.NotEqual(t, analyticsCacheKey(3, base), analyticsCacheKey(4, base))
}

func TestAnalyticsFollowsClock(t *testing.T) {
	kv := storage.NewMemoryKV()
	now := time.Date(2025, 3, 20, 15, 0, 0, 0, time.UTC)
	expenses := services.NewExpenseService(kv, nil,
		services.WithLocation(time.UTC),
		services.WithClock(func() time.Time { return now }))
	srv := NewServer(Config{
		Addr:               ":0",
		RateLimitPerMinute: 1000,
		Logger:             log.New(log.Config{Output: &bytes.Buffer{}}),
	}, expenses, services.NewPreferencesService(kv, nil))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	get := func() AnalyticsResponse {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analytics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		return decode[AnalyticsResponse](t, rec)
	}

	_, err := expenses.Add(context.Background(), core.Draft{
		Amount: 5, Description: "Coffee", Category: core.LookupCategory("food"),
		Date: "2025-03-20T14:59:30.000Z",
	})
	require.NoError(t, err)
	first := get()

	now = now.Add(31 * time.Second)
	second := get()

	assert.Equal(t, 2, srv.Stats().CachedViews, "a new second is a new cache entry")
	assert.Equal(t, first.Snapshot.TotalThisMonth, second.Snapshot.TotalThisMonth)
}

func TestConcurrentUpdateIsConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/expenses", nil)

	writeError(rec, req, log.OpCreate, fmt.Errorf("add: %w", services.ErrConcurrentUpdate))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
}

func TestCategories(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/categories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.Category](t, rec), len(core.Categories()))

	rec = env.do(t, http.MethodGet, "/api/categories/unknown", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.FallbackCategoryID, decode[core.Category](t, rec).ID)
}

func TestPreferences(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/preferences", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.DefaultPreferences(), decode[core.Preferences](t, rec))

	rec = env.do(t, http.MethodPatch, "/api/preferences", `{"currency": "eur", "theme": "dark"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	prefs := decode[core.Preferences](t, rec)
	assert.Equal(t, "EUR", prefs.Currency)
	assert.Equal(t, core.ThemeDark, prefs.Theme)

	rec = env.do(t, http.MethodPatch, "/api/preferences", `{"theme": "neon"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/preferences", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.DefaultPreferences(), env.prefs.Get(context.Background()))
}

func TestCreateFromReceipt(t *testing.T) {
	env := newTestEnv(t)

	body := `{"completion": "Here you go:\n` + "```json" + `\n{\"amount\": 23.5, \"description\": \"Pharmacy\", \"category\": \"health\"}\n` + "```" + `", "imageUri": "file:///receipts/1.jpg"}`
	rec := env.do(t, http.MethodPost, "/api/receipts", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[ReceiptResponse](t, rec)
	assert.Equal(t, 23.5, resp.Expense.Amount)
	assert.Equal(t, "health", resp.Expense.Category.ID)
	assert.True(t, resp.Expense.IsAIGenerated)
	assert.Equal(t, "file:///receipts/1.jpg", resp.Expense.ImageURI)
	assert.Empty(t, resp.Extraction.Defaulted)

	rec = env.do(t, http.MethodPost, "/api/receipts", `{"completion": "no idea", "imageUri": "file:///r/2.jpg", "description": "Corner shop"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp = decode[ReceiptResponse](t, rec)
	assert.Equal(t, 10.0, resp.Expense.Amount)
	assert.Equal(t, "Corner shop", resp.Expense.Description, "user edits win")
	assert.Equal(t, core.FallbackCategoryID, resp.Expense.Category.ID)

	rec = env.do(t, http.MethodPost, "/api/receipts", `{"completion": "{}", "imageUri": " "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateFromReceipt_AccentedDescriptions(t *testing.T) {
	env := newTestEnv(t)
	receiptBody := func(t *testing.T, description string) string {
		t.Helper()
		completion, err := json.Marshal(map[string]any{"amount": 8, "description": description, "category": "food"})
		require.NoError(t, err)
		body, err := json.Marshal(map[string]string{"completion": string(completion), "imageUri": "file:///r/3.jpg"})
		require.NoError(t, err)
		return string(body)
	}

	accented := strings.Repeat("é", 150)
	rec := env.do(t, http.MethodPost, "/api/receipts", receiptBody(t, accented))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, accented, decode[ReceiptResponse](t, rec).Expense.Description)

	rec = env.do(t, http.MethodPost, "/api/receipts", receiptBody(t, strings.Repeat("è", 260)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, strings.Repeat("è", 200), decode[ReceiptResponse](t, rec).Expense.Description,
		"long model output is cut to the limit and still accepted")

	rec = env.do(t, http.MethodPost, "/api/expenses", `{"amount": 5, "description": "`+accented+`", "category": "food"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestMiddlewareChain(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/categories", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, int64(1), env.srv.Stats().Requests.TotalRequests)

	rec = env.do(t, http.MethodGet, "/api/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodGet, "/api/categories", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/categories", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code, "health checks are not limited")
}
