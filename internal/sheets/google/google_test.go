package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expensetracker/internal/core"
)

type recordedCall struct {
	method string
	path   string
	body   map[string]any
}

// fakeSheets answers the few Values endpoints the client uses.
type fakeSheets struct {
	mu    sync.Mutex
	calls []recordedCall
	rows  [][]any
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{method: r.Method, path: r.URL.Path, body: body})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, ":append"):
		_, _ = io.WriteString(w, `{"updates":{"updatedRange":"Backup!A5:G5","updatedRows":1}}`)
	case strings.HasSuffix(r.URL.Path, ":clear"):
		_, _ = io.WriteString(w, `{"clearedRange":"Backup!A1:G99"}`)
	case r.Method == http.MethodPut:
		_, _ = io.WriteString(w, `{"updatedRange":"Backup!A1:G3"}`)
	case r.Method == http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"range": "Backup!A1:G9", "values": f.rows})
	default:
		http.Error(w, "unexpected call", http.StatusBadRequest)
	}
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	require.NoError(t, err)
	return NewWithService(svc, "sheet-id", "Backup")
}

func sampleExpense() core.Expense {
	return core.Expense{
		ID:            "e1",
		Amount:        12.5,
		Description:   "Lunch",
		Category:      core.LookupCategory("food"),
		Date:          "2025-03-20T12:00:00.000Z",
		IsAIGenerated: true,
	}
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
	assert.Equal(t, "missing GOOGLE_SPREADSHEET_ID", err.Error())
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Config{SpreadsheetID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing service account credentials")
}

func TestNew_UnreadableCredentialsFile(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "x", CredentialsFile: "/does/not/exist.json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read service account file")
}

func TestClient_AppendExpense(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	ref, err := c.AppendExpense(context.Background(), sampleExpense())
	require.NoError(t, err)
	assert.Equal(t, "Backup!A5:G5", ref)

	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.Equal(t, http.MethodPost, call.method)
	assert.Contains(t, call.path, "/v4/spreadsheets/sheet-id/values/")
	values := call.body["values"].([]any)
	row := values[0].([]any)
	assert.Equal(t, []any{"e1", "2025-03-20T12:00:00.000Z", "Lunch", 12.5, "food", "yes", ""}, row)
}

func TestClient_AppendExpense_Validation(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)

	_, err := c.AppendExpense(context.Background(), core.Expense{ID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
	assert.Empty(t, fake.calls)
}

func TestClient_WriteSnapshot(t *testing.T) {
	fake := &fakeSheets{}
	c := newTestClient(t, fake)
	second := sampleExpense()
	second.ID = "e2"

	ref, err := c.WriteSnapshot(context.Background(), []core.Expense{sampleExpense(), second})
	require.NoError(t, err)
	assert.Equal(t, "Backup!A1:G3", ref)

	require.Len(t, fake.calls, 2)
	assert.True(t, strings.HasSuffix(fake.calls[0].path, ":clear"))
	assert.Equal(t, http.MethodPut, fake.calls[1].method)
	values := fake.calls[1].body["values"].([]any)
	require.Len(t, values, 3)
	assert.Equal(t, "ID", values[0].([]any)[0])
	assert.Equal(t, "e2", values[2].([]any)[0])
}

func TestClient_ReadSnapshot(t *testing.T) {
	fake := &fakeSheets{rows: [][]any{
		{"ID", "Date", "Description", "Amount", "Category", "AI", "Image"},
		{"e1", "2025-03-20T12:00:00.000Z", "Lunch", "12,50", "food", "yes", "file:///r.jpg"},
		{"e2", "2025-03-21", "Taxi", "7", "transport"},
		{"bad", "2025-03-21", "Broken", "n/a", "food"},
		{"short"},
	}}
	c := newTestClient(t, fake)

	list, err := c.ReadSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "e1", list[0].ID)
	assert.InDelta(t, 12.5, list[0].Amount, 1e-9)
	assert.True(t, list[0].IsAIGenerated)
	assert.Equal(t, "file:///r.jpg", list[0].ImageURI)
	assert.Equal(t, core.LookupCategory("transport"), list[1].Category)
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetName: "Backup"}
	ctx := context.Background()

	_, err := c.AppendExpense(ctx, sampleExpense())
	assert.EqualError(t, err, "sheets service not initialized")
	_, err = c.WriteSnapshot(ctx, nil)
	assert.EqualError(t, err, "sheets service not initialized")
	_, err = c.ReadSnapshot(ctx)
	assert.EqualError(t, err, "sheets service not initialized")
}
