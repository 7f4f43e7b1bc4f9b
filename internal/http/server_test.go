package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"saldo/internal/core"
	"saldo/internal/gateway/memory"
	"saldo/internal/localstore"
	"saldo/internal/scheduler"
	"saldo/internal/service"
	"saldo/internal/sync"
)

func newTestServer(t *testing.T, userID string) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()

	local, err := localstore.NewStore(filepath.Join(t.TempDir(), "saldo.db"))
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	r := sync.NewReconciler(store, store, userID, sync.DefaultReconcilerConfig())
	ledger := service.NewLedgerService(local, r, store, userID, scheduler.DebouncerConfig{
		SaveDelay: 10 * time.Millisecond,
		SyncDelay: time.Hour,
	})
	if err := ledger.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { ledger.Stop(context.Background()) })

	return NewServer(":0", ledger), store
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, "alice")

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestCreateAndListTransactions(t *testing.T) {
	srv, _ := newTestServer(t, "alice")

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"amount":        1250,
		"date":          "2025-03-02",
		"category":      "Groceries",
		"note":          "market",
		"paymentMethod": "card",
		"type":          "expense",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created core.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected server-assigned id")
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed []core.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	// Month filter excludes other months.
	rec = doJSON(t, srv, http.MethodGet, "/api/transactions?month=2024-01", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode filtered list: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("month filter leaked transactions: %+v", listed)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/transactions?month=bogus", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid month filter status = %d, want 422", rec.Code)
	}
}

func TestCreateTransactionDecimalAmount(t *testing.T) {
	srv, _ := newTestServer(t, "alice")

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"amount":   "12.50",
		"date":     "2025-03-02",
		"category": "Groceries",
		"type":     "expense",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("decimal amount status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created core.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.Amount.Cents != 1250 {
		t.Fatalf("amount = %d cents, want 1250", created.Amount.Cents)
	}

	// Comma separator works too.
	rec = doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"amount": "3,99", "date": "2025-03-03", "category": "Transport", "type": "expense",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("comma amount status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.Amount.Cents != 399 {
		t.Fatalf("amount = %d cents, want 399", created.Amount.Cents)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"amount": "not-a-number", "date": "2025-03-02", "category": "Groceries", "type": "expense",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("malformed amount status = %d, want 422", rec.Code)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	srv, _ := newTestServer(t, "alice")

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"amount":   0,
		"date":     "2025-03-02",
		"category": "Groceries",
		"type":     "expense",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("zero amount status = %d, want 422", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"amount": 100, "date": "2025-03-02", "category": "Groceries", "type": "loan",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad kind status = %d, want 422", rec.Code)
	}
}

func TestUpdateAndDeleteTransaction(t *testing.T) {
	srv, _ := newTestServer(t, "alice")

	rec := doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"amount": 1250, "date": "2025-03-02", "category": "Groceries", "type": "expense",
	})
	var created core.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}

	created.Note = "edited"
	rec = doJSON(t, srv, http.MethodPut, "/api/transactions/"+created.ID, created)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var updated core.Transaction
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode updated: %v", err)
	}
	if updated.Note != "edited" {
		t.Fatalf("note not updated: %+v", updated)
	}
	if !updated.LastModified.After(created.LastModified) {
		t.Fatalf("recency stamp must advance on update")
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/transactions/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/transactions/never-existed", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete unknown status = %d, want 404", rec.Code)
	}
}

func TestBudgetEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, "alice")

	rec := doJSON(t, srv, http.MethodPut, "/api/budgets/2025-03", budgetRequest{AmountCents: 50000})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("month budget status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPut, "/api/budgets/2025-03/categories/Groceries", budgetRequest{AmountCents: 20000})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("category cap status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Decimal string amounts are accepted as an alternative to cents.
	rec = doJSON(t, srv, http.MethodPut, "/api/budgets/2025-04", budgetRequest{Amount: "450.00"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("decimal budget status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPut, "/api/budgets/2025-04", budgetRequest{Amount: "abc"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("malformed decimal budget status = %d, want 422", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPut, "/api/budgets/march", budgetRequest{AmountCents: 1})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid month status = %d, want 422", rec.Code)
	}
}

func TestCategoryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, "alice")

	rec := doJSON(t, srv, http.MethodPost, "/api/categories", categoryRequest{Name: "Hobby"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("add category status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/categories", nil)
	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("decode categories: %v", err)
	}
	if len(names) != 1 || names[0] != "Hobby" {
		t.Fatalf("unexpected categories: %v", names)
	}
}

func TestSyncEndpoints(t *testing.T) {
	srv, store := newTestServer(t, "alice")

	doJSON(t, srv, http.MethodPost, "/api/transactions", map[string]any{
		"amount": 1250, "date": "2025-03-02", "category": "Groceries", "type": "expense",
	})

	rec := doJSON(t, srv, http.MethodPost, "/api/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp syncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode sync response: %v", err)
	}
	if resp.Outcome != string(sync.OutcomePushed) {
		t.Fatalf("outcome = %q, want push", resp.Outcome)
	}
	if store.WriteCount() != 1 {
		t.Fatalf("remote writes = %d, want 1", store.WriteCount())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/sync/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d", rec.Code)
	}
	var status sync.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.LastSyncAt == nil {
		t.Fatalf("expected last sync timestamp after successful sync")
	}
}

func TestSyncUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/sync", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("sync status = %d, want 401", rec.Code)
	}
}
