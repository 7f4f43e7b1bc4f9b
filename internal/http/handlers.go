package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"saldo/internal/core"
	"saldo/internal/gateway"
	"saldo/internal/service"
	"saldo/internal/sync"
)

const maxRequestBody = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		slog.ErrorContext(r.Context(), "Request failed", "error", err, "method", r.Method, "url", r.URL.Path)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sync.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, sync.ErrDocumentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, gateway.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, gateway.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrEmptyID),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrInvalidMonthKey):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listTransactions(w, r)
	case http.MethodPost:
		s.createTransaction(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()

	month := strings.TrimSpace(r.URL.Query().Get("month"))
	if month == "" {
		writeJSON(w, http.StatusOK, snap.Transactions)
		return
	}
	if !core.ValidMonthKey(month) {
		writeError(w, r, core.ErrInvalidMonthKey)
		return
	}

	filtered := make([]core.Transaction, 0)
	for _, tx := range snap.Transactions {
		if tx.Date.MonthKey() == month {
			filtered = append(filtered, tx)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}

// transactionRequest mirrors the transaction wire shape but takes the amount
// either as integer cents or as a decimal string ("12.34", "12,34").
type transactionRequest struct {
	ID            string          `json:"id"`
	Amount        json.RawMessage `json:"amount"`
	Date          core.Date       `json:"date"`
	Category      string          `json:"category"`
	Note          string          `json:"note"`
	PaymentMethod string          `json:"paymentMethod"`
	Kind          core.TxKind     `json:"type"`
	LastModified  time.Time       `json:"lastModified"`
}

func (req transactionRequest) toTransaction() (core.Transaction, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Amount:        amount,
		Date:          req.Date,
		Category:      req.Category,
		Note:          req.Note,
		PaymentMethod: req.PaymentMethod,
		Kind:          req.Kind,
	}, nil
}

// parseAmount accepts integer cents or a quoted decimal amount.
func parseAmount(raw json.RawMessage) (core.Money, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return core.Money{}, core.ErrInvalidAmount
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return core.Money{}, core.ErrInvalidAmount
		}
		cents, err := core.ParseDecimalToCents(s)
		if err != nil {
			return core.Money{}, err
		}
		return core.Money{Cents: cents}, nil
	}
	var cents int64
	if err := json.Unmarshal(raw, &cents); err != nil {
		return core.Money{}, core.ErrInvalidAmount
	}
	return core.Money{Cents: cents}, nil
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	draft, err := req.toTransaction()
	if err != nil {
		writeError(w, r, err)
		return
	}

	tx, err := s.ledger.AddTransaction(r.Context(), draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/transactions/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req transactionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		tx, err := req.toTransaction()
		if err != nil {
			writeError(w, r, err)
			return
		}
		tx.ID = id
		updated, err := s.ledger.UpdateTransaction(r.Context(), tx)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		if err := s.ledger.DeleteTransaction(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "PUT, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// budgetRequest takes the budget either as integer cents or as a decimal
// string in the amount field.
type budgetRequest struct {
	AmountCents int64  `json:"amountCents"`
	Amount      string `json:"amount,omitempty"`
}

func (req budgetRequest) cents() (int64, error) {
	if req.Amount != "" {
		return core.ParseDecimalToCents(req.Amount)
	}
	return req.AmountCents, nil
}

// handleBudgets serves PUT /api/budgets/{month} for the month budget and
// PUT /api/budgets/{month}/categories/{category} for per-category caps.
func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.Header().Set("Allow", "PUT")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/budgets/")
	parts := strings.Split(rest, "/")

	var req budgetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cents, err := req.cents()
	if err != nil {
		writeError(w, r, err)
		return
	}

	switch {
	case len(parts) == 1 && parts[0] != "":
		if err := s.ledger.SetMonthBudget(r.Context(), parts[0], cents); err != nil {
			writeError(w, r, err)
			return
		}
	case len(parts) == 3 && parts[1] == "categories" && parts[2] != "":
		if err := s.ledger.SetCategoryBudget(r.Context(), parts[0], parts[2], cents); err != nil {
			writeError(w, r, err)
			return
		}
	default:
		http.NotFound(w, r)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type categoryRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap := s.ledger.Snapshot()
		writeJSON(w, http.StatusOK, snap.CustomCategoryNames)
	case http.MethodPost:
		var req categoryRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := s.ledger.AddCustomCategory(r.Context(), req.Name); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type syncResponse struct {
	Outcome string `json:"outcome"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	outcome, err := s.ledger.SyncNow(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Outcome: string(outcome)})
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.SyncStatus())
}
