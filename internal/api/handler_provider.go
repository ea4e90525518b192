package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fastprodman/coinsync/internal/backend"
	"github.com/fastprodman/coinsync/internal/repos/accounts"
	"github.com/fastprodman/coinsync/internal/repos/inventory"
	"github.com/fastprodman/coinsync/internal/repos/transactions"
	"github.com/fastprodman/coinsync/internal/services/ledger"
)

// Ledger is the service the handlers front.
type Ledger interface {
	ApplyTransaction(ctx context.Context, t ledger.Transaction) (ledger.Result, error)
	ApplyItemChange(ctx context.Context, c ledger.ItemChange) (ledger.Result, error)
	GetBalance(ctx context.Context, accountID string) (int64, error)
	Inventory(ctx context.Context, accountID string) ([]inventory.Item, error)
	History(ctx context.Context, accountID string, limit int) ([]transactions.Record, error)
}

var _ Ledger = (*ledger.Service)(nil)

// HandlerProvider wraps a Ledger and exposes HTTP handlers.
type HandlerProvider struct {
	svc Ledger
}

func NewHandler(svc Ledger) *HandlerProvider {
	return &HandlerProvider{svc: svc}
}

const (
	maxBodyBytes   = 1 << 20
	defaultHistory = 50
	maxHistory     = 500
)

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func accountID(r *http.Request) string {
	return chi.URLParam(r, "accountId")
}

// decode reads a JSON body, rejecting unknown fields.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "empty body")
			return false
		}

		writeError(w, http.StatusBadRequest, "invalid JSON")

		return false
	}

	return true
}

// writeServiceError maps domain errors onto status codes. Conflicts are
// permanent for the client; anything else may be retried.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, accounts.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "insufficient funds")
	case errors.Is(err, inventory.ErrInsufficientQuantity):
		writeError(w, http.StatusConflict, "insufficient quantity")
	default:
		slog.ErrorContext(r.Context(), "ledger request failed",
			"path", r.URL.Path, "account", accountID(r), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func resultStatus(res ledger.Result) string {
	if res.Duplicate {
		return "duplicate"
	}

	return "applied"
}

// --- Handlers ---

// GetBalanceHandler handles GET /accounts/{accountId}/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id := accountID(r)

	bal, err := h.svc.GetBalance(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, backend.BalanceResponse{AccountID: id, Balance: bal})
}

// ProcessTransactionHandler handles POST /accounts/{accountId}/transactions
func (h *HandlerProvider) ProcessTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req backend.TransactionRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.svc.ApplyTransaction(r.Context(), ledger.Transaction{
		ID:        req.TransactionID,
		AccountID: accountID(r),
		Type:      req.Type,
		Amount:    req.Amount,
		Reason:    req.Reason,
		Metadata:  req.Metadata,
		CreatedAt: req.CreatedAt,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, backend.Result{Status: resultStatus(res), Balance: res.Balance})
}

// ProcessItemChangeHandler handles POST /accounts/{accountId}/inventory
func (h *HandlerProvider) ProcessItemChangeHandler(w http.ResponseWriter, r *http.Request) {
	var req backend.InventoryRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.svc.ApplyItemChange(r.Context(), ledger.ItemChange{
		ID:        req.TransactionID,
		AccountID: accountID(r),
		ItemID:    req.ItemID,
		Category:  req.Category,
		Delta:     req.Delta,
		CreatedAt: req.CreatedAt,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, backend.Result{Status: resultStatus(res), Balance: res.Balance})
}

type itemResponse struct {
	ItemID   string `json:"itemId"`
	Category string `json:"category"`
	Quantity int64  `json:"quantity"`
}

// GetInventoryHandler handles GET /accounts/{accountId}/inventory
func (h *HandlerProvider) GetInventoryHandler(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Inventory(r.Context(), accountID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, itemResponse{ItemID: it.ItemID, Category: it.Category, Quantity: it.Quantity})
	}

	writeJSON(w, http.StatusOK, out)
}

type historyEntry struct {
	TransactionID string         `json:"transactionId"`
	Type          string         `json:"type"`
	Amount        int64          `json:"amount"`
	Reason        string         `json:"reason,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	BalanceBefore int64          `json:"balanceBefore"`
	BalanceAfter  int64          `json:"balanceAfter"`
	CreatedAt     string         `json:"createdAt"`
}

// GetHistoryHandler handles GET /accounts/{accountId}/transactions?limit=n
func (h *HandlerProvider) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistory

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistory {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}

		limit = n
	}

	recs, err := h.svc.History(r.Context(), accountID(r), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]historyEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, historyEntry{
			TransactionID: rec.ID,
			Type:          rec.Type,
			Amount:        rec.Amount,
			Reason:        rec.Reason,
			Metadata:      rec.Metadata,
			BalanceBefore: rec.BalanceBefore,
			BalanceAfter:  rec.BalanceAfter,
			CreatedAt:     rec.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}

	writeJSON(w, http.StatusOK, out)
}
