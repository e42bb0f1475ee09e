package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	ledgerrepo "github.com/fastprodman/tokenledger/internal/repos/ledger"
	"github.com/fastprodman/tokenledger/internal/services/ledger"
)

// LedgerService is what the HTTP layer needs from the ledger core.
type LedgerService interface {
	Spend(ctx context.Context, p ledger.Principal, req ledger.SpendRequest) (ledger.SpendResult, error)
	Cancel(ctx context.Context, p ledger.Principal, targetID uuid.UUID) (ledger.CancelResult, error)
	Earn(ctx context.Context, r ledger.EarnRequest) (ledger.EarnResult, error)
	CreditPurchase(ctx context.Context, pc ledger.PurchaseCredit) (ledger.EarnResult, error)
	CreditVerificationReward(ctx context.Context, userID, statID string) (ledger.EarnResult, error)
	OpenAccount(ctx context.Context, userID, role string) (ledger.OpenResult, error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	GetHistory(ctx context.Context, userID string, q ledger.HistoryQuery) (ledger.History, error)
	Reconcile(ctx context.Context, userID string) (ledger.Reconciliation, error)
}

// HandlerProvider wraps a LedgerService and exposes HTTP handlers.
type HandlerProvider struct {
	svc    LedgerService
	logger *slog.Logger
}

// NewHandler returns a new Handler provider.
func NewHandler(svc LedgerService, logger *slog.Logger) *HandlerProvider {
	if logger == nil {
		logger = slog.Default()
	}

	return &HandlerProvider{svc: svc, logger: logger}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

type errorBody struct {
	Error   string         `json:"error"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeBody reads a JSON object into dst. Unknown fields are rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}

		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}

// writeServiceError maps the ledger error taxonomy onto status codes.
func (h *HandlerProvider) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *ledger.ValidationError
		ie *ledger.InsufficientFundsError
	)

	switch {
	case errors.As(err, &ie):
		writeJSON(w, http.StatusPaymentRequired, errorBody{
			Error:  "insufficient funds",
			Reason: "INSUFFICIENT_FUNDS",
			Details: map[string]any{
				"required":  ie.Required,
				"current":   ie.Current,
				"shortfall": ie.Shortfall,
			},
		})
	case errors.As(err, &ve):
		msg := ve.Message
		if msg == "" {
			msg = "validation failed"
		}

		writeJSON(w, reasonStatus(ve.Reason), errorBody{Error: msg, Reason: string(ve.Reason), Details: ve.Details})
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "account not found", Reason: "ACCOUNT_NOT_FOUND"})
	case errors.Is(err, ledger.ErrConcurrencyConflict):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "please retry", Reason: "CONCURRENCY_CONFLICT"})
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Reason: "TRANSACTION_FAILED"})
	}
}

func reasonStatus(reason ledger.Reason) int {
	switch reason {
	case ledger.ReasonInvalidRequest:
		return http.StatusBadRequest
	case ledger.ReasonTargetNotFound:
		return http.StatusNotFound
	case ledger.ReasonPermissionDenied:
		return http.StatusForbidden
	case ledger.ReasonDuplicateNomination, ledger.ReasonDuplicatePendingRequest, ledger.ReasonSpotlightOverlap:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

// --- Account handlers ---

// GetBalanceHandler handles GET /me/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	bal, err := h.svc.GetBalance(r.Context(), p.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"userId": p.UserID, "balance": bal})
}

// GetHistoryHandler handles GET /me/transactions
func (h *HandlerProvider) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	q, err := parseHistoryQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Reason: string(ledger.ReasonInvalidRequest)})
		return
	}

	hist, err := h.svc.GetHistory(r.Context(), p.UserID, q)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	entries := make([]entryView, 0, len(hist.Entries))
	for _, e := range hist.Entries {
		entries = append(entries, viewEntry(e))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": entries,
		"pagination": map[string]any{
			"page":    hist.Page,
			"limit":   hist.Limit,
			"total":   hist.Total,
			"pages":   hist.Pages,
			"hasNext": hist.HasNext,
			"hasPrev": hist.HasPrev,
		},
		"summary": map[string]any{
			"last30Days": viewTotals(hist.Summary.Last30Days),
			"allTime":    viewTotals(hist.Summary.AllTime),
		},
	})
}

func parseHistoryQuery(r *http.Request) (ledger.HistoryQuery, error) {
	v := r.URL.Query()

	q := ledger.HistoryQuery{
		Kind:   ledgerrepo.Kind(strings.ToUpper(v.Get("type"))),
		Source: strings.ToUpper(v.Get("source")),
	}

	var err error

	q.From, err = parseDate(v.Get("startDate"), false)
	if err != nil {
		return q, fmt.Errorf("invalid startDate: %w", err)
	}

	q.To, err = parseDate(v.Get("endDate"), true)
	if err != nil {
		return q, fmt.Errorf("invalid endDate: %w", err)
	}

	q.Page, err = parseOptionalInt(v.Get("page"))
	if err != nil {
		return q, fmt.Errorf("invalid page: %w", err)
	}

	q.Limit, err = parseOptionalInt(v.Get("limit"))
	if err != nil {
		return q, fmt.Errorf("invalid limit: %w", err)
	}

	return q, nil
}

// parseDate accepts RFC 3339 or a bare date. A bare end date covers the
// whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}

	t, err = time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}

	if endOfDay {
		t = t.AddDate(0, 0, 1)
	}

	return t, nil
}

func parseOptionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}

	return strconv.Atoi(s)
}

// ReconcileHandler handles GET /me/reconcile
func (h *HandlerProvider) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	rec, err := h.svc.Reconcile(r.Context(), p.UserID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":     rec.UserID,
		"balance":    rec.Balance,
		"ledgerSum":  rec.LedgerSum,
		"consistent": rec.Consistent,
	})
}

// --- Views ---

type entryView struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balanceAfter"`
	Source       string    `json:"source"`
	SourceID     string    `json:"sourceId,omitempty"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"createdAt"`
}

func viewEntry(e ledgerrepo.Entry) entryView {
	return entryView{
		ID:           e.ID.String(),
		Type:         string(e.Kind),
		Amount:       e.Amount,
		BalanceAfter: e.BalanceAfter,
		Source:       e.SourceAction,
		SourceID:     e.SourceID,
		Description:  e.Description,
		CreatedAt:    e.CreatedAt,
	}
}

func viewTotals(totals []ledgerrepo.KindTotal) map[string]any {
	out := make(map[string]any, len(totals))
	for _, t := range totals {
		out[string(t.Kind)] = map[string]int64{"count": t.Count, "amount": t.Amount}
	}

	return out
}
