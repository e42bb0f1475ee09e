package api

import (
	"net/http"
	"strings"

	"github.com/fastprodman/tokenledger/internal/services/ledger"
)

// Collaborator routes are called by trusted internal services (registration,
// payment webhook, stat verification) that have already authenticated the
// event. They are not reachable through the public gateway.

type openAccountBody struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// OpenAccountHandler handles POST /internal/accounts
func (h *HandlerProvider) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	var body openAccountBody

	err := decodeBody(w, r, &body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Reason: string(ledger.ReasonInvalidRequest)})
		return
	}

	res, err := h.svc.OpenAccount(r.Context(), body.UserID, body.Role)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}

	writeJSON(w, status, map[string]any{
		"userId":  body.UserID,
		"balance": res.Balance,
		"bonus":   res.Bonus,
		"created": res.Created,
	})
}

type purchaseBody struct {
	UserID      string `json:"userId"`
	TokenAmount int64  `json:"tokenAmount"`
	SourceID    string `json:"sourceId"`
	PackageID   string `json:"packageId"`
	PackageName string `json:"packageName"`
	PriceCents  int64  `json:"priceCents"`
}

// CreditPurchaseHandler handles POST /internal/purchases. Redelivery of the
// same sourceId answers 200 with duplicate set and credits nothing.
func (h *HandlerProvider) CreditPurchaseHandler(w http.ResponseWriter, r *http.Request) {
	var body purchaseBody

	err := decodeBody(w, r, &body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Reason: string(ledger.ReasonInvalidRequest)})
		return
	}

	res, err := h.svc.CreditPurchase(r.Context(), ledger.PurchaseCredit{
		UserID:      body.UserID,
		TokenAmount: body.TokenAmount,
		SourceID:    body.SourceID,
		PackageID:   body.PackageID,
		PackageName: body.PackageName,
		PriceCents:  body.PriceCents,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeCredit(w, res)
}

type verificationBody struct {
	UserID string `json:"userId"`
	StatID string `json:"statId"`
}

// VerificationRewardHandler handles POST /internal/verifications
func (h *HandlerProvider) VerificationRewardHandler(w http.ResponseWriter, r *http.Request) {
	var body verificationBody

	err := decodeBody(w, r, &body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Reason: string(ledger.ReasonInvalidRequest)})
		return
	}

	res, err := h.svc.CreditVerificationReward(r.Context(), body.UserID, body.StatID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeCredit(w, res)
}

type earnBody struct {
	UserID      string `json:"userId"`
	Action      string `json:"action"`
	SourceID    string `json:"sourceId"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// EarnHandler handles POST /internal/earnings
func (h *HandlerProvider) EarnHandler(w http.ResponseWriter, r *http.Request) {
	var body earnBody

	err := decodeBody(w, r, &body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Reason: string(ledger.ReasonInvalidRequest)})
		return
	}

	res, err := h.svc.Earn(r.Context(), ledger.EarnRequest{
		UserID:      body.UserID,
		Source:      strings.ToUpper(strings.TrimSpace(body.Action)),
		SourceID:    body.SourceID,
		Amount:      body.Amount,
		Description: body.Description,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeCredit(w, res)
}

func writeCredit(w http.ResponseWriter, res ledger.EarnResult) {
	writeJSON(w, http.StatusOK, map[string]any{
		"newBalance": res.NewBalance,
		"entryId":    res.Entry.ID,
		"amount":     res.Entry.Amount,
		"duplicate":  res.Duplicate,
	})
}
