package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/tokenledger/internal/infra/logging"
	"github.com/fastprodman/tokenledger/internal/repos/awards"
	ledgerrepo "github.com/fastprodman/tokenledger/internal/repos/ledger"
	"github.com/fastprodman/tokenledger/internal/services/catalog"
	"github.com/fastprodman/tokenledger/internal/services/ledger"
)

// fakeService records the last call and answers with canned results.
type fakeService struct {
	principal ledger.Principal
	spendReq  ledger.SpendRequest
	cancelID  uuid.UUID
	history   ledger.HistoryQuery
	purchase  ledger.PurchaseCredit
	earn      ledger.EarnRequest

	spendRes  ledger.SpendResult
	cancelRes ledger.CancelResult
	earnRes   ledger.EarnResult
	err       error
}

func (f *fakeService) Spend(_ context.Context, p ledger.Principal, req ledger.SpendRequest) (ledger.SpendResult, error) {
	f.principal, f.spendReq = p, req
	return f.spendRes, f.err
}

func (f *fakeService) Cancel(_ context.Context, p ledger.Principal, id uuid.UUID) (ledger.CancelResult, error) {
	f.principal, f.cancelID = p, id
	return f.cancelRes, f.err
}

func (f *fakeService) Earn(_ context.Context, r ledger.EarnRequest) (ledger.EarnResult, error) {
	f.earn = r
	return f.earnRes, f.err
}

func (f *fakeService) CreditPurchase(_ context.Context, pc ledger.PurchaseCredit) (ledger.EarnResult, error) {
	f.purchase = pc
	return f.earnRes, f.err
}

func (f *fakeService) CreditVerificationReward(_ context.Context, userID, statID string) (ledger.EarnResult, error) {
	f.earn = ledger.EarnRequest{UserID: userID, SourceID: statID}
	return f.earnRes, f.err
}

func (f *fakeService) OpenAccount(context.Context, string, string) (ledger.OpenResult, error) {
	return ledger.OpenResult{Balance: 10, Bonus: 10, Created: true}, f.err
}

func (f *fakeService) GetBalance(_ context.Context, userID string) (int64, error) {
	f.principal.UserID = userID
	return 22, f.err
}

func (f *fakeService) GetHistory(_ context.Context, _ string, q ledger.HistoryQuery) (ledger.History, error) {
	f.history = q

	return ledger.History{
		Entries: []ledgerrepo.Entry{{ID: uuid.New(), Kind: ledgerrepo.KindSpent, Amount: -5, BalanceAfter: 25, SourceAction: ledgerrepo.SourceNomination}},
		Page:    1, Limit: 20, Total: 1, Pages: 1,
	}, f.err
}

func (f *fakeService) Reconcile(_ context.Context, userID string) (ledger.Reconciliation, error) {
	return ledger.Reconciliation{UserID: userID, Balance: 22, LedgerSum: 22, Consistent: true}, f.err
}

func newTestRouter(svc LedgerService, rps float64) http.Handler {
	return NewRouter(svc, RouterConfig{
		RateLimitRPS:   rps,
		RateLimitBurst: 1,
		Logger:         logging.NewJSON(io.Discard, slog.LevelError),
	})
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}

	return rr, out
}

var athlete = map[string]string{HeaderUserID: "u-1", HeaderRole: "athlete", HeaderTier: "pro"}

func TestRouter_RequiresPrincipal(t *testing.T) {
	t.Parallel()

	rr, body := do(t, newTestRouter(&fakeService{}, 0), http.MethodGet, "/me/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, body["error"], HeaderUserID)
}

func TestGetBalanceHandler(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	rr, body := do(t, newTestRouter(svc, 0), http.MethodGet, "/me/balance", "", athlete)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u-1", svc.principal.UserID)
	assert.EqualValues(t, 22, body["balance"])
}

func TestSpendHandler_BuildsRequestVariant(t *testing.T) {
	t.Parallel()

	nomID, profileID, templateID := uuid.New(), uuid.New(), uuid.New()
	start := time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		body string
		want ledger.SpendRequest
	}{
		{
			name: "vote",
			body: `{"action":"vote","params":{"nominationId":"` + nomID.String() + `","votes":3}}`,
			want: ledger.VoteRequest{NominationID: nomID, Votes: 3},
		},
		{
			name: "spotlight",
			body: `{"action":"SPOTLIGHT","params":{"profileId":"` + profileID.String() + `","duration":"month","title":"Signing day","startDate":"2030-01-02T00:00:00Z"}}`,
			want: ledger.SpotlightRequest{ProfileID: profileID, Duration: ledger.DurationMonth, Title: "Signing day", StartDate: &start},
		},
		{
			name: "poster",
			body: `{"action":"POSTER","params":{"profileId":"` + profileID.String() + `","templateId":"` + templateID.String() + `"}}`,
			want: ledger.PosterRequest{ProfileID: profileID, TemplateID: templateID},
		},
		{
			name: "ad_free",
			body: `{"action":"AD_FREE","params":{"duration":"week"}}`,
			want: ledger.AdFreeRequest{Duration: ledger.DurationWeek},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &fakeService{spendRes: ledger.SpendResult{Action: tt.want.Source(), TokensSpent: 3, NewBalance: 19}}
			rr, body := do(t, newTestRouter(svc, 0), http.MethodPost, "/me/spend", tt.body, athlete)

			require.Equal(t, http.StatusCreated, rr.Code, body)
			assert.Equal(t, tt.want, svc.spendReq)
			assert.Equal(t, ledger.Principal{UserID: "u-1", Role: "ATHLETE", Tier: catalog.TierPro}, svc.principal)
			assert.EqualValues(t, 19, body["newBalance"])
		})
	}
}

func TestSpendHandler_VoteResult(t *testing.T) {
	t.Parallel()

	vote := &awards.Vote{ID: uuid.New(), NominationID: uuid.New(), Count: 3}
	svc := &fakeService{spendRes: ledger.SpendResult{Action: "VOTE", TokensSpent: 3, NewBalance: 22, Vote: vote, VoteTotal: 3}}

	rr, body := do(t, newTestRouter(svc, 0), http.MethodPost, "/me/spend",
		`{"action":"VOTE","params":{"nominationId":"`+vote.NominationID.String()+`","votes":3}}`, athlete)

	require.Equal(t, http.StatusCreated, rr.Code)

	result, ok := body["result"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, result["userVoteTotal"])
	assert.Equal(t, vote.ID.String(), result["voteId"])
}

func TestSpendHandler_RejectsMalformedBodies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "empty", body: ``},
		{name: "no_action", body: `{"params":{}}`},
		{name: "unknown_action", body: `{"action":"RAFFLE"}`},
		{name: "unknown_param", body: `{"action":"VOTE","params":{"nominationId":"` + uuid.NewString() + `","votes":1,"bonus":true}}`},
		{name: "bad_uuid", body: `{"action":"VOTE","params":{"nominationId":"nope","votes":1}}`},
		{name: "unknown_envelope_field", body: `{"action":"VOTE","amount":5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &fakeService{}
			rr, body := do(t, newTestRouter(svc, 0), http.MethodPost, "/me/spend", tt.body, athlete)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, string(ledger.ReasonInvalidRequest), body["reason"])
			assert.Nil(t, svc.spendReq)
		})
	}
}

func TestWriteServiceError_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{name: "insufficient", err: &ledger.InsufficientFundsError{Required: 6, Current: 4, Shortfall: 2}, wantStatus: http.StatusPaymentRequired, wantReason: "INSUFFICIENT_FUNDS"},
		{name: "vote_limit", err: &ledger.ValidationError{Reason: ledger.ReasonVoteLimitExceeded, Details: map[string]any{"max": 10}}, wantStatus: http.StatusUnprocessableEntity, wantReason: "VOTE_LIMIT_EXCEEDED"},
		{name: "duplicate_nomination", err: ledger.ErrDuplicateNomination, wantStatus: http.StatusConflict, wantReason: "DUPLICATE_NOMINATION"},
		{name: "not_found", err: ledger.ErrTargetNotFound, wantStatus: http.StatusNotFound, wantReason: "TARGET_NOT_FOUND"},
		{name: "forbidden", err: ledger.ErrPermissionDenied, wantStatus: http.StatusForbidden, wantReason: "PERMISSION_DENIED"},
		{name: "not_cancellable", err: ledger.ErrNotCancellable, wantStatus: http.StatusUnprocessableEntity, wantReason: "NOT_CANCELLABLE"},
		{name: "no_account", err: ledger.ErrAccountNotFound, wantStatus: http.StatusNotFound, wantReason: "ACCOUNT_NOT_FOUND"},
		{name: "conflict", err: ledger.ErrConcurrencyConflict, wantStatus: http.StatusServiceUnavailable, wantReason: "CONCURRENCY_CONFLICT"},
		{name: "rolled_back", err: &ledger.TransactionError{Op: "spend VOTE", Cause: errors.New("disk full")}, wantStatus: http.StatusInternalServerError, wantReason: "TRANSACTION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &fakeService{err: tt.err}
			rr, body := do(t, newTestRouter(svc, 0), http.MethodPost, "/me/cancel", `{"targetId":"`+uuid.NewString()+`"}`, athlete)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantReason, body["reason"])
			assert.NotContains(t, rr.Body.String(), "disk full")
		})
	}
}

func TestInsufficientFundsCarriesShortfall(t *testing.T) {
	t.Parallel()

	svc := &fakeService{err: &ledger.InsufficientFundsError{Required: 6, Current: 4, Shortfall: 2}}
	_, body := do(t, newTestRouter(svc, 0), http.MethodPost, "/me/spend", `{"action":"AD_FREE","params":{"duration":"WEEK"}}`, athlete)

	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 2, details["shortfall"])
}

func TestCreditPurchaseHandler_Duplicate(t *testing.T) {
	t.Parallel()

	svc := &fakeService{earnRes: ledger.EarnResult{NewBalance: 130, Duplicate: true}}
	rr, body := do(t, newTestRouter(svc, 0), http.MethodPost, "/internal/purchases",
		`{"userId":"u-1","tokenAmount":100,"sourceId":"cs_123","packageName":"Starter Pack"}`, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["duplicate"])
	assert.Equal(t, ledger.PurchaseCredit{UserID: "u-1", TokenAmount: 100, SourceID: "cs_123", PackageName: "Starter Pack"}, svc.purchase)
}

func TestEarnHandler_NormalizesAction(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	rr, _ := do(t, newTestRouter(svc, 0), http.MethodPost, "/internal/earnings",
		`{"userId":"u-1","action":" stat_verification_reward ","sourceId":"stat-9","amount":3}`, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "STAT_VERIFICATION_REWARD", svc.earn.Source)
}

func TestOpenAccountHandler_Created(t *testing.T) {
	t.Parallel()

	rr, body := do(t, newTestRouter(&fakeService{}, 0), http.MethodPost, "/internal/accounts", `{"userId":"u-2","role":"ATHLETE"}`, nil)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.EqualValues(t, 10, body["bonus"])
}

func TestGetHistoryHandler_ParsesQuery(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	rr, body := do(t, newTestRouter(svc, 0), http.MethodGet,
		"/me/transactions?type=spent&source=vote&startDate=2025-01-01&endDate=2025-01-31&page=2&limit=50", "", athlete)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, ledgerrepo.KindSpent, svc.history.Kind)
	assert.Equal(t, "VOTE", svc.history.Source)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), svc.history.From)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), svc.history.To)
	assert.Equal(t, 2, svc.history.Page)
	assert.Equal(t, 50, svc.history.Limit)

	txs, ok := body["transactions"].([]any)
	require.True(t, ok)
	assert.Len(t, txs, 1)

	rr, _ = do(t, newTestRouter(svc, 0), http.MethodGet, "/me/transactions?startDate=yesterday", "", athlete)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRateLimiter_PerUser(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&fakeService{}, 0.001)
	body := `{"action":"AD_FREE","params":{"duration":"WEEK"}}`

	rr, _ := do(t, h, http.MethodPost, "/me/spend", body, athlete)
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr, _ = do(t, h, http.MethodPost, "/me/spend", body, athlete)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	// another user has their own bucket
	rr, _ = do(t, h, http.MethodPost, "/me/spend", body, map[string]string{HeaderUserID: "u-2"})
	assert.Equal(t, http.StatusCreated, rr.Code)

	// reads are never limited
	rr, _ = do(t, h, http.MethodGet, "/me/balance", "", athlete)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	t.Parallel()

	now := time.Now()
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	for range limiterSweepLen {
		rl.allow(uuid.NewString())
	}

	now = now.Add(limiterTTL + time.Second)
	rl.allow("fresh")

	assert.Len(t, rl.limiters, 1)
}
