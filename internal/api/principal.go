package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/fastprodman/tokenledger/internal/services/catalog"
	"github.com/fastprodman/tokenledger/internal/services/ledger"
)

// Headers set by the authenticating gateway in front of this service.
const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-User-Role"
	HeaderTier   = "X-Subscription-Tier"
)

type principalKey struct{}

// RequirePrincipal rejects requests without a user id and stores the caller
// in the request context.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+HeaderUserID+" header")
			return
		}

		p := ledger.Principal{
			UserID: userID,
			Role:   strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderRole))),
			Tier:   catalog.ParseTier(r.Header.Get(HeaderTier)),
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

func principalFrom(ctx context.Context) (ledger.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(ledger.Principal)
	return p, ok
}
