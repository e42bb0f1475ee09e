package grants

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindLeaderboardBoost Kind = "LEADERBOARD_BOOST"
	KindAdFree           Kind = "AD_FREE"
)

// Grant is a time-boxed perk bought with tokens. ProfileID is set for
// leaderboard boosts only.
type Grant struct {
	ID         uuid.UUID
	Kind       Kind
	UserID     string
	ProfileID  *uuid.UUID
	TokenCost  int64
	Multiplier decimal.Decimal
	StartsAt   time.Time
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

type Grants interface {
	Create(tx *sql.Tx, g Grant) (Grant, error)
	// LatestExpiry returns the furthest expiry of the user's grants of kind,
	// so a repeat purchase extends rather than overlaps.
	LatestExpiry(tx *sql.Tx, userID string, kind Kind, profileID *uuid.UUID) (time.Time, bool, error)
	ListActive(ctx context.Context, userID string, now time.Time) ([]Grant, error)
}
