package awards

import (
	"database/sql"

	"github.com/fastprodman/tokenledger/internal/repos/awards"
)

const nominationsAwardProfileKey = "nominations_award_profile_key"

var _ awards.Awards = (*awardsRepo)(nil)

type awardsRepo struct{ db *sql.DB }

func New(db *sql.DB) *awardsRepo {
	return &awardsRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}
