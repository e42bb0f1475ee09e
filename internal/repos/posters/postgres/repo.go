package posters

import (
	"database/sql"
	"encoding/json"

	"github.com/fastprodman/tokenledger/internal/repos/posters"
)

const openJobKey = "poster_jobs_open_key"

var _ posters.Posters = (*postersRepo)(nil)

type postersRepo struct{ db *sql.DB }

func New(db *sql.DB) *postersRepo {
	return &postersRepo{db: db}
}

func jsonOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}

	return string(raw)
}
