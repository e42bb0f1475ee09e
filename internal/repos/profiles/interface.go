package profiles

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

var ErrProfileNotFound = errors.New("profile not found")

type Profile struct {
	ID        uuid.UUID
	OwnerID   string
	FirstName string
	LastName  string
	Public    bool
}

func (p Profile) DisplayName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

// Profiles is the read side of the profile directory.
type Profiles interface {
	Get(tx *sql.Tx, id uuid.UUID) (Profile, error)
}
