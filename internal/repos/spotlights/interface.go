package spotlights

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSpotlightNotFound = errors.New("spotlight not found")
	ErrAlreadyCancelled  = errors.New("spotlight already cancelled")
)

type Status string

const (
	StatusBooked    Status = "BOOKED"
	StatusCancelled Status = "CANCELLED"
)

type Spotlight struct {
	ID          uuid.UUID
	ProfileID   uuid.UUID
	PurchasedBy string
	Title       string
	Description string
	StartDate   time.Time
	EndDate     time.Time
	TokenCost   int64
	Approved    bool
	Status      Status
	CreatedAt   time.Time
	CancelledAt *time.Time
}

// Live reports whether the spotlight is showing at now.
func (s Spotlight) Live(now time.Time) bool {
	return s.Approved && s.Status == StatusBooked && !now.Before(s.StartDate) && now.Before(s.EndDate)
}

type Spotlights interface {
	// LockProfile serializes bookings for one profile until tx ends.
	LockProfile(tx *sql.Tx, profileID uuid.UUID) error
	HasOverlap(tx *sql.Tx, profileID uuid.UUID, start, end time.Time) (bool, error)
	Create(tx *sql.Tx, s Spotlight) (Spotlight, error)
	GetForUpdate(tx *sql.Tx, id uuid.UUID) (Spotlight, error)
	Cancel(tx *sql.Tx, id uuid.UUID, at time.Time) error
}
