package spotlights

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/tokenledger/internal/infra/pgtestutil"
	"github.com/fastprodman/tokenledger/internal/repos/spotlights"
)

func TestSpotlights_HasOverlap(t *testing.T) {
	t.Parallel()

	day := 24 * time.Hour
	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		start, end  time.Time
		wantOverlap bool
	}{
		{name: "identical_window", start: base, end: base.Add(7 * day), wantOverlap: true},
		{name: "starts_inside", start: base.Add(3 * day), end: base.Add(10 * day), wantOverlap: true},
		{name: "ends_inside", start: base.Add(-3 * day), end: base.Add(day), wantOverlap: true},
		{name: "back_to_back_after", start: base.Add(7 * day), end: base.Add(14 * day), wantOverlap: false},
		{name: "back_to_back_before", start: base.Add(-7 * day), end: base, wantOverlap: false},
	}

	db := pgtestutil.NewTestDB(t)
	pgtestutil.Exec(t, db, `INSERT INTO accounts (user_id, balance) VALUES ('owner', 0)`)

	profile := uuid.New()
	pgtestutil.Exec(t, db, `INSERT INTO profiles (id, owner_id) VALUES ($1, 'owner')`, profile)

	repo := New(db)

	tx, err := db.BeginTx(t.Context(), nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = repo.LockProfile(tx, profile)
	if err != nil {
		t.Fatalf("lock profile: %v", err)
	}

	booked, err := repo.Create(tx, spotlights.Spotlight{
		ProfileID: profile, PurchasedBy: "owner", Title: "Week", StartDate: base, EndDate: base.Add(7 * day),
		TokenCost: 25, Approved: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, tt := range tests {
		got, err := repo.HasOverlap(tx, profile, tt.start, tt.end)
		if err != nil {
			t.Fatalf("%s: overlap: %v", tt.name, err)
		}

		if got != tt.wantOverlap {
			t.Fatalf("%s: want overlap=%v, got %v", tt.name, tt.wantOverlap, got)
		}
	}

	err = repo.Cancel(tx, booked.ID, base.Add(-day))
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := repo.HasOverlap(tx, profile, base, base.Add(7*day))
	if err != nil || got {
		t.Fatalf("cancelled booking still overlaps: %v %v", got, err)
	}

	err = repo.Cancel(tx, booked.ID, base)
	if !errors.Is(err, spotlights.ErrAlreadyCancelled) {
		t.Fatalf("want ErrAlreadyCancelled, got %v", err)
	}

	s, err := repo.GetForUpdate(tx, booked.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if s.Status != spotlights.StatusCancelled || s.CancelledAt == nil {
		t.Fatalf("unexpected spotlight state: %+v", s)
	}

	_, err = repo.GetForUpdate(tx, uuid.New())
	if !errors.Is(err, spotlights.ErrSpotlightNotFound) {
		t.Fatalf("want ErrSpotlightNotFound, got %v", err)
	}
}

func TestSpotlight_Live(t *testing.T) {
	t.Parallel()

	start := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s := spotlights.Spotlight{Approved: true, Status: spotlights.StatusBooked, StartDate: start, EndDate: start.Add(time.Hour)}

	if s.Live(start.Add(-time.Second)) || !s.Live(start) || s.Live(start.Add(time.Hour)) {
		t.Fatalf("live window boundaries wrong")
	}
}
