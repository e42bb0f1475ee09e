// Package audit publishes best-effort events after ledger transactions commit.
// Emission failures are logged and never reach the caller.
package audit

import (
	"context"
	"log/slog"
	"time"
)

type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"userId"`
	Action     string    `json:"action,omitempty"`
	TargetID   string    `json:"targetId,omitempty"`
	Amount     int64     `json:"amount"`
	Balance    int64     `json:"balance"`
	EntryID    string    `json:"entryId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Event types.
const (
	TypeSpent         = "tokens.spent"
	TypeEarned        = "tokens.earned"
	TypePurchased     = "tokens.purchased"
	TypeRefunded      = "tokens.refunded"
	TypeAccountOpened = "account.opened"
	TypeAwardStatus   = "award.status_changed"
	TypePosterStatus  = "poster.status_changed"
)

type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// LogEmitter writes events to a slog logger.
type LogEmitter struct {
	Logger *slog.Logger
}

func (l LogEmitter) Emit(ctx context.Context, e Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.InfoContext(ctx, "audit event",
		"type", e.Type,
		"user_id", e.UserID,
		"action", e.Action,
		"target_id", e.TargetID,
		"amount", e.Amount,
		"balance", e.Balance,
	)

	return nil
}

// Multi fans an event out to several emitters and keeps going past failures.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, e Event) error {
	var first error

	for _, em := range m {
		err := em.Emit(ctx, e)
		if err != nil && first == nil {
			first = err
		}
	}

	return first
}

// Nop discards events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }
