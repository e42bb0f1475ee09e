package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrValidationFailed    = errors.New("validation failed")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrTransactionFailed   = errors.New("transaction failed")
	ErrDuplicateEvent      = errors.New("duplicate event")
	ErrAccountNotFound     = errors.New("account not found")
)

type Reason string

const (
	ReasonAwardNotActive          Reason = "AWARD_NOT_ACTIVE"
	ReasonAwardExpired            Reason = "AWARD_EXPIRED"
	ReasonDuplicateNomination     Reason = "DUPLICATE_NOMINATION"
	ReasonVoteLimitExceeded       Reason = "VOTE_LIMIT_EXCEEDED"
	ReasonTemplateTierRequired    Reason = "TEMPLATE_TIER_REQUIRED"
	ReasonDuplicatePendingRequest Reason = "DUPLICATE_PENDING_REQUEST"
	ReasonNotCancellable          Reason = "NOT_CANCELLABLE"
	ReasonTargetNotFound          Reason = "TARGET_NOT_FOUND"
	ReasonPermissionDenied        Reason = "PERMISSION_DENIED"
	ReasonProfileNotPublic        Reason = "PROFILE_NOT_PUBLIC"
	ReasonSpotlightOverlap        Reason = "SPOTLIGHT_OVERLAP"
	ReasonInvalidRequest          Reason = "INVALID_REQUEST"
)

// ValidationError is a precondition failure detected before any mutation.
// errors.Is matches ErrValidationFailed and any ValidationError with the same
// Reason, so callers can test against the per-reason sentinels below.
type ValidationError struct {
	Reason  Reason
	Message string
	Details map[string]any
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "validation failed: " + string(e.Reason)
	}

	return fmt.Sprintf("validation failed: %s: %s", e.Reason, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidationFailed {
		return true
	}

	var ve *ValidationError
	if errors.As(target, &ve) {
		return ve.Reason == e.Reason
	}

	return false
}

// Per-reason sentinels for errors.Is.
var (
	ErrAwardNotActive          = &ValidationError{Reason: ReasonAwardNotActive}
	ErrAwardExpired            = &ValidationError{Reason: ReasonAwardExpired}
	ErrDuplicateNomination     = &ValidationError{Reason: ReasonDuplicateNomination}
	ErrVoteLimitExceeded       = &ValidationError{Reason: ReasonVoteLimitExceeded}
	ErrTemplateTierRequired    = &ValidationError{Reason: ReasonTemplateTierRequired}
	ErrDuplicatePendingRequest = &ValidationError{Reason: ReasonDuplicatePendingRequest}
	ErrNotCancellable          = &ValidationError{Reason: ReasonNotCancellable}
	ErrTargetNotFound          = &ValidationError{Reason: ReasonTargetNotFound}
	ErrPermissionDenied        = &ValidationError{Reason: ReasonPermissionDenied}
	ErrProfileNotPublic        = &ValidationError{Reason: ReasonProfileNotPublic}
	ErrSpotlightOverlap        = &ValidationError{Reason: ReasonSpotlightOverlap}
	ErrInvalidRequest          = &ValidationError{Reason: ReasonInvalidRequest}
)

func invalid(reason Reason, msg string, details map[string]any) *ValidationError {
	return &ValidationError{Reason: reason, Message: msg, Details: details}
}

// InsufficientFundsError carries what the caller needs to top up.
type InsufficientFundsError struct {
	Required  int64
	Current   int64
	Shortfall int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: need %d tokens, have %d", e.Required, e.Current)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

func insufficient(required, current int64) *InsufficientFundsError {
	return &InsufficientFundsError{Required: required, Current: current, Shortfall: required - current}
}

// TransactionError means the atomic unit rolled back for an unexpected
// reason. Nothing was applied; Cause is for logs, not for branching.
type TransactionError struct {
	Op    string
	Cause error
}

func (e *TransactionError) Error() string {
	return "transaction failed: " + e.Op
}

func (e *TransactionError) Is(target error) bool {
	return target == ErrTransactionFailed
}

func (e *TransactionError) Unwrap() error {
	return e.Cause
}

// expected reports whether err belongs to the caller-facing taxonomy and should
// pass through the transaction wrapper untouched.
func expected(err error) bool {
	return errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrDuplicateEvent) ||
		errors.Is(err, ErrAccountNotFound)
}

// resultLabel classifies err for metrics.
func resultLabel(err error) string {
	var ve *ValidationError

	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return string(ve.Reason)
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrDuplicateEvent):
		return "DUPLICATE_EVENT"
	case errors.Is(err, ErrConcurrencyConflict):
		return "CONCURRENCY_CONFLICT"
	case errors.Is(err, ErrAccountNotFound):
		return "ACCOUNT_NOT_FOUND"
	default:
		return "TRANSACTION_FAILED"
	}
}
