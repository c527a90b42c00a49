/*
errors.go - Domain error taxonomy

PURPOSE:
  A closed set of error kinds for everything that can go wrong while
  orchestrating a shipment action, plus sentinel errors and a structured
  ClassifiedError for carrying diagnostic detail.

ERROR CATEGORIES:
  1. Precondition failures - rejected before any ledger write
  2. Ledger rejections     - raw failures mapped by the classifier
  3. Integrity errors      - fatal, locally unrecoverable record states

USAGE:
  Callers match with errors.Is against the sentinels:

    if errors.Is(err, trade.ErrExceedsDeclaredValue) { ... }

  or extract the structured error for the kind and raw detail:

    var cerr *trade.ClassifiedError
    if errors.As(err, &cerr) { log.Println(cerr.Kind, cerr.Raw) }

SEE ALSO:
  - ledger/classifier.go: Maps raw ledger rejections onto these kinds
  - orchestrator/validate.go: Produces these kinds before submission
*/
package trade

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed taxonomy of orchestration failures.
type ErrorKind string

const (
	KindInsufficientAllowance ErrorKind = "insufficient_allowance"
	KindInsufficientBalance   ErrorKind = "insufficient_balance"
	KindAlreadyAccepted       ErrorKind = "already_accepted"
	KindNotFound              ErrorKind = "not_found"
	KindUnauthorized          ErrorKind = "unauthorized"
	KindExceedsDeclaredValue  ErrorKind = "exceeds_declared_value"
	KindAlreadySettled        ErrorKind = "already_settled"
	KindFundingNotEnabled     ErrorKind = "funding_not_enabled"
	KindNonceConflict         ErrorKind = "nonce_conflict"
	KindUnknown               ErrorKind = "unknown"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrAlreadyAccepted       = errors.New("offer already accepted")
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrExceedsDeclaredValue  = errors.New("exceeds declared value")
	ErrAlreadySettled        = errors.New("shipment already settled")
	ErrFundingNotEnabled     = errors.New("funding not enabled")
	ErrNonceConflict         = errors.New("nonce conflict")
	ErrUnknownFailure        = errors.New("unknown ledger failure")

	// ErrNoStage is returned when a shipment has no stage timestamp at all.
	// Registration always stamps MintedAt, so this indicates a malformed record.
	ErrNoStage = errors.New("shipment has no stage timestamps")
)

// sentinels maps each kind to its sentinel for errors.Is matching.
var sentinels = map[ErrorKind]error{
	KindInsufficientAllowance: ErrInsufficientAllowance,
	KindInsufficientBalance:   ErrInsufficientBalance,
	KindAlreadyAccepted:       ErrAlreadyAccepted,
	KindNotFound:              ErrNotFound,
	KindUnauthorized:          ErrUnauthorized,
	KindExceedsDeclaredValue:  ErrExceedsDeclaredValue,
	KindAlreadySettled:        ErrAlreadySettled,
	KindFundingNotEnabled:     ErrFundingNotEnabled,
	KindNonceConflict:         ErrNonceConflict,
	KindUnknown:               ErrUnknownFailure,
}

// Sentinel returns the sentinel error for the kind.
func (k ErrorKind) Sentinel() error {
	if s, ok := sentinels[k]; ok {
		return s
	}
	return ErrUnknownFailure
}

// Retryable reports whether the kind may succeed on automatic retry.
// Only nonce conflicts are transient ordering rejections; everything else
// is terminal for the call.
func (k ErrorKind) Retryable() bool {
	return k == KindNonceConflict
}

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ClassifiedError is a failure with its kind, a human-readable detail, and
// the raw ledger text (if any) preserved for diagnostics. The raw text is
// never the primary message.
type ClassifiedError struct {
	Kind   ErrorKind
	Detail string
	Raw    string // original ledger reason, secondary diagnostic only
}

func (e *ClassifiedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Kind.Sentinel()
}

// NewClassified builds a ClassifiedError for a precondition failure
// (no raw ledger text involved).
func NewClassified(kind ErrorKind, format string, args ...any) *ClassifiedError {
	return &ClassifiedError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrorKind from any error in the chain.
// Unclassified errors report KindUnknown.
func KindOf(err error) ErrorKind {
	var cerr *ClassifiedError
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// StageIntegrityError reports a shipment whose timestamps violate the
// fill-order invariant: a later stage stamped while an earlier one is nil.
// This is fatal for the record and is never repaired locally.
type StageIntegrityError struct {
	Shipment BoLHash
	Set      Stage // the later stage that is stamped
	Missing  Stage // the earlier stage that is not
}

func (e *StageIntegrityError) Error() string {
	return fmt.Sprintf("shipment %s: stage %q stamped while %q is unset", e.Shipment, e.Set, e.Missing)
}

// CapacityError reports an acceptance that would push totalFunded past
// the declared value.
type CapacityError struct {
	Shipment      BoLHash
	DeclaredValue Amount
	TotalFunded   Amount
	Claim         Amount
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("shipment %s: claim %s would exceed declared value %s (funded %s)",
		e.Shipment, e.Claim, e.DeclaredValue, e.TotalFunded)
}

func (e *CapacityError) Unwrap() error {
	return ErrExceedsDeclaredValue
}
