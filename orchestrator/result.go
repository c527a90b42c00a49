/*
result.go - Action outcomes

PURPOSE:
  ActionResult is the single outcome type for every orchestrated
  operation. Callers see exactly one of three states: confirmed, failed
  (with a classified kind), or indeterminate after a confirmation
  timeout. No silent partial states.
*/
package orchestrator

import (
	"errors"

	"github.com/willitship/trade-engine/ledger"
	"github.com/willitship/trade-engine/trade"
)

// Status is the terminal state of an orchestrated operation.
type Status string

const (
	// StatusConfirmed: the ledger confirmed the operation durably.
	StatusConfirmed Status = "confirmed"

	// StatusFailed: the operation was rejected, either by a precondition
	// check before submission or by the ledger itself.
	StatusFailed Status = "failed"

	// StatusIndeterminate: the submission went out but confirmation did
	// not arrive within the caller's timeout. The operation may still
	// confirm; recheck on the next refresh. Never coerced to success or
	// failure.
	StatusIndeterminate Status = "indeterminate"
)

// ActionResult is the outcome of any orchestrated operation.
type ActionResult struct {
	Status        Status
	Ref           ledger.SubmissionRef
	Confirmations int

	// Failure fields (StatusFailed only)
	Kind   trade.ErrorKind
	Detail string
	Raw    string // original ledger text, diagnostics only
}

// Confirmed reports whether the operation completed durably.
func (r ActionResult) Confirmed() bool { return r.Status == StatusConfirmed }

// Err converts a failed result back into a classified error, nil otherwise.
func (r ActionResult) Err() error {
	if r.Status != StatusFailed {
		return nil
	}
	return &trade.ClassifiedError{Kind: r.Kind, Detail: r.Detail, Raw: r.Raw}
}

func confirmed(receipt *ledger.Receipt) ActionResult {
	return ActionResult{
		Status:        StatusConfirmed,
		Ref:           receipt.Ref,
		Confirmations: receipt.Confirmations,
	}
}

func failed(cerr *trade.ClassifiedError) ActionResult {
	return ActionResult{
		Status: StatusFailed,
		Kind:   cerr.Kind,
		Detail: cerr.Detail,
		Raw:    cerr.Raw,
	}
}

func failedErr(err error) ActionResult {
	var cerr *trade.ClassifiedError
	if errors.As(err, &cerr) {
		return failed(cerr)
	}
	return failed(&trade.ClassifiedError{Kind: trade.KindOf(err), Detail: err.Error()})
}

func indeterminate(ref ledger.SubmissionRef) ActionResult {
	return ActionResult{Status: StatusIndeterminate, Ref: ref}
}
