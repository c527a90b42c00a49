/*
classifier.go - Raw ledger rejection classifier

PURPOSE:
  Maps the free-text reasons and opaque failure codes a ledger node can
  produce onto the closed trade.ErrorKind taxonomy. Pure function, no
  state, no I/O.

MATCHING RULES:
  An ordered rule list, first match wins. Exact failure-code rules come
  first (ERC-6093 custom-error selectors survive ABI changes to the
  message text), then case-insensitive substring rules over the reason.
  Anything unmatched is KindUnknown with the original text preserved as
  diagnostic detail.

  The rule order is load-bearing: "transfer amount exceeds allowance"
  must match before the broader "insufficient funds", and contract revert
  reasons before the generic "not found".
*/
package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/willitship/trade-engine/trade"
)

// rule matches either an exact failure code or a lowercase substring of
// the reason text. Exactly one of code/substr is set.
type rule struct {
	code   string
	substr string
	kind   trade.ErrorKind
	detail string
}

// rules is ordered; first match wins. Codes precede all text rules.
var rules = []rule{
	// ERC-6093 custom-error selectors
	{code: "0xfb8f41b2", kind: trade.KindInsufficientAllowance, detail: "token allowance too low"}, // ERC20InsufficientAllowance
	{code: "0xe450d38c", kind: trade.KindInsufficientBalance, detail: "token balance too low"},     // ERC20InsufficientBalance
	{code: "0x118cdaa7", kind: trade.KindUnauthorized, detail: "caller is not authorized"},         // OwnableUnauthorizedAccount

	// Node-level ordering rejections
	{substr: "nonce too low", kind: trade.KindNonceConflict, detail: "operation ordering conflict"},
	{substr: "nonce too high", kind: trade.KindNonceConflict, detail: "operation ordering conflict"},
	{substr: "replacement transaction underpriced", kind: trade.KindNonceConflict, detail: "operation ordering conflict"},
	{substr: "already known", kind: trade.KindNonceConflict, detail: "operation ordering conflict"},

	// Token reverts (legacy string style)
	{substr: "transfer amount exceeds allowance", kind: trade.KindInsufficientAllowance, detail: "token allowance too low"},
	{substr: "insufficient allowance", kind: trade.KindInsufficientAllowance, detail: "token allowance too low"},
	{substr: "transfer amount exceeds balance", kind: trade.KindInsufficientBalance, detail: "token balance too low"},
	{substr: "insufficient funds", kind: trade.KindInsufficientBalance, detail: "balance too low to cover operation"},
	{substr: "insufficient balance", kind: trade.KindInsufficientBalance, detail: "balance too low to cover operation"},

	// Trade contract revert reasons
	{substr: "offer already accepted", kind: trade.KindAlreadyAccepted, detail: "offer was already accepted"},
	{substr: "already accepted", kind: trade.KindAlreadyAccepted, detail: "offer was already accepted"},
	{substr: "already exists", kind: trade.KindAlreadyAccepted, detail: "record already registered"},
	{substr: "exceeds declared value", kind: trade.KindExceedsDeclaredValue, detail: "funding would exceed declared value"},
	{substr: "already settled", kind: trade.KindAlreadySettled, detail: "shipment is settled"},
	{substr: "funding not enabled", kind: trade.KindFundingNotEnabled, detail: "funding has not been enabled"},
	{substr: "funding disabled", kind: trade.KindFundingNotEnabled, detail: "funding has not been enabled"},
	{substr: "nothing to redeem", kind: trade.KindInsufficientBalance, detail: "nothing to redeem"},
	{substr: "nothing to repay", kind: trade.KindInsufficientBalance, detail: "nothing to redeem"},
	{substr: "caller is not the owner", kind: trade.KindUnauthorized, detail: "caller is not authorized"},
	{substr: "only seller", kind: trade.KindUnauthorized, detail: "caller is not authorized"},
	{substr: "only buyer", kind: trade.KindUnauthorized, detail: "caller is not authorized"},
	{substr: "not authorized", kind: trade.KindUnauthorized, detail: "caller is not authorized"},
	{substr: "unauthorized", kind: trade.KindUnauthorized, detail: "caller is not authorized"},
	{substr: "offer not found", kind: trade.KindNotFound, detail: "offer does not exist"},
	{substr: "unknown bol", kind: trade.KindNotFound, detail: "shipment does not exist"},
	{substr: "not found", kind: trade.KindNotFound, detail: "referenced record does not exist"},
}

// Classify maps a raw submission failure onto the error taxonomy.
//
// Context cancellation is passed through untouched: a caller-imposed
// timeout is an indeterminate outcome, not a ledger rejection, and the
// coordinator handles it separately.
func Classify(err error) *trade.ClassifiedError {
	if err == nil {
		return nil
	}

	var rej *Rejection
	if !errors.As(err, &rej) {
		// Transport or node error with no rejection payload.
		return &trade.ClassifiedError{
			Kind:   trade.KindUnknown,
			Detail: "ledger submission failed",
			Raw:    err.Error(),
		}
	}

	return ClassifyRejection(rej.Code, rej.Reason)
}

// ClassifyRejection maps a raw (code, reason) pair onto the taxonomy.
// Exported separately so the rule table is unit-testable against literal
// inputs without constructing error chains.
func ClassifyRejection(code, reason string) *trade.ClassifiedError {
	raw := reason
	if raw == "" {
		raw = code
	}
	lowered := strings.ToLower(reason)

	for _, r := range rules {
		if r.code != "" {
			if code == r.code {
				return &trade.ClassifiedError{Kind: r.kind, Detail: r.detail, Raw: raw}
			}
			continue
		}
		if strings.Contains(lowered, r.substr) {
			return &trade.ClassifiedError{Kind: r.kind, Detail: r.detail, Raw: raw}
		}
	}

	return &trade.ClassifiedError{
		Kind:   trade.KindUnknown,
		Detail: "unrecognized ledger rejection",
		Raw:    raw,
	}
}

// IsCancellation reports whether err is context cancellation or expiry
// rather than a ledger outcome.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
