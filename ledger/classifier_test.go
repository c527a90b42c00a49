/*
classifier_test.go - Rejection classifier tests

PURPOSE:
  Pins the classification of raw ledger failure texts and codes onto the
  error taxonomy. These literals are real node and contract outputs; the
  table is the contract the classifier must keep.
*/
package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/willitship/trade-engine/ledger"
	"github.com/willitship/trade-engine/trade"
)

func TestClassifyRejection_KnownTexts(t *testing.T) {
	cases := []struct {
		name   string
		code   string
		reason string
		want   trade.ErrorKind
	}{
		// ERC-6093 custom-error selectors (matched by code, not text)
		{"erc6093 allowance selector", "0xfb8f41b2", "execution reverted", trade.KindInsufficientAllowance},
		{"erc6093 balance selector", "0xe450d38c", "execution reverted", trade.KindInsufficientBalance},
		{"erc6093 unauthorized selector", "0x118cdaa7", "execution reverted", trade.KindUnauthorized},

		// Node ordering rejections
		{"nonce too low", "", "nonce too low: next nonce 42, tx nonce 41", trade.KindNonceConflict},
		{"nonce too high", "", "nonce too high", trade.KindNonceConflict},
		{"replacement underpriced", "", "replacement transaction underpriced", trade.KindNonceConflict},
		{"already known", "", "already known", trade.KindNonceConflict},

		// Legacy string-style token reverts
		{"allowance string revert", "", "ERC20: transfer amount exceeds allowance", trade.KindInsufficientAllowance},
		{"balance string revert", "", "ERC20: transfer amount exceeds balance", trade.KindInsufficientBalance},
		{"gas funds", "", "insufficient funds for gas * price + value", trade.KindInsufficientBalance},

		// Contract revert reasons
		{"offer already accepted", "", "execution reverted: Offer already accepted", trade.KindAlreadyAccepted},
		{"duplicate registration", "", "execution reverted: BoL already exists", trade.KindAlreadyAccepted},
		{"exceeds declared value", "", "execution reverted: Exceeds declared value", trade.KindExceedsDeclaredValue},
		{"already settled", "", "execution reverted: Already settled", trade.KindAlreadySettled},
		{"funding not enabled", "", "execution reverted: Funding not enabled", trade.KindFundingNotEnabled},
		{"nothing to redeem", "", "execution reverted: Nothing to redeem", trade.KindInsufficientBalance},
		{"only seller", "", "execution reverted: Not authorized: only seller may accept offers", trade.KindUnauthorized},
		{"ownable revert", "", "Ownable: caller is not the owner", trade.KindUnauthorized},
		{"offer not found", "", "execution reverted: Offer not found", trade.KindNotFound},
		{"unknown bol", "", "execution reverted: Unknown BoL hash", trade.KindNotFound},

		// Unmatched
		{"garbage", "", "something entirely novel happened", trade.KindUnknown},
		{"unknown code no reason", "0x12345678", "", trade.KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ledger.ClassifyRejection(tc.code, tc.reason)
			if got.Kind != tc.want {
				t.Errorf("ClassifyRejection(%q, %q).Kind = %q, want %q", tc.code, tc.reason, got.Kind, tc.want)
			}
		})
	}
}

func TestClassifyRejection_OrderMatters(t *testing.T) {
	// "transfer amount exceeds allowance" contains neither "balance" nor
	// "funds", but a text containing both an allowance phrase and a
	// balance phrase must classify as allowance (the more specific rule
	// comes first).
	got := ledger.ClassifyRejection("", "insufficient allowance: insufficient funds to cover transfer")
	if got.Kind != trade.KindInsufficientAllowance {
		t.Errorf("Kind = %q, want %q", got.Kind, trade.KindInsufficientAllowance)
	}
}

func TestClassify_PreservesRawText(t *testing.T) {
	raw := "execution reverted: Exceeds declared value"
	cerr := ledger.Classify(&ledger.Rejection{Reason: raw})
	if cerr.Raw != raw {
		t.Errorf("Raw = %q, want original text preserved", cerr.Raw)
	}
	if cerr.Detail == raw {
		t.Error("Detail should be the normalized message, not the raw text")
	}
}

func TestClassify_WrappedRejection(t *testing.T) {
	// Rejections arriving wrapped in fmt.Errorf chains still classify.
	err := fmt.Errorf("submit acceptOffer: %w", &ledger.Rejection{Reason: "Offer already accepted"})
	cerr := ledger.Classify(err)
	if cerr.Kind != trade.KindAlreadyAccepted {
		t.Errorf("Kind = %q, want %q", cerr.Kind, trade.KindAlreadyAccepted)
	}
}

func TestClassify_NonRejectionError(t *testing.T) {
	cerr := ledger.Classify(errors.New("dial tcp 127.0.0.1:8545: connection refused"))
	if cerr.Kind != trade.KindUnknown {
		t.Errorf("Kind = %q, want unknown", cerr.Kind)
	}
	if cerr.Raw == "" {
		t.Error("Raw should carry the transport error for diagnostics")
	}
}

func TestIsCancellation(t *testing.T) {
	if !ledger.IsCancellation(context.Canceled) {
		t.Error("context.Canceled should be a cancellation")
	}
	if !ledger.IsCancellation(fmt.Errorf("await: %w", context.DeadlineExceeded)) {
		t.Error("wrapped DeadlineExceeded should be a cancellation")
	}
	if ledger.IsCancellation(errors.New("nonce too low")) {
		t.Error("a ledger rejection is not a cancellation")
	}
}

func TestRetryable_OnlyNonceConflicts(t *testing.T) {
	for _, kind := range []trade.ErrorKind{
		trade.KindInsufficientAllowance,
		trade.KindInsufficientBalance,
		trade.KindAlreadyAccepted,
		trade.KindNotFound,
		trade.KindUnauthorized,
		trade.KindExceedsDeclaredValue,
		trade.KindAlreadySettled,
		trade.KindFundingNotEnabled,
		trade.KindUnknown,
	} {
		if kind.Retryable() {
			t.Errorf("%q should not be retryable", kind)
		}
	}
	if !trade.KindNonceConflict.Retryable() {
		t.Error("nonce_conflict should be retryable")
	}
}
