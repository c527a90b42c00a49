/*
Package ledger defines the narrow boundary to the external value-transfer
ledger and classifies its failures.

PURPOSE:
  The orchestration core never talks to a node directly; it consumes the
  two small interfaces here. Signing is an external capability: Submit
  takes an already-authorized operation, and this package owns no keys.

INTERFACES:
  Querier   - read-only balance/allowance/contract-state snapshots
  Submitter - submit an operation and await its confirmation

FAILURE MODEL:
  A rejected submission surfaces as a *Rejection carrying the opaque
  failure code and the raw reason text. Raw rejections are always passed
  through Classify (classifier.go) before being reported upward.

SEE ALSO:
  - classifier.go: Rejection -> trade.ErrorKind mapping
  - memory.go:     In-memory ledger for tests and dev mode
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/willitship/trade-engine/trade"
)

// =============================================================================
// OPERATIONS
// =============================================================================

// Op names a ledger operation the core can submit.
type Op string

const (
	OpCreateBoL     Op = "create_bol"
	OpApprove       Op = "approve"
	OpEnableFunding Op = "enable_funding"
	OpFund          Op = "fund"
	OpCreateOffer   Op = "create_offer"
	OpAcceptOffer   Op = "accept_offer"
	OpPay           Op = "pay"
	OpMarkReceived  Op = "mark_received"
	OpRedeem        Op = "redeem"
)

// Args carries the operation arguments. Not every field applies to every
// op; unused fields are zero.
type Args struct {
	Account  trade.AccountID // signer / sender
	Shipment trade.BoLHash
	Spender  trade.AccountID // approve target
	Offer    trade.OfferID
	Amount   trade.Amount

	// Offer-only field
	InterestRateBps int64

	// Registration-only fields
	DeclaredValue trade.Amount
	Seller        trade.AccountID
	Buyer         trade.AccountID
	BLNumber      string
}

// =============================================================================
// SUBMISSION RESULTS
// =============================================================================

// SubmissionRef identifies a submitted operation (a transaction hash on
// chain-backed implementations).
type SubmissionRef string

// Receipt is the durable outcome of a confirmed submission.
type Receipt struct {
	Ref           SubmissionRef
	Confirmations int
	ConfirmedAt   time.Time
}

// Rejection is a raw ledger failure: an opaque code (custom-error selector,
// RPC error code) and/or free-text reason. It is never surfaced to callers
// directly; Classify maps it to a trade.ErrorKind first.
type Rejection struct {
	Code   string
	Reason string
}

func (r *Rejection) Error() string {
	if r.Code != "" && r.Reason != "" {
		return fmt.Sprintf("ledger rejection %s: %s", r.Code, r.Reason)
	}
	if r.Code != "" {
		return fmt.Sprintf("ledger rejection %s", r.Code)
	}
	return fmt.Sprintf("ledger rejection: %s", r.Reason)
}

// =============================================================================
// CONTRACT STATE
// =============================================================================

// OfferState is an offer as the ledger sees it.
type OfferState struct {
	ID              trade.OfferID
	Investor        trade.AccountID
	Amount          trade.Amount
	InterestRateBps int64
	Accepted        bool
}

// ContractState is the authoritative trade state for one shipment.
type ContractState struct {
	DeclaredValue trade.Amount
	TotalFunded   trade.Amount
	TotalPaid     trade.Amount
	TotalRepaid   trade.Amount

	FundingEnabled bool
	Arrived        bool
	Paid           bool
	Settled        bool

	Seller trade.AccountID
	Buyer  trade.AccountID

	Offers []OfferState
	Claims map[trade.AccountID]trade.Amount
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Querier reads ledger state without side effects.
type Querier interface {
	// ReadBalance returns the holder's token balance.
	ReadBalance(ctx context.Context, holder trade.AccountID) (trade.Amount, error)

	// ReadNativeBalance returns the holder's native (gas) balance.
	ReadNativeBalance(ctx context.Context, holder trade.AccountID) (trade.Amount, error)

	// ReadAllowance returns how much the spender may move on the
	// holder's behalf.
	ReadAllowance(ctx context.Context, holder, spender trade.AccountID) (trade.Amount, error)

	// ReadContractState returns the trade state for a registered shipment.
	// Returns trade.ErrNotFound (wrapped) for unknown shipments.
	ReadContractState(ctx context.Context, shipment trade.BoLHash) (*ContractState, error)
}

// Submitter sends operations to the ledger. Once submitted an operation
// cannot be aborted; it either confirms, rejects, or stays pending.
type Submitter interface {
	// Submit sends an already-authorized operation and returns its
	// submission reference. A returned error may be a *Rejection.
	Submit(ctx context.Context, op Op, args Args) (SubmissionRef, error)

	// AwaitConfirmation blocks until the submission has the requested
	// number of confirmations, the ledger rejects it (*Rejection), or
	// ctx is done.
	AwaitConfirmation(ctx context.Context, ref SubmissionRef, confirmations int) (*Receipt, error)
}

// Ledger is the full collaborator surface.
type Ledger interface {
	Querier
	Submitter
}
