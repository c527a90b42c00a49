/*
validate.go - Pre-submission precondition checks

PURPOSE:
  Rejects an action before any ledger write is attempted, using a
  read-only snapshot of balances, allowances, and stage. A failed
  precondition short-circuits with a classified result and never
  consumes a ledger operation.

CHECKS PER ACTION:
  enableFunding  seller   totalFunded == 0; stage == minted
  fund           investor amount > 0; native balance >= reserve;
                          allowance >= amount or approve scheduled
  createOffer    investor funding open; amount <= remaining capacity;
                          allowance >= amount or approve scheduled
  acceptOffer    seller   offer exists, unaccepted; fits declared value;
                          investor balance and allowance >= principal
  pay            buyer    amount == declaredValue exactly; balance and
                          allowance cover it; funding enabled
  markReceived   buyer    stage != settled
  redeem         holder   claim balance > 0; totalRepaid > 0; not settled

  "or approve scheduled" is the coordinator's job: the validator only
  requires the holder's token balance to cover the amount, since the
  coordinator inserts the approve step when the allowance is short.

SEE ALSO:
  - coordinator.go: Runs after validation, owns the approve step
  - trade/offers.go: The book whose invariants these checks front-run
*/
package orchestrator

import (
	"context"

	"github.com/willitship/trade-engine/ledger"
	"github.com/willitship/trade-engine/trade"
)

// DefaultMinNativeReserve is the native balance a submitter must keep to
// cover operation fees on value-moving submissions.
const DefaultMinNativeReserve = 1

// Validator checks preconditions against a read-only ledger snapshot.
type Validator struct {
	Querier ledger.Querier

	// MinNativeReserve is the native balance a submitter must keep to
	// cover operation fees. Zero disables the check.
	MinNativeReserve trade.Amount
}

func NewValidator(q ledger.Querier) *Validator {
	return &Validator{Querier: q, MinNativeReserve: trade.ZeroAmount()}
}

// EnableFunding: only the seller, only at minted, only before any funding.
func (v *Validator) EnableFunding(_ context.Context, book *trade.OfferBook, caller trade.AccountID) error {
	s := book.Shipment()
	if caller != s.Seller {
		return trade.NewClassified(trade.KindUnauthorized, "caller %s is not the seller", caller)
	}
	if !s.TotalFunded.IsZero() {
		return trade.NewClassified(trade.KindUnknown, "shipment %s already has funding recorded", s.Hash)
	}
	stage, err := s.Stage()
	if err != nil {
		return err
	}
	if stage != trade.StageMinted {
		if stage == trade.StageSettled {
			return trade.NewClassified(trade.KindAlreadySettled, "shipment %s", s.Hash)
		}
		return trade.NewClassified(trade.KindFundingNotEnabled,
			"funding can only be enabled at stage %q, shipment is at %q", trade.StageMinted, stage)
	}
	return nil
}

// Fund: positive amount, gas reserve, balance covers the transfer.
func (v *Validator) Fund(ctx context.Context, book *trade.OfferBook, investor trade.AccountID, amount trade.Amount) error {
	if !amount.IsPositive() {
		return trade.NewClassified(trade.KindUnknown, "funding amount must be positive, got %s", amount)
	}
	s := book.Shipment()
	stage, err := s.Stage()
	if err != nil {
		return err
	}
	if !trade.FundingOpen(stage) {
		return trade.NewClassified(trade.KindFundingNotEnabled, "shipment %s is at stage %q", s.Hash, stage)
	}
	if amount.GreaterThan(s.RemainingCapacity()) {
		return trade.NewClassified(trade.KindExceedsDeclaredValue,
			"amount %s exceeds remaining capacity %s", amount, s.RemainingCapacity())
	}
	if err := v.checkNativeReserve(ctx, investor); err != nil {
		return err
	}
	return v.checkSpendable(ctx, investor, amount)
}

// CreateOffer: funding open, fits capacity, investor can cover principal.
func (v *Validator) CreateOffer(ctx context.Context, book *trade.OfferBook, investor trade.AccountID, amount trade.Amount, rateBps int64) error {
	if !amount.IsPositive() {
		return trade.NewClassified(trade.KindUnknown, "offer amount must be positive, got %s", amount)
	}
	if rateBps < 0 {
		return trade.NewClassified(trade.KindUnknown, "interest rate must be non-negative, got %d bps", rateBps)
	}
	s := book.Shipment()
	stage, err := s.Stage()
	if err != nil {
		return err
	}
	if !trade.FundingOpen(stage) {
		return trade.NewClassified(trade.KindFundingNotEnabled, "shipment %s is at stage %q", s.Hash, stage)
	}
	if amount.GreaterThan(s.RemainingCapacity()) {
		return trade.NewClassified(trade.KindExceedsDeclaredValue,
			"offer %s exceeds remaining capacity %s", amount, s.RemainingCapacity())
	}
	return v.checkSpendable(ctx, investor, amount)
}

// AcceptOffer: seller-only; the offer must exist, be pending, and fit;
// the investor must still be able to deliver the principal.
func (v *Validator) AcceptOffer(ctx context.Context, book *trade.OfferBook, caller trade.AccountID, id trade.OfferID) error {
	s := book.Shipment()
	if caller != s.Seller {
		return trade.NewClassified(trade.KindUnauthorized, "caller %s is not the seller", caller)
	}
	offer, ok := book.Get(id)
	if !ok {
		return trade.NewClassified(trade.KindNotFound, "offer %s", id)
	}
	if offer.Accepted {
		return trade.NewClassified(trade.KindAlreadyAccepted, "offer %s", id)
	}
	if !s.FundingEnabled() {
		return trade.NewClassified(trade.KindFundingNotEnabled, "shipment %s", s.Hash)
	}

	claim := offer.ClaimTokens()
	if s.TotalFunded.Add(claim).GreaterThan(s.DeclaredValue) {
		return &trade.CapacityError{
			Shipment:      s.Hash,
			DeclaredValue: s.DeclaredValue,
			TotalFunded:   s.TotalFunded,
			Claim:         claim,
		}
	}

	balance, err := v.Querier.ReadBalance(ctx, offer.Investor)
	if err != nil {
		return trade.NewClassified(trade.KindUnknown, "read investor balance: %v", err)
	}
	if offer.Amount.GreaterThan(balance) {
		return trade.NewClassified(trade.KindInsufficientBalance,
			"investor %s holds %s, offer principal is %s", offer.Investor, balance, offer.Amount)
	}
	allowance, err := v.Querier.ReadAllowance(ctx, offer.Investor, s.Contract)
	if err != nil {
		return trade.NewClassified(trade.KindUnknown, "read investor allowance: %v", err)
	}
	if offer.Amount.GreaterThan(allowance) {
		return trade.NewClassified(trade.KindInsufficientAllowance,
			"investor %s allows %s, offer principal is %s", offer.Investor, allowance, offer.Amount)
	}
	return nil
}

// Pay: buyer-only, exact declared value, no partial payment.
func (v *Validator) Pay(ctx context.Context, book *trade.OfferBook, buyer trade.AccountID, amount trade.Amount) error {
	s := book.Shipment()
	if buyer != s.Buyer {
		return trade.NewClassified(trade.KindUnauthorized, "caller %s is not the buyer", buyer)
	}
	if !amount.Equal(s.DeclaredValue) {
		return trade.NewClassified(trade.KindUnknown,
			"payment must equal declared value %s exactly, got %s", s.DeclaredValue, amount)
	}
	if !s.FundingEnabled() {
		return trade.NewClassified(trade.KindFundingNotEnabled, "shipment %s", s.Hash)
	}
	if s.Settled() {
		return trade.NewClassified(trade.KindAlreadySettled, "shipment %s", s.Hash)
	}
	return v.checkSpendable(ctx, buyer, amount)
}

// MarkReceived: buyer-only, any stage before settled.
func (v *Validator) MarkReceived(_ context.Context, book *trade.OfferBook, buyer trade.AccountID) error {
	s := book.Shipment()
	if buyer != s.Buyer {
		return trade.NewClassified(trade.KindUnauthorized, "caller %s is not the buyer", buyer)
	}
	if s.Settled() {
		return trade.NewClassified(trade.KindAlreadySettled, "shipment %s", s.Hash)
	}
	return nil
}

// Redeem: holder must have claim tokens and the buyer must have repaid.
// A zero claim balance is always "nothing to redeem", regardless of
// totalRepaid.
func (v *Validator) Redeem(_ context.Context, book *trade.OfferBook, holder trade.AccountID, amount trade.Amount) error {
	s := book.Shipment()
	balance := book.ClaimBalance(holder)
	if !balance.IsPositive() {
		return trade.NewClassified(trade.KindInsufficientBalance, "holder %s has nothing to redeem", holder)
	}
	if !amount.IsPositive() || amount.GreaterThan(balance) {
		return trade.NewClassified(trade.KindInsufficientBalance,
			"holder %s has %s claim tokens, requested %s", holder, balance, amount)
	}
	if !s.TotalRepaid.IsPositive() {
		return trade.NewClassified(trade.KindInsufficientBalance,
			"buyer has not repaid shipment %s yet", s.Hash)
	}
	if s.Settled() {
		return trade.NewClassified(trade.KindAlreadySettled, "shipment %s", s.Hash)
	}
	return nil
}

// checkSpendable requires the holder's token balance to cover amount.
// The allowance is deliberately not required here: when it is short the
// coordinator schedules an approve step first.
func (v *Validator) checkSpendable(ctx context.Context, holder trade.AccountID, amount trade.Amount) error {
	balance, err := v.Querier.ReadBalance(ctx, holder)
	if err != nil {
		return trade.NewClassified(trade.KindUnknown, "read balance: %v", err)
	}
	if amount.GreaterThan(balance) {
		return trade.NewClassified(trade.KindInsufficientBalance,
			"holder %s has %s, needs %s", holder, balance, amount)
	}
	return nil
}

func (v *Validator) checkNativeReserve(ctx context.Context, holder trade.AccountID) error {
	if !v.MinNativeReserve.IsPositive() {
		return nil
	}
	native, err := v.Querier.ReadNativeBalance(ctx, holder)
	if err != nil {
		return trade.NewClassified(trade.KindUnknown, "read native balance: %v", err)
	}
	if v.MinNativeReserve.GreaterThan(native) {
		return trade.NewClassified(trade.KindInsufficientBalance,
			"holder %s native balance %s below reserve %s", holder, native, v.MinNativeReserve)
	}
	return nil
}
