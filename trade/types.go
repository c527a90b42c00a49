/*
Package trade contains the core domain model for trade-finance shipments.

PURPOSE:
  This package holds the types and algorithms that everything else builds on:
  shipments, funding offers, claim-token math, the lifecycle stage machine,
  and the domain error taxonomy.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A fixed-point token quantity (smallest-unit integers)
  - Shipment: A registered bill of lading with lifecycle timestamps
  - FundingOffer: An investor's interest-bearing funding proposal
  - BoLHash/AccountID/OfferID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors.
     Claim-token interest is computed with integer basis points, truncating.
  2. Type Safety: Strong typing for IDs prevents mixing hashes and accounts.
  3. Derivation: Lifecycle stage and remaining capacity are always computed
     from the record, never stored alongside it where they could drift.

SEE ALSO:
  - stage.go:  Lifecycle stage derivation
  - offers.go: Per-shipment offer book and capacity invariants
  - errors.go: Error kinds and structured errors
*/
package trade

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Fixed-point token quantity
// =============================================================================

// Amount is a monetary quantity in smallest token units.
// All on-ledger values (declared value, funded totals, offer principal)
// are whole numbers of the token's smallest unit, so arithmetic is exact.
type Amount struct {
	Value decimal.Decimal
}

func NewAmount(v int64) Amount {
	return Amount{Value: decimal.NewFromInt(v)}
}

func NewAmountFromDecimal(d decimal.Decimal) Amount {
	return Amount{Value: d}
}

// ParseAmount parses a decimal string into an Amount.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d}, nil
}

func ZeroAmount() Amount { return Amount{Value: decimal.Zero} }

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) String() string            { return a.Value.String() }

// ClaimTokens computes principal plus accrued interest at rateBps basis
// points (1/100 of a percent), truncating toward zero.
//
// Example: principal 500 at 1000 bps (10%) yields 550 claim tokens.
//
// The truncation direction matters for the capacity invariant: rounding
// down means accepted claims never exceed what the integer math admits.
func ClaimTokens(principal Amount, rateBps int64) Amount {
	interest := principal.Value.
		Mul(decimal.NewFromInt(rateBps)).
		Div(decimal.NewFromInt(10000)).
		Truncate(0)
	return Amount{Value: principal.Value.Add(interest)}
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// BoLHash is the content-derived identity of a registered shipment
// (a hex-encoded keccak256 digest, see hash.go).
type BoLHash string

// AccountID is a ledger account address (holder, spender, or contract).
type AccountID string

// OfferID identifies a funding offer within a shipment.
type OfferID string

// =============================================================================
// SHIPMENT - Registered bill of lading
// =============================================================================

// Shipment is a registered trade-finance shipment. The ledger is the source
// of truth for its monetary totals; this record is a read-through mirror
// maintained by confirmed ledger operations and reconciler refreshes.
//
// INVARIANTS:
//   - TotalFunded <= DeclaredValue at all times
//   - Stage timestamps fill strictly in order:
//     minted -> funding_enabled -> arrived -> paid -> settled
//   - Monetary totals are monotonically non-decreasing once set
type Shipment struct {
	Hash     BoLHash
	Contract AccountID // escrow contract account holding the trade state
	BLNumber string

	Carrier AccountID
	Seller  AccountID
	Buyer   AccountID

	// Display names captured at registration (off-ledger detail)
	CarrierName string
	SellerName  string
	BuyerName   string

	DeclaredValue Amount
	TotalFunded   Amount
	TotalPaid     Amount
	TotalRepaid   Amount

	// Lifecycle timestamps. Nil means the stage has not been reached.
	MintedAt         *time.Time
	FundingEnabledAt *time.Time
	ArrivedAt        *time.Time
	PaidAt           *time.Time
	SettledAt        *time.Time

	// Optional reference to the underlying bill of lading document.
	DocumentURL string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RemainingCapacity is how much funding the shipment can still absorb.
// Never negative while the capacity invariant holds.
func (s *Shipment) RemainingCapacity() Amount {
	return s.DeclaredValue.Sub(s.TotalFunded)
}

// FundingEnabled reports whether the seller has enabled funding.
func (s *Shipment) FundingEnabled() bool {
	return s.FundingEnabledAt != nil
}

// =============================================================================
// FUNDING OFFER
// =============================================================================

// FundingOffer is an investor's proposal to supply principal at a stated
// interest rate. Accepted is one-way: once true it never reverts.
type FundingOffer struct {
	ID       OfferID
	Shipment BoLHash
	Investor AccountID

	Amount          Amount // principal
	InterestRateBps int64

	Accepted  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClaimTokens is the redeemable entitlement credited on acceptance.
func (o *FundingOffer) ClaimTokens() Amount {
	return ClaimTokens(o.Amount, o.InterestRateBps)
}
