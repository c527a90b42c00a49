/*
offers.go - Per-shipment funding-offer book

PURPOSE:
  Holds the funding offers for one shipment and enforces the
  token-economics invariants around acceptance:

    totalFunded <= declaredValue, before and after every acceptance

CRITICAL INVARIANTS:
  1. Acceptance is one-way: accepted offers never revert to pending.
  2. Acceptance order is submission order; the first confirmed acceptance
     wins, the second is re-evaluated against the updated totalFunded.
  3. Claim-token balances never go negative, and their sum (net of
     redemptions) never exceeds declared value plus credited interest.

OWNERSHIP:
  The book mirrors ledger state. Acceptance here is driven by confirmed
  ledger operations (the coordinator calls Accept only after the ledger
  confirms); the book's own checks catch races that slipped past the
  precondition validator.

SEE ALSO:
  - stage.go: FundingOpen gating for offer creation
  - orchestrator/validate.go: Pre-submission checks using this book
*/
package trade

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// OfferBook is the collection of funding offers for a single shipment,
// plus the per-holder claim-token accounts credited on acceptance.
type OfferBook struct {
	mu       sync.RWMutex
	shipment *Shipment
	offers   map[OfferID]*FundingOffer
	order    []OfferID // submission order
	claims   map[AccountID]Amount
}

// NewOfferBook creates a book over the given shipment record.
// The shipment must derive a valid stage.
func NewOfferBook(s *Shipment) (*OfferBook, error) {
	if _, err := s.Stage(); err != nil {
		return nil, err
	}
	return &OfferBook{
		shipment: s,
		offers:   make(map[OfferID]*FundingOffer),
		claims:   make(map[AccountID]Amount),
	}, nil
}

// Shipment returns a copy of the underlying shipment record.
func (b *OfferBook) Shipment() Shipment {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return *b.shipment
}

// AddOffer records a new pending offer. Allowed only while funding is open
// (funding_enabled, arrived, or paid) and the principal fits the remaining
// capacity computed optimistically. No ledger balance moves until acceptance.
func (b *OfferBook) AddOffer(investor AccountID, amount Amount, rateBps int64) (OfferID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !amount.IsPositive() {
		return "", NewClassified(KindUnknown, "offer amount must be positive, got %s", amount)
	}
	if rateBps < 0 {
		return "", NewClassified(KindUnknown, "interest rate must be non-negative, got %d bps", rateBps)
	}

	stage, err := b.shipment.Stage()
	if err != nil {
		return "", err
	}
	if !FundingOpen(stage) {
		return "", NewClassified(KindFundingNotEnabled, "shipment %s is at stage %q", b.shipment.Hash, stage)
	}
	if amount.GreaterThan(b.shipment.RemainingCapacity()) {
		return "", NewClassified(KindExceedsDeclaredValue,
			"offer %s exceeds remaining capacity %s", amount, b.shipment.RemainingCapacity())
	}

	now := time.Now().UTC()
	offer := &FundingOffer{
		ID:              OfferID(uuid.NewString()),
		Shipment:        b.shipment.Hash,
		Investor:        investor,
		Amount:          amount,
		InterestRateBps: rateBps,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	b.offers[offer.ID] = offer
	b.order = append(b.order, offer.ID)
	return offer.ID, nil
}

// Restore places an already-known offer (loaded from the store or seen on
// the ledger) into the book without re-running creation checks.
func (b *OfferBook) Restore(offer FundingOffer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.offers[offer.ID]; ok {
		return
	}
	o := offer
	b.offers[o.ID] = &o
	b.order = append(b.order, o.ID)
	if o.Accepted {
		b.claims[o.Investor] = b.claims[o.Investor].Add(o.ClaimTokens())
	}
}

// Accept marks the offer accepted, credits the investor's claim-token
// account, and raises totalFunded by the claim amount.
//
// Only the shipment's seller may accept. Offers are evaluated against the
// totalFunded already updated by earlier acceptances, so of two offers that
// jointly exceed capacity, only the first fits.
func (b *OfferBook) Accept(id OfferID, caller AccountID) (Amount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if caller != b.shipment.Seller {
		return Amount{}, NewClassified(KindUnauthorized, "caller %s is not the seller of %s", caller, b.shipment.Hash)
	}
	offer, ok := b.offers[id]
	if !ok {
		return Amount{}, NewClassified(KindNotFound, "offer %s", id)
	}
	if offer.Accepted {
		return Amount{}, NewClassified(KindAlreadyAccepted, "offer %s", id)
	}
	if !b.shipment.FundingEnabled() {
		return Amount{}, NewClassified(KindFundingNotEnabled, "shipment %s", b.shipment.Hash)
	}

	claim := offer.ClaimTokens()
	if b.shipment.TotalFunded.Add(claim).GreaterThan(b.shipment.DeclaredValue) {
		return Amount{}, &CapacityError{
			Shipment:      b.shipment.Hash,
			DeclaredValue: b.shipment.DeclaredValue,
			TotalFunded:   b.shipment.TotalFunded,
			Claim:         claim,
		}
	}

	offer.Accepted = true
	offer.UpdatedAt = time.Now().UTC()
	b.claims[offer.Investor] = b.claims[offer.Investor].Add(claim)
	b.shipment.TotalFunded = b.shipment.TotalFunded.Add(claim)
	return claim, nil
}

// CreditDirect credits a holder's claim account for non-offer funding
// (direct funding goes to the seller without an interest component).
func (b *OfferBook) CreditDirect(holder AccountID, amount Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !amount.IsPositive() {
		return NewClassified(KindUnknown, "credit must be positive, got %s", amount)
	}
	if b.shipment.TotalFunded.Add(amount).GreaterThan(b.shipment.DeclaredValue) {
		return &CapacityError{
			Shipment:      b.shipment.Hash,
			DeclaredValue: b.shipment.DeclaredValue,
			TotalFunded:   b.shipment.TotalFunded,
			Claim:         amount,
		}
	}
	b.claims[holder] = b.claims[holder].Add(amount)
	b.shipment.TotalFunded = b.shipment.TotalFunded.Add(amount)
	return nil
}

// Redeem debits a holder's claim account. The balance never goes negative.
func (b *OfferBook) Redeem(holder AccountID, amount Amount) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !amount.IsPositive() {
		return NewClassified(KindUnknown, "redeem amount must be positive, got %s", amount)
	}
	balance := b.claims[holder]
	if amount.GreaterThan(balance) {
		return NewClassified(KindInsufficientBalance,
			"holder %s has %s claim tokens, tried to redeem %s", holder, balance, amount)
	}
	b.claims[holder] = balance.Sub(amount)
	return nil
}

// SetClaimBalances overwrites the claim accounts with authoritative
// balances read from the ledger. Used when rebuilding a book from a
// reconciled snapshot.
func (b *OfferBook) SetClaimBalances(claims map[AccountID]Amount) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.claims = make(map[AccountID]Amount, len(claims))
	for holder, amount := range claims {
		b.claims[holder] = amount
	}
}

// ClaimBalance returns the holder's claim-token balance.
func (b *OfferBook) ClaimBalance(holder AccountID) Amount {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if a, ok := b.claims[holder]; ok {
		return a
	}
	return ZeroAmount()
}

// RemainingCapacity is declaredValue minus totalFunded.
func (b *OfferBook) RemainingCapacity() Amount {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.shipment.RemainingCapacity()
}

// Get returns a copy of the offer, if present.
func (b *OfferBook) Get(id OfferID) (FundingOffer, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	offer, ok := b.offers[id]
	if !ok {
		return FundingOffer{}, false
	}
	return *offer, true
}

// Offers returns copies of all offers in submission order.
func (b *OfferBook) Offers() []FundingOffer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]FundingOffer, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.offers[id])
	}
	return out
}
