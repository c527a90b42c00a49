/*
offers_test.go - Offer book and claim-token invariant tests

PURPOSE:
  Executable documentation of the token economics:
  1. Claim tokens = principal + interest at integer bps, truncating
  2. totalFunded <= declaredValue before and after every acceptance
  3. Of two offers that jointly exceed capacity, only the first fits
  4. Acceptance is one-way and seller-only
  5. Claim balances never go negative
*/
package trade_test

import (
	"errors"
	"testing"
	"time"

	"github.com/willitship/trade-engine/trade"
)

// =============================================================================
// CLAIM TOKEN MATH
// =============================================================================

func TestClaimTokens_TruncatesTowardZero(t *testing.T) {
	cases := []struct {
		name      string
		principal int64
		rateBps   int64
		want      int64
	}{
		{"10 percent on 500", 500, 1000, 550},
		{"zero rate", 500, 0, 500},
		{"fractional interest truncates", 333, 250, 341}, // 8.325 -> 8
		{"one basis point rounds to zero", 99, 1, 99},    // 0.0099 -> 0
		{"full declared value", 1000, 1000, 1100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := trade.ClaimTokens(trade.NewAmount(tc.principal), tc.rateBps)
			if !got.Equal(trade.NewAmount(tc.want)) {
				t.Errorf("ClaimTokens(%d, %d bps) = %s, want %d", tc.principal, tc.rateBps, got, tc.want)
			}
		})
	}
}

// =============================================================================
// OFFER BOOK
// =============================================================================

func fundableShipment(declared int64) *trade.Shipment {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	enabled := now.Add(time.Hour)
	return &trade.Shipment{
		Hash:             "0xdeadbeef",
		Contract:         "0xdeadbeef",
		BLNumber:         "BL-777",
		Carrier:          "carrier",
		Seller:           "seller",
		Buyer:            "buyer",
		DeclaredValue:    trade.NewAmount(declared),
		TotalFunded:      trade.ZeroAmount(),
		TotalPaid:        trade.ZeroAmount(),
		TotalRepaid:      trade.ZeroAmount(),
		MintedAt:         &now,
		FundingEnabledAt: &enabled,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestOfferBook_AcceptCreditsClaimAndRaisesTotalFunded(t *testing.T) {
	// GIVEN: A 1000-value shipment with a 500 offer at 10%
	// WHEN: The seller accepts
	// THEN: The investor is credited 550 claim tokens and totalFunded = 550

	book, err := trade.NewOfferBook(fundableShipment(1000))
	if err != nil {
		t.Fatalf("NewOfferBook: %v", err)
	}

	id, err := book.AddOffer("investor-1", trade.NewAmount(500), 1000)
	if err != nil {
		t.Fatalf("AddOffer: %v", err)
	}

	claim, err := book.Accept(id, "seller")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if !claim.Equal(trade.NewAmount(550)) {
		t.Errorf("claim = %s, want 550", claim)
	}
	if got := book.ClaimBalance("investor-1"); !got.Equal(trade.NewAmount(550)) {
		t.Errorf("claim balance = %s, want 550", got)
	}
	if got := book.Shipment().TotalFunded; !got.Equal(trade.NewAmount(550)) {
		t.Errorf("totalFunded = %s, want 550", got)
	}
	if got := book.RemainingCapacity(); !got.Equal(trade.NewAmount(450)) {
		t.Errorf("remaining capacity = %s, want 450", got)
	}
}

func TestOfferBook_SecondAcceptanceOverCapacity_Rejected(t *testing.T) {
	// GIVEN: Two 500 offers at 10% on a 1000-value shipment
	// WHEN: The seller accepts both
	// THEN: The first fits (550), the second would push the total to 1100
	//       and fails with a CapacityError; totalFunded is unchanged

	book, err := trade.NewOfferBook(fundableShipment(1000))
	if err != nil {
		t.Fatalf("NewOfferBook: %v", err)
	}

	first, err := book.AddOffer("investor-1", trade.NewAmount(500), 1000)
	if err != nil {
		t.Fatalf("AddOffer first: %v", err)
	}
	second, err := book.AddOffer("investor-2", trade.NewAmount(500), 1000)
	if err != nil {
		t.Fatalf("AddOffer second: %v", err)
	}

	if _, err := book.Accept(first, "seller"); err != nil {
		t.Fatalf("first acceptance should fit: %v", err)
	}

	_, err = book.Accept(second, "seller")
	var capErr *trade.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
	if kind := trade.KindOf(err); kind != trade.KindExceedsDeclaredValue {
		t.Errorf("error kind = %q, want %q", kind, trade.KindExceedsDeclaredValue)
	}

	// The failed acceptance must not move any totals.
	if got := book.Shipment().TotalFunded; !got.Equal(trade.NewAmount(550)) {
		t.Errorf("totalFunded after rejection = %s, want 550", got)
	}
	if got := book.ClaimBalance("investor-2"); !got.IsZero() {
		t.Errorf("rejected investor claim balance = %s, want 0", got)
	}
}

func TestOfferBook_AcceptIsSellerOnlyAndOneWay(t *testing.T) {
	book, _ := trade.NewOfferBook(fundableShipment(1000))
	id, err := book.AddOffer("investor-1", trade.NewAmount(100), 500)
	if err != nil {
		t.Fatalf("AddOffer: %v", err)
	}

	// Not the seller
	if _, err := book.Accept(id, "investor-1"); trade.KindOf(err) != trade.KindUnauthorized {
		t.Errorf("non-seller acceptance: kind = %q, want unauthorized", trade.KindOf(err))
	}

	// Accept, then accept again
	if _, err := book.Accept(id, "seller"); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if _, err := book.Accept(id, "seller"); trade.KindOf(err) != trade.KindAlreadyAccepted {
		t.Errorf("re-acceptance: kind = %q, want already_accepted", trade.KindOf(err))
	}
}

func TestOfferBook_AddOffer_RequiresFundingOpen(t *testing.T) {
	// A minted-only shipment cannot take offers yet.
	s := fundableShipment(1000)
	s.FundingEnabledAt = nil
	book, err := trade.NewOfferBook(s)
	if err != nil {
		t.Fatalf("NewOfferBook: %v", err)
	}

	_, err = book.AddOffer("investor-1", trade.NewAmount(100), 500)
	if trade.KindOf(err) != trade.KindFundingNotEnabled {
		t.Errorf("kind = %q, want funding_not_enabled", trade.KindOf(err))
	}
}

func TestOfferBook_AddOffer_RejectsOverCapacityUpFront(t *testing.T) {
	book, _ := trade.NewOfferBook(fundableShipment(1000))

	_, err := book.AddOffer("investor-1", trade.NewAmount(1500), 0)
	if trade.KindOf(err) != trade.KindExceedsDeclaredValue {
		t.Errorf("kind = %q, want exceeds_declared_value", trade.KindOf(err))
	}
}

func TestOfferBook_Redeem_NeverGoesNegative(t *testing.T) {
	// GIVEN: A holder with 550 claim tokens
	// WHEN: Redeeming more than the balance
	// THEN: The redemption is rejected and the balance is unchanged

	book, _ := trade.NewOfferBook(fundableShipment(1000))
	id, _ := book.AddOffer("investor-1", trade.NewAmount(500), 1000)
	if _, err := book.Accept(id, "seller"); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	err := book.Redeem("investor-1", trade.NewAmount(600))
	if trade.KindOf(err) != trade.KindInsufficientBalance {
		t.Errorf("kind = %q, want insufficient_balance", trade.KindOf(err))
	}
	if got := book.ClaimBalance("investor-1"); !got.Equal(trade.NewAmount(550)) {
		t.Errorf("balance after failed redeem = %s, want 550", got)
	}

	// Partial redemption is fine.
	if err := book.Redeem("investor-1", trade.NewAmount(300)); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if got := book.ClaimBalance("investor-1"); !got.Equal(trade.NewAmount(250)) {
		t.Errorf("balance after redeem = %s, want 250", got)
	}
}

func TestOfferBook_RestoreAcceptedOffer_RecreditsClaims(t *testing.T) {
	// Rebuilding a book from stored offers must reproduce claim balances
	// for already-accepted offers.

	book, _ := trade.NewOfferBook(fundableShipment(1000))
	book.Restore(trade.FundingOffer{
		ID:              "offer-1",
		Shipment:        "0xdeadbeef",
		Investor:        "investor-1",
		Amount:          trade.NewAmount(200),
		InterestRateBps: 500,
		Accepted:        true,
	})

	if got := book.ClaimBalance("investor-1"); !got.Equal(trade.NewAmount(210)) {
		t.Errorf("restored claim balance = %s, want 210", got)
	}
}

func TestOfferBook_SetClaimBalances_OverwritesWithAuthoritativeRead(t *testing.T) {
	book, _ := trade.NewOfferBook(fundableShipment(1000))
	book.Restore(trade.FundingOffer{
		ID: "offer-1", Shipment: "0xdeadbeef", Investor: "investor-1",
		Amount: trade.NewAmount(200), InterestRateBps: 500, Accepted: true,
	})

	book.SetClaimBalances(map[trade.AccountID]trade.Amount{
		"investor-1": trade.NewAmount(110), // partially redeemed on ledger
	})
	if got := book.ClaimBalance("investor-1"); !got.Equal(trade.NewAmount(110)) {
		t.Errorf("claim balance = %s, want 110", got)
	}
}
