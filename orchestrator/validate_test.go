/*
validate_test.go - Precondition validator tests

PURPOSE:
  Pins the per-action precondition checks, in particular:
  1. Pay demands the exact declared value, no partial, no overpay
  2. Redeem demands a positive claim balance and a repaid shipment
  3. EnableFunding is seller-only, minted-only, zero-funded-only
*/
package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/willitship/trade-engine/ledger"
	"github.com/willitship/trade-engine/trade"
)

func testShipment(declared int64, enabled bool) *trade.Shipment {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	s := &trade.Shipment{
		Hash:          "0xb01",
		Contract:      "0xb01",
		BLNumber:      "BL-001",
		Carrier:       "0xcarrier",
		Seller:        "0xseller",
		Buyer:         "0xbuyer",
		DeclaredValue: trade.NewAmount(declared),
		TotalFunded:   trade.ZeroAmount(),
		TotalPaid:     trade.ZeroAmount(),
		TotalRepaid:   trade.ZeroAmount(),
		MintedAt:      &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if enabled {
		later := now.Add(time.Hour)
		s.FundingEnabledAt = &later
	}
	return s
}

func testBook(t *testing.T, s *trade.Shipment) *trade.OfferBook {
	t.Helper()
	book, err := trade.NewOfferBook(s)
	if err != nil {
		t.Fatalf("NewOfferBook: %v", err)
	}
	return book
}

func testValidator(seedTokens int64) *Validator {
	m := ledger.NewMemory()
	m.Mint("0xbuyer", trade.NewAmount(seedTokens))
	m.Mint("0xinvestor", trade.NewAmount(seedTokens))
	return NewValidator(m)
}

// =============================================================================
// PAY
// =============================================================================

func TestValidator_Pay_ExactDeclaredValueOnly(t *testing.T) {
	v := testValidator(10_000)
	ctx := context.Background()

	cases := []struct {
		name   string
		amount int64
		ok     bool
	}{
		{"exact value", 1000, true},
		{"partial payment", 900, false},
		{"overpayment", 1100, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			book := testBook(t, testShipment(1000, true))
			err := v.Pay(ctx, book, "0xbuyer", trade.NewAmount(tc.amount))
			if tc.ok && err != nil {
				t.Fatalf("Pay(%d) = %v, want nil", tc.amount, err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("Pay(%d) accepted, want rejection", tc.amount)
			}
		})
	}
}

func TestValidator_Pay_BuyerOnly(t *testing.T) {
	v := testValidator(10_000)
	book := testBook(t, testShipment(1000, true))

	err := v.Pay(context.Background(), book, "0xseller", trade.NewAmount(1000))
	if trade.KindOf(err) != trade.KindUnauthorized {
		t.Errorf("kind = %q, want unauthorized", trade.KindOf(err))
	}
}

func TestValidator_Pay_RequiresBuyerBalance(t *testing.T) {
	v := testValidator(100) // buyer holds less than declared value
	book := testBook(t, testShipment(1000, true))

	err := v.Pay(context.Background(), book, "0xbuyer", trade.NewAmount(1000))
	if trade.KindOf(err) != trade.KindInsufficientBalance {
		t.Errorf("kind = %q, want insufficient_balance", trade.KindOf(err))
	}
}

// =============================================================================
// REDEEM
// =============================================================================

func TestValidator_Redeem_NothingToRedeemBeatsRepaymentCheck(t *testing.T) {
	// A holder with zero claims gets "nothing to redeem" even when the
	// buyer has not repaid either.

	v := testValidator(10_000)
	book := testBook(t, testShipment(1000, true))

	err := v.Redeem(context.Background(), book, "0xinvestor", trade.NewAmount(100))
	if trade.KindOf(err) != trade.KindInsufficientBalance {
		t.Errorf("kind = %q, want insufficient_balance", trade.KindOf(err))
	}
}

func TestValidator_Redeem_RequiresRepayment(t *testing.T) {
	// GIVEN: A holder with claims on a shipment the buyer has not repaid
	// THEN: Redemption is rejected until totalRepaid is positive

	v := testValidator(10_000)
	s := testShipment(1000, true)
	book := testBook(t, s)
	if err := book.CreditDirect("0xinvestor", trade.NewAmount(500)); err != nil {
		t.Fatalf("CreditDirect: %v", err)
	}

	err := v.Redeem(context.Background(), book, "0xinvestor", trade.NewAmount(500))
	if trade.KindOf(err) != trade.KindInsufficientBalance {
		t.Errorf("kind = %q, want insufficient_balance (not repaid)", trade.KindOf(err))
	}

	s2 := testShipment(1000, true)
	s2.TotalRepaid = trade.NewAmount(1000)
	book2 := testBook(t, s2)
	if err := book2.CreditDirect("0xinvestor", trade.NewAmount(500)); err != nil {
		t.Fatalf("CreditDirect: %v", err)
	}
	if err := v.Redeem(context.Background(), book2, "0xinvestor", trade.NewAmount(500)); err != nil {
		t.Errorf("Redeem after repayment = %v, want nil", err)
	}
}

func TestValidator_Redeem_CappedAtClaimBalance(t *testing.T) {
	v := testValidator(10_000)
	s := testShipment(1000, true)
	s.TotalRepaid = trade.NewAmount(1000)
	book := testBook(t, s)
	if err := book.CreditDirect("0xinvestor", trade.NewAmount(300)); err != nil {
		t.Fatalf("CreditDirect: %v", err)
	}

	err := v.Redeem(context.Background(), book, "0xinvestor", trade.NewAmount(400))
	if trade.KindOf(err) != trade.KindInsufficientBalance {
		t.Errorf("kind = %q, want insufficient_balance", trade.KindOf(err))
	}
}

// =============================================================================
// ENABLE FUNDING
// =============================================================================

func TestValidator_EnableFunding_MintedSellerOnly(t *testing.T) {
	v := testValidator(10_000)
	ctx := context.Background()

	// Wrong caller
	book := testBook(t, testShipment(1000, false))
	if err := v.EnableFunding(ctx, book, "0xbuyer"); trade.KindOf(err) != trade.KindUnauthorized {
		t.Errorf("non-seller: kind = %q, want unauthorized", trade.KindOf(err))
	}

	// Correct caller at minted
	if err := v.EnableFunding(ctx, book, "0xseller"); err != nil {
		t.Errorf("seller at minted: %v, want nil", err)
	}

	// Already enabled
	enabled := testBook(t, testShipment(1000, true))
	if err := v.EnableFunding(ctx, enabled, "0xseller"); err == nil {
		t.Error("enabling twice should be rejected")
	}
}

// =============================================================================
// FUND / CREATE OFFER
// =============================================================================

func TestValidator_Fund_GatedOnFundingOpenAndCapacity(t *testing.T) {
	v := testValidator(10_000)
	ctx := context.Background()

	closed := testBook(t, testShipment(1000, false))
	err := v.Fund(ctx, closed, "0xinvestor", trade.NewAmount(100))
	if trade.KindOf(err) != trade.KindFundingNotEnabled {
		t.Errorf("closed: kind = %q, want funding_not_enabled", trade.KindOf(err))
	}

	open := testBook(t, testShipment(1000, true))
	err = v.Fund(ctx, open, "0xinvestor", trade.NewAmount(1500))
	if trade.KindOf(err) != trade.KindExceedsDeclaredValue {
		t.Errorf("over capacity: kind = %q, want exceeds_declared_value", trade.KindOf(err))
	}

	if err := v.Fund(ctx, open, "0xinvestor", trade.NewAmount(100)); err != nil {
		t.Errorf("valid fund: %v, want nil", err)
	}
}

func TestValidator_Fund_RequiresNativeReserve(t *testing.T) {
	// GIVEN: An investor with tokens but no native balance, and a
	//        validator enforcing a minimum native reserve
	// THEN: Funding is rejected until the native balance covers the reserve

	m := ledger.NewMemory()
	m.Mint("0xinvestor", trade.NewAmount(10_000))
	v := NewValidator(m)
	v.MinNativeReserve = trade.NewAmount(DefaultMinNativeReserve)

	book := testBook(t, testShipment(1000, true))
	err := v.Fund(context.Background(), book, "0xinvestor", trade.NewAmount(100))
	if trade.KindOf(err) != trade.KindInsufficientBalance {
		t.Errorf("no gas: kind = %q, want insufficient_balance", trade.KindOf(err))
	}

	m.MintNative("0xinvestor", trade.NewAmount(5))
	if err := v.Fund(context.Background(), book, "0xinvestor", trade.NewAmount(100)); err != nil {
		t.Errorf("funded gas: %v, want nil", err)
	}
}

func TestValidator_CreateOffer_AllowanceNotRequiredUpFront(t *testing.T) {
	// The validator only requires the balance; the coordinator schedules
	// the approve step when the allowance is short.

	v := testValidator(10_000)
	book := testBook(t, testShipment(1000, true))

	if err := v.CreateOffer(context.Background(), book, "0xinvestor", trade.NewAmount(500), 1000); err != nil {
		t.Errorf("CreateOffer with zero allowance = %v, want nil", err)
	}
}

func TestValidator_AcceptOffer_ChecksInvestorSideAtAcceptTime(t *testing.T) {
	// GIVEN: An offer whose investor has since granted an allowance below
	//        the principal
	// THEN: Acceptance is rejected as insufficient allowance

	m := ledger.NewMemory()
	m.Mint("0xinvestor", trade.NewAmount(10_000))
	v := NewValidator(m)

	book := testBook(t, testShipment(1000, true))
	id, err := book.AddOffer("0xinvestor", trade.NewAmount(500), 1000)
	if err != nil {
		t.Fatalf("AddOffer: %v", err)
	}

	err = v.AcceptOffer(context.Background(), book, "0xseller", id)
	if trade.KindOf(err) != trade.KindInsufficientAllowance {
		t.Errorf("kind = %q, want insufficient_allowance", trade.KindOf(err))
	}
}
