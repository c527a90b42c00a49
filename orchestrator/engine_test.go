/*
engine_test.go - Registration outcome tests

PURPOSE:
  Pins the registration contract around non-confirmed submissions:
  1. An indeterminate registration is remembered (stored record plus
     provisional cache entry), never silently dropped
  2. Retrying identical content after an indeterminate outcome resolves
     from the store without a second ledger submission
  3. A duplicate-registration rejection resolves as idempotent success
     (the hash is content-derived, so the on-ledger record is this same
     registration)
*/
package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/willitship/trade-engine/ledger"
	"github.com/willitship/trade-engine/trade"
)

func registerInput() RegisterInput {
	return RegisterInput{
		Data:          map[string]any{"blNumber": "BL-001", "declaredValue": "1000"},
		BLNumber:      "BL-001",
		DeclaredValue: trade.NewAmount(1000),
		Carrier:       "0xcarrier",
		Seller:        "0xseller",
		Buyer:         "0xbuyer",
	}
}

func TestEngine_IndeterminateRegistration_RemembersShipment(t *testing.T) {
	// GIVEN: A registration whose confirmation never arrives
	// THEN: The result is indeterminate, the record is persisted, and a
	//       provisional cache entry lists the shipment

	f := &scriptedLedger{awaitBlocks: true}
	store := newMapStore()
	e := NewEngine(f, store)
	e.Coordinator.ConfirmTimeout = 10 * time.Millisecond

	res, shipment, err := e.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Status != StatusIndeterminate {
		t.Fatalf("status = %q, want indeterminate", res.Status)
	}
	if shipment == nil {
		t.Fatal("indeterminate registration should still return the record")
	}

	if _, err := store.GetShipment(context.Background(), shipment.Hash); err != nil {
		t.Errorf("record not persisted: %v", err)
	}
	view, ok := e.Reconciler.Get(shipment.Hash)
	if !ok || !view.Provisional {
		t.Errorf("expected a provisional cache entry, got %+v", view)
	}
}

func TestEngine_RetryAfterIndeterminate_ResolvesFromStore(t *testing.T) {
	// GIVEN: An indeterminate registration already on record
	// WHEN: The caller retries with identical content
	// THEN: The retry confirms from the store; no second submission

	f := &scriptedLedger{awaitBlocks: true}
	store := newMapStore()
	e := NewEngine(f, store)
	e.Coordinator.ConfirmTimeout = 10 * time.Millisecond

	first, shipment, err := e.Register(context.Background(), registerInput())
	if err != nil || first.Status != StatusIndeterminate {
		t.Fatalf("first Register = (%+v, %v), want indeterminate", first, err)
	}

	second, retried, err := e.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("retry Register: %v", err)
	}
	if !second.Confirmed() {
		t.Fatalf("retry status = %q, want confirmed", second.Status)
	}
	if retried.Hash != shipment.Hash {
		t.Errorf("retry hash = %s, want %s", retried.Hash, shipment.Hash)
	}
	if n := len(f.submittedOps()); n != 1 {
		t.Errorf("submissions = %d, want 1 (retry must not re-submit)", n)
	}
}

func TestEngine_DuplicateRegistrationRejection_IdempotentSuccess(t *testing.T) {
	// GIVEN: A ledger that already holds this exact registration
	// THEN: The duplicate rejection resolves as confirmed and the record
	//       is persisted locally

	f := &scriptedLedger{
		submitErrs: []error{&ledger.Rejection{Reason: "BoL already exists"}},
	}
	store := newMapStore()
	e := NewEngine(f, store)

	res, shipment, err := e.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !res.Confirmed() {
		t.Fatalf("status = %q, want confirmed", res.Status)
	}
	if shipment == nil {
		t.Fatal("expected the registered record")
	}
	if _, err := store.GetShipment(context.Background(), shipment.Hash); err != nil {
		t.Errorf("record not persisted: %v", err)
	}
}
