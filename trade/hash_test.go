package trade_test

import (
	"strings"
	"testing"

	"github.com/willitship/trade-engine/trade"
)

func TestHashShipmentData_DeterministicAcrossKeyOrder(t *testing.T) {
	// GIVEN: The same shipment payload built in different field orders
	// THEN: The canonical hash is identical

	a := map[string]any{
		"blNumber":      "BL-001",
		"carrier":       "0xCAR",
		"seller":        "0xSEL",
		"buyer":         "0xBUY",
		"declaredValue": "1000",
	}
	b := map[string]any{
		"declaredValue": "1000",
		"buyer":         "0xBUY",
		"seller":        "0xSEL",
		"carrier":       "0xCAR",
		"blNumber":      "BL-001",
	}

	ha, err := trade.HashShipmentData(a)
	if err != nil {
		t.Fatalf("HashShipmentData(a): %v", err)
	}
	hb, err := trade.HashShipmentData(b)
	if err != nil {
		t.Fatalf("HashShipmentData(b): %v", err)
	}
	if ha != hb {
		t.Errorf("hashes differ for identical content: %s vs %s", ha, hb)
	}
}

func TestHashShipmentData_DistinctContentDistinctHash(t *testing.T) {
	ha, _ := trade.HashShipmentData(map[string]any{"blNumber": "BL-001"})
	hb, _ := trade.HashShipmentData(map[string]any{"blNumber": "BL-002"})
	if ha == hb {
		t.Error("different content produced the same hash")
	}
}

func TestHashShipmentData_Format(t *testing.T) {
	h, err := trade.HashShipmentData(map[string]any{"blNumber": "BL-001"})
	if err != nil {
		t.Fatalf("HashShipmentData: %v", err)
	}
	// keccak256 digest: 0x prefix plus 64 hex chars
	if !strings.HasPrefix(string(h), "0x") || len(h) != 66 {
		t.Errorf("unexpected hash format: %q (len %d)", h, len(h))
	}
}

func TestHashShipmentData_EmptyFieldsDoNotChangeIdentity(t *testing.T) {
	// Empty strings and nils are stripped before hashing, so a payload
	// with and without blank optional fields is the same document.

	ha, _ := trade.HashShipmentData(map[string]any{"blNumber": "BL-001", "notes": ""})
	hb, _ := trade.HashShipmentData(map[string]any{"blNumber": "BL-001"})
	if ha != hb {
		t.Errorf("blank optional field changed the hash: %s vs %s", ha, hb)
	}
}
