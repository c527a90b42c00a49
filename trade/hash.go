/*
hash.go - Content-derived shipment identity

PURPOSE:
  Computes the BoL hash: a keccak256 digest over the canonical JSON form
  of the shipment data. Two registrations of byte-identical shipment data
  always produce the same hash, which is what makes the hash usable as a
  correlation id between the local cache and the ledger.

CANONICAL FORM:
  - Object keys sorted lexicographically
  - Compact separators (no whitespace)
  - Nil values and empty strings stripped recursively

  Stripping empties keeps the hash stable when optional form fields are
  submitted as "" by one client and omitted by another.
*/
package trade

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// HashShipmentData derives the BoL hash from arbitrary shipment data.
// The input must be JSON-marshalable.
func HashShipmentData(data any) (BoLHash, error) {
	canonical, err := canonicalJSON(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize shipment data: %w", err)
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(canonical)
	return BoLHash("0x" + hex.EncodeToString(h.Sum(nil))), nil
}

// canonicalJSON marshals data into its canonical byte form. Round-tripping
// through a generic value sorts object keys (encoding/json sorts map keys)
// and lets us strip empties uniformly.
func canonicalJSON(data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	return json.Marshal(stripEmpty(generic))
}

func stripEmpty(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			cleaned := stripEmpty(item)
			if cleaned == nil || cleaned == "" {
				continue
			}
			out[k] = cleaned
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			cleaned := stripEmpty(item)
			if cleaned == nil || cleaned == "" {
				continue
			}
			out = append(out, cleaned)
		}
		return out
	default:
		return v
	}
}
