/*
stage.go - Shipment lifecycle stage derivation

PURPOSE:
  Derives the current lifecycle stage of a shipment from its nullable
  stage timestamps. The stage is never stored; it is a pure projection
  over timestamps maintained by confirmed ledger events.

LIFECYCLE (linear, no branches, no cycles):
  minted -> funding_enabled -> arrived -> paid -> settled

DERIVATION RULE:
  Scan from settled backward to minted; the current stage is the last
  stage whose timestamp is non-nil. A shipment with no timestamps at all
  is invalid (it cannot exist before registration stamps MintedAt).

INTEGRITY:
  A later timestamp set while an earlier one is nil is a fatal
  data-integrity error. It is surfaced, never silently repaired:
  the record came from the ledger or the store, and local code must
  not guess which side is wrong.

SEE ALSO:
  - types.go: Shipment and its timestamps
  - offers.go: Stage gating for offer creation
*/
package trade

import "time"

// Stage is a shipment's lifecycle stage.
type Stage string

const (
	StageMinted         Stage = "minted"
	StageFundingEnabled Stage = "funding_enabled"
	StageArrived        Stage = "arrived"
	StagePaid           Stage = "paid"
	StageSettled        Stage = "settled"
)

// stageOrder lists stages from first to last.
var stageOrder = []Stage{
	StageMinted,
	StageFundingEnabled,
	StageArrived,
	StagePaid,
	StageSettled,
}

// stampsInOrder returns the shipment's stage timestamps aligned with
// stageOrder.
func (s *Shipment) stampsInOrder() []*time.Time {
	return []*time.Time{
		s.MintedAt,
		s.FundingEnabledAt,
		s.ArrivedAt,
		s.PaidAt,
		s.SettledAt,
	}
}

// Stage derives the current lifecycle stage.
//
// Returns ErrNoStage if no timestamp is set (the record is malformed) and
// a StageIntegrityError if a later timestamp is set while an earlier one
// is nil.
func (s *Shipment) Stage() (Stage, error) {
	stamps := s.stampsInOrder()

	last := -1
	for i := len(stamps) - 1; i >= 0; i-- {
		if stamps[i] != nil {
			last = i
			break
		}
	}
	if last < 0 {
		return "", ErrNoStage
	}

	// Every stage up to and including the derived one must be stamped.
	for i := 0; i < last; i++ {
		if stamps[i] == nil {
			return "", &StageIntegrityError{
				Shipment: s.Hash,
				Set:      stageOrder[last],
				Missing:  stageOrder[i],
			}
		}
	}

	return stageOrder[last], nil
}

// Settled reports whether the shipment has reached its terminal stage.
func (s *Shipment) Settled() bool {
	return s.SettledAt != nil
}

// FundingOpen reports whether funding offers may be created at the given
// stage. Funding stays open after arrival and payment so late investors
// can still participate until settlement.
func FundingOpen(stage Stage) bool {
	switch stage {
	case StageFundingEnabled, StageArrived, StagePaid:
		return true
	default:
		return false
	}
}

// StageAtLeast reports whether stage has reached (or passed) want.
func StageAtLeast(stage, want Stage) bool {
	return stageIndex(stage) >= stageIndex(want)
}

func stageIndex(stage Stage) int {
	for i, s := range stageOrder {
		if s == stage {
			return i
		}
	}
	return -1
}
