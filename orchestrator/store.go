/*
store.go - Persistence interface consumed by the orchestration core

PURPOSE:
  The query/persistence collaborator: registered shipments, their
  offers, and attached document references. The core reads through and
  writes behind this interface; the ledger stays the source of truth
  for monetary state.

  Implementations: store/sqlite (production), plus whatever a test
  wants to fake.
*/
package orchestrator

import (
	"context"

	"github.com/willitship/trade-engine/trade"
)

// ShipmentStore persists shipment and offer records.
//
// Lookup methods return an error wrapping trade.ErrNotFound for unknown
// records.
type ShipmentStore interface {
	SaveShipment(ctx context.Context, s *trade.Shipment) error
	UpdateShipment(ctx context.Context, s *trade.Shipment) error
	GetShipment(ctx context.Context, hash trade.BoLHash) (*trade.Shipment, error)
	ListShipments(ctx context.Context) ([]*trade.Shipment, error)

	SaveOffer(ctx context.Context, o *trade.FundingOffer) error
	UpdateOffer(ctx context.Context, o *trade.FundingOffer) error
	GetOffer(ctx context.Context, id trade.OfferID) (*trade.FundingOffer, error)
	ListOffers(ctx context.Context, hash trade.BoLHash) ([]*trade.FundingOffer, error)

	// AttachDocument stores the document reference for a shipment.
	AttachDocument(ctx context.Context, hash trade.BoLHash, url string) error
}
