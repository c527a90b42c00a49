/*
engine.go - Orchestration facade

PURPOSE:
  The single entry point for shipment actions. Each method runs the same
  pipeline:

    validate preconditions -> coordinator approve/act/confirm ->
    on confirmed success, reconciler refresh

  Precondition failures short-circuit with a classified failed result
  and never consume a ledger operation. Raw ledger failures come back
  already classified by the coordinator.

ACTIONS:
  Register      carrier registers a shipment (stamps mintedAt)
  EnableFunding seller opens the shipment for funding
  Fund          investor funds directly (no interest)
  CreateOffer   investor posts an interest-bearing offer
  AcceptOffer   seller accepts, crediting claim tokens
  Pay           buyer pays the declared value exactly
  MarkReceived  buyer confirms arrival
  Redeem        claim holder redeems against repaid funds

SEE ALSO:
  - validate.go, coordinator.go, reconcile.go: the pipeline stages
*/
package orchestrator

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/willitship/trade-engine/ledger"
	"github.com/willitship/trade-engine/trade"
)

// Engine wires the validator, coordinator, and reconciler over one
// ledger and one store.
type Engine struct {
	Ledger      ledger.Ledger
	Store       ShipmentStore
	Validator   *Validator
	Coordinator *Coordinator
	Reconciler  *Reconciler
}

func NewEngine(l ledger.Ledger, store ShipmentStore) *Engine {
	return &Engine{
		Ledger:      l,
		Store:       store,
		Validator:   NewValidator(l),
		Coordinator: NewCoordinator(l),
		Reconciler:  NewReconciler(l, store),
	}
}

// =============================================================================
// REGISTRATION
// =============================================================================

// RegisterInput carries everything needed to register a shipment. Data is
// the full shipment payload; its canonical hash becomes the identity.
type RegisterInput struct {
	Data any

	BLNumber      string
	DeclaredValue trade.Amount

	Carrier trade.AccountID
	Seller  trade.AccountID
	Buyer   trade.AccountID

	CarrierName string
	SellerName  string
	BuyerName   string

	DocumentURL string
}

// Register hashes the shipment data, submits the registration, persists
// the record, and inserts an optimistic cache entry so the shipment
// lists immediately even before the query side indexes it.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (ActionResult, *trade.Shipment, error) {
	hash, err := trade.HashShipmentData(input.Data)
	if err != nil {
		return failedErr(err), nil, err
	}

	if existing, err := e.Store.GetShipment(ctx, hash); err == nil {
		// Same content, same hash: registration is idempotent.
		return ActionResult{Status: StatusConfirmed}, existing, nil
	} else if !errors.Is(err, trade.ErrNotFound) {
		return failedErr(err), nil, err
	}

	res := e.Coordinator.Execute(ctx, ExecRequest{
		Op: ledger.OpCreateBoL,
		Args: ledger.Args{
			Account:       input.Carrier,
			Shipment:      hash,
			DeclaredValue: input.DeclaredValue,
			Seller:        input.Seller,
			Buyer:         input.Buyer,
			BLNumber:      input.BLNumber,
		},
	})
	if res.Status == StatusFailed && res.Kind == trade.KindAlreadyAccepted {
		// The hash is content-derived, so an on-ledger record under it is
		// this same registration landing earlier. Resolve idempotently.
		res = ActionResult{Status: StatusConfirmed}
	}
	if res.Status == StatusFailed {
		return res, nil, res.Err()
	}

	now := time.Now().UTC()
	shipment := &trade.Shipment{
		Hash:          hash,
		Contract:      trade.AccountID(hash),
		BLNumber:      input.BLNumber,
		Carrier:       input.Carrier,
		Seller:        input.Seller,
		Buyer:         input.Buyer,
		CarrierName:   input.CarrierName,
		SellerName:    input.SellerName,
		BuyerName:     input.BuyerName,
		DeclaredValue: input.DeclaredValue,
		TotalFunded:   trade.ZeroAmount(),
		TotalPaid:     trade.ZeroAmount(),
		TotalRepaid:   trade.ZeroAmount(),
		MintedAt:      &now,
		DocumentURL:   input.DocumentURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if res.Status == StatusIndeterminate {
		// The submission may still confirm. Remember the hash so the poll
		// picks the shipment up once it lands, and a content-identical
		// retry resolves from the store instead of re-submitting.
		if err := e.Store.SaveShipment(ctx, shipment); err != nil {
			log.Printf("[Engine] Persist indeterminate registration %s failed: %v", hash, err)
		}
		e.Reconciler.MergeOptimistic(*shipment)
		return res, shipment, nil
	}

	if err := e.Store.SaveShipment(ctx, shipment); err != nil {
		return failedErr(err), nil, err
	}
	e.Reconciler.MergeOptimistic(*shipment)
	return res, shipment, nil
}

// =============================================================================
// LIFECYCLE ACTIONS
// =============================================================================

// EnableFunding opens the shipment for funding. Seller only.
func (e *Engine) EnableFunding(ctx context.Context, hash trade.BoLHash, caller trade.AccountID) ActionResult {
	book, _, err := e.Reconciler.Snapshot(ctx, hash)
	if err != nil {
		return failedErr(err)
	}
	if err := e.Validator.EnableFunding(ctx, book, caller); err != nil {
		return failedErr(err)
	}

	res := e.Coordinator.Execute(ctx, ExecRequest{
		Op:   ledger.OpEnableFunding,
		Args: ledger.Args{Account: caller, Shipment: hash},
	})
	e.refreshAfter(ctx, hash, res)
	return res
}

// Fund moves direct (non-offer) funding from the investor to the seller.
func (e *Engine) Fund(ctx context.Context, hash trade.BoLHash, investor trade.AccountID, amount trade.Amount) ActionResult {
	book, _, err := e.Reconciler.Snapshot(ctx, hash)
	if err != nil {
		return failedErr(err)
	}
	if err := e.Validator.Fund(ctx, book, investor, amount); err != nil {
		return failedErr(err)
	}

	res := e.Coordinator.Execute(ctx, ExecRequest{
		Op:            ledger.OpFund,
		Args:          ledger.Args{Account: investor, Shipment: hash, Amount: amount},
		ApproveAmount: amount,
		Spender:       book.Shipment().Contract,
	})
	e.refreshAfter(ctx, hash, res)
	return res
}

// CreateOffer posts an interest-bearing funding offer. The offer id is
// assigned locally and echoed to the ledger so both sides agree on it.
func (e *Engine) CreateOffer(ctx context.Context, hash trade.BoLHash, investor trade.AccountID, amount trade.Amount, rateBps int64) (trade.OfferID, ActionResult) {
	book, _, err := e.Reconciler.Snapshot(ctx, hash)
	if err != nil {
		return "", failedErr(err)
	}
	if err := e.Validator.CreateOffer(ctx, book, investor, amount, rateBps); err != nil {
		return "", failedErr(err)
	}
	id, err := book.AddOffer(investor, amount, rateBps)
	if err != nil {
		return "", failedErr(err)
	}

	res := e.Coordinator.Execute(ctx, ExecRequest{
		Op: ledger.OpCreateOffer,
		Args: ledger.Args{
			Account:         investor,
			Shipment:        hash,
			Offer:           id,
			Amount:          amount,
			InterestRateBps: rateBps,
		},
		ApproveAmount: amount,
		Spender:       book.Shipment().Contract,
	})
	if !res.Confirmed() {
		return "", res
	}

	offer, _ := book.Get(id)
	if err := e.Store.SaveOffer(ctx, &offer); err != nil {
		log.Printf("[Engine] Persist offer %s failed: %v", id, err)
	}
	e.refreshAfter(ctx, hash, res)
	return id, res
}

// AcceptOffer confirms an offer on the ledger, then mirrors the
// acceptance locally (claim credit, totalFunded raise).
func (e *Engine) AcceptOffer(ctx context.Context, hash trade.BoLHash, caller trade.AccountID, id trade.OfferID) ActionResult {
	book, _, err := e.Reconciler.Snapshot(ctx, hash)
	if err != nil {
		return failedErr(err)
	}
	if err := e.Validator.AcceptOffer(ctx, book, caller, id); err != nil {
		return failedErr(err)
	}

	res := e.Coordinator.Execute(ctx, ExecRequest{
		Op:   ledger.OpAcceptOffer,
		Args: ledger.Args{Account: caller, Shipment: hash, Offer: id},
	})
	if !res.Confirmed() {
		return res
	}

	// Mirror the confirmed acceptance; the refresh below re-reads the
	// authoritative totals anyway.
	if _, err := book.Accept(id, caller); err == nil {
		if offer, ok := book.Get(id); ok {
			if err := e.Store.UpdateOffer(ctx, &offer); err != nil {
				log.Printf("[Engine] Persist acceptance of %s failed: %v", id, err)
			}
		}
	}
	e.refreshAfter(ctx, hash, res)
	return res
}

// Pay submits the buyer's exact-value payment.
func (e *Engine) Pay(ctx context.Context, hash trade.BoLHash, buyer trade.AccountID, amount trade.Amount) ActionResult {
	book, _, err := e.Reconciler.Snapshot(ctx, hash)
	if err != nil {
		return failedErr(err)
	}
	if err := e.Validator.Pay(ctx, book, buyer, amount); err != nil {
		return failedErr(err)
	}

	res := e.Coordinator.Execute(ctx, ExecRequest{
		Op:            ledger.OpPay,
		Args:          ledger.Args{Account: buyer, Shipment: hash, Amount: amount},
		ApproveAmount: amount,
		Spender:       book.Shipment().Contract,
	})
	e.refreshAfter(ctx, hash, res)
	return res
}

// MarkReceived records the buyer's arrival confirmation.
func (e *Engine) MarkReceived(ctx context.Context, hash trade.BoLHash, buyer trade.AccountID) ActionResult {
	book, _, err := e.Reconciler.Snapshot(ctx, hash)
	if err != nil {
		return failedErr(err)
	}
	if err := e.Validator.MarkReceived(ctx, book, buyer); err != nil {
		return failedErr(err)
	}

	res := e.Coordinator.Execute(ctx, ExecRequest{
		Op:   ledger.OpMarkReceived,
		Args: ledger.Args{Account: buyer, Shipment: hash},
	})
	e.refreshAfter(ctx, hash, res)
	return res
}

// Redeem converts a holder's claim tokens into repaid funds.
func (e *Engine) Redeem(ctx context.Context, hash trade.BoLHash, holder trade.AccountID, amount trade.Amount) ActionResult {
	book, _, err := e.Reconciler.Snapshot(ctx, hash)
	if err != nil {
		return failedErr(err)
	}
	if err := e.Validator.Redeem(ctx, book, holder, amount); err != nil {
		return failedErr(err)
	}

	res := e.Coordinator.Execute(ctx, ExecRequest{
		Op:   ledger.OpRedeem,
		Args: ledger.Args{Account: holder, Shipment: hash, Amount: amount},
	})
	e.refreshAfter(ctx, hash, res)
	return res
}

// refreshAfter refreshes the cache after a confirmed action. Refresh
// failures leave the cache stale until the next poll; they never undo a
// confirmed result.
func (e *Engine) refreshAfter(ctx context.Context, hash trade.BoLHash, res ActionResult) {
	if !res.Confirmed() {
		return
	}
	if _, err := e.Reconciler.Refresh(ctx, hash); err != nil {
		log.Printf("[Engine] Post-action refresh of %s failed: %v", hash, err)
	}
}
