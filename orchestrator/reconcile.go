/*
reconcile.go - Ledger/cache reconciliation

PURPOSE:
  Keeps the local read cache of shipments and claim balances consistent
  with the ledger. Refresh re-reads authoritative state, stamps newly
  observed lifecycle transitions onto the record, persists it, and swaps
  the cached view atomically. A periodic poll covers anything post-action
  refreshes missed.

OPTIMISTIC ENTRIES:
  A just-registered shipment may not be visible from the query side yet.
  Callers insert a provisional view keyed by the BoL hash (the stable
  correlation id); the first refresh that sees the authoritative record
  for that hash supersedes it. Optimistic entries only provide list
  presence; they never contribute to authoritative totals.

CONCURRENCY:
  Views are immutable once published: a refresh builds a fresh view and
  replaces the map entry under the write lock (copy-then-swap), so
  readers always observe either the pre- or post-refresh snapshot.
  Concurrent refreshes of the same shipment are deduplicated with
  singleflight.

POLLING:
  One background goroutine with a single cancellable handle, started
  with Start and stopped with Stop. Poll failures are logged, not
  escalated; a stale cache between polls is acceptable.
*/
package orchestrator

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/willitship/trade-engine/ledger"
	"github.com/willitship/trade-engine/trade"
)

// DefaultPollInterval is how often the background poll refreshes every
// known shipment.
const DefaultPollInterval = 10 * time.Second

// ShipmentView is an immutable snapshot of one shipment's reconciled
// state. Fields are never mutated after publication.
type ShipmentView struct {
	Shipment trade.Shipment
	Stage    trade.Stage
	Offers   []trade.FundingOffer
	Claims   map[trade.AccountID]trade.Amount

	// Provisional marks an optimistic entry not yet confirmed by an
	// authoritative read.
	Provisional bool
	RefreshedAt time.Time
}

// Reconciler merges authoritative ledger reads into the local cache.
type Reconciler struct {
	Querier ledger.Querier
	Store   ShipmentStore

	Interval time.Duration
	now      func() time.Time

	group singleflight.Group

	mu         sync.RWMutex
	views      map[trade.BoLHash]*ShipmentView
	optimistic map[trade.BoLHash]*ShipmentView

	runMu  sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewReconciler(q ledger.Querier, store ShipmentStore) *Reconciler {
	return &Reconciler{
		Querier:    q,
		Store:      store,
		Interval:   DefaultPollInterval,
		now:        func() time.Time { return time.Now().UTC() },
		views:      make(map[trade.BoLHash]*ShipmentView),
		optimistic: make(map[trade.BoLHash]*ShipmentView),
	}
}

// =============================================================================
// REFRESH
// =============================================================================

// Refresh re-reads a shipment's authoritative state and replaces the
// cached view atomically. Refreshing twice with no intervening confirmed
// action yields identical cached state.
func (r *Reconciler) Refresh(ctx context.Context, hash trade.BoLHash) (*ShipmentView, error) {
	v, err, _ := r.group.Do(string(hash), func() (any, error) {
		return r.refresh(ctx, hash)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ShipmentView), nil
}

func (r *Reconciler) refresh(ctx context.Context, hash trade.BoLHash) (*ShipmentView, error) {
	record, err := r.Store.GetShipment(ctx, hash)
	if err != nil {
		return nil, err
	}

	state, err := r.Querier.ReadContractState(ctx, hash)
	if err != nil {
		return nil, err
	}

	r.mergeState(record, state)
	if err := r.Store.UpdateShipment(ctx, record); err != nil {
		return nil, err
	}

	offers, err := r.reconcileOffers(ctx, hash, state)
	if err != nil {
		return nil, err
	}

	stage, err := record.Stage()
	if err != nil {
		// Ordering violation in the merged record: fatal integrity
		// error, surfaced, never repaired here.
		return nil, err
	}

	claims := make(map[trade.AccountID]trade.Amount, len(state.Claims))
	for holder, amount := range state.Claims {
		claims[holder] = amount
	}

	view := &ShipmentView{
		Shipment:    *record,
		Stage:       stage,
		Offers:      offers,
		Claims:      claims,
		RefreshedAt: r.now(),
	}

	r.mu.Lock()
	r.views[hash] = view
	delete(r.optimistic, hash) // authoritative sight supersedes
	r.mu.Unlock()

	return view, nil
}

// mergeState copies authoritative monetary totals onto the record and
// stamps lifecycle timestamps for newly observed transitions. Timestamps
// are monotonic: once set they are never cleared or moved.
//
// The ledger's progression is authoritative: when a later flag is
// observed while an earlier stamp is still nil (payment can land before
// the buyer marks arrival), the earlier stamps are backfilled with the
// same observation time so the fill-order invariant holds. Records the
// reconciler did not write (store tampering, partial migrations) still
// surface integrity errors at stage derivation.
func (r *Reconciler) mergeState(record *trade.Shipment, state *ledger.ContractState) {
	record.DeclaredValue = state.DeclaredValue
	record.TotalFunded = state.TotalFunded
	record.TotalPaid = state.TotalPaid
	record.TotalRepaid = state.TotalRepaid

	now := r.now()
	flags := []struct {
		observed bool
		stamp    **time.Time
	}{
		{state.FundingEnabled, &record.FundingEnabledAt},
		{state.Arrived, &record.ArrivedAt},
		{state.Paid, &record.PaidAt},
		{state.Settled, &record.SettledAt},
	}

	furthest := -1
	for i, f := range flags {
		if f.observed {
			furthest = i
		}
	}
	for i := 0; i <= furthest; i++ {
		if *flags[i].stamp == nil {
			*flags[i].stamp = &now
		}
	}
	record.UpdatedAt = now
}

// reconcileOffers flips stored offers to accepted where the ledger says
// so, and records ledger offers the store has not seen.
func (r *Reconciler) reconcileOffers(ctx context.Context, hash trade.BoLHash, state *ledger.ContractState) ([]trade.FundingOffer, error) {
	stored, err := r.Store.ListOffers(ctx, hash)
	if err != nil {
		return nil, err
	}

	byID := make(map[trade.OfferID]*trade.FundingOffer, len(stored))
	for _, o := range stored {
		byID[o.ID] = o
	}

	for _, onLedger := range state.Offers {
		local, ok := byID[onLedger.ID]
		if !ok {
			o := &trade.FundingOffer{
				ID:              onLedger.ID,
				Shipment:        hash,
				Investor:        onLedger.Investor,
				Amount:          onLedger.Amount,
				InterestRateBps: onLedger.InterestRateBps,
				Accepted:        onLedger.Accepted,
				CreatedAt:       r.now(),
				UpdatedAt:       r.now(),
			}
			if err := r.Store.SaveOffer(ctx, o); err != nil {
				return nil, err
			}
			stored = append(stored, o)
			continue
		}
		// Acceptance is one-way; only false -> true is ever applied.
		if onLedger.Accepted && !local.Accepted {
			local.Accepted = true
			local.UpdatedAt = r.now()
			if err := r.Store.UpdateOffer(ctx, local); err != nil {
				return nil, err
			}
		}
	}

	out := make([]trade.FundingOffer, 0, len(stored))
	for _, o := range stored {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// OPTIMISTIC ENTRIES
// =============================================================================

// MergeOptimistic inserts a provisional entry for a shipment the query
// side has not indexed yet. No-op when an authoritative view exists.
func (r *Reconciler) MergeOptimistic(s trade.Shipment) {
	stage, err := s.Stage()
	if err != nil {
		stage = trade.StageMinted
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.views[s.Hash]; ok {
		return
	}
	r.optimistic[s.Hash] = &ShipmentView{
		Shipment:    s,
		Stage:       stage,
		Provisional: true,
		RefreshedAt: r.now(),
	}
}

// Get returns the cached view, preferring authoritative over optimistic.
func (r *Reconciler) Get(hash trade.BoLHash) (*ShipmentView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.views[hash]; ok {
		return v, true
	}
	if v, ok := r.optimistic[hash]; ok {
		return v, true
	}
	return nil, false
}

// List returns all cached views, newest first. Optimistic entries appear
// only until superseded by an authoritative read.
func (r *Reconciler) List() []*ShipmentView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ShipmentView, 0, len(r.views)+len(r.optimistic))
	for _, v := range r.views {
		out = append(out, v)
	}
	for _, v := range r.optimistic {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Shipment.CreatedAt.After(out[j].Shipment.CreatedAt)
	})
	return out
}

// =============================================================================
// SNAPSHOT -> OFFER BOOK
// =============================================================================

// Snapshot refreshes the shipment and rebuilds an OfferBook over the
// result, with claim balances set from the authoritative read.
func (r *Reconciler) Snapshot(ctx context.Context, hash trade.BoLHash) (*trade.OfferBook, *ShipmentView, error) {
	view, err := r.Refresh(ctx, hash)
	if err != nil {
		return nil, nil, err
	}

	record := view.Shipment
	book, err := trade.NewOfferBook(&record)
	if err != nil {
		return nil, nil, err
	}
	for _, offer := range view.Offers {
		book.Restore(offer)
	}
	book.SetClaimBalances(view.Claims)
	return book, view, nil
}

// =============================================================================
// POLLING
// =============================================================================

// Start launches the periodic poll. Safe to call once.
func (r *Reconciler) Start() {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if r.ticker != nil {
		return
	}
	r.ticker = time.NewTicker(r.Interval)
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.run()
	log.Printf("[Reconciler] Started with poll interval: %v", r.Interval)
}

// Stop cancels the periodic poll and waits for it to exit.
func (r *Reconciler) Stop() {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	close(r.stop)
	r.wg.Wait()
	r.ticker = nil
	log.Printf("[Reconciler] Stopped")
}

func (r *Reconciler) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ticker.C:
			r.pollOnce()
		case <-r.stop:
			return
		}
	}
}

func (r *Reconciler) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.Interval)
	defer cancel()

	shipments, err := r.Store.ListShipments(ctx)
	if err != nil {
		log.Printf("[Reconciler] List failed: %v", err)
		return
	}
	for _, s := range shipments {
		if _, err := r.Refresh(ctx, s.Hash); err != nil {
			log.Printf("[Reconciler] Refresh %s failed: %v", s.Hash, err)
		}
	}
}
