/*
coordinator.go - Approve/act/confirm transaction sequencing

PURPOSE:
  Executes the approve -> act -> confirm protocol for value-moving
  actions, with per-(account, shipment) serialization and a single
  bounded retry on ordering conflicts.

ALGORITHM (per value-moving request):
  1. Read the holder's current allowance (cached when warm).
  2. If short, submit approve(amount), await 1 confirmation, update the
     cached allowance.
  3. Submit the domain action and await confirmation.
  4. Confirmed: report success (the engine then triggers a refresh).
  5. Rejected: classify. NonceConflict waits a fixed backoff and retries
     the whole sequence exactly once; everything else is terminal.
  6. No confirmation within the timeout: report Indeterminate. The
     submission cannot be aborted and may still confirm later.

ORDERING GUARANTEES:
  - One in-flight sequence per (account, shipment) pair; later requests
    for the same pair queue behind the first, never interleave.
  - A supervising per-account lock ensures at most one in-flight
    submission per account, so approve/act pairs cannot race on the
    account's operation ordering. Distinct accounts and shipments
    proceed in parallel.

  Submissions additionally pass through a rate limiter so a burst of
  callers cannot flood the node.

SEE ALSO:
  - validate.go: Runs before Execute, never consumes a ledger op
  - ledger/classifier.go: Maps rejections onto the retry decision
*/
package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/willitship/trade-engine/ledger"
	"github.com/willitship/trade-engine/trade"
)

// Defaults for a locally-reachable ledger node.
const (
	DefaultConfirmations  = 1
	DefaultConfirmTimeout = 30 * time.Second
	DefaultNonceBackoff   = 500 * time.Millisecond

	// defaultSubmitRate caps submissions per second across all accounts.
	defaultSubmitRate  = 20
	defaultSubmitBurst = 20
)

// Coordinator sequences ledger submissions.
type Coordinator struct {
	Ledger ledger.Ledger

	Confirmations  int
	ConfirmTimeout time.Duration
	NonceBackoff   time.Duration

	limiter *rate.Limiter

	mu         sync.Mutex
	pairs      map[pairKey]*sync.Mutex
	accounts   map[trade.AccountID]*sync.Mutex
	allowances map[allowanceKey]trade.Amount
}

type pairKey struct {
	Account  trade.AccountID
	Shipment trade.BoLHash
}

type allowanceKey struct {
	Holder  trade.AccountID
	Spender trade.AccountID
}

// ExecRequest is one orchestrated action.
type ExecRequest struct {
	Op   ledger.Op
	Args ledger.Args

	// ApproveAmount, when positive, is the allowance the holder
	// (Args.Account) must have granted to Spender before the action.
	// The coordinator inserts the approve step if the allowance is short.
	ApproveAmount trade.Amount
	Spender       trade.AccountID
}

func NewCoordinator(l ledger.Ledger) *Coordinator {
	return &Coordinator{
		Ledger:         l,
		Confirmations:  DefaultConfirmations,
		ConfirmTimeout: DefaultConfirmTimeout,
		NonceBackoff:   DefaultNonceBackoff,
		limiter:        rate.NewLimiter(rate.Limit(defaultSubmitRate), defaultSubmitBurst),
		pairs:          make(map[pairKey]*sync.Mutex),
		accounts:       make(map[trade.AccountID]*sync.Mutex),
		allowances:     make(map[allowanceKey]trade.Amount),
	}
}

// Execute runs the full approve/act/confirm sequence for one request.
// It blocks while an earlier sequence for the same (account, shipment)
// pair is in flight.
func (c *Coordinator) Execute(ctx context.Context, req ExecRequest) ActionResult {
	pair := c.pairLock(req.Args.Account, req.Args.Shipment)
	pair.Lock()
	defer pair.Unlock()

	res := c.attempt(ctx, req)
	if res.Status == StatusFailed && res.Kind == trade.KindNonceConflict {
		select {
		case <-time.After(c.NonceBackoff):
		case <-ctx.Done():
			return failedErr(ctx.Err())
		}
		// Exactly one retry; a second conflict is surfaced.
		res = c.attempt(ctx, req)
	}
	return res
}

func (c *Coordinator) attempt(ctx context.Context, req ExecRequest) ActionResult {
	if req.ApproveAmount.IsPositive() && req.Spender != "" {
		if res, ok := c.ensureAllowance(ctx, req); !ok {
			return res
		}
	}

	res := c.submitAndAwait(ctx, req.Op, req.Args)
	if res.Confirmed() && req.ApproveAmount.IsPositive() && req.Spender != "" {
		c.consumeAllowance(req.Args.Account, req.Spender, req.Args.Amount)
	}
	return res
}

// ensureAllowance makes sure the holder's grant to the spender covers the
// request, inserting an approve submission when it is short. Returns
// ok=false with the result to surface when the sequence cannot continue.
func (c *Coordinator) ensureAllowance(ctx context.Context, req ExecRequest) (ActionResult, bool) {
	holder := req.Args.Account
	key := allowanceKey{Holder: holder, Spender: req.Spender}

	c.mu.Lock()
	allowance, cached := c.allowances[key]
	c.mu.Unlock()

	if !cached {
		read, err := c.Ledger.ReadAllowance(ctx, holder, req.Spender)
		if err != nil {
			return failed(ledger.Classify(err)), false
		}
		allowance = read
		c.mu.Lock()
		c.allowances[key] = read
		c.mu.Unlock()
	}

	if !req.ApproveAmount.GreaterThan(allowance) {
		return ActionResult{}, true
	}

	res := c.submitAndAwait(ctx, ledger.OpApprove, ledger.Args{
		Account:  holder,
		Shipment: req.Args.Shipment,
		Spender:  req.Spender,
		Amount:   req.ApproveAmount,
	})
	if !res.Confirmed() {
		return res, false
	}

	c.mu.Lock()
	c.allowances[key] = req.ApproveAmount
	c.mu.Unlock()
	return ActionResult{}, true
}

// consumeAllowance lowers the cached allowance after a confirmed
// value-moving action. Floored at zero; the ledger read is authoritative
// next time either way.
func (c *Coordinator) consumeAllowance(holder, spender trade.AccountID, amount trade.Amount) {
	key := allowanceKey{Holder: holder, Spender: spender}
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := c.allowances[key].Sub(amount)
	if remaining.IsNegative() {
		remaining = trade.ZeroAmount()
	}
	c.allowances[key] = remaining
}

// submitAndAwait sends one operation and waits for its confirmation,
// holding the account lock for the whole round trip so no second
// submission for the account can reorder against it.
func (c *Coordinator) submitAndAwait(ctx context.Context, op ledger.Op, args ledger.Args) ActionResult {
	acct := c.accountLock(args.Account)
	acct.Lock()
	defer acct.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return failedErr(err)
	}

	ref, err := c.Ledger.Submit(ctx, op, args)
	if err != nil {
		if ledger.IsCancellation(err) {
			return failedErr(err)
		}
		return failed(ledger.Classify(err))
	}

	// Once submitted the operation cannot be aborted; a timeout here is
	// Indeterminate, not failure.
	cctx, cancel := context.WithTimeout(ctx, c.ConfirmTimeout)
	defer cancel()

	receipt, err := c.Ledger.AwaitConfirmation(cctx, ref, c.Confirmations)
	if err != nil {
		if ledger.IsCancellation(err) {
			return indeterminate(ref)
		}
		return failed(ledger.Classify(err))
	}
	return confirmed(receipt)
}

func (c *Coordinator) pairLock(account trade.AccountID, shipment trade.BoLHash) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := pairKey{Account: account, Shipment: shipment}
	if _, ok := c.pairs[key]; !ok {
		c.pairs[key] = &sync.Mutex{}
	}
	return c.pairs[key]
}

func (c *Coordinator) accountLock(account trade.AccountID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.accounts[account]; !ok {
		c.accounts[account] = &sync.Mutex{}
	}
	return c.accounts[account]
}
