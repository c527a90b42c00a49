/*
memory.go - In-memory ledger (for testing/dev)

PURPOSE:
  A deterministic, in-process implementation of the Ledger interface that
  mirrors the escrow contract's rules: allowance-gated transfers, funding
  capacity, offer acceptance, pay and redeem. Operations apply
  synchronously at Submit and confirm immediately.

  Rejections use the same raw codes and reason texts a real node would
  produce, so the classifier is exercised end to end in tests and dev mode.

ACCOUNTS:
  Each shipment escrows funds under its own contract account (the BoL
  hash doubles as the account id). Seed balances with Mint/MintNative.
*/
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/willitship/trade-engine/trade"
)

// Memory is an in-memory Ledger.
type Memory struct {
	mu         sync.Mutex
	native     map[trade.AccountID]trade.Amount
	tokens     map[trade.AccountID]trade.Amount
	allowances map[allowanceKey]trade.Amount
	contracts  map[trade.BoLHash]*memContract
	receipts   map[SubmissionRef]time.Time
}

type allowanceKey struct {
	Holder  trade.AccountID
	Spender trade.AccountID
}

type memContract struct {
	declaredValue trade.Amount
	totalFunded   trade.Amount
	totalPaid     trade.Amount
	totalRepaid   trade.Amount

	fundingEnabled bool
	arrived        bool
	paid           bool
	settled        bool

	seller trade.AccountID
	buyer  trade.AccountID

	offers     map[trade.OfferID]*OfferState
	offerOrder []trade.OfferID
	claims     map[trade.AccountID]trade.Amount
}

func NewMemory() *Memory {
	return &Memory{
		native:     make(map[trade.AccountID]trade.Amount),
		tokens:     make(map[trade.AccountID]trade.Amount),
		allowances: make(map[allowanceKey]trade.Amount),
		contracts:  make(map[trade.BoLHash]*memContract),
		receipts:   make(map[SubmissionRef]time.Time),
	}
}

// Mint credits a holder's token balance. Test/dev seeding only.
func (m *Memory) Mint(holder trade.AccountID, amount trade.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[holder] = m.tokens[holder].Add(amount)
}

// MintNative credits a holder's native (gas) balance. Test/dev seeding only.
func (m *Memory) MintNative(holder trade.AccountID, amount trade.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.native[holder] = m.native[holder].Add(amount)
}

// =============================================================================
// QUERIER
// =============================================================================

func (m *Memory) ReadBalance(_ context.Context, holder trade.AccountID) (trade.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[holder], nil
}

func (m *Memory) ReadNativeBalance(_ context.Context, holder trade.AccountID) (trade.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.native[holder], nil
}

func (m *Memory) ReadAllowance(_ context.Context, holder, spender trade.AccountID) (trade.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowances[allowanceKey{Holder: holder, Spender: spender}], nil
}

func (m *Memory) ReadContractState(_ context.Context, shipment trade.BoLHash) (*ContractState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contracts[shipment]
	if !ok {
		return nil, fmt.Errorf("shipment %s: %w", shipment, trade.ErrNotFound)
	}

	state := &ContractState{
		DeclaredValue:  c.declaredValue,
		TotalFunded:    c.totalFunded,
		TotalPaid:      c.totalPaid,
		TotalRepaid:    c.totalRepaid,
		FundingEnabled: c.fundingEnabled,
		Arrived:        c.arrived,
		Paid:           c.paid,
		Settled:        c.settled,
		Seller:         c.seller,
		Buyer:          c.buyer,
		Claims:         make(map[trade.AccountID]trade.Amount, len(c.claims)),
	}
	for _, id := range c.offerOrder {
		state.Offers = append(state.Offers, *c.offers[id])
	}
	for holder, amount := range c.claims {
		state.Claims[holder] = amount
	}
	return state, nil
}

// =============================================================================
// SUBMITTER
// =============================================================================

// Submit applies the operation synchronously. A returned error is a
// *Rejection with the raw code/reason a node would produce.
func (m *Memory) Submit(_ context.Context, op Op, args Args) (SubmissionRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.apply(op, args); err != nil {
		return "", err
	}

	ref := SubmissionRef("0x" + uuid.NewString())
	m.receipts[ref] = time.Now().UTC()
	return ref, nil
}

func (m *Memory) AwaitConfirmation(_ context.Context, ref SubmissionRef, confirmations int) (*Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.receipts[ref]
	if !ok {
		return nil, fmt.Errorf("submission %s: %w", ref, trade.ErrNotFound)
	}
	return &Receipt{Ref: ref, Confirmations: confirmations, ConfirmedAt: at}, nil
}

// =============================================================================
// OPERATION SEMANTICS
// =============================================================================

func (m *Memory) apply(op Op, args Args) error {
	switch op {
	case OpCreateBoL:
		return m.createBoL(args)
	case OpApprove:
		m.allowances[allowanceKey{Holder: args.Account, Spender: args.Spender}] = args.Amount
		return nil
	case OpEnableFunding:
		return m.enableFunding(args)
	case OpFund:
		return m.fund(args)
	case OpCreateOffer:
		return m.createOffer(args)
	case OpAcceptOffer:
		return m.acceptOffer(args)
	case OpPay:
		return m.pay(args)
	case OpMarkReceived:
		return m.markReceived(args)
	case OpRedeem:
		return m.redeem(args)
	default:
		return &Rejection{Reason: fmt.Sprintf("unsupported operation %q", op)}
	}
}

func (m *Memory) contract(hash trade.BoLHash) (*memContract, error) {
	c, ok := m.contracts[hash]
	if !ok {
		return nil, &Rejection{Reason: "unknown BoL hash"}
	}
	return c, nil
}

func (m *Memory) createBoL(args Args) error {
	if _, ok := m.contracts[args.Shipment]; ok {
		return &Rejection{Reason: "BoL already exists"}
	}
	if !args.DeclaredValue.IsPositive() {
		return &Rejection{Reason: "declared value must be positive"}
	}
	m.contracts[args.Shipment] = &memContract{
		declaredValue: args.DeclaredValue,
		seller:        args.Seller,
		buyer:         args.Buyer,
		offers:        make(map[trade.OfferID]*OfferState),
		claims:        make(map[trade.AccountID]trade.Amount),
	}
	return nil
}

func (m *Memory) enableFunding(args Args) error {
	c, err := m.contract(args.Shipment)
	if err != nil {
		return err
	}
	if args.Account != c.seller {
		return &Rejection{Reason: "Not authorized: only seller may enable funding"}
	}
	if c.fundingEnabled {
		return &Rejection{Reason: "Funding already enabled"}
	}
	c.fundingEnabled = true
	return nil
}

// escrowAccount is the contract account holding a shipment's funds.
// The BoL hash doubles as the account id.
func escrowAccount(hash trade.BoLHash) trade.AccountID {
	return trade.AccountID(hash)
}

// transferVia moves amount from holder to dest through the shipment's
// escrow allowance.
func (m *Memory) transferVia(hash trade.BoLHash, holder, dest trade.AccountID, amount trade.Amount) error {
	key := allowanceKey{Holder: holder, Spender: escrowAccount(hash)}
	if amount.GreaterThan(m.allowances[key]) {
		return &Rejection{Code: "0xfb8f41b2", Reason: "ERC20InsufficientAllowance"}
	}
	if amount.GreaterThan(m.tokens[holder]) {
		return &Rejection{Code: "0xe450d38c", Reason: "ERC20: transfer amount exceeds balance"}
	}
	m.allowances[key] = m.allowances[key].Sub(amount)
	m.tokens[holder] = m.tokens[holder].Sub(amount)
	m.tokens[dest] = m.tokens[dest].Add(amount)
	return nil
}

func (m *Memory) fund(args Args) error {
	c, err := m.contract(args.Shipment)
	if err != nil {
		return err
	}
	if !c.fundingEnabled {
		return &Rejection{Reason: "Funding not enabled"}
	}
	if c.settled {
		return &Rejection{Reason: "Already settled"}
	}
	if c.totalFunded.Add(args.Amount).GreaterThan(c.declaredValue) {
		return &Rejection{Reason: "Exceeds declared value"}
	}
	if err := m.transferVia(args.Shipment, args.Account, c.seller, args.Amount); err != nil {
		return err
	}
	c.totalFunded = c.totalFunded.Add(args.Amount)
	c.totalPaid = c.totalPaid.Add(args.Amount)
	c.claims[args.Account] = c.claims[args.Account].Add(args.Amount)
	return nil
}

func (m *Memory) createOffer(args Args) error {
	c, err := m.contract(args.Shipment)
	if err != nil {
		return err
	}
	if !c.fundingEnabled {
		return &Rejection{Reason: "Funding not enabled"}
	}
	if c.settled {
		return &Rejection{Reason: "Already settled"}
	}
	if _, ok := c.offers[args.Offer]; ok {
		return &Rejection{Reason: "Offer already exists"}
	}
	c.offers[args.Offer] = &OfferState{
		ID:              args.Offer,
		Investor:        args.Account,
		Amount:          args.Amount,
		InterestRateBps: args.InterestRateBps,
	}
	c.offerOrder = append(c.offerOrder, args.Offer)
	return nil
}

func (m *Memory) acceptOffer(args Args) error {
	c, err := m.contract(args.Shipment)
	if err != nil {
		return err
	}
	if args.Account != c.seller {
		return &Rejection{Reason: "Not authorized: only seller may accept offers"}
	}
	offer, ok := c.offers[args.Offer]
	if !ok {
		return &Rejection{Reason: "Offer not found"}
	}
	if offer.Accepted {
		return &Rejection{Reason: "Offer already accepted"}
	}
	if !c.fundingEnabled {
		return &Rejection{Reason: "Funding not enabled"}
	}

	claim := trade.ClaimTokens(offer.Amount, offer.InterestRateBps)
	if c.totalFunded.Add(claim).GreaterThan(c.declaredValue) {
		return &Rejection{Reason: "Exceeds declared value"}
	}
	if err := m.transferVia(args.Shipment, offer.Investor, c.seller, offer.Amount); err != nil {
		return err
	}

	offer.Accepted = true
	c.totalFunded = c.totalFunded.Add(claim)
	c.totalPaid = c.totalPaid.Add(offer.Amount)
	c.claims[offer.Investor] = c.claims[offer.Investor].Add(claim)
	return nil
}

func (m *Memory) pay(args Args) error {
	c, err := m.contract(args.Shipment)
	if err != nil {
		return err
	}
	if args.Account != c.buyer {
		return &Rejection{Reason: "Not authorized: only buyer may pay"}
	}
	if c.settled {
		return &Rejection{Reason: "Already settled"}
	}
	if !c.fundingEnabled {
		return &Rejection{Reason: "Funding not enabled"}
	}
	if !args.Amount.Equal(c.declaredValue) {
		return &Rejection{Reason: "Payment must equal declared value"}
	}
	if err := m.transferVia(args.Shipment, args.Account, escrowAccount(args.Shipment), args.Amount); err != nil {
		return err
	}
	c.totalRepaid = c.totalRepaid.Add(args.Amount)
	c.paid = true
	return nil
}

func (m *Memory) markReceived(args Args) error {
	c, err := m.contract(args.Shipment)
	if err != nil {
		return err
	}
	if args.Account != c.buyer {
		return &Rejection{Reason: "Not authorized: only buyer may mark received"}
	}
	if c.settled {
		return &Rejection{Reason: "Already settled"}
	}
	c.arrived = true
	return nil
}

func (m *Memory) redeem(args Args) error {
	c, err := m.contract(args.Shipment)
	if err != nil {
		return err
	}
	if c.settled {
		return &Rejection{Reason: "Already settled"}
	}
	balance := c.claims[args.Account]
	if balance.IsZero() || args.Amount.GreaterThan(balance) {
		return &Rejection{Reason: "Nothing to redeem"}
	}
	if c.totalRepaid.IsZero() {
		return &Rejection{Reason: "Nothing to redeem: buyer has not paid"}
	}

	escrow := escrowAccount(args.Shipment)
	if args.Amount.GreaterThan(m.tokens[escrow]) {
		return &Rejection{Code: "0xe450d38c", Reason: "ERC20: transfer amount exceeds balance"}
	}
	m.tokens[escrow] = m.tokens[escrow].Sub(args.Amount)
	m.tokens[args.Account] = m.tokens[args.Account].Add(args.Amount)
	c.claims[args.Account] = balance.Sub(args.Amount)

	// Settlement: all credited claims redeemed after the buyer paid.
	if c.paid {
		outstanding := trade.ZeroAmount()
		for _, remaining := range c.claims {
			outstanding = outstanding.Add(remaining)
		}
		if outstanding.IsZero() {
			c.settled = true
		}
	}
	return nil
}
