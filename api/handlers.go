/*
handlers.go - HTTP API handlers for the shipment funding engine

PURPOSE:
  Exposes the orchestration engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Shipments:
    GET    /api/shipments              List all shipments
    POST   /api/shipments              Register a bill of lading
    GET    /api/shipments/{hash}       Get shipment details
    POST   /api/shipments/upload       Attach a document reference

  Actions:
    POST   /api/shipments/{hash}/enable-funding  Seller opens funding
    POST   /api/shipments/{hash}/fund            Investor funds directly
    POST   /api/shipments/{hash}/pay             Buyer pays declared value
    POST   /api/shipments/{hash}/mark-received   Buyer confirms arrival
    POST   /api/shipments/{hash}/redeem          Holder redeems claims

  Offers:
    GET    /api/offers?shipment=HASH   List offers for a shipment
    POST   /api/offers                 Post a funding offer
    POST   /api/offers/{id}/accept     Seller accepts an offer

  Wallets:
    GET    /api/wallets                Role wallets with live balances

REQUEST FLOW:
  1. Parse HTTP request
  2. Delegate to the orchestration engine (validate -> submit -> confirm)
  3. Serialize the action result
  4. Map classified failures onto HTTP statuses

ERROR HANDLING:
  Failed actions carry a classified error kind; the kind decides the
  HTTP status:
  - 400: Insufficient balance/allowance, capacity, funding gate
  - 403: Caller is not the required role
  - 404: Unknown shipment or offer
  - 409: Already accepted, already settled, nonce conflict
  - 202: Indeterminate (submitted, confirmation timed out)
  - 500: Unclassified failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - orchestrator/engine.go: The operations behind each endpoint
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/willitship/trade-engine/ledger"
	"github.com/willitship/trade-engine/orchestrator"
	"github.com/willitship/trade-engine/trade"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Wallet is a named role account exposed by the wallets endpoint.
type Wallet struct {
	ID      string
	Label   string
	Address trade.AccountID
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *orchestrator.Engine
	Querier ledger.Querier
	Wallets []Wallet
}

// NewHandler creates a new handler over the engine.
func NewHandler(engine *orchestrator.Engine, wallets []Wallet) *Handler {
	return &Handler{
		Engine:  engine,
		Querier: engine.Ledger,
		Wallets: wallets,
	}
}

// =============================================================================
// SHIPMENT HANDLERS
// =============================================================================

// ListShipments returns all cached shipment views, newest first.
func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	views := h.Engine.Reconciler.List()

	dtos := make([]ShipmentDTO, len(views))
	for i, v := range views {
		dtos[i] = toShipmentDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetShipment returns a single shipment, refreshing from the ledger.
func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	hash := trade.BoLHash(chi.URLParam(r, "hash"))

	view, err := h.Engine.Reconciler.Refresh(r.Context(), hash)
	if err != nil {
		if errors.Is(err, trade.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Shipment not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load shipment", err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentDTO(view))
}

// RegisterShipment hashes and registers a bill of lading. Re-registering
// identical content returns the existing record.
func (h *Handler) RegisterShipment(w http.ResponseWriter, r *http.Request) {
	var req RegisterShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.BlNumber == "" || req.Carrier == "" || req.Seller == "" || req.Buyer == "" {
		writeError(w, http.StatusBadRequest, "blNumber, carrier, seller, and buyer are required", nil)
		return
	}
	declared, err := trade.ParseAmount(req.DeclaredValue)
	if err != nil || !declared.IsPositive() {
		writeError(w, http.StatusBadRequest, "declaredValue must be a positive decimal string", err)
		return
	}

	// The canonical payload decides the shipment identity. Extra detail
	// fields participate so distinct documents never collide.
	payload := map[string]any{
		"blNumber":      req.BlNumber,
		"carrier":       req.Carrier,
		"seller":        req.Seller,
		"buyer":         req.Buyer,
		"declaredValue": req.DeclaredValue,
	}
	for k, v := range req.Details {
		payload[k] = v
	}

	res, shipment, err := h.Engine.Register(r.Context(), orchestrator.RegisterInput{
		Data:          payload,
		BLNumber:      req.BlNumber,
		DeclaredValue: declared,
		Carrier:       trade.AccountID(req.Carrier),
		Seller:        trade.AccountID(req.Seller),
		Buyer:         trade.AccountID(req.Buyer),
		CarrierName:   req.CarrierName,
		SellerName:    req.SellerName,
		BuyerName:     req.BuyerName,
		DocumentURL:   req.DocumentURL,
	})
	if err != nil || !res.Confirmed() {
		// Indeterminate registrations surface as 202 with the submission
		// ref; the shipment lists once the confirmation is observed.
		writeActionFailure(w, res)
		return
	}

	view, ok := h.Engine.Reconciler.Get(shipment.Hash)
	if !ok {
		stage, _ := shipment.Stage()
		view = &orchestrator.ShipmentView{Shipment: *shipment, Stage: stage}
	}
	writeJSON(w, http.StatusCreated, RegisterShipmentResponse{
		Shipment: toShipmentDTO(view),
		Result:   toActionResultDTO(res),
	})
}

// AttachDocument stores a document reference against a shipment.
func (h *Handler) AttachDocument(w http.ResponseWriter, r *http.Request) {
	var req AttachDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.BolHash == "" || req.DocumentURL == "" {
		writeError(w, http.StatusBadRequest, "bolHash and documentUrl are required", nil)
		return
	}

	err := h.Engine.Store.AttachDocument(r.Context(), trade.BoLHash(req.BolHash), req.DocumentURL)
	if err != nil {
		if errors.Is(err, trade.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Shipment not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to attach document", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"bolHash":     req.BolHash,
		"documentUrl": req.DocumentURL,
	})
}

// =============================================================================
// ACTION HANDLERS
// =============================================================================

// EnableFunding opens the shipment for funding. Seller only.
func (h *Handler) EnableFunding(w http.ResponseWriter, r *http.Request) {
	hash := trade.BoLHash(chi.URLParam(r, "hash"))

	var req EnableFundingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res := h.Engine.EnableFunding(r.Context(), hash, trade.AccountID(req.Caller))
	writeActionResult(w, res)
}

// Fund moves direct funding from the investor to the seller.
func (h *Handler) Fund(w http.ResponseWriter, r *http.Request) {
	hash := trade.BoLHash(chi.URLParam(r, "hash"))

	var req FundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := trade.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal string", err)
		return
	}

	res := h.Engine.Fund(r.Context(), hash, trade.AccountID(req.Investor), amount)
	writeActionResult(w, res)
}

// Pay submits the buyer's exact-value payment.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	hash := trade.BoLHash(chi.URLParam(r, "hash"))

	var req PayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := trade.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal string", err)
		return
	}

	res := h.Engine.Pay(r.Context(), hash, trade.AccountID(req.Buyer), amount)
	writeActionResult(w, res)
}

// MarkReceived records the buyer's arrival confirmation.
func (h *Handler) MarkReceived(w http.ResponseWriter, r *http.Request) {
	hash := trade.BoLHash(chi.URLParam(r, "hash"))

	var req MarkReceivedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res := h.Engine.MarkReceived(r.Context(), hash, trade.AccountID(req.Buyer))
	writeActionResult(w, res)
}

// Redeem converts claim tokens into repaid funds.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	hash := trade.BoLHash(chi.URLParam(r, "hash"))

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := trade.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal string", err)
		return
	}

	res := h.Engine.Redeem(r.Context(), hash, trade.AccountID(req.Holder), amount)
	writeActionResult(w, res)
}

// =============================================================================
// OFFER HANDLERS
// =============================================================================

// ListOffers returns the offers for a shipment, submission order.
func (h *Handler) ListOffers(w http.ResponseWriter, r *http.Request) {
	hash := trade.BoLHash(r.URL.Query().Get("shipment"))
	if hash == "" {
		writeError(w, http.StatusBadRequest, "shipment query parameter is required", nil)
		return
	}

	offers, err := h.Engine.Store.ListOffers(r.Context(), hash)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list offers", err)
		return
	}

	dtos := make([]OfferDTO, len(offers))
	for i, o := range offers {
		dtos[i] = toOfferDTO(*o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateOffer posts an interest-bearing funding offer.
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req CreateOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := trade.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a decimal string", err)
		return
	}

	id, res := h.Engine.CreateOffer(r.Context(), trade.BoLHash(req.BolHash),
		trade.AccountID(req.Investor), amount, req.InterestRateBps)
	if !res.Confirmed() {
		writeActionFailure(w, res)
		return
	}
	writeJSON(w, http.StatusCreated, CreateOfferResponse{
		OfferID: string(id),
		Result:  toActionResultDTO(res),
	})
}

// AcceptOffer accepts a pending offer, crediting the investor's claims.
func (h *Handler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	id := trade.OfferID(chi.URLParam(r, "id"))

	var req AcceptOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	offer, err := h.Engine.Store.GetOffer(r.Context(), id)
	if err != nil {
		if errors.Is(err, trade.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Offer not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load offer", err)
		return
	}

	res := h.Engine.AcceptOffer(r.Context(), offer.Shipment, trade.AccountID(req.Caller), id)
	writeActionResult(w, res)
}

// =============================================================================
// WALLET HANDLERS
// =============================================================================

// ListWallets returns the configured role wallets with live balances.
func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dtos := make([]WalletDTO, len(h.Wallets))
	for i, wallet := range h.Wallets {
		native, err := h.Querier.ReadNativeBalance(ctx, wallet.Address)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read native balance", err)
			return
		}
		tokens, err := h.Querier.ReadBalance(ctx, wallet.Address)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read token balance", err)
			return
		}
		dtos[i] = WalletDTO{
			ID:            wallet.ID,
			Label:         wallet.Label,
			Address:       string(wallet.Address),
			NativeBalance: native.String(),
			TokenBalance:  tokens.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// writeActionResult maps an action outcome onto HTTP: 200 for confirmed,
// 202 for indeterminate, classified status for failures.
func writeActionResult(w http.ResponseWriter, res orchestrator.ActionResult) {
	switch res.Status {
	case orchestrator.StatusConfirmed:
		writeJSON(w, http.StatusOK, toActionResultDTO(res))
	case orchestrator.StatusIndeterminate:
		writeJSON(w, http.StatusAccepted, toActionResultDTO(res))
	default:
		writeActionFailure(w, res)
	}
}

func writeActionFailure(w http.ResponseWriter, res orchestrator.ActionResult) {
	if res.Status == orchestrator.StatusIndeterminate {
		writeJSON(w, http.StatusAccepted, toActionResultDTO(res))
		return
	}
	writeJSON(w, statusForKind(res.Kind), ErrorResponse{
		Error: res.Detail,
		Kind:  string(res.Kind),
	})
}

// statusForKind maps classified failure kinds onto HTTP statuses.
func statusForKind(kind trade.ErrorKind) int {
	switch kind {
	case trade.KindUnauthorized:
		return http.StatusForbidden
	case trade.KindNotFound:
		return http.StatusNotFound
	case trade.KindAlreadyAccepted, trade.KindAlreadySettled, trade.KindNonceConflict:
		return http.StatusConflict
	case trade.KindInsufficientAllowance, trade.KindInsufficientBalance,
		trade.KindExceedsDeclaredValue, trade.KindFundingNotEnabled:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
