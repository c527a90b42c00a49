/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Shipments:
    ShipmentDTO, RegisterShipmentRequest, AttachDocumentRequest

  Offers:
    OfferDTO, CreateOfferRequest, AcceptOfferRequest

  Actions:
    ActionResultDTO, EnableFundingRequest, FundRequest, PayRequest,
    MarkReceivedRequest, RedeemRequest

  Wallets:
    WalletDTO

VALIDATION:
  Validation is done in handlers and the orchestrator, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - orchestrator/engine.go: The operations these map onto
*/
package api

import (
	"time"

	"github.com/willitship/trade-engine/orchestrator"
	"github.com/willitship/trade-engine/trade"
)

// =============================================================================
// SHIPMENT TYPES
// =============================================================================

// ShipmentDTO represents a shipment in API responses. Monetary values are
// decimal strings; lifecycle timestamps are RFC3339 or absent.
type ShipmentDTO struct {
	BolHash         string `json:"bolHash"`
	ContractAddress string `json:"contractAddress"`
	BlNumber        string `json:"blNumber"`

	Carrier string `json:"carrier"`
	Seller  string `json:"seller"`
	Buyer   string `json:"buyer"`

	CarrierName string `json:"carrierName,omitempty"`
	SellerName  string `json:"sellerName,omitempty"`
	BuyerName   string `json:"buyerName,omitempty"`

	DeclaredValue     string `json:"declaredValue"`
	TotalFunded       string `json:"totalFunded"`
	TotalPaid         string `json:"totalPaid"`
	TotalRepaid       string `json:"totalRepaid"`
	RemainingCapacity string `json:"remainingCapacity"`

	Stage          string `json:"stage"`
	FundingEnabled bool   `json:"fundingEnabled"`
	Settled        bool   `json:"settled"`
	Provisional    bool   `json:"provisional,omitempty"`

	MintedAt         *string `json:"mintedAt,omitempty"`
	FundingEnabledAt *string `json:"fundingEnabledAt,omitempty"`
	ArrivedAt        *string `json:"arrivedAt,omitempty"`
	PaidAt           *string `json:"paidAt,omitempty"`
	SettledAt        *string `json:"settledAt,omitempty"`

	DocumentURL string `json:"documentUrl,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// RegisterShipmentRequest registers a bill of lading. The hashed identity
// is derived from the canonical fields, so registering the same shipment
// twice is idempotent.
type RegisterShipmentRequest struct {
	BlNumber      string `json:"blNumber"`
	DeclaredValue string `json:"declaredValue"`

	Carrier string `json:"carrier"`
	Seller  string `json:"seller"`
	Buyer   string `json:"buyer"`

	CarrierName string `json:"carrierName,omitempty"`
	SellerName  string `json:"sellerName,omitempty"`
	BuyerName   string `json:"buyerName,omitempty"`

	DocumentURL string `json:"documentUrl,omitempty"`

	// Details carries any extra bill-of-lading fields. They participate
	// in the canonical hash but are not stored individually.
	Details map[string]any `json:"details,omitempty"`
}

// RegisterShipmentResponse pairs the created record with the submission
// outcome.
type RegisterShipmentResponse struct {
	Shipment ShipmentDTO     `json:"shipment"`
	Result   ActionResultDTO `json:"result"`
}

// AttachDocumentRequest stores a document reference for a shipment.
type AttachDocumentRequest struct {
	BolHash     string `json:"bolHash"`
	DocumentURL string `json:"documentUrl"`
}

// =============================================================================
// OFFER TYPES
// =============================================================================

// OfferDTO represents a funding offer in API responses.
type OfferDTO struct {
	ID              string `json:"id"`
	BolHash         string `json:"bolHash"`
	Investor        string `json:"investor"`
	Amount          string `json:"amount"`
	InterestRateBps int64  `json:"interestRateBps"`
	ClaimTokens     string `json:"claimTokens"`
	Accepted        bool   `json:"accepted"`
	CreatedAt       string `json:"createdAt,omitempty"`
}

// CreateOfferRequest posts an interest-bearing funding offer.
type CreateOfferRequest struct {
	BolHash         string `json:"bolHash"`
	Investor        string `json:"investor"`
	Amount          string `json:"amount"`
	InterestRateBps int64  `json:"interestRateBps"`
}

// CreateOfferResponse pairs the created offer id with the submission
// outcome.
type CreateOfferResponse struct {
	OfferID string          `json:"offerId"`
	Result  ActionResultDTO `json:"result"`
}

// AcceptOfferRequest accepts a pending offer. Caller must be the seller.
type AcceptOfferRequest struct {
	Caller string `json:"caller"`
}

// =============================================================================
// ACTION TYPES
// =============================================================================

// ActionResultDTO is the outcome of any orchestrated operation:
// confirmed, failed (with a classified kind), or indeterminate.
type ActionResultDTO struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	Confirmations int    `json:"confirmations,omitempty"`
	ErrorKind     string `json:"errorKind,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

// EnableFundingRequest opens a shipment for funding. Seller only.
type EnableFundingRequest struct {
	Caller string `json:"caller"`
}

// FundRequest moves direct (non-offer) funding from the investor.
type FundRequest struct {
	Investor string `json:"investor"`
	Amount   string `json:"amount"`
}

// PayRequest submits the buyer's payment of the exact declared value.
type PayRequest struct {
	Buyer  string `json:"buyer"`
	Amount string `json:"amount"`
}

// MarkReceivedRequest records the buyer's arrival confirmation.
type MarkReceivedRequest struct {
	Buyer string `json:"buyer"`
}

// RedeemRequest converts claim tokens into repaid funds.
type RedeemRequest struct {
	Holder string `json:"holder"`
	Amount string `json:"amount"`
}

// =============================================================================
// WALLET TYPES
// =============================================================================

// WalletDTO represents a role wallet with live ledger balances.
type WalletDTO struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	Address       string `json:"address"`
	NativeBalance string `json:"nativeBalance"`
	TokenBalance  string `json:"tokenBalance"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toShipmentDTO(view *orchestrator.ShipmentView) ShipmentDTO {
	s := view.Shipment
	return ShipmentDTO{
		BolHash:           string(s.Hash),
		ContractAddress:   string(s.Contract),
		BlNumber:          s.BLNumber,
		Carrier:           string(s.Carrier),
		Seller:            string(s.Seller),
		Buyer:             string(s.Buyer),
		CarrierName:       s.CarrierName,
		SellerName:        s.SellerName,
		BuyerName:         s.BuyerName,
		DeclaredValue:     s.DeclaredValue.String(),
		TotalFunded:       s.TotalFunded.String(),
		TotalPaid:         s.TotalPaid.String(),
		TotalRepaid:       s.TotalRepaid.String(),
		RemainingCapacity: s.RemainingCapacity().String(),
		Stage:             string(view.Stage),
		FundingEnabled:    s.FundingEnabled(),
		Settled:           s.SettledAt != nil,
		Provisional:       view.Provisional,
		MintedAt:          formatStamp(s.MintedAt),
		FundingEnabledAt:  formatStamp(s.FundingEnabledAt),
		ArrivedAt:         formatStamp(s.ArrivedAt),
		PaidAt:            formatStamp(s.PaidAt),
		SettledAt:         formatStamp(s.SettledAt),
		DocumentURL:       s.DocumentURL,
		CreatedAt:         s.CreatedAt.Format(time.RFC3339),
	}
}

func toOfferDTO(o trade.FundingOffer) OfferDTO {
	return OfferDTO{
		ID:              string(o.ID),
		BolHash:         string(o.Shipment),
		Investor:        string(o.Investor),
		Amount:          o.Amount.String(),
		InterestRateBps: o.InterestRateBps,
		ClaimTokens:     o.ClaimTokens().String(),
		Accepted:        o.Accepted,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
	}
}

func toActionResultDTO(res orchestrator.ActionResult) ActionResultDTO {
	return ActionResultDTO{
		Status:        string(res.Status),
		TransactionID: string(res.Ref),
		Confirmations: res.Confirmations,
		ErrorKind:     string(res.Kind),
		Detail:        res.Detail,
	}
}

func formatStamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
