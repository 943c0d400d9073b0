package handler

import (
	"time"

	"github.com/pi-escrow-ledger/internal/domain/escrow"
	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
)

// InitializePaymentRequest represents a buyer's request to pay for a listing.
// Amount is a decimal string in Pi.
type InitializePaymentRequest struct {
	Amount                 string `json:"amount" binding:"required"`
	BuyerID                string `json:"buyer_id" binding:"required"`
	SellerID               string `json:"seller_id" binding:"required"`
	ListingID              string `json:"listing_id" binding:"required"`
	TaxID                  string `json:"tax_id,omitempty"`
	MerchantVerificationID string `json:"merchant_verification_id,omitempty"`
}

// ConfirmationRequest carries the ledger transaction that settles a payment.
type ConfirmationRequest struct {
	ExternalTxID string `json:"external_tx_id" binding:"required"`
}

// CancelPaymentRequest represents a request to cancel an unsettled payment.
type CancelPaymentRequest struct {
	Actor  string `json:"actor" binding:"required"`
	Reason string `json:"reason"`
}

// ResolveDisputeRequest carries the support team's decision.
type ResolveDisputeRequest struct {
	Outcome string `json:"outcome" binding:"required,oneof=RELEASE_TO_SELLER REFUND_TO_BUYER"`
	Actor   string `json:"actor" binding:"required"`
	Reason  string `json:"reason"`
}

// ReleaseEscrowRequest represents a request to release escrowed funds to the seller.
type ReleaseEscrowRequest struct {
	ReleasedBy string `json:"released_by" binding:"required"`
}

// RaiseDisputeRequest represents a buyer or seller opening a dispute.
type RaiseDisputeRequest struct {
	PaymentID string `json:"payment_id" binding:"required,uuid"`
	RaisedBy  string `json:"raised_by" binding:"required"`
	Reason    string `json:"reason" binding:"required"`
}

// PaymentResponse represents a payment in API responses
type PaymentResponse struct {
	ID                string `json:"id"`
	Amount            string `json:"amount"`
	AmountEGP         string `json:"amount_egp"`
	Status            string `json:"status"`
	BuyerID           string `json:"buyer_id"`
	SellerID          string `json:"seller_id"`
	ListingID         string `json:"listing_id"`
	EscrowID          string `json:"escrow_id,omitempty"`
	ExternalTxID      string `json:"external_tx_id,omitempty"`
	EscrowReleaseDate string `json:"escrow_release_date,omitempty"`
	DisputeReason     string `json:"dispute_reason,omitempty"`
	Timezone          string `json:"timezone"`
	CompletedAt       string `json:"completed_at,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// DisputeResponse represents an escalated dispute.
type DisputeResponse struct {
	Status      string `json:"status"`
	TicketRef   string `json:"ticket_ref"`
	Reason      string `json:"reason"`
	RaisedBy    string `json:"raised_by"`
	RaisedAt    string `json:"raised_at"`
	EscalatedAt string `json:"escalated_at"`
}

// EscrowResponse represents an escrow in API responses
type EscrowResponse struct {
	ID                 string           `json:"id"`
	PaymentID          string           `json:"payment_id"`
	Amount             string           `json:"amount"`
	Status             string           `json:"status"`
	ReleaseDate        string           `json:"release_date"`
	IsReleased         bool             `json:"is_released"`
	ReleasedBy         string           `json:"released_by,omitempty"`
	ReleasedAt         string           `json:"released_at,omitempty"`
	DisputeWindowHours int              `json:"dispute_window_hours"`
	LegalReference     string           `json:"legal_reference"`
	Dispute            *DisputeResponse `json:"dispute,omitempty"`
	CreatedAt          string           `json:"created_at"`
}

// EscrowResultResponse pairs the payment and escrow after an escrow operation.
type EscrowResultResponse struct {
	Payment PaymentResponse `json:"payment"`
	Escrow  *EscrowResponse `json:"escrow,omitempty"`
}

// TransactionResponse represents a ledger transaction in API responses
type TransactionResponse struct {
	ID                 string                   `json:"id"`
	Type               string                   `json:"type"`
	Amount             string                   `json:"amount"`
	Status             string                   `json:"status"`
	PaymentID          string                   `json:"payment_id"`
	EscrowID           string                   `json:"escrow_id,omitempty"`
	BuyerID            string                   `json:"buyer_id"`
	SellerID           string                   `json:"seller_id"`
	ListingID          string                   `json:"listing_id"`
	AmountEGP          string                   `json:"amount_egp"`
	ExchangeRate       string                   `json:"exchange_rate"`
	Jurisdiction       string                   `json:"jurisdiction"`
	RegulatoryCategory string                   `json:"regulatory_category"`
	Details            transaction.Details      `json:"details"`
	AuditTrail         []transaction.AuditEntry `json:"audit_trail"`
	IsArchived         bool                     `json:"is_archived"`
	CreatedAt          string                   `json:"created_at"`
}

// TransactionListResponse represents a list of transactions in API responses
type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

// ConfirmationAcceptedResponse acknowledges a queued confirmation.
type ConfirmationAcceptedResponse struct {
	PaymentID    string `json:"payment_id"`
	ExternalTxID string `json:"external_tx_id"`
	Status       string `json:"status"`
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func mapPaymentToResponse(p *payment.Payment) PaymentResponse {
	response := PaymentResponse{
		ID:                p.ID.String(),
		Amount:            p.Amount.String(),
		AmountEGP:         p.AmountEGP.StringFixed(2),
		Status:            string(p.Status),
		BuyerID:           p.BuyerID,
		SellerID:          p.SellerID,
		ListingID:         p.ListingID,
		ExternalTxID:      p.ExternalTxID,
		EscrowReleaseDate: formatTime(p.EscrowReleaseDate),
		DisputeReason:     p.DisputeReason,
		Timezone:          p.Timezone,
		CompletedAt:       formatTime(p.CompletedAt),
		CreatedAt:         p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         p.UpdatedAt.Format(time.RFC3339),
	}
	if p.EscrowID != nil {
		response.EscrowID = p.EscrowID.String()
	}
	return response
}

func mapEscrowToResponse(e *escrow.Escrow) *EscrowResponse {
	if e == nil {
		return nil
	}
	response := &EscrowResponse{
		ID:                 e.ID.String(),
		PaymentID:          e.PaymentID.String(),
		Amount:             e.Amount.String(),
		Status:             string(e.Status),
		ReleaseDate:        e.ReleaseDate.Format(time.RFC3339),
		IsReleased:         e.IsReleased,
		ReleasedBy:         e.ReleasedBy,
		ReleasedAt:         formatTime(e.ReleasedAt),
		DisputeWindowHours: e.DisputeWindowHours,
		LegalReference:     e.LegalReference,
		CreatedAt:          e.CreatedAt.Format(time.RFC3339),
	}
	if d := e.Dispute; d != nil {
		response.Dispute = &DisputeResponse{
			Status:      string(d.Status),
			TicketRef:   d.TicketRef,
			Reason:      d.Reason,
			RaisedBy:    d.RaisedBy,
			RaisedAt:    d.RaisedAt.Format(time.RFC3339),
			EscalatedAt: d.EscalatedAt.Format(time.RFC3339),
		}
	}
	return response
}

func mapTransactionToResponse(tx *transaction.Transaction) TransactionResponse {
	response := TransactionResponse{
		ID:                 tx.ID.String(),
		Type:               string(tx.Type),
		Amount:             tx.Amount.String(),
		Status:             string(tx.Status),
		PaymentID:          tx.PaymentID.String(),
		BuyerID:            tx.BuyerID,
		SellerID:           tx.SellerID,
		ListingID:          tx.ListingID,
		AmountEGP:          tx.Market.AmountEGP.StringFixed(2),
		ExchangeRate:       tx.Market.ExchangeRate.String(),
		Jurisdiction:       tx.Market.Jurisdiction,
		RegulatoryCategory: string(tx.Metadata.RegulatoryCategory),
		Details:            tx.Details,
		AuditTrail:         tx.Metadata.AuditTrail,
		IsArchived:         tx.Metadata.IsArchived,
		CreatedAt:          tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.EscrowID != nil {
		response.EscrowID = tx.EscrowID.String()
	}
	return response
}
