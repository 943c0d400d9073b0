package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a Payment.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusProcessing        Status = "PROCESSING"
	StatusEscrowPending     Status = "ESCROW_PENDING"
	StatusEscrowLocked      Status = "ESCROW_LOCKED"
	StatusDisputeResolution Status = "DISPUTE_RESOLUTION"
	StatusCompleted         Status = "COMPLETED"
	StatusFailed            Status = "FAILED"
	StatusCancelled         Status = "CANCELLED"
	StatusRefunded          Status = "REFUNDED"
)

var transitions = map[Status][]Status{
	StatusPending:           {StatusProcessing, StatusFailed, StatusCancelled},
	StatusProcessing:        {StatusEscrowPending, StatusCompleted, StatusFailed, StatusCancelled},
	StatusEscrowPending:     {StatusEscrowLocked},
	StatusEscrowLocked:      {StatusCompleted, StatusDisputeResolution},
	StatusDisputeResolution: {StatusCompleted, StatusRefunded},
}

// CanTransition reports whether the state machine allows from -> to.
// Terminal states have no entry in the table and so allow nothing.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Payment is one purchase attempt by a buyer for a listing.
type Payment struct {
	ID                     uuid.UUID       `json:"id"`
	Amount                 decimal.Decimal `json:"amount"`
	AmountEGP              decimal.Decimal `json:"amount_egp"`
	Status                 Status          `json:"status"`
	BuyerID                string          `json:"buyer_id"`
	SellerID               string          `json:"seller_id"`
	ListingID              string          `json:"listing_id"`
	EscrowID               *uuid.UUID      `json:"escrow_id,omitempty"`
	ExternalLedgerRef      string          `json:"-"`
	ExternalTxID           string          `json:"external_tx_id,omitempty"`
	EscrowReleaseDate      *time.Time      `json:"escrow_release_date,omitempty"`
	DisputeReason          string          `json:"dispute_reason,omitempty"`
	TaxID                  string          `json:"tax_id,omitempty"`
	MerchantVerificationID string          `json:"merchant_verification_id,omitempty"`
	Timezone               string          `json:"timezone"`
	CompletedAt            *time.Time      `json:"completed_at,omitempty"`
	CreatedAt              time.Time       `json:"created_at"`
	UpdatedAt              time.Time       `json:"updated_at"`
	Version                int             `json:"version"`
}

// NewParams carries what a buyer supplies to open a payment.
type NewParams struct {
	Amount                 decimal.Decimal
	AmountEGP              decimal.Decimal
	BuyerID                string
	SellerID               string
	ListingID              string
	TaxID                  string
	MerchantVerificationID string
	Timezone               string
}

// NewPayment creates a PENDING payment at version 1.
func NewPayment(params NewParams, now time.Time) (*Payment, error) {
	if !params.Amount.IsPositive() {
		return nil, shared.ValidationError{Code: shared.CodeAmountOutOfRange, Message: "amount must be positive"}
	}
	if params.BuyerID == "" || params.ListingID == "" {
		return nil, shared.ValidationError{Code: shared.CodeInvalidRequest, Message: "buyer and listing are required"}
	}

	return &Payment{
		ID:                     uuid.New(),
		Amount:                 params.Amount,
		AmountEGP:              params.AmountEGP,
		Status:                 StatusPending,
		BuyerID:                params.BuyerID,
		SellerID:               params.SellerID,
		ListingID:              params.ListingID,
		TaxID:                  params.TaxID,
		MerchantVerificationID: params.MerchantVerificationID,
		Timezone:               params.Timezone,
		CreatedAt:              now,
		UpdatedAt:              now,
		Version:                1,
	}, nil
}

// TransitionTo moves the payment to next and bumps Version. The caller
// persists the result with the version it held before the call.
func (p *Payment) TransitionTo(next Status, now time.Time) error {
	if !CanTransition(p.Status, next) {
		return shared.InvalidStateTransitionError{Entity: "payment", From: string(p.Status), To: string(next)}
	}

	p.Status = next
	p.UpdatedAt = now
	p.Version++
	if next == StatusCompleted {
		completedAt := now
		p.CompletedAt = &completedAt
	}
	return nil
}

// IsSettledBy reports whether processPayment already ran to completion
// for externalTxID. ESCROW_PENDING is not settled: escrow creation is still owed.
func (p *Payment) IsSettledBy(externalTxID string) bool {
	if p.ExternalTxID == "" || p.ExternalTxID != externalTxID {
		return false
	}
	switch p.Status {
	case StatusPending, StatusProcessing, StatusEscrowPending:
		return false
	default:
		return true
	}
}

// CountsTowardDailyLimit reports whether the payment consumes the buyer's daily allowance.
func (p *Payment) CountsTowardDailyLimit() bool {
	return p.Status != StatusFailed && p.Status != StatusCancelled
}
