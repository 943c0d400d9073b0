// Package transaction models the immutable ledger of business events recorded
// for every payment, together with its append-only audit trail, regulatory
// classification and retention rules.
package transaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pi-escrow-ledger/internal/domain/payment"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Type is the business event a Transaction records.
type Type string

const (
	TypePurchase         Type = "PURCHASE"
	TypeRefund           Type = "REFUND"
	TypeEscrowRelease    Type = "ESCROW_RELEASE"
	TypeEscrowReturn     Type = "ESCROW_RETURN"
	TypeSystemAdjustment Type = "SYSTEM_ADJUSTMENT"
)

// AuditAction names an entry in the audit trail.
type AuditAction string

const (
	ActionCreated          AuditAction = "CREATED"
	ActionStatusChanged    AuditAction = "STATUS_CHANGED"
	ActionEscrowCreated    AuditAction = "ESCROW_CREATED"
	ActionEscrowReleased   AuditAction = "ESCROW_RELEASED"
	ActionDisputeEscalated AuditAction = "DISPUTE_ESCALATED"
	ActionEscrowReturned   AuditAction = "ESCROW_RETURNED"
	ActionArchived         AuditAction = "ARCHIVED"
)

// SystemActor is the user id recorded for engine-initiated changes.
const SystemActor = "system"

// AuditEntry is appended to a transaction's trail and never edited.
type AuditEntry struct {
	ID        uuid.UUID   `json:"id" bson:"id"`
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
	Action    AuditAction `json:"action" bson:"action"`
	UserID    string      `json:"user_id" bson:"user_id"`
	Reason    string      `json:"reason,omitempty" bson:"reason,omitempty"`
}

// NewAuditEntry stamps a fresh entry id.
func NewAuditEntry(action AuditAction, userID, reason string, at time.Time) AuditEntry {
	return AuditEntry{ID: uuid.New(), Timestamp: at, Action: action, UserID: userID, Reason: reason}
}

// DeriveAuditEntry builds an entry whose id is stable for (transaction,
// action, discriminator), so queuing the same entry twice appends it once.
func DeriveAuditEntry(transactionID uuid.UUID, action AuditAction, discriminator, userID, reason string, at time.Time) AuditEntry {
	return AuditEntry{
		ID:        uuid.NewSHA1(transactionID, []byte(string(action)+":"+discriminator)),
		Timestamp: at,
		Action:    action,
		UserID:    userID,
		Reason:    reason,
	}
}

// MarketContext captures the conversion in force when the event happened.
type MarketContext struct {
	AmountEGP    decimal.Decimal `json:"amount_egp" bson:"amount_egp"`
	ExchangeRate decimal.Decimal `json:"exchange_rate" bson:"exchange_rate"`
	Jurisdiction string          `json:"jurisdiction" bson:"jurisdiction"`
}

type PurchaseDetails struct {
	ListingID              string `json:"listing_id" bson:"listing_id"`
	TaxID                  string `json:"tax_id,omitempty" bson:"tax_id,omitempty"`
	MerchantVerificationID string `json:"merchant_verification_id,omitempty" bson:"merchant_verification_id,omitempty"`
}

type RefundDetails struct {
	OriginalTransactionID uuid.UUID `json:"original_transaction_id" bson:"original_transaction_id"`
	Reason                string    `json:"reason" bson:"reason"`
	TicketRef             string    `json:"ticket_ref,omitempty" bson:"ticket_ref,omitempty"`
}

type EscrowReleaseDetails struct {
	EscrowID    uuid.UUID `json:"escrow_id" bson:"escrow_id"`
	ReleasedBy  string    `json:"released_by" bson:"released_by"`
	ReleaseDate time.Time `json:"release_date" bson:"release_date"`
}

type EscrowReturnDetails struct {
	EscrowID  uuid.UUID `json:"escrow_id" bson:"escrow_id"`
	Reason    string    `json:"reason" bson:"reason"`
	TicketRef string    `json:"ticket_ref,omitempty" bson:"ticket_ref,omitempty"`
}

type AdjustmentDetails struct {
	Reason     string `json:"reason" bson:"reason"`
	ApprovedBy string `json:"approved_by" bson:"approved_by"`
}

// Details is a tagged variant: exactly the member matching the
// transaction Type is set.
type Details struct {
	Purchase      *PurchaseDetails      `json:"purchase,omitempty" bson:"purchase,omitempty"`
	Refund        *RefundDetails        `json:"refund,omitempty" bson:"refund,omitempty"`
	EscrowRelease *EscrowReleaseDetails `json:"escrow_release,omitempty" bson:"escrow_release,omitempty"`
	EscrowReturn  *EscrowReturnDetails  `json:"escrow_return,omitempty" bson:"escrow_return,omitempty"`
	Adjustment    *AdjustmentDetails    `json:"adjustment,omitempty" bson:"adjustment,omitempty"`
}

var errDetailsMismatch = errors.New("details do not match transaction type")

// Validate checks that only the variant for t is populated.
func (d Details) Validate(t Type) error {
	set := map[Type]bool{
		TypePurchase:         d.Purchase != nil,
		TypeRefund:           d.Refund != nil,
		TypeEscrowRelease:    d.EscrowRelease != nil,
		TypeEscrowReturn:     d.EscrowReturn != nil,
		TypeSystemAdjustment: d.Adjustment != nil,
	}
	if _, known := set[t]; !known {
		return fmt.Errorf("unknown transaction type %q", t)
	}
	for variant, present := range set {
		if present != (variant == t) {
			return fmt.Errorf("%w: %s", errDetailsMismatch, t)
		}
	}
	return nil
}

// Metadata is the only part of a Transaction that changes after creation,
// and only by appending audit entries or setting the archival fields once.
type Metadata struct {
	ExternalLedgerRef     string       `json:"external_ledger_ref,omitempty" bson:"-"`
	BlockConfirmationTime *time.Time   `json:"block_confirmation_time,omitempty" bson:"block_confirmation_time,omitempty"`
	RegulatoryCategory    Category     `json:"regulatory_category" bson:"regulatory_category"`
	Notes                 string       `json:"notes,omitempty" bson:"notes,omitempty"`
	AuditTrail            []AuditEntry `json:"audit_trail" bson:"audit_trail"`
	IsArchived            bool         `json:"is_archived" bson:"is_archived"`
	ArchivalDate          *time.Time   `json:"archival_date,omitempty" bson:"archival_date,omitempty"`
}

// Transaction is an immutable record of one business event.
type Transaction struct {
	ID        uuid.UUID       `json:"id"`
	Type      Type            `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Status    payment.Status  `json:"status"`
	BuyerID   string          `json:"buyer_id"`
	SellerID  string          `json:"seller_id"`
	ListingID string          `json:"listing_id"`
	PaymentID uuid.UUID       `json:"payment_id"`
	EscrowID  *uuid.UUID      `json:"escrow_id,omitempty"`
	Market    MarketContext   `json:"market"`
	Details   Details         `json:"details"`
	Metadata  Metadata        `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateRequest describes a transaction to record. ID is derived with
// DeriveID so that recording the same event twice is a no-op.
type CreateRequest struct {
	ID                    uuid.UUID       `json:"id"`
	Type                  Type            `json:"type"`
	Amount                decimal.Decimal `json:"amount"`
	Status                payment.Status  `json:"status"`
	BuyerID               string          `json:"buyer_id"`
	SellerID              string          `json:"seller_id"`
	ListingID             string          `json:"listing_id"`
	PaymentID             uuid.UUID       `json:"payment_id"`
	EscrowID              *uuid.UUID      `json:"escrow_id,omitempty"`
	Market                MarketContext   `json:"market"`
	Details               Details         `json:"details"`
	ExternalLedgerRef     string          `json:"external_ledger_ref,omitempty"`
	BlockConfirmationTime *time.Time      `json:"block_confirmation_time,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	ActorID               string          `json:"actor_id"`
	OccurredAt            time.Time       `json:"occurred_at"`
}

// DeriveID returns a stable id for the event (payment, type, discriminator).
func DeriveID(paymentID uuid.UUID, t Type, discriminator string) uuid.UUID {
	return uuid.NewSHA1(paymentID, []byte(string(t)+":"+discriminator))
}

// New builds a transaction with its CREATED audit entry. The entry id is
// derived from the transaction id so rebuilding from the same request is stable.
func New(req CreateRequest, thresholds CategoryThresholds) (*Transaction, error) {
	if req.ID == uuid.Nil || req.PaymentID == uuid.Nil {
		return nil, shared.ValidationError{Code: shared.CodeInvalidRequest, Message: "transaction and payment ids are required"}
	}
	if !req.Amount.IsPositive() {
		return nil, shared.ValidationError{Code: shared.CodeAmountOutOfRange, Message: "transaction amount must be positive"}
	}
	if err := req.Details.Validate(req.Type); err != nil {
		return nil, shared.ValidationError{Code: shared.CodeInvalidRequest, Message: err.Error()}
	}

	actor := req.ActorID
	if actor == "" {
		actor = SystemActor
	}

	created := AuditEntry{
		ID:        uuid.NewSHA1(req.ID, []byte(ActionCreated)),
		Timestamp: req.OccurredAt,
		Action:    ActionCreated,
		UserID:    actor,
		Reason:    req.Notes,
	}

	return &Transaction{
		ID:        req.ID,
		Type:      req.Type,
		Amount:    req.Amount,
		Status:    req.Status,
		BuyerID:   req.BuyerID,
		SellerID:  req.SellerID,
		ListingID: req.ListingID,
		PaymentID: req.PaymentID,
		EscrowID:  req.EscrowID,
		Market:    req.Market,
		Details:   req.Details,
		Metadata: Metadata{
			ExternalLedgerRef:     req.ExternalLedgerRef,
			BlockConfirmationTime: req.BlockConfirmationTime,
			RegulatoryCategory:    DeriveCategory(req.Type, req.Amount, thresholds),
			Notes:                 req.Notes,
			AuditTrail:            []AuditEntry{created},
		},
		CreatedAt: req.OccurredAt,
	}, nil
}

// HasAuditEntry reports whether an entry with id is already in the trail.
func (t *Transaction) HasAuditEntry(id uuid.UUID) bool {
	for _, entry := range t.Metadata.AuditTrail {
		if entry.ID == id {
			return true
		}
	}
	return false
}
