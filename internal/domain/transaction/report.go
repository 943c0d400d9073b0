package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Report is the compliance export of one transaction.
type Report struct {
	TransactionID         uuid.UUID       `json:"transaction_id"`
	Type                  Type            `json:"type"`
	Amount                decimal.Decimal `json:"amount"`
	AmountEGP             decimal.Decimal `json:"amount_egp"`
	Jurisdiction          string          `json:"jurisdiction"`
	Category              Category        `json:"regulatory_category"`
	Timestamp             time.Time       `json:"timestamp"`
	BuyerID               string          `json:"buyer_id"`
	SellerID              string          `json:"seller_id"`
	PaymentID             uuid.UUID       `json:"payment_id"`
	EscrowID              *uuid.UUID      `json:"escrow_id,omitempty"`
	ExternalLedgerRef     string          `json:"external_ledger_ref,omitempty"`
	BlockConfirmationTime *time.Time      `json:"block_confirmation_time,omitempty"`
	IsArchived            bool            `json:"is_archived"`
	ArchivalDate          *time.Time      `json:"archival_date,omitempty"`
	AuditTrail            []AuditEntry    `json:"audit_trail"`
}

// BuildReport projects tx into a Report. It does not modify tx.
func BuildReport(tx *Transaction) Report {
	trail := make([]AuditEntry, len(tx.Metadata.AuditTrail))
	copy(trail, tx.Metadata.AuditTrail)

	return Report{
		TransactionID:         tx.ID,
		Type:                  tx.Type,
		Amount:                tx.Amount,
		AmountEGP:             tx.Market.AmountEGP,
		Jurisdiction:          tx.Market.Jurisdiction,
		Category:              tx.Metadata.RegulatoryCategory,
		Timestamp:             tx.CreatedAt,
		BuyerID:               tx.BuyerID,
		SellerID:              tx.SellerID,
		PaymentID:             tx.PaymentID,
		EscrowID:              tx.EscrowID,
		ExternalLedgerRef:     tx.Metadata.ExternalLedgerRef,
		BlockConfirmationTime: tx.Metadata.BlockConfirmationTime,
		IsArchived:            tx.Metadata.IsArchived,
		ArchivalDate:          tx.Metadata.ArchivalDate,
		AuditTrail:            trail,
	}
}
