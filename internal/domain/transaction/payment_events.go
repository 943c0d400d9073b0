package transaction

import (
	"time"

	"github.com/google/uuid"

	"github.com/pi-escrow-ledger/internal/domain/payment"
)

const ratePlaces = 6

// Discriminators for events that happen at most once per payment.
const (
	DiscriminatorFailed    = "failed"
	DiscriminatorCancelled = "cancelled"
)

// PurchaseID is the id of the PURCHASE recorded when externalTxID settles p.
func PurchaseID(paymentID uuid.UUID, externalTxID string) uuid.UUID {
	return DeriveID(paymentID, TypePurchase, externalTxID)
}

// RequestForPayment starts a CreateRequest carrying the payment's parties,
// amount and market context. The caller sets Details and any metadata.
func RequestForPayment(p *payment.Payment, t Type, discriminator, actor string, at time.Time) CreateRequest {
	market := MarketContext{AmountEGP: p.AmountEGP, Jurisdiction: p.Timezone}
	if p.Amount.IsPositive() {
		market.ExchangeRate = p.AmountEGP.DivRound(p.Amount, ratePlaces)
	}

	return CreateRequest{
		ID:         DeriveID(p.ID, t, discriminator),
		Type:       t,
		Amount:     p.Amount,
		Status:     p.Status,
		BuyerID:    p.BuyerID,
		SellerID:   p.SellerID,
		ListingID:  p.ListingID,
		PaymentID:  p.ID,
		EscrowID:   p.EscrowID,
		Market:     market,
		ActorID:    actor,
		OccurredAt: at,
	}
}

// PurchaseDetailsFor is the PURCHASE variant for p.
func PurchaseDetailsFor(p *payment.Payment) Details {
	return Details{Purchase: &PurchaseDetails{
		ListingID:              p.ListingID,
		TaxID:                  p.TaxID,
		MerchantVerificationID: p.MerchantVerificationID,
	}}
}
