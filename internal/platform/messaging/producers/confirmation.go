package producers

import (
	"context"

	"github.com/pi-escrow-ledger/internal/domain/shared"
)

// ConfirmationProducer enqueues ledger confirmations for the payment processor.
type ConfirmationProducer struct {
	publisher MessagePublisher
}

func NewConfirmationProducer(publisher MessagePublisher) *ConfirmationProducer {
	return &ConfirmationProducer{publisher: publisher}
}

// Enqueue publishes confirmation keyed by its payment id.
func (p *ConfirmationProducer) Enqueue(ctx context.Context, confirmation shared.PaymentConfirmation) error {
	return p.publisher.Publish(ctx, confirmation.PaymentID.String(), confirmation)
}

func (p *ConfirmationProducer) Close() error {
	return p.publisher.Close()
}
