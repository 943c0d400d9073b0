package producers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pi-escrow-ledger/internal/domain/escrow"
)

// EscalationTicket is the message the support team consumes.
type EscalationTicket struct {
	TicketRef      string          `json:"ticket_ref"`
	EscrowID       uuid.UUID       `json:"escrow_id"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	Amount         decimal.Decimal `json:"amount"`
	LegalReference string          `json:"legal_reference"`
	RaisedBy       string          `json:"raised_by"`
	Reason         string          `json:"reason"`
	RaisedAt       time.Time       `json:"raised_at"`
}

// EscalationProducer hands admitted disputes to the support queue.
type EscalationProducer struct {
	publisher MessagePublisher
}

func NewEscalationProducer(publisher MessagePublisher) *EscalationProducer {
	return &EscalationProducer{publisher: publisher}
}

// Escalate publishes a ticket and returns its reference. The reference is
// derived from the escrow and the dispute timestamp, so retrying the same
// dispute yields the same ticket.
func (p *EscalationProducer) Escalate(ctx context.Context, esc *escrow.Escrow, details escrow.DisputeDetails) (string, error) {
	ref := TicketRef(esc.ID, details.Timestamp)

	ticket := EscalationTicket{
		TicketRef:      ref,
		EscrowID:       esc.ID,
		PaymentID:      esc.PaymentID,
		Amount:         esc.Amount,
		LegalReference: esc.LegalReference,
		RaisedBy:       details.RaisedBy,
		Reason:         details.Reason,
		RaisedAt:       details.Timestamp,
	}

	if err := p.publisher.Publish(ctx, esc.PaymentID.String(), ticket); err != nil {
		return "", fmt.Errorf("failed to escalate dispute for escrow %s: %w", esc.ID, err)
	}
	return ref, nil
}

func (p *EscalationProducer) Close() error {
	return p.publisher.Close()
}

// TicketRef derives the support ticket reference for a dispute.
func TicketRef(escrowID uuid.UUID, raisedAt time.Time) string {
	id := uuid.NewSHA1(escrowID, []byte(raisedAt.UTC().Format(time.RFC3339Nano)))
	return "DSP-" + strings.ToUpper(id.String()[:8])
}
