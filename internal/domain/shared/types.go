package shared

import (
	"time"

	"github.com/google/uuid"
)

// OutboxStatus defines outbox message states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)

// Currency units handled by the exchange-rate collaborator.
const (
	UnitPi  = "PI"
	UnitEGP = "EGP"
)

// PaymentConfirmation is the Kafka message carrying a ledger confirmation
// that still has to be settled through processPayment.
type PaymentConfirmation struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	ExternalTxID  string    `json:"external_tx_id"`
	CorrelationID string    `json:"correlation_id"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Clock supplies the current instant. Domain functions take "now" as an
// argument; services obtain it from a Clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
