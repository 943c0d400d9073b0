package outbox

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
)

// InstructionKind selects what the poller does with a message.
type InstructionKind string

const (
	KindRecordTransaction InstructionKind = "RECORD_TRANSACTION"
	KindAppendAudit       InstructionKind = "APPEND_AUDIT"
)

// Instruction is a ledger write captured in the same database transaction
// as the state change that caused it.
type Instruction struct {
	Kind          InstructionKind            `json:"kind"`
	Record        *transaction.CreateRequest `json:"record,omitempty"`
	TransactionID uuid.UUID                  `json:"transaction_id,omitempty"`
	Entry         *transaction.AuditEntry    `json:"entry,omitempty"`
}

// Message stores a ledger instruction for reliable delivery. Payload is
// plaintext in memory; the repository encrypts it at rest.
type Message struct {
	ID            int64               `json:"id"`
	PaymentID     uuid.UUID           `json:"payment_id"`
	Kind          InstructionKind     `json:"kind"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

// NewRecordMessage queues the creation of a transaction.
func NewRecordMessage(req transaction.CreateRequest) (*Message, error) {
	return newMessage(req.PaymentID, Instruction{Kind: KindRecordTransaction, Record: &req})
}

// NewAuditMessage queues an audit entry for an existing transaction.
func NewAuditMessage(paymentID, transactionID uuid.UUID, entry transaction.AuditEntry) (*Message, error) {
	return newMessage(paymentID, Instruction{Kind: KindAppendAudit, TransactionID: transactionID, Entry: &entry})
}

func newMessage(paymentID uuid.UUID, instruction Instruction) (*Message, error) {
	payload, err := json.Marshal(instruction)
	if err != nil {
		return nil, err
	}

	return &Message{
		PaymentID: paymentID,
		Kind:      instruction.Kind,
		Payload:   payload,
		Status:    shared.OutboxStatusPending,
		Attempts:  0,
		CreatedAt: time.Now(),
	}, nil
}

var errMalformedInstruction = errors.New("malformed outbox instruction")

// GetInstruction decodes and sanity-checks the payload.
func (m *Message) GetInstruction() (*Instruction, error) {
	var instruction Instruction
	if err := json.Unmarshal(m.Payload, &instruction); err != nil {
		return nil, err
	}

	switch instruction.Kind {
	case KindRecordTransaction:
		if instruction.Record == nil {
			return nil, errMalformedInstruction
		}
	case KindAppendAudit:
		if instruction.Entry == nil || instruction.TransactionID == uuid.Nil {
			return nil, errMalformedInstruction
		}
	default:
		return nil, errMalformedInstruction
	}
	return &instruction, nil
}
