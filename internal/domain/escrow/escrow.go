package escrow

import (
	"time"

	"github.com/google/uuid"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Status tracks where the held funds are.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusDisputed Status = "DISPUTED"
	StatusReleased Status = "RELEASED"
	StatusReturned Status = "RETURNED"
)

// ResolutionStatus is the state of a dispute handed to the support team.
type ResolutionStatus string

const ResolutionEscalated ResolutionStatus = "ESCALATED"

// Resolution records an admitted dispute. The escrow never resolves it.
type Resolution struct {
	Status      ResolutionStatus `json:"status"`
	TicketRef   string           `json:"ticket_ref"`
	Reason      string           `json:"reason"`
	RaisedBy    string           `json:"raised_by"`
	RaisedAt    time.Time        `json:"raised_at"`
	EscalatedAt time.Time        `json:"escalated_at"`
}

// DisputeDetails is what a buyer or seller submits to open a dispute.
type DisputeDetails struct {
	EscrowID  uuid.UUID `json:"escrow_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	RaisedBy  string    `json:"raised_by"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Escrow is a time-boxed hold of one payment's funds.
type Escrow struct {
	ID                 uuid.UUID       `json:"id"`
	PaymentID          uuid.UUID       `json:"payment_id"`
	Amount             decimal.Decimal `json:"amount"`
	ReleaseDate        time.Time       `json:"release_date"`
	IsReleased         bool            `json:"is_released"`
	ReleasedBy         string          `json:"released_by,omitempty"`
	ReleasedAt         *time.Time      `json:"released_at,omitempty"`
	DisputeWindowHours int             `json:"dispute_window_hours"`
	LegalReference     string          `json:"legal_reference"`
	Status             Status          `json:"status"`
	Dispute            *Resolution     `json:"dispute,omitempty"`
	Version            int             `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Terms are the jurisdiction parameters stamped onto every new escrow.
type Terms struct {
	DurationDays       int
	DisputeWindowHours int
	LegalReference     string
}

// New opens an ACTIVE escrow releasing durationDays after now.
func New(paymentID uuid.UUID, amount decimal.Decimal, terms Terms, now time.Time) *Escrow {
	return &Escrow{
		ID:                 uuid.New(),
		PaymentID:          paymentID,
		Amount:             amount,
		ReleaseDate:        now.AddDate(0, 0, terms.DurationDays),
		DisputeWindowHours: terms.DisputeWindowHours,
		LegalReference:     terms.LegalReference,
		Status:             StatusActive,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Release hands the funds to the seller. IsReleased only ever goes false -> true.
func (e *Escrow) Release(releasedBy string, now time.Time) error {
	if e.IsReleased {
		return shared.AlreadyReleasedError{EscrowID: e.ID}
	}
	if e.Status == StatusReturned {
		return shared.InvalidStateTransitionError{Entity: "escrow", From: string(e.Status), To: string(StatusReleased)}
	}

	releasedAt := now
	e.IsReleased = true
	e.ReleasedBy = releasedBy
	e.ReleasedAt = &releasedAt
	e.Status = StatusReleased
	e.touch(now)
	return nil
}

// Return sends the funds back to the buyer after a refund decision.
func (e *Escrow) Return(now time.Time) error {
	if e.IsReleased {
		return shared.AlreadyReleasedError{EscrowID: e.ID}
	}
	if e.Status == StatusReturned {
		return shared.InvalidStateTransitionError{Entity: "escrow", From: string(e.Status), To: string(StatusReturned)}
	}

	e.Status = StatusReturned
	e.touch(now)
	return nil
}

// ElapsedHours is the time between escrow creation and at, in hours.
func (e *Escrow) ElapsedHours(at time.Time) float64 {
	return at.Sub(e.CreatedAt).Hours()
}

// CheckDisputeAdmissible accepts a dispute raised at `at` iff the escrow still
// holds the funds, has no open dispute, and elapsed <= DisputeWindowHours.
// The window edge itself is inside the window.
func (e *Escrow) CheckDisputeAdmissible(at time.Time) error {
	if e.IsReleased {
		return shared.AlreadyReleasedError{EscrowID: e.ID}
	}
	if e.Status != StatusActive {
		return shared.InvalidStateTransitionError{Entity: "escrow", From: string(e.Status), To: string(StatusDisputed)}
	}

	window := time.Duration(e.DisputeWindowHours) * time.Hour
	if at.Sub(e.CreatedAt) > window {
		return shared.DisputeWindowExpiredError{
			EscrowID:     e.ID,
			ElapsedHours: e.ElapsedHours(at),
			WindowHours:  e.DisputeWindowHours,
		}
	}
	return nil
}

// RecordEscalation marks the escrow disputed with the support ticket reference.
func (e *Escrow) RecordEscalation(details DisputeDetails, ticketRef string, now time.Time) error {
	if err := e.CheckDisputeAdmissible(details.Timestamp); err != nil {
		return err
	}

	e.Status = StatusDisputed
	e.Dispute = &Resolution{
		Status:      ResolutionEscalated,
		TicketRef:   ticketRef,
		Reason:      details.Reason,
		RaisedBy:    details.RaisedBy,
		RaisedAt:    details.Timestamp,
		EscalatedAt: now,
	}
	e.touch(now)
	return nil
}

func (e *Escrow) touch(now time.Time) {
	e.UpdatedAt = now
	e.Version++
}
