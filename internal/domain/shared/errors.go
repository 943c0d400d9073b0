package shared

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrorCode is the machine-readable reason code returned to callers.
type ErrorCode string

const (
	CodeAmountOutOfRange       ErrorCode = "AMOUNT_OUT_OF_RANGE"
	CodeDailyLimitExceeded     ErrorCode = "DAILY_LIMIT_EXCEEDED"
	CodeOutsideTradingHours    ErrorCode = "OUTSIDE_TRADING_HOURS"
	CodeWeekendRestricted      ErrorCode = "WEEKEND_RESTRICTED"
	CodeEscrowNotRequired      ErrorCode = "ESCROW_NOT_REQUIRED"
	CodeInvalidRequest         ErrorCode = "INVALID_REQUEST"
	CodeNotFound               ErrorCode = "NOT_FOUND"
	CodeAmountMismatch         ErrorCode = "AMOUNT_MISMATCH"
	CodeInvalidStateTransition ErrorCode = "INVALID_STATE_TRANSITION"
	CodeConcurrencyConflict    ErrorCode = "CONCURRENCY_CONFLICT"
	CodeDisputeWindowExpired   ErrorCode = "DISPUTE_WINDOW_EXPIRED"
	CodeAlreadyReleased        ErrorCode = "ALREADY_RELEASED"
	CodeExternalService        ErrorCode = "EXTERNAL_SERVICE_ERROR"
	CodeDecryptionFailed       ErrorCode = "DECRYPTION_FAILED"
	CodeInternal               ErrorCode = "INTERNAL_ERROR"
)

// ValidationError reports a business-rule violation. It is recoverable and
// always raised before anything is persisted.
type ValidationError struct {
	Code    ErrorCode
	Message string
}

func (e ValidationError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Is matches any ValidationError when the target code is empty, otherwise the code.
func (e ValidationError) Is(target error) bool {
	t, ok := target.(ValidationError)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NotFoundError indicates a missing payment, escrow, transaction or ledger record.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	return e.Resource + " not found: " + e.ID
}

// Is matches on resource and id, treating empty target fields as wildcards.
func (e NotFoundError) Is(target error) bool {
	t, ok := target.(NotFoundError)
	if !ok {
		return false
	}
	return (t.Resource == "" || t.Resource == e.Resource) && (t.ID == "" || t.ID == e.ID)
}

// AmountMismatchError indicates the ledger and the payment record disagree.
type AmountMismatchError struct {
	PaymentID uuid.UUID
	Expected  decimal.Decimal
	Actual    decimal.Decimal
}

func (e AmountMismatchError) Error() string {
	return fmt.Sprintf("amount mismatch for payment %s: recorded %s, ledger %s", e.PaymentID, e.Expected, e.Actual)
}

func (e AmountMismatchError) Is(target error) bool {
	t, ok := target.(AmountMismatchError)
	if !ok {
		return false
	}
	return t.PaymentID == uuid.Nil || t.PaymentID == e.PaymentID
}

// InvalidStateTransitionError indicates a transition the state machine forbids.
type InvalidStateTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition from %s to %s", e.Entity, e.From, e.To)
}

func (e InvalidStateTransitionError) Is(target error) bool {
	t, ok := target.(InvalidStateTransitionError)
	if !ok {
		return false
	}
	return t.Entity == "" || t.Entity == e.Entity
}

// ConcurrencyConflictError indicates a version mismatch on a guarded write.
// The caller must reload the entity and retry.
type ConcurrencyConflictError struct {
	Entity          string
	ID              uuid.UUID
	ExpectedVersion int
}

func (e ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent modification detected for %s %s (expected version %d)", e.Entity, e.ID, e.ExpectedVersion)
}

func (e ConcurrencyConflictError) Is(target error) bool {
	t, ok := target.(ConcurrencyConflictError)
	if !ok {
		return false
	}
	return t.ID == uuid.Nil || t.ID == e.ID
}

// DisputeWindowExpiredError indicates a dispute raised after the escrow's window closed.
type DisputeWindowExpiredError struct {
	EscrowID     uuid.UUID
	ElapsedHours float64
	WindowHours  int
}

func (e DisputeWindowExpiredError) Error() string {
	return fmt.Sprintf("dispute window of %dh expired for escrow %s (%.2fh elapsed)", e.WindowHours, e.EscrowID, e.ElapsedHours)
}

func (e DisputeWindowExpiredError) Is(target error) bool {
	t, ok := target.(DisputeWindowExpiredError)
	if !ok {
		return false
	}
	return t.EscrowID == uuid.Nil || t.EscrowID == e.EscrowID
}

// AlreadyReleasedError indicates an escrow whose funds already left the hold.
type AlreadyReleasedError struct {
	EscrowID uuid.UUID
}

func (e AlreadyReleasedError) Error() string {
	return "escrow already released: " + e.EscrowID.String()
}

func (e AlreadyReleasedError) Is(target error) bool {
	t, ok := target.(AlreadyReleasedError)
	if !ok {
		return false
	}
	return t.EscrowID == uuid.Nil || t.EscrowID == e.EscrowID
}

// ExternalServiceError wraps a collaborator failure that survived the retry budget
// or was rejected by an open circuit breaker.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e ExternalServiceError) Error() string {
	if e.Err == nil {
		return e.Service + " unavailable"
	}
	return e.Service + " unavailable: " + e.Err.Error()
}

func (e ExternalServiceError) Unwrap() error {
	return e.Err
}

func (e ExternalServiceError) Is(target error) bool {
	t, ok := target.(ExternalServiceError)
	if !ok {
		return false
	}
	return t.Service == "" || t.Service == e.Service
}

// DecryptionFailedError is returned instead of any partial plaintext.
type DecryptionFailedError struct {
	Reason string
}

func (e DecryptionFailedError) Error() string {
	return "decryption failed: " + e.Reason
}

func (e DecryptionFailedError) Is(target error) bool {
	_, ok := target.(DecryptionFailedError)
	return ok
}

// CodeOf extracts the reason code of a domain error, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var validationErr ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Code
	}

	switch {
	case errors.Is(err, NotFoundError{}):
		return CodeNotFound
	case errors.Is(err, AmountMismatchError{}):
		return CodeAmountMismatch
	case errors.Is(err, InvalidStateTransitionError{}):
		return CodeInvalidStateTransition
	case errors.Is(err, ConcurrencyConflictError{}):
		return CodeConcurrencyConflict
	case errors.Is(err, DisputeWindowExpiredError{}):
		return CodeDisputeWindowExpired
	case errors.Is(err, AlreadyReleasedError{}):
		return CodeAlreadyReleased
	case errors.Is(err, ExternalServiceError{}):
		return CodeExternalService
	case errors.Is(err, DecryptionFailedError{}):
		return CodeDecryptionFailed
	default:
		return CodeInternal
	}
}

// IsBusinessError reports whether err is a domain rejection rather than an
// infrastructure failure. Business errors are never retried by consumers.
func IsBusinessError(err error) bool {
	switch CodeOf(err) {
	case CodeInternal, CodeExternalService, CodeConcurrencyConflict, CodeDecryptionFailed:
		return false
	default:
		return true
	}
}
