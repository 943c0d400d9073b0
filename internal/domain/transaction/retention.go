package transaction

import (
	"time"

	"github.com/google/uuid"
)

const (
	archivalAgeYears  = 2
	retentionAgeYears = 7
)

// IsEligibleForArchival is true iff the transaction is not archived and is
// strictly older than two years at now.
func IsEligibleForArchival(tx *Transaction, now time.Time) bool {
	return !tx.Metadata.IsArchived && now.After(tx.CreatedAt.AddDate(archivalAgeYears, 0, 0))
}

// IsEligibleForExpiry is true for archived transactions past the seven year
// retention period.
func IsEligibleForExpiry(tx *Transaction, now time.Time) bool {
	return tx.Metadata.IsArchived && now.After(tx.CreatedAt.AddDate(retentionAgeYears, 0, 0))
}

// ArchivalCutoff is the creation instant before which records may be archived.
func ArchivalCutoff(now time.Time) time.Time {
	return now.AddDate(-archivalAgeYears, 0, 0)
}

// RetentionCutoff is the creation instant before which records may be expired.
func RetentionCutoff(now time.Time) time.Time {
	return now.AddDate(-retentionAgeYears, 0, 0)
}

// MarkArchived sets the archival fields. It returns false and changes
// nothing if the transaction is already archived.
func (t *Transaction) MarkArchived(now time.Time) bool {
	if t.Metadata.IsArchived {
		return false
	}
	archivedAt := now
	t.Metadata.IsArchived = true
	t.Metadata.ArchivalDate = &archivedAt
	return true
}

// ArchivalEntry is the audit entry recorded when a transaction is archived.
// Its id is derived from the transaction id, so archiving is recorded once.
func ArchivalEntry(transactionID uuid.UUID, at time.Time) AuditEntry {
	return AuditEntry{
		ID:        uuid.NewSHA1(transactionID, []byte(ActionArchived)),
		Timestamp: at,
		Action:    ActionArchived,
		UserID:    SystemActor,
		Reason:    "retention archival",
	}
}
