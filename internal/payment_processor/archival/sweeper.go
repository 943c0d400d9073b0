package archival

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/pi-escrow-ledger/internal/config"
	"github.com/pi-escrow-ledger/internal/domain/shared"
	"github.com/pi-escrow-ledger/internal/domain/transaction"
	"github.com/pi-escrow-ledger/internal/platform/cache"
)

const lockName = "archival-sweep"

// Archiver archives a single transaction record.
type Archiver interface {
	ArchiveTransaction(ctx context.Context, transactionID uuid.UUID, now time.Time) (bool, error)
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Scanned  int
	Archived int
	Skipped  int
	Expired  int64
}

// Sweeper archives transactions past the archival age and, when enabled,
// expires archived ones past the retention period.
type Sweeper struct {
	txRepo   transaction.Repository
	archiver Archiver
	locker   *cache.Locker
	cfg      config.ArchivalConfig
	clock    shared.Clock
	logger   *slog.Logger
}

// NewSweeper creates a sweeper. locker may be nil, in which case replicas are
// not coordinated.
func NewSweeper(txRepo transaction.Repository, archiver Archiver, locker *cache.Locker, cfg config.ArchivalConfig, clock shared.Clock, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		txRepo:   txRepo,
		archiver: archiver,
		locker:   locker,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
	}
}

// Start runs a sweep every configured interval until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Starting archival sweeper", "interval", s.cfg.Interval, "batch_size", s.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Archival sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunLocked(ctx); err != nil {
				s.logger.Error("Archival sweep failed", "error", err)
			}
		}
	}
}

// RunLocked sweeps while holding the replica lock. It reports ok=false when
// another replica holds the lock.
func (s *Sweeper) RunLocked(ctx context.Context) (ok bool, err error) {
	if s.locker == nil {
		_, err = s.ArchiveEligible(ctx, s.clock.Now())
		return true, err
	}

	lock, err := s.locker.TryLock(ctx, lockName, s.cfg.LockTTL)
	if err != nil {
		return false, err
	}
	if lock == nil {
		s.logger.Debug("Archival sweep already running elsewhere")
		return false, nil
	}
	defer func() {
		if unlockErr := lock.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			s.logger.Warn("Failed to release archival lock", "error", unlockErr)
		}
	}()

	_, err = s.ArchiveEligible(ctx, s.clock.Now())
	return true, err
}

// ArchiveEligible archives every eligible transaction at now, page by page.
// A failed record does not stop the sweep; all failures are returned together.
func (s *Sweeper) ArchiveEligible(ctx context.Context, now time.Time) (SweepResult, error) {
	var (
		result SweepResult
		errs   *multierror.Error
	)
	cutoff := transaction.ArchivalCutoff(now)

	for {
		page, err := s.txRepo.ListArchivalCandidates(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return result, multierror.Append(errs, fmt.Errorf("failed to list archival candidates: %w", err)).ErrorOrNil()
		}

		progressed := 0
		for _, tx := range page {
			result.Scanned++
			if !transaction.IsEligibleForArchival(tx, now) {
				result.Skipped++
				continue
			}

			archived, err := s.archiver.ArchiveTransaction(ctx, tx.ID, now)
			if err != nil {
				s.logger.Error("Failed to archive transaction", "transaction_id", tx.ID.String(), "error", err)
				errs = multierror.Append(errs, err)
				continue
			}
			if archived {
				result.Archived++
				progressed++
			} else {
				result.Skipped++
			}
		}

		// a short page is the last one; a page without progress would repeat
		if len(page) < s.cfg.BatchSize || progressed == 0 {
			break
		}
	}

	if s.cfg.EnforceRetentionExpiry {
		expired, err := s.txRepo.DeleteExpired(ctx, transaction.RetentionCutoff(now))
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		result.Expired = expired
	}

	s.logger.Info("Archival sweep completed",
		"scanned", result.Scanned,
		"archived", result.Archived,
		"skipped", result.Skipped,
		"expired", result.Expired,
	)
	return result, errs.ErrorOrNil()
}
