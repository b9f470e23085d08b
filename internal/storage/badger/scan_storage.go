package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/linuxfirst/docscan/internal/interfaces"
	"github.com/linuxfirst/docscan/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// ScanStorage implements the ScanStorage interface for Badger.
//
// Mutating operations take a read-modify-write path under a process-wide
// mutex so concurrent workers see atomic counter increments and monotonic
// status/phase transitions. Coordination state lives here, never in worker
// memory.
type ScanStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewScanStorage creates a new ScanStorage instance
func NewScanStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ScanStorage {
	return &ScanStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ScanStorage) SaveScan(ctx context.Context, scan *models.Scan) error {
	if scan.ID == "" {
		return fmt.Errorf("scan ID is required")
	}

	now := time.Now()
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = now
	}
	scan.UpdatedAt = now

	if err := s.db.Store().Upsert(scan.ID, scan); err != nil {
		return fmt.Errorf("failed to save scan: %w", err)
	}
	return nil
}

func (s *ScanStorage) GetScan(ctx context.Context, id string) (*models.Scan, error) {
	var scan models.Scan
	if err := s.db.Store().Get(id, &scan); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("scan not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return &scan, nil
}

func (s *ScanStorage) ListScans(ctx context.Context, limit int) ([]*models.Scan, error) {
	var scans []models.Scan
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&scans, query); err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}

	result := make([]*models.Scan, len(scans))
	for i := range scans {
		result[i] = &scans[i]
	}
	return result, nil
}

// SetStatus applies a status transition, rejecting non-monotonic moves
func (s *ScanStorage) SetStatus(ctx context.Context, id string, status models.ScanStatus) error {
	return s.update(id, func(scan *models.Scan) error {
		if scan.Status == status {
			return nil
		}
		if !scan.Status.CanTransition(status) {
			return fmt.Errorf("invalid scan status transition %s -> %s", scan.Status, status)
		}
		scan.Status = status
		if status.IsTerminal() {
			now := time.Now()
			scan.FinishedAt = &now
		}
		return nil
	})
}

// SetPhase advances the sub-phase, rejecting backward moves
func (s *ScanStorage) SetPhase(ctx context.Context, id string, phase models.ScanPhase) error {
	return s.update(id, func(scan *models.Scan) error {
		if scan.CurrentPhase == phase {
			return nil
		}
		if !scan.CurrentPhase.CanAdvance(phase) {
			return fmt.Errorf("invalid scan phase transition %s -> %s", scan.CurrentPhase, phase)
		}
		scan.CurrentPhase = phase
		if scan.PhaseTimestamps == nil {
			scan.PhaseTimestamps = make(map[models.ScanPhase]time.Time)
		}
		scan.PhaseTimestamps[phase] = time.Now()
		return nil
	})
}

// IncrementCounters atomically adds the deltas to the scan's counters
func (s *ScanStorage) IncrementCounters(ctx context.Context, id string, delta models.ScanCounters) error {
	return s.update(id, func(scan *models.Scan) error {
		scan.TotalPagesFound += delta.TotalPagesFound
		scan.PagesProcessed += delta.PagesProcessed
		scan.PagesFailed += delta.PagesFailed
		scan.SnippetsProcessed += delta.SnippetsProcessed
		scan.BiasedPagesCount += delta.BiasedPagesCount
		scan.FlaggedSnippetsCount += delta.FlaggedSnippetsCount
		return nil
	})
}

// AppendError records a recoverable unit failure in the scan's error log
func (s *ScanStorage) AppendError(ctx context.Context, id string, unit string, message string) error {
	return s.update(id, func(scan *models.Scan) error {
		scan.ErrorLog = append(scan.ErrorLog, models.ScanError{
			Time:    time.Now(),
			Unit:    unit,
			Message: message,
		})
		return nil
	})
}

// RequestCancellation sets the cancellation flag once; later calls are no-ops
func (s *ScanStorage) RequestCancellation(ctx context.Context, id string, reason string, at time.Time) error {
	return s.update(id, func(scan *models.Scan) error {
		if scan.CancellationRequested {
			return nil
		}
		scan.CancellationRequested = true
		scan.CancellationRequestedAt = &at
		scan.CancellationReason = reason
		return nil
	})
}

// Finalize applies finalization metrics under the same lock as status writes
func (s *ScanStorage) Finalize(ctx context.Context, id string, apply func(*models.Scan)) error {
	return s.update(id, func(scan *models.Scan) error {
		apply(scan)
		return nil
	})
}

// update performs a locked read-modify-write of one scan row
func (s *ScanStorage) update(id string, mutate func(*models.Scan) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var scan models.Scan
	if err := s.db.Store().Get(id, &scan); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("scan not found: %s", id)
		}
		return fmt.Errorf("failed to get scan: %w", err)
	}

	if err := mutate(&scan); err != nil {
		return err
	}

	scan.UpdatedAt = time.Now()
	if err := s.db.Store().Upsert(scan.ID, &scan); err != nil {
		return fmt.Errorf("failed to update scan: %w", err)
	}
	return nil
}
