package interfaces

import (
	"context"
	"time"

	"github.com/linuxfirst/docscan/internal/models"
)

// ScanStorage persists scan runs and drives the state machine's atomic
// per-scan mutations. Counter updates are incremental, never recomputed.
type ScanStorage interface {
	SaveScan(ctx context.Context, scan *models.Scan) error
	GetScan(ctx context.Context, id string) (*models.Scan, error)
	ListScans(ctx context.Context, limit int) ([]*models.Scan, error)

	// SetStatus applies a status transition, rejecting non-monotonic moves
	SetStatus(ctx context.Context, id string, status models.ScanStatus) error
	// SetPhase advances the sub-phase, rejecting backward moves
	SetPhase(ctx context.Context, id string, phase models.ScanPhase) error

	// IncrementCounters atomically adds the deltas to the scan's counters
	IncrementCounters(ctx context.Context, id string, delta models.ScanCounters) error
	// AppendError records a recoverable unit failure in the scan's error log
	AppendError(ctx context.Context, id string, unit string, message string) error
	// RequestCancellation sets the cancellation flag once; later calls are no-ops
	RequestCancellation(ctx context.Context, id string, reason string, at time.Time) error
	// Finalize applies finalization metrics under the same lock as the
	// terminal status write
	Finalize(ctx context.Context, id string, apply func(*models.Scan)) error
}

// PageStorage persists discovered document units. Writes are idempotent
// upserts keyed by (scan_id, normalized URL).
type PageStorage interface {
	UpsertPage(ctx context.Context, page *models.Page) error
	GetPage(ctx context.Context, id string) (*models.Page, error)
	GetPageByURL(ctx context.Context, scanID, normalizedURL string) (*models.Page, error)
	ListPagesByScan(ctx context.Context, scanID string) ([]*models.Page, error)
	CountPagesByStatus(ctx context.Context, scanID string, status models.PageStatus) (int, error)
}

// SnippetStorage persists extracted fragments. Upserts are keyed by
// (page_id, ordinal) so reprocessing never duplicates rows.
type SnippetStorage interface {
	UpsertSnippet(ctx context.Context, snippet *models.Snippet) error
	GetSnippet(ctx context.Context, id string) (*models.Snippet, error)
	ListSnippetsByPage(ctx context.Context, pageID string) ([]*models.Snippet, error)
	ListSnippetsByScan(ctx context.Context, scanID string) ([]*models.Snippet, error)
}

// HistoryStorage is the cross-scan incremental-processing ledger
type HistoryStorage interface {
	GetHistory(ctx context.Context, unitID string) (*models.FileProcessingHistory, error)
	UpsertHistory(ctx context.Context, entry *models.FileProcessingHistory) error
}

// StorageManager bundles the storages over one database connection
type StorageManager interface {
	ScanStorage() ScanStorage
	PageStorage() PageStorage
	SnippetStorage() SnippetStorage
	HistoryStorage() HistoryStorage
	Close() error
}
