package models

import (
	"time"
)

// ScanStatus represents the lifecycle state of a scan run
type ScanStatus string

const (
	ScanStatusPending    ScanStatus = "pending"
	ScanStatusInProgress ScanStatus = "in_progress"
	ScanStatusCompleted  ScanStatus = "completed"
	ScanStatusFailed     ScanStatus = "failed"
	ScanStatusCancelled  ScanStatus = "cancelled"
)

// IsTerminal reports whether the status is a final state
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed || s == ScanStatusCancelled
}

// CanTransition enforces the monotonic status machine:
// pending -> in_progress -> {completed, failed, cancelled}.
// Terminal states never transition again.
func (s ScanStatus) CanTransition(to ScanStatus) bool {
	switch s {
	case ScanStatusPending:
		return to == ScanStatusInProgress || to == ScanStatusFailed || to == ScanStatusCancelled
	case ScanStatusInProgress:
		return to.IsTerminal()
	default:
		return false
	}
}

// ScanPhase represents the sub-phase within an in_progress scan
type ScanPhase string

const (
	PhaseSetup      ScanPhase = "setup"
	PhaseCrawling   ScanPhase = "crawling"
	PhaseExtracting ScanPhase = "extracting"
	PhaseScoring    ScanPhase = "scoring"
	PhaseComplete   ScanPhase = "complete"
)

// phaseOrder fixes the forward-only ordering of phases
var phaseOrder = map[ScanPhase]int{
	PhaseSetup:      0,
	PhaseCrawling:   1,
	PhaseExtracting: 2,
	PhaseScoring:    3,
	PhaseComplete:   4,
}

// Ordinal returns the position of the phase in the pipeline (-1 for unknown)
func (p ScanPhase) Ordinal() int {
	if o, ok := phaseOrder[p]; ok {
		return o
	}
	return -1
}

// CanAdvance reports whether moving from p to next is a forward transition
func (p ScanPhase) CanAdvance(next ScanPhase) bool {
	from, to := p.Ordinal(), next.Ordinal()
	return from >= 0 && to >= 0 && to > from
}

// TargetKind identifies the kind of corpus a scan walks
type TargetKind string

const (
	TargetKindWeb    TargetKind = "web"
	TargetKindGitHub TargetKind = "github"
)

// ScanError records one recoverable unit failure within a scan
type ScanError struct {
	Time    time.Time `json:"time"`
	Unit    string    `json:"unit"`
	Message string    `json:"message"`
}

// PerformanceMetrics captures throughput figures computed at finalization
type PerformanceMetrics struct {
	PagesPerSecond    float64 `json:"pages_per_second"`
	SnippetsPerPage   float64 `json:"snippets_per_page"`
	DurationSeconds   float64 `json:"duration_seconds"`
	ClassifyBatchSent int     `json:"classify_batches_sent"`
}

// Scan represents one audit run over a documentation corpus.
//
// Status transitions are monotonic (pending -> in_progress -> terminal) and
// CurrentPhase only advances forward while the scan is active. Counters only
// increment; they are updated per completed unit, never bulk-recomputed.
// Scans are retained after completion for history and trend queries.
type Scan struct {
	ID        string     `json:"id" badgerhold:"key"`
	TargetURL string     `json:"target_url"`
	Kind      TargetKind `json:"kind"`

	// ForceRescan bypasses the change-detection gate for a full re-verification run
	ForceRescan bool `json:"force_rescan"`

	Status       ScanStatus `json:"status" badgerhold:"index"`
	CurrentPhase ScanPhase  `json:"current_phase"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Progress counters. PagesProcessed <= TotalPagesFound always holds.
	TotalPagesFound   int `json:"total_pages_found"`
	PagesProcessed    int `json:"pages_processed"`
	PagesFailed       int `json:"pages_failed"`
	SnippetsProcessed int `json:"snippets_processed"`

	// Finalization metrics
	BiasedPagesCount     int `json:"biased_pages_count"`
	FlaggedSnippetsCount int `json:"flagged_snippets_count"`

	// Cooperative cancellation. Once requested, no further units are enqueued
	// or dequeued for this scan; in-flight units run to completion.
	CancellationRequested   bool       `json:"cancellation_requested"`
	CancellationRequestedAt *time.Time `json:"cancellation_requested_at,omitempty"`
	CancellationReason      string     `json:"cancellation_reason,omitempty"`

	PhaseTimestamps map[ScanPhase]time.Time `json:"phase_timestamps,omitempty"`
	PhaseProgress   map[ScanPhase]float64   `json:"phase_progress,omitempty"`

	ErrorLog []ScanError `json:"error_log,omitempty"`

	Performance         *PerformanceMetrics `json:"performance_metrics,omitempty"`
	EstimatedCompletion *time.Time          `json:"estimated_completion,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScanCounters is a delta applied atomically to a scan's progress counters.
// All fields are non-negative; counters only ever increase.
type ScanCounters struct {
	TotalPagesFound      int
	PagesProcessed       int
	PagesFailed          int
	SnippetsProcessed    int
	BiasedPagesCount     int
	FlaggedSnippetsCount int
}

// FailureRatio returns the fraction of discovered pages that failed.
// Zero until any pages have been found.
func (s *Scan) FailureRatio() float64 {
	if s.TotalPagesFound == 0 {
		return 0
	}
	return float64(s.PagesFailed) / float64(s.TotalPagesFound)
}
