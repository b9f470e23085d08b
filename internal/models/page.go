package models

import (
	"fmt"
	"time"
)

// PageStatus represents the processing state of one discovered document unit
type PageStatus string

const (
	// PageStatusQueued marks a discovered unit whose crawl message has been
	// enqueued but not yet processed
	PageStatusQueued    PageStatus = "queued"
	PageStatusProcessed PageStatus = "processed"
	// PageStatusSkippedNoChange marks units short-circuited by the change-detection gate
	PageStatusSkippedNoChange PageStatus = "skipped_no_change"
	// PageStatusSkippedWindowsFocus marks pages whose title declares intentional
	// Windows focus; scoring them would only produce noise
	PageStatusSkippedWindowsFocus PageStatus = "skipped_windows_focus"
	PageStatusFailed              PageStatus = "failed"
)

// HolisticResult is the whole-page bias verdict, distinct from per-snippet scores
type HolisticResult struct {
	BiasDetected    bool     `json:"bias_detected"`
	Categories      []string `json:"categories,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	// Method records which stage produced the verdict: "heuristic" or "llm"
	Method string `json:"method"`
}

// Page represents one discovered document unit within a scan.
//
// The ID is derived from (scan_id, normalized URL) so there is at most one
// row per pair and every write is an idempotent upsert. Two workers racing
// on the same rediscovered URL converge last-writer-wins on a whole row,
// never an interleaved one.
type Page struct {
	ID     string `json:"id" badgerhold:"key"`
	ScanID string `json:"scan_id" badgerhold:"index"`
	URL    string `json:"url"`

	Status PageStatus `json:"status"`
	Title  string     `json:"title,omitempty"`

	// ContentMarkdown holds the normalized page content used for holistic
	// review, so the scoring stage never refetches the source
	ContentMarkdown string `json:"content_markdown,omitempty"`

	// ContentHash is the fingerprint of normalized content, recomputed on
	// every fetch and compared against FileProcessingHistory
	ContentHash string `json:"content_hash,omitempty"`

	// RevisionMarker is an external change identifier (e.g. a blob SHA) that
	// short-circuits the fingerprint comparison when it matches
	RevisionMarker string `json:"revision_marker,omitempty"`

	LastModified  *time.Time `json:"last_modified,omitempty"`
	LastScannedAt time.Time  `json:"last_scanned_at"`

	// SnippetCount is the number of snippets extracted on the last processing pass
	SnippetCount int `json:"snippet_count"`

	// Holistic is nil until the page has been scored
	Holistic *HolisticResult `json:"holistic,omitempty"`

	// FailureMessage is set when Status is failed
	FailureMessage string `json:"failure_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PageKey builds the deterministic Page ID for a (scan, normalized URL)
// pair. The URL must already be normalized by the discoverer.
func PageKey(scanID, normalizedURL string) string {
	return fmt.Sprintf("page_%s_%s", scanID, normalizedURL)
}
