package models

import "time"

// FileProcessingHistory is the cross-scan incremental-processing ledger,
// keyed by source unit identity (normalized URL or repository path)
// independent of any specific scan.
//
// The change-detection gate reads it before any expensive work; it is only
// written after a unit has been fully and successfully processed.
type FileProcessingHistory struct {
	UnitID          string    `json:"unit_id" badgerhold:"key"`
	ContentHash     string    `json:"content_hash"`
	RevisionMarker  string    `json:"revision_marker,omitempty"`
	LastProcessedAt time.Time `json:"last_processed_at"`

	SnippetsFound int  `json:"snippets_found"`
	BiasDetected  bool `json:"bias_detected"`
}
