package models

import "time"

// FetchResult is the raw content plus metadata returned by a source fetcher
type FetchResult struct {
	UnitID      string     `json:"unit_id"`
	Content     []byte     `json:"content"`
	ContentType string     `json:"content_type,omitempty"`
	StatusCode  int        `json:"status_code,omitempty"`
	// RevisionMarker is the external change identifier when the source
	// provides one (e.g. a GitHub blob SHA); empty for plain web fetches
	RevisionMarker string     `json:"revision_marker,omitempty"`
	LastModified   *time.Time `json:"last_modified,omitempty"`
	FetchedAt      time.Time  `json:"fetched_at"`
}
