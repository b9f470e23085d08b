package models

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// Unit kinds routed through the work queues
const (
	UnitKindPage     = "page"      // web document awaiting fetch+extract
	UnitKindRepoFile = "repo_file" // repository file awaiting fetch+extract
	UnitKindClassify = "classify"  // extracted page awaiting classification
)

// QueueMessage is the unit of work carried by the crawl and classify queues.
// It carries enough context to be processed idempotently by any worker.
type QueueMessage struct {
	ScanID   string `json:"scan_id"`
	UnitID   string `json:"unit_id"` // normalized URL or repository path
	UnitKind string `json:"unit_kind"`
	// AttemptCount is the delivery count observed by the consumer; capped by
	// the queue's max-receive poison protection
	AttemptCount int             `json:"attempt_count"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// CrawlPayload carries unit-kind-specific context for fetch units
type CrawlPayload struct {
	Depth int `json:"depth"`
	// SHA is the blob SHA known at discovery time for repository files
	SHA string `json:"sha,omitempty"`
}

// ClassifyPayload identifies the extracted page awaiting scoring
type ClassifyPayload struct {
	PageID string `json:"page_id"`
}

// SetPayload marshals a typed payload into the message
func (m *QueueMessage) SetPayload(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.Payload = data
	return nil
}

// CrawlPayload decodes the payload as a CrawlPayload
func (m *QueueMessage) CrawlPayload() (*CrawlPayload, error) {
	var p CrawlPayload
	if len(m.Payload) == 0 {
		return &p, nil
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ClassifyPayload decodes the payload as a ClassifyPayload
func (m *QueueMessage) ClassifyPayload() (*ClassifyPayload, error) {
	var p ClassifyPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
