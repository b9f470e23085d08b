package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/linuxfirst/docscan/internal/common"
	"github.com/linuxfirst/docscan/internal/models"
	"github.com/ternarybob/arbor"
)

// HTTPFetcher retrieves web pages under a global and a per-host concurrency
// ceiling. It performs no retries; transient failures go back to the caller
// so retry policy stays centralized in the scan workers.
type HTTPFetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	logger      arbor.ILogger

	// global and per-host in-flight ceilings
	global    chan struct{}
	hostLimit int
	hostMu    sync.Mutex
	hostSlots map[string]chan struct{}
}

// NewHTTPFetcher creates a fetcher bounded by the fetch configuration
func NewHTTPFetcher(cfg *common.FetchConfig, logger arbor.ILogger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		userAgent:   cfg.UserAgent,
		maxBodySize: int64(cfg.MaxBodySize),
		logger:      logger,
		global:      make(chan struct{}, cfg.MaxConcurrency),
		hostLimit:   cfg.MaxHostConcurrency,
		hostSlots:   make(map[string]chan struct{}),
	}
}

// Fetch retrieves one page. Returns a typed *Error on failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, unitID string) (*models.FetchResult, error) {
	parsed, err := url.Parse(unitID)
	if err != nil {
		return nil, &Error{Kind: KindFatal, Unit: unitID, Err: fmt.Errorf("invalid URL: %w", err)}
	}

	// Acquire the global slot first, then the per-host slot
	select {
	case f.global <- struct{}{}:
		defer func() { <-f.global }()
	case <-ctx.Done():
		return nil, &Error{Kind: KindTransient, Unit: unitID, Err: ctx.Err()}
	}

	hostSlot := f.slotFor(parsed.Host)
	select {
	case hostSlot <- struct{}{}:
		defer func() { <-hostSlot }()
	case <-ctx.Done():
		return nil, &Error{Kind: KindTransient, Unit: unitID, Err: ctx.Err()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, unitID, nil)
	if err != nil {
		return nil, &Error{Kind: KindFatal, Unit: unitID, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,text/markdown,text/plain")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: classifyNetErr(err), Unit: unitID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Kind:       classifyStatus(resp.StatusCode),
			Unit:       unitID,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, &Error{Kind: classifyNetErr(err), Unit: unitID, Err: fmt.Errorf("reading body: %w", err)}
	}

	result := &models.FetchResult{
		UnitID:      unitID,
		Content:     body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		FetchedAt:   time.Now(),
	}

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			result.LastModified = &t
		}
	}

	f.logger.Debug().
		Str("url", unitID).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Fetched page")

	return result, nil
}

// slotFor returns the per-host semaphore, creating it on first use
func (f *HTTPFetcher) slotFor(host string) chan struct{} {
	f.hostMu.Lock()
	defer f.hostMu.Unlock()

	slot, ok := f.hostSlots[host]
	if !ok {
		slot = make(chan struct{}, f.hostLimit)
		f.hostSlots[host] = slot
	}
	return slot
}
