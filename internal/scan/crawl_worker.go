package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/linuxfirst/docscan/internal/common"
	"github.com/linuxfirst/docscan/internal/extractor"
	"github.com/linuxfirst/docscan/internal/fetcher"
	"github.com/linuxfirst/docscan/internal/gate"
	"github.com/linuxfirst/docscan/internal/heuristics"
	"github.com/linuxfirst/docscan/internal/interfaces"
	"github.com/linuxfirst/docscan/internal/models"
	"github.com/ternarybob/arbor"
)

// CrawlWorker processes one fetch unit per delivery: fetch, change-detection
// gate, link discovery, snippet extraction, and heuristic scoring. Returning
// an error leaves the message unacked for visibility-timeout redelivery;
// returning nil acknowledges it.
type CrawlWorker struct {
	orch   *Orchestrator
	retry  *RetryPolicy
	logger arbor.ILogger
}

func NewCrawlWorker(orch *Orchestrator, logger arbor.ILogger) *CrawlWorker {
	return &CrawlWorker{
		orch:   orch,
		retry:  NewRetryPolicy(),
		logger: logger,
	}
}

// Handle routes web pages and repository files through the same pipeline;
// only the fetcher and the extractor differ by unit kind.
func (w *CrawlWorker) Handle(ctx context.Context, delivery *interfaces.QueueDelivery) error {
	msg := delivery.Message

	r, err := w.orch.runFor(ctx, msg.ScanID)
	if err != nil {
		return fmt.Errorf("failed to resolve scan run: %w", err)
	}

	scan, err := w.orch.storage.ScanStorage().GetScan(ctx, msg.ScanID)
	if err != nil {
		return err
	}
	if scan.Status.IsTerminal() || scan.CancellationRequested {
		w.logger.Debug().Str("scan_id", msg.ScanID).Str("unit", msg.UnitID).Msg("Dropping unit for inactive scan")
		return nil
	}

	payload, err := msg.CrawlPayload()
	if err != nil {
		w.logger.Warn().Err(err).Str("unit", msg.UnitID).Msg("Unreadable crawl payload, dropping unit")
		return nil
	}

	var src interfaces.SourceFetcher
	switch msg.UnitKind {
	case models.UnitKindPage:
		src = w.orch.webFetcher
	case models.UnitKindRepoFile:
		src = r.repo
	default:
		w.logger.Warn().Str("unit_kind", msg.UnitKind).Msg("Unknown crawl unit kind, dropping")
		return nil
	}

	result, err := w.retry.FetchWithRetry(ctx, w.logger, func() (*models.FetchResult, error) {
		return src.Fetch(ctx, msg.UnitID)
	})
	if err != nil {
		return w.handleFetchFailure(ctx, msg, err)
	}

	return w.process(ctx, r, scan, msg, payload, result)
}

// handleFetchFailure persists terminal failures and defers transient ones to
// queue redelivery. A transient failure on the unit's final delivery is
// terminal too, since the queue will poison-drop the next attempt.
func (w *CrawlWorker) handleFetchFailure(ctx context.Context, msg models.QueueMessage, err error) error {
	kind := fetcher.KindOf(err)
	finalAttempt := w.orch.cfg.Queue.MaxReceive > 0 && msg.AttemptCount >= w.orch.cfg.Queue.MaxReceive

	if fetcher.IsRetryable(err) && !finalAttempt {
		_ = w.orch.storage.ScanStorage().AppendError(ctx, msg.ScanID, msg.UnitID, err.Error())
		w.logger.Warn().
			Err(err).
			Str("unit", msg.UnitID).
			Int("attempt", msg.AttemptCount).
			Msg("Transient fetch failure, leaving unit for redelivery")
		return err
	}

	page := &models.Page{
		ScanID:         msg.ScanID,
		URL:            msg.UnitID,
		Status:         models.PageStatusFailed,
		FailureMessage: err.Error(),
		LastScannedAt:  time.Now(),
	}
	if upsertErr := w.orch.storage.PageStorage().UpsertPage(ctx, page); upsertErr != nil {
		return upsertErr
	}
	_ = w.orch.storage.ScanStorage().AppendError(ctx, msg.ScanID, msg.UnitID, err.Error())
	if cErr := w.orch.storage.ScanStorage().IncrementCounters(ctx, msg.ScanID, models.ScanCounters{PagesFailed: 1}); cErr != nil {
		return cErr
	}

	w.logger.Warn().
		Err(err).
		Str("unit", msg.UnitID).
		Str("kind", string(kind)).
		Msg("Unit failed permanently")
	return nil
}

func (w *CrawlWorker) process(ctx context.Context, r *run, scan *models.Scan, msg models.QueueMessage, payload *models.CrawlPayload, result *models.FetchResult) error {
	var (
		markdown string
		title    string
	)

	switch msg.UnitKind {
	case models.UnitKindPage:
		var err error
		markdown, title, err = extractor.NormalizeHTML(msg.UnitID, result.Content)
		if err != nil {
			// Unconvertible markup is a permanent unit failure, not a
			// transient fetch problem
			return w.handleFetchFailure(ctx, msg, &fetcher.Error{Kind: fetcher.KindFatal, Unit: msg.UnitID, Err: err})
		}
	case models.UnitKindRepoFile:
		markdown = string(result.Content)
		title = extractor.MarkdownTitle(result.Content)
	}

	now := time.Now()
	pageID := models.PageKey(msg.ScanID, msg.UnitID)
	page := &models.Page{
		ID:             pageID,
		ScanID:         msg.ScanID,
		URL:            msg.UnitID,
		Title:          title,
		ContentHash:    common.Fingerprint([]byte(markdown)),
		RevisionMarker: result.RevisionMarker,
		LastModified:   result.LastModified,
		LastScannedAt:  now,
	}

	// Pages that declare themselves Windows documentation are out of scope;
	// flagging them would only produce noise.
	if heuristics.IsWindowsFocusedTitle(title) {
		page.Status = models.PageStatusSkippedWindowsFocus
		if err := w.orch.storage.PageStorage().UpsertPage(ctx, page); err != nil {
			return err
		}
		w.logger.Debug().Str("unit", msg.UnitID).Str("title", title).Msg("Skipping Windows-focused page")
		return w.orch.storage.ScanStorage().IncrementCounters(ctx, msg.ScanID, models.ScanCounters{PagesProcessed: 1})
	}

	// Discovery runs regardless of the gate outcome: an unchanged page
	// still links to pages that may have changed.
	if msg.UnitKind == models.UnitKindPage && payload.Depth < w.orch.cfg.Crawl.MaxDepth {
		if err := w.fanOut(ctx, r, msg, payload.Depth+1, result.Content); err != nil {
			return err
		}
	}

	return w.finishUnit(ctx, r, scan, msg, page, result, markdown)
}

// fanOut turns discovered links into queued units. Each link is made
// durable before it is marked visited: the found counter is incremented,
// the unit is enqueued, and a queued page row is written, in that order.
// A failure mid fan-out releases the link again, so redelivery of the
// parent picks up the remaining links instead of dropping them. The page
// row is the cross-restart dedup record; an interrupted link is at worst
// counted or enqueued a second time, which keeps pages_processed within
// total_pages_found.
func (w *CrawlWorker) fanOut(ctx context.Context, r *run, msg models.QueueMessage, depth int, content []byte) error {
	for _, link := range r.discoverer.Discover(msg.UnitID, content) {
		if !r.visited.MarkVisited(link) {
			continue
		}

		if existing, err := w.orch.storage.PageStorage().GetPageByURL(ctx, msg.ScanID, link); err == nil && existing != nil {
			// A prior delivery of this parent already fanned the link out
			continue
		}

		if err := w.orch.storage.ScanStorage().IncrementCounters(ctx, msg.ScanID, models.ScanCounters{TotalPagesFound: 1}); err != nil {
			r.visited.Forget(link)
			return err
		}
		if err := w.orch.enqueueCrawl(ctx, msg.ScanID, models.UnitKindPage, link, models.CrawlPayload{Depth: depth}); err != nil {
			r.visited.Forget(link)
			return err
		}
		if err := w.orch.storage.PageStorage().UpsertPage(ctx, &models.Page{
			ScanID: msg.ScanID,
			URL:    link,
			Status: models.PageStatusQueued,
		}); err != nil {
			r.visited.Forget(link)
			return err
		}
	}
	return nil
}

func (w *CrawlWorker) finishUnit(ctx context.Context, r *run, scan *models.Scan, msg models.QueueMessage, page *models.Page, result *models.FetchResult, markdown string) error {
	history, err := w.orch.storage.HistoryStorage().GetHistory(ctx, msg.UnitID)
	if err != nil {
		return err
	}
	decision := gate.Evaluate(history, page.ContentHash, result.RevisionMarker, r.force || scan.ForceRescan)
	if !decision.ShouldProcess() {
		page.Status = models.PageStatusSkippedNoChange
		if err := w.orch.storage.PageStorage().UpsertPage(ctx, page); err != nil {
			return err
		}
		w.logger.Debug().Str("unit", msg.UnitID).Msg("Unit unchanged since last scan, skipping extraction")
		return w.orch.storage.ScanStorage().IncrementCounters(ctx, msg.ScanID, models.ScanCounters{PagesProcessed: 1})
	}

	var blocks []extractor.Block
	switch msg.UnitKind {
	case models.UnitKindPage:
		blocks = extractor.ExtractHTML(result.Content)
	case models.UnitKindRepoFile:
		blocks = extractor.ExtractMarkdown(result.Content)
	}

	page.Status = models.PageStatusProcessed
	page.ContentMarkdown = markdown
	page.SnippetCount = len(blocks)
	if err := w.orch.storage.PageStorage().UpsertPage(ctx, page); err != nil {
		return err
	}

	for i, block := range blocks {
		score := heuristics.Evaluate(heuristics.Input{
			Code:               block.Code,
			Context:            block.Context,
			URL:                msg.UnitID,
			UnderPowerShellTab: block.UnderPowerShellTab,
			WindowsHeader:      block.WindowsHeader,
		})
		snippet := &models.Snippet{
			PageID:    page.ID,
			ScanID:    msg.ScanID,
			Ordinal:   i,
			Context:   block.Context,
			Code:      block.Code,
			Heuristic: &score,
		}
		if err := w.orch.storage.SnippetStorage().UpsertSnippet(ctx, snippet); err != nil {
			return err
		}
	}

	if err := w.orch.storage.ScanStorage().IncrementCounters(ctx, msg.ScanID, models.ScanCounters{
		PagesProcessed:    1,
		SnippetsProcessed: len(blocks),
	}); err != nil {
		return err
	}

	if err := w.orch.enqueueClassify(ctx, msg.ScanID, msg.UnitID, page.ID); err != nil {
		return err
	}

	w.logger.Debug().
		Str("unit", msg.UnitID).
		Int("snippets", len(blocks)).
		Str("decision", string(decision)).
		Msg("Unit processed")
	return nil
}
