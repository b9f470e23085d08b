package scan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linuxfirst/docscan/internal/common"
	"github.com/linuxfirst/docscan/internal/discover"
	"github.com/linuxfirst/docscan/internal/fetcher"
	"github.com/linuxfirst/docscan/internal/interfaces"
	"github.com/linuxfirst/docscan/internal/models"
	"github.com/ternarybob/arbor"
)

// run is the in-memory side of one active scan: the visited set, the
// discoverer, and a handle on the corpus fetcher. All durable state lives
// in storage; a run can be rebuilt from it after a restart.
type run struct {
	scanID     string
	rootURL    string
	kind       models.TargetKind
	force      bool
	visited    *discover.VisitedSet
	discoverer *discover.LinkDiscoverer
	repo       *fetcher.GitHubFetcher

	classifyBatches atomic.Int64

	// consecutive empty-queue observations, used to let in-flight units
	// finish before a phase advances
	crawlDrained    int
	classifyDrained int
}

// Orchestrator owns the scan lifecycle: it seeds the crawl queue, watches
// queue depth to advance phases, enforces the failure budget, honors
// cancellation, and finalizes terminal scans with performance metrics.
type Orchestrator struct {
	cfg           *common.Config
	storage       interfaces.StorageManager
	crawlQueue    interfaces.Queue
	classifyQueue interfaces.Queue
	webFetcher    interfaces.SourceFetcher
	logger        arbor.ILogger

	mu   sync.Mutex
	runs map[string]*run

	monitorInterval time.Duration
	wg              sync.WaitGroup
	ctx             context.Context
	cancel          context.CancelFunc
}

// NewOrchestrator creates an orchestrator over the shared queues and storage
func NewOrchestrator(cfg *common.Config, storage interfaces.StorageManager, crawlQueue, classifyQueue interfaces.Queue, webFetcher interfaces.SourceFetcher, logger arbor.ILogger) (*Orchestrator, error) {
	interval, err := time.ParseDuration(cfg.Scan.MonitorInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid scan monitor_interval '%s': %w", cfg.Scan.MonitorInterval, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:             cfg,
		storage:         storage,
		crawlQueue:      crawlQueue,
		classifyQueue:   classifyQueue,
		webFetcher:      webFetcher,
		logger:          logger,
		runs:            make(map[string]*run),
		monitorInterval: interval,
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// StartScan creates a scan record, seeds the crawl queue with the corpus
// roots, and starts the monitor goroutine that drives the state machine.
// Returns the new scan ID.
func (o *Orchestrator) StartScan(ctx context.Context, targetURL string, kind models.TargetKind, force bool) (string, error) {
	scanID := common.NewScanID()
	now := time.Now()

	r := &run{
		scanID:  scanID,
		kind:    kind,
		force:   force,
		visited: discover.NewVisitedSet(),
	}

	switch kind {
	case models.TargetKindWeb:
		r.rootURL = common.NormalizeURL(targetURL)
		r.discoverer = discover.NewLinkDiscoverer(r.rootURL, r.visited, o.cfg.Crawl.MaxPages, o.logger)
	case models.TargetKindGitHub:
		ref, err := fetcher.ParseRepoRef(targetURL)
		if err != nil {
			return "", fmt.Errorf("invalid repository target: %w", err)
		}
		r.rootURL = ref.String()
		r.repo = fetcher.NewGitHubFetcher(ctx, o.cfg.GitHub.Token, ref, o.logger)
	default:
		return "", fmt.Errorf("unknown target kind: %s", kind)
	}

	scan := &models.Scan{
		ID:           scanID,
		TargetURL:    r.rootURL,
		Kind:         kind,
		ForceRescan:  force,
		Status:       models.ScanStatusPending,
		CurrentPhase: models.PhaseSetup,
		StartedAt:    now,
		PhaseTimestamps: map[models.ScanPhase]time.Time{
			models.PhaseSetup: now,
		},
	}
	if err := o.storage.ScanStorage().SaveScan(ctx, scan); err != nil {
		return "", err
	}
	if err := o.storage.ScanStorage().SetStatus(ctx, scanID, models.ScanStatusInProgress); err != nil {
		return "", err
	}

	seeded, err := o.seed(ctx, r)
	if err != nil {
		o.failScan(scanID, fmt.Sprintf("seeding failed: %v", err))
		return scanID, err
	}
	if seeded == 0 {
		// Nothing to audit: terminal immediately
		_ = o.storage.ScanStorage().Finalize(ctx, scanID, func(s *models.Scan) {
			s.CurrentPhase = models.PhaseComplete
		})
		_ = o.storage.ScanStorage().SetStatus(ctx, scanID, models.ScanStatusCompleted)
		o.logger.Warn().Str("scan_id", scanID).Str("target", r.rootURL).Msg("Scan found no units to audit")
		return scanID, nil
	}

	if err := o.storage.ScanStorage().IncrementCounters(ctx, scanID, models.ScanCounters{TotalPagesFound: seeded}); err != nil {
		return scanID, err
	}
	if err := o.storage.ScanStorage().SetPhase(ctx, scanID, models.PhaseCrawling); err != nil {
		return scanID, err
	}

	o.mu.Lock()
	o.runs[scanID] = r
	o.mu.Unlock()

	o.wg.Add(1)
	go o.monitor(r)

	o.logger.Info().
		Str("scan_id", scanID).
		Str("target", r.rootURL).
		Str("kind", string(kind)).
		Int("seeded", seeded).
		Bool("force", force).
		Msg("Scan started")

	return scanID, nil
}

// seed enqueues the initial units: the root page for a web corpus, or every
// in-scope markdown file for a repository corpus.
func (o *Orchestrator) seed(ctx context.Context, r *run) (int, error) {
	switch r.kind {
	case models.TargetKindWeb:
		r.visited.MarkVisited(r.rootURL)
		if err := o.enqueueCrawl(ctx, r.scanID, models.UnitKindPage, r.rootURL, models.CrawlPayload{Depth: 0}); err != nil {
			return 0, err
		}
		return 1, nil

	case models.TargetKindGitHub:
		files, err := r.repo.ListMarkdownFiles(ctx)
		if err != nil {
			return 0, err
		}
		repoDisc := discover.NewRepoDiscoverer(r.visited, o.cfg.Crawl.MaxPages, o.logger)
		selected := repoDisc.Discover(files)
		for _, f := range selected {
			if err := o.enqueueCrawl(ctx, r.scanID, models.UnitKindRepoFile, f.Path, models.CrawlPayload{SHA: f.SHA}); err != nil {
				return 0, err
			}
		}
		return len(selected), nil
	}
	return 0, fmt.Errorf("unknown target kind: %s", r.kind)
}

func (o *Orchestrator) enqueueCrawl(ctx context.Context, scanID, unitKind, unitID string, payload models.CrawlPayload) error {
	msg := models.QueueMessage{
		ScanID:     scanID,
		UnitID:     unitID,
		UnitKind:   unitKind,
		EnqueuedAt: time.Now(),
	}
	if err := msg.SetPayload(payload); err != nil {
		return err
	}
	return o.crawlQueue.Enqueue(ctx, msg)
}

func (o *Orchestrator) enqueueClassify(ctx context.Context, scanID, unitID, pageID string) error {
	msg := models.QueueMessage{
		ScanID:     scanID,
		UnitID:     unitID,
		UnitKind:   models.UnitKindClassify,
		EnqueuedAt: time.Now(),
	}
	if err := msg.SetPayload(models.ClassifyPayload{PageID: pageID}); err != nil {
		return err
	}
	return o.classifyQueue.Enqueue(ctx, msg)
}

// RequestCancel flags the scan for cooperative cancellation. Workers stop
// picking up its units and the monitor drives it to the cancelled status.
func (o *Orchestrator) RequestCancel(ctx context.Context, scanID, reason string) error {
	return o.storage.ScanStorage().RequestCancellation(ctx, scanID, reason, time.Now())
}

// monitor is the per-scan state machine driver. It watches queue depth to
// advance phases, enforces the failure budget, and finalizes the scan.
// A phase advances only after the queue has been empty for two consecutive
// checks, giving in-flight units time to finish or re-enqueue.
func (o *Orchestrator) monitor(r *run) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
		}

		scan, err := o.storage.ScanStorage().GetScan(o.ctx, r.scanID)
		if err != nil {
			o.logger.Error().Err(err).Str("scan_id", r.scanID).Msg("Monitor failed to load scan")
			continue
		}
		if scan.Status.IsTerminal() {
			o.cleanup(r.scanID)
			return
		}

		if scan.CancellationRequested {
			_ = o.storage.ScanStorage().SetStatus(o.ctx, r.scanID, models.ScanStatusCancelled)
			o.logger.Info().Str("scan_id", r.scanID).Str("reason", scan.CancellationReason).Msg("Scan cancelled")
			o.cleanup(r.scanID)
			return
		}

		if o.cfg.Scan.FailureBudget > 0 && scan.TotalPagesFound > 0 && scan.FailureRatio() > o.cfg.Scan.FailureBudget {
			o.failScan(r.scanID, fmt.Sprintf("failure budget exceeded: %d of %d units failed", scan.PagesFailed, scan.TotalPagesFound))
			o.cleanup(r.scanID)
			return
		}

		o.updateProgress(scan)

		crawlLen, err := o.crawlQueue.Len(o.ctx)
		if err != nil {
			continue
		}
		classifyLen, err := o.classifyQueue.Len(o.ctx)
		if err != nil {
			continue
		}

		switch scan.CurrentPhase {
		case models.PhaseCrawling:
			if crawlLen == 0 {
				r.crawlDrained++
				if r.crawlDrained >= 2 {
					_ = o.storage.ScanStorage().SetPhase(o.ctx, r.scanID, models.PhaseExtracting)
				}
			} else {
				r.crawlDrained = 0
			}

		case models.PhaseExtracting:
			// Extraction runs inline with crawling; once the crawl queue
			// stays drained the only remaining work is scoring.
			if crawlLen == 0 {
				_ = o.storage.ScanStorage().SetPhase(o.ctx, r.scanID, models.PhaseScoring)
			}

		case models.PhaseScoring:
			if classifyLen == 0 && crawlLen == 0 {
				r.classifyDrained++
				if r.classifyDrained >= 2 {
					o.finalize(r)
					o.cleanup(r.scanID)
					return
				}
			} else {
				r.classifyDrained = 0
			}
		}
	}
}

// updateProgress refreshes the in-flight progress ratio and the completion
// estimate from the counter state.
func (o *Orchestrator) updateProgress(scan *models.Scan) {
	if scan.TotalPagesFound == 0 {
		return
	}
	done := scan.PagesProcessed + scan.PagesFailed
	progress := float64(done) / float64(scan.TotalPagesFound)
	if progress > 1 {
		progress = 1
	}

	var estimate *time.Time
	elapsed := time.Since(scan.StartedAt)
	if done > 0 && progress < 1 {
		remaining := time.Duration(float64(elapsed) / progress * (1 - progress))
		t := time.Now().Add(remaining)
		estimate = &t
	}

	_ = o.storage.ScanStorage().Finalize(o.ctx, scan.ID, func(s *models.Scan) {
		if s.PhaseProgress == nil {
			s.PhaseProgress = make(map[models.ScanPhase]float64)
		}
		s.PhaseProgress[s.CurrentPhase] = progress
		s.EstimatedCompletion = estimate
	})
}

// finalize computes the performance metrics and drives the scan to its
// completed status.
func (o *Orchestrator) finalize(r *run) {
	_ = o.storage.ScanStorage().Finalize(o.ctx, r.scanID, func(s *models.Scan) {
		s.CurrentPhase = models.PhaseComplete
		if s.PhaseTimestamps == nil {
			s.PhaseTimestamps = make(map[models.ScanPhase]time.Time)
		}
		s.PhaseTimestamps[models.PhaseComplete] = time.Now()

		duration := time.Since(s.StartedAt).Seconds()
		metrics := &models.PerformanceMetrics{
			DurationSeconds:   duration,
			ClassifyBatchSent: int(r.classifyBatches.Load()),
		}
		if duration > 0 {
			metrics.PagesPerSecond = float64(s.PagesProcessed) / duration
		}
		if s.PagesProcessed > 0 {
			metrics.SnippetsPerPage = float64(s.SnippetsProcessed) / float64(s.PagesProcessed)
		}
		s.Performance = metrics
		s.EstimatedCompletion = nil
	})

	if err := o.storage.ScanStorage().SetStatus(o.ctx, r.scanID, models.ScanStatusCompleted); err != nil {
		o.logger.Error().Err(err).Str("scan_id", r.scanID).Msg("Failed to complete scan")
		return
	}

	scan, err := o.storage.ScanStorage().GetScan(o.ctx, r.scanID)
	if err == nil {
		o.logger.Info().
			Str("scan_id", r.scanID).
			Int("pages_processed", scan.PagesProcessed).
			Int("pages_failed", scan.PagesFailed).
			Int("snippets", scan.SnippetsProcessed).
			Int("biased_pages", scan.BiasedPagesCount).
			Int("flagged_snippets", scan.FlaggedSnippetsCount).
			Msg("Scan completed")
	}
}

func (o *Orchestrator) failScan(scanID, reason string) {
	_ = o.storage.ScanStorage().AppendError(o.ctx, scanID, "scan", reason)
	if err := o.storage.ScanStorage().SetStatus(o.ctx, scanID, models.ScanStatusFailed); err != nil {
		o.logger.Error().Err(err).Str("scan_id", scanID).Msg("Failed to mark scan failed")
	}
	o.logger.Error().Str("scan_id", scanID).Str("reason", reason).Msg("Scan failed")
}

func (o *Orchestrator) cleanup(scanID string) {
	o.mu.Lock()
	delete(o.runs, scanID)
	o.mu.Unlock()
}

// runFor returns the in-memory run for a scan, rebuilding it from storage
// when the process restarted mid-scan. The visited set is repopulated from
// the pages already recorded so rediscovered links are not re-enqueued.
func (o *Orchestrator) runFor(ctx context.Context, scanID string) (*run, error) {
	o.mu.Lock()
	if r, ok := o.runs[scanID]; ok {
		o.mu.Unlock()
		return r, nil
	}
	o.mu.Unlock()

	scan, err := o.storage.ScanStorage().GetScan(ctx, scanID)
	if err != nil {
		return nil, err
	}

	r := &run{
		scanID:  scanID,
		rootURL: scan.TargetURL,
		kind:    scan.Kind,
		force:   scan.ForceRescan,
		visited: discover.NewVisitedSet(),
	}
	switch scan.Kind {
	case models.TargetKindWeb:
		r.discoverer = discover.NewLinkDiscoverer(r.rootURL, r.visited, o.cfg.Crawl.MaxPages, o.logger)
	case models.TargetKindGitHub:
		ref, err := fetcher.ParseRepoRef(scan.TargetURL)
		if err != nil {
			return nil, err
		}
		r.repo = fetcher.NewGitHubFetcher(ctx, o.cfg.GitHub.Token, ref, o.logger)
	}

	pages, err := o.storage.PageStorage().ListPagesByScan(ctx, scanID)
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		r.visited.MarkVisited(p.URL)
	}

	o.mu.Lock()
	if existing, ok := o.runs[scanID]; ok {
		o.mu.Unlock()
		return existing, nil
	}
	o.runs[scanID] = r
	o.mu.Unlock()

	o.wg.Add(1)
	go o.monitor(r)

	o.logger.Info().Str("scan_id", scanID).Int("visited", r.visited.Len()).Msg("Rebuilt scan run state from storage")
	return r, nil
}

// Stop halts all monitor goroutines. In-flight scans stay in storage and
// resume when their units are next delivered.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.wg.Wait()
}
