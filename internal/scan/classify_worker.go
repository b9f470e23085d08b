package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/linuxfirst/docscan/internal/heuristics"
	"github.com/linuxfirst/docscan/internal/interfaces"
	"github.com/linuxfirst/docscan/internal/models"
	"github.com/ternarybob/arbor"
)

// maxPageReviewChars bounds the page content sent for holistic review
const maxPageReviewChars = 12000

// ClassifyWorker runs the deep-review stage for one extracted page: it
// escalates heuristic-flagged snippets in batches, requests a holistic page
// verdict, and writes the cross-scan history entry. When no provider is
// configured the heuristic results become the authoritative verdicts.
type ClassifyWorker struct {
	orch     *Orchestrator
	provider interfaces.LLMProvider
	logger   arbor.ILogger
}

func NewClassifyWorker(orch *Orchestrator, provider interfaces.LLMProvider, logger arbor.ILogger) *ClassifyWorker {
	return &ClassifyWorker{
		orch:     orch,
		provider: provider,
		logger:   logger,
	}
}

func (w *ClassifyWorker) Handle(ctx context.Context, delivery *interfaces.QueueDelivery) error {
	msg := delivery.Message

	payload, err := msg.ClassifyPayload()
	if err != nil {
		w.logger.Warn().Err(err).Str("unit", msg.UnitID).Msg("Unreadable classify payload, dropping unit")
		return nil
	}

	scan, err := w.orch.storage.ScanStorage().GetScan(ctx, msg.ScanID)
	if err != nil {
		return err
	}
	if scan.Status.IsTerminal() || scan.CancellationRequested {
		w.logger.Debug().Str("scan_id", msg.ScanID).Str("unit", msg.UnitID).Msg("Dropping classify unit for inactive scan")
		return nil
	}

	page, err := w.orch.storage.PageStorage().GetPage(ctx, payload.PageID)
	if err != nil {
		w.logger.Warn().Err(err).Str("page_id", payload.PageID).Msg("Classify unit references missing page, dropping")
		return nil
	}

	snippets, err := w.orch.storage.SnippetStorage().ListSnippetsByPage(ctx, payload.PageID)
	if err != nil {
		return err
	}

	var (
		holistic   *models.HolisticResult
		incomplete bool
	)
	if w.provider.Enabled() {
		holistic, incomplete, err = w.deepReview(ctx, msg.ScanID, page, snippets)
		if err != nil {
			return err
		}
	} else {
		holistic = heuristicHolistic(page, snippets)
	}

	page.Holistic = holistic
	if err := w.orch.storage.PageStorage().UpsertPage(ctx, page); err != nil {
		return err
	}

	// A unit whose deep review ended in a final batch failure gets no history
	// entry: without one the change gate reprocesses it on the next scan, so
	// the failed escalation is retried without forcing a rescan.
	if incomplete {
		w.logger.Warn().Str("unit", msg.UnitID).Msg("Deep review incomplete, leaving unit eligible for the next scan")
	} else if err := w.orch.storage.HistoryStorage().UpsertHistory(ctx, &models.FileProcessingHistory{
		UnitID:          page.URL,
		ContentHash:     page.ContentHash,
		RevisionMarker:  page.RevisionMarker,
		LastProcessedAt: time.Now(),
		SnippetsFound:   page.SnippetCount,
		BiasDetected:    holistic.BiasDetected,
	}); err != nil {
		return err
	}

	counters := models.ScanCounters{FlaggedSnippetsCount: countFlagged(snippets)}
	if holistic.BiasDetected {
		counters.BiasedPagesCount = 1
	}
	if err := w.orch.storage.ScanStorage().IncrementCounters(ctx, msg.ScanID, counters); err != nil {
		return err
	}

	w.logger.Debug().
		Str("unit", msg.UnitID).
		Bool("biased", holistic.BiasDetected).
		Str("method", holistic.Method).
		Msg("Page classified")
	return nil
}

// deepReview escalates flagged snippets and the page itself to the provider.
// A batch that fails after the provider's own retries leaves its snippets'
// LLM scores unset and records the failure in the scan's error log; the
// heuristic verdicts stand. The incomplete flag reports whether any batch
// ended in such a final failure, which suppresses the history write so the
// next scan retries the unit.
func (w *ClassifyWorker) deepReview(ctx context.Context, scanID string, page *models.Page, snippets []*models.Snippet) (holistic *models.HolisticResult, incomplete bool, err error) {
	r, err := w.orch.runFor(ctx, scanID)
	if err != nil {
		return nil, false, err
	}

	flagged := make([]*models.Snippet, 0, len(snippets))
	for _, s := range snippets {
		if s.Heuristic != nil && s.Heuristic.Biased {
			flagged = append(flagged, s)
		}
	}

	batchSize := w.orch.cfg.Classify.BatchSize
	for start := 0; start < len(flagged); start += batchSize {
		end := start + batchSize
		if end > len(flagged) {
			end = len(flagged)
		}
		batch := flagged[start:end]

		items := make([]interfaces.ClassifyItem, len(batch))
		for i, s := range batch {
			items[i] = interfaces.ClassifyItem{
				ID:      s.ID,
				Content: s.Code,
				Context: s.Context,
			}
		}

		r.classifyBatches.Add(1)
		verdicts, batchErr := w.provider.ClassifyBatch(ctx, interfaces.ClassifyModeSnippet, items)
		if batchErr != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			// Recoverable: heuristic scores stand, failure is recorded per unit
			for _, s := range batch {
				_ = w.orch.storage.ScanStorage().AppendError(ctx, scanID, s.ID, fmt.Sprintf("deep review failed: %v", batchErr))
			}
			w.logger.Warn().Err(batchErr).Int("batch_size", len(batch)).Msg("Snippet review batch failed, keeping heuristic verdicts")
			incomplete = true
			continue
		}

		byID := make(map[string]interfaces.ClassifyVerdict, len(verdicts))
		for _, v := range verdicts {
			byID[v.ID] = v
		}
		for _, s := range batch {
			v, ok := byID[s.ID]
			if !ok {
				continue
			}
			s.LLM = &models.LLMScore{
				Biased:               v.BiasDetected,
				Categories:           v.Categories,
				Explanation:          v.Explanation,
				SuggestedAlternative: v.SuggestedAlternative,
				Method:               "llm",
			}
			if err := w.orch.storage.SnippetStorage().UpsertSnippet(ctx, s); err != nil {
				return nil, false, err
			}
		}
	}

	// Holistic page review runs only when something on the page warrants it
	if len(flagged) == 0 && !heuristics.PageHasWindowsSignals(page.ContentMarkdown) {
		return heuristicHolistic(page, snippets), incomplete, nil
	}

	content := page.ContentMarkdown
	if len(content) > maxPageReviewChars {
		content = content[:maxPageReviewChars]
	}
	r.classifyBatches.Add(1)
	verdicts, pageErr := w.provider.ClassifyBatch(ctx, interfaces.ClassifyModePage, []interfaces.ClassifyItem{
		{ID: page.ID, Content: content, Context: page.Title},
	})
	if pageErr != nil || len(verdicts) != 1 {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		_ = w.orch.storage.ScanStorage().AppendError(ctx, scanID, page.URL, fmt.Sprintf("holistic review failed: %v", pageErr))
		w.logger.Warn().Err(pageErr).Str("page_id", page.ID).Msg("Holistic review failed, falling back to heuristic verdict")
		return heuristicHolistic(page, snippets), true, nil
	}

	v := verdicts[0]
	return &models.HolisticResult{
		BiasDetected:    v.BiasDetected,
		Categories:      v.Categories,
		Summary:         v.Explanation,
		Recommendations: v.Recommendations,
		Method:          "llm",
	}, incomplete, nil
}

// heuristicHolistic aggregates the deterministic results into the page
// verdict used whenever the deep-review stage is absent or fails.
func heuristicHolistic(page *models.Page, snippets []*models.Snippet) *models.HolisticResult {
	categorySet := make(map[string]struct{})
	biasedSnippets := 0
	for _, s := range snippets {
		if s.Heuristic == nil || !s.Heuristic.Biased {
			continue
		}
		biasedSnippets++
		for _, rule := range s.Heuristic.Rules {
			categorySet[rule] = struct{}{}
		}
	}

	proseBias := heuristics.PageHasWindowsSignals(page.ContentMarkdown)
	biased := biasedSnippets > 0 || proseBias

	var categories []string
	for _, rule := range []string{
		heuristics.RulePowerShellOnly,
		heuristics.RuleWindowsPaths,
		heuristics.RuleWindowsCommands,
		heuristics.RuleWindowsTools,
		heuristics.RuleMissingLinuxAlternative,
		heuristics.RuleWindowsSpecificSyntax,
		heuristics.RuleWindowsRegistry,
		heuristics.RuleWindowsServices,
	} {
		if _, ok := categorySet[rule]; ok {
			categories = append(categories, rule)
		}
	}

	summary := "No platform bias signals detected"
	if biased {
		summary = fmt.Sprintf("%d of %d snippets triggered bias rules", biasedSnippets, len(snippets))
		if proseBias {
			summary += "; page prose contains Windows-leaning instructions"
		}
	}

	return &models.HolisticResult{
		BiasDetected: biased,
		Categories:   categories,
		Summary:      summary,
		Method:       "heuristic",
	}
}

// countFlagged counts snippets whose final verdict is biased, preferring the
// deep-review score when present.
func countFlagged(snippets []*models.Snippet) int {
	n := 0
	for _, s := range snippets {
		switch {
		case s.LLM != nil:
			if s.LLM.Biased {
				n++
			}
		case s.Heuristic != nil && s.Heuristic.Biased:
			n++
		}
	}
	return n
}
