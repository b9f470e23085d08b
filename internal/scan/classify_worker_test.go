package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linuxfirst/docscan/internal/gate"
	"github.com/linuxfirst/docscan/internal/heuristics"
	"github.com/linuxfirst/docscan/internal/interfaces"
	"github.com/linuxfirst/docscan/internal/models"
	badgerstore "github.com/linuxfirst/docscan/internal/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

// stubProvider is an enabled provider that either fails every batch or
// confirms every submitted item as biased.
type stubProvider struct {
	err error
}

func (p *stubProvider) Enabled() bool { return true }

func (p *stubProvider) ClassifyBatch(ctx context.Context, mode interfaces.ClassifyMode, items []interfaces.ClassifyItem) ([]interfaces.ClassifyVerdict, error) {
	if p.err != nil {
		return nil, p.err
	}
	verdicts := make([]interfaces.ClassifyVerdict, len(items))
	for i, item := range items {
		verdicts[i] = interfaces.ClassifyVerdict{
			ID:           item.ID,
			BiasDetected: true,
			Categories:   []string{heuristics.RuleWindowsTools},
			Explanation:  "Windows-only package manager",
		}
	}
	return verdicts, nil
}

func (p *stubProvider) Close() error { return nil }

func saveBiasedPage(t *testing.T, manager *badgerstore.Manager, scanID string) *models.Page {
	t.Helper()
	ctx := context.Background()

	page := &models.Page{
		ScanID:          scanID,
		URL:             crawlRoot + "/install",
		Status:          models.PageStatusProcessed,
		Title:           "Install the CLI",
		ContentMarkdown: "Install the CLI with choco install azure-cli.",
		ContentHash:     "fp_install_v1",
		SnippetCount:    1,
		LastScannedAt:   time.Now(),
	}
	require.NoError(t, manager.PageStorage().UpsertPage(ctx, page))

	snippet := &models.Snippet{
		PageID:    page.ID,
		ScanID:    scanID,
		Ordinal:   0,
		Code:      "choco install azure-cli",
		Heuristic: &models.HeuristicScore{Biased: true, Rules: []string{heuristics.RuleWindowsTools}},
	}
	require.NoError(t, manager.SnippetStorage().UpsertSnippet(ctx, snippet))
	return page
}

func classifyMessage(t *testing.T, scanID string, page *models.Page) models.QueueMessage {
	t.Helper()
	msg := models.QueueMessage{ScanID: scanID, UnitID: page.URL, UnitKind: models.UnitKindClassify}
	require.NoError(t, msg.SetPayload(models.ClassifyPayload{PageID: page.ID}))
	return msg
}

func TestClassifyFailedDeepReviewLeavesUnitRetryable(t *testing.T) {
	orch, _, _, manager, _ := newWorkerHarness(t)
	ctx := context.Background()

	saveActiveScan(t, manager, "scan_1", models.PhaseScoring)
	page := saveBiasedPage(t, manager, "scan_1")

	worker := NewClassifyWorker(orch, &stubProvider{err: errors.New("upstream overloaded")}, arbor.NewLogger())
	require.NoError(t, worker.Handle(ctx, &interfaces.QueueDelivery{Message: classifyMessage(t, "scan_1", page)}))

	// The heuristic verdict stands; no deep-review score was recorded.
	snippets, err := manager.SnippetStorage().ListSnippetsByPage(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	assert.Nil(t, snippets[0].LLM)

	// No history entry was written, so the change gate reprocesses the unit
	// on the next scan without a forced rescan.
	hist, err := manager.HistoryStorage().GetHistory(ctx, page.URL)
	require.NoError(t, err)
	require.Nil(t, hist)
	assert.True(t, gate.Evaluate(hist, page.ContentHash, "", false).ShouldProcess())
}

func TestClassifySuccessfulDeepReviewWritesHistory(t *testing.T) {
	orch, _, _, manager, _ := newWorkerHarness(t)
	ctx := context.Background()

	saveActiveScan(t, manager, "scan_1", models.PhaseScoring)
	page := saveBiasedPage(t, manager, "scan_1")

	worker := NewClassifyWorker(orch, &stubProvider{}, arbor.NewLogger())
	require.NoError(t, worker.Handle(ctx, &interfaces.QueueDelivery{Message: classifyMessage(t, "scan_1", page)}))

	snippets, err := manager.SnippetStorage().ListSnippetsByPage(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, snippets, 1)
	require.NotNil(t, snippets[0].LLM)
	assert.True(t, snippets[0].LLM.Biased)

	hist, err := manager.HistoryStorage().GetHistory(ctx, page.URL)
	require.NoError(t, err)
	require.NotNil(t, hist)
	assert.Equal(t, page.ContentHash, hist.ContentHash)
	assert.False(t, gate.Evaluate(hist, page.ContentHash, "", false).ShouldProcess())
}

func TestHeuristicHolisticAggregatesRules(t *testing.T) {
	page := &models.Page{ContentMarkdown: "Deploy the service and check the logs."}
	snippets := []*models.Snippet{
		{Heuristic: &models.HeuristicScore{Biased: true, Rules: []string{heuristics.RuleWindowsTools, heuristics.RuleWindowsCommands}}},
		{Heuristic: &models.HeuristicScore{Biased: true, Rules: []string{heuristics.RuleWindowsCommands}}},
		{Heuristic: &models.HeuristicScore{Biased: false}},
		{Heuristic: nil},
	}

	result := heuristicHolistic(page, snippets)

	assert.True(t, result.BiasDetected)
	assert.Equal(t, "heuristic", result.Method)
	// Categories are the union of fired rules, in the fixed rule order
	assert.Equal(t, []string{heuristics.RuleWindowsCommands, heuristics.RuleWindowsTools}, result.Categories)
	assert.Contains(t, result.Summary, "2 of 4 snippets")
}

func TestHeuristicHolisticCleanPage(t *testing.T) {
	page := &models.Page{ContentMarkdown: "Install the package with your package manager."}
	snippets := []*models.Snippet{
		{Heuristic: &models.HeuristicScore{Biased: false}},
	}

	result := heuristicHolistic(page, snippets)
	require.NotNil(t, result)
	assert.False(t, result.BiasDetected)
	assert.Empty(t, result.Categories)
	assert.Equal(t, "No platform bias signals detected", result.Summary)
}

func TestHeuristicHolisticProseOnlyBias(t *testing.T) {
	page := &models.Page{ContentMarkdown: "Right-click the installer and choose Run as administrator."}

	result := heuristicHolistic(page, nil)
	assert.True(t, result.BiasDetected)
	assert.Contains(t, result.Summary, "Windows-leaning")
}

func TestCountFlaggedPrefersLLMVerdict(t *testing.T) {
	snippets := []*models.Snippet{
		// LLM overruled the heuristic flag
		{
			Heuristic: &models.HeuristicScore{Biased: true, Rules: []string{heuristics.RuleWindowsTools}},
			LLM:       &models.LLMScore{Biased: false, Method: "llm"},
		},
		// LLM confirmed
		{
			Heuristic: &models.HeuristicScore{Biased: true},
			LLM:       &models.LLMScore{Biased: true, Method: "llm"},
		},
		// Heuristic-only flag stands when no LLM verdict exists
		{Heuristic: &models.HeuristicScore{Biased: true}},
		// Clean snippet
		{Heuristic: &models.HeuristicScore{Biased: false}},
		// Unscored snippet
		{},
	}

	assert.Equal(t, 2, countFlagged(snippets))
}
