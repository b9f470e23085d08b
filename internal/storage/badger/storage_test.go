package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/linuxfirst/docscan/internal/common"
	"github.com/linuxfirst/docscan/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func newTestScan(id string) *models.Scan {
	return &models.Scan{
		ID:           id,
		TargetURL:    "https://docs.example.com/en-us/azure",
		Kind:         models.TargetKindWeb,
		Status:       models.ScanStatusPending,
		CurrentPhase: models.PhaseSetup,
		StartedAt:    time.Now(),
	}
}

func TestScanStatusTransitions(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.ScanStorage()
	ctx := context.Background()

	require.NoError(t, storage.SaveScan(ctx, newTestScan("scan_1")))

	require.NoError(t, storage.SetStatus(ctx, "scan_1", models.ScanStatusInProgress))

	// Backward transition is rejected
	assert.Error(t, storage.SetStatus(ctx, "scan_1", models.ScanStatusPending))

	require.NoError(t, storage.SetStatus(ctx, "scan_1", models.ScanStatusCompleted))

	scan, err := storage.GetScan(ctx, "scan_1")
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusCompleted, scan.Status)
	require.NotNil(t, scan.FinishedAt)

	// Terminal states never transition again
	assert.Error(t, storage.SetStatus(ctx, "scan_1", models.ScanStatusFailed))
}

func TestScanPhaseForwardOnly(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.ScanStorage()
	ctx := context.Background()

	require.NoError(t, storage.SaveScan(ctx, newTestScan("scan_1")))

	require.NoError(t, storage.SetPhase(ctx, "scan_1", models.PhaseCrawling))
	require.NoError(t, storage.SetPhase(ctx, "scan_1", models.PhaseScoring))

	assert.Error(t, storage.SetPhase(ctx, "scan_1", models.PhaseCrawling))

	scan, err := storage.GetScan(ctx, "scan_1")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseScoring, scan.CurrentPhase)
	assert.Contains(t, scan.PhaseTimestamps, models.PhaseCrawling)
	assert.Contains(t, scan.PhaseTimestamps, models.PhaseScoring)
}

func TestScanCountersAccumulate(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.ScanStorage()
	ctx := context.Background()

	require.NoError(t, storage.SaveScan(ctx, newTestScan("scan_1")))

	require.NoError(t, storage.IncrementCounters(ctx, "scan_1", models.ScanCounters{TotalPagesFound: 10}))
	require.NoError(t, storage.IncrementCounters(ctx, "scan_1", models.ScanCounters{PagesProcessed: 3, SnippetsProcessed: 7}))
	require.NoError(t, storage.IncrementCounters(ctx, "scan_1", models.ScanCounters{PagesProcessed: 2, PagesFailed: 1, BiasedPagesCount: 1}))

	scan, err := storage.GetScan(ctx, "scan_1")
	require.NoError(t, err)
	assert.Equal(t, 10, scan.TotalPagesFound)
	assert.Equal(t, 5, scan.PagesProcessed)
	assert.Equal(t, 1, scan.PagesFailed)
	assert.Equal(t, 7, scan.SnippetsProcessed)
	assert.Equal(t, 1, scan.BiasedPagesCount)
}

func TestRequestCancellationIsIdempotent(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.ScanStorage()
	ctx := context.Background()

	require.NoError(t, storage.SaveScan(ctx, newTestScan("scan_1")))

	first := time.Now()
	require.NoError(t, storage.RequestCancellation(ctx, "scan_1", "operator request", first))
	require.NoError(t, storage.RequestCancellation(ctx, "scan_1", "second request", first.Add(time.Hour)))

	scan, err := storage.GetScan(ctx, "scan_1")
	require.NoError(t, err)
	assert.True(t, scan.CancellationRequested)
	assert.Equal(t, "operator request", scan.CancellationReason)
}

func TestPageUpsertIsIdempotent(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.PageStorage()
	ctx := context.Background()

	page := &models.Page{
		ScanID: "scan_1",
		URL:    "https://docs.example.com/install",
		Status: models.PageStatusProcessed,
		Title:  "Install",
	}
	require.NoError(t, storage.UpsertPage(ctx, page))
	firstID := page.ID

	// Rediscovering the same URL in the same scan rewrites the same row
	again := &models.Page{
		ScanID: "scan_1",
		URL:    "https://docs.example.com/install",
		Status: models.PageStatusProcessed,
		Title:  "Install (updated)",
	}
	require.NoError(t, storage.UpsertPage(ctx, again))
	assert.Equal(t, firstID, again.ID)

	pages, err := storage.ListPagesByScan(ctx, "scan_1")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Install (updated)", pages[0].Title)

	got, err := storage.GetPageByURL(ctx, "scan_1", "https://docs.example.com/install")
	require.NoError(t, err)
	assert.Equal(t, firstID, got.ID)
}

func TestCountPagesByStatus(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.PageStorage()
	ctx := context.Background()

	statuses := []models.PageStatus{
		models.PageStatusProcessed,
		models.PageStatusProcessed,
		models.PageStatusSkippedNoChange,
		models.PageStatusFailed,
	}
	for i, status := range statuses {
		require.NoError(t, storage.UpsertPage(ctx, &models.Page{
			ScanID: "scan_1",
			URL:    fmt.Sprintf("https://docs.example.com/page-%d", i),
			Status: status,
		}))
	}

	n, err := storage.CountPagesByStatus(ctx, "scan_1", models.PageStatusProcessed)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = storage.CountPagesByStatus(ctx, "scan_1", models.PageStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSnippetScoresNeverRegress(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.SnippetStorage()
	ctx := context.Background()

	snippet := &models.Snippet{
		PageID:  "page_1",
		ScanID:  "scan_1",
		Ordinal: 0,
		Code:    "choco install git",
		Heuristic: &models.HeuristicScore{
			Biased: true,
			Rules:  []string{"windows_tools"},
		},
	}
	require.NoError(t, storage.UpsertSnippet(ctx, snippet))

	withLLM := &models.Snippet{
		PageID:  "page_1",
		ScanID:  "scan_1",
		Ordinal: 0,
		Code:    "choco install git",
		LLM: &models.LLMScore{
			Biased: true,
			Method: "llm",
		},
	}
	require.NoError(t, storage.UpsertSnippet(ctx, withLLM))

	got, err := storage.GetSnippet(ctx, models.SnippetKey("page_1", 0))
	require.NoError(t, err)
	// Heuristic score survives a write that omitted it
	require.NotNil(t, got.Heuristic)
	assert.True(t, got.Heuristic.Biased)
	require.NotNil(t, got.LLM)
	assert.Equal(t, "llm", got.LLM.Method)
}

func TestListSnippetsByPageOrdered(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.SnippetStorage()
	ctx := context.Background()

	for _, ordinal := range []int{2, 0, 1} {
		require.NoError(t, storage.UpsertSnippet(ctx, &models.Snippet{
			PageID:  "page_1",
			ScanID:  "scan_1",
			Ordinal: ordinal,
			Code:    "dir",
		}))
	}

	snippets, err := storage.ListSnippetsByPage(ctx, "page_1")
	require.NoError(t, err)
	require.Len(t, snippets, 3)
	for i, s := range snippets {
		assert.Equal(t, i, s.Ordinal)
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	storage := manager.HistoryStorage()
	ctx := context.Background()

	// Unknown unit yields nil without error
	entry, err := storage.GetHistory(ctx, "https://docs.example.com/new")
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, storage.UpsertHistory(ctx, &models.FileProcessingHistory{
		UnitID:        "https://docs.example.com/install",
		ContentHash:   "abc123",
		SnippetsFound: 4,
		BiasDetected:  true,
	}))

	entry, err = storage.GetHistory(ctx, "https://docs.example.com/install")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "abc123", entry.ContentHash)
	assert.Equal(t, 4, entry.SnippetsFound)
	assert.True(t, entry.BiasDetected)
	assert.False(t, entry.LastProcessedAt.IsZero())
}
