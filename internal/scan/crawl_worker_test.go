package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linuxfirst/docscan/internal/common"
	"github.com/linuxfirst/docscan/internal/fetcher"
	"github.com/linuxfirst/docscan/internal/interfaces"
	"github.com/linuxfirst/docscan/internal/models"
	badgerstore "github.com/linuxfirst/docscan/internal/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

const crawlRoot = "https://docs.example.com/en-us/azure/aks"

const hubPage = `<html><head><title>AKS documentation</title></head><body>
<p>Overview of the service.</p>
<a href="/en-us/azure/aks/install">Install</a>
<a href="/en-us/azure/aks/upgrade">Upgrade</a>
<a href="/en-us/azure/aks/scale">Scale</a>
</body></html>`

// stubQueue records enqueued messages and can fail one designated Enqueue
// call to exercise partial fan-out.
type stubQueue struct {
	mu       sync.Mutex
	calls    int
	failCall int
	messages []models.QueueMessage
}

func (q *stubQueue) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.failCall != 0 && q.calls == q.failCall {
		q.failCall = 0
		return errors.New("queue write failed")
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *stubQueue) Receive(ctx context.Context) (*interfaces.QueueDelivery, error) {
	return nil, models.ErrNoMessage
}

func (q *stubQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages), nil
}

func (q *stubQueue) Close() error { return nil }

func (q *stubQueue) unitIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, len(q.messages))
	for i, m := range q.messages {
		ids[i] = m.UnitID
	}
	return ids
}

type stubFetcher struct {
	pages map[string][]byte
	calls int
}

func (f *stubFetcher) Fetch(ctx context.Context, unitID string) (*models.FetchResult, error) {
	f.calls++
	body, ok := f.pages[unitID]
	if !ok {
		return nil, &fetcher.Error{Kind: fetcher.KindNotFound, Unit: unitID, Err: errors.New("no such page")}
	}
	return &models.FetchResult{UnitID: unitID, Content: body, FetchedAt: time.Now()}, nil
}

func workerTestConfig() *common.Config {
	return &common.Config{
		Queue:    common.QueueConfig{MaxReceive: 3},
		Crawl:    common.CrawlConfig{MaxPages: 100, MaxDepth: 5},
		Classify: common.ClassifyConfig{BatchSize: 5},
		Scan:     common.ScanConfig{MonitorInterval: "1h"},
	}
}

func newWorkerHarness(t *testing.T) (*Orchestrator, *stubQueue, *stubQueue, *badgerstore.Manager, *stubFetcher) {
	t.Helper()

	manager, err := badgerstore.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	fetch := &stubFetcher{pages: map[string][]byte{crawlRoot: []byte(hubPage)}}
	crawlQ := &stubQueue{}
	classifyQ := &stubQueue{}

	orch, err := NewOrchestrator(workerTestConfig(), manager, crawlQ, classifyQ, fetch, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(orch.Stop)

	return orch, crawlQ, classifyQ, manager, fetch
}

func saveActiveScan(t *testing.T, manager *badgerstore.Manager, id string, phase models.ScanPhase) {
	t.Helper()
	require.NoError(t, manager.ScanStorage().SaveScan(context.Background(), &models.Scan{
		ID:           id,
		TargetURL:    crawlRoot,
		Kind:         models.TargetKindWeb,
		Status:       models.ScanStatusInProgress,
		CurrentPhase: phase,
		StartedAt:    time.Now(),
	}))
}

func crawlMessage(t *testing.T, scanID string) models.QueueMessage {
	t.Helper()
	msg := models.QueueMessage{ScanID: scanID, UnitID: crawlRoot, UnitKind: models.UnitKindPage}
	require.NoError(t, msg.SetPayload(models.CrawlPayload{Depth: 0}))
	return msg
}

func TestCrawlFanOutSurvivesRedelivery(t *testing.T) {
	orch, crawlQ, _, manager, _ := newWorkerHarness(t)
	ctx := context.Background()

	saveActiveScan(t, manager, "scan_1", models.PhaseCrawling)
	worker := NewCrawlWorker(orch, arbor.NewLogger())
	msg := crawlMessage(t, "scan_1")

	// The second enqueue fails mid fan-out, so the delivery stays unacked
	// with only one of three discovered links queued.
	crawlQ.failCall = 2
	require.Error(t, worker.Handle(ctx, &interfaces.QueueDelivery{Message: msg}))
	require.Len(t, crawlQ.unitIDs(), 1)

	// Redelivery picks up the links the first attempt could not queue.
	msg.AttemptCount = 2
	require.NoError(t, worker.Handle(ctx, &interfaces.QueueDelivery{Message: msg}))

	assert.ElementsMatch(t, []string{
		crawlRoot + "/install",
		crawlRoot + "/upgrade",
		crawlRoot + "/scale",
	}, crawlQ.unitIDs())

	scan, err := manager.ScanStorage().GetScan(ctx, "scan_1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, scan.TotalPagesFound, 3)
	assert.GreaterOrEqual(t, scan.TotalPagesFound, scan.PagesProcessed)

	for _, path := range []string{"/install", "/upgrade", "/scale"} {
		page, err := manager.PageStorage().GetPageByURL(ctx, "scan_1", crawlRoot+path)
		require.NoError(t, err)
		assert.Equal(t, models.PageStatusQueued, page.Status)
	}
}

func TestCrawlFanOutIsIdempotentAcrossDeliveries(t *testing.T) {
	orch, crawlQ, _, manager, _ := newWorkerHarness(t)
	ctx := context.Background()

	saveActiveScan(t, manager, "scan_1", models.PhaseCrawling)
	worker := NewCrawlWorker(orch, arbor.NewLogger())
	msg := crawlMessage(t, "scan_1")

	// A duplicate delivery of a fully processed unit queues nothing new.
	require.NoError(t, worker.Handle(ctx, &interfaces.QueueDelivery{Message: msg}))
	require.NoError(t, worker.Handle(ctx, &interfaces.QueueDelivery{Message: msg}))

	assert.Len(t, crawlQ.unitIDs(), 3)

	scan, err := manager.ScanStorage().GetScan(ctx, "scan_1")
	require.NoError(t, err)
	assert.Equal(t, 3, scan.TotalPagesFound)
}

func TestCrawlHandleDropsUnitsForCancelledScan(t *testing.T) {
	orch, crawlQ, _, manager, fetch := newWorkerHarness(t)
	ctx := context.Background()

	saveActiveScan(t, manager, "scan_1", models.PhaseCrawling)
	require.NoError(t, manager.ScanStorage().RequestCancellation(ctx, "scan_1", "operator request", time.Now()))

	worker := NewCrawlWorker(orch, arbor.NewLogger())
	msg := crawlMessage(t, "scan_1")

	// The unit is acked without fetching or fanning out.
	require.NoError(t, worker.Handle(ctx, &interfaces.QueueDelivery{Message: msg}))
	assert.Zero(t, fetch.calls)
	assert.Empty(t, crawlQ.unitIDs())
}
