package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linuxfirst/docscan/internal/common"
	"github.com/linuxfirst/docscan/internal/fetcher"
	"github.com/linuxfirst/docscan/internal/llm"
	"github.com/linuxfirst/docscan/internal/models"
	"github.com/linuxfirst/docscan/internal/queue"
	"github.com/linuxfirst/docscan/internal/scan"
	"github.com/linuxfirst/docscan/internal/scheduler"
	badgerstore "github.com/linuxfirst/docscan/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths

	targetURL   = flag.String("target", "", "Documentation corpus to audit (overrides configured targets)")
	targetKind  = flag.String("kind", "web", "Target kind: web or github")
	forceRescan = flag.Bool("force", false, "Bypass change detection and reprocess every unit")
	badgerPath  = flag.String("badger-path", "", "Database directory (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	defer common.RecoverWithCrashFile()

	flag.Parse()

	// A .version file next to the binary overrides the compiled-in version
	common.LoadVersionFromFile()

	if *showVersion {
		fmt.Printf("Docscan %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup order: config (defaults -> files -> env -> flags), logger, banner
	if len(configFiles) == 0 {
		if _, err := os.Stat("docscan.toml"); err == nil {
			configFiles = append(configFiles, "docscan.toml")
		}
	}

	cfg, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Strs("paths", configFiles).Msg("Failed to load configuration")
		os.Exit(1)
	}
	common.ApplyFlagOverrides(cfg, *badgerPath, *forceRescan)

	if err := cfg.Validate(); err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	common.InstallCrashHandler("./logs")
	logger := common.InitLogger(cfg)
	common.PrintBanner(common.GetVersion())

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Docscan exited with error")
		os.Exit(1)
	}
}

func run(cfg *common.Config, logger arbor.ILogger) error {
	storageManager, err := badgerstore.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer storageManager.Close()

	visibilityTimeout, err := time.ParseDuration(cfg.Queue.VisibilityTimeout)
	if err != nil {
		return fmt.Errorf("invalid queue visibility_timeout: %w", err)
	}
	pollInterval, err := time.ParseDuration(cfg.Queue.PollInterval)
	if err != nil {
		return fmt.Errorf("invalid queue poll_interval: %w", err)
	}

	crawlQueue, err := queue.NewManager(storageManager.DB().Raw(), "crawl", visibilityTimeout, cfg.Queue.MaxReceive)
	if err != nil {
		return fmt.Errorf("failed to create crawl queue: %w", err)
	}
	classifyQueue, err := queue.NewManager(storageManager.DB().Raw(), "classify", visibilityTimeout, cfg.Queue.MaxReceive)
	if err != nil {
		return fmt.Errorf("failed to create classify queue: %w", err)
	}

	provider, err := llm.NewProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create classification provider: %w", err)
	}
	defer provider.Close()

	webFetcher := fetcher.NewHTTPFetcher(&cfg.Fetch, logger)

	orch, err := scan.NewOrchestrator(cfg, storageManager, crawlQueue, classifyQueue, webFetcher, logger)
	if err != nil {
		return err
	}

	crawlWorker := scan.NewCrawlWorker(orch, logger)
	classifyWorker := scan.NewClassifyWorker(orch, provider, logger)

	crawlPool := queue.NewWorkerPool(crawlQueue, "crawl", cfg.Queue.CrawlConcurrency, pollInterval, logger)
	crawlPool.RegisterHandler(models.UnitKindPage, crawlWorker.Handle)
	crawlPool.RegisterHandler(models.UnitKindRepoFile, crawlWorker.Handle)

	classifyPool := queue.NewWorkerPool(classifyQueue, "classify", cfg.Queue.ClassifyConcurrency, pollInterval, logger)
	classifyPool.RegisterHandler(models.UnitKindClassify, classifyWorker.Handle)

	crawlPool.Start()
	classifyPool.Start()

	sched := scheduler.NewScheduler(cfg, orch, logger)
	if err := sched.Start(); err != nil {
		return err
	}

	ctx := context.Background()

	// An explicit -target runs one scan immediately; otherwise the
	// configured targets are scanned on startup.
	targets := cfg.Targets
	if *targetURL != "" {
		targets = []common.TargetConfig{{URL: *targetURL, Kind: *targetKind}}
	}
	for _, t := range targets {
		target := t
		common.SafeGo(logger, "startScan", func() {
			scanID, err := orch.StartScan(ctx, target.URL, models.TargetKind(target.Kind), cfg.Scan.ForceRescan)
			if err != nil {
				logger.Error().Err(err).Str("target", target.URL).Msg("Failed to start scan")
				return
			}
			logger.Info().Str("scan_id", scanID).Str("target", target.URL).Msg("Scan started")
		})
	}
	if len(targets) == 0 {
		logger.Warn().Msg("No scan targets configured; waiting for scheduled runs")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().
		Str("signal", sig.String()).
		Int64("goroutines_spawned", common.GetGoroutineCount()).
		Msg("Shutting down")

	sched.Stop()
	crawlPool.Stop()
	classifyPool.Stop()
	orch.Stop()

	return nil
}
