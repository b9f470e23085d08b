package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Targets     []TargetConfig  `toml:"targets"`     // corpora available for scheduled or ad-hoc scans
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Fetch       FetchConfig     `toml:"fetch"`
	Crawl       CrawlConfig     `toml:"crawl"`
	Classify    ClassifyConfig  `toml:"classify"`
	Claude      ClaudeConfig    `toml:"claude"`
	GitHub      GitHubConfig    `toml:"github"`
	Scan        ScanConfig      `toml:"scan"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

// TargetConfig describes one documentation corpus to audit
type TargetConfig struct {
	URL  string `toml:"url" validate:"required"`
	Kind string `toml:"kind" validate:"oneof=web github"` // "web" or "github"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval        string `toml:"poll_interval"`      // e.g. "500ms" - how often workers poll for messages
	VisibilityTimeout   string `toml:"visibility_timeout"` // e.g. "5m" - message redelivery window
	MaxReceive          int    `toml:"max_receive" validate:"min=1"`
	CrawlConcurrency    int    `toml:"crawl_concurrency" validate:"min=1"`    // crawl queue worker count
	ClassifyConcurrency int    `toml:"classify_concurrency" validate:"min=1"` // classify queue worker count
}

// FetchConfig bounds the source fetcher
type FetchConfig struct {
	UserAgent          string        `toml:"user_agent"`
	RequestTimeout     time.Duration `toml:"request_timeout"`
	MaxBodySize        int           `toml:"max_body_size"`
	MaxConcurrency     int           `toml:"max_concurrency" validate:"min=1"`      // global in-flight request ceiling
	MaxHostConcurrency int           `toml:"max_host_concurrency" validate:"min=1"` // per-host in-flight ceiling
}

// CrawlConfig bounds discovery
type CrawlConfig struct {
	MaxPages int `toml:"max_pages" validate:"min=1"` // hard cap on units discovered per scan
	MaxDepth int `toml:"max_depth" validate:"min=1"`
}

// ClassifyConfig controls the LLM classification stage
type ClassifyConfig struct {
	BatchSize         int    `toml:"batch_size" validate:"min=1"`
	RequestsPerMinute int    `toml:"requests_per_minute" validate:"min=1"`
	MaxAttempts       int    `toml:"max_attempts" validate:"min=1"`
	InitialBackoff    string `toml:"initial_backoff"` // e.g. "1s"
	MaxBackoff        string `toml:"max_backoff"`     // e.g. "30s"
}

// ClaudeConfig holds the external scoring credentials; an empty API key
// disables the LLM stage entirely
type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
	Timeout   string `toml:"timeout"` // e.g. "60s"
}

type GitHubConfig struct {
	Token string `toml:"token"`
}

// ScanConfig controls scan-level policy
type ScanConfig struct {
	ForceRescan bool `toml:"force_rescan"` // bypass the change-detection gate
	// FailureBudget is the max fraction of failed units before a scan fails
	FailureBudget float64 `toml:"failure_budget" validate:"gte=0,lte=1"`
	// MonitorInterval is how often the state machine checks queue depth
	MonitorInterval string `toml:"monitor_interval"`
}

// SchedulerConfig enables periodic rescans of the configured targets
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron format, e.g. "0 0 3 * * *"
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns the configuration defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Queue: QueueConfig{
			PollInterval:        "500ms",
			VisibilityTimeout:   "5m",
			MaxReceive:          3,
			CrawlConcurrency:    4,
			ClassifyConcurrency: 2,
		},
		Fetch: FetchConfig{
			UserAgent:          "linuxfirst-docscan/1.0",
			RequestTimeout:     30 * time.Second,
			MaxBodySize:        10 * 1024 * 1024, // 10MB
			MaxConcurrency:     8,
			MaxHostConcurrency: 3,
		},
		Crawl: CrawlConfig{
			MaxPages: 500,
			MaxDepth: 5,
		},
		Classify: ClassifyConfig{
			BatchSize:         5,
			RequestsPerMinute: 30,
			MaxAttempts:       3,
			InitialBackoff:    "1s",
			MaxBackoff:        "30s",
		},
		Claude: ClaudeConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			Timeout:   "60s",
		},
		Scan: ScanConfig{
			FailureBudget:   0.25,
			MonitorInterval: "2s",
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "0 0 3 * * *", // daily at 03:00
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files; later files override
// earlier files, environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DOCSCAN_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Storage
	if badgerPath := os.Getenv("DOCSCAN_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Queue
	if pollInterval := os.Getenv("DOCSCAN_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if visibilityTimeout := os.Getenv("DOCSCAN_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxReceive := os.Getenv("DOCSCAN_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}
	if c := os.Getenv("DOCSCAN_CRAWL_CONCURRENCY"); c != "" {
		if n, err := strconv.Atoi(c); err == nil {
			config.Queue.CrawlConcurrency = n
		}
	}
	if c := os.Getenv("DOCSCAN_CLASSIFY_CONCURRENCY"); c != "" {
		if n, err := strconv.Atoi(c); err == nil {
			config.Queue.ClassifyConcurrency = n
		}
	}

	// Fetch
	if userAgent := os.Getenv("DOCSCAN_FETCH_USER_AGENT"); userAgent != "" {
		config.Fetch.UserAgent = userAgent
	}
	if requestTimeout := os.Getenv("DOCSCAN_FETCH_TIMEOUT"); requestTimeout != "" {
		if rt, err := time.ParseDuration(requestTimeout); err == nil {
			config.Fetch.RequestTimeout = rt
		}
	}
	if maxBodySize := os.Getenv("DOCSCAN_FETCH_MAX_BODY_SIZE"); maxBodySize != "" {
		if mbs, err := strconv.Atoi(maxBodySize); err == nil {
			config.Fetch.MaxBodySize = mbs
		}
	}
	if maxConcurrency := os.Getenv("DOCSCAN_FETCH_MAX_CONCURRENCY"); maxConcurrency != "" {
		if mc, err := strconv.Atoi(maxConcurrency); err == nil {
			config.Fetch.MaxConcurrency = mc
		}
	}
	if maxHost := os.Getenv("DOCSCAN_FETCH_MAX_HOST_CONCURRENCY"); maxHost != "" {
		if mh, err := strconv.Atoi(maxHost); err == nil {
			config.Fetch.MaxHostConcurrency = mh
		}
	}

	// Crawl
	if maxPages := os.Getenv("DOCSCAN_CRAWL_MAX_PAGES"); maxPages != "" {
		if mp, err := strconv.Atoi(maxPages); err == nil {
			config.Crawl.MaxPages = mp
		}
	}
	if maxDepth := os.Getenv("DOCSCAN_CRAWL_MAX_DEPTH"); maxDepth != "" {
		if md, err := strconv.Atoi(maxDepth); err == nil {
			config.Crawl.MaxDepth = md
		}
	}

	// Classification
	if batchSize := os.Getenv("DOCSCAN_CLASSIFY_BATCH_SIZE"); batchSize != "" {
		if bs, err := strconv.Atoi(batchSize); err == nil {
			config.Classify.BatchSize = bs
		}
	}
	if rpm := os.Getenv("DOCSCAN_CLASSIFY_RPM"); rpm != "" {
		if r, err := strconv.Atoi(rpm); err == nil {
			config.Classify.RequestsPerMinute = r
		}
	}
	if maxAttempts := os.Getenv("DOCSCAN_CLASSIFY_MAX_ATTEMPTS"); maxAttempts != "" {
		if ma, err := strconv.Atoi(maxAttempts); err == nil {
			config.Classify.MaxAttempts = ma
		}
	}

	// Credentials. ANTHROPIC_API_KEY is the conventional fallback.
	if apiKey := os.Getenv("DOCSCAN_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("DOCSCAN_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if token := os.Getenv("DOCSCAN_GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	} else if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	}

	// Scan policy
	if force := os.Getenv("DOCSCAN_FORCE_RESCAN"); force != "" {
		if f, err := strconv.ParseBool(force); err == nil {
			config.Scan.ForceRescan = f
		}
	}
	if budget := os.Getenv("DOCSCAN_FAILURE_BUDGET"); budget != "" {
		if b, err := strconv.ParseFloat(budget, 64); err == nil {
			config.Scan.FailureBudget = b
		}
	}

	// Logging
	if level := os.Getenv("DOCSCAN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("DOCSCAN_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("DOCSCAN_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, badgerPath string, forceRescan bool) {
	if badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if forceRescan {
		config.Scan.ForceRescan = true
	}
}

// Validate checks the resolved configuration at startup
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Duration strings are parsed lazily elsewhere; fail fast here instead
	for name, v := range map[string]string{
		"queue.poll_interval":      c.Queue.PollInterval,
		"queue.visibility_timeout": c.Queue.VisibilityTimeout,
		"classify.initial_backoff": c.Classify.InitialBackoff,
		"classify.max_backoff":     c.Classify.MaxBackoff,
		"claude.timeout":           c.Claude.Timeout,
		"scan.monitor_interval":    c.Scan.MonitorInterval,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid configuration: %s %q: %w", name, v, err)
		}
	}

	return nil
}

// LLMEnabled reports whether the external scoring stage is configured
func (c *Config) LLMEnabled() bool {
	return c.Claude.APIKey != ""
}
