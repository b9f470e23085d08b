package llm

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/linuxfirst/docscan/internal/common"
	"github.com/linuxfirst/docscan/internal/interfaces"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const systemPrompt = "You are an expert reviewer of cross-platform technical documentation. " +
	"You analyze code snippets and page content for Windows platform bias: " +
	"Windows-only commands, PowerShell-only examples, Windows paths, or " +
	"instructions with no Linux/macOS equivalent."

// completeFunc performs one model round trip, returning the raw text for a
// prompt
type completeFunc func(ctx context.Context, prompt string) (string, error)

// ClaudeProvider scores batches of snippets or pages using the Anthropic
// API. A token-bucket limiter paces requests to the configured
// requests-per-minute ceiling; callers block on Wait rather than fail.
type ClaudeProvider struct {
	client         anthropic.Client
	model          string
	maxTokens      int
	timeout        time.Duration
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	complete       completeFunc
	logger         arbor.ILogger
}

// NewClaudeProvider creates a provider from the Claude and Classify config
// sections. The API key must be set.
func NewClaudeProvider(claudeCfg *common.ClaudeConfig, classifyCfg *common.ClassifyConfig, logger arbor.ILogger) (*ClaudeProvider, error) {
	if claudeCfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY or claude.api_key)")
	}

	timeout, err := time.ParseDuration(claudeCfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid claude timeout '%s': %w", claudeCfg.Timeout, err)
	}
	initialBackoff, err := time.ParseDuration(classifyCfg.InitialBackoff)
	if err != nil {
		return nil, fmt.Errorf("invalid classify initial_backoff '%s': %w", classifyCfg.InitialBackoff, err)
	}
	maxBackoff, err := time.ParseDuration(classifyCfg.MaxBackoff)
	if err != nil {
		return nil, fmt.Errorf("invalid classify max_backoff '%s': %w", classifyCfg.MaxBackoff, err)
	}

	rpm := classifyCfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}

	client := anthropic.NewClient(
		option.WithAPIKey(claudeCfg.APIKey),
	)

	provider := &ClaudeProvider{
		client:         client,
		model:          claudeCfg.Model,
		maxTokens:      claudeCfg.MaxTokens,
		timeout:        timeout,
		limiter:        rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		maxAttempts:    classifyCfg.MaxAttempts,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		logger:         logger,
	}
	provider.complete = provider.completeAPI

	logger.Debug().
		Str("model", claudeCfg.Model).
		Int("requests_per_minute", rpm).
		Int("max_tokens", claudeCfg.MaxTokens).
		Msg("Claude classification provider initialized")

	return provider, nil
}

func (p *ClaudeProvider) Enabled() bool {
	return true
}

// ClassifyBatch scores every item in one API round trip. On a transient
// upstream failure the whole batch is retried with exponential backoff up
// to the configured attempt count; the final error surfaces to the caller
// so every item can be marked recoverable rather than silently dropped.
func (p *ClaudeProvider) ClassifyBatch(ctx context.Context, mode interfaces.ClassifyMode, items []interfaces.ClassifyItem) ([]interfaces.ClassifyVerdict, error) {
	if len(items) == 0 {
		return nil, nil
	}

	prompt := buildPrompt(mode, items)

	var lastErr error
	backoff := p.initialBackoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait cancelled: %w", err)
		}

		verdicts, err := p.request(ctx, prompt, items)
		if err == nil {
			return verdicts, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		p.logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", p.maxAttempts).
			Int("batch_size", len(items)).
			Msg("Classification batch failed, backing off")

		if attempt < p.maxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter(backoff)):
			}
			backoff *= 2
			if backoff > p.maxBackoff {
				backoff = p.maxBackoff
			}
		}
	}

	return nil, fmt.Errorf("classification batch failed after %d attempts: %w", p.maxAttempts, lastErr)
}

func (p *ClaudeProvider) request(ctx context.Context, prompt string, items []interfaces.ClassifyItem) ([]interfaces.ClassifyVerdict, error) {
	start := time.Now()
	text, err := p.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	verdicts, err := parseVerdicts(text, items)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Int("batch_size", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Classification batch completed")

	return verdicts, nil
}

func (p *ClaudeProvider) completeAPI(ctx context.Context, prompt string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
	}

	resp, err := p.client.Messages.New(timeoutCtx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}
	return sb.String(), nil
}

func (p *ClaudeProvider) Close() error {
	p.logger.Debug().Msg("Closing Claude classification provider")
	return nil
}

func jitter(d time.Duration) time.Duration {
	// ±25%
	delta := time.Duration(rand.Int63n(int64(d)/2+1)) - d/4
	return d + delta
}
