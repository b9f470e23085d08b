package llm

import (
	"github.com/linuxfirst/docscan/internal/common"
	"github.com/linuxfirst/docscan/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// NewProvider returns a Claude-backed provider when an API key is
// configured, otherwise the disabled provider.
func NewProvider(cfg *common.Config, logger arbor.ILogger) (interfaces.LLMProvider, error) {
	if !cfg.LLMEnabled() {
		logger.Info().Msg("No Anthropic API key configured, deep review disabled; heuristic results are authoritative")
		return DisabledProvider{}, nil
	}
	return NewClaudeProvider(&cfg.Claude, &cfg.Classify, logger)
}
