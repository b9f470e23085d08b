package llm

import (
	"context"

	"github.com/linuxfirst/docscan/internal/interfaces"
)

// DisabledProvider stands in when no API key is configured. The pipeline
// bypasses deep review entirely and heuristic results are authoritative.
type DisabledProvider struct{}

func (DisabledProvider) Enabled() bool { return false }

func (DisabledProvider) ClassifyBatch(context.Context, interfaces.ClassifyMode, []interfaces.ClassifyItem) ([]interfaces.ClassifyVerdict, error) {
	return nil, nil
}

func (DisabledProvider) Close() error { return nil }
