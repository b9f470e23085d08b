package interfaces

import "context"

// ClassifyMode selects snippet-level or whole-page classification
type ClassifyMode string

const (
	ClassifyModeSnippet ClassifyMode = "snippet"
	ClassifyModePage    ClassifyMode = "page"
)

// ClassifyItem is one unit submitted for external scoring
type ClassifyItem struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Context string `json:"context,omitempty"`
}

// ClassifyVerdict is the structured verdict for one submitted item
type ClassifyVerdict struct {
	ID                   string   `json:"id"`
	BiasDetected         bool     `json:"bias_detected"`
	Categories           []string `json:"categories,omitempty"`
	Explanation          string   `json:"explanation,omitempty"`
	Recommendations      []string `json:"recommendations,omitempty"`
	SuggestedAlternative string   `json:"suggested_alternative,omitempty"`
}

// LLMProvider is the boundary to the external scoring capability.
// ClassifyBatch returns exactly one verdict per input item or a batch-level
// error; callers own retry policy. Implementations pace themselves against
// a shared requests-per-minute ceiling.
type LLMProvider interface {
	// Enabled reports whether the provider can make real calls. When false
	// the classification stage is bypassed and heuristic verdicts are
	// authoritative.
	Enabled() bool
	ClassifyBatch(ctx context.Context, mode ClassifyMode, items []ClassifyItem) ([]ClassifyVerdict, error)
	Close() error
}
