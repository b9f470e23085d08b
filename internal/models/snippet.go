package models

import (
	"fmt"
	"time"
)

// HeuristicScore is the deterministic rule-engine verdict for one snippet
type HeuristicScore struct {
	Biased bool `json:"biased"`
	// Rules enumerates every rule identifier that fired (exhaustive evaluation,
	// not first-match)
	Rules []string `json:"rules,omitempty"`
}

// LLMScore is the structured verdict from the external scoring stage
type LLMScore struct {
	Biased               bool     `json:"biased"`
	Categories           []string `json:"categories,omitempty"`
	Explanation          string   `json:"explanation,omitempty"`
	SuggestedAlternative string   `json:"suggested_alternative,omitempty"`
	// Method is "llm" for real verdicts, "heuristic" when the LLM stage is
	// disabled and the heuristic result is authoritative
	Method string `json:"method"`
}

// Snippet represents one extracted code/text fragment.
//
// Snippets are immutable after creation except for the score fields, which
// only progress nil -> heuristic -> (optionally) LLM and never regress.
// The ID is derived from (page_id, ordinal) so reprocessing an unchanged
// page upserts the same rows instead of duplicating them.
type Snippet struct {
	ID     string `json:"id" badgerhold:"key"`
	PageID string `json:"page_id" badgerhold:"index"`
	ScanID string `json:"scan_id" badgerhold:"index"`

	// Ordinal is the snippet's position within its page, stable across passes
	Ordinal int `json:"ordinal"`

	// Context is the surrounding text (heading, nearby prose) sufficient for
	// a reviewer to understand intent without refetching the source
	Context string `json:"context,omitempty"`
	Code    string `json:"code"`

	Heuristic *HeuristicScore `json:"heuristic,omitempty"`
	LLM       *LLMScore       `json:"llm,omitempty"`

	// ProposedChangeID optionally links to a remediation change record
	ProposedChangeID string `json:"proposed_change_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SnippetKey builds the deterministic Snippet ID for a page and ordinal
func SnippetKey(pageID string, ordinal int) string {
	return fmt.Sprintf("snip_%s_%04d", pageID, ordinal)
}
