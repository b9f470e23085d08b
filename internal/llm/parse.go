package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linuxfirst/docscan/internal/interfaces"
)

type rawVerdict struct {
	ID                        string   `json:"id"`
	WindowsBiased             bool     `json:"windows_biased"`
	BiasTypes                 []string `json:"bias_types"`
	Explanation               string   `json:"explanation"`
	Recommendations           []string `json:"recommendations"`
	SuggestedLinuxAlternative string   `json:"suggested_linux_alternative"`
}

// parseVerdicts extracts the JSON array from a model response and maps it
// back onto the batch items. Responses often wrap the JSON in prose or
// code fences, so the array is located positionally rather than assuming
// the whole body parses.
func parseVerdicts(response string, items []interfaces.ClassifyItem) ([]interfaces.ClassifyVerdict, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array found in classification response")
	}

	var raw []rawVerdict
	if err := json.Unmarshal([]byte(response[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse classification response: %w", err)
	}
	if len(raw) != len(items) {
		return nil, fmt.Errorf("classification response has %d verdicts for %d items", len(raw), len(items))
	}

	byID := make(map[string]int, len(items))
	for i, item := range items {
		byID[item.ID] = i
	}

	verdicts := make([]interfaces.ClassifyVerdict, len(items))
	seen := make(map[string]bool, len(items))
	for i, rv := range raw {
		idx := i
		if j, ok := byID[rv.ID]; ok {
			idx = j
		}
		id := items[idx].ID
		if seen[id] {
			return nil, fmt.Errorf("duplicate verdict for item %s", id)
		}
		seen[id] = true

		verdicts[idx] = interfaces.ClassifyVerdict{
			ID:                   id,
			BiasDetected:         rv.WindowsBiased,
			Categories:           rv.BiasTypes,
			Explanation:          rv.Explanation,
			Recommendations:      rv.Recommendations,
			SuggestedAlternative: rv.SuggestedLinuxAlternative,
		}
	}

	return verdicts, nil
}
