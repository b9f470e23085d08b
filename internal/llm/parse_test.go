package llm

import (
	"testing"

	"github.com/linuxfirst/docscan/internal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchItems(ids ...string) []interfaces.ClassifyItem {
	items := make([]interfaces.ClassifyItem, len(ids))
	for i, id := range ids {
		items[i] = interfaces.ClassifyItem{ID: id, Content: "choco install git"}
	}
	return items
}

func TestParseVerdictsPlainArray(t *testing.T) {
	response := `[
		{"id": "snip_a", "windows_biased": true, "bias_types": ["windows_tools"], "explanation": "chocolatey only", "suggested_linux_alternative": "apt install git"},
		{"id": "snip_b", "windows_biased": false}
	]`

	verdicts, err := parseVerdicts(response, batchItems("snip_a", "snip_b"))
	require.NoError(t, err)
	require.Len(t, verdicts, 2)

	assert.Equal(t, "snip_a", verdicts[0].ID)
	assert.True(t, verdicts[0].BiasDetected)
	assert.Equal(t, []string{"windows_tools"}, verdicts[0].Categories)
	assert.Equal(t, "apt install git", verdicts[0].SuggestedAlternative)
	assert.False(t, verdicts[1].BiasDetected)
}

func TestParseVerdictsFencedResponse(t *testing.T) {
	response := "Here are the results:\n```json\n[{\"id\": \"snip_a\", \"windows_biased\": true}]\n```\nLet me know if you need anything else."

	verdicts, err := parseVerdicts(response, batchItems("snip_a"))
	require.NoError(t, err)
	require.Len(t, verdicts, 1)
	assert.True(t, verdicts[0].BiasDetected)
}

func TestParseVerdictsReordersByID(t *testing.T) {
	response := `[
		{"id": "snip_b", "windows_biased": false},
		{"id": "snip_a", "windows_biased": true}
	]`

	verdicts, err := parseVerdicts(response, batchItems("snip_a", "snip_b"))
	require.NoError(t, err)
	assert.Equal(t, "snip_a", verdicts[0].ID)
	assert.True(t, verdicts[0].BiasDetected)
	assert.Equal(t, "snip_b", verdicts[1].ID)
	assert.False(t, verdicts[1].BiasDetected)
}

func TestParseVerdictsPositionalFallback(t *testing.T) {
	// Unknown IDs fall back to batch order
	response := `[
		{"id": "item-1", "windows_biased": true},
		{"id": "item-2", "windows_biased": false}
	]`

	verdicts, err := parseVerdicts(response, batchItems("snip_a", "snip_b"))
	require.NoError(t, err)
	assert.Equal(t, "snip_a", verdicts[0].ID)
	assert.True(t, verdicts[0].BiasDetected)
	assert.Equal(t, "snip_b", verdicts[1].ID)
}

func TestParseVerdictsErrors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		items    []interfaces.ClassifyItem
	}{
		{"no array", "I could not classify these snippets.", batchItems("snip_a")},
		{"invalid json", "[{not json}]", batchItems("snip_a")},
		{"count mismatch", `[{"id": "snip_a"}]`, batchItems("snip_a", "snip_b")},
		{"duplicate id", `[{"id": "snip_a"}, {"id": "snip_a"}]`, batchItems("snip_a", "snip_b")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseVerdicts(tt.response, tt.items)
			assert.Error(t, err)
		})
	}
}

func TestBuildPromptIncludesItems(t *testing.T) {
	items := []interfaces.ClassifyItem{
		{ID: "snip_a", Content: "choco install git", Context: "Install Git"},
		{ID: "snip_b", Content: "dir C:\\Users"},
	}

	prompt := buildPrompt(interfaces.ClassifyModeSnippet, items)
	assert.Contains(t, prompt, "snip_a")
	assert.Contains(t, prompt, "choco install git")
	assert.Contains(t, prompt, "Install Git")
	assert.Contains(t, prompt, "snip_b")
}

func TestDisabledProvider(t *testing.T) {
	p := &DisabledProvider{}
	assert.False(t, p.Enabled())

	verdicts, err := p.ClassifyBatch(nil, interfaces.ClassifyModeSnippet, batchItems("snip_a"))
	assert.NoError(t, err)
	assert.Nil(t, verdicts)
	assert.NoError(t, p.Close())
}
