package llm

import (
	"fmt"
	"strings"

	"github.com/linuxfirst/docscan/internal/interfaces"
)

const verdictSchema = `[
  {
    "id": "<item id, copied verbatim>",
    "windows_biased": true,
    "bias_types": ["powershell_only", "windows_paths", "windows_commands", "windows_tools", "missing_linux_alternative", "windows_specific_syntax", "windows_registry", "windows_services"],
    "explanation": "why the content is or is not biased",
    "recommendations": ["concrete fix, one per entry"],
    "suggested_linux_alternative": "equivalent Linux/macOS command or empty string"
  }
]`

// buildPrompt renders one batch of items into a single review request.
// The model must answer with a JSON array holding exactly one verdict per
// item, keyed by the item id.
func buildPrompt(mode interfaces.ClassifyMode, items []interfaces.ClassifyItem) string {
	var sb strings.Builder

	switch mode {
	case interfaces.ClassifyModePage:
		sb.WriteString("Review the following documentation pages for Windows platform bias. ")
		sb.WriteString("Judge the page as a whole: prose instructions, command examples, and whether Linux/macOS readers are served equally.\n\n")
	default:
		sb.WriteString("Review the following code snippets for Windows platform bias. ")
		sb.WriteString("Each snippet includes the heading it appeared under. ")
		sb.WriteString("A snippet inside an explicitly Windows-scoped section is not biased.\n\n")
	}

	sb.WriteString("Bias types to check: powershell_only, windows_paths, windows_commands, windows_tools, ")
	sb.WriteString("missing_linux_alternative, windows_specific_syntax, windows_registry, windows_services.\n\n")

	sb.WriteString("Reply with ONLY a JSON array matching this shape, one element per item, in input order:\n")
	sb.WriteString(verdictSchema)
	sb.WriteString("\n\n")

	for i, item := range items {
		fmt.Fprintf(&sb, "--- Item %d (id: %s) ---\n", i+1, item.ID)
		if item.Context != "" {
			fmt.Fprintf(&sb, "Context: %s\n", item.Context)
		}
		sb.WriteString("Content:\n")
		sb.WriteString(item.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
