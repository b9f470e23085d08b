package extractor

import "strings"

// Block is a code snippet lifted from a documentation page together with
// the surrounding context the scoring stages need.
type Block struct {
	// Context is the nearest heading above the block plus the prose
	// immediately preceding it, clipped to contextMaxLines.
	Context string
	// Code is the verbatim snippet text.
	Code string
	// UnderPowerShellTab marks blocks inside a tabbed code group where the
	// PowerShell variant sits alongside equivalent shells.
	UnderPowerShellTab bool
	// WindowsHeader marks blocks whose enclosing section is explicitly
	// Windows documentation.
	WindowsHeader bool
}

// contextMaxLines bounds the excerpt attached to each block so snippet rows
// stay reviewable without refetching the source.
const contextMaxLines = 25

func buildContext(heading, prose string) string {
	parts := make([]string, 0, 2)
	if heading != "" {
		parts = append(parts, heading)
	}
	if prose != "" {
		parts = append(parts, prose)
	}
	return clipLines(strings.Join(parts, "\n\n"), contextMaxLines)
}

func clipLines(s string, max int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	return strings.Join(lines[:max], "\n")
}
