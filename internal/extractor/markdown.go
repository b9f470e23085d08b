package extractor

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExtractMarkdown pulls fenced code blocks out of markdown source. Each
// fence becomes one Block with the closest preceding heading as context.
func ExtractMarkdown(source []byte) []Block {
	parser := goldmark.DefaultParser()
	root := parser.Parse(text.NewReader(source))

	var blocks []Block
	var lastHeading string
	var lastParagraph string

	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Heading:
			lastHeading = inlineText(n, source)
			lastParagraph = ""

		case *ast.Paragraph:
			lastParagraph = inlineText(n, source)

		case *ast.FencedCodeBlock:
			code := strings.TrimSpace(linesText(n, source))
			if code == "" {
				return ast.WalkContinue, nil
			}
			blocks = append(blocks, Block{
				Context:       buildContext(lastHeading, lastParagraph),
				Code:          code,
				WindowsHeader: isWindowsHeading(lastHeading),
			})
		}
		return ast.WalkContinue, nil
	})

	return blocks
}

func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if t, ok := child.(*ast.Text); ok {
			sb.Write(t.Segment.Value(source))
		}
	}
	return strings.TrimSpace(sb.String())
}

func linesText(n *ast.FencedCodeBlock, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return sb.String()
}
