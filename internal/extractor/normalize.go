package extractor

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// NormalizeHTML converts a page to markdown for fingerprinting and bias
// review, and extracts the page title. The markdown form is stable across
// markup-only edits (attribute reordering, whitespace), so content hashes
// stay comparable between scans.
func NormalizeHTML(pageURL string, html []byte) (markdown string, title string, err error) {
	domain := ""
	if u, parseErr := url.Parse(pageURL); parseErr == nil {
		domain = u.Scheme + "://" + u.Host
	}

	converter := md.NewConverter(domain, true, nil)
	markdown, err = converter.ConvertString(string(html))
	if err != nil {
		return "", "", fmt.Errorf("failed to convert page to markdown: %w", err)
	}

	return strings.TrimSpace(markdown), ExtractTitle(html), nil
}

// ExtractTitle returns the page <title>, falling back to the first h1.
func ExtractTitle(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// MarkdownTitle returns the first top-level heading of a markdown document.
func MarkdownTitle(source []byte) string {
	for _, line := range strings.Split(string(source), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	return ""
}
