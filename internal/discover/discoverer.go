package discover

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/linuxfirst/docscan/internal/common"
	"github.com/ternarybob/arbor"
)

// LinkDiscoverer produces the next candidate units from a fetched web page:
// in-scope links, normalized, deduplicated against the scan's visited set.
type LinkDiscoverer struct {
	root     string
	visited  *VisitedSet
	maxPages int
	logger   arbor.ILogger
}

// NewLinkDiscoverer creates a discoverer bounded by the corpus root.
// The root must already be normalized.
func NewLinkDiscoverer(root string, visited *VisitedSet, maxPages int, logger arbor.ILogger) *LinkDiscoverer {
	return &LinkDiscoverer{
		root:     root,
		visited:  visited,
		maxPages: maxPages,
		logger:   logger,
	}
}

// Discover extracts links from page HTML and returns the normalized,
// in-scope candidates not yet visited in this scan. It does not mark them:
// the caller claims each candidate via the visited set only once the unit
// has been durably enqueued, so a delivery that fails mid fan-out leaves
// the remaining links discoverable on redelivery.
func (d *LinkDiscoverer) Discover(pageURL string, html []byte) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		d.logger.Warn().Err(err).Str("url", pageURL).Msg("Invalid base URL, skipping discovery")
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		// Malformed markup degrades to "discover nothing"
		d.logger.Warn().Err(err).Str("url", pageURL).Msg("Failed to parse page for links")
		return nil
	}

	var next []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists || shouldSkipLink(href) {
			return
		}

		resolved := resolveURL(base, href)
		if resolved == "" {
			return
		}

		if binaryExtensions.MatchString(resolved) {
			return
		}

		normalized := common.NormalizeURL(resolved)
		if !common.InScope(d.root, normalized) {
			return
		}

		if d.maxPages > 0 && d.visited.Len()+len(next) >= d.maxPages {
			return
		}

		if _, dup := seen[normalized]; dup || d.visited.Contains(normalized) {
			return
		}
		seen[normalized] = struct{}{}
		next = append(next, normalized)
	})

	return next
}

// binaryExtensions matches non-document resources the crawler never fetches
var binaryExtensions = regexp.MustCompile(`(?i)\.(png|jpg|jpeg|gif|svg|pdf|zip|tar|gz|mp4|mp3|webm|ico|css|js)(\?|$)`)

// shouldSkipLink filters out non-document schemes and in-page anchors
func shouldSkipLink(href string) bool {
	trimmed := strings.TrimSpace(href)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:", "ftp:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// resolveURL resolves href against the base URL, returning "" for anything
// that is not http(s)
func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
