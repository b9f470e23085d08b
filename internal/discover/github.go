package discover

import (
	"strings"

	"github.com/linuxfirst/docscan/internal/fetcher"
	"github.com/linuxfirst/docscan/internal/heuristics"
	"github.com/ternarybob/arbor"
)

// RepoDiscoverer selects the documentation files from a repository tree
// worth auditing: markdown files outside Windows-focused directories.
type RepoDiscoverer struct {
	visited  *VisitedSet
	maxPages int
	logger   arbor.ILogger
}

func NewRepoDiscoverer(visited *VisitedSet, maxPages int, logger arbor.ILogger) *RepoDiscoverer {
	return &RepoDiscoverer{
		visited:  visited,
		maxPages: maxPages,
		logger:   logger,
	}
}

// Discover filters the repository tree listing down to the units this scan
// should process. Files under Windows-focused path segments are dropped
// here rather than fetched and skipped later.
func (d *RepoDiscoverer) Discover(files []fetcher.RepoFile) []fetcher.RepoFile {
	var selected []fetcher.RepoFile
	skipped := 0

	for _, f := range files {
		if d.maxPages > 0 && d.visited.Len() >= d.maxPages {
			break
		}

		if heuristics.IsWindowsFocusedPath(f.Path) {
			skipped++
			continue
		}

		if !d.visited.MarkVisited(f.Path) {
			continue
		}
		selected = append(selected, f)
	}

	if skipped > 0 {
		d.logger.Info().Int("skipped", skipped).Msg("Skipped Windows-focused repository paths")
	}

	return selected
}

// IsMarkdownPath reports whether the file path looks like a markdown document.
func IsMarkdownPath(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".markdown")
}
