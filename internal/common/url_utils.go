package common

import (
	"net/url"
	"sort"
	"strings"
)

// NormalizeURL canonicalizes a URL for visited-set and page-key identity:
// drops the fragment, sorts query parameters, lowercases, and trims a
// trailing slash so /docs and /docs/ are the same unit.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}

	// Remove fragment
	u.Fragment = ""

	// Sort query parameters for consistent comparison
	if u.RawQuery != "" {
		query := u.Query()
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		values := url.Values{}
		for _, k := range keys {
			values[k] = query[k]
		}
		u.RawQuery = values.Encode()
	}

	if strings.HasSuffix(u.Path, "/") && u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return strings.ToLower(u.String())
}

// InScope reports whether candidate falls under the corpus root: same host,
// path at or below the root's path. Both URLs should be normalized first.
func InScope(root, candidate string) bool {
	rootURL, err := url.Parse(root)
	if err != nil {
		return false
	}
	candURL, err := url.Parse(candidate)
	if err != nil {
		return false
	}

	if candURL.Host != rootURL.Host {
		return false
	}

	rootPath := strings.TrimSuffix(rootURL.Path, "/")
	if rootPath == "" {
		return true
	}

	return candURL.Path == rootPath || strings.HasPrefix(candURL.Path, rootPath+"/")
}
