package fetcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/linuxfirst/docscan/internal/models"
	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
)

// RepoRef identifies one repository corpus: owner/repo at an optional ref
type RepoRef struct {
	Owner string
	Repo  string
	Ref   string // branch or SHA; empty means the default branch
}

// String renders the reference as owner/repo[@ref]
func (r RepoRef) String() string {
	if r.Ref != "" {
		return fmt.Sprintf("%s/%s@%s", r.Owner, r.Repo, r.Ref)
	}
	return fmt.Sprintf("%s/%s", r.Owner, r.Repo)
}

// ParseRepoRef accepts "owner/repo", "owner/repo@branch", and full
// "https://github.com/owner/repo" URLs
func ParseRepoRef(target string) (RepoRef, error) {
	s := strings.TrimSpace(target)

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return RepoRef{}, fmt.Errorf("invalid repository URL %q: %w", target, err)
		}
		s = strings.Trim(u.Path, "/")
	}
	s = strings.TrimPrefix(s, "github.com/")

	ref := ""
	if at := strings.LastIndex(s, "@"); at >= 0 {
		ref = s[at+1:]
		s = s[:at]
	}

	parts := strings.Split(s, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, fmt.Errorf("invalid repository reference %q: want owner/repo", target)
	}

	return RepoRef{Owner: parts[0], Repo: parts[1], Ref: ref}, nil
}

// RepoFile is one markdown file discovered in a repository tree
type RepoFile struct {
	Path string
	SHA  string
	Size int
}

// GitHubFetcher enumerates and retrieves repository files. File blob SHAs
// serve as revision markers for the change-detection gate.
type GitHubFetcher struct {
	client *github.Client
	ref    RepoRef
	logger arbor.ILogger
}

// NewGitHubFetcher creates a fetcher for one repository. An empty token
// falls back to unauthenticated access (low rate limits).
func NewGitHubFetcher(ctx context.Context, token string, ref RepoRef, logger arbor.ILogger) *GitHubFetcher {
	var client *github.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		client = github.NewClient(oauth2.NewClient(ctx, ts))
	} else {
		client = github.NewClient(nil)
	}

	return &GitHubFetcher{
		client: client,
		ref:    ref,
		logger: logger,
	}
}

// resolveRef returns the configured ref or the repository default branch
func (f *GitHubFetcher) resolveRef(ctx context.Context) (string, error) {
	if f.ref.Ref != "" {
		return f.ref.Ref, nil
	}

	repo, resp, err := f.client.Repositories.Get(ctx, f.ref.Owner, f.ref.Repo)
	if err != nil {
		return "", f.wrap("repo", resp, err)
	}
	return repo.GetDefaultBranch(), nil
}

// ListMarkdownFiles walks the repository tree recursively and returns every
// markdown file with its blob SHA
func (f *GitHubFetcher) ListMarkdownFiles(ctx context.Context) ([]RepoFile, error) {
	ref, err := f.resolveRef(ctx)
	if err != nil {
		return nil, err
	}

	tree, resp, err := f.client.Git.GetTree(ctx, f.ref.Owner, f.ref.Repo, ref, true)
	if err != nil {
		return nil, f.wrap("tree", resp, err)
	}

	var files []RepoFile
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}

		path := entry.GetPath()
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".markdown" {
			continue
		}

		files = append(files, RepoFile{
			Path: path,
			SHA:  entry.GetSHA(),
			Size: entry.GetSize(),
		})
	}

	f.logger.Debug().
		Str("repo", f.ref.String()).
		Int("markdown_files", len(files)).
		Msg("Listed repository tree")

	return files, nil
}

// Fetch retrieves one file by path, returning the blob SHA as the revision
// marker. Returns a typed *Error on failure.
func (f *GitHubFetcher) Fetch(ctx context.Context, unitID string) (*models.FetchResult, error) {
	ref, err := f.resolveRef(ctx)
	if err != nil {
		return nil, err
	}

	content, _, resp, err := f.client.Repositories.GetContents(ctx, f.ref.Owner, f.ref.Repo, unitID, &github.RepositoryContentGetOptions{
		Ref: ref,
	})
	if err != nil {
		return nil, f.wrap(unitID, resp, err)
	}
	if content == nil {
		return nil, &Error{Kind: KindNotFound, Unit: unitID, Err: fmt.Errorf("file not found")}
	}

	var decoded []byte
	if content.Content != nil {
		decoded, err = base64.StdEncoding.DecodeString(strings.ReplaceAll(*content.Content, "\n", ""))
		if err != nil {
			return nil, &Error{Kind: KindFatal, Unit: unitID, Err: fmt.Errorf("decoding content: %w", err)}
		}
	}

	return &models.FetchResult{
		UnitID:         unitID,
		Content:        decoded,
		ContentType:    "text/markdown",
		RevisionMarker: content.GetSHA(),
		FetchedAt:      time.Now(),
	}, nil
}

// wrap classifies a go-github error into a typed fetch failure
func (f *GitHubFetcher) wrap(unit string, resp *github.Response, err error) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}

	var rle *github.RateLimitError
	var arle *github.AbuseRateLimitError
	switch {
	case errors.As(err, &rle), errors.As(err, &arle):
		return &Error{Kind: KindRateLimited, Unit: unit, StatusCode: status, Err: err}
	case status > 0:
		return &Error{Kind: classifyStatus(status), Unit: unit, StatusCode: status, Err: err}
	default:
		return &Error{Kind: classifyNetErr(err), Unit: unit, Err: err}
	}
}
