package interfaces

import (
	"context"

	"github.com/linuxfirst/docscan/internal/models"
)

// SourceFetcher retrieves raw content for one unit of work. It enforces its
// own concurrency ceilings and per-request timeout but performs no retries;
// retry scheduling is centralized in the scan workers. Failures carry a
// typed kind (not-found, rate-limited, transient, fatal).
type SourceFetcher interface {
	Fetch(ctx context.Context, unitID string) (*models.FetchResult, error)
}
