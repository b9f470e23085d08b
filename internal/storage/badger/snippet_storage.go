package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/linuxfirst/docscan/internal/interfaces"
	"github.com/linuxfirst/docscan/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// SnippetStorage implements the SnippetStorage interface for Badger.
// Snippet IDs are derived from (page_id, ordinal) so reprocessing an
// unchanged page rewrites the same rows instead of duplicating them.
type SnippetStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSnippetStorage creates a new SnippetStorage instance
func NewSnippetStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SnippetStorage {
	return &SnippetStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SnippetStorage) UpsertSnippet(ctx context.Context, snippet *models.Snippet) error {
	if snippet.PageID == "" {
		return fmt.Errorf("snippet page ID is required")
	}
	if snippet.ID == "" {
		snippet.ID = models.SnippetKey(snippet.PageID, snippet.Ordinal)
	}

	// Score fields never regress from populated back to nil
	var existing models.Snippet
	if err := s.db.Store().Get(snippet.ID, &existing); err == nil {
		if snippet.Heuristic == nil {
			snippet.Heuristic = existing.Heuristic
		}
		if snippet.LLM == nil {
			snippet.LLM = existing.LLM
		}
		snippet.CreatedAt = existing.CreatedAt
	}

	now := time.Now()
	if snippet.CreatedAt.IsZero() {
		snippet.CreatedAt = now
	}
	snippet.UpdatedAt = now

	if err := s.db.Store().Upsert(snippet.ID, snippet); err != nil {
		return fmt.Errorf("failed to save snippet: %w", err)
	}
	return nil
}

func (s *SnippetStorage) GetSnippet(ctx context.Context, id string) (*models.Snippet, error) {
	var snippet models.Snippet
	if err := s.db.Store().Get(id, &snippet); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("snippet not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get snippet: %w", err)
	}
	return &snippet, nil
}

func (s *SnippetStorage) ListSnippetsByPage(ctx context.Context, pageID string) ([]*models.Snippet, error) {
	var snippets []models.Snippet
	query := badgerhold.Where("PageID").Eq(pageID).Index("PageID").SortBy("Ordinal")
	if err := s.db.Store().Find(&snippets, query); err != nil {
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}

	result := make([]*models.Snippet, len(snippets))
	for i := range snippets {
		result[i] = &snippets[i]
	}
	return result, nil
}

func (s *SnippetStorage) ListSnippetsByScan(ctx context.Context, scanID string) ([]*models.Snippet, error) {
	var snippets []models.Snippet
	if err := s.db.Store().Find(&snippets, badgerhold.Where("ScanID").Eq(scanID).Index("ScanID")); err != nil {
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}

	result := make([]*models.Snippet, len(snippets))
	for i := range snippets {
		result[i] = &snippets[i]
	}
	return result, nil
}
