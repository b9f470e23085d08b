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

// PageStorage implements the PageStorage interface for Badger.
// Page IDs are derived from (scan_id, normalized URL), so every write is a
// whole-row upsert and racing workers converge last-writer-wins.
type PageStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPageStorage creates a new PageStorage instance
func NewPageStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PageStorage {
	return &PageStorage{
		db:     db,
		logger: logger,
	}
}

func (s *PageStorage) UpsertPage(ctx context.Context, page *models.Page) error {
	if page.ScanID == "" || page.URL == "" {
		return fmt.Errorf("page scan ID and URL are required")
	}
	if page.ID == "" {
		page.ID = models.PageKey(page.ScanID, page.URL)
	}

	now := time.Now()
	if page.CreatedAt.IsZero() {
		page.CreatedAt = now
	}
	page.UpdatedAt = now

	if err := s.db.Store().Upsert(page.ID, page); err != nil {
		return fmt.Errorf("failed to save page: %w", err)
	}
	return nil
}

func (s *PageStorage) GetPage(ctx context.Context, id string) (*models.Page, error) {
	var page models.Page
	if err := s.db.Store().Get(id, &page); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("page not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return &page, nil
}

func (s *PageStorage) GetPageByURL(ctx context.Context, scanID, normalizedURL string) (*models.Page, error) {
	return s.GetPage(ctx, models.PageKey(scanID, normalizedURL))
}

func (s *PageStorage) ListPagesByScan(ctx context.Context, scanID string) ([]*models.Page, error) {
	var pages []models.Page
	if err := s.db.Store().Find(&pages, badgerhold.Where("ScanID").Eq(scanID).Index("ScanID")); err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}

	result := make([]*models.Page, len(pages))
	for i := range pages {
		result[i] = &pages[i]
	}
	return result, nil
}

func (s *PageStorage) CountPagesByStatus(ctx context.Context, scanID string, status models.PageStatus) (int, error) {
	count, err := s.db.Store().Count(&models.Page{}, badgerhold.Where("ScanID").Eq(scanID).And("Status").Eq(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return int(count), nil
}
