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

// HistoryStorage implements the HistoryStorage interface for Badger
type HistoryStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewHistoryStorage creates a new HistoryStorage instance
func NewHistoryStorage(db *BadgerDB, logger arbor.ILogger) interfaces.HistoryStorage {
	return &HistoryStorage{
		db:     db,
		logger: logger,
	}
}

// GetHistory returns the ledger entry for a unit, or nil when the unit has
// never been processed
func (s *HistoryStorage) GetHistory(ctx context.Context, unitID string) (*models.FileProcessingHistory, error) {
	var entry models.FileProcessingHistory
	if err := s.db.Store().Get(unitID, &entry); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get processing history: %w", err)
	}
	return &entry, nil
}

func (s *HistoryStorage) UpsertHistory(ctx context.Context, entry *models.FileProcessingHistory) error {
	if entry.UnitID == "" {
		return fmt.Errorf("history unit ID is required")
	}
	if entry.LastProcessedAt.IsZero() {
		entry.LastProcessedAt = time.Now()
	}

	if err := s.db.Store().Upsert(entry.UnitID, entry); err != nil {
		return fmt.Errorf("failed to save processing history: %w", err)
	}
	return nil
}
