package badger

import (
	"github.com/linuxfirst/docscan/internal/common"
	"github.com/linuxfirst/docscan/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db      *BadgerDB
	scan    interfaces.ScanStorage
	page    interfaces.PageStorage
	snippet interfaces.SnippetStorage
	history interfaces.HistoryStorage
	logger  arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		scan:    NewScanStorage(db, logger),
		page:    NewPageStorage(db, logger),
		snippet: NewSnippetStorage(db, logger),
		history: NewHistoryStorage(db, logger),
		logger:  logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// ScanStorage returns the Scan storage interface
func (m *Manager) ScanStorage() interfaces.ScanStorage {
	return m.scan
}

// PageStorage returns the Page storage interface
func (m *Manager) PageStorage() interfaces.PageStorage {
	return m.page
}

// SnippetStorage returns the Snippet storage interface
func (m *Manager) SnippetStorage() interfaces.SnippetStorage {
	return m.snippet
}

// HistoryStorage returns the FileProcessingHistory storage interface
func (m *Manager) HistoryStorage() interfaces.HistoryStorage {
	return m.history
}

// DB returns the underlying connection for subsystems that share it,
// such as the Badger-backed work queues
func (m *Manager) DB() *BadgerDB {
	return m.db
}

// Close closes the database connection
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing Badger storage manager")
	return m.db.Close()
}
