package persistence

import (
	"fmt"

	"watchdash/internal/models"
)

// PositionRepository defines the interface for position record persistence.
// It abstracts the underlying storage mechanism (CSV file, BadgerDB, SQLite)
// from the position store. Records are kept in creation order: the last
// element is the most recently created one.
type PositionRepository interface {
	// LoadPositions loads the full record set.
	// If nothing has been stored yet, it returns an empty slice and no error.
	LoadPositions() ([]models.Position, error)

	// SavePositions atomically replaces the full record set.
	// A failed save must leave the previously stored set intact.
	SavePositions(positions []models.Position) error

	// Close gracefully closes the underlying storage.
	Close() error
}

// Open creates the repository selected by cfg.Driver.
func Open(cfg models.StoreConfig) (PositionRepository, error) {
	switch cfg.Driver {
	case "", "csv":
		return NewCSVRepository(cfg.Path)
	case "badger":
		return NewBadgerRepository(cfg.Path)
	case "sqlite":
		return NewSQLiteRepository(cfg.Path)
	default:
		return nil, fmt.Errorf("persistence: unknown driver %q", cfg.Driver)
	}
}
