package persistence

import (
	"encoding/json"
	"errors"

	"watchdash/internal/models"

	"github.com/dgraph-io/badger/v3"
)

// badgerRepository is the BadgerDB implementation of the PositionRepository.
type badgerRepository struct {
	db  *badger.DB
	key []byte
}

// NewBadgerRepository creates and returns a new repository instance connected to a BadgerDB database.
// An empty dbPath opens an in-memory database.
func NewBadgerRepository(dbPath string) (PositionRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	if dbPath == "" {
		opts = opts.WithInMemory(true)
	}
	// Badger's own logging is disabled to keep our app's logs clean.
	// Errors will still be returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerRepository{
		db:  db,
		key: []byte("positions"),
	}, nil
}

// SavePositions marshals the record set into JSON and writes it under a single key
// in one transaction, so readers see either the old or the new set.
func (r *badgerRepository) SavePositions(positions []models.Position) error {
	if positions == nil {
		positions = []models.Position{}
	}
	data, err := json.Marshal(positions)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.key, data)
	})
}

// LoadPositions loads the record set from storage.
func (r *badgerRepository) LoadPositions() ([]models.Position, error) {
	var positions []models.Position

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(r.key)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("positions value is empty in database")
			}
			return json.Unmarshal(val, &positions)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return []models.Position{}, nil
	}
	if err != nil {
		return nil, err
	}
	return positions, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
