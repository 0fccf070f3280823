// Package positions is the single authority over tracked position records.
//
// Every mutation is a read-modify-write of the full record set against the repository,
// serialized by one mutex, so manual commands and the run engine's run-high updates never
// interleave. Callers only ever receive copies.
package positions

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"watchdash/internal/models"
	"watchdash/internal/persistence"

	"go.uber.org/zap"
)

var (
	// ErrInvalidEntry rejects an entry with a non-positive price, empty symbol or round < 1.
	ErrInvalidEntry = errors.New("positions: invalid entry")
	// ErrInvalidPrice rejects a close with a non-positive price.
	ErrInvalidPrice = errors.New("positions: invalid price")
	// ErrNoOpenPosition is returned when a mutation targets a symbol without an open record.
	ErrNoOpenPosition = errors.New("positions: no open position")
)

// Store applies the lifecycle transitions Open -> Partial -> Closed.
type Store struct {
	mu     sync.Mutex
	repo   persistence.PositionRepository
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the timezone used for entry and close dates.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store over repo.
func NewStore(repo persistence.PositionRepository, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		loc:    time.UTC,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current date in the store's timezone.
func (s *Store) Today() string {
	return s.now().In(s.loc).Format(models.DateLayout)
}

// EntryOption customizes CreateEntry.
type EntryOption func(*models.Position)

// WithQuantity records a display-only quantity.
func WithQuantity(q float64) EntryOption {
	return func(p *models.Position) { p.Quantity = &q }
}

// WithEntryDate overrides the entry date (YYYY-MM-DD).
func WithEntryDate(date string) EntryOption {
	return func(p *models.Position) { p.EntryDate = date }
}

// CreateEntry records a new open position and returns its id.
// A record with the same (symbol, round, entry_date) is superseded, not duplicated.
func (s *Store) CreateEntry(symbol string, price float64, round int, opts ...EntryOption) (string, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrInvalidEntry)
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return "", fmt.Errorf("%w: entry price %v must be > 0", ErrInvalidEntry, price)
	}
	if round < 1 {
		return "", fmt.Errorf("%w: round %d must be >= 1", ErrInvalidEntry, round)
	}

	pos := models.Position{
		Symbol:     symbol,
		EntryDate:  s.Today(),
		EntryPrice: price,
		RunHigh:    price,
		Round:      round,
	}
	for _, opt := range opts {
		opt(&pos)
	}
	if _, err := time.Parse(models.DateLayout, pos.EntryDate); err != nil {
		return "", fmt.Errorf("%w: entry date %q: %v", ErrInvalidEntry, pos.EntryDate, err)
	}

	err := s.mutate(func(all []models.Position) ([]models.Position, bool, error) {
		key := pos.Key()
		kept := all[:0:0]
		replaced := 0
		for _, p := range all {
			if p.Key() == key {
				replaced++
				continue
			}
			kept = append(kept, p)
		}
		if replaced > 0 {
			s.logger.Info("superseding position with same key",
				zap.String("symbol", symbol), zap.Int("round", round), zap.String("entry_date", pos.EntryDate))
		} else if idx := latestOpen(kept, symbol); idx >= 0 {
			s.logger.Warn("symbol already has an open position; the new entry becomes authoritative",
				zap.String("symbol", symbol), zap.String("previous_entry_date", kept[idx].EntryDate))
		}
		return append(kept, pos), true, nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("entry recorded", zap.String("symbol", symbol), zap.Float64("price", price), zap.Int("round", round))
	return pos.ID(), nil
}

// UpdateRunHigh raises the run-high of the symbol's open position to newHigh.
// It never lowers the stored value and is a no-op without an open position.
// changed reports whether anything was written.
func (s *Store) UpdateRunHigh(symbol string, newHigh float64) (changed bool, err error) {
	err = s.mutate(func(all []models.Position) ([]models.Position, bool, error) {
		idx := latestOpen(all, symbol)
		if idx < 0 {
			return all, false, nil
		}
		changed = raiseRunHigh(&all[idx], newHigh)
		return all, changed, nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// UpdateRunHighs folds observed closes into the run-highs of the records they were
// observed for, in one read-modify-write, and returns how many records changed.
// Each record is addressed by its key, so a close or re-entry that lands between the
// read and this write never receives a peak computed for another record. Keys that are
// closed or gone are skipped.
func (s *Store) UpdateRunHighs(closes map[models.PositionKey]float64) (int, error) {
	if len(closes) == 0 {
		return 0, nil
	}
	changed := 0
	err := s.mutate(func(all []models.Position) ([]models.Position, bool, error) {
		for key, c := range closes {
			idx := openByKey(all, key)
			if idx < 0 {
				continue
			}
			if raiseRunHigh(&all[idx], c) {
				changed++
			}
		}
		return all, changed > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

func raiseRunHigh(p *models.Position, high float64) bool {
	if math.IsNaN(high) || math.IsInf(high, 0) || high <= p.RunHigh {
		return false
	}
	p.RunHigh = high
	return true
}

// RecordHalfExit marks the symbol's open position as having taken half profit.
// Calling it again on the same position leaves the state unchanged.
func (s *Store) RecordHalfExit(symbol string) error {
	err := s.mutate(func(all []models.Position) ([]models.Position, bool, error) {
		idx := latestOpen(all, symbol)
		if idx < 0 {
			return nil, false, fmt.Errorf("%w: %s", ErrNoOpenPosition, symbol)
		}
		if all[idx].TookHalf {
			return all, false, nil
		}
		all[idx].TookHalf = true
		return all, true, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("half exit recorded", zap.String("symbol", symbol))
	return nil
}

// RecordClose closes the symbol's open position. A zero closeDate means today.
// Closed records are terminal: a second close finds no open position and fails.
func (s *Store) RecordClose(symbol string, closePrice float64, closeDate time.Time) error {
	if !(closePrice > 0) || math.IsInf(closePrice, 0) {
		return fmt.Errorf("%w: close price %v must be > 0", ErrInvalidPrice, closePrice)
	}
	date := s.Today()
	if !closeDate.IsZero() {
		date = closeDate.In(s.loc).Format(models.DateLayout)
	}

	err := s.mutate(func(all []models.Position) ([]models.Position, bool, error) {
		idx := latestOpen(all, symbol)
		if idx < 0 {
			return nil, false, fmt.Errorf("%w: %s", ErrNoOpenPosition, symbol)
		}
		price := closePrice
		d := date
		all[idx].Closed = true
		all[idx].ClosePrice = &price
		all[idx].CloseDate = &d
		return all, true, nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("position closed", zap.String("symbol", symbol), zap.Float64("price", closePrice), zap.String("date", date))
	return nil
}

// Open returns a copy of the authoritative open position for symbol.
func (s *Store) Open(symbol string) (models.Position, bool, error) {
	all, err := s.snapshot()
	if err != nil {
		return models.Position{}, false, err
	}
	idx := latestOpen(all, symbol)
	if idx < 0 {
		return models.Position{}, false, nil
	}
	return all[idx], true, nil
}

// OpenPositions returns the authoritative open position of every symbol that has one.
// Duplicate open records for a symbol are logged as a repair condition.
func (s *Store) OpenPositions() (map[string]models.Position, error) {
	all, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	open := make(map[string]models.Position)
	for _, p := range all {
		if p.Closed {
			continue
		}
		if prev, dup := open[p.Symbol]; dup {
			s.logger.Warn("duplicate open positions; using the most recent",
				zap.String("symbol", p.Symbol),
				zap.String("ignored_entry_date", prev.EntryDate),
				zap.String("entry_date", p.EntryDate))
		}
		open[p.Symbol] = p
	}
	return open, nil
}

// List returns copies of all records in creation order.
func (s *Store) List() ([]models.Position, error) {
	return s.snapshot()
}

func (s *Store) snapshot() ([]models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.Position, len(all))
	for i, p := range all {
		out[i] = p.Clone()
	}
	return out, nil
}

// mutate runs fn over the freshly loaded record set under the store lock and persists the
// result when fn reports a change. An error from fn leaves storage untouched.
func (s *Store) mutate(fn func([]models.Position) ([]models.Position, bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.load()
	if err != nil {
		return err
	}
	next, changed, err := fn(all)
	if err != nil || !changed {
		return err
	}
	if err := s.repo.SavePositions(next); err != nil {
		s.logger.Error("failed to save positions", zap.Error(err))
		return fmt.Errorf("save positions: %w", err)
	}
	return nil
}

func (s *Store) load() ([]models.Position, error) {
	all, err := s.repo.LoadPositions()
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	for _, p := range all {
		if err := p.Validate(); err != nil {
			s.logger.Warn("stored position violates invariants", zap.Error(err))
		}
	}
	return all, nil
}

// latestOpen returns the index of the most recently created open record for symbol, or -1.
func openByKey(all []models.Position, key models.PositionKey) int {
	for i := len(all) - 1; i >= 0; i-- {
		if !all[i].Closed && all[i].Key() == key {
			return i
		}
	}
	return -1
}

func latestOpen(all []models.Position, symbol string) int {
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Symbol == symbol && !all[i].Closed {
			return i
		}
	}
	return -1
}
