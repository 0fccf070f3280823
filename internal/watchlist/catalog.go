// Package watchlist reads the ordered list of watched symbols from a CSV file.
package watchlist

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"watchdash/internal/models"
)

// ErrMissingTicker is returned when the file has no ticker column.
var ErrMissingTicker = errors.New("watchlist: missing ticker column")

// Catalog caches the parsed file and re-reads it when its modification time changes.
type Catalog struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	items   []models.WatchItem
}

func NewCatalog(path string) *Catalog {
	return &Catalog{path: path}
}

// Items returns the watchlist in file order.
func (c *Catalog) Items() ([]models.WatchItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := os.Stat(c.path)
	if err != nil {
		return nil, fmt.Errorf("watchlist: %w", err)
	}
	if c.items == nil || !info.ModTime().Equal(c.modTime) {
		f, err := os.Open(c.path)
		if err != nil {
			return nil, fmt.Errorf("watchlist: %w", err)
		}
		items, err := Parse(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		c.items = items
		c.modTime = info.ModTime()
	}
	return append([]models.WatchItem(nil), c.items...), nil
}

// Parse reads a watchlist CSV with at least ticker and name columns.
// Optional columns: market, icon, quantity, ratio. Rows with a blank ticker are skipped.
func Parse(r io.Reader) ([]models.WatchItem, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrMissingTicker
	}
	if err != nil {
		return nil, fmt.Errorf("watchlist: read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	if _, ok := cols["ticker"]; !ok {
		return nil, ErrMissingTicker
	}

	get := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	items := []models.WatchItem{}
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("watchlist: line %d: %w", line, err)
		}
		item := models.WatchItem{
			Ticker: get(rec, "ticker"),
			Name:   get(rec, "name"),
			Market: get(rec, "market"),
			Icon:   get(rec, "icon"),
		}
		if item.Ticker == "" {
			continue
		}
		if item.Name == "" {
			item.Name = item.Ticker
		}
		if item.Quantity, err = optionalFloat(get(rec, "quantity")); err != nil {
			return nil, fmt.Errorf("watchlist: line %d quantity: %w", line, err)
		}
		if item.Ratio, err = optionalFloat(get(rec, "ratio")); err != nil {
			return nil, fmt.Errorf("watchlist: line %d ratio: %w", line, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func optionalFloat(s string) (*float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
