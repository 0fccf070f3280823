// Package marketdata fetches OHLCV bars for watchlist symbols.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"watchdash/internal/models"
)

var (
	// ErrNoData means the source answered but had no usable bars for the symbol.
	ErrNoData = errors.New("marketdata: no data")
	// ErrFetchFailure matches every *FetchError.
	ErrFetchFailure = errors.New("marketdata: fetch failed")
)

// FetchError wraps a transport or decoding failure for one symbol.
type FetchError struct {
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetchFailure }

// Fetcher returns bars in ascending time order for symbol over period at interval.
// period and interval use Yahoo spellings ("3y", "6mo", "1d", "1wk").
type Fetcher interface {
	FetchBars(ctx context.Context, symbol, period, interval string) ([]models.Bar, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, symbol, period, interval string) ([]models.Bar, error)

func (f FetcherFunc) FetchBars(ctx context.Context, symbol, period, interval string) ([]models.Bar, error) {
	return f(ctx, symbol, period, interval)
}

// sortBars orders bars by time and drops repeated timestamps, keeping the last one seen.
func sortBars(bars []models.Bar) []models.Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Time.Equal(b.Time) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// PeriodStart converts a Yahoo range such as "3y", "6mo", "5d", "ytd" or "max" into the
// start time it covers, counted back from now.
func PeriodStart(now time.Time, period string) (time.Time, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	switch p {
	case "max":
		return time.Unix(0, 0).UTC(), nil
	case "ytd":
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()), nil
	}

	units := []struct {
		suffix string
		apply  func(n int) time.Time
	}{
		{"mo", func(n int) time.Time { return now.AddDate(0, -n, 0) }},
		{"wk", func(n int) time.Time { return now.AddDate(0, 0, -7*n) }},
		{"y", func(n int) time.Time { return now.AddDate(-n, 0, 0) }},
		{"d", func(n int) time.Time { return now.AddDate(0, 0, -n) }},
	}
	for _, u := range units {
		if !strings.HasSuffix(p, u.suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(p, u.suffix))
		if err != nil || n <= 0 {
			break
		}
		return u.apply(n), nil
	}
	return time.Time{}, fmt.Errorf("marketdata: unsupported period %q", period)
}
