// Package indicator derives the per-bar indicator series (rolling high, drawdown and RSI)
// from a clean bar series. All functions are pure.
package indicator

import (
	"errors"
	"fmt"
	"math"

	"watchdash/internal/models"
)

var (
	// ErrEmptySeries is returned when no bars are supplied.
	ErrEmptySeries = errors.New("indicator: empty bar series")
	// ErrInvalidWindow is returned for a window or RSI length below one.
	ErrInvalidWindow = errors.New("indicator: window length must be >= 1")
	// ErrMissingField matches any *MissingFieldError via errors.Is.
	ErrMissingField = errors.New("indicator: missing field")
)

// MissingFieldError reports a bar whose required OHLC value is absent (NaN).
type MissingFieldError struct {
	Field string
	Index int
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("indicator: required field %q missing at bar %d", e.Field, e.Index)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

// Compute returns one snapshot per input bar, aligned by position; the last one is "now".
//
// RecentHigh is the maximum High over the trailing windowLen bars (fewer at the start of
// the series). DrawdownPct is nil when RecentHigh is zero. RSI uses Wilder's smoothing
// (see RSI) and is nil for the first rsiLen bars.
func Compute(bars []models.Bar, windowLen, rsiLen int) ([]models.Snapshot, error) {
	if len(bars) == 0 {
		return nil, ErrEmptySeries
	}
	if windowLen < 1 || rsiLen < 1 {
		return nil, fmt.Errorf("%w: window=%d rsi=%d", ErrInvalidWindow, windowLen, rsiLen)
	}
	if err := validate(bars); err != nil {
		return nil, err
	}

	highs := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		closes[i] = b.Close
	}

	recentHigh := RollingMax(highs, windowLen)
	rsi := RSI(closes, rsiLen)

	out := make([]models.Snapshot, len(bars))
	for i, b := range bars {
		out[i] = models.Snapshot{
			Time:        b.Time,
			Close:       b.Close,
			RecentHigh:  recentHigh[i],
			DrawdownPct: Drawdown(recentHigh[i], b.Close),
			RSI:         rsi[i],
		}
	}
	return out, nil
}

// Last is a convenience wrapper returning only the latest snapshot.
func Last(bars []models.Bar, windowLen, rsiLen int) (models.Snapshot, error) {
	series, err := Compute(bars, windowLen, rsiLen)
	if err != nil {
		return models.Snapshot{}, err
	}
	return series[len(series)-1], nil
}

func validate(bars []models.Bar) error {
	for i, b := range bars {
		for _, f := range []struct {
			name string
			v    float64
		}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}} {
			if math.IsNaN(f.v) {
				return &MissingFieldError{Field: f.name, Index: i}
			}
		}
	}
	return nil
}

// Drawdown returns (recentHigh - close) / recentHigh * 100, or nil when recentHigh is zero.
func Drawdown(recentHigh, close float64) *float64 {
	if recentHigh == 0 || math.IsNaN(recentHigh) || math.IsNaN(close) {
		return nil
	}
	dd := (recentHigh - close) / recentHigh * 100.0
	return &dd
}

// RollingMax returns max(values[j]) for j in [max(0, i-window+1), i] at each i.
// A monotonic deque keeps it linear in len(values).
func RollingMax(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	deque := make([]int, 0, window)
	for i, v := range values {
		for len(deque) > 0 && deque[0] <= i-window {
			deque = deque[1:]
		}
		for len(deque) > 0 && values[deque[len(deque)-1]] <= v {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
		out[i] = values[deque[0]]
	}
	return out
}
