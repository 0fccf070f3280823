// Package trigger holds the stateless signal predicates evaluated on the latest snapshot.
// None of them fail: missing or invalid numeric input simply yields no signal.
package trigger

import (
	"math"

	"watchdash/internal/models"
)

// Params are the thresholds used by the predicates, all in percent.
type Params struct {
	DDEntryPct  float64
	RSIEntryMax float64
	TPMin       float64
	TPMax       float64
	TrailDrop   float64
}

// FromStrategy converts the configured strategy parameters.
func FromStrategy(p models.StrategyParams) Params {
	return Params{
		DDEntryPct:  p.DDEntryPct,
		RSIEntryMax: p.RSIEntryMax,
		TPMin:       p.TPMin,
		TPMax:       p.TPMax,
		TrailDrop:   p.TrailDrop,
	}
}

// Band is an inclusive take-profit price range.
type Band struct {
	Low  float64
	High float64
}

// Contains reports whether price lies within the band, both ends inclusive.
func (b Band) Contains(price float64) bool {
	return price >= b.Low && price <= b.High
}

// EntrySignal is true when drawdown >= ddThreshold and RSI < rsiCeiling.
func EntrySignal(s models.Snapshot, ddThreshold, rsiCeiling float64) bool {
	if s.DrawdownPct == nil || s.RSI == nil {
		return false
	}
	dd, rsi := *s.DrawdownPct, *s.RSI
	if math.IsNaN(dd) || math.IsNaN(rsi) {
		return false
	}
	return dd >= ddThreshold && rsi < rsiCeiling
}

// TakeProfitBand returns [entry*(1+tpMin/100), entry*(1+tpMax/100)].
// ok is false when entryPrice is not positive.
func TakeProfitBand(entryPrice, tpMinPct, tpMaxPct float64) (band Band, ok bool) {
	if !(entryPrice > 0) {
		return Band{}, false
	}
	return Band{
		Low:  entryPrice * (1.0 + tpMinPct/100.0),
		High: entryPrice * (1.0 + tpMaxPct/100.0),
	}, true
}

// TakeProfitHit is true for an open position that has not yet taken half profit and whose
// latest close lies within the take-profit band.
func TakeProfitHit(pos *models.Position, close, tpMinPct, tpMaxPct float64) bool {
	if pos == nil || pos.Closed || pos.TookHalf {
		return false
	}
	band, ok := TakeProfitBand(pos.EntryPrice, tpMinPct, tpMaxPct)
	if !ok {
		return false
	}
	return band.Contains(close)
}

// TrailingStopHit is true when close <= runHigh * (1 - trailPct/100).
func TrailingStopHit(close, runHigh, trailPct float64) bool {
	if math.IsNaN(runHigh) || runHigh <= 0 || math.IsNaN(close) {
		return false
	}
	return close <= runHigh*(1.0-trailPct/100.0)
}

// NextRunHigh returns max(pos.RunHigh, close). A missing or non-positive stored run-high
// is seeded with the entry price, as at creation.
func NextRunHigh(pos models.Position, close float64) float64 {
	prev := pos.RunHigh
	if math.IsNaN(prev) || prev <= 0 {
		prev = pos.EntryPrice
	}
	return math.Max(prev, close)
}

// Result is the outcome of evaluating all triggers for one symbol.
type Result struct {
	Entry    bool
	Band     *Band
	TPHit    bool
	TrailHit bool
	// RunHigh is the updated run-high of the open position, zero without one.
	RunHigh float64
}

// Evaluate runs the entry predicate unconditionally and, for an open position, advances the
// run-high with the latest close before checking take-profit and trailing-stop against it.
// pos is not modified.
func Evaluate(s models.Snapshot, pos *models.Position, p Params) Result {
	res := Result{Entry: EntrySignal(s, p.DDEntryPct, p.RSIEntryMax)}
	if pos == nil || pos.Closed {
		return res
	}

	res.RunHigh = NextRunHigh(*pos, s.Close)

	if band, ok := TakeProfitBand(pos.EntryPrice, p.TPMin, p.TPMax); ok {
		res.Band = &band
	}
	res.TPHit = TakeProfitHit(pos, s.Close, p.TPMin, p.TPMax)
	res.TrailHit = TrailingStopHit(s.Close, res.RunHigh, p.TrailDrop)
	return res
}

// Labels returns the status labels for the fired signals in display order.
func (r Result) Labels() []string {
	var labels []string
	if r.Entry {
		labels = append(labels, models.LabelEntry)
	}
	if r.TPHit {
		labels = append(labels, models.LabelTakeHalf)
	}
	if r.TrailHit {
		labels = append(labels, models.LabelTrail)
	}
	return labels
}
