// Package engine runs one evaluation cycle over the watchlist: fetch bars, compute
// indicators, evaluate triggers against any open position and emit status rows.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"watchdash/internal/indicator"
	"watchdash/internal/marketdata"
	"watchdash/internal/models"
	"watchdash/internal/trigger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PositionStore is the part of the position store a cycle needs.
type PositionStore interface {
	OpenPositions() (map[string]models.Position, error)
	UpdateRunHighs(closes map[models.PositionKey]float64) (int, error)
}

// Engine evaluates watchlist symbols. It keeps no state between cycles.
type Engine struct {
	fetcher marketdata.Fetcher
	store   PositionStore
	params  models.StrategyParams
	data    models.DataConfig
	logger  *zap.Logger
}

func New(fetcher marketdata.Fetcher, store PositionStore, params models.StrategyParams, data models.DataConfig, logger *zap.Logger) *Engine {
	return &Engine{
		fetcher: fetcher,
		store:   store,
		params:  params,
		data:    data,
		logger:  logger,
	}
}

// MinBars is the shortest series that is evaluated; shorter ones are reported as NO DATA.
// RSI needs rsi_len+1 closes for its first value.
func (e *Engine) MinBars() int {
	n := e.data.MinBars
	if need := e.params.RSILen + 1; need > n {
		n = need
	}
	if n < 1 {
		n = 1
	}
	return n
}

type evaluation struct {
	row models.StatusRow
	// pos is the record the row was evaluated against, nil without an open position
	pos *models.PositionKey
}

// RunCycle evaluates every item and returns one row per item in watchlist order.
// Per-symbol failures become NO DATA rows. An error is returned only when the position
// store cannot be read or the run-high batch cannot be written; in the latter case the
// rows are still returned.
func (e *Engine) RunCycle(ctx context.Context, items []models.WatchItem) ([]models.StatusRow, error) {
	start := time.Now()

	open, err := e.store.OpenPositions()
	if err != nil {
		return nil, fmt.Errorf("read open positions: %w", err)
	}

	results := make([]evaluation, len(items))
	workers := e.data.FetchConcurrency
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, item := range items {
		var pos *models.Position
		if p, ok := open[item.Ticker]; ok {
			pos = &p
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item models.WatchItem, pos *models.Position) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.evaluate(ctx, item, pos)
		}(i, item, pos)
	}
	wg.Wait()

	rows := make([]models.StatusRow, len(results))
	closes := make(map[models.PositionKey]float64)
	noData := 0
	for i, res := range results {
		rows[i] = res.row
		if res.row.Status == models.LabelNoData {
			noData++
		}
		if res.pos != nil {
			closes[*res.pos] = res.row.Close
		}
	}

	// the store folds each close into the record it was observed for
	changed, err := e.store.UpdateRunHighs(closes)
	if err != nil {
		e.logger.Error("failed to persist run highs", zap.Error(err))
		return rows, fmt.Errorf("update run highs: %w", err)
	}

	e.logger.Info("cycle complete",
		zap.Int("symbols", len(items)),
		zap.Int("no_data", noData),
		zap.Int("run_highs_raised", changed),
		zap.Duration("elapsed", time.Since(start)))
	return rows, nil
}

func (e *Engine) evaluate(ctx context.Context, item models.WatchItem, pos *models.Position) evaluation {
	log := e.logger.With(zap.String("symbol", item.Ticker))

	bars, err := e.fetcher.FetchBars(ctx, item.Ticker, e.data.Period, e.data.Interval)
	if err != nil {
		log.Warn("fetch failed", zap.Error(err))
		return evaluation{row: noDataRow(item, err.Error())}
	}
	if len(bars) < e.MinBars() {
		log.Warn("not enough bars", zap.Int("bars", len(bars)), zap.Int("min", e.MinBars()))
		return evaluation{row: noDataRow(item, fmt.Sprintf("only %d bars", len(bars)))}
	}

	snap, err := indicator.Last(bars, e.params.LookbackBars, e.params.RSILen)
	if err != nil {
		log.Warn("indicator computation failed", zap.Error(err))
		return evaluation{row: noDataRow(item, err.Error())}
	}

	res := trigger.Evaluate(snap, pos, trigger.FromStrategy(e.params))
	row := models.StatusRow{
		Ticker:      item.Ticker,
		Name:        item.Name,
		DrawdownPct: round2(snap.DrawdownPct),
		RSI:         round2(snap.RSI),
		Close:       snap.Close,
		Entry:       res.Entry,
		TPHit:       res.TPHit,
		TrailHit:    res.TrailHit,
		Status:      StatusLabel(res.Labels()),
	}
	if res.Band != nil {
		row.TPBand = FormatBand(*res.Band)
	}
	if row.Fired() {
		log.Info("signal", zap.String("status", row.Status), zap.Float64("close", snap.Close))
	}
	ev := evaluation{row: row}
	if pos != nil {
		key := pos.Key()
		ev.pos = &key
	}
	return ev
}

// Series returns the full indicator series for one symbol, for a detail view.
// Fetch errors are returned unchanged so callers can tell ErrNoData from a failure.
func (e *Engine) Series(ctx context.Context, symbol string) ([]models.Snapshot, error) {
	bars, err := e.fetcher.FetchBars(ctx, symbol, e.data.Period, e.data.Interval)
	if err != nil {
		return nil, err
	}
	series, err := indicator.Compute(bars, e.params.LookbackBars, e.params.RSILen)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	for i := range series {
		series[i].DrawdownPct = round2(series[i].DrawdownPct)
		series[i].RSI = round2(series[i].RSI)
	}
	return series, nil
}

func noDataRow(item models.WatchItem, reason string) models.StatusRow {
	return models.StatusRow{
		Ticker: item.Ticker,
		Name:   item.Name,
		Status: models.LabelNoData,
		Reason: reason,
	}
}

// StatusLabel joins fired labels with " | ", or returns "-" when none fired.
func StatusLabel(labels []string) string {
	if len(labels) == 0 {
		return models.LabelNone
	}
	return strings.Join(labels, " | ")
}

// FormatBand renders a take-profit band as "low ~ high" with two decimals.
func FormatBand(b trigger.Band) string {
	return fmt.Sprintf("%.2f ~ %.2f", b.Low, b.High)
}

func round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := decimal.NewFromFloat(*v).Round(2).InexactFloat64()
	return &r
}
