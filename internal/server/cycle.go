package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"watchdash/internal/models"
	"watchdash/internal/notify"

	"go.uber.org/zap"
)

// Runner evaluates one cycle over the given items.
type Runner interface {
	RunCycle(ctx context.Context, items []models.WatchItem) ([]models.StatusRow, error)
}

// Watchlist supplies the items to evaluate.
type Watchlist interface {
	Items() ([]models.WatchItem, error)
}

// Cycler runs cycles one at a time, whether triggered by HTTP or the scheduler,
// and hands each result to the hub, the metrics and the optional alerter.
type Cycler struct {
	mu      sync.Mutex
	runner  Runner
	catalog Watchlist
	hub     *Hub
	metrics *Metrics
	alerter *notify.SignalAlerter
	logger  *zap.Logger

	lastMu   sync.RWMutex
	lastRows []models.StatusRow
	lastAt   time.Time
}

func NewCycler(runner Runner, catalog Watchlist, hub *Hub, metrics *Metrics, alerter *notify.SignalAlerter, logger *zap.Logger) *Cycler {
	return &Cycler{
		runner:  runner,
		catalog: catalog,
		hub:     hub,
		metrics: metrics,
		alerter: alerter,
		logger:  logger,
	}
}

// Run waits for any cycle in progress, then runs a new one.
func (c *Cycler) Run(ctx context.Context) ([]models.StatusRow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run(ctx)
}

// TryRun runs a cycle unless one is already in progress. It reports whether it ran.
func (c *Cycler) TryRun(ctx context.Context) bool {
	if !c.mu.TryLock() {
		c.logger.Info("cycle already running, skipped")
		return false
	}
	defer c.mu.Unlock()
	if _, err := c.run(ctx); err != nil {
		c.logger.Error("scheduled cycle failed", zap.Error(err))
	}
	return true
}

// Last returns the most recent cycle result and when it finished.
func (c *Cycler) Last() ([]models.StatusRow, time.Time) {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()
	return append([]models.StatusRow(nil), c.lastRows...), c.lastAt
}

func (c *Cycler) run(ctx context.Context) ([]models.StatusRow, error) {
	start := time.Now()
	items, err := c.catalog.Items()
	if err != nil {
		c.metrics.ObserveCycle(nil, time.Since(start), err)
		return nil, fmt.Errorf("load watchlist: %w", err)
	}

	rows, err := c.runner.RunCycle(ctx, items)
	finished := time.Now()
	c.metrics.ObserveCycle(rows, finished.Sub(start), err)
	if rows == nil {
		return nil, err
	}

	c.lastMu.Lock()
	c.lastRows = rows
	c.lastAt = finished
	c.lastMu.Unlock()

	c.hub.Broadcast(finished, rows)
	if c.alerter != nil {
		c.alerter.Observe(ctx, rows)
	}
	return rows, err
}
