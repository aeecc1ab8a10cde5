// Package watcher polls an account's fills and hands new batches to sinks.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cointrade/exchange"
	"cointrade/internal/metrics"
	"cointrade/logger"
	"cointrade/models"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultLimit    = 50
)

// Sink receives every non-empty batch of trades.
type Sink interface {
	PublishTrades(ctx context.Context, exchange string, trades []models.Trade) error
}

type Config struct {
	Proxy    string
	Keys     models.ApiKeys
	Symbol   string
	Interval time.Duration
	Limit    int
	// Since is the first lower bound in milliseconds; zero means the
	// moment the watcher is built.
	Since int64
	Extra models.Params
	Now   func() time.Time
}

// TradeWatcher polls FetchMyTrades. A successful poll advances the lower
// bound to the poll's start time; a failed one keeps it so the next poll
// covers the gap.
type TradeWatcher struct {
	driver exchange.Driver
	cfg    Config
	sinks  []Sink
	runID  string

	mu          sync.Mutex
	lastChecked int64
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	log         *logger.Log
}

func New(d exchange.Driver, cfg Config, sinks ...Sink) *TradeWatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	since := cfg.Since
	if since == 0 {
		since = cfg.Now().UnixMilli()
	}
	return &TradeWatcher{
		driver:      d,
		cfg:         cfg,
		sinks:       sinks,
		runID:       uuid.NewString(),
		lastChecked: since,
		log:         logger.GetLogger(),
	}
}

// LastChecked is the lower bound, in milliseconds, of the next poll.
func (w *TradeWatcher) LastChecked() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastChecked
}

// Poll runs one fetch cycle and returns the trades it found.
func (w *TradeWatcher) Poll(ctx context.Context) ([]models.Trade, error) {
	start := w.cfg.Now().UnixMilli()
	since := w.LastChecked()
	entry := w.log.WithComponent("trade_watcher").WithFields(logger.Fields{
		"exchange": w.driver.Name(),
		"symbol":   w.cfg.Symbol,
		"since":    since,
		"run_id":   w.runID,
	})

	trades, err := w.driver.FetchMyTrades(ctx, w.cfg.Proxy, w.cfg.Keys, models.OrderQuery{
		Symbol: w.cfg.Symbol,
		Since:  since,
		Limit:  w.cfg.Limit,
		Extra:  w.cfg.Extra,
	})
	if err != nil {
		entry.WithError(err).WithFields(logger.Fields{"kind": models.Kind(err)}).Warn("trade poll failed")
		metrics.EmitMetric(w.log, "trade_watcher", "poll_errors", 1, "counter", logger.Fields{"exchange": w.driver.Name()})
		return nil, err
	}

	w.mu.Lock()
	w.lastChecked = start
	w.mu.Unlock()

	if len(trades) == 0 {
		entry.Debug("no new trades")
		return nil, nil
	}
	metrics.EmitMetric(w.log, "trade_watcher", "trades_seen", len(trades), "counter", logger.Fields{"exchange": w.driver.Name(), "symbol": w.cfg.Symbol})
	for _, s := range w.sinks {
		if err := s.PublishTrades(ctx, w.driver.Name(), trades); err != nil {
			entry.WithError(err).Warn("trade sink failed")
			continue
		}
		logger.LogDataFlowEntry(entry, "trade_watcher", fmt.Sprintf("%T", s), len(trades), "trade")
	}
	entry.WithFields(logger.Fields{"trades": len(trades)}).Info("new trades")
	return trades, nil
}

// Start polls every interval until ctx is done or Stop is called.
func (w *TradeWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("trade watcher already running")
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.log.WithComponent("trade_watcher").WithFields(logger.Fields{
		"exchange": w.driver.Name(),
		"symbol":   w.cfg.Symbol,
		"interval": w.cfg.Interval.String(),
		"run_id":   w.runID,
	}).Info("trade watcher started")

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

func (w *TradeWatcher) run(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

func (w *TradeWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	w.log.WithComponent("trade_watcher").Info("trade watcher stopped")
}
