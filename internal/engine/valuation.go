package engine

import (
	"context"
	"sync"
	"time"

	"trade-ledger-go/internal/market"

	"go.uber.org/zap"
)

// Refresher periodically re-queries the price oracle for every held symbol
// and keeps the latest snapshot for read-only callers. It never touches
// funds or the ledger.
type Refresher struct {
	logger   *zap.Logger
	engine   *Engine
	interval time.Duration

	mu       sync.RWMutex
	snapshot map[string]market.LiveQuote
}

// NewRefresher creates a new live-valuation refresher.
func NewRefresher(logger *zap.Logger, engine *Engine, interval time.Duration) *Refresher {
	return &Refresher{
		logger:   logger,
		engine:   engine,
		interval: interval,
		snapshot: make(map[string]market.LiveQuote),
	}
}

// Run refreshes once immediately, then on every tick until the context is
// cancelled.
func (r *Refresher) Run(ctx context.Context) {
	r.logger.Info("Starting valuation refresh loop", zap.Duration("interval", r.interval))

	if err := r.refresh(ctx); err != nil {
		r.logger.Error("Valuation refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping valuation refresh loop...")
			return
		case <-ticker.C:
			if err := r.refresh(ctx); err != nil {
				r.logger.Error("Valuation refresh failed", zap.Error(err))
			}
		}
	}
}

// Snapshot returns a copy of the most recent live quotes.
func (r *Refresher) Snapshot() map[string]market.LiveQuote {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]market.LiveQuote, len(r.snapshot))
	for symbol, quote := range r.snapshot {
		out[symbol] = quote
	}
	return out
}

func (r *Refresher) refresh(ctx context.Context) error {
	symbols, err := r.engine.HeldSymbols(ctx)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		r.mu.Lock()
		r.snapshot = make(map[string]market.LiveQuote)
		r.mu.Unlock()
		return nil
	}

	quotes, err := r.engine.RefreshLiveValuation(ctx, symbols)
	if err != nil {
		// Keep serving the previous snapshot; the feed being down must not
		// blank out the view.
		return err
	}

	r.mu.Lock()
	r.snapshot = quotes
	r.mu.Unlock()

	r.logger.Debug("Valuation snapshot refreshed", zap.Int("symbols", len(quotes)))
	return nil
}
