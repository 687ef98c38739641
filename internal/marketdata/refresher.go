// Package marketdata keeps marks warm in the background: it polls the price
// oracle for every asset currently held in an open position and publishes
// the resulting ticks for websocket subscribers.
package marketdata

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/finbook/internal/domain"
)

// AssetLister enumerates the distinct assets held across all open positions.
type AssetLister interface {
	ListOpenAssets(ctx context.Context) ([]domain.AssetRef, error)
}

// TickPublisher pushes a refreshed mark to subscribers (and the quote cache).
type TickPublisher interface {
	Publish(ctx context.Context, tick domain.QuoteTick) error
}

type PriceSource interface {
	CurrentPrice(ctx context.Context, class domain.AssetClass, identifier string) (float64, error)
}

type Refresher struct {
	assets    AssetLister
	oracle    PriceSource
	publisher TickPublisher
	logger    *slog.Logger
	interval  time.Duration
}

func NewRefresher(assets AssetLister, oracle PriceSource, publisher TickPublisher, interval time.Duration, logger *slog.Logger) *Refresher {
	return &Refresher{
		assets:    assets,
		oracle:    oracle,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
	}
}

// Run polls until the context is cancelled. A failing cycle is logged and
// retried on the next tick; individual quote failures never stop the sweep.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Refresher) sweep(ctx context.Context) {
	assets, err := r.assets.ListOpenAssets(ctx)
	if err != nil {
		r.logger.Error("listing open assets failed", "err", err)
		return
	}
	for _, asset := range assets {
		price, err := r.oracle.CurrentPrice(ctx, asset.Class, asset.Identifier)
		if err != nil {
			r.logger.Warn("background quote failed", "asset", asset.Identifier, "err", err)
			continue
		}
		tick := domain.QuoteTick{
			Class:      asset.Class,
			Identifier: asset.Identifier,
			Price:      price,
			Timestamp:  time.Now(),
		}
		if err := r.publisher.Publish(ctx, tick); err != nil {
			r.logger.Error("publishing quote tick failed", "asset", asset.Identifier, "err", err)
		}
	}
}
