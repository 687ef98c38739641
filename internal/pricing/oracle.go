package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/finbook/internal/domain"
)

var (
	ErrPriceNotFound    = errors.New("price not found")
	ErrAPIRateLimited   = errors.New("provider rate limit reached")
	ErrUnknownAssetType = errors.New("unknown asset class")
)

// Quoter returns the current unit price for one identifier.
type Quoter interface {
	Quote(ctx context.Context, identifier string) (float64, error)
}

// QuoteCache is an optional short-TTL cache consulted before hitting a
// provider. Cache failures are never surfaced to callers.
type QuoteCache interface {
	Cached(ctx context.Context, class domain.AssetClass, identifier string) (*domain.QuoteTick, error)
	Cache(ctx context.Context, tick domain.QuoteTick) error
}

// Oracle maps (asset class, identifier) to a current unit price by
// dispatching to the provider registered for the class. Provider calls get a
// bounded number of attempts, each under its own deadline, so a slow upstream
// cannot hold a settlement open indefinitely.
type Oracle struct {
	quoters map[domain.AssetClass]Quoter
	cache   QuoteCache
	logger  *slog.Logger

	attempts       int
	backoff        time.Duration
	attemptTimeout time.Duration
}

// NewOracle wires stocks and bonds to the quote provider and crypto to the
// spot provider. cache may be nil.
func NewOracle(quotes Quoter, spot Quoter, cache QuoteCache, logger *slog.Logger) *Oracle {
	return &Oracle{
		quoters: map[domain.AssetClass]Quoter{
			domain.AssetStock:  quotes,
			domain.AssetBond:   quotes,
			domain.AssetCrypto: spot,
		},
		cache:          cache,
		logger:         logger,
		attempts:       3,
		backoff:        500 * time.Millisecond,
		attemptTimeout: 10 * time.Second,
	}
}

// CurrentPrice resolves the current unit price for an asset. Every failure
// mode comes back as a *domain.PriceLookupError.
func (o *Oracle) CurrentPrice(ctx context.Context, class domain.AssetClass, identifier string) (float64, error) {
	quoter, ok := o.quoters[class]
	if !ok {
		return 0, &domain.PriceLookupError{Class: class, Identifier: identifier, Err: ErrUnknownAssetType}
	}

	if o.cache != nil {
		tick, err := o.cache.Cached(ctx, class, identifier)
		if err != nil {
			o.logger.Warn("quote cache read failed", "asset", identifier, "err", err)
		} else if tick != nil {
			return tick.Price, nil
		}
	}

	price, err := o.quoteWithRetry(ctx, quoter, identifier)
	if err != nil {
		return 0, &domain.PriceLookupError{Class: class, Identifier: identifier, Err: err}
	}

	if o.cache != nil {
		tick := domain.QuoteTick{Class: class, Identifier: identifier, Price: price, Timestamp: time.Now()}
		if err := o.cache.Cache(ctx, tick); err != nil {
			o.logger.Warn("quote cache write failed", "asset", identifier, "err", err)
		}
	}
	return price, nil
}

func (o *Oracle) quoteWithRetry(ctx context.Context, quoter Quoter, identifier string) (float64, error) {
	var lastErr error
	for attempt := 0; attempt < o.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(o.backoff):
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
		price, err := quoter.Quote(attemptCtx, identifier)
		cancel()
		if err == nil {
			return price, nil
		}
		lastErr = err
		// An identifier the provider does not know will not appear on the
		// next attempt either.
		if errors.Is(err, ErrPriceNotFound) {
			return 0, err
		}
	}
	return 0, fmt.Errorf("after %d attempts: %w", o.attempts, lastErr)
}
