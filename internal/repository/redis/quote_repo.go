package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yourorg/finbook/internal/domain"
)

const quoteTTL = 60 * time.Second

// QuoteRepo keeps a short-lived cache of the latest quote per asset and
// fans refreshed marks out over pub/sub. Stale keys simply expire; the
// oracle falls through to the provider.
type QuoteRepo struct {
	client *redis.Client
}

func NewQuoteRepo(client *redis.Client) *QuoteRepo {
	return &QuoteRepo{client: client}
}

func quoteKey(class domain.AssetClass, identifier string) string {
	return fmt.Sprintf("quote:%s:%s", class, identifier)
}

func (r *QuoteRepo) Cache(ctx context.Context, tick domain.QuoteTick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, quoteKey(tick.Class, tick.Identifier), data, quoteTTL).Err()
}

func (r *QuoteRepo) Cached(ctx context.Context, class domain.AssetClass, identifier string) (*domain.QuoteTick, error) {
	val, err := r.client.Get(ctx, quoteKey(class, identifier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get quote: %w", err)
	}
	var tick domain.QuoteTick
	if err := json.Unmarshal([]byte(val), &tick); err != nil {
		return nil, err
	}
	return &tick, nil
}

// Publish stores the tick and announces it on the asset's channel in one
// round trip.
func (r *QuoteRepo) Publish(ctx context.Context, tick domain.QuoteTick) error {
	data, err := json.Marshal(tick)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Publish(ctx, "quotes."+tick.Identifier, data)
	pipe.Set(ctx, quoteKey(tick.Class, tick.Identifier), data, quoteTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *QuoteRepo) Subscribe(ctx context.Context, identifier string) *redis.PubSub {
	return r.client.Subscribe(ctx, "quotes."+identifier)
}
