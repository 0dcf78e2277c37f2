package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
)

const priceInvalidationChannel = "price:invalidate"

// Invalidator drops in-process price state.
type Invalidator interface {
	Invalidate()
}

// PriceInvalidationSubscriber clears the local price cache whenever any
// instance publishes an invalidation.
type PriceInvalidationSubscriber struct {
	rdb    *goredis.Client
	target Invalidator
}

func NewPriceInvalidationSubscriber(rdb *goredis.Client, target Invalidator) *PriceInvalidationSubscriber {
	return &PriceInvalidationSubscriber{rdb: rdb, target: target}
}

// Start blocks until ctx is cancelled.
func (s *PriceInvalidationSubscriber) Start(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, priceInvalidationChannel)
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				return
			}
			s.target.Invalidate()
			slog.Debug("Price cache invalidated via pub/sub", "origin", msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

// PublishPriceInvalidation clears the shared layer and tells every instance
// to drop its memory layer.
func PublishPriceInvalidation(ctx context.Context, rdb *goredis.Client, cache *PriceCache, origin string) error {
	if err := cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear shared price cache: %w", err)
	}
	if err := rdb.Publish(ctx, priceInvalidationChannel, origin).Err(); err != nil {
		return fmt.Errorf("failed to publish price invalidation: %w", err)
	}
	return nil
}
