package policy

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// updateChannel is the pub/sub channel instances use to announce policy
// changes to each other.
const updateChannel = "policy:updated"

// Notifier fans policy change announcements out to every engine instance
// over Redis pub/sub. Delivery is at-most-once; the engine's periodic
// reload covers missed messages.
type Notifier struct {
	redis redis.UniversalClient
}

// NewNotifier creates a notifier backed by the given Redis client.
func NewNotifier(redisClient redis.UniversalClient) *Notifier {
	return &Notifier{redis: redisClient}
}

// Publish announces that the durable rule set changed.
func (n *Notifier) Publish(ctx context.Context) error {
	if err := n.redis.Publish(ctx, updateChannel, "reload").Err(); err != nil {
		return fmt.Errorf("policy notify: %w", err)
	}
	return nil
}

// Subscribe opens a subscription to change announcements. The caller owns
// the returned PubSub and must Close it.
func (n *Notifier) Subscribe(ctx context.Context) *redis.PubSub {
	return n.redis.Subscribe(ctx, updateChannel)
}
