package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

type RedisBroadcaster struct {
	r       *redis.Client
	channel string
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel}
}

// Publish serializa o update e devolve quantos assinantes (instâncias do market-service) receberam
func (b *RedisBroadcaster) Publish(ctx context.Context, update events.MarketUpdate) (int64, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return 0, fmt.Errorf("marshal update: %w", err)
	}
	n, err := b.r.Publish(ctx, b.channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("redis publish %s: %w", b.channel, err)
	}
	return n, nil
}
