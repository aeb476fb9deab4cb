package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyList = "market:events"

func keyEvent(eventID string) string { return "market:event:" + eventID }

// EventCache guarda em JSON a lista e o detalhe dos eventos, com TTL
type EventCache struct {
	R   *redis.Client
	TTL time.Duration
	Log *zap.Logger
}

func New(r *redis.Client, ttl time.Duration, log *zap.Logger) *EventCache {
	return &EventCache{R: r, TTL: ttl, Log: log}
}

func (c *EventCache) get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.R.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(b, dst)
}

func (c *EventCache) set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, key, b, c.TTL).Err()
}

func (c *EventCache) GetList(ctx context.Context, dst any) (bool, error) {
	return c.get(ctx, keyList, dst)
}

func (c *EventCache) SetList(ctx context.Context, v any) error { return c.set(ctx, keyList, v) }

func (c *EventCache) GetEvent(ctx context.Context, eventID string, dst any) (bool, error) {
	return c.get(ctx, keyEvent(eventID), dst)
}

func (c *EventCache) SetEvent(ctx context.Context, eventID string, v any) error {
	return c.set(ctx, keyEvent(eventID), v)
}

// Invalidate apaga a lista e, se informado, o detalhe do evento.
// Falha de cache só gera log: a leitura volta ao banco quando o TTL expira.
func (c *EventCache) Invalidate(ctx context.Context, eventID string) {
	keys := []string{keyList}
	if eventID != "" {
		keys = append(keys, keyEvent(eventID))
	}
	if err := c.R.Del(ctx, keys...).Err(); err != nil && c.Log != nil {
		c.Log.Warn("cache invalidate failed", zap.String("event_id", eventID), zap.Error(err))
	}
}
