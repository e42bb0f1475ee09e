package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Publisher is the subset of *redis.Client used here.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisEmitter publishes events as JSON on a pub/sub channel.
type RedisEmitter struct {
	client  Publisher
	channel string
}

func NewRedisEmitter(client Publisher, channel string) *RedisEmitter {
	return &RedisEmitter{client: client, channel: channel}
}

func (r *RedisEmitter) Emit(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	err = r.client.Publish(ctx, r.channel, payload).Err()
	if err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}

	return nil
}
