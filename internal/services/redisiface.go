package services

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub is one live Redis subscription.
type RedisPubSub interface {
	Messages() <-chan *redis.Message
	Close() error
}

// RedisClient narrows the redis operations used by the change feed.
type RedisClient interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (RedisPubSub, error)
}

// RedisAdapter wraps *redis.Client to satisfy RedisClient.
type RedisAdapter struct {
	client *redis.Client
}

// NewRedisAdapter builds a RedisClient adapter around a redis client.
func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so no event
// published after it returns can be missed.
func (r *RedisAdapter) Subscribe(ctx context.Context, channels ...string) (RedisPubSub, error) {
	ps := r.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return &pubSubAdapter{ps: ps}, nil
}

type pubSubAdapter struct {
	ps *redis.PubSub
}

func (p *pubSubAdapter) Messages() <-chan *redis.Message {
	return p.ps.Channel()
}

func (p *pubSubAdapter) Close() error {
	return p.ps.Close()
}
