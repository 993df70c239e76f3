package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imagetolink/internal/config"

	redis "github.com/redis/go-redis/v9"
)

// Client wraps go-redis client to centralize configuration.
type Client struct {
	inner *redis.Client
}

// ErrCacheMiss mirrors redis.Nil for callers.
var ErrCacheMiss = redis.Nil

var errNotInitialized = errors.New("redis client not initialized")

// NewRedisClient creates the redis client from app config and checks it is
// reachable.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	host := cfg.Redis.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Redis.Port
	if port == 0 {
		port = 6379
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{inner: client}, nil
}

// Set stores a key with TTL.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	return c.inner.Set(ctx, key, value, ttl).Err()
}

// Get fetches the key as string.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.inner == nil {
		return "", errNotInitialized
	}
	return c.inner.Get(ctx, key).Result()
}

// Del removes provided keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	if len(keys) == 0 {
		return nil
	}
	return c.inner.Del(ctx, keys...).Err()
}

// Publish sends payload on channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	return c.inner.Publish(ctx, channel, payload).Err()
}

// Subscribe calls handler with every payload published on channel until ctx
// ends. It returns once the subscription is active.
func (c *Client) Subscribe(ctx context.Context, channel string, handler func([]byte)) error {
	if c == nil || c.inner == nil {
		return errNotInitialized
	}
	pubsub := c.inner.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	return nil
}

// Close closes client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// Raw exposes underlying go-redis client.
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.inner
}
