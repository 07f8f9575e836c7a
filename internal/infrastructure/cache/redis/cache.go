package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "access-url:"

type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Cache keeps issued access URLs keyed by locator.
type Cache struct {
	inner  *redis.Client
	prefix string
}

// New connects and pings the server.
func New(ctx context.Context, opts Options) (*Cache, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(client, opts.KeyPrefix), nil
}

func NewWithClient(client *redis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Cache{inner: client, prefix: prefix}
}

func (c *Cache) Get(ctx context.Context, locator string) (string, bool, error) {
	url, err := c.inner.Get(ctx, c.prefix+locator).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return url, true, nil
}

func (c *Cache) Put(ctx context.Context, locator, url string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.inner.Set(ctx, c.prefix+locator, url, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
