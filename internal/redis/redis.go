package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"quickcomm/internal/config"

	redis "github.com/redis/go-redis/v9"
)

const pingTimeout = 3 * time.Second

// ErrNotInitialized is returned by a nil or closed client.
var ErrNotInitialized = errors.New("redis client not initialized")

// Client wraps go-redis client to centralize configuration. The connection
// is verified lazily on first use and shared by every caller afterwards.
type Client struct {
	inner *redis.Client

	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// NewRedisClient creates the redis client from app config without dialing.
func NewRedisClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	opts, err := options(cfg.Redis)
	if err != nil {
		return nil, err
	}
	return &Client{inner: redis.NewClient(opts)}, nil
}

// NewFromRaw adopts an existing go-redis client (tests use it with miniredis).
func NewFromRaw(raw *redis.Client) *Client {
	return &Client{inner: raw}
}

func options(rc config.RedisConfig) (*redis.Options, error) {
	if rc.URL != "" {
		opts, err := redis.ParseURL(rc.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	host := rc.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := rc.Port
	if port == 0 {
		port = 6379
	}
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: rc.Username,
		Password: rc.Password,
		DB:       rc.DB,
	}, nil
}

// Conn returns the shared connection, pinging the server the first time.
// A failed ping is not remembered, so the next call tries again.
func (c *Client) Conn(ctx context.Context) (redis.Cmdable, error) {
	if c == nil || c.inner == nil || c.closed.Load() {
		return nil, ErrNotInitialized
	}
	if c.ready.Load() {
		return c.inner, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready.Load() {
		return c.inner, nil
	}
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.inner.Ping(pctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	c.ready.Store(true)
	return c.inner, nil
}

// Ping checks the server regardless of the lazy-init state.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.inner == nil || c.closed.Load() {
		return ErrNotInitialized
	}
	return c.inner.Ping(ctx).Err()
}

// Close closes client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil || c.closed.Swap(true) {
		return nil
	}
	return c.inner.Close()
}
