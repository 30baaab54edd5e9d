package redis

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mnemo-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/model"
	"github.com/mnemo-lab/mnemosyne/pkg/domain/types"
	"github.com/mnemo-lab/mnemosyne/pkg/utils/logging"
)

const (
	// connectAttempts is the number of Ping attempts before New gives up
	connectAttempts = 3
	// connectBaseDelay is the delay before the first retry; it doubles on
	// each subsequent attempt.
	connectBaseDelay = time.Second

	defaultDialTimeout = 5 * time.Second
	defaultOpTimeout   = 3 * time.Second
)

// Config holds connection settings for the Redis-protocol backing store
type Config struct {
	URL       string `masq:"secret"` // may embed credentials
	Password  string `masq:"secret"`
	PoolSize  int
	OpTimeout time.Duration
}

// Client implements interfaces.KVStore over a Redis-protocol store
type Client struct {
	rdb    *goredis.Client
	closed atomic.Bool
}

var _ interfaces.KVStore = &Client{}

// New connects to the backing store. Connection is verified with a
// bounded exponential backoff (3 attempts, 1s base, doubling); transient
// network errors after that are NOT retried per-operation.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid store URL")
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.DialTimeout = defaultDialTimeout
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}
	opts.ReadTimeout = opTimeout
	opts.WriteTimeout = opTimeout

	rdb := goredis.NewClient(opts)

	delay := connectBaseDelay
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if lastErr = rdb.Ping(ctx).Err(); lastErr == nil {
			return &Client{rdb: rdb}, nil
		}

		logging.From(ctx).Warn("store connection failed, retrying",
			"attempt", attempt,
			"delay", delay.String(),
			"error", lastErr.Error())

		if attempt == connectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, goerr.Wrap(ctx.Err(), "connect cancelled")
		case <-time.After(delay):
		}
		delay *= 2
	}

	_ = rdb.Close()
	return nil, goerr.Wrap(types.ErrConnectionFailed, "giving up after retries",
		goerr.V("attempts", connectAttempts), goerr.V("cause", lastErr.Error()))
}

// NewFromClient wraps an existing go-redis client. Used by tests running
// against an embedded server.
func NewFromClient(rdb *goredis.Client) *Client {
	return &Client{rdb: rdb}
}

// Raw exposes the underlying go-redis client for backends that need
// store-native commands (RediSearch vector search).
func (c *Client) Raw() *goredis.Client {
	return c.rdb
}

func (c *Client) guard() error {
	if c.closed.Load() {
		return goerr.Wrap(types.ErrNotConnected, "redis store is closed")
	}
	return nil
}

func (c *Client) Set(ctx context.Context, key string, value model.Value, ttl time.Duration) error {
	if err := c.guard(); err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := c.rdb.Set(ctx, key, value.Encode(), ttl).Err(); err != nil {
		return goerr.Wrap(err, "failed to set key", goerr.V("key", key))
	}
	return nil
}

func (c *Client) Get(ctx context.Context, key string) (model.Value, bool, error) {
	if err := c.guard(); err != nil {
		return model.Value{}, false, err
	}
	raw, err := c.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return model.Value{}, false, nil
	}
	if err != nil {
		return model.Value{}, false, goerr.Wrap(err, "failed to get key", goerr.V("key", key))
	}
	return model.DecodeWire(raw), true, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.guard(); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return goerr.Wrap(err, "failed to delete key", goerr.V("key", key))
	}
	return nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	if err := c.guard(); err != nil {
		return false, err
	}
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, goerr.Wrap(err, "failed to check key existence", goerr.V("key", key))
	}
	return n > 0, nil
}

func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	keys, err := c.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list keys", goerr.V("pattern", pattern))
	}
	return keys, nil
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := c.guard(); err != nil {
		return false, err
	}
	if ttl <= 0 {
		ok, err := c.rdb.Persist(ctx, key).Result()
		if err != nil {
			return false, goerr.Wrap(err, "failed to persist key", goerr.V("key", key))
		}
		return ok, nil
	}
	ok, err := c.rdb.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, goerr.Wrap(err, "failed to expire key", goerr.V("key", key))
	}
	return ok, nil
}

func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := c.guard(); err != nil {
		return 0, err
	}
	d, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to get TTL", goerr.V("key", key))
	}
	return d, nil
}

func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.rdb.Close()
}
