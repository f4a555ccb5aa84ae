package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/mycoshop-backend/pkg/config"
	"github.com/angelmondragon/mycoshop-backend/pkg/logger"
)

var errNotConnected = errors.New("redis client not initialized")

// deleteIfValue removes KEYS[1] only while it still holds ARGV[1].
var deleteIfValue = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IsNil reports whether err is a missing-key reply.
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// IdempotencyStore is what replay guards need from Redis.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// Client backs idempotency replays, API rate limits and cron locks. The
// zero value answers every call with errNotConnected.
type Client struct {
	rdb *redis.Client
}

// New dials Redis and fails fast when the server does not answer PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"redis_addr": opts.Addr, "redis_db": opts.DB}), "redis connected")
	}
	return &Client{rdb: rdb}, nil
}

// optionsFromConfig prefers SHOP_REDIS_URL. Pool and timeout settings from
// the environment fill whatever the URL leaves unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse SHOP_REDIS_URL: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("SHOP_REDIS_URL or SHOP_REDIS_ADDR must be set")
	}

	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	for _, d := range []struct {
		dst *time.Duration
		src time.Duration
	}{
		{&opts.DialTimeout, cfg.DialTimeout},
		{&opts.ReadTimeout, cfg.ReadTimeout},
		{&opts.WriteTimeout, cfg.WriteTimeout},
	} {
		if *d.dst == 0 {
			*d.dst = d.src
		}
	}
	return opts, nil
}

func (c *Client) handle() (*redis.Client, error) {
	if c == nil || c.rdb == nil {
		return nil, errNotConnected
	}
	return c.rdb, nil
}

func (c *Client) Ping(ctx context.Context) error {
	rdb, err := c.handle()
	if err != nil {
		return err
	}
	return rdb.Ping(ctx).Err()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	rdb, err := c.handle()
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, value, ttl).Err()
}

// Get returns redis.Nil (see IsNil) for missing keys.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	rdb, err := c.handle()
	if err != nil {
		return "", err
	}
	return rdb.Get(ctx, key).Result()
}

// SetNX reports whether this call created key.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	rdb, err := c.handle()
	if err != nil {
		return false, err
	}
	return rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	rdb, err := c.handle()
	if err != nil {
		return err
	}
	return rdb.Del(ctx, keys...).Err()
}

// DelIfValue deletes key atomically when its current value equals value and
// reports whether anything was removed.
func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	rdb, err := c.handle()
	if err != nil {
		return false, err
	}
	n, err := deleteIfValue.Run(ctx, rdb, []string{key}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("compare and delete %s: %w", key, err)
	}
	return n > 0, nil
}

// FixedWindowAllow counts one hit against scope and reports whether the
// count is still within limit. The window starts with the first hit; a
// counter that lost its expiry is re-armed so it cannot block forever.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	rdb, err := c.handle()
	if err != nil {
		return false, 0, err
	}
	key := c.RateLimitKey(scope)
	count, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr %s: %w", key, err)
	}
	allowed := count <= limit

	rearm := count == 1
	if !rearm && !allowed {
		ttl, ttlErr := rdb.TTL(ctx, key).Result()
		rearm = ttlErr == nil && ttl == -1
	}
	if rearm && window > 0 {
		if err := rdb.Expire(ctx, key, window).Err(); err != nil {
			return allowed, count, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return allowed, count, nil
}

func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
