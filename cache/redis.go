package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Connection defaults.
const (
	DefaultConnectAttempts = 10
	DefaultBackoffStep     = time.Second
	DefaultBackoffMax      = 10 * time.Second
	DefaultDialTimeout     = 5 * time.Second
)

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr     string // host:port of the Redis server
	Username string
	Password string
	DB       int

	// ConnectAttempts bounds the number of pings during startup.
	// default: 10
	ConnectAttempts int
	// BackoffStep is added to the wait after every failed attempt.
	// default: 1s
	BackoffStep time.Duration
	// BackoffMax caps the wait between two attempts.
	// default: 10s
	BackoffMax time.Duration
	// DialTimeout is the timeout for establishing new connections.
	// default: 5s
	DialTimeout time.Duration
}

// MergeDefaults returns a copy of c with zero values replaced by defaults.
func (c *RedisConfig) MergeDefaults() *RedisConfig {
	out := *c
	if out.ConnectAttempts == 0 {
		out.ConnectAttempts = DefaultConnectAttempts
	}
	if out.BackoffStep == 0 {
		out.BackoffStep = DefaultBackoffStep
	}
	if out.BackoffMax == 0 {
		out.BackoffMax = DefaultBackoffMax
	}
	if out.DialTimeout == 0 {
		out.DialTimeout = DefaultDialTimeout
	}
	return &out
}

// Validate checks that the configuration is usable.
func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("cache: redis addr is required")
	}
	if c.DB < 0 {
		return fmt.Errorf("cache: invalid redis db: %d", c.DB)
	}
	if c.ConnectAttempts < 1 {
		return fmt.Errorf("cache: invalid connect attempts: %d (must be >= 1)", c.ConnectAttempts)
	}
	if c.BackoffStep <= 0 || c.BackoffMax <= 0 {
		return fmt.Errorf("cache: invalid backoff: step %v, max %v (must be > 0)", c.BackoffStep, c.BackoffMax)
	}
	return nil
}

// Options converts the configuration into go-redis options.
func (c *RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:        c.Addr,
		Username:    c.Username,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: c.DialTimeout,
	}
}

// RedisStore is a Store backed by Redis. It is safe for concurrent use.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis. The server is pinged up to
// ConnectAttempts times, waiting linearly longer (capped at BackoffMax)
// between attempts.
func NewRedisStore(ctx context.Context, cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil {
		return nil, errors.New("cache: nil redis config")
	}
	cfg = cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(cfg.Options())
	log := logrus.WithField("addr", cfg.Addr)

	var err error
	for attempt := 1; attempt <= cfg.ConnectAttempts; attempt++ {
		if err = client.Ping(ctx).Err(); err == nil {
			log.Info("connected to redis")
			return &RedisStore{client: client}, nil
		}
		if attempt == cfg.ConnectAttempts {
			break
		}
		wait := time.Duration(attempt) * cfg.BackoffStep
		if wait > cfg.BackoffMax {
			wait = cfg.BackoffMax
		}
		log.WithError(err).WithField("attempt", attempt).Warnf("redis not reachable, retrying in %v", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		}
	}
	_ = client.Close()
	return nil, &StoreError{Op: "connect", Err: err}
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set implements Store. Entries do not expire; they live until the next
// FlushAll.
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, 0).Err()
}

// FlushAll implements Store.
func (r *RedisStore) FlushAll(ctx context.Context) error {
	return r.client.FlushAll(ctx).Err()
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
