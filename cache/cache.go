// Package cache memoizes expensive derived values in an external key/value
// store.
//
// The store is shared by all callers and flushed as a whole whenever the
// upstream data changes; this package never evicts individual keys.
// Concurrent misses on the same key may compute and write the value more than
// once, the last write wins.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spritecollab_cache_lookups_total",
		Help: "Cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	writeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spritecollab_cache_write_failures_total",
		Help: "Computed values that could not be written to the cache store.",
	})
)

// Store is an external key/value store holding serialized values.
type Store interface {
	// Get returns the value stored under key. found is false on a miss.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	// FlushAll removes every key from the store.
	FlushAll(ctx context.Context) error
}

// StoreError reports that the cache store itself failed.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("cache: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cache: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Behaviour wraps a computed value together with the decision whether it
// may be stored.
type Behaviour[T any] struct {
	Value T
	Cache bool
}

// Cacheable marks v to be written to the store.
func Cacheable[T any](v T) Behaviour[T] {
	return Behaviour[T]{Value: v, Cache: true}
}

// Uncacheable returns v to the caller without storing it.
func Uncacheable[T any](v T) Behaviour[T] {
	return Behaviour[T]{Value: v}
}

// Result is the outcome of the computation: either a value or the error the
// computation itself returned.
type Result[T any] struct {
	Value T
	Err   error
}

// CachedMayFail returns the value stored under key, or computes it with
// compute on a miss. The returned error is non-nil only if the store could
// not be read; errors of compute are returned inside the Result. A value
// marked Cacheable is written to the store, a failed write is logged and
// otherwise ignored.
func CachedMayFail[T any](ctx context.Context, store Store, key string, compute func(ctx context.Context) (Behaviour[T], error)) (Result[T], error) {
	log := logrus.WithField("key", key)

	raw, found, err := store.Get(ctx, key)
	if err != nil {
		lookups.WithLabelValues("error").Inc()
		return Result[T]{}, &StoreError{Op: "get", Key: key, Err: err}
	}
	if found {
		var v T
		err := json.Unmarshal([]byte(raw), &v)
		if err == nil {
			lookups.WithLabelValues("hit").Inc()
			return Result[T]{Value: v}, nil
		}
		log.WithError(err).Warn("discarding undecodable cache entry")
	}
	lookups.WithLabelValues("miss").Inc()

	behaviour, err := compute(ctx)
	if err != nil {
		return Result[T]{Err: err}, nil
	}
	if behaviour.Cache {
		write(ctx, store, key, behaviour.Value, log)
	}
	return Result[T]{Value: behaviour.Value}, nil
}

func write(ctx context.Context, store Store, key string, v interface{}, log *logrus.Entry) {
	data, err := json.Marshal(v)
	if err != nil {
		writeFailures.Inc()
		log.WithError(err).Warn("failed encoding cache entry")
		return
	}
	if err := store.Set(ctx, key, string(data)); err != nil {
		writeFailures.Inc()
		log.WithError(err).Warn("failed writing cache entry")
	}
}
