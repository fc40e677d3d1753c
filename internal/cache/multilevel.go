package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// l1TTL caps how long a value promoted from Redis stays in process memory,
// bounding staleness across replicas.
const l1TTL = 30 * time.Second

// MultiLevelCache reads L1 then L2. L2 failures are logged and degrade to
// L1-only behaviour; they never fail the caller.
type MultiLevelCache struct {
	l1      *MemoryCache
	l2      Cache
	breaker *CircuitBreaker
	metrics *CacheMetrics
	log     logrus.FieldLogger
}

// NewMultiLevelCache accepts a nil l2 for memory-only deployments.
func NewMultiLevelCache(l2 Cache, log logrus.FieldLogger) *MultiLevelCache {
	cfg := DefaultCircuitBreakerConfig()
	cfg.OnStateChange = func(s CircuitBreakerState) {
		breakerState.Set(float64(s))
		log.WithField("state", s.String()).Warn("redis circuit breaker changed state")
	}
	return &MultiLevelCache{
		l1:      NewMemoryCache(0),
		l2:      l2,
		breaker: NewCircuitBreaker(cfg),
		metrics: NewCacheMetrics(),
		log:     log,
	}
}

func (c *MultiLevelCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.metrics.RecordSet()
	l1 := ttl
	if l1 > l1TTL {
		l1 = l1TTL
	}
	if err := c.l1.Set(ctx, key, value, l1); err != nil {
		return err
	}

	if c.l2 != nil {
		c.l2Call("set", func() error { return c.l2.Set(ctx, key, value, ttl) })
	}
	return nil
}

func (c *MultiLevelCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := c.l1.Get(ctx, key, dest); err == nil {
		c.metrics.RecordHit("l1")
		return nil
	}

	if c.l2 != nil {
		var err error
		c.l2Call("get", func() error {
			err = c.l2.Get(ctx, key, dest)
			return err
		})
		if err == nil {
			c.metrics.RecordHit("l2")
			c.l1.Set(ctx, key, dest, l1TTL)
			return nil
		}
	}

	c.metrics.RecordMiss()
	return ErrCacheMiss
}

func (c *MultiLevelCache) Delete(ctx context.Context, keys ...string) error {
	c.metrics.RecordDelete()
	c.l1.Delete(ctx, keys...)
	if c.l2 != nil {
		c.l2Call("delete", func() error { return c.l2.Delete(ctx, keys...) })
	}
	return nil
}

func (c *MultiLevelCache) DeletePrefix(ctx context.Context, prefix string) error {
	c.metrics.RecordDelete()
	c.l1.DeletePrefix(ctx, prefix)
	if c.l2 != nil {
		c.l2Call("delete_prefix", func() error { return c.l2.DeletePrefix(ctx, prefix) })
	}
	return nil
}

func (c *MultiLevelCache) l2Call(op string, fn func() error) {
	err := c.breaker.Execute(fn)
	if err == nil || errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrCircuitBreakerOpen) {
		return
	}
	c.metrics.RecordError()
	c.log.WithError(err).WithField("op", op).Warn("redis cache call failed")
}

func (c *MultiLevelCache) Health(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	if c.breaker.GetState() == CircuitBreakerOpen {
		return ErrCacheDown
	}
	return c.l2.Health(ctx)
}

func (c *MultiLevelCache) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"l1":       c.l1.Stats(),
		"metrics":  c.metrics.GetStats(),
		"hit_rate": c.metrics.HitRate(),
		"breaker":  c.breaker.GetStats(),
	}
	if c.l2 != nil {
		stats["l2"] = c.l2.Stats()
	}
	return stats
}

func (c *MultiLevelCache) Close() error {
	c.l1.Close()
	if c.l2 != nil {
		return c.l2.Close()
	}
	return nil
}
