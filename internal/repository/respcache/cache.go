// Package respcache memoizes LLM completions in Redis keyed by the conversation.
package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/millarag/internal/db"
	"github.com/kailas-cloud/millarag/internal/domain"
)

const (
	keyPrefix = "llm:"
	// DefaultTTL is applied when no TTL is configured.
	DefaultTTL = time.Hour
)

// store is the consumer interface for the response cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DBSize(ctx context.Context) (int64, error)
	Info(ctx context.Context, section string) (map[string]string, error)
}

// Stats describes the cache backend.
type Stats struct {
	Connected bool   `json:"connected"`
	Keys      int64  `json:"keys"`
	Memory    string `json:"memory"`
}

// Cache stores completions by message history. A nil store makes every lookup a miss.
type Cache struct {
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a response cache. s may be nil when Redis is not configured.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"/"error").
func New(s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: s, ttl: ttl, cacheTotal: cacheTotal, logger: logger}
}

// Available reports whether a backend is configured.
func (c *Cache) Available() bool { return c.store != nil }

// Get returns the cached completion for messages. Any failure is reported as absent.
func (c *Cache) Get(ctx context.Context, messages []domain.Message) (string, bool) {
	if c.store == nil {
		return "", false
	}
	key, err := Key(messages)
	if err != nil {
		c.inc("error")
		return "", false
	}

	data, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		c.inc("miss")
		return "", false
	case err != nil:
		c.inc("error")
		c.logger.Warn("Failed to read cached response", zap.String("key", key), zap.Error(err))
		return "", false
	}
	c.inc("hit")
	return string(data), true
}

// Set stores a completion. Failures are logged and swallowed.
func (c *Cache) Set(ctx context.Context, messages []domain.Message, response string) {
	if c.store == nil {
		return
	}
	key, err := Key(messages)
	if err != nil {
		c.logger.Warn("Failed to build cache key", zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, []byte(response), c.ttl); err != nil {
		c.logger.Warn("Failed to cache response", zap.String("key", key), zap.Error(err))
	}
}

// Stats reports key count and memory usage; an unreachable backend yields {false, 0, "0B"}.
func (c *Cache) Stats(ctx context.Context) Stats {
	unavailable := Stats{Memory: "0B"}
	if c.store == nil {
		return unavailable
	}
	keys, err := c.store.DBSize(ctx)
	if err != nil {
		c.logger.Warn("Failed to read cache size", zap.Error(err))
		return unavailable
	}
	memory := "0B"
	if info, err := c.store.Info(ctx, "memory"); err != nil {
		c.logger.Warn("Failed to read cache memory", zap.Error(err))
	} else if v := info["used_memory_human"]; v != "" {
		memory = v
	}
	return Stats{Connected: true, Keys: keys, Memory: memory}
}

func (c *Cache) inc(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

// Key derives the cache key: "llm:" + hex(sha256(json(messages))).
// Only role and content participate, in order.
func Key(messages []domain.Message) (string, error) {
	data, err := json.Marshal(messages)
	if err != nil {
		return "", fmt.Errorf("marshal messages: %w", err)
	}
	h := sha256.Sum256(data)
	return keyPrefix + hex.EncodeToString(h[:]), nil
}
