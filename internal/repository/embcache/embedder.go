// Package embcache keeps provider embeddings in Redis so repeated texts (re-ingested
// documents, popular queries) skip the remote call.
//
// Only remote embedders are wrapped. The local hash embedder costs less to
// recompute than a Redis round trip, so main never puts it behind the cache.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/millarag/internal/db"
	"github.com/kailas-cloud/millarag/internal/domain"
)

const keyPrefix = "millarag:emb:"

type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options configures an Embedder.
type Options struct {
	// Model is part of the key, vectors of different models never mix.
	Model string
	// Dimensions is part of the key too. Entries of another length are treated as misses.
	Dimensions int
	// TTL of an entry; 0 keeps it until evicted.
	TTL time.Duration
}

// Embedder is a read-through cache in front of a remote embedder.
// Redis failures only cost a provider call, they never fail Embed.
type Embedder struct {
	next    domain.Embedder
	kv      kv
	opts    Options
	lookups *prometheus.CounterVec // label "result": hit | miss
	logger  *zap.Logger
}

// New wraps next. lookups may be nil.
func New(next domain.Embedder, store kv, opts Options, lookups *prometheus.CounterVec, logger *zap.Logger) *Embedder {
	return &Embedder{next: next, kv: store, opts: opts, lookups: lookups, logger: logger}
}

// Embed serves text from the cache or asks the provider and stores the answer.
// A cached result reports zero tokens: nothing was billed for it.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := e.key(text)

	if vec, ok := e.lookup(ctx, key); ok {
		e.observe("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	e.observe("miss")

	res, err := e.next.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	if len(res.Embedding) > 0 {
		e.save(ctx, key, res.Embedding)
	}
	return res, nil
}

// key is millarag:emb:<model>:<dims>:<sha256(text)>.
func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return keyPrefix + e.opts.Model + ":" + strconv.Itoa(e.opts.Dimensions) + ":" + hex.EncodeToString(sum[:])
}

func (e *Embedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	raw, err := e.kv.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return nil, false
	case err != nil:
		e.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	vec, err := decode(raw, e.opts.Dimensions)
	if err != nil {
		e.logger.Warn("Ignoring bad cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (e *Embedder) save(ctx context.Context, key string, vec []float32) {
	if err := e.kv.SetWithTTL(ctx, key, encode(vec), e.opts.TTL); err != nil {
		e.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (e *Embedder) observe(result string) {
	if e.lookups != nil {
		e.lookups.WithLabelValues(result).Inc()
	}
}

// encode packs float32 little-endian, the same layout the redisvec backend stores.
func encode(vec []float32) []byte {
	buf := make([]byte, 0, 4*len(vec))
	for _, f := range vec {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

// decode checks the payload against dims when dims > 0.
func decode(raw []byte, dims int) ([]float32, error) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("payload of %d bytes is not a float32 vector", len(raw))
	}
	n := len(raw) / 4
	if dims > 0 && n != dims {
		return nil, fmt.Errorf("cached vector has %d dimensions, want %d", n, dims)
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec, nil
}
