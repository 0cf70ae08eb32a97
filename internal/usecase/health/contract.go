package health

import (
	"context"

	"github.com/kailas-cloud/millarag/internal/domain"
)

// CachePinger checks response cache backend availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// VectorChecker is the part of the vector store used for health.
type VectorChecker interface {
	Available() bool
	Stats(ctx context.Context) (domain.VectorStats, error)
}

// RelayChecker reports whether the WebSocket relay accepts connections.
type RelayChecker interface {
	Accepting() bool
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
