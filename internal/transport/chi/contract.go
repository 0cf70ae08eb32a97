package chi

import (
	"context"

	"github.com/kailas-cloud/millarag/internal/domain"
	"github.com/kailas-cloud/millarag/internal/repository/respcache"
	"github.com/kailas-cloud/millarag/internal/transport/ws"
	"github.com/kailas-cloud/millarag/internal/usecase/chat"
	"github.com/kailas-cloud/millarag/internal/usecase/health"
)

// RAGService ingests, queries and deletes documents.
type RAGService interface {
	IngestDocuments(ctx context.Context, docs []domain.Document) error
	Query(ctx context.Context, req domain.QueryRequest) (domain.Answer, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// ChatService answers chat requests through the response cache.
type ChatService interface {
	Cached(ctx context.Context, messages []domain.Message) (string, bool)
	Generate(ctx context.Context, req domain.GenerateRequest) (chat.Reply, error)
	Stream(ctx context.Context, req domain.GenerateRequest, onChunk func(string) error) (string, error)
}

// CacheStatter reports response cache statistics.
type CacheStatter interface {
	Stats(ctx context.Context) respcache.Stats
}

// VectorStatter reports vector store statistics.
type VectorStatter interface {
	Stats(ctx context.Context) (domain.VectorStats, error)
}

// RelayStatter reports relay connection statistics.
type RelayStatter interface {
	Stats() ws.Stats
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}
