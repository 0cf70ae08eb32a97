package rag

import (
	"context"

	"github.com/kailas-cloud/millarag/internal/domain"
)

// Embedder vectorizes chunks and queries.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Generator produces the final answer from the assembled prompt.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (string, error)
}
