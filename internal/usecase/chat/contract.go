package chat

import (
	"context"

	"github.com/kailas-cloud/millarag/internal/domain"
)

// ResponseCache stores completed replies keyed by the conversation.
type ResponseCache interface {
	Get(ctx context.Context, messages []domain.Message) (string, bool)
	Set(ctx context.Context, messages []domain.Message, response string)
}

// Generator produces chat completions.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (string, error)
	Stream(ctx context.Context, req domain.GenerateRequest, onChunk func(string) error) (string, error)
}
