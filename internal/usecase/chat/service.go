// Package chat serves chat completions through the response cache.
package chat

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/millarag/internal/domain"
)

// Reply is a chat completion and whether it came from the cache.
type Reply struct {
	Content string `json:"content"`
	Cached  bool   `json:"cached"`
}

// Service answers chat requests, caching complete replies.
type Service struct {
	cache     ResponseCache
	generator Generator
}

// New creates a chat service.
func New(cache ResponseCache, generator Generator) *Service {
	return &Service{cache: cache, generator: generator}
}

// Cached looks the conversation up in the response cache.
func (s *Service) Cached(ctx context.Context, messages []domain.Message) (string, bool) {
	if len(messages) == 0 {
		return "", false
	}
	return s.cache.Get(ctx, messages)
}

// Generate returns the cached reply or generates and caches a new one.
func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (Reply, error) {
	if err := validate(req); err != nil {
		return Reply{}, err
	}
	if content, ok := s.cache.Get(ctx, req.Messages); ok {
		return Reply{Content: content, Cached: true}, nil
	}

	content, err := s.generator.Generate(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	s.cache.Set(ctx, req.Messages, content)
	return Reply{Content: content}, nil
}

// Stream forwards deltas to onChunk. The full text is cached only when the
// stream completes without error.
func (s *Service) Stream(
	ctx context.Context, req domain.GenerateRequest, onChunk func(string) error,
) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	full, err := s.generator.Stream(ctx, req, onChunk)
	if err != nil {
		return full, err
	}
	s.cache.Set(ctx, req.Messages, full)
	return full, nil
}

func validate(req domain.GenerateRequest) error {
	if len(req.Messages) == 0 {
		return fmt.Errorf("messages are required: %w", domain.ErrInvalidInput)
	}
	return nil
}
