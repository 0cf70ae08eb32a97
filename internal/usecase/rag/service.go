package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/millarag/internal/domain"
	"github.com/kailas-cloud/millarag/internal/logger"
)

const (
	defaultTopK = 5

	answerTemperature = 0.3
	answerMaxTokens   = 1024
)

const promptTemplate = `Based on the following context, answer the user's question.

Context:
%s

Question: %s

Answer:`

// Service ingests documents into the vector store and answers questions over them.
type Service struct {
	chunker          *TextChunker
	embedder         Embedder
	store            domain.VectorStore
	generator        Generator
	reranker         Reranker
	defaultTopK      int
	requireRetrieval bool
	now              func() time.Time
}

// New creates a RAG service with the lexical reranker and topK 5.
func New(chunker *TextChunker, embedder Embedder, store domain.VectorStore, generator Generator) *Service {
	if chunker == nil {
		chunker = NewTextChunker()
	}
	return &Service{
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		generator:   generator,
		reranker:    NaiveLexicalReranker{},
		defaultTopK: defaultTopK,
		now:         time.Now,
	}
}

// WithDefaultTopK sets the topK used when a query leaves it unset.
func (s *Service) WithDefaultTopK(n int) *Service {
	if n > 0 {
		s.defaultTopK = n
	}
	return s
}

// WithRequireRetrieval makes queries fail with ErrRetrievalUnavailable instead of
// answering without context when the vector store cannot be searched.
func (s *Service) WithRequireRetrieval(require bool) *Service {
	s.requireRetrieval = require
	return s
}

// WithReranker replaces the reranker.
func (s *Service) WithReranker(r Reranker) *Service {
	if r != nil {
		s.reranker = r
	}
	return s
}

// IngestDocuments chunks, embeds and upserts every document, one upsert per document.
// Chunk ids are "{documentId}_chunk_{i}"; chunks of a previous, longer version of the
// same document are removed afterwards.
func (s *Service) IngestDocuments(ctx context.Context, docs []domain.Document) error {
	for i, doc := range docs {
		if strings.TrimSpace(doc.ID) == "" {
			return fmt.Errorf("document %d: id is required: %w", i, domain.ErrInvalidInput)
		}
	}

	log := logger.FromContext(ctx)
	if !s.store.Available() {
		log.Warn("vector store unavailable, ingested chunks will not be stored")
	}

	for _, doc := range docs {
		n, err := s.ingest(ctx, doc)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", doc.ID, err)
		}
		log.Debug("document ingested", zap.String("document_id", doc.ID), zap.Int("chunks", n))
	}
	return nil
}

func (s *Service) ingest(ctx context.Context, doc domain.Document) (int, error) {
	chunks := s.chunker.Split(doc.Content)
	ts := s.now().UnixMilli()

	entries := make([]domain.VectorEntry, 0, len(chunks))
	keep := make(map[string]struct{}, len(chunks))
	for i, chunk := range chunks {
		res, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d: %w", i, err)
		}

		meta := make(map[string]any, len(doc.Metadata)+4)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta[domain.MetaDocumentID] = doc.ID
		meta[domain.MetaChunkIndex] = i
		meta[domain.MetaTimestamp] = ts
		meta[domain.MetaTotalChunks] = len(chunks)

		id := ChunkID(doc.ID, i)
		keep[id] = struct{}{}
		entries = append(entries, domain.VectorEntry{
			ID:       id,
			Vector:   res.Embedding,
			Content:  chunk,
			Metadata: meta,
		})
	}

	if len(entries) > 0 {
		if err := s.store.Upsert(ctx, entries); err != nil {
			return 0, fmt.Errorf("upsert: %w", err)
		}
	}

	existing, err := s.store.DocumentChunks(ctx, doc.ID)
	if err != nil {
		return 0, fmt.Errorf("list chunks: %w", err)
	}
	var stale []string
	for _, id := range existing {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := s.store.Delete(ctx, stale); err != nil {
			return 0, fmt.Errorf("delete stale chunks: %w", err)
		}
	}
	return len(entries), nil
}

// Query retrieves context for req.Query and asks the generator for an answer.
func (s *Service) Query(ctx context.Context, req domain.QueryRequest) (domain.Answer, error) {
	if strings.TrimSpace(req.Query) == "" {
		return domain.Answer{}, fmt.Errorf("query is required: %w", domain.ErrInvalidInput)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}
	rerank := req.Rerank == nil || *req.Rerank

	matches, err := s.retrieve(ctx, req, topK, rerank)
	if err != nil {
		return domain.Answer{}, err
	}

	if rerank && len(matches) > topK {
		ranked := s.reranker.Rerank(req.Query, matches)
		matches = ranked[:min(topK, len(ranked))]
	}

	parts := make([]string, len(matches))
	sources := make([]domain.Source, len(matches))
	for i, m := range matches {
		parts[i] = fmt.Sprintf("[%d] %s", i+1, m.Content)
		sources[i] = domain.Source{Content: m.Content, Score: m.Score, Metadata: m.Metadata}
	}

	answer, err := s.generator.Generate(ctx, domain.GenerateRequest{
		Messages: []domain.Message{{
			Role:    domain.RoleUser,
			Content: BuildPrompt(strings.Join(parts, "\n\n"), req.Query),
		}},
		Temperature: answerTemperature,
		MaxTokens:   answerMaxTokens,
	})
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}

	return domain.Answer{Answer: answer, Sources: sources}, nil
}

// retrieve returns nothing (and no error) when the store cannot be searched,
// unless retrieval is required.
func (s *Service) retrieve(
	ctx context.Context, req domain.QueryRequest, topK int, rerank bool,
) ([]domain.VectorMatch, error) {
	log := logger.FromContext(ctx)

	if !s.store.Available() {
		if s.requireRetrieval {
			return nil, fmt.Errorf("vector store not connected: %w", domain.ErrRetrievalUnavailable)
		}
		log.Warn("vector store unavailable, answering without context")
		return nil, nil
	}

	res, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	fetch := topK
	if rerank {
		fetch = topK * 2
	}
	matches, err := s.store.Query(ctx, domain.VectorQuery{
		Vector:          res.Embedding,
		TopK:            fetch,
		Filter:          req.Filter,
		IncludeMetadata: true,
	})
	switch {
	case err == nil:
		return matches, nil
	case errors.Is(err, domain.ErrInvalidInput):
		return nil, fmt.Errorf("vector query: %w", err)
	case s.requireRetrieval:
		return nil, fmt.Errorf("vector query: %w: %w", domain.ErrRetrievalUnavailable, err)
	default:
		log.Warn("vector query failed, answering without context", zap.Error(err))
		return nil, nil
	}
}

// DeleteDocument removes every chunk stored for documentID. Unknown ids are a no-op.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return fmt.Errorf("document id is required: %w", domain.ErrInvalidInput)
	}

	ids, err := s.store.DocumentChunks(ctx, documentID)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := s.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	logger.FromContext(ctx).Debug("document deleted",
		zap.String("document_id", documentID), zap.Int("chunks", len(ids)))
	return nil
}

// ChunkID is the vector id of chunk i of a document.
func ChunkID(documentID string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, i)
}

// BuildPrompt renders the answer prompt for a numbered context block.
func BuildPrompt(contextBlock, question string) string {
	return fmt.Sprintf(promptTemplate, contextBlock, question)
}
