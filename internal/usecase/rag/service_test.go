package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/millarag/internal/domain"
	"github.com/kailas-cloud/millarag/internal/repository/vectorstore"
)

// --- Mocks ---

type fixedEmbedder struct {
	calls []string
	err   error
}

func (m *fixedEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls = append(m.calls, text)
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}, nil
}

type mockGenerator struct {
	req    domain.GenerateRequest
	answer string
	err    error
}

func (m *mockGenerator) Generate(_ context.Context, req domain.GenerateRequest) (string, error) {
	m.req = req
	return m.answer, m.err
}

type mockStore struct {
	vectorstore.Unavailable

	available bool
	queryRes  []domain.VectorMatch
	queryErr  error
	lastQuery domain.VectorQuery
	chunks    []string
	deleted   []string
}

func (m *mockStore) Available() bool { return m.available }

func (m *mockStore) Query(_ context.Context, q domain.VectorQuery) ([]domain.VectorMatch, error) {
	m.lastQuery = q
	return m.queryRes, m.queryErr
}

func (m *mockStore) DocumentChunks(context.Context, string) ([]string, error) {
	return m.chunks, nil
}

func (m *mockStore) Delete(_ context.Context, ids []string) error {
	m.deleted = append(m.deleted, ids...)
	return nil
}

func newTestService(store domain.VectorStore, gen *mockGenerator) *Service {
	s := New(NewTextChunker(WithChunkSize(20), WithChunkOverlap(-1)), &fixedEmbedder{}, store, gen)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func boolPtr(b bool) *bool { return &b }

// --- Ingest ---

func TestIngestDocuments_StoresChunksWithMetadata(t *testing.T) {
	store := vectorstore.NewMemory(3)
	svc := newTestService(store, &mockGenerator{})

	doc := domain.Document{
		ID:       "doc1",
		Content:  "first paragraph\n\nsecond paragraph",
		Metadata: map[string]any{"source": "wiki", "chunkIndex": 99},
	}
	if err := svc.IngestDocuments(context.Background(), []domain.Document{doc}); err != nil {
		t.Fatalf("IngestDocuments: %v", err)
	}

	ids, _ := store.DocumentChunks(context.Background(), "doc1")
	if len(ids) != 2 || ids[0] != "doc1_chunk_0" || ids[1] != "doc1_chunk_1" {
		t.Fatalf("chunk ids = %v", ids)
	}

	got, _ := store.Query(context.Background(), domain.VectorQuery{
		Vector: []float32{1, 0, 0}, TopK: 10, IncludeMetadata: true,
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 stored chunks, got %d", len(got))
	}
	meta := got[1].Metadata
	if meta["source"] != "wiki" {
		t.Errorf("document metadata lost: %v", meta)
	}
	if meta[domain.MetaChunkIndex] != 1 {
		t.Errorf("chunkIndex = %v, want 1", meta[domain.MetaChunkIndex])
	}
	if meta[domain.MetaDocumentID] != "doc1" || meta[domain.MetaTotalChunks] != 2 {
		t.Errorf("unexpected metadata: %v", meta)
	}
	if meta[domain.MetaTimestamp] != int64(1700000000000) {
		t.Errorf("timestamp = %v", meta[domain.MetaTimestamp])
	}
	if got[0].Content != "first paragraph" {
		t.Errorf("content = %q", got[0].Content)
	}
}

func TestIngestDocuments_ReingestRemovesStaleChunks(t *testing.T) {
	store := vectorstore.NewMemory(3)
	svc := newTestService(store, &mockGenerator{})
	ctx := context.Background()

	long := domain.Document{ID: "d", Content: "alpha beta gamma\n\ndelta epsilon zeta\n\neta theta iota"}
	if err := svc.IngestDocuments(ctx, []domain.Document{long}); err != nil {
		t.Fatal(err)
	}
	short := domain.Document{ID: "d", Content: "only"}
	if err := svc.IngestDocuments(ctx, []domain.Document{short}); err != nil {
		t.Fatal(err)
	}

	ids, _ := store.DocumentChunks(ctx, "d")
	if len(ids) != 1 || ids[0] != "d_chunk_0" {
		t.Fatalf("chunk ids after re-ingest = %v", ids)
	}
}

func TestIngestDocuments_MissingID(t *testing.T) {
	svc := newTestService(vectorstore.NewMemory(3), &mockGenerator{})

	err := svc.IngestDocuments(context.Background(), []domain.Document{{ID: "ok", Content: "x"}, {Content: "y"}})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIngestDocuments_EmbedError(t *testing.T) {
	store := vectorstore.NewMemory(3)
	svc := New(nil, &fixedEmbedder{err: domain.ErrEmbeddingProviderError}, store, &mockGenerator{})

	err := svc.IngestDocuments(context.Background(), []domain.Document{{ID: "d", Content: "text"}})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
	if stats, _ := store.Stats(context.Background()); stats.Count != 0 {
		t.Errorf("nothing must be stored, got %d", stats.Count)
	}
}

func TestIngestDocuments_UnavailableStore(t *testing.T) {
	svc := newTestService(vectorstore.Unavailable{}, &mockGenerator{})

	if err := svc.IngestDocuments(context.Background(), []domain.Document{{ID: "d", Content: "text"}}); err != nil {
		t.Fatalf("unavailable store must not fail ingestion: %v", err)
	}
}

// --- Query ---

func TestQuery_BuildsPromptAndSources(t *testing.T) {
	store := &mockStore{available: true, queryRes: []domain.VectorMatch{
		{ID: "a", Content: "Paris is the capital of France.", Score: 0.9, Metadata: map[string]any{"documentId": "geo"}},
		{ID: "b", Content: "Berlin is in Germany.", Score: 0.8},
	}}
	gen := &mockGenerator{answer: "Paris"}
	svc := newTestService(store, gen)

	ans, err := svc.Query(context.Background(), domain.QueryRequest{Query: "capital of France?"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if store.lastQuery.TopK != 10 || !store.lastQuery.IncludeMetadata {
		t.Errorf("vector query = %+v, want topK 10 with metadata", store.lastQuery)
	}
	if ans.Answer != "Paris" || len(ans.Sources) != 2 {
		t.Fatalf("answer = %+v", ans)
	}
	if ans.Sources[0].Score != 0.9 || ans.Sources[0].Metadata["documentId"] != "geo" {
		t.Errorf("source = %+v", ans.Sources[0])
	}

	want := "Based on the following context, answer the user's question.\n\nContext:\n" +
		"[1] Paris is the capital of France.\n\n[2] Berlin is in Germany.\n\n" +
		"Question: capital of France?\n\nAnswer:"
	if len(gen.req.Messages) != 1 || gen.req.Messages[0].Role != domain.RoleUser {
		t.Fatalf("messages = %+v", gen.req.Messages)
	}
	if gen.req.Messages[0].Content != want {
		t.Errorf("prompt:\ngot:  %q\nwant: %q", gen.req.Messages[0].Content, want)
	}
	if gen.req.Temperature != 0.3 || gen.req.MaxTokens != 1024 {
		t.Errorf("generation params = %v/%d", gen.req.Temperature, gen.req.MaxTokens)
	}
}

func TestQuery_RerankTruncatesToTopK(t *testing.T) {
	store := &mockStore{available: true, queryRes: []domain.VectorMatch{
		{ID: "1", Content: "unrelated text"},
		{ID: "2", Content: "go channels"},
		{ID: "3", Content: "more noise"},
		{ID: "4", Content: "go"},
	}}
	svc := newTestService(store, &mockGenerator{})

	ans, err := svc.Query(context.Background(), domain.QueryRequest{Query: "go channels", TopK: 2})
	if err != nil {
		t.Fatal(err)
	}
	if store.lastQuery.TopK != 4 {
		t.Errorf("fetched %d, want 4", store.lastQuery.TopK)
	}
	if len(ans.Sources) != 2 || ans.Sources[0].Content != "go channels" || ans.Sources[1].Content != "go" {
		t.Fatalf("sources = %+v", ans.Sources)
	}
}

// dedupReranker drops candidates with repeated content.
type dedupReranker struct{}

func (dedupReranker) Rerank(_ string, in []domain.VectorMatch) []domain.VectorMatch {
	seen := map[string]bool{}
	var out []domain.VectorMatch
	for _, m := range in {
		if !seen[m.Content] {
			seen[m.Content] = true
			out = append(out, m)
		}
	}
	return out
}

func TestQuery_RerankerReturnsFewerThanTopK(t *testing.T) {
	store := &mockStore{available: true, queryRes: []domain.VectorMatch{
		{ID: "1", Content: "same"},
		{ID: "2", Content: "same"},
		{ID: "3", Content: "same"},
		{ID: "4", Content: "other"},
	}}
	svc := newTestService(store, &mockGenerator{}).WithReranker(dedupReranker{})

	ans, err := svc.Query(context.Background(), domain.QueryRequest{Query: "q", TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(ans.Sources) != 2 {
		t.Fatalf("sources = %+v", ans.Sources)
	}
}

func TestQuery_NoRerank(t *testing.T) {
	store := &mockStore{available: true, queryRes: []domain.VectorMatch{{Content: "a"}, {Content: "b"}}}
	svc := newTestService(store, &mockGenerator{})

	ans, err := svc.Query(context.Background(), domain.QueryRequest{Query: "b", TopK: 3, Rerank: boolPtr(false)})
	if err != nil {
		t.Fatal(err)
	}
	if store.lastQuery.TopK != 3 {
		t.Errorf("fetched %d, want 3", store.lastQuery.TopK)
	}
	if ans.Sources[0].Content != "a" {
		t.Errorf("order must be retrieval order, got %+v", ans.Sources)
	}
}

func TestQuery_FilterPassedThrough(t *testing.T) {
	store := &mockStore{available: true}
	svc := newTestService(store, &mockGenerator{})

	filter := map[string]any{"source": "wiki"}
	if _, err := svc.Query(context.Background(), domain.QueryRequest{Query: "q", Filter: filter}); err != nil {
		t.Fatal(err)
	}
	if store.lastQuery.Filter["source"] != "wiki" {
		t.Errorf("filter = %v", store.lastQuery.Filter)
	}
}

func TestQuery_EmptyQuery(t *testing.T) {
	svc := newTestService(&mockStore{available: true}, &mockGenerator{})

	_, err := svc.Query(context.Background(), domain.QueryRequest{Query: "  "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestQuery_UnavailableStoreDegrades(t *testing.T) {
	gen := &mockGenerator{answer: "guess"}
	svc := newTestService(vectorstore.Unavailable{}, gen)

	ans, err := svc.Query(context.Background(), domain.QueryRequest{Query: "anything"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ans.Answer != "guess" || ans.Sources == nil || len(ans.Sources) != 0 {
		t.Fatalf("answer = %+v", ans)
	}
	if !strings.Contains(gen.req.Messages[0].Content, "Context:\n\n\nQuestion: anything") {
		t.Errorf("expected empty context, prompt = %q", gen.req.Messages[0].Content)
	}
}

func TestQuery_QueryErrorDegrades(t *testing.T) {
	store := &mockStore{available: true, queryErr: errors.New("connection reset")}
	svc := newTestService(store, &mockGenerator{answer: "ok"})

	ans, err := svc.Query(context.Background(), domain.QueryRequest{Query: "q"})
	if err != nil || ans.Answer != "ok" {
		t.Fatalf("got %+v, %v", ans, err)
	}
}

func TestQuery_RequireRetrieval(t *testing.T) {
	for name, store := range map[string]*mockStore{
		"unavailable": {available: false},
		"query error": {available: true, queryErr: errors.New("timeout")},
	} {
		t.Run(name, func(t *testing.T) {
			svc := newTestService(store, &mockGenerator{}).WithRequireRetrieval(true)

			_, err := svc.Query(context.Background(), domain.QueryRequest{Query: "q"})
			if !errors.Is(err, domain.ErrRetrievalUnavailable) {
				t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
			}
		})
	}
}

func TestQuery_InvalidFilterIsNotDegraded(t *testing.T) {
	store := &mockStore{available: true, queryErr: domain.ErrInvalidInput}
	svc := newTestService(store, &mockGenerator{})

	_, err := svc.Query(context.Background(), domain.QueryRequest{Query: "q"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestQuery_GenerationError(t *testing.T) {
	svc := newTestService(&mockStore{available: true}, &mockGenerator{err: domain.ErrProviderNotConfigured})

	_, err := svc.Query(context.Background(), domain.QueryRequest{Query: "q"})
	if !errors.Is(err, domain.ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}

func TestQuery_DefaultTopK(t *testing.T) {
	store := &mockStore{available: true}
	svc := newTestService(store, &mockGenerator{}).WithDefaultTopK(3)

	if _, err := svc.Query(context.Background(), domain.QueryRequest{Query: "q", Rerank: boolPtr(false)}); err != nil {
		t.Fatal(err)
	}
	if store.lastQuery.TopK != 3 {
		t.Errorf("topK = %d, want 3", store.lastQuery.TopK)
	}
}

// --- Delete ---

func TestDeleteDocument(t *testing.T) {
	store := &mockStore{available: true, chunks: []string{"d_chunk_0", "d_chunk_1"}}
	svc := newTestService(store, &mockGenerator{})

	if err := svc.DeleteDocument(context.Background(), "d"); err != nil {
		t.Fatal(err)
	}
	if len(store.deleted) != 2 {
		t.Errorf("deleted = %v", store.deleted)
	}
}

func TestDeleteDocument_Unknown(t *testing.T) {
	store := &mockStore{available: true}
	svc := newTestService(store, &mockGenerator{})

	if err := svc.DeleteDocument(context.Background(), "missing"); err != nil {
		t.Fatal(err)
	}
	if store.deleted != nil {
		t.Errorf("nothing must be deleted, got %v", store.deleted)
	}
}

func TestDeleteDocument_EmptyID(t *testing.T) {
	svc := newTestService(&mockStore{}, &mockGenerator{})

	if err := svc.DeleteDocument(context.Background(), ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
