package pgvec

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/millarag/internal/domain"
)

// Set MILLARAG_TEST_PG_DSN to a database with the vector extension available.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("MILLARAG_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("MILLARAG_TEST_PG_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	table := fmt.Sprintf("millarag_test_%d", time.Now().UnixNano())
	s := New(p, Options{Table: table, Dimensions: 3, HNSWM: 16, EFConstruct: 64})
	require.NoError(t, s.Initialize(ctx))
	t.Cleanup(func() {
		_, _ = p.Exec(context.Background(), "DROP TABLE IF EXISTS "+s.sql.table)
	})
	return s
}

func TestStore_Integration(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	// second Initialize is a no-op
	require.NoError(t, s.Initialize(ctx))

	entries := []domain.VectorEntry{
		{ID: "a_chunk_0", Vector: []float32{1, 0, 0}, Content: "alpha",
			Metadata: map[string]any{domain.MetaDocumentID: "a", domain.MetaChunkIndex: 0, "lang": "en"}},
		{ID: "a_chunk_1", Vector: []float32{0.9, 0.1, 0}, Content: "alpha two",
			Metadata: map[string]any{domain.MetaDocumentID: "a", domain.MetaChunkIndex: 1, "lang": "de"}},
		{ID: "b_chunk_0", Vector: []float32{0, 1, 0}, Content: "beta",
			Metadata: map[string]any{domain.MetaDocumentID: "b", domain.MetaChunkIndex: 0, "lang": "en"}},
	}
	require.NoError(t, s.Upsert(ctx, entries))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Count)

	matches, err := s.Query(ctx, domain.VectorQuery{Vector: []float32{1, 0, 0}, TopK: 2, IncludeMetadata: true})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "a_chunk_0", matches[0].ID)
	require.InDelta(t, 1.0, matches[0].Score, 1e-6)
	require.Equal(t, "a", matches[0].Metadata[domain.MetaDocumentID])

	filtered, err := s.Query(ctx, domain.VectorQuery{
		Vector: []float32{1, 0, 0},
		TopK:   5,
		Filter: map[string]any{"lang": "en"},
	})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	require.Nil(t, filtered[0].Metadata)

	ids, err := s.DocumentChunks(ctx, "a")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a_chunk_0", "a_chunk_1"}, ids)

	require.NoError(t, s.Delete(ctx, ids))
	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Count)
}

func TestStore_UpsertDimensionMismatch(t *testing.T) {
	s := New(nil, Options{Table: "t", Dimensions: 3})
	err := s.Upsert(context.Background(), []domain.VectorEntry{{ID: "x", Vector: []float32{1}}})
	require.ErrorIs(t, err, domain.ErrVectorDimMismatch)
}
