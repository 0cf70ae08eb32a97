// Package vectorstore holds the in-process vector store backends.
// Database-backed ones live in the redisvec and pgvec subpackages.
package vectorstore

import (
	"context"

	"github.com/kailas-cloud/millarag/internal/domain"
)

var _ domain.VectorStore = Unavailable{}

// Unavailable is the store used when no backend is configured or reachable.
// Writes are dropped, reads are empty.
type Unavailable struct{}

// Initialize does nothing.
func (Unavailable) Initialize(context.Context) error { return nil }

// Upsert drops the entries.
func (Unavailable) Upsert(context.Context, []domain.VectorEntry) error { return nil }

// Query returns no matches.
func (Unavailable) Query(context.Context, domain.VectorQuery) ([]domain.VectorMatch, error) {
	return nil, nil
}

// Delete does nothing.
func (Unavailable) Delete(context.Context, []string) error { return nil }

// Stats reports an empty store.
func (Unavailable) Stats(context.Context) (domain.VectorStats, error) {
	return domain.VectorStats{}, nil
}

// DocumentChunks returns no ids.
func (Unavailable) DocumentChunks(context.Context, string) ([]string, error) { return nil, nil }

// Available is always false.
func (Unavailable) Available() bool { return false }
