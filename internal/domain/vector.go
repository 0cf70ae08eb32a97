package domain

import "context"

// VectorEntry is a chunk ready for upsert. Metadata must carry MetaDocumentID and the content.
type VectorEntry struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata map[string]any
}

// VectorQuery asks for the TopK nearest entries, optionally constrained by metadata equality.
type VectorQuery struct {
	Vector          []float32
	TopK            int
	Filter          map[string]any
	IncludeMetadata bool
}

// VectorMatch is a query hit; Score is similarity, higher is closer.
type VectorMatch struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// VectorStats summarises the store. Dimensions is zero when unknown.
type VectorStats struct {
	Count      int `json:"count"`
	Dimensions int `json:"dimensions,omitempty"`
}

// VectorStore is the vector database contract used by the RAG pipeline.
type VectorStore interface {
	// Initialize creates the collection/index if absent. Already existing is success.
	Initialize(ctx context.Context) error
	Upsert(ctx context.Context, entries []VectorEntry) error
	Query(ctx context.Context, q VectorQuery) ([]VectorMatch, error)
	// Delete removes entries by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error
	Stats(ctx context.Context) (VectorStats, error)
	// DocumentChunks lists ids of entries whose metadata documentId equals documentID.
	DocumentChunks(ctx context.Context, documentID string) ([]string, error)
	Available() bool
}
