package domain

// Document is a unit of ingestion. ID is caller-supplied and stable across re-ingests.
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Metadata keys written by ingestion on every chunk.
const (
	MetaDocumentID  = "documentId"
	MetaChunkIndex  = "chunkIndex"
	MetaTimestamp   = "timestamp"
	MetaTotalChunks = "totalChunks"
)

// QueryRequest is a retrieval-augmented question.
type QueryRequest struct {
	Query  string
	TopK   int            // 0 means the service default
	Filter map[string]any // exact-match metadata constraints
	Rerank *bool          // nil means true
}

// Source is a retrieved chunk attributed in an answer.
type Source struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Answer is the generated response plus the chunks that informed it.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}
