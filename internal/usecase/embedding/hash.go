package embedding

import (
	"context"
	"math"
	"unicode/utf16"

	"github.com/kailas-cloud/millarag/internal/domain"
)

// HashEmbedder is a deterministic, offline embedder. Equal texts get equal vectors;
// the vectors carry no semantic similarity.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a hash embedder. dimensions <= 0 uses domain.DefaultDimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = domain.DefaultDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed never fails and reports no token usage.
func (e *HashEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: HashVector(text, e.dimensions)}, nil
}

// HashVector computes v[i] = sin(h+i)*0.5 + 0.5, where h is the 31-multiplier
// string hash over UTF-16 code units with int32 wraparound.
func HashVector(text string, dimensions int) []float32 {
	h := stringHash(text)
	v := make([]float32, dimensions)
	for i := range v {
		v[i] = float32(math.Sin(float64(h)+float64(i))*0.5 + 0.5)
	}
	return v
}

func stringHash(text string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(text)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}
