package rag

import (
	"sort"
	"strings"

	"github.com/kailas-cloud/millarag/internal/domain"
)

// Reranker reorders retrieval candidates for a query.
type Reranker interface {
	Rerank(query string, candidates []domain.VectorMatch) []domain.VectorMatch
}

// NaiveLexicalReranker orders candidates by the share of query tokens found in their content.
type NaiveLexicalReranker struct{}

// Rerank scores each candidate by matched query tokens / total query tokens. Both sides
// are lower-cased and split on whitespace; a query token matches when the candidate has
// the same token. Duplicate query tokens count each time. Ties keep their retrieval
// order. Candidate scores are left untouched.
func (NaiveLexicalReranker) Rerank(query string, candidates []domain.VectorMatch) []domain.VectorMatch {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 || len(candidates) < 2 {
		return candidates
	}

	type scored struct {
		match domain.VectorMatch
		score float64
	}
	ranked := make([]scored, len(candidates))
	for i, c := range candidates {
		words := make(map[string]struct{})
		for _, w := range strings.Fields(strings.ToLower(c.Content)) {
			words[w] = struct{}{}
		}
		hits := 0
		for _, t := range tokens {
			if _, ok := words[t]; ok {
				hits++
			}
		}
		ranked[i] = scored{match: c, score: float64(hits) / float64(len(tokens))}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]domain.VectorMatch, len(ranked))
	for i, r := range ranked {
		out[i] = r.match
	}
	return out
}
