// Package redisvec stores chunk vectors as Redis hashes under an FT HNSW index.
package redisvec

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/kailas-cloud/millarag/internal/db"
	dbredis "github.com/kailas-cloud/millarag/internal/db/redis"
	"github.com/kailas-cloud/millarag/internal/domain"
	"github.com/kailas-cloud/millarag/internal/domain/filter"
)

const (
	keyPrefix = "millarag:chunk:"
	listPage  = 500
	// overFetch widens KNN when part of the filter is evaluated after the search.
	overFetch = 4
)

var _ domain.VectorStore = (*Repo)(nil)

// store is the consumer interface for the vector repository (ISP).
type store interface {
	ReplaceHashes(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, keys ...string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Options configure the index.
type Options struct {
	IndexName   string
	Dimensions  int
	TagFields   []string
	HNSWM       int
	EFConstruct int
}

// Repo implements domain.VectorStore on top of Redis Search.
type Repo struct {
	store store
	opts  Options
}

// New creates a Redis vector repository.
func New(s store, opts Options) *Repo {
	opts.TagFields = slices.DeleteFunc(slices.Clone(opts.TagFields), func(f string) bool {
		return f == "" || f == domain.MetaDocumentID || f == domain.MetaChunkIndex
	})
	return &Repo{store: s, opts: opts}
}

// Initialize creates the FT index. An existing index is not an error.
func (r *Repo) Initialize(ctx context.Context) error {
	def, err := r.indexDefinition()
	if err != nil {
		return fmt.Errorf("build index %s: %w", r.opts.IndexName, err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", r.opts.IndexName, err)
	}
	return nil
}

func (r *Repo) indexDefinition() (*db.IndexDefinition, error) {
	b := db.NewIndex(r.opts.IndexName).
		Prefix(keyPrefix).
		Tag(domain.MetaDocumentID).
		Numeric(domain.MetaChunkIndex).
		Tag(r.opts.TagFields...)
	if r.opts.HNSWM > 0 {
		b = b.VectorHNSW(fieldVector, r.opts.Dimensions, db.DistanceCosine, r.opts.HNSWM, r.opts.EFConstruct)
	} else {
		b = b.VectorFlat(fieldVector, r.opts.Dimensions, db.DistanceCosine)
	}
	return b.Build()
}

// Upsert writes all entries in one pipeline. HSET replaces existing fields.
func (r *Repo) Upsert(ctx context.Context, entries []domain.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry id is required: %w", domain.ErrInvalidInput)
		}
		if len(e.Vector) != r.opts.Dimensions {
			return fmt.Errorf("entry %s has %d dimensions, want %d: %w",
				e.ID, len(e.Vector), r.opts.Dimensions, domain.ErrVectorDimMismatch)
		}
		fields, err := buildHashFields(e, r.opts.TagFields)
		if err != nil {
			return err
		}
		items = append(items, db.HashSetItem{Key: keyPrefix + e.ID, Fields: fields})
	}
	if err := r.store.ReplaceHashes(ctx, items); err != nil {
		return fmt.Errorf("hset %d entries: %w", len(items), err)
	}
	return nil
}

// Query runs KNN with the indexable part of the filter pushed down.
// Remaining conditions are checked against the decoded metadata.
func (r *Repo) Query(ctx context.Context, q domain.VectorQuery) ([]domain.VectorMatch, error) {
	if q.TopK <= 0 {
		return nil, nil
	}
	expr, err := filter.FromMap(q.Filter)
	if err != nil {
		return nil, fmt.Errorf("filter: %w: %w", err, domain.ErrInvalidInput)
	}
	pushed, residual := expr.Split(r.indexable)
	pushed = pushed.Map(func(c filter.Condition) filter.Condition {
		if c.Kind() == filter.KindNumber {
			return c
		}
		return c.AsTag(tagValue(c.Text()))
	})

	k := q.TopK
	if !residual.IsEmpty() {
		k *= overFetch
	}

	fields := []string{fieldContent}
	if q.IncludeMetadata || !residual.IsEmpty() {
		fields = append(fields, fieldMetadata)
	}

	result, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.opts.IndexName,
		VectorField:  fieldVector,
		Filters:      pushed,
		Vector:       q.Vector,
		K:            k,
		ReturnFields: fields,
	})
	if err != nil {
		return nil, fmt.Errorf("knn %s: %w", r.opts.IndexName, err)
	}
	if result == nil {
		return nil, nil
	}

	matches := make([]domain.VectorMatch, 0, min(len(result.Entries), q.TopK))
	for _, e := range result.Entries {
		meta := parseMetadata(e.Fields[fieldMetadata])
		if !residual.Matches(meta) {
			continue
		}
		m := domain.VectorMatch{
			ID:      strings.TrimPrefix(e.Key, keyPrefix),
			Score:   e.Score,
			Content: e.Fields[fieldContent],
		}
		if q.IncludeMetadata {
			m.Metadata = meta
		}
		matches = append(matches, m)
		if len(matches) == q.TopK {
			break
		}
	}
	return matches, nil
}

func (r *Repo) indexable(c filter.Condition) bool {
	switch c.Key() {
	case domain.MetaDocumentID:
		return c.Kind() == filter.KindTag
	case domain.MetaChunkIndex:
		return c.Kind() == filter.KindNumber
	}
	return c.Kind() != filter.KindNumber && slices.Contains(r.opts.TagFields, c.Key())
}

// Delete removes entries by id. Missing keys are ignored by DEL.
func (r *Repo) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("del %d entries: %w", len(keys), err)
	}
	return nil
}

// Stats counts indexed entries.
func (r *Repo) Stats(ctx context.Context) (domain.VectorStats, error) {
	n, err := r.store.SearchCount(ctx, r.opts.IndexName, "*")
	if err != nil {
		return domain.VectorStats{}, fmt.Errorf("count %s: %w", r.opts.IndexName, err)
	}
	return domain.VectorStats{Count: n, Dimensions: r.opts.Dimensions}, nil
}

// DocumentChunks pages through the documentId tag index.
func (r *Repo) DocumentChunks(ctx context.Context, documentID string) ([]string, error) {
	if documentID == "" {
		return nil, nil
	}
	query := fmt.Sprintf("@%s:{%s}", domain.MetaDocumentID, dbredis.EscapeTag(tagValue(documentID)))

	var ids []string
	for offset := 0; ; offset += listPage {
		result, err := r.store.SearchList(ctx, r.opts.IndexName, query, offset, listPage, []string{domain.MetaDocumentID})
		if err != nil {
			return nil, fmt.Errorf("list chunks of %s: %w", documentID, err)
		}
		if result == nil {
			break
		}
		for _, e := range result.Entries {
			ids = append(ids, strings.TrimPrefix(e.Key, keyPrefix))
		}
		if len(result.Entries) < listPage || offset+listPage >= result.Total {
			break
		}
	}
	return ids, nil
}

// Available is always true; connectivity is reported by the health checker.
func (r *Repo) Available() bool { return true }
