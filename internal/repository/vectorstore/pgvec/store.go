// Package pgvec stores chunk vectors in PostgreSQL with the pgvector extension.
package pgvec

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/millarag/internal/domain"
	"github.com/kailas-cloud/millarag/internal/domain/filter"
)

var _ domain.VectorStore = (*Store)(nil)

// pool is the subset of *pgxpool.Pool used by the store.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Options configure the table and its HNSW index.
type Options struct {
	Table       string
	Dimensions  int
	HNSWM       int
	EFConstruct int
}

// Store implements domain.VectorStore on PostgreSQL.
type Store struct {
	pool pool
	opts Options
	sql  statements
}

// Connect opens a pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return p, nil
}

// New creates a pgvector store over an open pool.
func New(p pool, opts Options) *Store {
	return &Store{pool: p, opts: opts, sql: newStatements(opts)}
}

// Initialize creates the extension, table and index when missing.
func (s *Store) Initialize(ctx context.Context) error {
	for _, stmt := range s.sql.schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema %s: %w", s.opts.Table, err)
		}
	}
	return nil
}

// Upsert writes all entries in one transaction.
func (s *Store) Upsert(ctx context.Context, entries []domain.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry id is required: %w", domain.ErrInvalidInput)
		}
		if len(e.Vector) != s.opts.Dimensions {
			return fmt.Errorf("entry %s has %d dimensions, want %d: %w",
				e.ID, len(e.Vector), s.opts.Dimensions, domain.ErrVectorDimMismatch)
		}
		meta, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata %s: %w", e.ID, err)
		}
		docID, _ := e.Metadata[domain.MetaDocumentID].(string)
		batch.Queue(s.sql.upsert, e.ID, docID, e.Content, string(meta), pgvector.NewVector(e.Vector))
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("upsert %d entries: %w", len(entries), err)
	}
	return nil
}

// Query orders by cosine distance. The metadata filter is a jsonb containment check.
func (s *Store) Query(ctx context.Context, q domain.VectorQuery) ([]domain.VectorMatch, error) {
	if q.TopK <= 0 {
		return nil, nil
	}
	if _, err := filter.FromMap(q.Filter); err != nil {
		return nil, fmt.Errorf("filter: %w: %w", err, domain.ErrInvalidInput)
	}

	args := []any{pgvector.NewVector(q.Vector), q.TopK}
	stmt := s.sql.query
	if len(q.Filter) > 0 {
		containment, err := json.Marshal(q.Filter)
		if err != nil {
			return nil, fmt.Errorf("marshal filter: %w", err)
		}
		stmt = s.sql.queryFiltered
		args = append(args, string(containment))
	}

	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.opts.Table, err)
	}
	defer rows.Close()

	matches := make([]domain.VectorMatch, 0, q.TopK)
	for rows.Next() {
		var (
			m    domain.VectorMatch
			meta []byte
		)
		if err := rows.Scan(&m.ID, &m.Content, &meta, &m.Score); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if q.IncludeMetadata && len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata %s: %w", m.ID, err)
			}
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}

// Delete removes rows by id.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, s.sql.deleteIDs, ids); err != nil {
		return fmt.Errorf("delete %d entries: %w", len(ids), err)
	}
	return nil
}

// Stats counts rows.
func (s *Store) Stats(ctx context.Context) (domain.VectorStats, error) {
	var n int
	if err := s.pool.QueryRow(ctx, s.sql.count).Scan(&n); err != nil {
		return domain.VectorStats{}, fmt.Errorf("count %s: %w", s.opts.Table, err)
	}
	return domain.VectorStats{Count: n, Dimensions: s.opts.Dimensions}, nil
}

// DocumentChunks lists ids by the document_id column.
func (s *Store) DocumentChunks(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, s.sql.documentChunks, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks of %s: %w", documentID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect chunks of %s: %w", documentID, err)
	}
	return ids, nil
}

// Available is always true; connectivity is reported by Ping.
func (s *Store) Available() bool { return true }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
