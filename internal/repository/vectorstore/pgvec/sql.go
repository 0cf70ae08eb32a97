package pgvec

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

type statements struct {
	table          string
	schema         []string
	upsert         string
	query          string
	queryFiltered  string
	deleteIDs      string
	count          string
	documentChunks string
}

func newStatements(opts Options) statements {
	table := pgx.Identifier{opts.Table}.Sanitize()
	docIdx := pgx.Identifier{opts.Table + "_document_id_idx"}.Sanitize()
	vecIdx := pgx.Identifier{opts.Table + "_embedding_idx"}.Sanitize()

	hnsw := ""
	if opts.HNSWM > 0 && opts.EFConstruct > 0 {
		hnsw = fmt.Sprintf(" WITH (m = %d, ef_construction = %d)", opts.HNSWM, opts.EFConstruct)
	}

	selectCols := "SELECT id, content, metadata, 1 - (embedding <=> $1) AS score FROM " + table

	return statements{
		table: table,
		schema: []string{
			"CREATE EXTENSION IF NOT EXISTS vector",
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id text PRIMARY KEY,
	document_id text NOT NULL DEFAULT '',
	content text NOT NULL,
	metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
	embedding vector(%d) NOT NULL
)`, table, opts.Dimensions),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (document_id)", docIdx, table),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)%s",
				vecIdx, table, hnsw),
		},
		upsert: fmt.Sprintf(`INSERT INTO %s (id, document_id, content, metadata, embedding)
VALUES ($1, $2, $3, $4::jsonb, $5)
ON CONFLICT (id) DO UPDATE SET
	document_id = EXCLUDED.document_id,
	content = EXCLUDED.content,
	metadata = EXCLUDED.metadata,
	embedding = EXCLUDED.embedding`, table),
		query:          selectCols + " ORDER BY embedding <=> $1 LIMIT $2",
		queryFiltered:  selectCols + " WHERE metadata @> $3::jsonb ORDER BY embedding <=> $1 LIMIT $2",
		deleteIDs:      "DELETE FROM " + table + " WHERE id = ANY($1)",
		count:          "SELECT count(*) FROM " + table,
		documentChunks: "SELECT id FROM " + table + " WHERE document_id = $1 ORDER BY id",
	}
}
