// Package postgres stores the knowledge base in PostgreSQL with pgvector and
// answers nearest-neighbour queries through an HNSW cosine index.
package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/ent0n29/deadbot/internal/knowledge"
)

// Store implements knowledge.Store. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

var _ knowledge.Store = (*Store)(nil)

// NewStore connects to databaseURL, registers pgvector types on every pooled
// connection and creates the schema. dims fixes the width of the embedding
// column; changing it later requires dropping the table.
func NewStore(ctx context.Context, databaseURL string, dims int) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("postgres: dimensions must be positive, got %d", dims)
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if err := initSchema(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, dims: dims}, nil
}

func schemaStatements(dims int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_documents (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding  vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dims),
		`CREATE INDEX IF NOT EXISTS idx_knowledge_documents_embedding
			ON knowledge_documents USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_documents_category
			ON knowledge_documents ((metadata->>'category'))`,
	}
}

func initSchema(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	for _, stmt := range schemaStatements(dims) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, records []knowledge.Record, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("postgres: upsert %d records with %d vectors", len(records), len(vectors))
	}
	const q = `
		INSERT INTO knowledge_documents (id, content, metadata, embedding, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, now())
		ON CONFLICT (id) DO UPDATE SET
		    content    = EXCLUDED.content,
		    metadata   = EXCLUDED.metadata,
		    embedding  = EXCLUDED.embedding,
		    updated_at = EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for i, r := range records {
		if len(vectors[i]) != s.dims {
			return fmt.Errorf("%w: record %s has %d, store expects %d", knowledge.ErrDimensionMismatch, r.ID, len(vectors[i]), s.dims)
		}
		meta, err := knowledge.EncodeMetadata(r.Metadata)
		if err != nil {
			return fmt.Errorf("postgres: encode metadata for %s: %w", r.ID, err)
		}
		batch.Queue(q, r.ID, r.Text, string(meta), pgvector.NewVector(vectors[i]))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: upsert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]knowledge.RetrievedDocument, error) {
	if k <= 0 {
		return []knowledge.RetrievedDocument{}, nil
	}
	if len(vector) != s.dims {
		return nil, fmt.Errorf("%w: query has %d, store expects %d", knowledge.ErrDimensionMismatch, len(vector), s.dims)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, content, metadata::text, embedding <=> $1 AS distance
		FROM   knowledge_documents
		ORDER  BY distance, id
		LIMIT  $2`, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (knowledge.RetrievedDocument, error) {
		var (
			doc  knowledge.RetrievedDocument
			meta string
		)
		if err := row.Scan(&doc.ID, &doc.Text, &meta, &doc.Distance); err != nil {
			return knowledge.RetrievedDocument{}, err
		}
		m, err := knowledge.DecodeMetadata([]byte(meta))
		if err != nil {
			return knowledge.RetrievedDocument{}, fmt.Errorf("metadata %s: %w", doc.ID, err)
		}
		doc.Metadata = m
		doc.Distance = clampDistance(doc.Distance)
		return doc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan rows: %w", err)
	}
	if docs == nil {
		docs = []knowledge.RetrievedDocument{}
	}
	return docs, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return int(n), nil
}

func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT metadata->>'category' AS category
		FROM   knowledge_documents
		WHERE  COALESCE(metadata->>'category', '') <> ''
		ORDER  BY category`)
	if err != nil {
		return nil, fmt.Errorf("postgres: categories: %w", err)
	}
	cats, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan categories: %w", err)
	}
	if cats == nil {
		cats = []string{}
	}
	return cats, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// pgvector reports cosine distance of a zero vector as NaN.
func clampDistance(d float64) float64 {
	switch {
	case math.IsNaN(d):
		return 1
	case d < 0:
		return 0
	case d > 2:
		return 2
	}
	return d
}
