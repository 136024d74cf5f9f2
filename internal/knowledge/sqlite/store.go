// Package sqlite persists the knowledge base in a single SQLite file. Vectors
// are stored as little-endian float32 blobs and searched by brute force,
// which is plenty for a few thousand documents.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ent0n29/deadbot/internal/knowledge"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id        TEXT PRIMARY KEY,
	content   TEXT NOT NULL,
	metadata  TEXT NOT NULL DEFAULT '{}',
	category  TEXT,
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_category ON documents (category);
CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store implements knowledge.Store on SQLite.
type Store struct {
	db   *sql.DB
	dims int
}

var _ knowledge.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path. dims is the vector
// width the store accepts; a database created with a different width is
// rejected so a changed embedding model cannot silently mix spaces.
func Open(ctx context.Context, path string, dims int) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("sqlite: dimensions must be positive, got %d", dims)
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: create directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; WAL keeps readers unblocked.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: init %q: %w", firstLine(stmt), err)
		}
	}

	s := &Store{db: db, dims: dims}
	if err := s.checkDimensions(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) checkDimensions(ctx context.Context) error {
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = 'dimensions'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `INSERT INTO store_meta (key, value) VALUES ('dimensions', ?)`, fmt.Sprint(s.dims))
		if err != nil {
			return fmt.Errorf("sqlite: record dimensions: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("sqlite: read dimensions: %w", err)
	}
	if stored != fmt.Sprint(s.dims) {
		return fmt.Errorf("%w: database built with %s dimensions, provider has %d", knowledge.ErrDimensionMismatch, stored, s.dims)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, records []knowledge.Record, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("sqlite: upsert %d records with %d vectors", len(records), len(vectors))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, content, metadata, category, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			category = excluded.category,
			embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if len(vectors[i]) != s.dims {
			return fmt.Errorf("%w: record %s has %d, store expects %d", knowledge.ErrDimensionMismatch, r.ID, len(vectors[i]), s.dims)
		}
		meta, err := knowledge.EncodeMetadata(r.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: encode metadata for %s: %w", r.ID, err)
		}
		var category any
		if c, ok := r.Metadata[knowledge.CategoryField].(string); ok && c != "" {
			category = c
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.Text, string(meta), category, encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("sqlite: upsert %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
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

	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	hits := make([]knowledge.RetrievedDocument, 0)
	for rows.Next() {
		var (
			doc  knowledge.RetrievedDocument
			meta string
			blob []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &meta, &blob); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		stored, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("sqlite: decode %s: %w", doc.ID, err)
		}
		if doc.Metadata, err = knowledge.DecodeMetadata([]byte(meta)); err != nil {
			return nil, fmt.Errorf("sqlite: metadata %s: %w", doc.ID, err)
		}
		doc.Distance = knowledge.CosineDistance(vector, stored)
		hits = append(hits, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate: %w", err)
	}

	knowledge.SortByDistance(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

func (s *Store) Categories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM documents WHERE category IS NOT NULL AND category != ''`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: categories: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("sqlite: scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate categories: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
