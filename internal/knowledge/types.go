package knowledge

import (
	"context"
	"errors"
)

// ContentField is the document key holding the text to embed.
const ContentField = "content"

// CategoryField is the metadata key used for knowledge base statistics.
const CategoryField = "category"

var (
	ErrInvalidDocument   = errors.New("invalid document")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Document is a raw ingestion input: a content string plus arbitrary fields.
type Document map[string]any

// Record is an indexed knowledge entry. Metadata never contains the content
// field and only holds scalar values (string, bool, int64, float64).
type Record struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// RetrievedDocument is one nearest-neighbour hit. Distance is cosine
// distance, >= 0, smaller is closer.
type RetrievedDocument struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Distance float64        `json:"distance"`
}

// Store persists records with their vectors and answers k-nearest-neighbour
// queries, nearest first.
type Store interface {
	Upsert(ctx context.Context, records []Record, vectors [][]float32) error
	Query(ctx context.Context, vector []float32, k int) ([]RetrievedDocument, error)
	Count(ctx context.Context) (int, error)
	// Categories returns the distinct category metadata values, sorted.
	Categories(ctx context.Context) ([]string, error)
	Close() error
}
