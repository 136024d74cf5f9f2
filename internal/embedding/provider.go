// Package embedding defines the text-to-vector boundary used for both
// indexing and querying the knowledge base.
package embedding

import "context"

// Provider maps texts to fixed-length vectors. Implementations return exactly
// one vector per input text, in input order, and must be deterministic for a
// given model.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelID() string
}
