// Package hashing implements an offline embedding provider based on signed
// feature hashing of word tokens. It needs no network or model files, is
// fully deterministic and is used for local development and tests.
package hashing

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/ent0n29/deadbot/internal/embedding"
)

// DefaultDimensions matches the width of the MiniLM sentence embeddings the
// knowledge base was originally built with.
const DefaultDimensions = 384

var tokenRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "to": {}, "was": {}, "were": {}, "with": {},
}

// Provider is safe for concurrent use.
type Provider struct {
	dims int
}

var _ embedding.Provider = (*Provider)(nil)

func New(dims int) *Provider {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Provider{dims: dims}
}

func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

func (p *Provider) Dimensions() int { return p.dims }

func (p *Provider) ModelID() string { return fmt.Sprintf("feature-hash-%d", p.dims) }

func (p *Provider) vector(text string) []float32 {
	vec := make([]float64, p.dims)
	tokens := Tokenize(text)
	for i, tok := range tokens {
		p.add(vec, tok, 1)
		if i > 0 {
			// Bigrams give word order a small say in similarity.
			p.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, p.dims)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (p *Provider) add(vec []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := h % uint64(p.dims)
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// Tokenize lowercases text and splits it into word and number tokens,
// dropping common English stopwords.
func Tokenize(text string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		tok = strings.ReplaceAll(tok, "’", "'")
		if _, stop := stopwords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}
