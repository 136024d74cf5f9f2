package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ent0n29/deadbot/internal/reliability"
)

func TestModelDimensions(t *testing.T) {
	cases := map[string]int{
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		"some-future-model":      1536,
	}
	for model, want := range cases {
		if got := (&Provider{model: model}).Dimensions(); got != want {
			t.Fatalf("Dimensions(%s) = %d, want %d", model, got, want)
		}
	}
}

func TestNewDefaultsModel(t *testing.T) {
	p, err := New(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.ModelID() != DefaultModel {
		t.Fatalf("ModelID() = %q, want %q", p.ModelID(), DefaultModel)
	}
}

func TestNewRejectsMissingAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("New() error = nil, want error for empty API key")
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Input) != 2 {
			http.Error(w, "want two inputs", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [
				{"object": "embedding", "index": 1, "embedding": [0, 1]},
				{"object": "embedding", "index": 0, "embedding": [1, 0]}
			],
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer ts.Close()

	p, err := New(Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1/"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	vecs, err := p.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Fatalf("Embed() = %v, want index-ordered vectors", vecs)
	}
}

func TestEmbedSurfacesStatusCode(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
	}))
	defer ts.Close()

	p, err := New(Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1/"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = p.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatalf("Embed() error = nil, want rate limit error")
	}
	if got := reliability.StatusCode(err); got != http.StatusTooManyRequests {
		t.Fatalf("StatusCode() = %d, want %d", got, http.StatusTooManyRequests)
	}
	if !reliability.IsRetryable(err) {
		t.Fatalf("IsRetryable() = false, want true for 429")
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	p := &Provider{model: DefaultModel}
	vecs, err := p.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("Embed(nil) = (%v, %v), want (nil, nil)", vecs, err)
	}
}
