package knowledge

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/ent0n29/deadbot/internal/embedding"
	"github.com/ent0n29/deadbot/internal/reliability"
)

// DefaultTopK is the number of documents retrieved per question.
const DefaultTopK = 5

// Observer receives retrieval timings and failures. *observability.Metrics
// satisfies it.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveProviderError(provider, code string)
}

// Retriever embeds a question and looks up its nearest documents.
type Retriever struct {
	embedder embedding.Provider
	store    Store
	logger   *slog.Logger
	observer Observer
}

func NewRetriever(embedder embedding.Provider, store Store, logger *slog.Logger, observer Observer) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, store: store, logger: logger, observer: observer}
}

// Search returns up to k documents nearest to query, closest first. k <= 0
// selects DefaultTopK. Failures never propagate: the caller gets an empty
// slice and the conversation continues without context.
func (r *Retriever) Search(ctx context.Context, query string, k int) []RetrievedDocument {
	if k <= 0 {
		k = DefaultTopK
	}
	start := time.Now()
	defer func() {
		if r.observer != nil {
			r.observer.ObserveStage("retrieval", time.Since(start))
		}
	}()

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		r.fail("embedding", err)
		return []RetrievedDocument{}
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		r.logger.Warn("retrieval skipped: empty query embedding")
		return []RetrievedDocument{}
	}

	docs, err := r.store.Query(ctx, vecs[0], k)
	if err != nil {
		r.fail("vector_store", err)
		return []RetrievedDocument{}
	}
	if len(docs) > k {
		docs = docs[:k]
	}
	if docs == nil {
		docs = []RetrievedDocument{}
	}
	return docs
}

func (r *Retriever) fail(provider string, err error) {
	r.logger.Warn("retrieval degraded to empty context", "provider", provider, "err", err)
	if r.observer != nil {
		r.observer.ObserveProviderError(provider, errorCode(err))
	}
}

func errorCode(err error) string {
	if code := reliability.StatusCode(err); code != 0 {
		return "http_" + strconv.Itoa(code)
	}
	if !reliability.IsRetryable(err) {
		return "canceled"
	}
	return "error"
}
