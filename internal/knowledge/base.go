package knowledge

import "context"

// Base bundles a store with its ingestor for callers that manage the
// knowledge base as a whole (HTTP handlers, the ingest CLI).
type Base struct {
	store    Store
	ingestor *Ingestor
}

func NewBase(store Store, ingestor *Ingestor) *Base {
	return &Base{store: store, ingestor: ingestor}
}

func (b *Base) Ingest(ctx context.Context, docs []Document) (int, error) {
	return b.ingestor.Ingest(ctx, docs)
}

func (b *Base) Count(ctx context.Context) (int, error) {
	return b.store.Count(ctx)
}

func (b *Base) Categories(ctx context.Context) ([]string, error) {
	return b.store.Categories(ctx)
}

// SeedIfEmpty ingests docs into an empty knowledge base.
func (b *Base) SeedIfEmpty(ctx context.Context, docs []Document) (bool, error) {
	return SeedIfEmpty(ctx, b.store, b.ingestor, docs)
}
