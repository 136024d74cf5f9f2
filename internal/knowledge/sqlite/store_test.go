package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/deadbot/internal/embedding/hashing"
	"github.com/ent0n29/deadbot/internal/knowledge"
)

func openTemp(t *testing.T, dims int) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb", "knowledge.db")
	s, err := Open(context.Background(), path, dims)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestStoreRoundTripsRecords(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, 3)

	records := []knowledge.Record{
		{ID: "a", Text: "Dark Star", Metadata: map[string]any{"category": "songs", "year": int64(1969)}},
		{ID: "b", Text: "Cornell 77", Metadata: map[string]any{"category": "shows", "rating": 4.5}},
		{ID: "c", Text: "No category"},
	}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	require.NoError(t, s.Upsert(ctx, records, vectors))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	hits, err := s.Query(ctx, []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "Dark Star", hits[0].Text)
	assert.Equal(t, "songs", hits[0].Metadata["category"])
	assert.Equal(t, int64(1969), hits[0].Metadata["year"])
	assert.Equal(t, "b", hits[1].ID)
	assert.Equal(t, 4.5, hits[1].Metadata["rating"])
	assert.Less(t, hits[0].Distance, hits[1].Distance)

	cats, err := s.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"shows", "songs"}, cats)
}

func TestStoreUpsertReplacesExistingID(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, 2)

	require.NoError(t, s.Upsert(ctx, []knowledge.Record{{ID: "x", Text: "old"}}, [][]float32{{1, 0}}))
	require.NoError(t, s.Upsert(ctx, []knowledge.Record{{ID: "x", Text: "new"}}, [][]float32{{0, 1}}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := s.Query(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Text)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	embedder := hashing.New(32)
	s, path := openTemp(t, embedder.Dimensions())

	ingestor := knowledge.NewIngestor(embedder, s, nil)
	_, err := ingestor.Ingest(ctx, knowledge.SeedDocuments())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path, embedder.Dimensions())
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(knowledge.SeedDocuments()), n)

	target := knowledge.SeedDocuments()[1]["content"].(string)
	hits := knowledge.NewRetriever(embedder, reopened, nil, nil).Search(ctx, target, 3)
	require.NotEmpty(t, hits)
	assert.Equal(t, knowledge.RecordID(target, 1), hits[0].ID)
}

func TestOpenRejectsDifferentDimensions(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t, 4)
	require.NoError(t, s.Close())

	_, err := Open(ctx, path, 8)
	assert.ErrorIs(t, err, knowledge.ErrDimensionMismatch)
}

func TestStoreRejectsWrongWidthVectors(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t, 3)

	err := s.Upsert(ctx, []knowledge.Record{{ID: "a", Text: "a"}}, [][]float32{{1, 2}})
	assert.ErrorIs(t, err, knowledge.ErrDimensionMismatch)

	_, err = s.Query(ctx, []float32{1}, 1)
	assert.ErrorIs(t, err, knowledge.ErrDimensionMismatch)
}

func TestEmptyStoreQueryReturnsEmpty(t *testing.T) {
	s, _ := openTemp(t, 3)
	hits, err := s.Query(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
