package postgres

import (
	"context"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/deadbot/internal/embedding/hashing"
	"github.com/ent0n29/deadbot/internal/knowledge"
)

func TestSchemaStatementsUseConfiguredDimensions(t *testing.T) {
	stmts := schemaStatements(384)
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[1], "vector(384)")
	assert.True(t, strings.Contains(stmts[2], "hnsw") && strings.Contains(stmts[2], "vector_cosine_ops"))
}

func TestClampDistance(t *testing.T) {
	assert.Equal(t, 1.0, clampDistance(math.NaN()))
	assert.Equal(t, 0.0, clampDistance(-1e-9))
	assert.Equal(t, 2.0, clampDistance(2.0000001))
	assert.Equal(t, 0.25, clampDistance(0.25))
}

// Runs against a live database when DEADBOT_TEST_DATABASE_URL is set.
func TestStoreAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("DEADBOT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DEADBOT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	embedder := hashing.New(64)

	s, err := NewStore(ctx, dsn, embedder.Dimensions())
	require.NoError(t, err)
	defer s.Close()
	_, err = s.pool.Exec(ctx, `TRUNCATE knowledge_documents`)
	require.NoError(t, err)

	_, err = knowledge.NewIngestor(embedder, s, nil).Ingest(ctx, knowledge.SeedDocuments())
	require.NoError(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(knowledge.SeedDocuments()), n)

	target := knowledge.SeedDocuments()[0]["content"].(string)
	hits := knowledge.NewRetriever(embedder, s, nil, nil).Search(ctx, target, 3)
	require.Len(t, hits, 3)
	assert.Equal(t, knowledge.RecordID(target, 0), hits[0].ID)
	assert.Equal(t, "Jerry Garcia", hits[0].Metadata["person"])

	cats, err := s.Categories(ctx)
	require.NoError(t, err)
	assert.Contains(t, cats, "songs")
}
