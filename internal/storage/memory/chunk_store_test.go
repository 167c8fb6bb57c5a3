package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbforge/ingestd/internal/storage/postgres"
)

func TestChunkStoreSearchOrdersBySimilarity(t *testing.T) {
	t.Parallel()

	store := NewChunkStore()
	ctx := context.Background()

	require.NoError(t, store.InsertChunk(ctx, postgres.ChunkRecord{
		ID: "aligned", SourceURL: "https://example.com/a", Content: "exact match",
		Embedding: []float32{1, 0},
	}))
	require.NoError(t, store.InsertChunk(ctx, postgres.ChunkRecord{
		ID: "orthogonal", SourceURL: "https://example.com/b", Content: "unrelated",
		Embedding: []float32{0, 1},
	}))
	require.NoError(t, store.InsertChunk(ctx, postgres.ChunkRecord{
		ID: "close", SourceURL: "https://example.com/c", Content: "near match",
		Embedding: []float32{1, 0.5},
	}))
	require.Equal(t, 3, store.Len())

	results, err := store.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "aligned", results[0].ID)
	require.Equal(t, "close", results[1].ID)
	require.InDelta(t, 1.0, results[0].Similarity, 1e-9)
}

func TestChunkStoreSearchDefaults(t *testing.T) {
	t.Parallel()

	store := NewChunkStore()
	ctx := context.Background()
	require.NoError(t, store.InsertChunk(ctx, postgres.ChunkRecord{ID: "only", Embedding: []float32{1}}))

	results, err := store.Search(ctx, []float32{1}, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	// Mismatched dimensions score zero instead of failing.
	results, err = store.Search(ctx, []float32{1, 2}, 5)
	require.NoError(t, err)
	require.Equal(t, float64(0), results[0].Similarity)
}

func TestChunkStoreCopiesEmbedding(t *testing.T) {
	t.Parallel()

	store := NewChunkStore()
	ctx := context.Background()
	vec := []float32{1, 0}
	require.NoError(t, store.InsertChunk(ctx, postgres.ChunkRecord{ID: "c", Embedding: vec}))
	vec[0] = 0

	results, err := store.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.InDelta(t, 1.0, results[0].Similarity, 1e-9)
}
