package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func TestInsertChunkInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewChunkStoreWithPool(mock, "document_chunks", 1536)
	require.NoError(t, err)

	rec := ChunkRecord{
		ID:          "uuid-v7",
		OperationID: "op-1",
		SourceURL:   "https://example.com/docs",
		ChunkIndex:  3,
		Content:     "chunk text",
		Embedding:   []float32{0.5, -0.25},
	}

	mock.ExpectExec("INSERT INTO document_chunks").
		WithArgs(
			rec.ID,
			rec.OperationID,
			rec.SourceURL,
			rec.ChunkIndex,
			rec.Content,
			"[0.5,-0.25]",
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertChunk(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertChunkValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewChunkStoreWithPool(mock, "", 1536)
	require.NoError(t, err)

	err = store.InsertChunk(context.Background(), ChunkRecord{Embedding: []float32{1}})
	require.Error(t, err)

	err = store.InsertChunk(context.Background(), ChunkRecord{ID: "x"})
	require.Error(t, err)
}

func TestSearchReturnsOrderedResults(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewChunkStoreWithPool(mock, "document_chunks", 768)
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"id", "source_url", "content", "similarity"}).
		AddRow("c1", "https://example.com/a", "first", 0.92).
		AddRow("c2", "https://example.com/b", "second", 0.81)

	mock.ExpectQuery("SELECT id, source_url, content").
		WithArgs("[1,0]", 5).
		WillReturnRows(rows)

	results, err := store.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "c1", results[0].ID)
	require.Equal(t, 0.92, results[0].Similarity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkStoreRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewChunkStoreWithPool(mock, "chunks; drop table users", 1536)
	require.Error(t, err)
}

func TestVectorLiteral(t *testing.T) {
	t.Parallel()

	require.Equal(t, "[0.5,-0.25,1]", vectorLiteral([]float32{0.5, -0.25, 1}))
	require.Equal(t, "[]", vectorLiteral(nil))
}
