package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/kbforge/ingestd/internal/storage/postgres"
)

// ChunkStore keeps embedded chunks in memory with brute-force similarity
// search. It backs development and test deployments without a database.
type ChunkStore struct {
	mu      sync.RWMutex
	records []postgres.ChunkRecord
}

// NewChunkStore creates an empty in-memory chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{}
}

// InsertChunk appends a chunk record.
func (s *ChunkStore) InsertChunk(_ context.Context, rec postgres.ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Embedding = append([]float32(nil), rec.Embedding...)
	s.records = append(s.records, rec)
	return nil
}

// Search returns the stored chunks most similar to the query embedding,
// ordered by descending cosine similarity.
func (s *ChunkStore) Search(_ context.Context, queryEmbedding []float32, limit int) ([]postgres.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]postgres.SearchResult, 0, len(s.records))
	for _, rec := range s.records {
		results = append(results, postgres.SearchResult{
			ID:         rec.ID,
			SourceURL:  rec.SourceURL,
			Content:    rec.Content,
			Similarity: cosineSimilarity(queryEmbedding, rec.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Len reports the number of stored chunks.
func (s *ChunkStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
