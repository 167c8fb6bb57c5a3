// Package postgres provides Postgres-backed persistence for embedded chunks.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kbforge/ingestd/internal/embedding"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ChunkStoreConfig controls the Postgres connection pool used for chunk rows.
type ChunkStoreConfig struct {
	DSN             string
	Table           string
	Dimension       int
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// ChunkRecord is one embedded chunk ready for persistence.
type ChunkRecord struct {
	ID          string
	OperationID string
	SourceURL   string
	ChunkIndex  int
	Content     string
	Embedding   []float32
}

// SearchResult is one similarity hit.
type SearchResult struct {
	ID         string  `json:"id"`
	SourceURL  string  `json:"source_url"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// ChunkStore writes and searches embedded chunks in Postgres. The vector
// column is picked per the configured embedding dimension.
type ChunkStore struct {
	pool   querier
	table  string
	column string
}

// NewChunkStore creates a Postgres-backed ChunkStore using the provided config.
func NewChunkStore(ctx context.Context, cfg ChunkStoreConfig) (*ChunkStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "document_chunks"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ChunkStore{
		pool:   pool,
		table:  table,
		column: embedding.ColumnForDimension(cfg.Dimension),
	}, nil
}

// NewChunkStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewChunkStoreWithPool(pool querier, table string, dimension int) (*ChunkStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "document_chunks"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ChunkStore{
		pool:   pool,
		table:  table,
		column: embedding.ColumnForDimension(dimension),
	}, nil
}

// Close releases the underlying pool resources.
func (s *ChunkStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InsertChunk inserts one embedded chunk row.
func (s *ChunkStore) InsertChunk(ctx context.Context, rec ChunkRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("chunk store is not configured")
	}
	if rec.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("record embedding is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	operation_id,
	source_url,
	chunk_index,
	content,
	%s
) VALUES ($1, $2, $3, $4, $5, $6::vector)`, s.table, s.column)

	_, err := s.pool.Exec(ctx, query,
		rec.ID,
		rec.OperationID,
		rec.SourceURL,
		rec.ChunkIndex,
		rec.Content,
		vectorLiteral(rec.Embedding),
	)
	if err != nil {
		return fmt.Errorf("insert chunk %s: %w", rec.ID, err)
	}
	return nil
}

// Search returns up to limit chunks ordered by cosine similarity to the
// query embedding, best match first.
func (s *ChunkStore) Search(ctx context.Context, queryEmbedding []float32, limit int) ([]SearchResult, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("chunk store is not configured")
	}
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`
SELECT id, source_url, content, 1 - (%s <=> $1::vector) AS similarity
FROM %s
WHERE %s IS NOT NULL
ORDER BY %s <=> $1::vector
LIMIT $2`, s.column, s.table, s.column, s.column)

	rows, err := s.pool.Query(ctx, query, vectorLiteral(queryEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.SourceURL, &r.Content, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

// vectorLiteral renders an embedding in pgvector's text format.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
