// Package ingest runs the crawl-and-embed pipeline behind the knowledge API:
// discover well-known files, crawl pages, snapshot them, chunk the text,
// embed the chunks, and persist the vectors, reporting progress throughout.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kbforge/ingestd/internal/chunker"
	"github.com/kbforge/ingestd/internal/discovery"
	"github.com/kbforge/ingestd/internal/embedding"
	collyfetcher "github.com/kbforge/ingestd/internal/fetcher/colly"
	"github.com/kbforge/ingestd/internal/metrics"
	"github.com/kbforge/ingestd/internal/storage"
	"github.com/kbforge/ingestd/internal/storage/postgres"
	"github.com/kbforge/ingestd/internal/tracker"
)

// OperationTypeCrawl tags crawl operations in the tracker.
const OperationTypeCrawl = "crawl"

// Search precondition failures, surfaced so the HTTP layer can map them to
// client-error status codes.
var (
	ErrSearchUnavailable = errors.New("ingest: search is not configured")
	ErrEmptyQuery        = errors.New("ingest: query is required")
)

// Crawler walks a site and hands every fetched page to visit. Fetch grabs a
// single known URL, used for discovered description files that sit outside
// the link graph.
type Crawler interface {
	Fetch(ctx context.Context, rawURL string) (collyfetcher.Page, error)
	Crawl(ctx context.Context, startURL string, visit func(collyfetcher.Page) error) error
}

// ChunkWriter persists embedded chunks.
type ChunkWriter interface {
	InsertChunk(ctx context.Context, rec postgres.ChunkRecord) error
}

// ChunkSearcher finds chunks by embedding similarity.
type ChunkSearcher interface {
	Search(ctx context.Context, queryEmbedding []float32, limit int) ([]postgres.SearchResult, error)
}

// IDGenerator mints chunk row identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// CrawlRequest starts one crawl operation.
type CrawlRequest struct {
	URL string `json:"url"`
}

// Service orchestrates ingest operations.
type Service struct {
	tracker   *tracker.Tracker
	discovery *discovery.Service
	crawler   Crawler
	splitter  *chunker.Splitter
	embedder  embedding.Embedder
	chunks    ChunkWriter
	searcher  ChunkSearcher
	blobs     storage.BlobStore
	ids       IDGenerator
	provider  string
	log       *zap.Logger
}

// Config wires a Service.
type Config struct {
	// Provider labels embedding metrics; defaults to "openai".
	Provider string
	Tracker   *tracker.Tracker
	Discovery *discovery.Service
	Crawler   Crawler
	Splitter  *chunker.Splitter
	Embedder  embedding.Embedder
	Chunks    ChunkWriter
	Searcher  ChunkSearcher
	Blobs     storage.BlobStore
	IDs       IDGenerator
	Log       *zap.Logger
}

// New builds a Service. Tracker, Crawler, Splitter, Embedder, Chunks, and IDs
// are required; Blobs defaults to a discard store.
func New(cfg Config) (*Service, error) {
	if cfg.Tracker == nil || cfg.Crawler == nil || cfg.Splitter == nil ||
		cfg.Embedder == nil || cfg.Chunks == nil || cfg.IDs == nil {
		return nil, errors.New("ingest: tracker, crawler, splitter, embedder, chunks, and ids are required")
	}
	if cfg.Blobs == nil {
		cfg.Blobs = storage.Discard{}
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Provider == "" {
		cfg.Provider = string(embedding.ProviderOpenAI)
	}
	return &Service{
		tracker:   cfg.Tracker,
		discovery: cfg.Discovery,
		crawler:   cfg.Crawler,
		splitter:  cfg.Splitter,
		embedder:  cfg.Embedder,
		chunks:    cfg.Chunks,
		searcher:  cfg.Searcher,
		blobs:     cfg.Blobs,
		ids:       cfg.IDs,
		provider:  cfg.Provider,
		log:       cfg.Log,
	}, nil
}

// Crawl runs one crawl operation end to end, driving the tracker from
// starting through completed or error. It is meant to run in its own
// goroutine; the operation id is the caller's handle on it.
func (s *Service) Crawl(ctx context.Context, operationID string, req CrawlRequest) {
	if err := s.tracker.Start(ctx, operationID, OperationTypeCrawl, map[string]any{"url": req.URL}); err != nil {
		s.log.Error("failed to start crawl operation", zap.String("operation_id", operationID), zap.Error(err))
		return
	}
	metrics.SetActiveOperations(len(s.tracker.ListActive()))

	stats, err := s.runCrawl(ctx, operationID, req)
	if err != nil {
		s.tracker.Error(ctx, operationID, failureMessage(err))
		metrics.ObserveOperation(OperationTypeCrawl, string(tracker.StatusError))
		metrics.SetActiveOperations(len(s.tracker.ListActive()))
		return
	}

	s.tracker.Complete(ctx, operationID, map[string]any{
		"pages":  stats.pages,
		"chunks": stats.chunks,
	})
	metrics.ObserveOperation(OperationTypeCrawl, string(tracker.StatusCompleted))
	metrics.SetActiveOperations(len(s.tracker.ListActive()))
}

type crawlStats struct {
	pages  int
	chunks int
}

func (s *Service) runCrawl(ctx context.Context, operationID string, req CrawlRequest) (crawlStats, error) {
	var stats crawlStats

	s.progress(ctx, operationID, 5, "discovering site files", "")
	if s.discovery != nil {
		res := s.discovery.DiscoverAll(ctx, req.URL)
		s.tracker.Update(ctx, operationID, tracker.Update{
			Meta: map[string]any{"discovered_files": res.Total()},
		})
		for _, fileURL := range res.LLMFiles {
			page, err := s.crawler.Fetch(ctx, fileURL)
			if err != nil {
				s.log.Warn("fetch discovered file failed", zap.String("url", fileURL), zap.Error(err))
				continue
			}
			if err := s.ingestPage(ctx, operationID, page, &stats); err != nil {
				return stats, err
			}
			s.progress(ctx, operationID, 8, "ingesting discovered files",
				fmt.Sprintf("ingested %s (%d chunks)", fileURL, stats.chunks))
		}
	}

	s.progress(ctx, operationID, 10, "crawling pages", "")
	err := s.crawler.Crawl(ctx, req.URL, func(page collyfetcher.Page) error {
		if err := s.ingestPage(ctx, operationID, page, &stats); err != nil {
			return err
		}
		pct := 10 + min(stats.pages*2, 80)
		s.progress(ctx, operationID, pct, "processing pages",
			fmt.Sprintf("processed %s (%d chunks)", page.URL, stats.chunks))
		return nil
	})
	if err != nil {
		return stats, err
	}
	if stats.pages == 0 {
		return stats, fmt.Errorf("no pages fetched from %s", req.URL)
	}

	s.progress(ctx, operationID, 95, "finalizing", "")
	return stats, nil
}

func (s *Service) ingestPage(ctx context.Context, operationID string, page collyfetcher.Page, stats *crawlStats) error {
	stats.pages++
	metrics.ObservePage(page.URL, "success", len(page.Body))

	snapshotPath := fmt.Sprintf("%s/page-%04d.html", operationID, stats.pages)
	if _, err := s.blobs.PutObject(ctx, snapshotPath, page.ContentType, bytes.NewReader(page.Body)); err != nil {
		s.log.Warn("page snapshot failed", zap.String("url", page.URL), zap.Error(err))
	}

	text := page.Text
	if text == "" {
		text = string(page.Body)
	}
	pieces := s.splitter.Split(text)
	if len(pieces) == 0 {
		return nil
	}

	texts := make([]string, len(pieces))
	for i, c := range pieces {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		metrics.ObserveEmbedding(s.provider, "error", len(texts))
		return err
	}
	metrics.ObserveEmbedding(s.provider, "success", len(texts))

	for i, c := range pieces {
		id, err := s.ids.NewID()
		if err != nil {
			return fmt.Errorf("mint chunk id: %w", err)
		}
		rec := postgres.ChunkRecord{
			ID:          id,
			OperationID: operationID,
			SourceURL:   page.URL,
			ChunkIndex:  c.Index,
			Content:     c.Text,
			Embedding:   vectors[i],
		}
		if err := s.chunks.InsertChunk(ctx, rec); err != nil {
			return fmt.Errorf("persist chunk: %w", err)
		}
	}
	stats.chunks += len(pieces)
	metrics.ObserveChunks(page.URL, len(pieces))
	return nil
}

// Search embeds the query and returns the most similar stored chunks.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]postgres.SearchResult, error) {
	if s.searcher == nil {
		return nil, ErrSearchUnavailable
	}
	if query == "" {
		return nil, ErrEmptyQuery
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.searcher.Search(ctx, vec, limit)
}

func (s *Service) progress(ctx context.Context, operationID string, pct int, step, logLine string) {
	status := tracker.StatusRunning
	u := tracker.Update{
		Status:     &status,
		Percentage: &pct,
		Step:       &step,
	}
	if logLine != "" {
		u.Log = &logLine
	}
	s.tracker.Update(ctx, operationID, u)
}

// failureMessage keeps provider errors as-is (already sanitized at the
// adapter boundary) and wraps everything else.
func failureMessage(err error) string {
	var perr embedding.ProviderError
	if errors.As(err, &perr) {
		return perr.Error()
	}
	return err.Error()
}
