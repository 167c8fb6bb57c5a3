// Package main wires together the ingestion service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kbforge/ingestd/internal/api"
	"github.com/kbforge/ingestd/internal/chunker"
	"github.com/kbforge/ingestd/internal/clock/system"
	"github.com/kbforge/ingestd/internal/config"
	"github.com/kbforge/ingestd/internal/credstore"
	"github.com/kbforge/ingestd/internal/discovery"
	"github.com/kbforge/ingestd/internal/embedding"
	collyfetcher "github.com/kbforge/ingestd/internal/fetcher/colly"
	"github.com/kbforge/ingestd/internal/id/uuid"
	"github.com/kbforge/ingestd/internal/ingest"
	"github.com/kbforge/ingestd/internal/logging"
	"github.com/kbforge/ingestd/internal/metrics"
	memorynotify "github.com/kbforge/ingestd/internal/notify/memory"
	pubsubnotify "github.com/kbforge/ingestd/internal/notify/pubsub"
	"github.com/kbforge/ingestd/internal/storage"
	gcsstorage "github.com/kbforge/ingestd/internal/storage/gcs"
	localstorage "github.com/kbforge/ingestd/internal/storage/local"
	memorystorage "github.com/kbforge/ingestd/internal/storage/memory"
	"github.com/kbforge/ingestd/internal/storage/postgres"
	"github.com/kbforge/ingestd/internal/tracker"
)

const staleOperationAge = 24 * time.Hour

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, stop); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, stop func()) error {
	clk := system.New()
	sched := system.NewScheduler()
	idGen := uuid.New()

	var notifier tracker.Notifier
	if cfg.PubSub.Enabled {
		pubsubNotifier, cleanup, err := pubsubnotify.Open(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
		if err != nil {
			return fmt.Errorf("open pubsub notifier: %w", err)
		}
		defer cleanup()
		notifier = pubsubNotifier
	} else {
		notifier = memorynotify.New()
	}

	trk := tracker.New(clk, sched, notifier, logger.Named("tracker"))

	settings, chunkWriter, searcher, closeDB, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	blobs, closeBlobs, err := openBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBlobs()

	embedder, err := embedding.NewClient(embedding.ClientConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey,
		BaseURL:  cfg.Embedding.BaseURL,
	}, logger.Named("embedding"))
	if err != nil {
		return fmt.Errorf("init embedding client: %w", err)
	}

	splitter, err := chunker.New(cfg.Chunker.MaxSize, cfg.Chunker.Overlap)
	if err != nil {
		return fmt.Errorf("init chunker: %w", err)
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.CrawlTimeout(),
		MaxPages:      cfg.Crawler.MaxPages,
		MaxDepth:      cfg.Crawler.MaxDepth,
	})

	disc := discovery.New(
		&http.Client{Timeout: cfg.CrawlTimeout()},
		settings,
		logger.Named("discovery"),
	)

	svc, err := ingest.New(ingest.Config{
		Provider:  cfg.Embedding.Provider,
		Tracker:   trk,
		Discovery: disc,
		Crawler:   fetcher,
		Splitter:  splitter,
		Embedder:  embedder,
		Chunks:    chunkWriter,
		Searcher:  searcher,
		Blobs:     blobs,
		IDs:       idGen,
		Log:       logger.Named("ingest"),
	})
	if err != nil {
		return fmt.Errorf("init ingest service: %w", err)
	}

	apiServer := api.NewServer(trk, svc, idGen, clk, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go sweepStaleOperations(ctx, trk)

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

// openStores selects database-backed stores when a DSN is configured and
// memory stores otherwise.
func openStores(ctx context.Context, cfg config.Config) (credstore.Store, ingest.ChunkWriter, ingest.ChunkSearcher, func(), error) {
	if cfg.DB.DSN == "" {
		chunks := memorystorage.NewChunkStore()
		return credstore.NewMemory(nil), chunks, chunks, func() {}, nil
	}

	settings, err := credstore.NewPostgres(ctx, credstore.PostgresConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.SettingsTable,
		MaxConns: int32(cfg.DB.MaxConns),
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open settings store: %w", err)
	}

	chunks, err := postgres.NewChunkStore(ctx, postgres.ChunkStoreConfig{
		DSN:       cfg.DB.DSN,
		Table:     cfg.DB.ChunksTable,
		Dimension: cfg.Embedding.Dimension,
		MaxConns:  int32(cfg.DB.MaxConns),
	})
	if err != nil {
		settings.Close()
		return nil, nil, nil, nil, fmt.Errorf("open chunk store: %w", err)
	}

	closeAll := func() {
		chunks.Close()
		settings.Close()
	}
	return settings, chunks, chunks, closeAll, nil
}

func openBlobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.BlobStore, func(), error) {
	switch cfg.Storage.Backend {
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, nil, fmt.Errorf("open local blob store: %w", err)
		}
		return store, func() {}, nil
	case "gcs":
		store, err := gcsstorage.New(ctx, cfg.Storage.GCSBucket, logger.Named("gcs"))
		if err != nil {
			return nil, nil, fmt.Errorf("open gcs blob store: %w", err)
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("close gcs blob store", zap.Error(err))
			}
		}, nil
	default:
		return memorystorage.NewBlobStore(), func() {}, nil
	}
}

// sweepStaleOperations drops operation records older than staleOperationAge,
// such as errored operations nobody polled again.
func sweepStaleOperations(ctx context.Context, trk *tracker.Tracker) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trk.SweepStale(staleOperationAge)
			metrics.SetActiveOperations(len(trk.ListActive()))
		}
	}
}
