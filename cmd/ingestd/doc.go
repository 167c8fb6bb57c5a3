// Package main hosts the ingestion service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, progress polling,
//     and knowledge endpoints. Crawl submissions are validated, assigned an
//     operation ID, and handed to the ingest pipeline on a detached context.
//   - Progress tracking: internal/tracker keeps operation state in memory with
//     a bounded log window per operation. Completed operations linger for a
//     grace period so late pollers still see the final state, then get purged.
//     Push events are mirrored to the configured notifier (memory or Pub/Sub).
//   - Ingest pipeline: internal/ingest discovers site description files
//     (robots.txt sitemaps, llms.txt variants), walks pages with the
//     Colly-based fetcher, splits page text into overlapping chunks, embeds
//     them through the configured provider, and persists chunk rows plus raw
//     page snapshots.
//   - Persistence: chunk rows with pgvector embeddings land in Postgres when a
//     DSN is configured, otherwise in a brute-force in-memory store. Raw HTML
//     snapshots go to the configured BlobStore (memory/local/GCS).
//   - Provider errors: embedding failures are classified into a closed
//     taxonomy, scrubbed of credentials and internal detail, and mapped to
//     stable HTTP error shapes by the API layer.
//   - Configuration & plumbing: Viper populates config from env/files; zap
//     provides structured logging; Prometheus metrics are exported via the
//     metrics middleware and /metrics handler.
//
// Operational notes:
//   - Concurrency model: each crawl runs in its own goroutine; the tracker is
//     safe for concurrent mutation and polling. Shutdown is coordinated via
//     context cancellation from main.
//   - Observability: zap logs carry operation IDs at key transitions;
//     Prometheus counters/histograms track page, chunk, embedding, and HTTP
//     activity. Tracing is not yet wired in.
//
// Quick checklist:
//   - Configure env vars: INGESTD_SERVER_PORT, INGESTD_EMBEDDING_PROVIDER,
//     INGESTD_EMBEDDING_API_KEY, INGESTD_DB_DSN, storage (INGESTD_STORAGE_*),
//     and pubsub settings when push notifications are required.
//   - Run locally: go run ./cmd/ingestd -config config.yaml (or rely solely
//     on env overrides).
package main
