// Package discovery probes websites for well-known files that improve crawl
// quality: llms.txt variants, sitemaps, and metadata files. File lists come
// from the settings store with hardcoded fallbacks.
package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kbforge/ingestd/internal/credstore"
)

// Settings keys for the discoverable file lists.
const (
	SettingLLMFiles      = "CRAWL_DISCOVERY_LLM_FILES"
	SettingSitemapFiles  = "CRAWL_DISCOVERY_SITEMAP_FILES"
	SettingMetadataFiles = "CRAWL_DISCOVERY_METADATA_FILES"
)

// fallbackDefaults apply when the settings store is unreachable or a key is
// absent or malformed. LLM files are ordered by priority, best first.
var fallbackDefaults = map[string][]string{
	SettingLLMFiles:      {"llms-full.txt", "llms-ctx.txt", "llms.md", "llms.txt"},
	SettingSitemapFiles:  {"sitemap.xml", "sitemap_index.xml", "sitemap-*.xml"},
	SettingMetadataFiles: {"robots.txt", ".well-known/security.txt", ".well-known/humans.txt", "humans.txt", "security.txt"},
}

var sitemapDirective = regexp.MustCompile(`(?im)^sitemap:\s*(.+)$`)

// maxRobotsBody caps how much of robots.txt is read.
const maxRobotsBody = 1 << 20

const defaultTimeout = 10 * time.Second

// Result groups discovered file URLs by category.
type Result struct {
	RobotsSitemaps []string `json:"robots_sitemaps"`
	LLMFiles       []string `json:"llm_files"`
	SitemapFiles   []string `json:"sitemap_files"`
	MetadataFiles  []string `json:"metadata_files"`
}

// Total returns how many files were discovered across all categories.
func (r Result) Total() int {
	return len(r.RobotsSitemaps) + len(r.LLMFiles) + len(r.SitemapFiles) + len(r.MetadataFiles)
}

// Service probes a site for discoverable files. Probe failures are treated as
// absence, never as errors: discovery is advisory.
type Service struct {
	client   *http.Client
	settings credstore.Store
	log      *zap.Logger
}

// New builds a Service. client and log may be nil; settings may be nil when
// only fallback defaults are wanted.
func New(client *http.Client, settings credstore.Store, log *zap.Logger) *Service {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{client: client, settings: settings, log: log}
}

// DiscoverAll runs every discovery method concurrently.
func (s *Service) DiscoverAll(ctx context.Context, baseURL string) Result {
	var res Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.RobotsSitemaps = s.DiscoverRobotsSitemaps(gctx, baseURL)
		return nil
	})
	g.Go(func() error {
		res.LLMFiles = s.DiscoverLLMFiles(gctx, baseURL)
		return nil
	})
	g.Go(func() error {
		res.SitemapFiles = s.DiscoverSitemapFiles(gctx, baseURL)
		return nil
	})
	g.Go(func() error {
		res.MetadataFiles = s.DiscoverMetadataFiles(gctx, baseURL)
		return nil
	})
	_ = g.Wait()

	s.log.Info("file discovery completed",
		zap.String("base_url", baseURL),
		zap.Int("discovered", res.Total()),
	)
	return res
}

// DiscoverRobotsSitemaps extracts Sitemap directives from robots.txt.
// Relative sitemap URLs are resolved against baseURL.
func (s *Service) DiscoverRobotsSitemaps(ctx context.Context, baseURL string) []string {
	robotsURL := joinPath(baseURL, "robots.txt")
	if robotsURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug("robots.txt fetch failed", zap.String("url", robotsURL), zap.Error(err))
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
	if err != nil {
		return nil
	}

	var sitemaps []string
	for _, m := range sitemapDirective.FindAllStringSubmatch(string(body), -1) {
		target := strings.TrimSpace(m[1])
		if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
			target = joinPath(baseURL, target)
		}
		if target != "" {
			sitemaps = append(sitemaps, target)
		}
	}
	if len(sitemaps) > 0 {
		s.log.Info("sitemaps found in robots.txt",
			zap.String("base_url", baseURL),
			zap.Int("count", len(sitemaps)),
		)
	}
	return sitemaps
}

// DiscoverLLMFiles probes the configured llms.txt variants in priority order
// and returns only the best one found.
func (s *Service) DiscoverLLMFiles(ctx context.Context, baseURL string) []string {
	for _, pattern := range s.fileList(ctx, SettingLLMFiles) {
		if strings.Contains(pattern, "*") {
			continue
		}
		fileURL := joinPath(baseURL, pattern)
		if fileURL != "" && s.exists(ctx, fileURL) {
			s.log.Info("llm file discovered", zap.String("url", fileURL))
			return []string{fileURL}
		}
	}
	return nil
}

// DiscoverSitemapFiles probes the configured sitemap patterns. The
// "sitemap-*.xml" wildcard expands to sitemap-1.xml through sitemap-5.xml.
func (s *Service) DiscoverSitemapFiles(ctx context.Context, baseURL string) []string {
	var found []string
	for _, pattern := range s.fileList(ctx, SettingSitemapFiles) {
		if strings.Contains(pattern, "*") {
			if pattern != "sitemap-*.xml" {
				continue
			}
			for i := 1; i <= 5; i++ {
				fileURL := joinPath(baseURL, fmt.Sprintf("sitemap-%d.xml", i))
				if fileURL != "" && s.exists(ctx, fileURL) {
					found = append(found, fileURL)
				}
			}
			continue
		}
		fileURL := joinPath(baseURL, pattern)
		if fileURL != "" && s.exists(ctx, fileURL) {
			found = append(found, fileURL)
		}
	}
	return found
}

// DiscoverMetadataFiles probes the configured metadata file list.
func (s *Service) DiscoverMetadataFiles(ctx context.Context, baseURL string) []string {
	var found []string
	for _, pattern := range s.fileList(ctx, SettingMetadataFiles) {
		fileURL := joinPath(baseURL, pattern)
		if fileURL != "" && s.exists(ctx, fileURL) {
			found = append(found, fileURL)
		}
	}
	return found
}

// fileList loads a file list from the settings store, falling back to the
// hardcoded defaults when the key is absent or its value is not a JSON list.
func (s *Service) fileList(ctx context.Context, key string) []string {
	if s.settings == nil {
		return fallbackDefaults[key]
	}
	var files []string
	ok, err := credstore.GetJSON(ctx, s.settings, key, &files)
	if err != nil {
		s.log.Warn("malformed discovery setting, using defaults", zap.String("key", key), zap.Error(err))
		return fallbackDefaults[key]
	}
	if !ok {
		return fallbackDefaults[key]
	}
	return files
}

// exists probes a URL with HEAD and treats any 2xx as present.
func (s *Service) exists(ctx context.Context, fileURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fileURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug("file probe failed", zap.String("url", fileURL), zap.Error(err))
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func joinPath(baseURL, file string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	ref := &url.URL{Path: "/" + strings.TrimLeft(file, "/")}
	return u.ResolveReference(ref).String()
}
