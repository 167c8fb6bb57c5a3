package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kbforge/ingestd/internal/credstore"
)

func newSite(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDiscoverRobotsSitemaps(t *testing.T) {
	srv := newSite(t, map[string]string{
		"/robots.txt": "User-agent: *\nDisallow: /admin\nSitemap: https://cdn.example.com/sitemap.xml\nSITEMAP: /local-sitemap.xml\n",
	})
	svc := New(srv.Client(), nil, zap.NewNop())

	sitemaps := svc.DiscoverRobotsSitemaps(context.Background(), srv.URL)
	require.Equal(t, []string{
		"https://cdn.example.com/sitemap.xml",
		srv.URL + "/local-sitemap.xml",
	}, sitemaps)
}

func TestDiscoverRobotsSitemapsMissingRobots(t *testing.T) {
	srv := newSite(t, nil)
	svc := New(srv.Client(), nil, zap.NewNop())

	require.Empty(t, svc.DiscoverRobotsSitemaps(context.Background(), srv.URL))
}

func TestDiscoverLLMFilesReturnsBestOnly(t *testing.T) {
	srv := newSite(t, map[string]string{
		"/llms-full.txt": "full",
		"/llms.txt":      "short",
	})
	svc := New(srv.Client(), nil, zap.NewNop())

	files := svc.DiscoverLLMFiles(context.Background(), srv.URL)
	require.Equal(t, []string{srv.URL + "/llms-full.txt"}, files)
}

func TestDiscoverLLMFilesLowerPriorityFallback(t *testing.T) {
	srv := newSite(t, map[string]string{
		"/llms.txt": "short",
	})
	svc := New(srv.Client(), nil, zap.NewNop())

	files := svc.DiscoverLLMFiles(context.Background(), srv.URL)
	require.Equal(t, []string{srv.URL + "/llms.txt"}, files)
}

func TestDiscoverLLMFilesNoneFound(t *testing.T) {
	srv := newSite(t, nil)
	svc := New(srv.Client(), nil, zap.NewNop())

	require.Empty(t, svc.DiscoverLLMFiles(context.Background(), srv.URL))
}

func TestDiscoverSitemapFilesWithWildcard(t *testing.T) {
	srv := newSite(t, map[string]string{
		"/sitemap.xml":   "<urlset/>",
		"/sitemap-1.xml": "<urlset/>",
		"/sitemap-2.xml": "<urlset/>",
	})
	svc := New(srv.Client(), nil, zap.NewNop())

	files := svc.DiscoverSitemapFiles(context.Background(), srv.URL)
	require.Equal(t, []string{
		srv.URL + "/sitemap.xml",
		srv.URL + "/sitemap-1.xml",
		srv.URL + "/sitemap-2.xml",
	}, files)
}

func TestDiscoverMetadataFiles(t *testing.T) {
	srv := newSite(t, map[string]string{
		"/robots.txt": "User-agent: *",
		"/humans.txt": "team",
	})
	svc := New(srv.Client(), nil, zap.NewNop())

	files := svc.DiscoverMetadataFiles(context.Background(), srv.URL)
	require.Equal(t, []string{
		srv.URL + "/robots.txt",
		srv.URL + "/humans.txt",
	}, files)
}

func TestFileListFromSettings(t *testing.T) {
	srv := newSite(t, map[string]string{
		"/custom.txt": "custom",
		"/llms.txt":   "ignored",
	})
	settings := credstore.NewMemory(map[string]string{
		SettingLLMFiles: `["custom.txt"]`,
	})
	svc := New(srv.Client(), settings, zap.NewNop())

	files := svc.DiscoverLLMFiles(context.Background(), srv.URL)
	require.Equal(t, []string{srv.URL + "/custom.txt"}, files)
}

func TestFileListMalformedSettingUsesDefaults(t *testing.T) {
	srv := newSite(t, map[string]string{
		"/llms.txt": "short",
	})
	settings := credstore.NewMemory(map[string]string{
		SettingLLMFiles: `{not json`,
	})
	svc := New(srv.Client(), settings, zap.NewNop())

	files := svc.DiscoverLLMFiles(context.Background(), srv.URL)
	require.Equal(t, []string{srv.URL + "/llms.txt"}, files)
}

func TestDiscoverAll(t *testing.T) {
	srv := newSite(t, map[string]string{
		"/robots.txt":  "Sitemap: /from-robots.xml",
		"/llms.txt":    "short",
		"/sitemap.xml": "<urlset/>",
		"/humans.txt":  "team",
	})
	svc := New(srv.Client(), nil, zap.NewNop())

	res := svc.DiscoverAll(context.Background(), srv.URL)
	require.Equal(t, []string{srv.URL + "/from-robots.xml"}, res.RobotsSitemaps)
	require.Equal(t, []string{srv.URL + "/llms.txt"}, res.LLMFiles)
	require.Equal(t, []string{srv.URL + "/sitemap.xml"}, res.SitemapFiles)
	require.Equal(t, []string{srv.URL + "/robots.txt", srv.URL + "/humans.txt"}, res.MetadataFiles)
	require.Equal(t, 5, res.Total())
}
