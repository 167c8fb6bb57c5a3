package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if ingestPagesTotal == nil || embeddingRequestsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObservePage("http://test.com/doc", "success", 1024)
	if val := testutil.ToFloat64(ingestPagesTotal.WithLabelValues("test.com", "success")); val != 1 {
		t.Errorf("Expected ingestPagesTotal to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(ingestBytesTotal.WithLabelValues("test.com")); val != 1024 {
		t.Errorf("Expected ingestBytesTotal to be 1024, got %f", val)
	}
}

func TestObserveEmbedding(t *testing.T) {
	Init()

	ObserveEmbedding("openai", "success", 10)
	ObserveEmbedding("openai", "error", 0)

	if val := testutil.ToFloat64(embeddingRequestsTotal.WithLabelValues("openai", "success")); val != 1 {
		t.Errorf("Expected success counter to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(embeddingRequestsTotal.WithLabelValues("openai", "error")); val != 1 {
		t.Errorf("Expected error counter to be 1, got %f", val)
	}
}

func TestActiveOperationsGauge(t *testing.T) {
	Init()

	SetActiveOperations(3)
	if val := testutil.ToFloat64(activeOperations); val != 3 {
		t.Errorf("Expected gauge to be 3, got %f", val)
	}
	SetActiveOperations(0)
	if val := testutil.ToFloat64(activeOperations); val != 0 {
		t.Errorf("Expected gauge to be 0, got %f", val)
	}
}
