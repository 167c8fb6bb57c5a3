package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Embedder produces vector representations of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

// ClientConfig configures a provider-backed Embedder.
type ClientConfig struct {
	// Provider selects the failure adapter; empty defaults to openai.
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the API endpoint. Ollama and Google's
	// OpenAI-compatible endpoints are reached this way.
	BaseURL string
}

// Client calls an OpenAI-compatible embeddings endpoint. Provider failures
// are normalized through the provider's adapter so raw responses never
// escape to callers.
type Client struct {
	api       *openai.Client
	adapter   Adapter
	detect    bool
	model     string
	dimension int
	log       *zap.Logger
}

// NewClient builds a Client from cfg. Model is required.
func NewClient(cfg ClientConfig, log *zap.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("embedding: model is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:     openai.NewClientWithConfig(oc),
		adapter: AdapterFor(Provider(cfg.Provider)),
		// Without a configured provider the adapter is picked per
		// failure from the error text itself.
		detect:    cfg.Provider == "",
		model:     cfg.Model,
		dimension: DimensionForModel(cfg.Model),
		log:       log,
	}, nil
}

func (c *Client) Model() string  { return c.model }
func (c *Client) Dimension() int { return c.dimension }

// Embed returns the vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request, preserving input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, c.normalize(ctx, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, NewAPIError(c.adapter.provider, c.adapter.Fallback())
	}
	vecs := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, NewAPIError(c.adapter.provider, c.adapter.Fallback())
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// normalize maps a transport or API failure to a ProviderError. Context
// cancellation passes through untouched so callers can distinguish shutdown
// from provider trouble.
func (c *Client) normalize(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw := err.Error()
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		raw = fmt.Sprintf("%d %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	adapter := c.adapter
	if c.detect {
		adapter = AdapterFor(DetectProvider(raw))
	}
	perr := adapter.Normalize(raw)
	c.log.Warn("embedding request failed",
		zap.String("provider", string(perr.Provider())),
		zap.String("kind", string(perr.Kind())),
		zap.String("model", c.model),
	)
	return perr
}
