package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/quarrydev/quarry/internal/registry"
)

func init() {
	register(registry.Entry[Embedder]{
		Key: "gemini",
		New: func(cfg map[string]any, logger *slog.Logger) (Embedder, error) {
			return NewGemini(cfg, logger)
		},
	})
}

const (
	defaultGeminiModel = "gemini-embedding-001"
	defaultGeminiDims  = 768

	embedRetries   = 3
	embedRetryBase = 500 * time.Millisecond
)

// ErrMissingAPIKey is returned when neither the config section nor the
// GEMINI_API_KEY environment variable provides a key.
var ErrMissingAPIKey = errors.New("gemini api key not configured")

// Gemini embeds text through the Gemini embedding API. The client is built
// lazily on first use so constructing the embedder never touches the
// network.
type Gemini struct {
	apiKey string
	model  string
	dims   int
	logger *slog.Logger

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewGemini builds a Gemini embedder from a plugin config section.
// Recognized keys: api_key, model, dimensions. The API key falls back to
// GEMINI_API_KEY.
func NewGemini(cfg map[string]any, logger *slog.Logger) (*Gemini, error) {
	apiKey := cfgString(cfg, "api_key", os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Gemini{
		apiKey: apiKey,
		model:  cfgString(cfg, "model", defaultGeminiModel),
		dims:   cfgInt(cfg, "dimensions", defaultGeminiDims),
		logger: logger,
	}, nil
}

func (g *Gemini) ModelName() string { return g.model }
func (g *Gemini) Dimensions() int   { return g.dims }

func (g *Gemini) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *Gemini) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	client, err := g.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	dims := int32(g.dims)
	config := &genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_DOCUMENT",
		OutputDimensionality: &dims,
	}

	var resp *genai.EmbedContentResponse
	err = withRetry(ctx, embedRetries, embedRetryBase, func() error {
		var callErr error
		resp, callErr = client.Models.EmbedContent(ctx, g.model, contents, config)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts with %s: %w", len(texts), g.model, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding with %s: got %d vectors for %d texts", g.model, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (g *Gemini) ensureClient(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		g.client, g.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if g.clientErr != nil {
			g.clientErr = fmt.Errorf("creating gemini client: %w", g.clientErr)
		}
	})
	return g.client, g.clientErr
}

// withRetry runs fn with exponential backoff. The last error wins; context
// cancellation cuts the wait short.
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(base << attempt):
		}
	}
	return err
}
