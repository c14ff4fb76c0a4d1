// Package parser provides the content parser plugins.
//
// A parser turns one raw source (URL or file path) into a document.Document.
// Each variant lives in its own file and registers itself in init, so adding
// a content type means dropping in one file. The shared fetch helper handles
// both http(s) URLs and local paths; variants only implement Parse.
package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/quarrydev/quarry/internal/document"
	"github.com/quarrydev/quarry/internal/registry"
)

// userAgent identifies quarry to fetched sites.
const userAgent = "quarry/1.0 (+https://github.com/quarrydev/quarry)"

// defaultFetchTimeout bounds a single source fetch.
const defaultFetchTimeout = 30 * time.Second

// Parser converts a raw source into a Document.
type Parser interface {
	// Type returns the source type identifier ("html", "md", ...). It is
	// also the registry key under which the parser registers itself.
	Type() string

	// Fetch retrieves raw content from a source identifier. Errors mean
	// "nothing fetched" and are isolated per source by callers.
	Fetch(ctx context.Context, source string) ([]byte, error)

	// Parse deterministically transforms raw content into a Document,
	// populating every field.
	Parse(content []byte, source string) (document.Document, error)
}

// Ingest is the convenience composition shared by all parsers: use the
// provided content when non-nil, otherwise fetch, then parse.
func Ingest(ctx context.Context, p Parser, source string, content []byte) (document.Document, error) {
	if content == nil {
		fetched, err := p.Fetch(ctx, source)
		if err != nil {
			return document.Document{}, fmt.Errorf("fetching %s: %w", source, err)
		}
		content = fetched
	}
	doc, err := p.Parse(content, source)
	if err != nil {
		return document.Document{}, fmt.Errorf("parsing %s: %w", source, err)
	}
	return doc, nil
}

var builtins []registry.Entry[Parser]

// register appends a plugin entry to the package builtin list. Called from
// each variant's init.
func register(e registry.Entry[Parser]) {
	builtins = append(builtins, e)
}

// Builtins returns the registration entries of all compiled-in parsers.
func Builtins() []registry.Entry[Parser] {
	return slices.Clone(builtins)
}

// NewRegistry builds a parser registry populated with all builtin variants.
func NewRegistry(logger *slog.Logger) *registry.Registry[Parser] {
	r := registry.New[Parser]("parser", logger)
	r.Discover(Builtins()...)
	return r
}

// fetchSource reads a source that may be an http(s) URL or a local path.
func fetchSource(ctx context.Context, client *http.Client, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return fetchURL(ctx, client, source)
	}
	content, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", source, err)
	}
	return content, nil
}

func fetchURL(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", rawURL, resp.Status)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", rawURL, err)
	}
	return content, nil
}

// Option readers for the loosely-typed plugin config sections. YAML numbers
// arrive as int or float64 depending on their spelling.

func cfgInt(cfg map[string]any, key string, fallback int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func cfgBool(cfg map[string]any, key string, fallback bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return fallback
}

func cfgStrings(cfg map[string]any, key string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
