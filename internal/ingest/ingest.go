// Package ingest turns raw sources into stored documents.
//
// The pipeline detects each source's content type, runs the matching
// parser, and hands the parsed documents to the backend in one batched
// store call. Source failures are isolated: one bad URL never aborts the
// rest of the run.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quarrydev/quarry/internal/backend"
	"github.com/quarrydev/quarry/internal/document"
	"github.com/quarrydev/quarry/internal/parser"
	"github.com/quarrydev/quarry/internal/registry"
)

// DefaultCollection is used when the caller does not name one.
const DefaultCollection = "documents"

// knownTLDs marks bare host names (no scheme, no path extension) as web
// sources.
var knownTLDs = map[string]struct{}{
	"com": {}, "org": {}, "net": {}, "edu": {}, "gov": {},
	"io": {}, "co": {}, "uk": {}, "de": {}, "fr": {},
	"jp": {}, "au": {}, "ca": {},
}

// Options control one ingestion run.
type Options struct {
	// SourceType forces a parser for every source; empty means detect
	// per source.
	SourceType string

	// Collection receives the stored documents. Empty means
	// DefaultCollection.
	Collection string

	// Store controls whether parsed documents are written to the
	// backend. When false the pipeline only parses.
	Store bool
}

// Result summarizes one ingestion run.
type Result struct {
	Documents []document.Document
	Stored    int
	Failed    []string
}

// Pipeline fetches, parses, and stores content. Parser instances are built
// lazily per source type and reused; a rate limiter paces outbound
// requests.
//
// Pipeline is safe for concurrent use.
type Pipeline struct {
	parsers *registry.Registry[parser.Parser]
	backend backend.Backend
	limiter *rate.Limiter
	plugin  func(key string) map[string]any
	logger  *slog.Logger

	mu        sync.Mutex
	instances map[string]parser.Parser
}

// New builds a pipeline. requestDelay is the minimum spacing between
// source fetches; zero disables pacing. plugin supplies per-parser config
// sections and may be nil. be may be nil for parse-only pipelines.
func New(be backend.Backend, requestDelay time.Duration, plugin func(key string) map[string]any, logger *slog.Logger) *Pipeline {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(requestDelay), 1)
	}
	if plugin == nil {
		plugin = func(string) map[string]any { return nil }
	}
	return &Pipeline{
		parsers:   parser.NewRegistry(logger),
		backend:   be,
		limiter:   limiter,
		plugin:    plugin,
		logger:    logger,
		instances: map[string]parser.Parser{},
	}
}

// DetectSourceType derives a parser key from the source's extension.
// Extension-less sources and bare domains default to html; an unsupported
// extension comes back as-is, so lookup fails and the source is skipped
// instead of being misparsed as text.
func DetectSourceType(source string) string {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		ext := ""
		if u, err := url.Parse(source); err == nil {
			ext = path.Ext(u.Path)
		}
		if ext == "" {
			return "html"
		}
		return typeForExtension(ext)
	}
	if looksLikeDomain(source) {
		return "html"
	}
	ext := path.Ext(source)
	if ext == "" {
		return "html"
	}
	return typeForExtension(ext)
}

func typeForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".md", ".markdown":
		return "md"
	case ".txt", ".text":
		return "txt"
	case ".pdf":
		return "pdf"
	case ".html", ".htm":
		return "html"
	default:
		return strings.ToLower(strings.TrimPrefix(ext, "."))
	}
}

func looksLikeDomain(source string) bool {
	if strings.ContainsAny(source, " /\\") {
		return false
	}
	parts := strings.Split(source, ".")
	if len(parts) < 2 {
		return false
	}
	_, ok := knownTLDs[strings.ToLower(parts[len(parts)-1])]
	return ok
}

// Parser returns the shared parser instance for a source type, building it
// on first use with its plugin config section.
func (p *Pipeline) Parser(sourceType string) (parser.Parser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if instance, ok := p.instances[sourceType]; ok {
		return instance, nil
	}
	instance, err := p.parsers.Build(sourceType, p.plugin(sourceType), p.logger)
	if err != nil {
		return nil, err
	}
	p.instances[sourceType] = instance
	return instance, nil
}

// Ingest processes sources sequentially, pacing fetches with the request
// delay. Each source's failure is recorded and skipped. When opts.Store is
// set, all parsed documents go to the backend in one batched call at the
// end.
func (p *Pipeline) Ingest(ctx context.Context, sources []string, opts Options) (*Result, error) {
	result := &Result{}
	for _, source := range sources {
		if err := p.limiter.Wait(ctx); err != nil {
			return result, err
		}

		sourceType := opts.SourceType
		if sourceType == "" {
			sourceType = DetectSourceType(source)
		}
		doc, err := p.ingestOne(ctx, source, sourceType)
		if err != nil {
			p.logger.Warn("skipping source", "source", source, "type", sourceType, "error", err)
			result.Failed = append(result.Failed, source)
			continue
		}
		result.Documents = append(result.Documents, doc)
		p.logger.Debug("parsed source", "source", source, "type", sourceType, "title", doc.Title)
	}

	if opts.Store {
		stored, err := p.StoreDocuments(ctx, opts.Collection, result.Documents)
		result.Stored = stored
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, source, sourceType string) (document.Document, error) {
	instance, err := p.Parser(sourceType)
	if err != nil {
		return document.Document{}, err
	}
	return parser.Ingest(ctx, instance, source, nil)
}

// StoreDocuments writes parsed documents to the backend. An empty slice
// stores nothing and never touches the backend.
func (p *Pipeline) StoreDocuments(ctx context.Context, collection string, docs []document.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	if p.backend == nil {
		return 0, fmt.Errorf("pipeline has no backend configured")
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return p.backend.Store(ctx, collection, docs)
}
