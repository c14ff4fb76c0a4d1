package backend

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/quarrydev/quarry/internal/document"
	"github.com/quarrydev/quarry/internal/embed"
	"github.com/quarrydev/quarry/internal/registry"
)

func init() {
	register(registry.Entry[Backend]{
		Key: "pgvector",
		New: func(cfg map[string]any, logger *slog.Logger) (Backend, error) {
			return NewPGVector(cfg, logger)
		},
	})
}

const (
	defaultBatchSize = 32

	connectAttempts = 30
	connectDelay    = 2 * time.Second
)

// ErrNotConnected is returned by storage operations before Connect
// succeeds.
var ErrNotConnected = errors.New("backend not connected")

// Record is one embedded document ready for upsert.
type Record struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// QueryRow is one raw similarity result from storage.
type QueryRow struct {
	ID      string
	Payload map[string]any
	Score   float64
}

// Store is the storage surface PGVector depends on. The interface exists so
// the upsert batching, id derivation, and pagination logic can be tested
// without a database; pgStore is the production implementation.
type Store interface {
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// EnsureCollection creates the collection for the given vector width
	// if it does not exist.
	EnsureCollection(ctx context.Context, name string, dims int) error

	// Upsert inserts records, overwriting any with the same ID.
	Upsert(ctx context.Context, collection string, records []Record) error

	// Query returns the rows nearest to the vector, best first.
	Query(ctx context.Context, collection string, vector []float32, limit int) ([]QueryRow, error)

	// Collections lists the registered collection names.
	Collections(ctx context.Context) ([]string, error)

	// Scroll reads a window of records ordered by ID.
	Scroll(ctx context.Context, collection string, limit, offset int) ([]Item, error)

	// DropCollection removes a collection, reporting whether it existed.
	DropCollection(ctx context.Context, name string) (bool, error)

	// Close releases the connection.
	Close()
}

// PGVector is the PostgreSQL + pgvector backend. Each collection is its own
// table; document IDs are content-addressed so re-ingesting a source
// overwrites its previous record instead of duplicating it.
//
// PGVector is safe for concurrent use once Connect has returned.
type PGVector struct {
	connString string
	embedder   embed.Embedder
	store      Store
	batchSize  int
	attempts   int
	delay      time.Duration
	logger     *slog.Logger
}

// NewPGVector builds the backend from its config section. Recognized keys:
// conn_string, batch_size, embedder (provider key, default "gemini"), and
// a nested section under the provider key passed through to the embedder.
func NewPGVector(cfg map[string]any, logger *slog.Logger) (*PGVector, error) {
	providerKey := cfgString(cfg, "embedder", "gemini")
	providerCfg, _ := cfg[providerKey].(map[string]any)
	embedder, err := embed.NewRegistry(logger).Build(providerKey, providerCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("building embedder for pgvector backend: %w", err)
	}

	batchSize := cfgInt(cfg, "batch_size", defaultBatchSize)
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &PGVector{
		connString: cfgString(cfg, "conn_string", ""),
		embedder:   embedder,
		batchSize:  batchSize,
		attempts:   connectAttempts,
		delay:      connectDelay,
		logger:     logger,
	}, nil
}

func (p *PGVector) Type() string { return "pgvector" }

// Connect opens the connection pool and waits for the database to answer.
// Retries cover the container-orchestration case where the database starts
// alongside quarry.
func (p *PGVector) Connect(ctx context.Context) error {
	if p.store == nil {
		store, err := newPGStore(ctx, p.connString, p.logger)
		if err != nil {
			return fmt.Errorf("opening postgres pool: %w", err)
		}
		p.store = store
	}

	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.store.Ping(ctx); err == nil {
			p.logger.Info("connected to vector store", "backend", p.Type(), "attempt", attempt)
			return nil
		}
		p.logger.Warn("vector store not ready, retrying",
			"attempt", attempt, "max_attempts", p.attempts, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay):
		}
	}
	return fmt.Errorf("connecting to vector store after %d attempts: %w", p.attempts, err)
}

func (p *PGVector) Close() {
	if p.store != nil {
		p.store.Close()
	}
}

func (p *PGVector) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedder.EmbedBatch(ctx, texts)
}

func (p *PGVector) Store(ctx context.Context, collection string, docs []document.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	if p.store == nil {
		return 0, ErrNotConnected
	}
	if err := p.store.EnsureCollection(ctx, collection, p.embedder.Dimensions()); err != nil {
		return 0, fmt.Errorf("ensuring collection %q: %w", collection, err)
	}

	// One embed call for the whole set; only the upserts are batched.
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %d documents: %w", len(docs), err)
	}

	stored := 0
	for start := 0; start < len(docs); start += p.batchSize {
		end := min(start+p.batchSize, len(docs))
		batch := docs[start:end]

		records := make([]Record, len(batch))
		for i, doc := range batch {
			records[i] = Record{
				ID:      docID(doc.Source),
				Vector:  vectors[start+i],
				Payload: doc.Payload(),
			}
		}
		if err := p.store.Upsert(ctx, collection, records); err != nil {
			return stored, fmt.Errorf("upserting batch of %d documents: %w", len(batch), err)
		}
		stored += len(batch)
	}

	p.logger.Info("stored documents", "collection", collection, "count", stored)
	return stored, nil
}

func (p *PGVector) Search(ctx context.Context, collection, query string, limit int) ([]Hit, error) {
	if p.store == nil {
		return nil, ErrNotConnected
	}
	vector, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	rows, err := p.store.Query(ctx, collection, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("searching collection %q: %w", collection, err)
	}

	hits := make([]Hit, len(rows))
	for i, row := range rows {
		hits[i] = Hit{
			ID:       row.ID,
			Score:    row.Score,
			Document: document.FromPayload(row.Payload),
		}
	}
	return hits, nil
}

func (p *PGVector) ListCollections(ctx context.Context) ([]string, error) {
	if p.store == nil {
		return nil, ErrNotConnected
	}
	return p.store.Collections(ctx)
}

func (p *PGVector) GetDocuments(ctx context.Context, collection string, limit int, offset string) (Page, error) {
	if p.store == nil {
		return Page{}, ErrNotConnected
	}
	start := 0
	if offset != "" {
		parsed, err := strconv.Atoi(offset)
		if err != nil || parsed < 0 {
			return Page{}, fmt.Errorf("invalid offset %q", offset)
		}
		start = parsed
	}

	items, err := p.store.Scroll(ctx, collection, limit, start)
	if err != nil {
		return Page{}, fmt.Errorf("reading collection %q: %w", collection, err)
	}

	page := Page{Items: items}
	if len(items) == limit {
		page.NextOffset = strconv.Itoa(start + limit)
	}
	return page, nil
}

func (p *PGVector) DeleteCollection(ctx context.Context, collection string) (bool, error) {
	if p.store == nil {
		return false, ErrNotConnected
	}
	deleted, err := p.store.DropCollection(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("deleting collection %q: %w", collection, err)
	}
	if deleted {
		p.logger.Info("deleted collection", "collection", collection)
	}
	return deleted, nil
}

func (p *PGVector) AddDocuments(ctx context.Context, collection string, texts []string, metadatas []map[string]any) (int, error) {
	if len(texts) == 0 {
		return 0, nil
	}
	if p.store == nil {
		return 0, ErrNotConnected
	}
	if len(metadatas) > 0 && len(metadatas) != len(texts) {
		return 0, fmt.Errorf("got %d metadata entries for %d texts", len(metadatas), len(texts))
	}
	if err := p.store.EnsureCollection(ctx, collection, p.embedder.Dimensions()); err != nil {
		return 0, fmt.Errorf("ensuring collection %q: %w", collection, err)
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}

	stored := 0
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		batch := texts[start:end]

		records := make([]Record, len(batch))
		for i, text := range batch {
			var meta map[string]any
			if len(metadatas) > 0 {
				meta = metadatas[start+i]
			}
			doc := document.New("", "", text, meta, "inline")
			records[i] = Record{
				ID:      docID(text),
				Vector:  vectors[i],
				Payload: doc.Payload(),
			}
		}
		if err := p.store.Upsert(ctx, collection, records); err != nil {
			return stored, fmt.Errorf("upserting batch of %d texts: %w", len(batch), err)
		}
		stored += len(batch)
	}

	p.logger.Info("added documents", "collection", collection, "count", stored)
	return stored, nil
}

// docID content-addresses a record so identical inputs map to the same row.
func docID(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

func cfgString(cfg map[string]any, key, fallback string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

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
