// Package backend provides the vector store backend plugins.
//
// A Backend owns the full storage path for one deployment: embedding text,
// upserting documents into named collections, similarity search, and
// collection management. The pgvector variant stores vectors in
// PostgreSQL.
package backend

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/quarrydev/quarry/internal/document"
	"github.com/quarrydev/quarry/internal/registry"
)

// ErrCollectionNotFound is returned when an operation names a collection
// that was never created.
var ErrCollectionNotFound = errors.New("collection not found")

// Hit is a single similarity search result.
type Hit struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Document document.Document `json:"document"`
}

// Item is one stored record as returned by pagination.
type Item struct {
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload"`
}

// Page is one pagination window. NextOffset is an opaque cursor; empty
// means the listing is exhausted.
type Page struct {
	Items      []Item `json:"items"`
	NextOffset string `json:"next_offset,omitempty"`
}

// Backend stores and retrieves embedded documents.
type Backend interface {
	// Type returns the backend identifier, which is also its registry
	// key.
	Type() string

	// Connect establishes the storage connection, retrying until the
	// store answers or the retry budget runs out.
	Connect(ctx context.Context) error

	// Close releases the storage connection.
	Close()

	// Embed maps texts to vectors using the backend's embedder.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Store embeds and upserts documents into a collection, creating it
	// if needed. Returns the number of documents stored. Re-storing the
	// same source overwrites the previous record.
	Store(ctx context.Context, collection string, docs []document.Document) (int, error)

	// Search returns the documents most similar to the query, best
	// first.
	Search(ctx context.Context, collection, query string, limit int) ([]Hit, error)

	// ListCollections returns the known collection names.
	ListCollections(ctx context.Context) ([]string, error)

	// GetDocuments pages through a collection. Pass the previous page's
	// NextOffset to continue; empty offset starts from the beginning.
	GetDocuments(ctx context.Context, collection string, limit int, offset string) (Page, error)

	// DeleteCollection drops a collection and reports whether it
	// existed.
	DeleteCollection(ctx context.Context, collection string) (bool, error)

	// AddDocuments embeds and stores raw text snippets with optional
	// per-text metadata, returning the number stored.
	AddDocuments(ctx context.Context, collection string, texts []string, metadatas []map[string]any) (int, error)
}

var builtins []registry.Entry[Backend]

func register(e registry.Entry[Backend]) {
	builtins = append(builtins, e)
}

// Builtins returns the registration entries of all compiled-in backends.
func Builtins() []registry.Entry[Backend] {
	return slices.Clone(builtins)
}

// NewRegistry builds a backend registry populated with all builtin
// variants.
func NewRegistry(logger *slog.Logger) *registry.Registry[Backend] {
	r := registry.New[Backend]("backend", logger)
	r.Discover(Builtins()...)
	return r
}
