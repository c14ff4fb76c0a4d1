//go:build integration

package backend

import (
	"context"
	"testing"
	"time"

	"github.com/quarrydev/quarry/internal/document"
	"github.com/quarrydev/quarry/internal/log"
	"github.com/quarrydev/quarry/internal/testutil"
)

// newIntegrationBackend connects a pgvector backend with the static
// embedder to a containerized database.
func newIntegrationBackend(t *testing.T) *PGVector {
	t.Helper()
	connURL := testutil.StartPostgres(t)
	logger := log.NewNop()

	b, err := NewPGVector(map[string]any{
		"conn_string": connURL,
		"embedder":    "static",
		"static":      map[string]any{"dimensions": 64},
	}, logger)
	if err != nil {
		t.Fatalf("NewPGVector() error = %v", err)
	}
	b.attempts = 5
	b.delay = time.Second
	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

func TestPGVectorRoundTrip(t *testing.T) {
	b := newIntegrationBackend(t)
	ctx := context.Background()

	docs := []document.Document{
		document.New("https://example.com/go", "Go", "golang concurrency channels goroutines", nil, "html"),
		document.New("https://example.com/cooking", "Cooking", "pasta tomato sauce basil recipe", nil, "html"),
	}
	stored, err := b.Store(ctx, "integration", docs)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if stored != 2 {
		t.Fatalf("stored = %d, want 2", stored)
	}

	hits, err := b.Search(ctx, "integration", "golang goroutines", 1)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("len(hits) = %d, want 1", len(hits))
	}
	if hits[0].Document.Source != "https://example.com/go" {
		t.Errorf("top hit = %q, want the Go page", hits[0].Document.Source)
	}

	collections, err := b.ListCollections(ctx)
	if err != nil {
		t.Fatalf("ListCollections() error = %v", err)
	}
	if len(collections) != 1 || collections[0] != "integration" {
		t.Errorf("collections = %v", collections)
	}
}

func TestPGVectorUpsertOverwrites(t *testing.T) {
	b := newIntegrationBackend(t)
	ctx := context.Background()

	doc := document.New("https://example.com/page", "v1", "first version", nil, "html")
	if _, err := b.Store(ctx, "upsert", []document.Document{doc}); err != nil {
		t.Fatal(err)
	}
	doc.Title = "v2"
	doc.Content = "second version"
	if _, err := b.Store(ctx, "upsert", []document.Document{doc}); err != nil {
		t.Fatal(err)
	}

	page, err := b.GetDocuments(ctx, "upsert", 10, "")
	if err != nil {
		t.Fatalf("GetDocuments() error = %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("len(items) = %d, want 1 after re-store", len(page.Items))
	}
	if page.Items[0].Payload["title"] != "v2" {
		t.Errorf("title = %v, want v2", page.Items[0].Payload["title"])
	}
}

func TestPGVectorDeleteCollection(t *testing.T) {
	b := newIntegrationBackend(t)
	ctx := context.Background()

	doc := document.New("s", "t", "c", nil, "txt")
	if _, err := b.Store(ctx, "doomed", []document.Document{doc}); err != nil {
		t.Fatal(err)
	}

	deleted, err := b.DeleteCollection(ctx, "doomed")
	if err != nil {
		t.Fatalf("DeleteCollection() error = %v", err)
	}
	if !deleted {
		t.Error("deleted = false, want true")
	}

	deleted, err = b.DeleteCollection(ctx, "doomed")
	if err != nil {
		t.Fatalf("second DeleteCollection() error = %v", err)
	}
	if deleted {
		t.Error("second delete reported true")
	}

	if _, err := b.Search(ctx, "doomed", "anything", 1); err == nil {
		t.Error("Search() on deleted collection succeeded")
	}
}
