package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quarrydev/quarry/internal/document"
	"github.com/quarrydev/quarry/internal/embed"
	"github.com/quarrydev/quarry/internal/log"
)

type fakeStore struct {
	pingErrs    []error
	pings       int
	ensured     []string
	ensuredDims []int
	upserts     [][]Record
	upsertErr   error
	queryRows   []QueryRow
	queryErr    error
	collections []string
	scrollItems []Item
	scrollArgs  [][2]int
	dropped     []string
	dropExists  bool
	closed      bool
}

func (f *fakeStore) Ping(context.Context) error {
	f.pings++
	if f.pings <= len(f.pingErrs) {
		return f.pingErrs[f.pings-1]
	}
	return nil
}

func (f *fakeStore) EnsureCollection(_ context.Context, name string, dims int) error {
	f.ensured = append(f.ensured, name)
	f.ensuredDims = append(f.ensuredDims, dims)
	return nil
}

func (f *fakeStore) Upsert(_ context.Context, _ string, records []Record) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, records)
	return nil
}

func (f *fakeStore) Query(context.Context, string, []float32, int) ([]QueryRow, error) {
	return f.queryRows, f.queryErr
}

func (f *fakeStore) Collections(context.Context) ([]string, error) {
	return f.collections, nil
}

func (f *fakeStore) Scroll(_ context.Context, _ string, limit, offset int) ([]Item, error) {
	f.scrollArgs = append(f.scrollArgs, [2]int{limit, offset})
	if len(f.scrollItems) > limit {
		return f.scrollItems[:limit], nil
	}
	return f.scrollItems, nil
}

func (f *fakeStore) DropCollection(_ context.Context, name string) (bool, error) {
	f.dropped = append(f.dropped, name)
	return f.dropExists, nil
}

func (f *fakeStore) Close() { f.closed = true }

func newTestBackend(store Store, batchSize int) *PGVector {
	logger := log.NewNop()
	return &PGVector{
		embedder:  embed.NewStatic(map[string]any{"dimensions": 16}, logger),
		store:     store,
		batchSize: batchSize,
		attempts:  3,
		delay:     time.Millisecond,
		logger:    logger,
	}
}

func makeDocs(sources ...string) []document.Document {
	docs := make([]document.Document, len(sources))
	for i, source := range sources {
		docs[i] = document.New(source, "t", "content of "+source, nil, "txt")
	}
	return docs
}

func TestStoreBatches(t *testing.T) {
	store := &fakeStore{}
	b := newTestBackend(store, 2)

	count, err := b.Store(context.Background(), "docs", makeDocs("a", "b", "c", "d", "e"))
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
	if len(store.upserts) != 3 {
		t.Fatalf("upsert calls = %d, want 3", len(store.upserts))
	}
	for i, want := range []int{2, 2, 1} {
		if len(store.upserts[i]) != want {
			t.Errorf("batch %d size = %d, want %d", i, len(store.upserts[i]), want)
		}
	}
	if len(store.ensured) != 1 || store.ensured[0] != "docs" {
		t.Errorf("ensured = %v, want [docs]", store.ensured)
	}
	if store.ensuredDims[0] != 16 {
		t.Errorf("ensured dims = %d, want 16", store.ensuredDims[0])
	}
}

type countingEmbedder struct {
	embed.Embedder
	batchCalls int
	batchSizes []int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls++
	c.batchSizes = append(c.batchSizes, len(texts))
	return c.Embedder.EmbedBatch(ctx, texts)
}

func TestStoreEmbedsOnce(t *testing.T) {
	store := &fakeStore{}
	b := newTestBackend(store, 2)
	counter := &countingEmbedder{Embedder: b.embedder}
	b.embedder = counter

	if _, err := b.Store(context.Background(), "docs", makeDocs("a", "b", "c", "d", "e")); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if counter.batchCalls != 1 {
		t.Fatalf("EmbedBatch calls = %d, want 1", counter.batchCalls)
	}
	if counter.batchSizes[0] != 5 {
		t.Errorf("embed batch size = %d, want all 5 documents", counter.batchSizes[0])
	}
	if len(store.upserts) != 3 {
		t.Errorf("upsert calls = %d, want 3", len(store.upserts))
	}
}

func TestAddDocumentsEmbedsOnce(t *testing.T) {
	store := &fakeStore{}
	b := newTestBackend(store, 2)
	counter := &countingEmbedder{Embedder: b.embedder}
	b.embedder = counter

	if _, err := b.AddDocuments(context.Background(), "notes", []string{"a", "b", "c"}, nil); err != nil {
		t.Fatalf("AddDocuments() error = %v", err)
	}
	if counter.batchCalls != 1 {
		t.Fatalf("EmbedBatch calls = %d, want 1", counter.batchCalls)
	}
	if len(store.upserts) != 2 {
		t.Errorf("upsert calls = %d, want 2", len(store.upserts))
	}
}

func TestStoreEmptyShortCircuits(t *testing.T) {
	store := &fakeStore{}
	b := newTestBackend(store, 2)

	count, err := b.Store(context.Background(), "docs", nil)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if len(store.ensured) != 0 || len(store.upserts) != 0 {
		t.Error("empty store touched the database")
	}
}

func TestStoreIdempotentIDs(t *testing.T) {
	store := &fakeStore{}
	b := newTestBackend(store, 10)

	if _, err := b.Store(context.Background(), "docs", makeDocs("https://example.com/a")); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Store(context.Background(), "docs", makeDocs("https://example.com/a")); err != nil {
		t.Fatal(err)
	}
	if store.upserts[0][0].ID != store.upserts[1][0].ID {
		t.Error("same source produced different record IDs")
	}
}

func TestDocID(t *testing.T) {
	// md5 of the source keeps IDs stable across runs and processes.
	if got := docID("https://example.com/a"); got != docID("https://example.com/a") {
		t.Errorf("docID not deterministic: %q", got)
	}
	if len(docID("x")) != 32 {
		t.Errorf("docID length = %d, want 32 hex chars", len(docID("x")))
	}
}

func TestConnectRetries(t *testing.T) {
	store := &fakeStore{pingErrs: []error{errors.New("down"), errors.New("down")}}
	b := newTestBackend(store, 2)

	if err := b.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if store.pings != 3 {
		t.Errorf("pings = %d, want 3", store.pings)
	}
}

func TestConnectExhaustsRetries(t *testing.T) {
	down := errors.New("down")
	store := &fakeStore{pingErrs: []error{down, down, down}}
	b := newTestBackend(store, 2)

	err := b.Connect(context.Background())
	if !errors.Is(err, down) {
		t.Fatalf("Connect() error = %v, want wrapped %v", err, down)
	}
	if store.pings != 3 {
		t.Errorf("pings = %d, want 3", store.pings)
	}
}

func TestSearchMapsPayloads(t *testing.T) {
	store := &fakeStore{queryRows: []QueryRow{
		{
			ID:    "abc",
			Score: 0.93,
			Payload: map[string]any{
				"source":      "https://example.com/a",
				"title":       "Page A",
				"content":     "body",
				"metadata":    map[string]any{"domain": "example.com"},
				"source_type": "html",
			},
		},
	}}
	b := newTestBackend(store, 2)

	hits, err := b.Search(context.Background(), "docs", "query", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("len(hits) = %d, want 1", len(hits))
	}
	hit := hits[0]
	if hit.ID != "abc" || hit.Score != 0.93 {
		t.Errorf("hit = %+v", hit)
	}
	if hit.Document.Title != "Page A" || hit.Document.Source != "https://example.com/a" {
		t.Errorf("document = %+v", hit.Document)
	}
}

func TestGetDocumentsPagination(t *testing.T) {
	store := &fakeStore{scrollItems: []Item{
		{ID: "1"}, {ID: "2"}, {ID: "3"},
	}}
	b := newTestBackend(store, 2)
	ctx := context.Background()

	page, err := b.GetDocuments(ctx, "docs", 2, "")
	if err != nil {
		t.Fatalf("GetDocuments() error = %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(page.Items))
	}
	if page.NextOffset != "2" {
		t.Errorf("NextOffset = %q, want %q", page.NextOffset, "2")
	}

	if _, err := b.GetDocuments(ctx, "docs", 2, page.NextOffset); err != nil {
		t.Fatalf("GetDocuments(offset) error = %v", err)
	}
	if got := store.scrollArgs[1]; got != [2]int{2, 2} {
		t.Errorf("second scroll args = %v, want [2 2]", got)
	}
}

func TestGetDocumentsPartialPageEndsPagination(t *testing.T) {
	store := &fakeStore{scrollItems: []Item{{ID: "1"}}}
	b := newTestBackend(store, 2)

	page, err := b.GetDocuments(context.Background(), "docs", 10, "")
	if err != nil {
		t.Fatalf("GetDocuments() error = %v", err)
	}
	if page.NextOffset != "" {
		t.Errorf("NextOffset = %q, want empty", page.NextOffset)
	}
}

func TestGetDocumentsInvalidOffset(t *testing.T) {
	b := newTestBackend(&fakeStore{}, 2)
	if _, err := b.GetDocuments(context.Background(), "docs", 10, "not-a-number"); err == nil {
		t.Fatal("GetDocuments() error = nil, want invalid offset error")
	}
}

func TestAddDocumentsMetadataMismatch(t *testing.T) {
	b := newTestBackend(&fakeStore{}, 2)
	_, err := b.AddDocuments(context.Background(), "docs", []string{"a", "b"}, []map[string]any{{"k": "v"}})
	if err == nil {
		t.Fatal("AddDocuments() error = nil, want length mismatch error")
	}
}

func TestAddDocumentsStoresTexts(t *testing.T) {
	store := &fakeStore{}
	b := newTestBackend(store, 32)

	count, err := b.AddDocuments(context.Background(), "notes", []string{"first", "second"}, nil)
	if err != nil {
		t.Fatalf("AddDocuments() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	rec := store.upserts[0][0]
	if rec.ID != docID("first") {
		t.Errorf("record ID = %q, want content hash", rec.ID)
	}
	if rec.Payload["content"] != "first" {
		t.Errorf("payload content = %v", rec.Payload["content"])
	}
}

func TestDeleteCollection(t *testing.T) {
	store := &fakeStore{dropExists: true}
	b := newTestBackend(store, 2)

	deleted, err := b.DeleteCollection(context.Background(), "docs")
	if err != nil {
		t.Fatalf("DeleteCollection() error = %v", err)
	}
	if !deleted {
		t.Error("deleted = false, want true")
	}

	store.dropExists = false
	deleted, err = b.DeleteCollection(context.Background(), "missing")
	if err != nil {
		t.Fatalf("DeleteCollection() error = %v", err)
	}
	if deleted {
		t.Error("deleted = true for missing collection")
	}
}

func TestOperationsRequireConnect(t *testing.T) {
	b := newTestBackend(nil, 2)
	b.store = nil
	ctx := context.Background()

	if _, err := b.Store(ctx, "c", makeDocs("a")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Store error = %v, want ErrNotConnected", err)
	}
	if _, err := b.Search(ctx, "c", "q", 1); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Search error = %v, want ErrNotConnected", err)
	}
	if _, err := b.ListCollections(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ListCollections error = %v, want ErrNotConnected", err)
	}
}

func TestCollectionTable(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "docs", want: "qd_docs"},
		{name: "My-Project", want: "qd_my_project"},
		{name: "tab_1", want: "qd_tab_1"},
		{name: "", wantErr: true},
		{name: "drop table;", wantErr: true},
		{name: `a"b`, wantErr: true},
	}
	for _, tt := range tests {
		got, err := collectionTable(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("collectionTable(%q) error = nil, want error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("collectionTable(%q) error = %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("collectionTable(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNewPGVectorDefaults(t *testing.T) {
	b, err := NewPGVector(map[string]any{
		"embedder": "static",
		"static":   map[string]any{"dimensions": 64},
	}, log.NewNop())
	if err != nil {
		t.Fatalf("NewPGVector() error = %v", err)
	}
	if b.batchSize != defaultBatchSize {
		t.Errorf("batchSize = %d, want %d", b.batchSize, defaultBatchSize)
	}
	if b.embedder.Dimensions() != 64 {
		t.Errorf("embedder dims = %d, want 64", b.embedder.Dimensions())
	}
}

func TestNewPGVectorUnknownEmbedder(t *testing.T) {
	if _, err := NewPGVector(map[string]any{"embedder": "nope"}, log.NewNop()); err == nil {
		t.Fatal("NewPGVector() error = nil, want unknown embedder error")
	}
}
