package cmd

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/quarrydev/quarry/internal/log"
)

func TestReadSourceList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.txt")
	content := "https://example.com/a\n\n# comment\n  https://example.com/b  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	sources, err := readSourceList(path)
	if err != nil {
		t.Fatalf("readSourceList() error = %v", err)
	}
	want := []string{"https://example.com/a", "https://example.com/b"}
	if !reflect.DeepEqual(sources, want) {
		t.Errorf("sources = %v, want %v", sources, want)
	}
}

func TestReadSourceListMissingFile(t *testing.T) {
	if _, err := readSourceList(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("readSourceList() error = nil, want open error")
	}
}

func TestRunIngestNoSources(t *testing.T) {
	// No sources is a usage hint, not a failure.
	if err := runIngest(nil, log.NewNop()); err != nil {
		t.Fatalf("runIngest() error = %v", err)
	}
}

func TestRunIngestParseOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte("offline note"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := runIngest([]string{"--no-store", path}, log.NewNop()); err != nil {
		t.Fatalf("runIngest() error = %v", err)
	}
}

func TestRunIngestStoreFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(path, []byte("offline note"), 0o644); err != nil {
		t.Fatal(err)
	}
	// -s selects the backend; with --no-store none is built, so this only
	// checks the flag is accepted in both spellings.
	if err := runIngest([]string{"--no-store", "-s", "pgvector", path}, log.NewNop()); err != nil {
		t.Fatalf("runIngest(-s) error = %v", err)
	}
	if err := runIngest([]string{"--no-store", "--store", "pgvector", path}, log.NewNop()); err != nil {
		t.Fatalf("runIngest(--store) error = %v", err)
	}
}

func TestRunCrawlRequiresSeed(t *testing.T) {
	if err := runCrawl([]string{}, log.NewNop()); err == nil {
		t.Fatal("runCrawl() error = nil, want missing seed error")
	}
}

func TestRunIngestBadFlag(t *testing.T) {
	if err := runIngest([]string{"--definitely-not-a-flag"}, log.NewNop()); err == nil {
		t.Fatal("runIngest() error = nil, want flag error")
	}
}
