package cmd

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/quarrydev/quarry/internal/ingest"
)

// runIngest parses sources given as arguments or listed in a file, and
// stores them unless --no-store is set.
func runIngest(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	var (
		file       string
		sourceType string
		collection string
		backendKey string
		configPath string
		noStore    bool
	)
	fs.StringVar(&file, "file", "", "file with one source per line")
	fs.StringVar(&file, "f", "", "shorthand for --file")
	fs.StringVar(&sourceType, "type", "", "force a source type (html, md, txt, pdf)")
	fs.StringVar(&sourceType, "t", "", "shorthand for --type")
	fs.StringVar(&collection, "collection", "", "target collection (default: documents)")
	fs.StringVar(&collection, "c", "", "shorthand for --collection")
	fs.StringVar(&backendKey, "store", "", "storage backend (default: from config)")
	fs.StringVar(&backendKey, "s", "", "shorthand for --store")
	fs.StringVar(&configPath, "config", "", "path to config file")
	fs.BoolVar(&noStore, "no-store", false, "parse only, do not write to the vector store")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sources := fs.Args()
	if file != "" {
		fromFile, err := readSourceList(file)
		if err != nil {
			return err
		}
		sources = append(sources, fromFile...)
	}
	if len(sources) == 0 {
		fmt.Println("nothing to ingest: pass sources as arguments or via --file")
		fs.Usage()
		return nil
	}

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}
	if backendKey != "" {
		cfg.Backend = backendKey
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pipeline := newPipeline(nil, cfg, logger)
	if !noStore {
		be, err := connectBackend(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer be.Close()
		pipeline = newPipeline(be, cfg, logger)
	}

	result, err := pipeline.Ingest(ctx, sources, ingest.Options{
		SourceType: sourceType,
		Collection: collection,
		Store:      !noStore,
	})
	if err != nil {
		return fmt.Errorf("ingesting: %w", err)
	}

	if len(result.Failed) > 0 {
		logger.Warn("some sources failed", "failed", result.Failed)
	}
	fmt.Printf("ingested %d document(s)\n", len(result.Documents))
	if !noStore {
		fmt.Printf("stored %d document(s)\n", result.Stored)
	}
	return nil
}

// readSourceList reads sources one per line, skipping blanks and #
// comments.
func readSourceList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening source list: %w", err)
	}
	defer f.Close() //nolint:errcheck

	var sources []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sources = append(sources, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading source list: %w", err)
	}
	return sources, nil
}
