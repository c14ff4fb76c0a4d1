package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/quarrydev/quarry/internal/crawl"
)

// runCrawl walks websites breadth-first and stores the collected pages in
// one batch.
func runCrawl(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("crawl", flag.ContinueOnError)
	var (
		depth      int
		collection string
		backendKey string
		configPath string
	)
	fs.IntVar(&depth, "depth", crawl.DefaultDepth, "how many link hops to follow from each seed")
	fs.StringVar(&collection, "collection", "", "target collection (default: documents)")
	fs.StringVar(&collection, "c", "", "shorthand for --collection")
	fs.StringVar(&backendKey, "store", "", "storage backend (default: from config)")
	fs.StringVar(&backendKey, "s", "", "shorthand for --store")
	fs.StringVar(&configPath, "config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("crawl needs at least one seed URL")
	}
	seeds := fs.Args()

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return err
	}
	if backendKey != "" {
		cfg.Backend = backendKey
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	be, err := connectBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	pipeline := newPipeline(be, cfg, logger)
	pager, err := pipeline.Parser("html")
	if err != nil {
		return fmt.Errorf("building html parser: %w", err)
	}

	delay := time.Duration(cfg.RequestDelay * float64(time.Second))
	crawler := crawl.New(pager, delay, depth, logger)
	result, err := crawler.Crawl(ctx, seeds)
	if err != nil {
		return fmt.Errorf("crawling: %w", err)
	}

	stored, err := pipeline.StoreDocuments(ctx, collection, result.Documents)
	if err != nil {
		return fmt.Errorf("storing crawled pages: %w", err)
	}
	if len(result.Failed) > 0 {
		logger.Warn("some pages failed", "failed", result.Failed)
	}
	fmt.Printf("crawled %d page(s), stored %d document(s)\n", len(result.Documents), stored)
	return nil
}
