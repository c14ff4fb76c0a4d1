// Package crawl walks websites breadth-first and collects their pages as
// documents.
//
// Each branch of the crawl stays inside its seed's scope: the seed URL
// truncated to its last path segment. Every page is fetched exactly once
// across all seeds, fetch failures are tolerated, and the collected
// documents are returned for one batched store.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/quarrydev/quarry/internal/document"
	"github.com/quarrydev/quarry/internal/parser"
)

// DefaultDepth bounds a crawl when the caller does not choose one.
const DefaultDepth = 2

// Pager fetches and parses one page. *parser.HTML satisfies it; tests
// substitute fakes.
type Pager interface {
	Fetch(ctx context.Context, source string) ([]byte, error)
	Parse(content []byte, source string) (document.Document, error)
}

// Result summarizes one crawl.
type Result struct {
	Documents []document.Document
	Failed    []string
}

// Crawler walks pages breadth-first from seed URLs.
type Crawler struct {
	pager    Pager
	limiter  *rate.Limiter
	maxDepth int
	logger   *slog.Logger
}

// New builds a crawler. requestDelay paces page fetches; zero disables
// pacing. maxDepth <= 0 falls back to DefaultDepth.
func New(pager Pager, requestDelay time.Duration, maxDepth int, logger *slog.Logger) *Crawler {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(requestDelay), 1)
	}
	if maxDepth <= 0 {
		maxDepth = DefaultDepth
	}
	return &Crawler{
		pager:    pager,
		limiter:  limiter,
		maxDepth: maxDepth,
		logger:   logger,
	}
}

type frontierItem struct {
	url   string
	depth int
	scope string
}

// Crawl walks from the seeds. Depth 0 fetches only the seeds; each extra
// level follows links one hop further, each seed within its own scope.
// Pages are marked visited when enqueued, so link cycles and overlapping
// seeds terminate with one fetch per page.
func (c *Crawler) Crawl(ctx context.Context, seeds []string) (*Result, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no seed urls")
	}

	result := &Result{}
	visited := map[string]struct{}{}
	var frontier []frontierItem
	for _, seed := range seeds {
		scope, err := scopeOf(seed)
		if err != nil {
			return nil, err
		}
		if _, seen := visited[seed]; seen {
			continue
		}
		visited[seed] = struct{}{}
		frontier = append(frontier, frontierItem{url: seed, depth: 0, scope: scope})
	}
	c.logger.Info("starting crawl", "seeds", len(frontier), "max_depth", c.maxDepth)

	for len(frontier) > 0 {
		item := frontier[0]
		frontier = frontier[1:]

		if err := c.limiter.Wait(ctx); err != nil {
			return result, err
		}

		content, err := c.pager.Fetch(ctx, item.url)
		if err != nil {
			c.logger.Warn("skipping page", "url", item.url, "error", err)
			result.Failed = append(result.Failed, item.url)
			continue
		}
		doc, err := c.pager.Parse(content, item.url)
		if err != nil {
			c.logger.Warn("skipping unparseable page", "url", item.url, "error", err)
			result.Failed = append(result.Failed, item.url)
			continue
		}
		result.Documents = append(result.Documents, doc)
		c.logger.Debug("crawled page", "url", item.url, "depth", item.depth, "title", doc.Title)

		if item.depth >= c.maxDepth {
			continue
		}
		links, err := parser.ExtractLinks(content, item.url)
		if err != nil {
			c.logger.Warn("extracting links failed", "url", item.url, "error", err)
			continue
		}
		for _, link := range links {
			if !strings.HasPrefix(link, item.scope) {
				continue
			}
			if _, seen := visited[link]; seen {
				continue
			}
			visited[link] = struct{}{}
			frontier = append(frontier, frontierItem{url: link, depth: item.depth + 1, scope: item.scope})
		}
	}

	c.logger.Info("crawl finished",
		"pages", len(result.Documents), "failed", len(result.Failed))
	return result, nil
}

// scopeOf truncates the seed to its last path segment, so a crawl seeded
// at /docs/intro may follow /docs/setup but not /blog/post.
func scopeOf(seed string) (string, error) {
	if !strings.HasPrefix(seed, "http://") && !strings.HasPrefix(seed, "https://") {
		return "", fmt.Errorf("seed %q is not an http(s) url", seed)
	}
	rest := seed[strings.Index(seed, "://")+3:]
	slash := strings.LastIndex(rest, "/")
	if slash < 0 {
		return seed + "/", nil
	}
	return seed[:len(seed)-len(rest)+slash+1], nil
}
