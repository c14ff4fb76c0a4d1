package parser

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/quarrydev/quarry/internal/document"
	"github.com/quarrydev/quarry/internal/registry"
)

func init() {
	register(registry.Entry[Parser]{
		Key: "html",
		New: func(cfg map[string]any, logger *slog.Logger) (Parser, error) {
			return NewHTML(cfg, logger), nil
		},
	})
}

// defaultExcluded are the boilerplate elements stripped before text
// extraction.
var defaultExcluded = []string{"nav", "header", "footer", "aside", "script", "style", "noscript"}

// HTML parses web pages. Boilerplate elements are removed before the text is
// flattened; page metadata (description, keywords, Open Graph tags) is
// carried into the document metadata.
type HTML struct {
	client         *http.Client
	excluded       []string
	useReadability bool
	logger         *slog.Logger
}

// NewHTML builds an HTML parser from a plugin config section. Recognized
// keys: timeout (seconds), exclude_elements ([]string), readability (bool).
func NewHTML(cfg map[string]any, logger *slog.Logger) *HTML {
	timeout := time.Duration(cfgInt(cfg, "timeout", int(defaultFetchTimeout/time.Second))) * time.Second
	excluded := cfgStrings(cfg, "exclude_elements")
	if excluded == nil {
		excluded = defaultExcluded
	}
	return &HTML{
		client:         &http.Client{Timeout: timeout},
		excluded:       excluded,
		useReadability: cfgBool(cfg, "readability", false),
		logger:         logger,
	}
}

func (h *HTML) Type() string { return "html" }

func (h *HTML) Fetch(ctx context.Context, source string) ([]byte, error) {
	return fetchSource(ctx, h.client, source)
}

func (h *HTML) Parse(content []byte, source string) (document.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return document.Document{}, fmt.Errorf("parsing html from %s: %w", source, err)
	}

	for _, sel := range h.excluded {
		doc.Find(sel).Remove()
	}

	text := flattenText(doc)
	if h.useReadability {
		if extracted, rerr := h.readableText(content, source); rerr == nil && extracted != "" {
			text = extracted
		} else if rerr != nil {
			h.logger.Debug("readability extraction failed, using full text",
				"source", source, "error", rerr)
		}
	}

	return document.New(source, pageTitle(doc, source), text, pageMetadata(doc, source), "html"), nil
}

func (h *HTML) readableText(content []byte, source string) (string, error) {
	pageURL, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("parsing source url: %w", err)
	}
	article, err := readability.FromReader(bytes.NewReader(content), pageURL)
	if err != nil {
		return "", fmt.Errorf("extracting article: %w", err)
	}
	return strings.Join(strings.Fields(article.TextContent), " "), nil
}

// flattenText collapses the remaining page text into single-spaced prose.
func flattenText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		return strings.Join(strings.Fields(doc.Text()), " ")
	}
	return strings.Join(strings.Fields(body.Text()), " ")
}

// pageTitle resolves the document title: <title>, then the first heading,
// then the source itself.
func pageTitle(doc *goquery.Document, source string) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if heading := strings.TrimSpace(doc.Find("h1, h2, h3, h4, h5, h6").First().Text()); heading != "" {
		return heading
	}
	return source
}

func pageMetadata(doc *goquery.Document, source string) map[string]any {
	meta := map[string]any{}
	if u, err := url.Parse(source); err == nil {
		meta["domain"] = u.Hostname()
		meta["path"] = u.Path
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		meta["description"] = desc
	}
	if kw, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok {
		meta["keywords"] = kw
	}
	doc.Find(`meta[property^="og:"]`).Each(func(_ int, sel *goquery.Selection) {
		prop, _ := sel.Attr("property")
		content, ok := sel.Attr("content")
		if !ok {
			return
		}
		key := "og_" + strings.TrimPrefix(prop, "og:")
		meta[key] = content
	})
	return meta
}

// ExtractLinks returns the absolute http(s) links found in an HTML page, in
// document order without duplicates. Fragments are stripped before
// deduplication so anchors within one page collapse to a single link.
func ExtractLinks(content []byte, base string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing html from %s: %w", base, err)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing base url %s: %w", base, err)
	}

	var links []string
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		resolved := baseURL.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		resolved.Fragment = ""
		link := resolved.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links, nil
}
