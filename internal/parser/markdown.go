package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/quarrydev/quarry/internal/document"
	"github.com/quarrydev/quarry/internal/registry"
)

func init() {
	register(registry.Entry[Parser]{
		Key: "md",
		New: func(cfg map[string]any, logger *slog.Logger) (Parser, error) {
			return NewMarkdown(cfg, logger), nil
		},
	})
}

// Markdown parses markdown files and URLs. The AST is walked to strip
// formatting: the title comes from the first heading, and the section
// headings are kept as metadata.
type Markdown struct {
	client *http.Client
	logger *slog.Logger
}

func NewMarkdown(cfg map[string]any, logger *slog.Logger) *Markdown {
	timeout := time.Duration(cfgInt(cfg, "timeout", int(defaultFetchTimeout/time.Second))) * time.Second
	return &Markdown{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (m *Markdown) Type() string { return "md" }

func (m *Markdown) Fetch(ctx context.Context, source string) ([]byte, error) {
	return fetchSource(ctx, m.client, source)
}

func (m *Markdown) Parse(content []byte, source string) (document.Document, error) {
	root := goldmark.New().Parser().Parse(text.NewReader(content))

	var (
		title    string
		headings []string
		blocks   []string
	)
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			heading := nodeText(node, content)
			if heading == "" {
				return ast.WalkSkipChildren, nil
			}
			headings = append(headings, heading)
			if title == "" {
				title = heading
			}
			blocks = append(blocks, heading)
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.ListItem, *ast.Blockquote:
			if block := nodeText(n, content); block != "" {
				blocks = append(blocks, block)
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			if code := linesText(node.Lines(), content); code != "" {
				blocks = append(blocks, code)
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			if code := linesText(node.Lines(), content); code != "" {
				blocks = append(blocks, code)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return document.Document{}, fmt.Errorf("walking markdown from %s: %w", source, err)
	}

	if title == "" {
		title = sourceBaseName(source)
	}
	body := strings.Join(blocks, "\n")
	meta := map[string]any{
		"headings":   headings,
		"word_count": len(strings.Fields(body)),
	}
	return document.New(source, title, body, meta, "md"), nil
}

// nodeText collects the plain text under a node, flattening inline markup.
func nodeText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.CodeSpan:
			for c := t.FirstChild(); c != nil; c = c.NextSibling() {
				if txt, ok := c.(*ast.Text); ok {
					sb.Write(txt.Segment.Value(source))
				}
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func linesText(lines *text.Segments, source []byte) string {
	var sb strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return strings.TrimSpace(sb.String())
}

// sourceBaseName derives a title from the source path when the document has
// no heading.
func sourceBaseName(source string) string {
	base := filepath.Base(strings.TrimSuffix(source, "/"))
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		return source
	}
	return base
}
