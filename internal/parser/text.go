package parser

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quarrydev/quarry/internal/document"
	"github.com/quarrydev/quarry/internal/registry"
)

func init() {
	register(registry.Entry[Parser]{
		Key: "txt",
		New: func(cfg map[string]any, logger *slog.Logger) (Parser, error) {
			return NewText(cfg, logger), nil
		},
	})
}

// maxTextTitleLen caps titles derived from the first line of a plain text
// file.
const maxTextTitleLen = 80

// Text parses plain text files. The first non-empty line becomes the title.
type Text struct {
	client *http.Client
	logger *slog.Logger
}

func NewText(cfg map[string]any, logger *slog.Logger) *Text {
	timeout := time.Duration(cfgInt(cfg, "timeout", int(defaultFetchTimeout/time.Second))) * time.Second
	return &Text{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (t *Text) Type() string { return "txt" }

func (t *Text) Fetch(ctx context.Context, source string) ([]byte, error) {
	return fetchSource(ctx, t.client, source)
}

func (t *Text) Parse(content []byte, source string) (document.Document, error) {
	body := strings.TrimSpace(string(content))

	title := ""
	for _, line := range strings.Split(body, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			title = line
			break
		}
	}
	if title == "" {
		title = sourceBaseName(source)
	}
	if runes := []rune(title); len(runes) > maxTextTitleLen {
		title = string(runes[:maxTextTitleLen])
	}

	meta := map[string]any{
		"line_count": len(strings.Split(body, "\n")),
		"word_count": len(strings.Fields(body)),
	}
	return document.New(source, title, body, meta, "txt"), nil
}
