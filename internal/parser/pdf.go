package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ledongthuc "github.com/ledongthuc/pdf"

	"github.com/quarrydev/quarry/internal/document"
	"github.com/quarrydev/quarry/internal/registry"
)

func init() {
	register(registry.Entry[Parser]{
		Key: "pdf",
		New: func(cfg map[string]any, logger *slog.Logger) (Parser, error) {
			return NewPDF(cfg, logger), nil
		},
	})
}

// PDF extracts plain text from PDF documents. The title falls back to the
// file name since PDF metadata is often absent or junk.
type PDF struct {
	client *http.Client
	logger *slog.Logger
}

func NewPDF(cfg map[string]any, logger *slog.Logger) *PDF {
	timeout := time.Duration(cfgInt(cfg, "timeout", int(defaultFetchTimeout/time.Second))) * time.Second
	return &PDF{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *PDF) Type() string { return "pdf" }

func (p *PDF) Fetch(ctx context.Context, source string) ([]byte, error) {
	return fetchSource(ctx, p.client, source)
}

func (p *PDF) Parse(content []byte, source string) (document.Document, error) {
	reader, err := ledongthuc.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return document.Document{}, fmt.Errorf("opening pdf from %s: %w", source, err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return document.Document{}, fmt.Errorf("extracting text from %s: %w", source, err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return document.Document{}, fmt.Errorf("reading text from %s: %w", source, err)
	}

	body := strings.Join(strings.Fields(string(raw)), " ")
	meta := map[string]any{
		"page_count": reader.NumPage(),
	}
	return document.New(source, sourceBaseName(source), body, meta, "pdf"), nil
}
