// Package document defines the canonical parsed-content record shared by
// parsers and storage backends. Every parser produces a Document; every
// backend consumes one. Documents are value types and are never mutated
// after creation.
package document

import (
	"time"
)

// Document is the standardised output of a parser, ready for embedding.
type Document struct {
	// Source uniquely identifies where the content came from (URL or path).
	Source string `json:"source"`

	// Title is the extracted document title.
	Title string `json:"title"`

	// Content is the main body text used for embedding.
	Content string `json:"content"`

	// Metadata carries source-specific attributes (domain, path, og tags...).
	Metadata map[string]any `json:"metadata"`

	// Timestamp records parse time as RFC 3339 UTC.
	Timestamp string `json:"timestamp"`

	// SourceType is the key of the parser that produced this document.
	SourceType string `json:"source_type"`
}

// New builds a Document stamped with the current UTC time.
func New(source, title, content string, metadata map[string]any, sourceType string) Document {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return Document{
		Source:     source,
		Title:      title,
		Content:    content,
		Metadata:   metadata,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		SourceType: sourceType,
	}
}

// Payload converts the document to a flat key-value form suitable for
// storage engine payloads. The conversion is lossless.
func (d Document) Payload() map[string]any {
	return map[string]any{
		"source":      d.Source,
		"title":       d.Title,
		"content":     d.Content,
		"metadata":    d.Metadata,
		"timestamp":   d.Timestamp,
		"source_type": d.SourceType,
	}
}

// FromPayload reconstructs a Document from a stored payload. Unknown or
// missing keys yield zero values rather than errors.
func FromPayload(payload map[string]any) Document {
	doc := Document{Metadata: map[string]any{}}
	if v, ok := payload["source"].(string); ok {
		doc.Source = v
	}
	if v, ok := payload["title"].(string); ok {
		doc.Title = v
	}
	if v, ok := payload["content"].(string); ok {
		doc.Content = v
	}
	if v, ok := payload["metadata"].(map[string]any); ok {
		doc.Metadata = v
	}
	if v, ok := payload["timestamp"].(string); ok {
		doc.Timestamp = v
	}
	if v, ok := payload["source_type"].(string); ok {
		doc.SourceType = v
	}
	return doc
}
