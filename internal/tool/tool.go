// Package tool exposes the vector store as MCP tools.
//
// Each tool is a thin typed wrapper over one backend operation. The typed
// Execute methods on Kit carry the behavior and are tested directly; the
// MCP registration layer only decodes input, calls the method, and
// serializes the result as JSON text content.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quarrydev/quarry/internal/backend"
	"github.com/quarrydev/quarry/internal/ingest"
	"github.com/quarrydev/quarry/internal/registry"
)

// Tool names as exposed over MCP.
const (
	NameSearch           = "search"
	NameListCollections  = "list_collections"
	NameGetDocuments     = "get_documents"
	NameDeleteCollection = "delete_collection"
	NameAddDocuments     = "add_documents"
)

const (
	defaultSearchLimit = 5
	defaultPageLimit   = 10
)

// Tool is one MCP tool ready to attach to a server.
type Tool interface {
	// Name is the tool's MCP name and its registry key.
	Name() string

	// AddTo registers the tool's schema and handler on a server.
	AddTo(s *mcp.Server) error
}

// Kit holds the shared dependencies of all tools.
type Kit struct {
	backend backend.Backend
	logger  *slog.Logger
}

// NewKit builds the tool kit over a connected backend.
func NewKit(be backend.Backend, logger *slog.Logger) *Kit {
	return &Kit{backend: be, logger: logger}
}

// Registry returns a tool registry with all builtin tools bound to this
// kit. Server startup resolves the enabled tool names against it, so an
// unknown name in the config fails fast with the available names listed.
func (k *Kit) Registry() *registry.Registry[Tool] {
	r := registry.New[Tool]("tool", k.logger)
	r.Discover(
		entry(NameSearch, func() Tool { return &searchTool{kit: k} }),
		entry(NameListCollections, func() Tool { return &listCollectionsTool{kit: k} }),
		entry(NameGetDocuments, func() Tool { return &getDocumentsTool{kit: k} }),
		entry(NameDeleteCollection, func() Tool { return &deleteCollectionTool{kit: k} }),
		entry(NameAddDocuments, func() Tool { return &addDocumentsTool{kit: k} }),
	)
	return r
}

func entry(name string, build func() Tool) registry.Entry[Tool] {
	return registry.Entry[Tool]{
		Key: name,
		New: func(map[string]any, *slog.Logger) (Tool, error) {
			return build(), nil
		},
	}
}

// Names returns all builtin tool names in registration order.
func Names() []string {
	return []string{
		NameSearch,
		NameListCollections,
		NameGetDocuments,
		NameDeleteCollection,
		NameAddDocuments,
	}
}

// addTyped registers one typed handler with its inferred input schema.
func addTyped[In any](s *mcp.Server, name, description string, handler func(context.Context, *mcp.CallToolRequest, In) (*mcp.CallToolResult, any, error)) error {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", name, err)
	}
	mcp.AddTool(s, &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}, handler)
	return nil
}

// jsonResult serializes a value as the single text content of a tool
// result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func orDefault(collection string) string {
	if collection == "" {
		return ingest.DefaultCollection
	}
	return collection
}
