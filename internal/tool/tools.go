package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/quarrydev/quarry/internal/backend"
)

// SearchInput is the search tool's argument schema.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"the text to search for"`
	Collection string `json:"collection,omitempty" jsonschema:"collection to search, defaults to documents"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of results, defaults to 5"`
}

// SearchOutput lists hits best-first.
type SearchOutput struct {
	Results []backend.Hit `json:"results"`
}

// Search runs a semantic search against one collection.
func (k *Kit) Search(ctx context.Context, in SearchInput) (SearchOutput, error) {
	if in.Query == "" {
		return SearchOutput{}, fmt.Errorf("query must not be empty")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	hits, err := k.backend.Search(ctx, orDefault(in.Collection), in.Query, limit)
	if err != nil {
		return SearchOutput{}, err
	}
	if hits == nil {
		hits = []backend.Hit{}
	}
	return SearchOutput{Results: hits}, nil
}

type searchTool struct{ kit *Kit }

func (t *searchTool) Name() string { return NameSearch }

func (t *searchTool) AddTo(s *mcp.Server) error {
	return addTyped(s, NameSearch,
		"Search stored documents by semantic similarity. Returns the closest matches with similarity scores.",
		func(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, any, error) {
			out, err := t.kit.Search(ctx, in)
			if err != nil {
				return nil, nil, fmt.Errorf("search failed: %w", err)
			}
			result, err := jsonResult(out)
			return result, nil, err
		})
}

// ListCollectionsInput is intentionally empty.
type ListCollectionsInput struct{}

// ListCollectionsOutput names the known collections.
type ListCollectionsOutput struct {
	Collections []string `json:"collections"`
}

// ListCollections lists all collections in the store.
func (k *Kit) ListCollections(ctx context.Context, _ ListCollectionsInput) (ListCollectionsOutput, error) {
	names, err := k.backend.ListCollections(ctx)
	if err != nil {
		return ListCollectionsOutput{}, err
	}
	if names == nil {
		names = []string{}
	}
	return ListCollectionsOutput{Collections: names}, nil
}

type listCollectionsTool struct{ kit *Kit }

func (t *listCollectionsTool) Name() string { return NameListCollections }

func (t *listCollectionsTool) AddTo(s *mcp.Server) error {
	return addTyped(s, NameListCollections,
		"List the names of all collections in the vector store.",
		func(ctx context.Context, _ *mcp.CallToolRequest, in ListCollectionsInput) (*mcp.CallToolResult, any, error) {
			out, err := t.kit.ListCollections(ctx, in)
			if err != nil {
				return nil, nil, fmt.Errorf("list_collections failed: %w", err)
			}
			result, err := jsonResult(out)
			return result, nil, err
		})
}

// GetDocumentsInput pages through one collection.
type GetDocumentsInput struct {
	Collection string `json:"collection,omitempty" jsonschema:"collection to read, defaults to documents"`
	Limit      int    `json:"limit,omitempty" jsonschema:"page size, defaults to 10"`
	Offset     string `json:"offset,omitempty" jsonschema:"cursor from the previous page's next_offset"`
}

// GetDocumentsOutput is one page of stored records.
type GetDocumentsOutput struct {
	Documents  []backend.Item `json:"documents"`
	NextOffset string         `json:"next_offset,omitempty"`
}

// GetDocuments reads one pagination window of a collection.
func (k *Kit) GetDocuments(ctx context.Context, in GetDocumentsInput) (GetDocumentsOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	page, err := k.backend.GetDocuments(ctx, orDefault(in.Collection), limit, in.Offset)
	if err != nil {
		return GetDocumentsOutput{}, err
	}
	if page.Items == nil {
		page.Items = []backend.Item{}
	}
	return GetDocumentsOutput{Documents: page.Items, NextOffset: page.NextOffset}, nil
}

type getDocumentsTool struct{ kit *Kit }

func (t *getDocumentsTool) Name() string { return NameGetDocuments }

func (t *getDocumentsTool) AddTo(s *mcp.Server) error {
	return addTyped(s, NameGetDocuments,
		"Read stored documents from a collection page by page. Pass next_offset back to continue.",
		func(ctx context.Context, _ *mcp.CallToolRequest, in GetDocumentsInput) (*mcp.CallToolResult, any, error) {
			out, err := t.kit.GetDocuments(ctx, in)
			if err != nil {
				return nil, nil, fmt.Errorf("get_documents failed: %w", err)
			}
			result, err := jsonResult(out)
			return result, nil, err
		})
}

// DeleteCollectionInput names the collection to drop.
type DeleteCollectionInput struct {
	Collection string `json:"collection" jsonschema:"the collection to delete"`
}

// DeleteCollectionOutput reports whether anything was removed.
type DeleteCollectionOutput struct {
	Deleted bool `json:"deleted"`
}

// DeleteCollection drops a collection and all its documents.
func (k *Kit) DeleteCollection(ctx context.Context, in DeleteCollectionInput) (DeleteCollectionOutput, error) {
	if in.Collection == "" {
		return DeleteCollectionOutput{}, fmt.Errorf("collection must not be empty")
	}
	deleted, err := k.backend.DeleteCollection(ctx, in.Collection)
	if err != nil {
		return DeleteCollectionOutput{}, err
	}
	return DeleteCollectionOutput{Deleted: deleted}, nil
}

type deleteCollectionTool struct{ kit *Kit }

func (t *deleteCollectionTool) Name() string { return NameDeleteCollection }

func (t *deleteCollectionTool) AddTo(s *mcp.Server) error {
	return addTyped(s, NameDeleteCollection,
		"Delete a collection and every document in it. Reports whether the collection existed.",
		func(ctx context.Context, _ *mcp.CallToolRequest, in DeleteCollectionInput) (*mcp.CallToolResult, any, error) {
			out, err := t.kit.DeleteCollection(ctx, in)
			if err != nil {
				return nil, nil, fmt.Errorf("delete_collection failed: %w", err)
			}
			result, err := jsonResult(out)
			return result, nil, err
		})
}

// AddDocumentsInput stores raw text snippets.
type AddDocumentsInput struct {
	Documents  []string         `json:"documents" jsonschema:"text snippets to embed and store"`
	Metadatas  []map[string]any `json:"metadatas,omitempty" jsonschema:"optional metadata, one entry per document"`
	Collection string           `json:"collection,omitempty" jsonschema:"target collection, defaults to documents"`
}

// AddDocumentsOutput reports how many snippets were stored.
type AddDocumentsOutput struct {
	StoredCount int `json:"stored_count"`
}

// AddDocuments embeds and stores raw texts with optional metadata.
func (k *Kit) AddDocuments(ctx context.Context, in AddDocumentsInput) (AddDocumentsOutput, error) {
	if len(in.Documents) == 0 {
		return AddDocumentsOutput{}, fmt.Errorf("documents must not be empty")
	}
	stored, err := k.backend.AddDocuments(ctx, orDefault(in.Collection), in.Documents, in.Metadatas)
	if err != nil {
		return AddDocumentsOutput{}, err
	}
	return AddDocumentsOutput{StoredCount: stored}, nil
}

type addDocumentsTool struct{ kit *Kit }

func (t *addDocumentsTool) Name() string { return NameAddDocuments }

func (t *addDocumentsTool) AddTo(s *mcp.Server) error {
	return addTyped(s, NameAddDocuments,
		"Embed and store raw text snippets with optional per-snippet metadata.",
		func(ctx context.Context, _ *mcp.CallToolRequest, in AddDocumentsInput) (*mcp.CallToolResult, any, error) {
			out, err := t.kit.AddDocuments(ctx, in)
			if err != nil {
				return nil, nil, fmt.Errorf("add_documents failed: %w", err)
			}
			result, err := jsonResult(out)
			return result, nil, err
		})
}
