// Package embed provides the embedding provider plugins.
//
// An Embedder maps text to fixed-dimension vectors. The gemini provider
// calls the Gemini embedding API; the static provider is a deterministic
// local fallback used in tests and offline runs.
package embed

import (
	"context"
	"log/slog"
	"slices"

	"github.com/quarrydev/quarry/internal/registry"
)

// Embedder maps text to vectors. Implementations must be safe for
// concurrent use.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName identifies the underlying model for logging and
	// collection bookkeeping.
	ModelName() string

	// Dimensions is the vector width this embedder produces.
	Dimensions() int
}

var builtins []registry.Entry[Embedder]

func register(e registry.Entry[Embedder]) {
	builtins = append(builtins, e)
}

// Builtins returns the registration entries of all compiled-in embedders.
func Builtins() []registry.Entry[Embedder] {
	return slices.Clone(builtins)
}

// NewRegistry builds an embedder registry populated with all builtin
// providers.
func NewRegistry(logger *slog.Logger) *registry.Registry[Embedder] {
	r := registry.New[Embedder]("embedder", logger)
	r.Discover(Builtins()...)
	return r
}
