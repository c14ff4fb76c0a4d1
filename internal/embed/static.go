package embed

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/quarrydev/quarry/internal/registry"
)

func init() {
	register(registry.Entry[Embedder]{
		Key: "static",
		New: func(cfg map[string]any, logger *slog.Logger) (Embedder, error) {
			return NewStatic(cfg, logger), nil
		},
	})
}

const defaultStaticDims = 256

// Static is a deterministic local embedder: each token hashes into a bucket
// of the output vector, which is then L2-normalized. Not semantically
// meaningful, but stable across runs, which is what offline runs and tests
// need.
type Static struct {
	dims   int
	logger *slog.Logger
}

// NewStatic builds a static embedder. Recognized config key: dimensions.
func NewStatic(cfg map[string]any, logger *slog.Logger) *Static {
	dims := cfgInt(cfg, "dimensions", defaultStaticDims)
	if dims <= 0 {
		dims = defaultStaticDims
	}
	return &Static{dims: dims, logger: logger}
}

func (s *Static) ModelName() string { return "static-hash" }
func (s *Static) Dimensions() int   { return s.dims }

func (s *Static) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, s.dims)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%uint32(s.dims)]++
	}
	normalize(vec)
	return vec, nil
}

func (s *Static) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
