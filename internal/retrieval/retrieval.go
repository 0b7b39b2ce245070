// Package retrieval assembles document context for question answering.
//
// A query runs against two collections: text chunks and image descriptions.
// Both channels share one vector space, so a combined text+image query is a
// single similarity search with an averaged vector rather than a separate
// fusion stage.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsight/internal/embeddings"
	"github.com/fyrsmithlabs/docsight/internal/index"
)

// NoContextSentinel is returned by FormatContext when no retrieval hits
// exist. Callers must check for it before invoking generation.
const NoContextSentinel = "No specific document context available."

var tracer = otel.Tracer("docsight.retrieval")

// QueryResult holds ranked hits from both collections.
type QueryResult struct {
	TextResults  []index.SearchResult
	ImageResults []index.SearchResult
}

// Empty reports whether the result has no hits in either channel.
func (r *QueryResult) Empty() bool {
	return len(r.TextResults) == 0 && len(r.ImageResults) == 0
}

// Config holds assembler parameters.
type Config struct {
	TextCollection  string
	ImageCollection string

	// TopK is the number of text hits per query.
	TopK int

	// ImageTopK caps the image channel. Kept below TopK because visual
	// hits are sparser and noisier than text hits.
	ImageTopK int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.ImageTopK == 0 {
		c.ImageTopK = min(c.TopK, 3)
	}
}

// Assembler runs retrieval and formats hits into a context block.
type Assembler struct {
	provider embeddings.Provider
	store    index.Store
	config   Config
	logger   *zap.Logger
}

// NewAssembler creates a context assembler.
func NewAssembler(provider embeddings.Provider, store index.Store, config Config, logger *zap.Logger) (*Assembler, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.TextCollection == "" || config.ImageCollection == "" {
		return nil, fmt.Errorf("collection names are required")
	}

	config.ApplyDefaults()

	return &Assembler{
		provider: provider,
		store:    store,
		config:   config,
		logger:   logger,
	}, nil
}

// Retrieve runs a similarity search for the query, the image, or both.
//
// With only a query, the query text is embedded and both collections are
// searched with that vector. With only an image, the image embedding is used
// the same way. With both, the two vectors are averaged into one combined
// query vector.
//
// Embedding failures yield an empty result rather than an error; retrieval
// degrades to "no usable context" instead of failing the request. On the
// combined path a failure of either sub-embedding empties the whole result,
// not just the failed modality.
func (a *Assembler) Retrieve(ctx context.Context, query string, image []byte) (*QueryResult, error) {
	ctx, span := tracer.Start(ctx, "Assembler.Retrieve")
	defer span.End()

	span.SetAttributes(
		attribute.Bool("has_query", query != ""),
		attribute.Bool("has_image", len(image) > 0),
	)

	if query == "" && len(image) == 0 {
		return nil, fmt.Errorf("query and image cannot both be empty")
	}

	vector, ok := a.queryVector(ctx, query, image)
	if !ok {
		return &QueryResult{}, nil
	}

	return a.search(ctx, vector), nil
}

// queryVector computes the search vector for the given inputs. The second
// return value is false when embedding failed and retrieval should degrade
// to an empty result.
func (a *Assembler) queryVector(ctx context.Context, query string, image []byte) ([]float32, bool) {
	var textVec, imageVec []float32

	if query != "" {
		vec, err := a.provider.EmbedQuery(ctx, query)
		if err != nil {
			a.logger.Warn("query embedding failed", zap.Error(err))
			return nil, false
		}
		textVec = vec
	}

	if len(image) > 0 {
		vec, err := a.provider.EmbedImage(ctx, image)
		if err != nil {
			a.logger.Warn("image embedding failed", zap.Error(err))
			return nil, false
		}
		imageVec = vec
	}

	switch {
	case textVec != nil && imageVec != nil:
		combined, err := CombineVectors(textVec, imageVec)
		if err != nil {
			a.logger.Warn("combining query vectors failed", zap.Error(err))
			return nil, false
		}
		return combined, true
	case textVec != nil:
		return textVec, true
	default:
		return imageVec, true
	}
}

// search queries both collections with one vector. A failure in either
// collection empties that channel only; partial results survive.
func (a *Assembler) search(ctx context.Context, vector []float32) *QueryResult {
	result := &QueryResult{}

	textHits, err := a.store.Query(ctx, a.config.TextCollection, vector, a.config.TopK)
	if err != nil {
		a.logger.Warn("text collection query failed",
			zap.String("collection", a.config.TextCollection),
			zap.Error(err),
		)
	} else {
		result.TextResults = textHits
	}

	imageHits, err := a.store.Query(ctx, a.config.ImageCollection, vector, min(a.config.TopK, a.config.ImageTopK))
	if err != nil {
		a.logger.Warn("image collection query failed",
			zap.String("collection", a.config.ImageCollection),
			zap.Error(err),
		)
	} else {
		result.ImageResults = imageHits
	}

	return result
}

// CombineVectors averages two equal-dimension vectors element-wise.
func CombineVectors(a, b []float32) ([]float32, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("vector dimensions differ: %d vs %d", len(a), len(b))
	}

	combined := make([]float32, len(a))
	for i := range a {
		combined[i] = (a[i] + b[i]) / 2
	}
	return combined, nil
}

// FormatContext renders a QueryResult into a human-readable context block
// with source attribution. An empty result yields NoContextSentinel.
func FormatContext(result *QueryResult) string {
	if result == nil || result.Empty() {
		return NoContextSentinel
	}

	var parts []string

	if len(result.TextResults) > 0 {
		parts = append(parts, "=== TEXT CONTENT ===")
		for _, hit := range result.TextResults {
			source := metadataValue(hit.Metadata, "source")
			parts = append(parts, fmt.Sprintf("\n[Source: %s]\n%s\n", source, hit.Content))
		}
	}

	if len(result.ImageResults) > 0 {
		parts = append(parts, "\n=== VISUAL CONTENT (Charts, Diagrams, Tables) ===")
		for _, hit := range result.ImageResults {
			source := metadataValue(hit.Metadata, "source")
			page := metadataValue(hit.Metadata, "page")
			parts = append(parts, fmt.Sprintf("\n[Visual from %s, Page %s]\n%s\n", source, page, hit.Content))
		}
	}

	return strings.Join(parts, "\n")
}

func metadataValue(metadata map[string]string, key string) string {
	if v, ok := metadata[key]; ok && v != "" {
		return v
	}
	return "Unknown"
}
