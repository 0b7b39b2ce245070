package index

import (
	"context"
	"fmt"
	"os"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("docsight.index.chromem")

// ChromemConfig holds configuration for the chromem-go embedded vector index.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collections are the collection names created at startup.
	Collections []string

	// VectorSize is the expected embedding dimension.
	// Default: 384 (all-MiniLM-L6-v2)
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if len(c.Collections) == 0 {
		return fmt.Errorf("%w: at least one collection required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies: pure Go, no external service, automatic persistence to gob
// files. Similarity is cosine over normalized vectors.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger
}

// NewChromemStore creates a ChromemStore and its configured collections.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if err := os.MkdirAll(config.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", config.Path, err)
	}

	db, err := chromem.NewPersistentDB(config.Path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	s := &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
	}

	for _, name := range config.Collections {
		if _, err := s.db.GetOrCreateCollection(name, nil, rejectEmbedding); err != nil {
			return nil, fmt.Errorf("creating collection %s: %w", name, err)
		}
	}

	logger.Info("chromem index initialized",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.Strings("collections", config.Collections),
	)

	return s, nil
}

// rejectEmbedding guards against chromem-go falling back to its default
// OpenAI embedder. All vectors here are precomputed, so this must never run.
func rejectEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("index does not embed content; vectors must be precomputed")
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	c := s.db.GetCollection(name, rejectEmbedding)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return c, nil
}

// Insert adds documents with precomputed embeddings to a collection.
func (s *ChromemStore) Insert(ctx context.Context, collectionName string, docs []Document) ([]string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collectionName),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	collection, err := s.collection(collectionName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	chromemDocs := make([]chromem.Document, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		if len(doc.Embedding) != s.config.VectorSize {
			err := fmt.Errorf("%w: document %d has %d dimensions, want %d",
				ErrDimensionMismatch, i, len(doc.Embedding), s.config.VectorSize)
			span.RecordError(err)
			return nil, err
		}
		ids[i] = doc.ID
		if ids[i] == "" {
			return nil, fmt.Errorf("document at index %d has no ID", i)
		}
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
		}
	}

	// Concurrency of 1 since embeddings are already computed.
	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("inserted documents",
		zap.String("collection", collectionName),
		zap.Int("count", len(docs)),
	)

	return ids, nil
}

// Query returns up to k nearest documents to the given vector.
func (s *ChromemStore) Query(ctx context.Context, collectionName string, vector []float32, k int) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collectionName),
		attribute.Int("k", k),
	)

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d",
			ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	collection, err := s.collection(collectionName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Cap k at collection size (chromem requires nResults <= doc count).
	docCount := collection.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collectionName, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:         r.ID,
			Content:    r.Content,
			Similarity: r.Similarity,
			Metadata:   r.Metadata,
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(searchResults)))
	span.SetStatus(codes.Ok, "success")

	return searchResults, nil
}

// Count returns the number of documents in a collection.
func (s *ChromemStore) Count(ctx context.Context, collectionName string) (int, error) {
	collection, err := s.collection(collectionName)
	if err != nil {
		return 0, err
	}
	return collection.Count(), nil
}

// Clear removes all documents by deleting and recreating every collection.
func (s *ChromemStore) Clear(ctx context.Context) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Clear")
	defer span.End()

	for _, name := range s.config.Collections {
		if err := s.db.DeleteCollection(name); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("deleting collection %s: %w", name, err)
		}
		if _, err := s.db.CreateCollection(name, nil, rejectEmbedding); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("recreating collection %s: %w", name, err)
		}
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Info("cleared index", zap.Strings("collections", s.config.Collections))
	return nil
}

// Close closes the store.
// chromem-go persists on write, so there is nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
