// Package index provides persistent vector storage for document chunks and
// image descriptions.
//
// Text chunks and image descriptions live in separate collections so the
// retrieval layer can weight the two channels independently. All vectors are
// computed by the caller; the index never embeds content itself.
package index

import (
	"context"
	"errors"
)

var (
	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates an empty document batch
	ErrEmptyDocuments = errors.New("no documents provided")

	// ErrCollectionNotFound indicates the named collection does not exist
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDimensionMismatch indicates a vector of the wrong size
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Document is a content item with a precomputed embedding.
type Document struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  map[string]string
}

// SearchResult is a single similarity search hit.
type SearchResult struct {
	ID         string
	Content    string
	Similarity float32
	Metadata   map[string]string
}

// Store is the persistent vector index.
type Store interface {
	// Insert adds documents with precomputed embeddings to a collection.
	// Returns the IDs of the inserted documents in batch order.
	Insert(ctx context.Context, collection string, docs []Document) ([]string, error)

	// Query returns up to k nearest documents to the given vector,
	// ordered by descending similarity. An empty collection yields an
	// empty result, not an error.
	Query(ctx context.Context, collection string, vector []float32, k int) ([]SearchResult, error)

	// Count returns the number of documents in a collection.
	Count(ctx context.Context, collection string) (int, error)

	// Clear removes all documents from all collections.
	Clear(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
