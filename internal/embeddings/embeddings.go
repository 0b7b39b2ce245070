// Package embeddings provides embedding generation via multiple providers.
//
// Text and image content share a single vector space so that a combined
// query can search both channels with one set of vectors. The fastembed
// provider runs a local ONNX model and covers text only; the clip provider
// talks to an HTTP embedding server that handles both modalities.
package embeddings

import (
	"context"
	"errors"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrImageUnsupported indicates the provider cannot embed images.
	// Callers treat this as a signal to degrade the image channel rather
	// than as a hard failure.
	ErrImageUnsupported = errors.New("provider does not support image embeddings")
)

// Provider generates embeddings for queries, documents, and images.
type Provider interface {
	// EmbedQuery generates an embedding for a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments generates embeddings for multiple document chunks.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedImage generates an embedding for PNG image bytes in the same
	// vector space as text embeddings. Providers without an image model
	// return ErrImageUnsupported.
	EmbedImage(ctx context.Context, png []byte) ([]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}
