package embeddings

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClipConfig holds configuration for the CLIP HTTP provider.
type ClipConfig struct {
	// BaseURL is the base URL for the embedding server.
	BaseURL string

	// Model is the embedding model to use.
	Model string

	// Dimension is the embedding dimension reported by the server.
	// Defaults to 512 (clip-ViT-B-32).
	Dimension int

	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration
}

// Validate validates the configuration.
func (c ClipConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// ClipProvider generates embeddings via an HTTP embedding server that
// projects text and images into a shared vector space.
//
// The server exposes two endpoints:
//
//	POST /embed        {"inputs": <string or []string>, "truncate": true}
//	POST /embed_image  {"image": "<base64 PNG>"}
//
// Both return a JSON array of float vectors.
type ClipProvider struct {
	config ClipConfig
	client *http.Client
}

// NewClipProvider creates a new CLIP HTTP embedding provider.
func NewClipProvider(cfg ClipConfig) (*ClipProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 512
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &ClipProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// embedRequest is the request body for the text embed endpoint.
type embedRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

// embedImageRequest is the request body for the image embed endpoint.
type embedImageRequest struct {
	Image string `json:"image"`
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *ClipProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors, err := p.post(ctx, "/embed", embedRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}

	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *ClipProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	vectors, err := p.post(ctx, "/embed", embedRequest{Inputs: text, Truncate: true})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}

	return vectors[0], nil
}

// EmbedImage generates an embedding for PNG image bytes.
func (p *ClipProvider) EmbedImage(ctx context.Context, png []byte) ([]float32, error) {
	if len(png) == 0 {
		return nil, fmt.Errorf("%w: image cannot be empty", ErrEmptyInput)
	}

	req := embedImageRequest{Image: base64.StdEncoding.EncodeToString(png)}
	vectors, err := p.post(ctx, "/embed_image", req)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}

	return vectors[0], nil
}

// post sends a JSON request and decodes the vector array response.
func (p *ClipProvider) post(ctx context.Context, path string, payload interface{}) ([][]float32, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return vectors, nil
}

// Dimension returns the embedding dimension for the current model.
func (p *ClipProvider) Dimension() int {
	return p.config.Dimension
}

// Close releases resources held by the CLIP provider.
func (p *ClipProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
