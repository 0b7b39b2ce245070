// Package config provides configuration loading for docsight.
//
// Configuration is loaded from an optional YAML file and overridden by
// environment variables. Remote credentials are supplied exclusively through
// the environment (GEMINI_API_KEY_1 .. GEMINI_API_KEY_10) and are never read
// from the config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fyrsmithlabs/docsight/internal/logging"
)

// maxCredentials is the highest GEMINI_API_KEY_N index scanned.
const maxCredentials = 10

// ErrNoCredentials indicates no API credentials were found in the environment.
var ErrNoCredentials = errors.New("no API credentials found (set GEMINI_API_KEY_1 .. GEMINI_API_KEY_10)")

// Config holds the complete docsight configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     logging.Config    `koanf:"logging"`
	Credentials CredentialsConfig `koanf:"credentials"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Generation  GenerationConfig  `koanf:"generation"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Index       IndexConfig       `koanf:"index"`
	Images      ImagesConfig      `koanf:"images"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// CredentialsConfig holds credential pool configuration.
//
// Keys is populated from the environment at load time, never from the file.
type CredentialsConfig struct {
	Keys     []string      `koanf:"-"`
	Cooldown time.Duration `koanf:"cooldown"`
}

// ChunkingConfig holds text chunking parameters.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// RetrievalConfig holds similarity search parameters.
type RetrievalConfig struct {
	// TopK is the number of text chunks retrieved per query.
	TopK int `koanf:"top_k"`

	// ImageTopK caps the image-description channel. Visual hits are sparser
	// and noisier than text hits, so this stays below TopK.
	ImageTopK int `koanf:"image_top_k"`
}

// GenerationConfig holds remote model parameters.
type GenerationConfig struct {
	Model           string        `koanf:"model"`
	VisionModel     string        `koanf:"vision_model"`
	BaseURL         string        `koanf:"base_url"`
	Temperature     float64       `koanf:"temperature"`
	MaxOutputTokens int           `koanf:"max_output_tokens"`
	RetryBackoff    time.Duration `koanf:"retry_backoff"`
	Timeout         time.Duration `koanf:"timeout"`
}

// EmbeddingsConfig holds local embedding model configuration.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend: "fastembed" (local ONNX,
	// text only) or "clip" (HTTP embedding server with shared text/image
	// vector space).
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
	CacheDir string `koanf:"cache_dir"`
	BaseURL  string `koanf:"base_url"`
}

// IndexConfig holds embedded vector index configuration.
type IndexConfig struct {
	Path            string `koanf:"path"`
	TextCollection  string `koanf:"text_collection"`
	ImageCollection string `koanf:"image_collection"`
	VectorSize      int    `koanf:"vector_size"`
	Compress        bool   `koanf:"compress"`
}

// ImagesConfig holds image processing bounds.
type ImagesConfig struct {
	MaxWidth  int `koanf:"max_width"`
	MaxHeight int `koanf:"max_height"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8099
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	cfg.Logging.ApplyDefaults()

	if cfg.Credentials.Cooldown == 0 {
		cfg.Credentials.Cooldown = 2 * time.Second
	}

	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 1000
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 200
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.ImageTopK == 0 {
		cfg.Retrieval.ImageTopK = 3
	}

	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gemini-2.5-flash"
	}
	if cfg.Generation.VisionModel == "" {
		cfg.Generation.VisionModel = cfg.Generation.Model
	}
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Generation.Temperature == 0 {
		cfg.Generation.Temperature = 0.3
	}
	if cfg.Generation.MaxOutputTokens == 0 {
		cfg.Generation.MaxOutputTokens = 2048
	}
	if cfg.Generation.RetryBackoff == 0 {
		cfg.Generation.RetryBackoff = 2 * time.Second
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = 60 * time.Second
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}

	if cfg.Index.Path == "" {
		cfg.Index.Path = "~/.config/docsight/index"
	}
	if cfg.Index.TextCollection == "" {
		cfg.Index.TextCollection = "document_texts"
	}
	if cfg.Index.ImageCollection == "" {
		cfg.Index.ImageCollection = "document_images"
	}
	if cfg.Index.VectorSize == 0 {
		cfg.Index.VectorSize = 384 // all-MiniLM-L6-v2 dimensions
	}

	if cfg.Images.MaxWidth == 0 {
		cfg.Images.MaxWidth = 1024
	}
	if cfg.Images.MaxHeight == 0 {
		cfg.Images.MaxHeight = 1024
	}
}

// Validate validates the configuration.
//
// Returns an error if:
//   - No credentials are configured (fatal: the process must not start)
//   - Server port is out of range
//   - Chunk overlap is not smaller than chunk size
//   - Vector size or retrieval K is not positive
func (c *Config) Validate() error {
	if len(c.Credentials.Keys) == 0 {
		return ErrNoCredentials
	}
	if len(c.Credentials.Keys) > maxCredentials {
		return fmt.Errorf("too many credentials: %d (max %d)", len(c.Credentials.Keys), maxCredentials)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	if err := c.Logging.Validate(); err != nil {
		return err
	}

	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.Chunking.Overlap, c.Chunking.Size)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval top_k must be positive, got %d", c.Retrieval.TopK)
	}

	if c.Index.VectorSize <= 0 {
		return fmt.Errorf("vector size must be positive, got %d", c.Index.VectorSize)
	}

	if c.Embeddings.Provider == "clip" && c.Embeddings.BaseURL == "" {
		return errors.New("embeddings base_url required for clip provider")
	}

	return nil
}

// loadAPIKeys scans the environment for GEMINI_API_KEY_1 .. GEMINI_API_KEY_10.
func loadAPIKeys() []string {
	var keys []string
	for i := 1; i <= maxCredentials; i++ {
		key := strings.TrimSpace(os.Getenv(fmt.Sprintf("GEMINI_API_KEY_%d", i)))
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}
