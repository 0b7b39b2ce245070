package embeddings

import (
	"fmt"

	"github.com/fyrsmithlabs/docsight/internal/config"
)

// NewProvider creates an embedding provider from configuration.
func NewProvider(cfg config.EmbeddingsConfig, vectorSize int) (Provider, error) {
	switch cfg.Provider {
	case "fastembed":
		return NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "clip":
		return NewClipProvider(ClipConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: vectorSize,
		})
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q (supported: fastembed, clip)", ErrInvalidConfig, cfg.Provider)
	}
}
