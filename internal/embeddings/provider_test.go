package embeddings

import (
	"testing"

	"github.com/fyrsmithlabs/docsight/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(config.EmbeddingsConfig{Provider: "word2vec"}, 384)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNewProviderClip(t *testing.T) {
	p, err := NewProvider(config.EmbeddingsConfig{
		Provider: "clip",
		BaseURL:  "http://localhost:9090",
	}, 512)
	require.NoError(t, err)
	assert.Equal(t, 512, p.Dimension())
}

func TestFastEmbedUnknownModel(t *testing.T) {
	_, err := NewFastEmbedProvider(FastEmbedConfig{Model: "no-such-model"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
