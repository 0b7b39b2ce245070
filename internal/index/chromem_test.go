package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(ChromemConfig{
		Path:        t.TempDir(),
		Collections: []string{"texts", "images"},
		VectorSize:  3,
	}, nil)
	require.NoError(t, err)
	return store
}

func TestChromemConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  ChromemConfig
	}{
		{name: "no path", cfg: ChromemConfig{Collections: []string{"a"}, VectorSize: 3}},
		{name: "no collections", cfg: ChromemConfig{Path: "/tmp/x", VectorSize: 3}},
		{name: "negative vector size", cfg: ChromemConfig{Path: "/tmp/x", Collections: []string{"a"}, VectorSize: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestInsertAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.Insert(ctx, "texts", []Document{
		{ID: "text_0", Content: "alpha", Embedding: []float32{1, 0, 0}, Metadata: map[string]string{"source": "a.txt"}},
		{ID: "text_1", Content: "beta", Embedding: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"text_0", "text_1"}, ids)

	results, err := store.Query(ctx, "texts", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "text_0", results[0].ID)
	assert.Equal(t, "alpha", results[0].Content)
	assert.Equal(t, "a.txt", results[0].Metadata["source"])
	assert.InDelta(t, 1.0, results[0].Similarity, 0.001)
}

func TestQueryEmptyCollection(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Query(context.Background(), "images", []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestQueryClampsK(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, "texts", []Document{
		{ID: "only", Content: "solo", Embedding: []float32{0, 0, 1}},
	})
	require.NoError(t, err)

	// k larger than the collection must not error.
	results, err := store.Query(ctx, "texts", []float32{0, 0, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestInsertDimensionMismatch(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Insert(context.Background(), "texts", []Document{
		{ID: "bad", Content: "x", Embedding: []float32{1, 0}},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQueryDimensionMismatch(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Query(context.Background(), "texts", []float32{1, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestInsertUnknownCollection(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Insert(context.Background(), "nope", []Document{
		{ID: "x", Content: "x", Embedding: []float32{1, 0, 0}},
	})
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestInsertEmptyBatch(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Insert(context.Background(), "texts", nil)
	assert.ErrorIs(t, err, ErrEmptyDocuments)
}

func TestCountAndClear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Insert(ctx, "texts", []Document{
		{ID: "a", Content: "a", Embedding: []float32{1, 0, 0}},
		{ID: "b", Content: "b", Embedding: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
	_, err = store.Insert(ctx, "images", []Document{
		{ID: "img", Content: "chart", Embedding: []float32{0, 0, 1}},
	})
	require.NoError(t, err)

	n, err := store.Count(ctx, "texts")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Clear(ctx))

	n, err = store.Count(ctx, "texts")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.Count(ctx, "images")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Collections remain usable after a clear.
	_, err = store.Insert(ctx, "texts", []Document{
		{ID: "c", Content: "c", Embedding: []float32{1, 0, 0}},
	})
	assert.NoError(t, err)
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cfg := ChromemConfig{Path: dir, Collections: []string{"texts"}, VectorSize: 3}

	store, err := NewChromemStore(cfg, nil)
	require.NoError(t, err)
	_, err = store.Insert(ctx, "texts", []Document{
		{ID: "keep", Content: "persisted", Embedding: []float32{1, 0, 0}},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewChromemStore(cfg, nil)
	require.NoError(t, err)

	results, err := reopened.Query(ctx, "texts", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "persisted", results[0].Content)
}
