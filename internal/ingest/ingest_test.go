package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docsight/internal/captioner"
	"github.com/fyrsmithlabs/docsight/internal/credentials"
	"github.com/fyrsmithlabs/docsight/internal/index"
)

type fakeProvider struct {
	dim int
}

func (f *fakeProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, f.dim), nil
}

func (f *fakeProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeProvider) EmbedImage(ctx context.Context, png []byte) ([]float32, error) {
	return make([]float32, f.dim), nil
}

func (f *fakeProvider) Dimension() int { return f.dim }
func (f *fakeProvider) Close() error   { return nil }

type fakeStore struct {
	collections map[string][]index.Document
}

func newFakeStore() *fakeStore {
	return &fakeStore{collections: make(map[string][]index.Document)}
}

func (f *fakeStore) Insert(ctx context.Context, collection string, docs []index.Document) ([]string, error) {
	f.collections[collection] = append(f.collections[collection], docs...)
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

func (f *fakeStore) Query(ctx context.Context, collection string, vector []float32, k int) ([]index.SearchResult, error) {
	return nil, nil
}

func (f *fakeStore) Count(ctx context.Context, collection string) (int, error) {
	return len(f.collections[collection]), nil
}

func (f *fakeStore) Clear(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                    { return nil }

// captionStub answers vision calls with a fixed description.
func captionStub(t *testing.T, reply string, fail bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"code": 400, "message": "bad image", "status": "INVALID_ARGUMENT"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": reply}},
				}},
			},
		})
	}))
}

func newIngestor(t *testing.T, store index.Store, baseURL string) *Ingestor {
	t.Helper()

	var cap *captioner.Captioner
	if baseURL != "" {
		pool, err := credentials.NewPool([]string{"k1"}, credentials.PoolConfig{Cooldown: time.Millisecond}, nil)
		require.NoError(t, err)
		cap, err = captioner.New(pool, captioner.Config{BaseURL: baseURL, RetryBackoff: time.Millisecond}, nil)
		require.NoError(t, err)
	}

	in, err := New(&fakeProvider{dim: 3}, store, cap, Config{
		ChunkSize:       80,
		ChunkOverlap:    10,
		TextCollection:  "document_texts",
		ImageCollection: "document_images",
	}, nil)
	require.NoError(t, err)
	return in
}

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestIngestTextFile(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("The quarterly revenue grew steadily across all regions. ", 10)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.txt"), []byte(content), 0o600))

	store := newFakeStore()
	in := newIngestor(t, store, "")

	stats, err := in.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Documents)
	assert.Greater(t, stats.ChunksAdded, 1)
	assert.Zero(t, stats.ImagesAdded)

	docs := store.collections["document_texts"]
	require.Len(t, docs, stats.ChunksAdded)
	assert.Equal(t, "text_0", docs[0].ID)
	assert.Equal(t, "report.txt", docs[0].Metadata["source"])
	assert.Equal(t, "0", docs[0].Metadata["chunk_id"])
	assert.Len(t, docs[0].Embedding, 3)
}

func TestIngestIDsContinueAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("short document"), 0o600))

	store := newFakeStore()
	in := newIngestor(t, store, "")

	_, err := in.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	_, err = in.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)

	docs := store.collections["document_texts"]
	require.Len(t, docs, 2)
	assert.Equal(t, "text_0", docs[0].ID)
	assert.Equal(t, "text_1", docs[1].ID)
}

func TestIngestWithSidecarImages(t *testing.T) {
	server := captionStub(t, "a bar chart of revenue", false)
	defer server.Close()

	dir := t.TempDir()
	docPath := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(docPath, []byte("revenue report body"), 0o600))

	imgDir := docPath + ".images"
	require.NoError(t, os.Mkdir(imgDir, 0o755))
	writeTestPNG(t, filepath.Join(imgDir, "01.png"), 8, 8)
	writeTestPNG(t, filepath.Join(imgDir, "02.png"), 8, 8)

	store := newFakeStore()
	in := newIngestor(t, store, server.URL)

	stats, err := in.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ImagesAdded)

	images := store.collections["document_images"]
	require.Len(t, images, 2)
	assert.Equal(t, "image_0", images[0].ID)
	assert.Equal(t, "[Page 1] a bar chart of revenue", images[0].Content)
	assert.Equal(t, "report.txt", images[0].Metadata["source"])
	assert.Equal(t, "1", images[0].Metadata["page"])
	assert.Equal(t, "image_description", images[0].Metadata["type"])
	assert.Equal(t, "2", images[1].Metadata["page"])
}

func TestIngestCaptionFailureSkipsImage(t *testing.T) {
	server := captionStub(t, "", true)
	defer server.Close()

	dir := t.TempDir()
	docPath := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(docPath, []byte("document body"), 0o600))

	imgDir := docPath + ".images"
	require.NoError(t, os.Mkdir(imgDir, 0o755))
	writeTestPNG(t, filepath.Join(imgDir, "01.png"), 4, 4)

	store := newFakeStore()
	in := newIngestor(t, store, server.URL)

	stats, err := in.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)

	// The document still ingests; only the image channel is empty.
	assert.Equal(t, 1, stats.Documents)
	assert.Greater(t, stats.ChunksAdded, 0)
	assert.Zero(t, stats.ImagesAdded)
}

func TestIngestSkipsUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.bin"), []byte{0, 1, 2}, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# notes\nsome content"), 0o600))

	store := newFakeStore()
	in := newIngestor(t, store, "")

	stats, err := in.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
}

func TestIngestEmptyFileSkipped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.txt"), []byte("   "), 0o600))

	store := newFakeStore()
	in := newIngestor(t, store, "")

	stats, err := in.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
}

func TestNewRejectsBadOverlap(t *testing.T) {
	_, err := New(&fakeProvider{dim: 3}, newFakeStore(), nil, Config{
		ChunkSize:       100,
		ChunkOverlap:    100,
		TextCollection:  "t",
		ImageCollection: "i",
	}, nil)
	assert.Error(t, err)
}

func TestFitImageScalesDown(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	out, err := fitImage(buf.Bytes(), 10, 10)
	require.NoError(t, err)

	decoded, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 10, decoded.Bounds().Dx())
	assert.Equal(t, 5, decoded.Bounds().Dy())
}

func TestFitImagePassThrough(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	out, err := fitImage(buf.Bytes(), 10, 10)
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), out)
}
