// Package ingest loads documents into the retrieval index.
//
// For each source file the text is extracted, split into overlapping chunks,
// embedded, and stored in the text collection. Page images found in the
// document's sidecar directory are captioned by the vision model and stored
// in the image-description collection. Embedding of independent chunks is
// parallelized; index writes stay serialized.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/docsight/internal/captioner"
	"github.com/fyrsmithlabs/docsight/internal/embeddings"
	"github.com/fyrsmithlabs/docsight/internal/index"
)

var tracer = otel.Tracer("docsight.ingest")

// captionContextLimit bounds the document excerpt passed to the captioner.
const captionContextLimit = 1000

// embedBatchSize is the number of chunks embedded per provider call.
const embedBatchSize = 32

// Config holds ingestion parameters.
type Config struct {
	ChunkSize    int
	ChunkOverlap int

	TextCollection  string
	ImageCollection string

	MaxImageWidth  int
	MaxImageHeight int

	// EmbedConcurrency bounds parallel embedding calls. Defaults to 4.
	EmbedConcurrency int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 1000
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = 200
	}
	if c.MaxImageWidth == 0 {
		c.MaxImageWidth = 1024
	}
	if c.MaxImageHeight == 0 {
		c.MaxImageHeight = 1024
	}
	if c.EmbedConcurrency == 0 {
		c.EmbedConcurrency = 4
	}
}

// Stats summarizes one ingestion run.
type Stats struct {
	Documents   int `json:"documents"`
	ChunksAdded int `json:"chunks_added"`
	ImagesAdded int `json:"images_added"`
}

// Ingestor loads documents into the index.
type Ingestor struct {
	provider  embeddings.Provider
	store     index.Store
	captioner *captioner.Captioner
	splitter  textsplitter.RecursiveCharacter
	config    Config
	logger    *zap.Logger
}

// New creates an ingestor. The captioner may be nil, in which case sidecar
// images are skipped.
func New(provider embeddings.Provider, store index.Store, cap *captioner.Captioner, config Config, logger *zap.Logger) (*Ingestor, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config.TextCollection == "" || config.ImageCollection == "" {
		return nil, fmt.Errorf("collection names are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", config.ChunkOverlap, config.ChunkSize)
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(config.ChunkSize),
		textsplitter.WithChunkOverlap(config.ChunkOverlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ".", "!", "?", ",", " ", ""}),
	)

	return &Ingestor{
		provider:  provider,
		store:     store,
		captioner: cap,
		splitter:  splitter,
		config:    config,
		logger:    logger,
	}, nil
}

// IngestDirectory processes every supported document in a directory.
// Supported formats: .pdf, .txt, .md. A document that fails to read is
// logged and skipped; the run continues with the remaining files.
func (in *Ingestor) IngestDirectory(ctx context.Context, dir string) (*Stats, error) {
	ctx, span := tracer.Start(ctx, "Ingestor.IngestDirectory")
	defer span.End()

	batchID := uuid.NewString()
	span.SetAttributes(
		attribute.String("dir", dir),
		attribute.String("batch_id", batchID),
	)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	logger := in.logger.With(zap.String("batch_id", batchID))

	stats := &Stats{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !supportedDocument(path) {
			continue
		}

		if err := in.ingestFile(ctx, path, stats, logger); err != nil {
			logger.Warn("skipping document",
				zap.String("file", entry.Name()),
				zap.Error(err),
			)
		}
	}

	span.SetAttributes(
		attribute.Int("documents", stats.Documents),
		attribute.Int("chunks_added", stats.ChunksAdded),
		attribute.Int("images_added", stats.ImagesAdded),
	)

	logger.Info("ingestion complete",
		zap.String("dir", dir),
		zap.Int("documents", stats.Documents),
		zap.Int("chunks", stats.ChunksAdded),
		zap.Int("images", stats.ImagesAdded),
	)

	return stats, nil
}

func supportedDocument(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

func (in *Ingestor) ingestFile(ctx context.Context, path string, stats *Stats, logger *zap.Logger) error {
	var (
		text string
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err = readPDF(path)
	} else {
		text, err = readTextFile(path)
	}
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("document contains no text")
	}

	source := filepath.Base(path)

	added, err := in.addTextChunks(ctx, text, source)
	if err != nil {
		return err
	}
	stats.ChunksAdded += added

	images, err := in.addSidecarImages(ctx, path, text, source, logger)
	if err != nil {
		logger.Warn("image ingestion failed",
			zap.String("file", source),
			zap.Error(err),
		)
	}
	stats.ImagesAdded += images

	stats.Documents++
	return nil
}

// addTextChunks splits, embeds, and stores the document text. Chunk
// embeddings are computed in bounded-parallel batches; the insert happens
// once, in chunk order.
func (in *Ingestor) addTextChunks(ctx context.Context, text, source string) (int, error) {
	chunks, err := in.splitter.SplitText(text)
	if err != nil {
		return 0, fmt.Errorf("splitting text: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.config.EmbedConcurrency)

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		g.Go(func() error {
			batch, err := in.provider.EmbedDocuments(gctx, chunks[start:end])
			if err != nil {
				return fmt.Errorf("embedding chunks %d-%d: %w", start, end, err)
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	base, err := in.store.Count(ctx, in.config.TextCollection)
	if err != nil {
		return 0, err
	}

	docs := make([]index.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = index.Document{
			ID:        fmt.Sprintf("text_%d", base+i),
			Content:   chunk,
			Embedding: vectors[i],
			Metadata: map[string]string{
				"source":       source,
				"chunk_id":     strconv.Itoa(i),
				"total_chunks": strconv.Itoa(len(chunks)),
			},
		}
	}

	if _, err := in.store.Insert(ctx, in.config.TextCollection, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// addSidecarImages captions and stores the document's page images. A single
// image failing to caption is skipped; captioning is inherently lossy and
// must not sink the document.
func (in *Ingestor) addSidecarImages(ctx context.Context, path, text, source string, logger *zap.Logger) (int, error) {
	if in.captioner == nil {
		return 0, nil
	}

	images, err := loadSidecarImages(path, in.config.MaxImageWidth, in.config.MaxImageHeight)
	if err != nil {
		return 0, err
	}
	if len(images) == 0 {
		return 0, nil
	}

	docContext := text
	if len(docContext) > captionContextLimit {
		docContext = docContext[:captionContextLimit]
	}

	var docs []index.Document
	for _, img := range images {
		description, err := in.captioner.DescribeDocumentImage(ctx, img.Data, docContext, img.Page)
		if err != nil {
			logger.Warn("captioning failed",
				zap.String("file", source),
				zap.Int("page", img.Page),
				zap.Error(err),
			)
			continue
		}

		vectors, err := in.provider.EmbedDocuments(ctx, []string{description})
		if err != nil || len(vectors) == 0 {
			logger.Warn("embedding description failed",
				zap.String("file", source),
				zap.Int("page", img.Page),
				zap.Error(err),
			)
			continue
		}

		docs = append(docs, index.Document{
			Content:   description,
			Embedding: vectors[0],
			Metadata: map[string]string{
				"source": source,
				"page":   strconv.Itoa(img.Page),
				"type":   "image_description",
			},
		})
	}

	if len(docs) == 0 {
		return 0, nil
	}

	base, err := in.store.Count(ctx, in.config.ImageCollection)
	if err != nil {
		return 0, err
	}
	for i := range docs {
		docs[i].ID = fmt.Sprintf("image_%d", base+i)
	}

	if _, err := in.store.Insert(ctx, in.config.ImageCollection, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}
