// Package service wires the question answering pipeline together and
// exposes the operations consumed by the HTTP API and the CLI.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsight/internal/captioner"
	"github.com/fyrsmithlabs/docsight/internal/config"
	"github.com/fyrsmithlabs/docsight/internal/credentials"
	"github.com/fyrsmithlabs/docsight/internal/embeddings"
	"github.com/fyrsmithlabs/docsight/internal/generation"
	"github.com/fyrsmithlabs/docsight/internal/index"
	"github.com/fyrsmithlabs/docsight/internal/ingest"
	"github.com/fyrsmithlabs/docsight/internal/metrics"
	"github.com/fyrsmithlabs/docsight/internal/retrieval"
	"github.com/fyrsmithlabs/docsight/internal/workflow"
)

// StoreStats reports index contents.
type StoreStats struct {
	TextChunks        int `json:"text_chunks"`
	ImageDescriptions int `json:"image_descriptions"`
	Total             int `json:"total"`
}

// Service is the assembled question answering pipeline.
type Service struct {
	config     *config.Config
	logger     *zap.Logger
	pool       *credentials.Pool
	provider   embeddings.Provider
	store      index.Store
	supervisor *workflow.Supervisor
	ingestor   *ingest.Ingestor
}

// New builds the full pipeline from configuration: credential pool,
// embedding provider, vector index, and the workflow components on top.
func New(cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := credentials.NewPool(cfg.Credentials.Keys, credentials.PoolConfig{
		Cooldown: cfg.Credentials.Cooldown,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating credential pool: %w", err)
	}

	provider, err := embeddings.NewProvider(cfg.Embeddings, cfg.Index.VectorSize)
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	indexPath, err := config.ExpandPath(cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding index path: %w", err)
	}

	store, err := index.NewChromemStore(index.ChromemConfig{
		Path:        indexPath,
		Compress:    cfg.Index.Compress,
		Collections: []string{cfg.Index.TextCollection, cfg.Index.ImageCollection},
		VectorSize:  cfg.Index.VectorSize,
	}, logger)
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("creating index: %w", err)
	}

	return assemble(cfg, logger, pool, provider, store)
}

// assemble builds the pipeline over already-constructed leaf dependencies.
func assemble(cfg *config.Config, logger *zap.Logger, pool *credentials.Pool, provider embeddings.Provider, store index.Store) (*Service, error) {
	cap, err := captioner.New(pool, captioner.Config{
		Model:           cfg.Generation.VisionModel,
		BaseURL:         cfg.Generation.BaseURL,
		Temperature:     cfg.Generation.Temperature,
		MaxOutputTokens: cfg.Generation.MaxOutputTokens,
		Timeout:         cfg.Generation.Timeout,
		RetryBackoff:    cfg.Generation.RetryBackoff,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating captioner: %w", err)
	}

	assembler, err := retrieval.NewAssembler(provider, store, retrieval.Config{
		TextCollection:  cfg.Index.TextCollection,
		ImageCollection: cfg.Index.ImageCollection,
		TopK:            cfg.Retrieval.TopK,
		ImageTopK:       cfg.Retrieval.ImageTopK,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating assembler: %w", err)
	}

	generator, err := generation.New(pool, generation.Config{
		Model:           cfg.Generation.Model,
		BaseURL:         cfg.Generation.BaseURL,
		Temperature:     cfg.Generation.Temperature,
		MaxOutputTokens: cfg.Generation.MaxOutputTokens,
		Timeout:         cfg.Generation.Timeout,
		RetryBackoff:    cfg.Generation.RetryBackoff,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}

	supervisor, err := workflow.New(cap, assembler, generator, logger)
	if err != nil {
		return nil, fmt.Errorf("creating workflow: %w", err)
	}

	ingestor, err := ingest.New(provider, store, cap, ingest.Config{
		ChunkSize:       cfg.Chunking.Size,
		ChunkOverlap:    cfg.Chunking.Overlap,
		TextCollection:  cfg.Index.TextCollection,
		ImageCollection: cfg.Index.ImageCollection,
		MaxImageWidth:   cfg.Images.MaxWidth,
		MaxImageHeight:  cfg.Images.MaxHeight,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating ingestor: %w", err)
	}

	return &Service{
		config:     cfg,
		logger:     logger,
		pool:       pool,
		provider:   provider,
		store:      store,
		supervisor: supervisor,
		ingestor:   ingestor,
	}, nil
}

// AnswerQuestion answers a question, optionally grounded by an uploaded
// image. All pipeline failures surface as descriptive answer text, never as
// an error; the error return covers input validation only.
func (s *Service) AnswerQuestion(ctx context.Context, question string, image []byte) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("question cannot be empty")
	}

	start := time.Now()
	answer := s.supervisor.Run(ctx, workflow.Request{
		Question: question,
		Image:    image,
	})

	success := answer != generation.AllKeysExhausted &&
		!strings.HasPrefix(answer, "Error generating response:") &&
		!strings.HasPrefix(answer, "Error processing query:")
	metrics.RecordQuestion(len(image) > 0, success, time.Since(start))

	s.logger.Info("question answered",
		zap.Bool("multimodal", len(image) > 0),
		zap.Bool("success", success),
		zap.Duration("elapsed", time.Since(start)),
	)

	return answer, nil
}

// IngestDocuments loads every supported document under sourceDir into the
// index.
func (s *Service) IngestDocuments(ctx context.Context, sourceDir string) (*ingest.Stats, error) {
	stats, err := s.ingestor.IngestDirectory(ctx, sourceDir)
	if err != nil {
		return nil, err
	}
	metrics.RecordIngest(stats.ChunksAdded, stats.ImagesAdded)
	return stats, nil
}

// ClearStore removes all documents from both collections.
func (s *Service) ClearStore(ctx context.Context) error {
	return s.store.Clear(ctx)
}

// Stats returns index document counts.
func (s *Service) Stats(ctx context.Context) (*StoreStats, error) {
	texts, err := s.store.Count(ctx, s.config.Index.TextCollection)
	if err != nil {
		return nil, err
	}
	images, err := s.store.Count(ctx, s.config.Index.ImageCollection)
	if err != nil {
		return nil, err
	}
	return &StoreStats{
		TextChunks:        texts,
		ImageDescriptions: images,
		Total:             texts + images,
	}, nil
}

// Close releases pipeline resources.
func (s *Service) Close() error {
	var firstErr error
	if err := s.provider.Close(); err != nil {
		firstErr = err
	}
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
