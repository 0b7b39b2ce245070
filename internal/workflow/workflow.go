// Package workflow orchestrates the question answering pipeline.
//
// Two interchangeable strategies implement the same contract: a
// graph-structured strategy that walks explicit stages over shared state,
// and a linear strategy that performs the same effects as a plain sequence.
// A supervisor prefers the graph strategy and permanently falls back to the
// linear one if graph execution ever fails, invisibly to callers.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsight/internal/captioner"
	"github.com/fyrsmithlabs/docsight/internal/generation"
	"github.com/fyrsmithlabs/docsight/internal/retrieval"
)

var tracer = otel.Tracer("docsight.workflow")

// captionUnavailable is recorded when captioning an uploaded image fails.
// The request proceeds with this placeholder rather than aborting.
const captionUnavailable = "Image description unavailable."

// visualKeywords classifies a question as visually oriented. The flag is
// advisory: it is logged for diagnostics but does not branch control flow.
var visualKeywords = []string{
	"chart", "graph", "figure", "image", "diagram",
	"table", "picture", "photo", "visual", "show", "display",
}

// Request is one question answering invocation.
type Request struct {
	Question string

	// Image is an optional user-uploaded PNG.
	Image []byte

	// PriorContext is conversational context supplied by the caller,
	// used only to anchor image captioning.
	PriorContext string
}

// Strategy executes a request end to end.
type Strategy interface {
	Name() string
	Run(ctx context.Context, req Request) (string, error)
}

// pipeline holds the stage effects shared by both strategies.
type pipeline struct {
	captioner *captioner.Captioner
	assembler *retrieval.Assembler
	generator *generation.Generator
	logger    *zap.Logger
}

// isVisualQuery reports whether the question mentions visual content or an
// image is attached.
func (p *pipeline) isVisualQuery(req Request) bool {
	if len(req.Image) > 0 {
		return true
	}
	question := strings.ToLower(req.Question)
	for _, kw := range visualKeywords {
		if strings.Contains(question, kw) {
			return true
		}
	}
	return false
}

// captionStep describes the uploaded image, degrading to a placeholder on
// failure.
func (p *pipeline) captionStep(ctx context.Context, req Request) string {
	if len(req.Image) == 0 {
		return ""
	}

	caption, err := p.captioner.DescribeUploadedImage(ctx, req.Image, req.PriorContext, req.Question)
	if err != nil {
		p.logger.Warn("image captioning failed, using placeholder", zap.Error(err))
		return captionUnavailable
	}
	return caption
}

// respondStep retrieves context and generates the answer. An uploaded image
// first tries the combined text+image query; if that yields nothing, the
// query falls back to text-only retrieval.
func (p *pipeline) respondStep(ctx context.Context, req Request, caption string) string {
	result, err := p.assembler.Retrieve(ctx, req.Question, req.Image)
	if err != nil {
		p.logger.Warn("retrieval failed", zap.Error(err))
		result = &retrieval.QueryResult{}
	}

	if len(req.Image) > 0 && result.Empty() {
		textOnly, err := p.assembler.Retrieve(ctx, req.Question, nil)
		if err == nil {
			result = textOnly
		}
	}

	docContext := retrieval.FormatContext(result)
	return p.generator.Answer(ctx, req.Question, docContext, caption)
}

// GraphStrategy walks three ordered stages over shared state: analyzeQuery,
// processImage, generateResponse. An error recorded by any stage aborts the
// walk so the supervisor can fall back to the linear strategy.
type GraphStrategy struct {
	pipeline *pipeline
	logger   *zap.Logger
}

// graphState is the shared state threaded through graph stages.
type graphState struct {
	request       Request
	isVisualQuery bool
	caption       string
	response      string
	err           error
}

type graphStage struct {
	name string
	run  func(ctx context.Context, state *graphState)
}

// Name implements Strategy.
func (s *GraphStrategy) Name() string { return "graph" }

// Run implements Strategy.
func (s *GraphStrategy) Run(ctx context.Context, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "GraphStrategy.Run")
	defer span.End()

	state := &graphState{request: req}

	stages := []graphStage{
		{name: "analyze_query", run: s.analyzeQuery},
		{name: "process_image", run: s.processImage},
		{name: "generate_response", run: s.generateResponse},
	}

	for _, stage := range stages {
		stage.run(ctx, state)
		if state.err != nil {
			span.RecordError(state.err)
			return "", fmt.Errorf("stage %s: %w", stage.name, state.err)
		}
	}

	span.SetAttributes(attribute.Bool("visual_query", state.isVisualQuery))
	return state.response, nil
}

// analyzeQuery classifies the question. The classification is diagnostic
// only; no later stage branches on it.
func (s *GraphStrategy) analyzeQuery(ctx context.Context, state *graphState) {
	state.isVisualQuery = s.pipeline.isVisualQuery(state.request)
	s.logger.Debug("analyzed query",
		zap.Bool("visual_query", state.isVisualQuery),
		zap.Bool("has_image", len(state.request.Image) > 0),
	)
}

func (s *GraphStrategy) processImage(ctx context.Context, state *graphState) {
	state.caption = s.pipeline.captionStep(ctx, state.request)
}

func (s *GraphStrategy) generateResponse(ctx context.Context, state *graphState) {
	state.response = s.pipeline.respondStep(ctx, state.request, state.caption)
}

// LinearStrategy performs the same effects as the graph strategy as a plain
// call sequence. It is the fallback when the graph strategy is unavailable.
type LinearStrategy struct {
	pipeline *pipeline
	logger   *zap.Logger
}

// Name implements Strategy.
func (s *LinearStrategy) Name() string { return "linear" }

// Run implements Strategy.
func (s *LinearStrategy) Run(ctx context.Context, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "LinearStrategy.Run")
	defer span.End()

	s.logger.Debug("analyzed query", zap.Bool("visual_query", s.pipeline.isVisualQuery(req)))

	caption := s.pipeline.captionStep(ctx, req)
	return s.pipeline.respondStep(ctx, req, caption), nil
}

// Supervisor selects between strategies and handles fallback.
type Supervisor struct {
	mu            sync.Mutex
	graph         Strategy
	linear        Strategy
	graphDisabled bool
	logger        *zap.Logger
}

// New creates a supervisor with graph and linear strategies over the given
// components.
func New(cap *captioner.Captioner, assembler *retrieval.Assembler, generator *generation.Generator, logger *zap.Logger) (*Supervisor, error) {
	if cap == nil || assembler == nil || generator == nil {
		return nil, fmt.Errorf("captioner, assembler, and generator are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &pipeline{
		captioner: cap,
		assembler: assembler,
		generator: generator,
		logger:    logger,
	}

	return NewSupervisor(
		&GraphStrategy{pipeline: p, logger: logger},
		&LinearStrategy{pipeline: p, logger: logger},
		logger,
	), nil
}

// NewSupervisor creates a supervisor over explicit strategies.
func NewSupervisor(graph, linear Strategy, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		graph:  graph,
		linear: linear,
		logger: logger,
	}
}

// Run executes the request with the preferred strategy. If the graph
// strategy fails it is disabled for the remainder of the process and the
// request is retried with the linear strategy. All failures surface as
// descriptive text, never as an error.
func (s *Supervisor) Run(ctx context.Context, req Request) string {
	ctx, span := tracer.Start(ctx, "Supervisor.Run")
	defer span.End()

	if s.graphEnabled() {
		response, err := s.graph.Run(ctx, req)
		if err == nil {
			return response
		}

		s.disableGraph()
		s.logger.Warn("graph strategy failed, falling back to linear",
			zap.Error(err),
		)
		span.RecordError(err)
	}

	response, err := s.linear.Run(ctx, req)
	if err != nil {
		s.logger.Error("linear strategy failed", zap.Error(err))
		span.RecordError(err)
		return fmt.Sprintf("Error processing query: %v", err)
	}
	return response
}

func (s *Supervisor) graphEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph != nil && !s.graphDisabled
}

func (s *Supervisor) disableGraph() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphDisabled = true
}
