// Package generation produces answers from assembled document context using
// the remote language model.
//
// All outcomes, including failures, surface as plain descriptive text: the
// callers display whatever string comes back, so an internal error must
// never propagate as a fault.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsight/internal/credentials"
	"github.com/fyrsmithlabs/docsight/internal/gemini"
	"github.com/fyrsmithlabs/docsight/internal/retrieval"
)

var tracer = otel.Tracer("docsight.generation")

const (
	// InsufficientKnowledge is returned without calling the remote model
	// when a text-only question has no usable context.
	InsufficientKnowledge = "I don't have enough information in my knowledge base to answer this question. Please make sure documents are properly ingested."

	// AllKeysExhausted is returned after every credential failed on quota.
	AllKeysExhausted = "All API keys exhausted. Please check your API key configuration."
)

const textPromptFormat = `You are an intelligent assistant with deep knowledge of the provided documents.
Your task is to answer questions accurately based on the retrieved context.

Guidelines:
1. Answer based ONLY on the provided context
2. If the context contains image descriptions, use them to answer visual questions
3. Be specific and cite sources when possible
4. If information is not in the context, say so clearly
5. For charts/figures/tables, describe what you see in the context
6. Provide detailed, informative answers

Context:
%s

Question: %s

Answer:`

const multimodalPromptFormat = `You are an intelligent assistant analyzing an uploaded image along with document knowledge.

The user has uploaded an image and wants to understand it. Even if the exact image is not in the documents, use your knowledge to:
1. Analyze and describe the uploaded image in detail
2. Compare it with similar content from the documents if available
3. Provide insights based on the image content
4. Connect it to relevant document information when possible

IMPORTANT: Always provide a detailed analysis of the uploaded image, even if it's not directly in the documents.

Document Context (for reference):
%s

Uploaded Image Analysis:
%s

User Question: %s

Provide a comprehensive answer about the uploaded image:`

// Config holds generator configuration.
type Config struct {
	// Model is the language model name.
	Model string

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration

	// RetryBackoff is the wait after a quota failure before the next
	// credential is tried. Defaults to 2s.
	RetryBackoff time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 2 * time.Second
	}
}

// Generator answers questions from assembled context.
type Generator struct {
	pool   *credentials.Pool
	config Config
	logger *zap.Logger
}

// New creates a generator backed by the given credential pool.
func New(pool *credentials.Pool, config Config, logger *zap.Logger) (*Generator, error) {
	if pool == nil {
		return nil, fmt.Errorf("credential pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	return &Generator{
		pool:   pool,
		config: config,
		logger: logger,
	}, nil
}

// Answer generates an answer for the question given the assembled document
// context and an optional image caption.
//
// Template selection: a non-empty imageCaption selects the multimodal
// template; otherwise the text-only template is used, and an empty or
// sentinel context short-circuits to InsufficientKnowledge without any
// remote call. Quota failures rotate through the credential pool; any other
// remote error is rendered as an error string.
func (g *Generator) Answer(ctx context.Context, question, docContext, imageCaption string) string {
	ctx, span := tracer.Start(ctx, "Generator.Answer")
	defer span.End()

	span.SetAttributes(attribute.Bool("multimodal", imageCaption != ""))

	var prompt string
	if imageCaption != "" {
		prompt = fmt.Sprintf(multimodalPromptFormat, docContext, imageCaption, question)
	} else {
		if strings.TrimSpace(docContext) == "" || docContext == retrieval.NoContextSentinel {
			return InsufficientKnowledge
		}
		prompt = fmt.Sprintf(textPromptFormat, docContext, question)
	}

	answer, err := credentials.Rotate(ctx, g.pool, g.config.RetryBackoff, gemini.IsQuota,
		func(ctx context.Context, key string) (string, error) {
			// The client is bound to one credential at construction, so
			// every attempt builds a fresh one.
			client, err := gemini.NewClient(gemini.Config{
				APIKey:          key,
				BaseURL:         g.config.BaseURL,
				Model:           g.config.Model,
				Temperature:     g.config.Temperature,
				MaxOutputTokens: g.config.MaxOutputTokens,
				Timeout:         g.config.Timeout,
			})
			if err != nil {
				return "", err
			}
			return client.GenerateText(ctx, prompt)
		})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, credentials.ErrExhausted) {
			g.logger.Warn("all credentials exhausted during generation")
			return AllKeysExhausted
		}
		g.logger.Error("generation failed", zap.Error(err))
		return fmt.Sprintf("Error generating response: %v", err)
	}

	return answer
}
