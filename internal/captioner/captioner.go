// Package captioner produces natural-language descriptions of images using
// the remote vision model.
//
// Descriptions are context-aware: a document-context excerpt (and, for
// uploaded images, the user's question) is included in the prompt so the
// model anchors the description to the surrounding material. Quota failures
// rotate through the credential pool.
package captioner

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docsight/internal/credentials"
	"github.com/fyrsmithlabs/docsight/internal/gemini"
)

var tracer = otel.Tracer("docsight.captioner")

const (
	// documentContextLimit bounds the context excerpt in document prompts.
	documentContextLimit = 500

	// uploadContextLimit bounds the context excerpt in upload prompts.
	// Upload prompts carry the user question too, so they get more room.
	uploadContextLimit = 800
)

const documentPromptFormat = `Analyze this image from page %d of a technical document.

Document Context:
%s...

Please provide a detailed description of this image focusing on:
1. Type of visual (chart, diagram, table, flowchart, graph, illustration, etc.)
2. Key data points, labels, and values if present
3. Relationships and flows shown
4. Main insights or purpose of the visual
5. Any text, annotations, or legends visible
6. How this relates to the document context

Be specific and detailed - imagine you're describing it to someone who can't see it.
If it's a chart, describe the axes, data series, trends.
If it's a diagram, describe the components and their relationships.
If it's a table, describe the structure and key data.

Description:`

const uploadPromptFormat = `You are analyzing an image uploaded by a user in the context of a document Q&A system.

User's Question: %s

Document Context (for reference):
%s...

Please analyze this image and provide:
1. What type of visual is this (photo, chart, diagram, screenshot, etc.)
2. Detailed description of what's shown
3. Key information, data points, or text visible
4. How this image relates to the user's question
5. How this connects to the document context (if applicable)

Be specific and detailed - the user is asking about this image in relation to their documents.`

// Config holds captioner configuration.
type Config struct {
	// Model is the vision model name.
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

// Captioner generates image descriptions via the vision model.
type Captioner struct {
	pool   *credentials.Pool
	config Config
	logger *zap.Logger
}

// New creates a captioner backed by the given credential pool.
func New(pool *credentials.Pool, config Config, logger *zap.Logger) (*Captioner, error) {
	if pool == nil {
		return nil, fmt.Errorf("credential pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	return &Captioner{
		pool:   pool,
		config: config,
		logger: logger,
	}, nil
}

// DescribeDocumentImage describes an image extracted from a document page.
// The returned description is prefixed with its page number so retrieval
// hits keep their provenance.
func (c *Captioner) DescribeDocumentImage(ctx context.Context, png []byte, docContext string, page int) (string, error) {
	ctx, span := tracer.Start(ctx, "Captioner.DescribeDocumentImage")
	defer span.End()

	span.SetAttributes(attribute.Int("page", page))

	if docContext == "" {
		docContext = "Technical documentation"
	}

	prompt := fmt.Sprintf(documentPromptFormat, page, truncate(docContext, documentContextLimit))

	description, err := c.generate(ctx, prompt, png)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	return fmt.Sprintf("[Page %d] %s", page, description), nil
}

// DescribeUploadedImage describes a user-uploaded image in the context of
// the user's question and the retrieved documents.
func (c *Captioner) DescribeUploadedImage(ctx context.Context, png []byte, docContext, question string) (string, error) {
	ctx, span := tracer.Start(ctx, "Captioner.DescribeUploadedImage")
	defer span.End()

	prompt := fmt.Sprintf(uploadPromptFormat, question, truncate(docContext, uploadContextLimit))

	description, err := c.generate(ctx, prompt, png)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	return fmt.Sprintf("[User Uploaded Image] %s", description), nil
}

// generate runs the vision call with credential rotation. Each attempt
// builds a fresh client bound to the current credential.
func (c *Captioner) generate(ctx context.Context, prompt string, png []byte) (string, error) {
	if len(png) == 0 {
		return "", fmt.Errorf("image cannot be empty")
	}

	return credentials.Rotate(ctx, c.pool, c.config.RetryBackoff, gemini.IsQuota,
		func(ctx context.Context, key string) (string, error) {
			client, err := gemini.NewClient(gemini.Config{
				APIKey:          key,
				BaseURL:         c.config.BaseURL,
				Model:           c.config.Model,
				Temperature:     c.config.Temperature,
				MaxOutputTokens: c.config.MaxOutputTokens,
				Timeout:         c.config.Timeout,
			})
			if err != nil {
				return "", err
			}

			return client.GenerateContent(ctx, []gemini.Part{
				gemini.TextPart(prompt),
				gemini.ImagePart(png),
			})
		})
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
