// Package gemini provides an HTTP client for the Gemini generateContent API.
//
// Each Client is bound to a single API credential. Credential rotation lives
// with the callers, which construct a fresh client per attempt against the
// credential pool.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.5-flash"
	defaultTimeout = 60 * time.Second

	// 50 requests per minute with a small burst allowance.
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// ErrQuotaExceeded indicates the credential hit its quota or rate limit.
// Callers rotate to the next credential on this error.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Config holds client configuration.
type Config struct {
	// APIKey is the credential for this client instance.
	APIKey string

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	// Model is the generateContent model name.
	Model string

	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Temperature == 0 {
		c.Temperature = 0.3
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = 2048
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
}

// Part is one piece of a generateContent request: text or inline image data.
type Part struct {
	Text string

	// PNG holds raw image bytes sent as inline data with image/png MIME type.
	PNG []byte
}

// TextPart creates a text part.
func TextPart(text string) Part { return Part{Text: text} }

// ImagePart creates an inline PNG part.
func ImagePart(png []byte) Part { return Part{PNG: png} }

// Client calls the Gemini generateContent endpoint with one credential.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client bound to the configured credential.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key required")
	}

	cfg.ApplyDefaults()

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}, nil
}

// Wire types for the generateContent REST API.

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateContent sends the parts as a single user turn and returns the
// first candidate's text.
func (c *Client) GenerateContent(ctx context.Context, parts []Part) (string, error) {
	if len(parts) == 0 {
		return "", fmt.Errorf("no parts provided")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	wireParts := make([]wirePart, 0, len(parts))
	for _, p := range parts {
		if len(p.PNG) > 0 {
			wireParts = append(wireParts, wirePart{InlineData: &inlineData{
				MimeType: "image/png",
				Data:     base64.StdEncoding.EncodeToString(p.PNG),
			}})
			continue
		}
		wireParts = append(wireParts, wirePart{Text: p.Text})
	}

	req := generateRequest{
		Contents: []content{{Role: "user", Parts: wireParts}},
		GenerationConfig: generationConfig{
			Temperature:     c.config.Temperature,
			MaxOutputTokens: c.config.MaxOutputTokens,
		},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.config.BaseURL, c.config.Model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: rate limited (429)", ErrQuotaExceeded)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp apiError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			if isQuotaStatus(errResp.Error.Status, errResp.Error.Message) {
				return "", fmt.Errorf("%w: %s", ErrQuotaExceeded, errResp.Error.Message)
			}
			return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from API")
	}

	var out strings.Builder
	for _, p := range genResp.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}

	return out.String(), nil
}

// GenerateText is a convenience wrapper for single-text-part requests.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.GenerateContent(ctx, []Part{TextPart(prompt)})
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.config.Model }

// isQuotaStatus recognizes quota failures reported with a non-429 status.
func isQuotaStatus(status, message string) bool {
	if status == "RESOURCE_EXHAUSTED" {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "rate limit")
}

// IsQuota reports whether err is a quota or rate-limit failure that should
// trigger credential rotation.
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}
