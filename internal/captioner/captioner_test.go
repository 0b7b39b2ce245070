package captioner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docsight/internal/credentials"
)

func newPool(t *testing.T, keys ...string) *credentials.Pool {
	t.Helper()
	pool, err := credentials.NewPool(keys, credentials.PoolConfig{Cooldown: time.Millisecond}, nil)
	require.NoError(t, err)
	return pool
}

func newCaptioner(t *testing.T, pool *credentials.Pool, baseURL string) *Captioner {
	t.Helper()
	c, err := New(pool, Config{
		Model:        "gemini-test",
		BaseURL:      baseURL,
		RetryBackoff: time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return c
}

// visionStub records prompts and fails with 429 for the first failCount calls.
type visionStub struct {
	failCount int
	calls     int
	prompts   []string
	keys      []string
	reply     string
}

func (s *visionStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.calls++
		s.keys = append(s.keys, r.Header.Get("X-Goog-Api-Key"))

		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			s.prompts = append(s.prompts, req.Contents[0].Parts[0].Text)
		}

		if s.calls <= s.failCount {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": s.reply}},
				}},
			},
		})
	}
}

func TestDescribeDocumentImage(t *testing.T) {
	stub := &visionStub{reply: "a bar chart of quarterly revenue"}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	c := newCaptioner(t, newPool(t, "k1"), server.URL)

	description, err := c.DescribeDocumentImage(context.Background(), []byte{1}, "annual report text", 3)
	require.NoError(t, err)
	assert.Equal(t, "[Page 3] a bar chart of quarterly revenue", description)

	require.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0], "page 3")
	assert.Contains(t, stub.prompts[0], "annual report text")
}

func TestDescribeDocumentImageTruncatesContext(t *testing.T) {
	stub := &visionStub{reply: "ok"}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	c := newCaptioner(t, newPool(t, "k1"), server.URL)

	long := strings.Repeat("x", 2000)
	_, err := c.DescribeDocumentImage(context.Background(), []byte{1}, long, 1)
	require.NoError(t, err)

	require.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0], strings.Repeat("x", 500)+"...")
	assert.NotContains(t, stub.prompts[0], strings.Repeat("x", 501))
}

func TestDescribeUploadedImage(t *testing.T) {
	stub := &visionStub{reply: "a screenshot of a dashboard"}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	c := newCaptioner(t, newPool(t, "k1"), server.URL)

	description, err := c.DescribeUploadedImage(context.Background(), []byte{1}, "docs about dashboards", "what is this?")
	require.NoError(t, err)
	assert.Equal(t, "[User Uploaded Image] a screenshot of a dashboard", description)

	require.Len(t, stub.prompts, 1)
	assert.Contains(t, stub.prompts[0], "User's Question: what is this?")
	assert.Contains(t, stub.prompts[0], "docs about dashboards")
}

func TestDescribeRotatesOnQuota(t *testing.T) {
	stub := &visionStub{reply: "described", failCount: 2}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	pool := newPool(t, "k1", "k2", "k3")
	c := newCaptioner(t, pool, server.URL)

	description, err := c.DescribeDocumentImage(context.Background(), []byte{1}, "ctx", 1)
	require.NoError(t, err)
	assert.Equal(t, "[Page 1] described", description)

	assert.Equal(t, 3, stub.calls)
	assert.Equal(t, []string{"k1", "k2", "k3"}, stub.keys)
	assert.Equal(t, 1, pool.AvailableCount())
}

func TestDescribeExhaustsPool(t *testing.T) {
	stub := &visionStub{failCount: 100}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	pool := newPool(t, "k1", "k2")
	c := newCaptioner(t, pool, server.URL)

	_, err := c.DescribeDocumentImage(context.Background(), []byte{1}, "ctx", 1)
	assert.ErrorIs(t, err, credentials.ErrExhausted)
	assert.Equal(t, 2, stub.calls)
}

func TestDescribeEmptyImage(t *testing.T) {
	c := newCaptioner(t, newPool(t, "k1"), "http://localhost:1")

	_, err := c.DescribeDocumentImage(context.Background(), nil, "ctx", 1)
	assert.Error(t, err)
}
