package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// askImagePath is the optional image file attached to an ask request.
var askImagePath string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question against the ingested documents",
	Long: `Ask a question against the ingested documents.

Examples:
  # Plain question
  docsight ask "What was the quarterly revenue?"

  # Question about an image
  docsight ask --image chart.png "What does this chart show?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [directory]",
	Short: "Ingest documents from a directory on the server host",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all documents from the index",
	RunE:  runClear,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index document counts",
	RunE:  runStats,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check docsight server health",
	RunE:  runHealth,
}

func init() {
	askCmd.Flags().StringVar(&askImagePath, "image", "", "PNG file to ask about")
}

// AskRequest matches internal/httpapi/server.go AskRequest.
type AskRequest struct {
	Question string `json:"question"`
	Image    string `json:"image,omitempty"`
}

// AskResponse matches internal/httpapi/server.go AskResponse.
type AskResponse struct {
	Answer string `json:"answer"`
}

// IngestRequest matches internal/httpapi/server.go IngestRequest.
type IngestRequest struct {
	SourceDir string `json:"source_dir"`
}

// IngestResponse matches internal/ingest Stats.
type IngestResponse struct {
	Documents   int `json:"documents"`
	ChunksAdded int `json:"chunks_added"`
	ImagesAdded int `json:"images_added"`
}

// StatsResponse matches internal/service StoreStats.
type StatsResponse struct {
	TextChunks        int `json:"text_chunks"`
	ImageDescriptions int `json:"image_descriptions"`
	Total             int `json:"total"`
}

// HealthResponse matches internal/httpapi/server.go HealthResponse.
type HealthResponse struct {
	Status string `json:"status"`
}

// runAsk handles the ask command.
func runAsk(cmd *cobra.Command, args []string) error {
	req := AskRequest{Question: args[0]}

	if askImagePath != "" {
		data, err := os.ReadFile(askImagePath)
		if err != nil {
			return fmt.Errorf("failed to read image %s: %w", askImagePath, err)
		}
		req.Image = base64.StdEncoding.EncodeToString(data)
	}

	var resp AskResponse
	// Answering can involve several remote model calls with rotation, so the
	// client timeout stays generous.
	if err := postJSON("/api/v1/ask", req, &resp, 5*time.Minute); err != nil {
		return err
	}

	fmt.Println(resp.Answer)
	return nil
}

// runIngest handles the ingest command.
func runIngest(cmd *cobra.Command, args []string) error {
	dir, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve directory %s: %w", args[0], err)
	}

	var resp IngestResponse
	if err := postJSON("/api/v1/ingest", IngestRequest{SourceDir: dir}, &resp, 30*time.Minute); err != nil {
		return err
	}

	fmt.Printf("Ingested %d document(s): %d text chunk(s), %d image description(s)\n",
		resp.Documents, resp.ChunksAdded, resp.ImagesAdded)
	return nil
}

// runClear handles the clear command.
func runClear(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/api/v1/store", serverURL)
	httpReq, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return statusError(resp)
	}

	fmt.Println("Index cleared")
	return nil
}

// runStats handles the stats command.
func runStats(cmd *cobra.Command, args []string) error {
	var resp StatsResponse
	if err := getJSON("/api/v1/stats", &resp, 30*time.Second); err != nil {
		return err
	}

	fmt.Printf("Text chunks:        %d\n", resp.TextChunks)
	fmt.Printf("Image descriptions: %d\n", resp.ImageDescriptions)
	fmt.Printf("Total:              %d\n", resp.Total)
	return nil
}

// runHealth handles the health command.
func runHealth(cmd *cobra.Command, args []string) error {
	var resp HealthResponse
	if err := getJSON("/health", &resp, 5*time.Second); err != nil {
		return err
	}

	fmt.Printf("Server Status: %s\n", resp.Status)
	fmt.Printf("Server URL: %s\n", serverURL)
	return nil
}

// postJSON sends a JSON POST to path on the configured server and decodes the
// JSON response into out.
func postJSON(path string, body, out interface{}, timeout time.Duration) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s%s", serverURL, path)
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// getJSON sends a GET to path on the configured server and decodes the JSON
// response into out.
func getJSON(path string, out interface{}, timeout time.Duration) error {
	url := fmt.Sprintf("%s%s", serverURL, path)

	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// statusError turns a non-success HTTP response into an error carrying the
// response body.
func statusError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
}
