// Package generation implements the one-shot report generation backend
// client. The backend accepts a prompt plus project name and answers either
// with the result object directly or with a string-encoded JSON body carrying
// a URL that must be dereferenced to fetch the answer.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"incident-report-service/metrics"
)

// Client talks to the report generation backend.
type Client struct {
	endpoint    string
	projectName string
	httpClient  *http.Client
}

// NewClient creates a new generation client.
func NewClient(endpoint, projectName string) *Client {
	return &Client{
		endpoint:    endpoint,
		projectName: projectName,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}
}

// SourceName identifies this provider in logs and metrics.
func (c *Client) SourceName() string {
	return "Generation"
}

type generateRequest struct {
	Prompt      string `json:"prompt"`
	ProjectName string `json:"project_name"`
}

type generateResponse struct {
	Answer string `json:"answer"`
	URL    string `json:"url"`
}

// Generate posts the prompt and returns the raw answer text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{Prompt: prompt, ProjectName: c.projectName}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	answer, err := c.generate(ctx, jsonData)
	metrics.ObserveLLMRequest(c.SourceName(), time.Since(start), err)
	return answer, err
}

func (c *Client) generate(ctx context.Context, jsonData []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	gr, err := decodeGenerateBody(body)
	if err != nil {
		return "", err
	}
	if gr.Answer != "" {
		return gr.Answer, nil
	}
	if gr.URL == "" {
		return "", fmt.Errorf("generation response carried neither answer nor url")
	}
	return c.fetchAnswer(ctx, gr.URL)
}

// decodeGenerateBody handles both body encodings: a direct JSON object, or a
// JSON string whose contents are themselves the JSON object.
func decodeGenerateBody(body []byte) (generateResponse, error) {
	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err == nil && (gr.Answer != "" || gr.URL != "") {
		return gr, nil
	}

	var encoded string
	if err := json.Unmarshal(body, &encoded); err != nil {
		return gr, fmt.Errorf("unrecognized generation response body: %s", string(body))
	}
	if err := json.Unmarshal([]byte(encoded), &gr); err != nil {
		return gr, fmt.Errorf("failed to parse string-encoded generation response: %w", err)
	}
	return gr, nil
}

// fetchAnswer dereferences the retrieval URL handed back by the backend.
func (c *Client) fetchAnswer(ctx context.Context, answerURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, answerURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create retrieval request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch answer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read answer body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("retrieval error (status %d): %s", resp.StatusCode, string(body))
	}

	var ar struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(body, &ar); err != nil {
		return "", fmt.Errorf("failed to parse answer body: %w", err)
	}
	return ar.Answer, nil
}
