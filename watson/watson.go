// Package watson implements the chat-completion backend client against IBM
// watsonx.ai: an IAM token endpoint plus a scoring endpoint speaking the
// OpenAI-style messages payload.
package watson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"

	"incident-report-service/llm"
	"incident-report-service/metrics"
)

const (
	iamGrantType = "urn:ibm:params:oauth:grant-type:apikey"

	defaultTemperature = 0.2
	defaultMaxTokens   = 900

	// Retry policy for the scoring path: small fixed attempt count,
	// doubling delay with jitter, applied only to HTTP 429/503.
	baseRetryDelay = 500 * time.Millisecond
	maxJitter      = 250 * time.Millisecond

	// Tokens are refreshed this long before their reported expiry.
	tokenExpirySlack = 60 * time.Second
)

// Client talks to the watsonx.ai scoring endpoint, caching IAM tokens until
// they near expiry.
type Client struct {
	apiKey     string
	tokenURL   string
	scoringURL string
	modelID    string
	maxRetries int
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a new watson client.
func NewClient(apiKey, tokenURL, scoringURL, modelID string, maxRetries int) *Client {
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &Client{
		apiKey:     apiKey,
		tokenURL:   tokenURL,
		scoringURL: scoringURL,
		modelID:    modelID,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SourceName identifies this provider in logs and metrics.
func (c *Client) SourceName() string {
	return "Watson"
}

type chatRequest struct {
	ModelID        string        `json:"model_id,omitempty"`
	Messages       []llm.Message `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Chat sends the message history to the scoring endpoint and returns the
// assistant content of the first choice.
func (c *Client) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to obtain IAM token: %w", err)
	}

	reqBody := chatRequest{
		ModelID:     c.modelID,
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}
	reqBody.ResponseFormat.Type = "json_object"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	body, err := c.doWithRetry(ctx, token, jsonData)
	metrics.ObserveLLMRequest(c.SourceName(), time.Since(start), err)
	if err != nil {
		return "", err
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return chatResp.Choices[0].Message.Content, nil
}

// doWithRetry posts the scoring request, retrying with exponential backoff
// and jitter on 429/503 only. Every other failure propagates immediately.
func (c *Client) doWithRetry(ctx context.Context, token string, jsonData []byte) ([]byte, error) {
	delay := baseRetryDelay
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := delay + time.Duration(rand.Int63n(int64(maxJitter)))
			log.Warnf("Watson scoring retry %d/%d in %v: %v", attempt, c.maxRetries-1, wait, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.scoringURL, bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to send request: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		lastErr = fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
			return nil, lastErr
		}
	}

	return nil, fmt.Errorf("scoring request failed after %d attempts: %w", c.maxRetries, lastErr)
}

// getToken returns a cached IAM token, fetching a fresh one when the cached
// token is absent or close to expiry.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", iamGrantType)
	form.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint error (status %d): %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token")
	}

	c.token = tr.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenExpirySlack)
	return c.token, nil
}
