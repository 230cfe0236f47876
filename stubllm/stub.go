// Package stubllm provides deterministic, no-network implementations of the
// llm interfaces for CI and local end-to-end tests. Output is schema-valid
// JSON so downstream parsing and store writes exercise the full pipeline.
package stubllm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"incident-report-service/llm"
)

type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) SourceName() string { return "Stub" }

// Chat returns a slot payload derived from the latest user message. The
// payload is deterministic per input so tests are stable.
func (c *Client) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	last := ""
	for _, m := range messages {
		if m.Role == "user" {
			last = m.Content
		}
	}

	out := map[string]any{
		"report_title":       fmt.Sprintf("Stub Incident (%s)", shortHash(last)),
		"report_type":        []string{"Unsafe Conditions"},
		"trades_field":       []string{"General Labour"},
		"report_description": truncate(last, 200),
		"parties_involved":   []string{},
		"witnesses":          []string{},
		"next_question":      "Who was involved in the incident?",
		"report_complete":    false,
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Generate returns a full report object for the given prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	out := map[string]any{
		"report_title":        fmt.Sprintf("Stub Report (%s)", shortHash(prompt)),
		"report_type":         []string{"Unsafe Conditions"},
		"trades_field":        []string{"General Labour"},
		"report_desc":         truncate(prompt, 200),
		"location_name":       "",
		"primaries_involved":  []string{},
		"witnesses":           []string{},
		"actions_taken":       []string{},
		"recommended_actions": []string{"Investigate", "Remediate", "Close out"},
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Transcribe hashes the audio bytes into a stable canned transcript.
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Stub transcript of %s (%s).", filename, shortHash(string(data))), nil
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:4])
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max]
}
