package llm

import (
	"context"
	"io"
)

// Message is a single chat turn in the provider wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient abstracts a chat-completion backend used for the slot-filling
// conversation. Implementations must be concurrency-safe if used across
// goroutines.
type ChatClient interface {
	// Chat sends the full message history and returns the raw assistant
	// content for the next turn.
	Chat(ctx context.Context, messages []Message) (string, error)
	// SourceName returns a short provider label for logs and metrics.
	SourceName() string
}

// Generator abstracts a one-shot report generation backend: transcript in,
// raw text (expected to contain one JSON object) out.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	SourceName() string
}

// Transcriber abstracts a speech-to-text backend.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}
