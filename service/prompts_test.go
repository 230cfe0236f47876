package service

import (
	"strings"
	"testing"
)

func TestChatSystemPromptIsJSONOnly(t *testing.T) {
	// The chat backend runs in JSON mode, which rejects any text outside the
	// object, so the prompt must not ask for trailing output.
	if !strings.Contains(chatSystemPrompt, "a single valid JSON object and nothing else") {
		t.Error("prompt does not demand a bare JSON object")
	}
	if strings.Contains(chatSystemPrompt, "after the JSON object") {
		t.Error("prompt asks for output after the JSON object")
	}
	if !strings.Contains(chatSystemPrompt, `"report_complete"`) {
		t.Error("prompt is missing the report_complete key")
	}
}

func TestBuildGenerationPrompt(t *testing.T) {
	prompt := buildGenerationPrompt("user: the scaffold clamp failed")
	if !strings.Contains(prompt, "user: the scaffold clamp failed") {
		t.Error("transcript not embedded in the prompt")
	}
	if !strings.Contains(prompt, "a single valid JSON object and nothing else") {
		t.Error("generation prompt does not demand a bare JSON object")
	}
}
