// Package llm wraps text generation behind a small interface with a
// Gemini implementation.
package llm

import (
	"context"
	"strings"
)

// Message roles understood by generators.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one turn sent to the model.
type Message struct {
	Role string
	Text string
}

// Request describes a single generation.
type Request struct {
	// Name identifies the calling operation in traces and metrics.
	Name        string
	System      string
	Messages    []Message
	Temperature float64
	// JSON asks the model for an application/json answer.
	JSON bool
}

// Response is the generated text and its token accounting.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Prompt builds a single-turn request.
func Prompt(name, text string, temperature float64) Request {
	return Request{
		Name:        name,
		Messages:    []Message{{Role: RoleUser, Text: text}},
		Temperature: temperature,
	}
}

// JSONPrompt builds a single-turn request that expects a JSON object back.
func JSONPrompt(name, text string, temperature float64) Request {
	req := Prompt(name, text, temperature)
	req.JSON = true
	return req
}

// ExtractJSON returns the span from the first '{' to the last '}' of text.
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}
