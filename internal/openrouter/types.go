package openrouter

import "errors"

// ErrNoContent is returned when a 2xx reply carries no usable message content.
var ErrNoContent = errors.New("response missing message content")

// Message is one chat turn sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds the single-turn prompt used by every council stage.
func UserMessage(content string) []Message {
	return []Message{{Role: "user", Content: content}}
}

type ChatRequest struct {
	Model     string           `json:"model"`
	Messages  []Message        `json:"messages"`
	Reasoning *ReasoningParams `json:"reasoning,omitempty"`
}

type ReasoningParams struct {
	Effort string `json:"effort"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Choices []ChatChoice `json:"choices"`
	Error   *APIError    `json:"error,omitempty"`
}

type ChatChoice struct {
	Message ChatMessage `json:"message"`
}

type ChatMessage struct {
	Role             string  `json:"role"`
	Content          *string `json:"content"`
	ReasoningDetails any     `json:"reasoning_details,omitempty"`
	Thinking         any     `json:"thinking,omitempty"`
}

type APIError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
}

// Completion is a successful model reply. ReasoningDetails and Thinking are
// opaque and passed through as received.
type Completion struct {
	Content          string
	ReasoningDetails any
	Thinking         any
}
