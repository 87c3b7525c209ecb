// Package model defines the narrow completion contract the planner and
// executor use to talk to a language model provider. Providers are consumed
// only through this interface; the orchestration core never reaches into
// their internals.
package model

import "context"

// Message is one turn of conversational input to the model.
type Message struct {
	Role    string `json:"role"` // system, user or assistant
	Content string `json:"content"`
}

// Request captures one completion call. System is the instruction prompt;
// Messages carry the user request plus optional prior turns.
type Request struct {
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int64     `json:"max_tokens,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completed model output.
type Response struct {
	Text  string      `json:"text"`
	Model string      `json:"model,omitempty"`
	Usage *TokenUsage `json:"usage,omitempty"`
}

// Completion is implemented by every model provider adapter. Complete issues
// exactly one completion call and blocks until the full response or ctx
// expiry; both the planning and synthesis calls go through it.
type Completion interface {
	// Name identifies the provider for logging and metrics.
	Name() string

	// Complete performs one completion call.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// UserMessage is a convenience constructor for a user turn.
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// AssistantMessage is a convenience constructor for an assistant turn.
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}
