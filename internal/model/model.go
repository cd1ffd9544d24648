package model

import "context"

// Message roles understood by the chat completion endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role/content pair of an assembled request.
type Message struct {
	Role    string
	Content string
}

// Request is the payload for one chat completion call: the ordered message
// list (system entry first when present) and the sampling temperature.
type Request struct {
	Messages    []Message
	Temperature float32
}

// CompletionResponse is the common response model for model providers.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the model provider abstraction used by the generation
// coordinator. Implementations must honor ctx cancellation and deadlines.
type Provider interface {
	ChatCompletion(ctx context.Context, req Request) (CompletionResponse, error)
}
