package domain

import "context"

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn. Field order is part of the response cache key.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest asks a provider for a completion.
// Zero Temperature/MaxTokens and empty Provider/Model mean "use defaults".
type GenerateRequest struct {
	Provider     string
	Model        string
	SystemPrompt string
	Messages     []Message
	Temperature  float32
	MaxTokens    int
}

// CompletionParams is a fully resolved provider request: defaults applied,
// system prompt already part of Messages.
type CompletionParams struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Completion is a non-streamed reply with token usage.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// ChatProvider is one chat completions backend.
type ChatProvider interface {
	Complete(ctx context.Context, p CompletionParams) (Completion, error)
	// Stream calls onDelta for every non-empty delta and returns the concatenated text.
	Stream(ctx context.Context, p CompletionParams, onDelta func(string) error) (string, error)
}
