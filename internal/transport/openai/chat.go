package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/millarag/internal/domain"
)

// ChatClient talks to one OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	client *openai.Client
}

// NewChatClient creates a chat client. An empty baseURL targets api.openai.com.
func NewChatClient(apiKey, baseURL string) *ChatClient {
	return &ChatClient{client: newClient(apiKey, baseURL)}
}

var _ domain.ChatProvider = (*ChatClient)(nil)

// Complete returns the first choice of a non-streamed completion.
func (c *ChatClient) Complete(ctx context.Context, p domain.CompletionParams) (domain.Completion, error) {
	resp, err := c.client.CreateChatCompletion(ctx, toRequest(p, false))
	if err != nil {
		return domain.Completion{}, parseAPIError("chat", err, domain.ErrGenerationFailed)
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, fmt.Errorf("empty chat response: %w", domain.ErrGenerationFailed)
	}
	return domain.Completion{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Stream calls onDelta for every non-empty content delta in arrival order and
// returns the concatenated text. An error from onDelta aborts the stream.
func (c *ChatClient) Stream(ctx context.Context, p domain.CompletionParams, onDelta func(string) error) (string, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, toRequest(p, true))
	if err != nil {
		return "", parseAPIError("chat", err, domain.ErrGenerationFailed)
	}
	defer stream.Close()

	var full []byte
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return string(full), nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return string(full), ctxErr
			}
			return string(full), parseAPIError("chat stream", err, domain.ErrGenerationFailed)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full = append(full, delta...)
		if err := onDelta(delta); err != nil {
			return string(full), err
		}
	}
}

func toRequest(p domain.CompletionParams, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(p.Messages))
	for i, m := range p.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return openai.ChatCompletionRequest{
		Model:       p.Model,
		Messages:    msgs,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Stream:      stream,
	}
}
