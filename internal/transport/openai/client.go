// Package openai adapts OpenAI-compatible HTTP APIs (OpenAI, Anthropic's compatibility
// endpoint, OpenRouter, xAI) to the embedding and chat contracts.
package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/millarag/internal/domain"
)

func newClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// parseAPIError extracts a human-readable error from the API response and wraps
// it with sentinel. A 429 additionally wraps domain.ErrRateLimited.
func parseAPIError(kind string, err error, sentinel error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return wrapStatus(fmt.Errorf("%s API error %d: %s", kind, reqErr.HTTPStatusCode, detail),
			reqErr.HTTPStatusCode, sentinel)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return wrapStatus(fmt.Errorf("%s API error %d: %s", kind, apiErr.HTTPStatusCode, apiErr.Message),
			apiErr.HTTPStatusCode, sentinel)
	}

	return fmt.Errorf("%s request failed: %w: %w", kind, sentinel, err)
}

func wrapStatus(err error, status int, sentinel error) error {
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w: %w", err, domain.ErrRateLimited, sentinel)
	}
	return fmt.Errorf("%w: %w", err, sentinel)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
