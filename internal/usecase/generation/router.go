// Package generation routes chat completion requests to configured LLM providers.
package generation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/millarag/internal/domain"
	"github.com/kailas-cloud/millarag/internal/metrics"
)

// Request defaults.
const (
	DefaultTemperature float32 = 0.7
	DefaultMaxTokens           = 2048
)

// ProviderConfig registers one provider with the router.
type ProviderConfig struct {
	Name              string
	Client            domain.ChatProvider
	DefaultModel      string
	RequestsPerSecond float64 // 0 = unlimited
	Burst             int
}

type provider struct {
	name    string
	client  domain.ChatProvider
	model   string
	limiter *rate.Limiter
}

// Router dispatches generation requests to providers.
type Router struct {
	providers       map[string]*provider
	defaultProvider string
	tokens          *TokenCounter
	logger          *zap.Logger
}

// NewRouter creates a router. Providers with a nil client are skipped; tokens may be nil.
func NewRouter(defaultProvider string, providers []ProviderConfig, tokens *TokenCounter, logger *zap.Logger) *Router {
	r := &Router{
		providers:       make(map[string]*provider, len(providers)),
		defaultProvider: defaultProvider,
		tokens:          tokens,
		logger:          logger,
	}
	for _, p := range providers {
		if p.Client == nil {
			continue
		}
		model := p.DefaultModel
		if model == "" {
			model = Presets[p.Name].DefaultModel
		}
		var limiter *rate.Limiter
		if p.RequestsPerSecond > 0 {
			limiter = rate.NewLimiter(rate.Limit(p.RequestsPerSecond), max(p.Burst, 1))
		}
		r.providers[p.Name] = &provider{name: p.Name, client: p.Client, model: model, limiter: limiter}
	}
	return r
}

// Providers returns the registered provider names, sorted.
func (r *Router) Providers() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Generate returns a complete reply.
func (r *Router) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	p, params, err := r.resolve(req)
	if err != nil {
		return "", err
	}
	if err := r.wait(ctx, p); err != nil {
		return "", err
	}

	start := time.Now()
	c, err := p.client.Complete(ctx, params)
	r.observe(p.name, params.Model, "generate", start, err)
	if err != nil {
		r.logger.Warn("Generation failed",
			zap.String("provider", p.name), zap.String("model", params.Model), zap.Error(err))
		return "", fmt.Errorf("generate with %s: %w", p.name, err)
	}

	completion := c.CompletionTokens
	if completion == 0 {
		completion = r.tokens.Count(c.Content)
	}
	r.countTokens(p.name, params.Model, c.PromptTokens, completion)
	return c.Content, nil
}

// Stream forwards content deltas to onChunk in order and returns the full text.
// It stops when ctx is cancelled or onChunk returns an error.
func (r *Router) Stream(
	ctx context.Context, req domain.GenerateRequest, onChunk func(string) error,
) (string, error) {
	p, params, err := r.resolve(req)
	if err != nil {
		return "", err
	}
	if err := r.wait(ctx, p); err != nil {
		return "", err
	}

	start := time.Now()
	first := true
	full, err := p.client.Stream(ctx, params, func(delta string) error {
		if first {
			first = false
			metrics.GenerationTimeToFirstToken.WithLabelValues(p.name, params.Model).
				Observe(time.Since(start).Seconds())
		}
		return onChunk(delta)
	})
	r.observe(p.name, params.Model, "stream", start, err)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("Streaming generation failed",
				zap.String("provider", p.name), zap.String("model", params.Model), zap.Error(err))
		}
		return full, fmt.Errorf("stream with %s: %w", p.name, err)
	}

	r.countTokens(p.name, params.Model, r.promptTokens(params), r.tokens.Count(full))
	return full, nil
}

// resolve picks the provider and fills request defaults.
// Unknown provider names fall back to the default provider.
func (r *Router) resolve(req domain.GenerateRequest) (*provider, domain.CompletionParams, error) {
	if len(req.Messages) == 0 {
		return nil, domain.CompletionParams{}, fmt.Errorf("messages are required: %w", domain.ErrInvalidInput)
	}

	name := req.Provider
	if !Known(name) {
		name = r.defaultProvider
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, domain.CompletionParams{}, fmt.Errorf("%s: %w", name, domain.ErrProviderNotConfigured)
	}

	params := domain.CompletionParams{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if params.Model == "" {
		params.Model = p.model
	}
	if params.Temperature == 0 {
		params.Temperature = DefaultTemperature
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = DefaultMaxTokens
	}

	params.Messages = make([]domain.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		params.Messages = append(params.Messages, domain.Message{Role: domain.RoleSystem, Content: req.SystemPrompt})
	}
	params.Messages = append(params.Messages, req.Messages...)

	return p, params, nil
}

func (r *Router) wait(ctx context.Context, p *provider) error {
	if p.limiter == nil {
		return nil
	}
	start := time.Now()
	err := p.limiter.Wait(ctx)
	metrics.GenerationRateLimitWait.WithLabelValues(p.name).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// the deadline would pass before a token frees up
		return fmt.Errorf("%s: %w: %w", p.name, domain.ErrRateLimited, err)
	}
	return nil
}

func (r *Router) observe(name, model, mode string, start time.Time, err error) {
	status := "success"
	switch {
	case errors.Is(err, context.Canceled):
		status = "canceled"
	case err != nil:
		status = "error"
	}
	metrics.GenerationRequestsTotal.WithLabelValues(name, model, mode, status).Inc()
	metrics.GenerationRequestDuration.WithLabelValues(name, model, mode).Observe(time.Since(start).Seconds())
}

func (r *Router) promptTokens(params domain.CompletionParams) int {
	contents := make([]string, len(params.Messages))
	for i, m := range params.Messages {
		contents[i] = m.Content
	}
	return r.tokens.CountMessages(contents...)
}

func (r *Router) countTokens(name, model string, prompt, completion int) {
	if prompt > 0 {
		metrics.GenerationTokensTotal.WithLabelValues(name, model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		metrics.GenerationTokensTotal.WithLabelValues(name, model, "completion").Add(float64(completion))
	}
}
