package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/sync/semaphore"

	"github.com/af-corp/llmcache/internal/config"
	"github.com/af-corp/llmcache/internal/llmcache"
)

var (
	// ErrCircuitOpen is returned without calling upstream while a model's
	// breaker is open.
	ErrCircuitOpen = errors.New("provider circuit open")
	// ErrEmptyResponse means upstream answered without any choices.
	ErrEmptyResponse = errors.New("provider returned no choices")
)


// OpenAI calls an OpenAI-compatible chat completions API. Each public method
// returns the assistant reply as a JSON string value.
type OpenAI struct {
	client   openai.Client
	cfg      config.ProviderConfig
	sem      *semaphore.Weighted
	breakers *Breakers
}

// NewOpenAI builds a client from cfg. Extra options are applied last, so tests
// can point the client at a local server.
func NewOpenAI(cfg config.ProviderConfig, extra ...option.RequestOption) *OpenAI {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	for k, v := range cfg.Headers {
		if v != "" {
			opts = append(opts, option.WithHeader(k, v))
		}
	}
	opts = append(opts, extra...)

	p := &OpenAI{
		client:   openai.NewClient(opts...),
		cfg:      cfg,
		breakers: NewBreakers(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.RecoveryProbeInterval),
	}
	if cfg.MaxConcurrent > 0 {
		p.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	}
	return p
}

// DefaultModel returns the model used when a request names none.
func (p *OpenAI) DefaultModel(kind llmcache.Kind) string {
	switch kind {
	case llmcache.KindChat:
		return p.cfg.DefaultChatModel
	case llmcache.KindVision:
		return p.cfg.DefaultVisionModel
	default:
		return p.cfg.DefaultCompletionModel
	}
}

// CircuitStates reports each model's breaker state by name.
func (p *OpenAI) CircuitStates() map[string]string {
	states := p.breakers.States()
	out := make(map[string]string, len(states))
	for model, st := range states {
		out[model] = st.String()
	}
	return out
}

// Chat sends messages unchanged, in order.
func (p *OpenAI) Chat(ctx context.Context, model string, messages []llmcache.Message) (json.RawMessage, error) {
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: chatMessages(messages),
	}
	return p.call(ctx, params)
}

// Complete answers a bare prompt with model, or the default completion model
// when model is empty. A non-empty context map is passed to the model as a
// system message; metadata may set temperature.
func (p *OpenAI) Complete(ctx context.Context, model, prompt string, promptContext, metadata map[string]any) (json.RawMessage, error) {
	if model == "" {
		model = p.cfg.DefaultCompletionModel
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if len(promptContext) > 0 {
		rendered, err := json.MarshalIndent(promptContext, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("render completion context: %w", err)
		}
		messages = append(messages, openai.SystemMessage("Context:\n"+string(rendered)))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if t, ok := number(metadata["temperature"]); ok {
		params.Temperature = openai.Float(t)
	}
	return p.call(ctx, params)
}

// Vision asks about the images at imageURLs, in order, after the configured
// system prompt.
func (p *OpenAI) Vision(ctx context.Context, model, prompt string, imageURLs []string) (json.RawMessage, error) {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(imageURLs)+1)
	parts = append(parts, openai.TextContentPart(prompt))
	for _, u := range imageURLs {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: u}))
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if p.cfg.VisionSystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(p.cfg.VisionSystemPrompt))
	}
	messages = append(messages, openai.UserMessage(parts))

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	return p.call(ctx, params)
}

func (p *OpenAI) call(ctx context.Context, params openai.ChatCompletionNewParams) (json.RawMessage, error) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer p.sem.Release(1)
	}

	breaker := p.breakers.Get(params.Model)
	if !breaker.Allow() {
		return nil, fmt.Errorf("%w for model %s", ErrCircuitOpen, params.Model)
	}

	callCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	completion, err := p.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		if ctx.Err() != nil {
			breaker.Abandon()
			return nil, ctx.Err()
		}
		breaker.RecordFailure()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %s: %w", p.cfg.Timeout, err)
		}
		return nil, err
	}
	if len(completion.Choices) == 0 {
		breaker.RecordFailure()
		return nil, ErrEmptyResponse
	}
	breaker.RecordSuccess()

	return json.Marshal(completion.Choices[0].Message.Content)
}

// number accepts the numeric forms a decoded JSON body can hold.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case int:
		return float64(n), true
	}
	return 0, false
}

func chatMessages(msgs []llmcache.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case llmcache.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case llmcache.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

// Describe returns a short label for logs, e.g. "openai@https://api.openai.com/v1".
func Describe(cfg config.ProviderConfig) string {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return cfg.Type + "@" + strings.TrimSuffix(base, "/")
}
