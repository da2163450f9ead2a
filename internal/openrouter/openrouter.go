// Package openrouter is the model query gateway: one chat-completion call to
// one model through the OpenRouter API.
package openrouter

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/council/internal/config"
)

const reasoningEffort = "high"

type ClientInterface interface {
	Query(ctx context.Context, model string, messages []Message, timeout time.Duration, reasoning bool) (*Completion, error)
}

// Client is a client wrapper for the OpenRouter chat-completions endpoint.
type Client struct {
	client          *resty.Client
	url             string
	reasoningModels map[string]struct{}
}

// NewClient creates a new OpenRouter client using the provided environment configuration.
func NewClient(cfg *config.OpenRouterEnvConfig) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if cfg.OpenRouterAPIURL == "" {
		return nil, fmt.Errorf("openrouter api url cannot be empty")
	}
	if cfg.OpenRouterAPIKey == "" {
		log.Warn().Msg("OPENROUTER_API_KEY is empty, requests will be rejected upstream")
	}

	client := resty.New().
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetAuthToken(cfg.OpenRouterAPIKey).
		SetHeader("Content-Type", "application/json")

	reasoning := make(map[string]struct{}, len(cfg.ReasoningModels))
	for _, m := range cfg.ReasoningModels {
		reasoning[m] = struct{}{}
	}

	return &Client{
		client:          client,
		url:             cfg.OpenRouterAPIURL,
		reasoningModels: reasoning,
	}, nil
}

// SupportsReasoning reports whether model accepts the tunable reasoning parameter.
func (c *Client) SupportsReasoning(model string) bool {
	_, ok := c.reasoningModels[model]
	return ok
}

// Query sends messages to model and waits at most timeout for the reply.
// The reasoning flag is dropped for models that cannot tune it.
func (c *Client) Query(
	ctx context.Context,
	model string,
	messages []Message,
	timeout time.Duration,
	reasoning bool,
) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body := ChatRequest{Model: model, Messages: messages}
	if reasoning && c.SupportsReasoning(model) {
		body.Reasoning = &ReasoningParams{Effort: reasoningEffort}
	}

	var out ChatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(c.url)
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("timeout", timeout).Msg("chat completion request failed")
		return nil, fmt.Errorf("query %s: %w", model, err)
	}
	if resp.IsError() {
		log.Error().Int("status", resp.StatusCode()).Str("body", resp.String()).Str("model", model).Msg("chat completion non-2xx")
		return nil, fmt.Errorf("query %s status %d: %s", model, resp.StatusCode(), resp.String())
	}
	if out.Error != nil {
		log.Error().Interface("error", out.Error).Str("model", model).Msg("response contains error")
		return nil, fmt.Errorf("query %s: response error: %s", model, out.Error.Message)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == nil {
		log.Error().Str("model", model).Str("body", resp.String()).Msg("chat completion without content")
		return nil, fmt.Errorf("query %s: %w", model, ErrNoContent)
	}

	msg := out.Choices[0].Message
	log.Debug().Str("model", model).Bool("reasoning", body.Reasoning != nil).Int("chars", len(*msg.Content)).Msg("chat completion received")

	return &Completion{
		Content:          *msg.Content,
		ReasoningDetails: msg.ReasoningDetails,
		Thinking:         msg.Thinking,
	}, nil
}
