// Package openai provides a translation provider backed by the OpenAI chat
// completions API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/overtitle/overtitle/pkg/translate"
)

const defaultModel = "gpt-4o-mini"

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Translator.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Translator implements translate.Translator using the OpenAI API.
type Translator struct {
	client oai.Client
	model  string
}

// New constructs a new OpenAI Translator. apiKey must be non-empty; an empty
// model selects gpt-4o-mini.
func New(apiKey string, model string, opts ...Option) (*Translator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = defaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Translator{client: client, model: model}, nil
}

// Translate implements translate.Translator.
func (t *Translator) Translate(ctx context.Context, text string, target translate.Target) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(t.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt(target)),
			oai.UserMessage("Translate this text: " + text),
		},
	}

	resp, err := t.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: translate to %s: %w", target.Code, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("openai: empty translation for %s", target.Code)
	}
	return out, nil
}

// systemPrompt builds the translation instruction for target.
func systemPrompt(target translate.Target) string {
	return fmt.Sprintf(
		"You are a translator for language: %s. Your only response should be the exact translation of input text in the %s language.",
		target.Name, target.Name,
	)
}
