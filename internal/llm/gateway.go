// Package llm - OpenRouter provider (multi-vendor gateway).
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/documind/cadalyst/internal/logging"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// attributionTransport adds the app attribution headers OpenRouter uses
// for ranking and abuse attribution.
type attributionTransport struct {
	base http.RoundTripper
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("HTTP-Referer", "https://documind.app")
	req.Header.Set("X-Title", "DocuMind CAD Analyzer")
	if t.base == nil {
		return http.DefaultTransport.RoundTrip(req)
	}
	return t.base.RoundTrip(req)
}

// OpenRouterProvider routes prompts through the OpenRouter gateway with an
// explicit model field. It serves both the curated third-party models and
// the cross-provider last resort of the direct-family cascade.
type OpenRouterProvider struct {
	name   string
	client *openai.Client
	apiKey string
}

// NewOpenRouterProvider creates an OpenRouter gateway provider. Every call
// is bounded by the client timeout; exceeding it is a transport failure.
func NewOpenRouterProvider(apiKey string, timeout time.Duration) *OpenRouterProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = openRouterBaseURL
	cfg.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: &attributionTransport{base: http.DefaultTransport},
	}

	L_debug("openrouter provider created", "timeout", timeout, "configured", apiKey != "")

	return &OpenRouterProvider{
		name:   "openrouter",
		client: openai.NewClientWithConfig(cfg),
		apiKey: apiKey,
	}
}

func (p *OpenRouterProvider) Name() string { return p.name }

// Available reports whether the provider has credentials to dispatch.
func (p *OpenRouterProvider) Available() bool { return p.apiKey != "" }

// Send issues one chat completion with a single user message. The content
// is a plain string for text-only prompts, or ordered text and inline
// base64 image parts for vision prompts.
func (p *OpenRouterProvider) Send(ctx context.Context, model, prompt string, img []byte) (string, error) {
	if !p.Available() {
		return "", &ProviderError{Provider: p.name, Kind: FailureTransport, Detail: "no API key configured"}
	}

	fullPrompt := analystSystemPrompt + "\n\n" + prompt

	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(img) > 0 {
		msg.MultiContent = []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: fullPrompt,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
				},
			},
		}
	} else {
		msg.Content = fullPrompt
	}

	L_debug("openrouter: sending request", "model", model, "hasImage", len(img) > 0)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: []openai.ChatCompletionMessage{msg},
	})
	if err != nil {
		perr := classifyGatewayError(p.name, err)
		L_warn("openrouter: request failed", "model", model, "kind", perr.Kind, "detail", truncate(perr.Detail, 120))
		return "", perr
	}

	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: p.name, Kind: FailureTransport, Detail: "empty choice list"}
	}

	text := resp.Choices[0].Message.Content
	L_debug("openrouter: request succeeded", "model", model, "chars", len(text))
	return text, nil
}

// classifyGatewayError maps go-openai client errors onto the taxonomy.
// The API error status code is authoritative when present; otherwise the
// message patterns decide.
func classifyGatewayError(provider string, err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		kind := FailureTransport
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || IsQuotaMessage(apiErr.Message) {
			kind = FailureQuota
		}
		return &ProviderError{Provider: provider, Kind: kind, Detail: err.Error()}
	}
	return &ProviderError{Provider: provider, Kind: ClassifyMessage(err.Error()), Detail: err.Error()}
}
