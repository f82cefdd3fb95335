// Package llm - Google AI Studio provider (vendor-native endpoint).
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"

	. "github.com/documind/cadalyst/internal/logging"

	// Register webp so drawings exported as webp decode too
	_ "golang.org/x/image/webp"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiProvider calls the Google AI Studio generateContent endpoint
// directly. It accepts an optional image payload which is validated by
// decoding before dispatch; an undecodable image is a transport failure,
// not a quota one.
type GeminiProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

// geminiRequest is the generateContent request body
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

// geminiPart is either a text part or an inline image part
type geminiPart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *geminiBlobPart `json:"inline_data,omitempty"`
}

type geminiBlobPart struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// geminiResponse is the generateContent response (partial)
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGeminiProvider creates a Google AI Studio provider. The timeout bounds
// every outbound call; exceeding it surfaces as a transport failure.
func NewGeminiProvider(apiKey string, timeout time.Duration) *GeminiProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	p := &GeminiProvider{
		name:    "google-studio",
		apiKey:  apiKey,
		baseURL: defaultGeminiBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
	L_debug("gemini provider created", "timeout", timeout, "configured", apiKey != "")
	return p
}

// WithBaseURL returns a clone pointed at a different endpoint (for tests).
func (p *GeminiProvider) WithBaseURL(url string) *GeminiProvider {
	clone := *p
	clone.baseURL = url
	return &clone
}

func (p *GeminiProvider) Name() string { return p.name }

// Available reports whether the provider has credentials to dispatch.
func (p *GeminiProvider) Available() bool { return p.apiKey != "" }

// Send issues one generateContent call for the given api model.
func (p *GeminiProvider) Send(ctx context.Context, model, prompt string, img []byte) (string, error) {
	if !p.Available() {
		return "", &ProviderError{Provider: p.name, Kind: FailureTransport, Detail: "no API key configured"}
	}

	fullPrompt := analystSystemPrompt + "\n\n" + prompt
	parts := []geminiPart{{Text: fullPrompt}}

	if len(img) > 0 {
		// Validate the payload really is an image before spending a call
		if _, _, err := image.Decode(bytes.NewReader(img)); err != nil {
			return "", &ProviderError{
				Provider: p.name,
				Kind:     FailureTransport,
				Detail:   fmt.Sprintf("image decode: %v", err),
			}
		}
		parts = append(parts, geminiPart{InlineData: &geminiBlobPart{
			MimeType: mimetype.Detect(img).String(),
			Data:     base64.StdEncoding.EncodeToString(img),
		}})
	}

	body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: parts}}})
	if err != nil {
		return "", &ProviderError{Provider: p.name, Kind: FailureTransport, Detail: err.Error()}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: p.name, Kind: FailureTransport, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	L_debug("gemini: sending request", "model", model, "hasImage", len(img) > 0)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: p.name, Kind: ClassifyMessage(err.Error()), Detail: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ProviderError{Provider: p.name, Kind: FailureTransport, Detail: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		detail := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		kind := FailureTransport
		if resp.StatusCode == http.StatusTooManyRequests || IsQuotaMessage(string(respBody)) {
			kind = FailureQuota
		}
		L_warn("gemini: request failed", "model", model, "status", resp.StatusCode, "kind", kind)
		return "", &ProviderError{Provider: p.name, Kind: kind, Detail: detail}
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", &ProviderError{Provider: p.name, Kind: FailureTransport, Detail: fmt.Sprintf("decode response: %v", err)}
	}
	if parsed.Error != nil {
		kind := ClassifyMessage(parsed.Error.Status + " " + parsed.Error.Message)
		return "", &ProviderError{Provider: p.name, Kind: kind, Detail: parsed.Error.Message}
	}
	if len(parsed.Candidates) == 0 {
		return "", &ProviderError{Provider: p.name, Kind: FailureTransport, Detail: "empty candidate list"}
	}

	var text bytes.Buffer
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	L_debug("gemini: request succeeded", "model", model, "chars", text.Len())
	return text.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
