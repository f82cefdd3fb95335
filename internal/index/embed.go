package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	. "github.com/documind/cadalyst/internal/logging"
)

// EmbeddingProvider generates embeddings for text
type EmbeddingProvider interface {
	// ID returns the provider identifier (e.g., "gemini", "none")
	ID() string

	// Model returns the model name used for embeddings
	Model() string

	// Dimensions returns the embedding vector dimensions
	Dimensions() int

	// EmbedQuery generates an embedding for a search query
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	// Returns embeddings in the same order as the input texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Available returns true if the provider is ready to generate embeddings
	Available() bool
}

// NoopProvider is used when no embedding key is configured; search
// degrades to keyword-only.
type NoopProvider struct{}

func (p *NoopProvider) ID() string      { return "none" }
func (p *NoopProvider) Model() string   { return "" }
func (p *NoopProvider) Dimensions() int { return 0 }
func (p *NoopProvider) Available() bool { return false }

func (p *NoopProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return nil, nil
}

func (p *NoopProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

var _ EmbeddingProvider = (*NoopProvider)(nil)

const defaultEmbedBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiEmbedDimensions is fixed for text-embedding-004.
const geminiEmbedDimensions = 768

// GeminiEmbedder generates embeddings through the Google AI Studio REST API.
type GeminiEmbedder struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type geminiEmbedRequest struct {
	Content  geminiEmbedContent `json:"content"`
	TaskType string             `json:"taskType,omitempty"`
}

type geminiEmbedContent struct {
	Parts []geminiEmbedPart `json:"parts"`
}

type geminiEmbedPart struct {
	Text string `json:"text"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// NewGeminiEmbedder creates an embedder for the given AI Studio key and model.
func NewGeminiEmbedder(apiKey, model string) *GeminiEmbedder {
	return &GeminiEmbedder{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultEmbedBaseURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// WithBaseURL overrides the API endpoint, used in tests.
func (p *GeminiEmbedder) WithBaseURL(url string) *GeminiEmbedder {
	p.baseURL = strings.TrimSuffix(url, "/")
	return p
}

func (p *GeminiEmbedder) ID() string      { return "gemini" }
func (p *GeminiEmbedder) Model() string   { return p.model }
func (p *GeminiEmbedder) Dimensions() int { return geminiEmbedDimensions }
func (p *GeminiEmbedder) Available() bool { return p.apiKey != "" }

// EmbedQuery generates an embedding for a search query
func (p *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if !p.Available() {
		return nil, nil
	}
	return p.embedSingle(ctx, text, "RETRIEVAL_QUERY")
}

// EmbedBatch generates embeddings for document chunks
func (p *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !p.Available() {
		return make([][]float32, len(texts)), nil
	}

	L_debug("index: embedding batch", "count", len(texts))

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		embedding, err := p.embedSingle(ctx, text, "RETRIEVAL_DOCUMENT")
		if err != nil {
			L_warn("index: failed to embed chunk", "index", i, "error", err)
			// Continue with nil embedding for this chunk
			continue
		}
		embeddings[i] = embedding
	}

	return embeddings, nil
}

func (p *GeminiEmbedder) embedSingle(ctx context.Context, text, taskType string) ([]float32, error) {
	reqBody := geminiEmbedRequest{
		Content:  geminiEmbedContent{Parts: []geminiEmbedPart{{Text: text}}},
		TaskType: taskType,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:embedContent", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result geminiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embedding API returned an empty vector")
	}

	return result.Embedding.Values, nil
}

var _ EmbeddingProvider = (*GeminiEmbedder)(nil)
