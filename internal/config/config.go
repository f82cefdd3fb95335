// Package config loads cadalyst configuration from cadalyst.json
// with environment variable overrides for secrets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the merged cadalyst configuration
type Config struct {
	Keys     KeysConfig     `json:"keys"`
	Analysis AnalysisConfig `json:"analysis"`
	Index    IndexConfig    `json:"index"`
	Upload   UploadConfig   `json:"upload"`
}

// KeysConfig holds provider API keys. Environment variables win over
// file values so secrets can stay out of the config file.
type KeysConfig struct {
	Google     string `json:"googleApiKey,omitempty"`
	OpenRouter string `json:"openrouterApiKey,omitempty"`
}

// AnalysisConfig holds analysis orchestration tunables
type AnalysisConfig struct {
	DefaultModel         string `json:"defaultModel"`         // Model id used when the caller doesn't pick one
	GatewayFallbackModel string `json:"gatewayFallbackModel"` // Cross-provider last-resort model id
	TimeoutSeconds       int    `json:"timeoutSeconds"`       // Per-request timeout for provider calls
}

// IndexConfig holds vector/keyword index settings
type IndexConfig struct {
	Path           string `json:"path"`           // SQLite database path
	ChunkTokens    int    `json:"chunkTokens"`    // Target tokens per chunk
	OverlapTokens  int    `json:"overlapTokens"`  // Chunk overlap in tokens
	TopK           int    `json:"topK"`           // Retrieval depth for queries
	EmbeddingModel string `json:"embeddingModel"` // Gemini embedding model name
}

// UploadConfig holds document intake settings
type UploadConfig struct {
	Dir      string `json:"dir"`
	MaxBytes int64  `json:"maxBytes"`
}

// Default returns the built-in configuration
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Analysis: AnalysisConfig{
			DefaultModel:         "gemini-2.5-flash",
			GatewayFallbackModel: "google/gemini-2.0-flash-exp:free",
			TimeoutSeconds:       60,
		},
		Index: IndexConfig{
			Path:           filepath.Join(home, ".cadalyst", "index.db"),
			ChunkTokens:    1024,
			OverlapTokens:  200,
			TopK:           8,
			EmbeddingModel: "text-embedding-004",
		},
		Upload: UploadConfig{
			Dir:      "./uploads",
			MaxBytes: 10 * 1024 * 1024,
		},
	}
}

// Load reads configuration from the given path (or ~/.cadalyst/cadalyst.json
// when path is empty), applying defaults and environment overrides.
// A missing config file is not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".cadalyst", "cadalyst.json")
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyBounds()

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		c.Keys.Google = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.Keys.OpenRouter = v
	}
}

// applyBounds clamps nonsensical values back to defaults
func (c *Config) applyBounds() {
	def := Default()
	if c.Analysis.DefaultModel == "" {
		c.Analysis.DefaultModel = def.Analysis.DefaultModel
	}
	if c.Analysis.TimeoutSeconds <= 0 {
		c.Analysis.TimeoutSeconds = def.Analysis.TimeoutSeconds
	}
	if c.Index.ChunkTokens <= 0 {
		c.Index.ChunkTokens = def.Index.ChunkTokens
	}
	if c.Index.OverlapTokens < 0 || c.Index.OverlapTokens >= c.Index.ChunkTokens {
		c.Index.OverlapTokens = def.Index.OverlapTokens
	}
	if c.Index.TopK <= 0 {
		c.Index.TopK = def.Index.TopK
	}
	if c.Index.Path == "" {
		c.Index.Path = def.Index.Path
	}
	if c.Index.EmbeddingModel == "" {
		c.Index.EmbeddingModel = def.Index.EmbeddingModel
	}
	if c.Upload.Dir == "" {
		c.Upload.Dir = def.Upload.Dir
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = def.Upload.MaxBytes
	}
}
