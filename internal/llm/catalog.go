// Package llm provides the model catalogue, the inference provider
// implementations, and the quota fallback cascade that resolves an
// analysis prompt to a working provider response.
package llm

import "fmt"

// Provider family tags
const (
	FamilyGeminiDirect = "GEMINI_DIRECT"
	FamilyOpenRouter   = "OPENROUTER"
)

// Capability names used in model descriptors
const (
	CapabilityVision       = "vision"
	CapabilityFast         = "fast"
	CapabilityLite         = "lite"
	CapabilityReasoning    = "reasoning"
	CapabilityTechnical    = "technical"
	CapabilityAdvanced     = "advanced"
	CapabilityLargeContext = "large_context"
)

// ModelDescriptor describes one model in the catalogue.
// Descriptors are immutable once loaded; the catalogue owns them.
type ModelDescriptor struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Provider        string   `json:"provider"`                  // FamilyGeminiDirect or FamilyOpenRouter
	APIModel        string   `json:"apiModel,omitempty"`        // Vendor-side model name (direct family)
	FallbackModelID string   `json:"fallbackModelId,omitempty"` // Same-family quota escalation
	Capabilities    []string `json:"capabilities"`
	ContextWindow   string   `json:"contextWindow"`
	Free            bool     `json:"free"`
	Notes           string   `json:"notes,omitempty"`
}

// HasCapability reports whether the descriptor carries the named capability.
func (d ModelDescriptor) HasCapability(name string) bool {
	for _, c := range d.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// Catalog is a read-only model catalogue. Lookups never mutate it, so a
// Catalog value can be shared freely and swapped wholesale in tests.
type Catalog struct {
	models map[string]ModelDescriptor
	order  []string
}

// NewCatalog builds a catalogue from descriptors, preserving order for List.
func NewCatalog(models []ModelDescriptor) Catalog {
	c := Catalog{models: make(map[string]ModelDescriptor, len(models))}
	for _, m := range models {
		if _, dup := c.models[m.ID]; dup {
			continue
		}
		c.models[m.ID] = m
		c.order = append(c.order, m.ID)
	}
	return c
}

// Describe looks up a model by id. Unknown ids return UnknownModelError,
// which never participates in the fallback cascade.
func (c Catalog) Describe(modelID string) (ModelDescriptor, error) {
	m, ok := c.models[modelID]
	if !ok {
		return ModelDescriptor{}, &UnknownModelError{ModelID: modelID}
	}
	return m, nil
}

// List returns all descriptors in catalogue order.
func (c Catalog) List() []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.models[id])
	}
	return out
}

// Len returns the number of catalogued models.
func (c Catalog) Len() int { return len(c.models) }

// DefaultCatalog returns the built-in model catalogue: Google AI Studio
// Gemini as primary with a lite sibling for quota relief, plus the curated
// OpenRouter set of free and paid models.
func DefaultCatalog() Catalog {
	return NewCatalog([]ModelDescriptor{
		{
			ID:              "gemini-2.5-flash",
			Name:            "Gemini 2.5 Flash",
			Provider:        FamilyGeminiDirect,
			APIModel:        "gemini-2.5-flash",
			FallbackModelID: "gemini-2.5-flash-lite",
			Capabilities:    []string{CapabilityVision, CapabilityFast},
			ContextWindow:   "1M tokens",
			Free:            true,
			Notes:           "Google AI Studio (recommended)",
		},
		{
			ID:            "gemini-2.5-flash-lite",
			Name:          "Gemini 2.5 Flash Lite",
			Provider:      FamilyGeminiDirect,
			APIModel:      "gemini-2.5-flash-lite",
			Capabilities:  []string{CapabilityVision, CapabilityFast, CapabilityLite},
			ContextWindow: "1M tokens",
			Free:          true,
			Notes:         "Lighter version, better for quota limits",
		},
		{
			ID:            "google/gemini-2.0-flash-exp:free",
			Name:          "Gemini 2.0 Flash (OpenRouter)",
			Provider:      FamilyOpenRouter,
			Capabilities:  []string{CapabilityVision, CapabilityFast},
			ContextWindow: "1M tokens",
			Free:          true,
			Notes:         "OpenRouter fallback (rate limited)",
		},
		{
			ID:            "nvidia/nemotron-nano-12b-v2-vl:free",
			Name:          "NVIDIA Nemotron Nano VL",
			Provider:      FamilyOpenRouter,
			Capabilities:  []string{CapabilityVision, CapabilityTechnical},
			ContextWindow: "32K tokens",
			Free:          true,
			Notes:         "Optimized for technical diagrams",
		},
		{
			ID:            "qwen/qwen-2.5-vl-7b-instruct:free",
			Name:          "Qwen 2.5 VL 7B",
			Provider:      FamilyOpenRouter,
			Capabilities:  []string{CapabilityVision, CapabilityFast},
			ContextWindow: "32K tokens",
			Free:          true,
			Notes:         "Qwen vision model",
		},
		{
			ID:            "meta-llama/llama-3.3-70b-instruct:free",
			Name:          "Llama 3.3 70B Instruct",
			Provider:      FamilyOpenRouter,
			Capabilities:  []string{CapabilityReasoning, CapabilityLargeContext},
			ContextWindow: "128K tokens",
			Free:          true,
			Notes:         "Best free text model",
		},
		{
			ID:            "google/gemma-3-27b-it:free",
			Name:          "Gemma 3 27B IT",
			Provider:      FamilyOpenRouter,
			Capabilities:  []string{CapabilityReasoning, CapabilityFast},
			ContextWindow: "8K tokens",
			Free:          true,
			Notes:         "Fast Google model",
		},
		{
			ID:            "openai/gpt-oss-20b:free",
			Name:          "GPT OSS 20B",
			Provider:      FamilyOpenRouter,
			Capabilities:  []string{CapabilityReasoning},
			ContextWindow: "16K tokens",
			Free:          true,
			Notes:         "Open source GPT-style",
		},
		{
			ID:            "deepseek/deepseek-r1",
			Name:          "DeepSeek R1",
			Provider:      FamilyOpenRouter,
			Capabilities:  []string{CapabilityReasoning, CapabilityAdvanced},
			ContextWindow: "64K tokens",
			Free:          false,
			Notes:         "Excellent reasoning (paid)",
		},
		{
			ID:            "qwen/qwen3-235b-a22b",
			Name:          "Qwen 3 235B",
			Provider:      FamilyOpenRouter,
			Capabilities:  []string{CapabilityReasoning, CapabilityAdvanced},
			ContextWindow: "32K tokens",
			Free:          false,
			Notes:         "Large reasoning model (paid)",
		},
	})
}

// String implements fmt.Stringer for log output.
func (d ModelDescriptor) String() string {
	return fmt.Sprintf("%s (%s via %s)", d.ID, d.Name, d.Provider)
}
