// Package llm - provider abstraction.
package llm

import "context"

// Provider is the unified surface for one inference backend.
// Implementations: GeminiProvider (vendor-native endpoint) and
// OpenRouterProvider (multi-vendor gateway).
//
// Send issues exactly one outbound call for one model and prompt, with an
// optional raw image payload, and returns the response text or a classified
// *ProviderError. Retry and fallback policy live exclusively in the
// Orchestrator, never here.
type Provider interface {
	Name() string
	Available() bool
	Send(ctx context.Context, model, prompt string, image []byte) (string, error)
}

// analystSystemPrompt is prepended to every outbound prompt by both
// providers, so a fallback never changes the contract the model is asked
// to honor.
const analystSystemPrompt = `You are a technical CAD analysis expert. You MUST follow these rules STRICTLY:

ABSOLUTE RULES (NON-NEGOTIABLE):
1. Be CONCISE - Maximum 5-6 bullet points per stage
2. NO repetition across stages - each stage covers DIFFERENT aspects
3. NO invented data - if dimensions/standards are not visible, state "Not present in drawing"
4. NO storytelling or teaching tone - declarative statements only
5. NO "Based on the image..." prose - direct technical analysis only
6. Assume reader is a professional engineer

PROHIBITED:
- Repeating the same information in different words
- Adding extra sections beyond what's requested
- Inventing measurements, tolerances, or standards
- Using phrases like "Based on the analysis..." or "In conclusion..."

If data is missing, state it ONCE and move on. Be technical, neutral, and precise.`

// SystemPrompt exposes the fixed system instruction. Providers prepend it
// themselves; this accessor exists for display and testing.
func SystemPrompt() string { return analystSystemPrompt }
