// Package llm - error taxonomy and message classification.
//
// Providers return *ProviderError with a FailureKind; the orchestrator
// pattern-matches on the kind to steer the cascade. Quota is the only kind
// that triggers cascade progression, so the classification here decides
// whether a failure is retried on a fallback model or surfaced verbatim.
package llm

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind categorizes provider failures for cascade decisions.
type FailureKind string

const (
	FailureQuota     FailureKind = "quota"
	FailureTransport FailureKind = "transport"
	FailureUnknown   FailureKind = "unknown"
)

// ProviderError is a classified failure from one provider call.
type ProviderError struct {
	Provider string
	Kind     FailureKind
	Detail   string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s failure: %s", e.Provider, e.Kind, e.Detail)
}

// UnknownModelError indicates a model id absent from the catalogue.
// This is a caller error and never enters the fallback cascade.
type UnknownModelError struct {
	ModelID string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model: %s", e.ModelID)
}

// CapabilityError indicates a request needing a capability the model lacks.
// Surfaced before any network call is made.
type CapabilityError struct {
	ModelID    string
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("model %s does not support %s", e.ModelID, e.Capability)
}

// ExhaustedError indicates every cascade step failed with quota or
// unavailability. It carries the attempt count rather than the transient
// quota text so callers and tests see a stable message.
type ExhaustedError struct {
	ModelID  string
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all providers exhausted for %s after %d attempts", e.ModelID, e.Attempts)
}

// KindOf extracts the failure kind from an error chain.
// Errors that are not provider failures report FailureUnknown.
func KindOf(err error) FailureKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return FailureUnknown
}

// IsQuota reports whether an error is a classified quota failure.
func IsQuota(err error) bool {
	return KindOf(err) == FailureQuota
}

// IsQuotaMessage checks if a provider message indicates rate/quota
// exhaustion. Patterns cover HTTP 429 plus the phrasing used by Google AI
// Studio and OpenRouter.
func IsQuotaMessage(msg string) bool {
	if msg == "" {
		return false
	}
	lower := strings.ToLower(msg)

	if strings.Contains(lower, "429") {
		return true
	}

	return strings.Contains(lower, "quota") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "resource has been exhausted") ||
		strings.Contains(lower, "usage limit")
}

// ClassifyMessage maps a raw provider message to a failure kind.
// Anything that is not quota exhaustion counts as a transport failure;
// the cascade does not distinguish timeouts from other I/O errors.
func ClassifyMessage(msg string) FailureKind {
	if IsQuotaMessage(msg) {
		return FailureQuota
	}
	return FailureTransport
}
