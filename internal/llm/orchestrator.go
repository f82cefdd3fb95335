// Package llm - fallback cascade resolution.
package llm

import (
	"context"
	"fmt"

	. "github.com/documind/cadalyst/internal/logging"
)

// Attempt records one provider call (or skip) made while resolving.
type Attempt struct {
	Provider string      // Provider name that was tried
	Model    string      // Model sent to the provider
	Kind     FailureKind // Failure kind when OK is false
	OK       bool
}

// Resolution is the outcome of a successful cascade walk.
type Resolution struct {
	Text       string
	Provider   string // Human-readable provenance label
	Attempts   []Attempt
	FailedOver bool // True when the answer did not come from the primary
}

// Orchestrator resolves a (model id, prompt, image) triple to a working
// response by walking the fallback cascade:
//
//	primary direct model -> same-family fallback model -> gateway fallback
//
// Quota failures are the only ones that advance the cascade. A transport
// failure on the primary aborts resolution immediately; fallback is a quota
// remedy, not a general retry mechanism. Gateway-family model ids bypass
// the cascade entirely and get exactly one gateway call.
type Orchestrator struct {
	catalog         Catalog
	direct          Provider
	gateway         Provider
	gatewayFallback string // Cross-provider last-resort model id; empty disables the step
}

// NewOrchestrator creates an orchestrator over an explicit catalogue and
// provider set. Either provider may be nil when unconfigured.
func NewOrchestrator(catalog Catalog, direct, gateway Provider, gatewayFallback string) *Orchestrator {
	return &Orchestrator{
		catalog:         catalog,
		direct:          direct,
		gateway:         gateway,
		gatewayFallback: gatewayFallback,
	}
}

// Catalog returns the catalogue the orchestrator resolves against.
func (o *Orchestrator) Catalog() Catalog { return o.catalog }

// Resolve walks the cascade for one prompt. On success the resolution
// carries the response text and the provenance label of whichever
// provider/model actually answered.
func (o *Orchestrator) Resolve(ctx context.Context, modelID, prompt string, image []byte) (*Resolution, error) {
	desc, err := o.catalog.Describe(modelID)
	if err != nil {
		return nil, err
	}

	if desc.Provider != FamilyGeminiDirect {
		return o.resolveGatewayOnly(ctx, desc, prompt, image)
	}
	return o.resolveDirectCascade(ctx, desc, prompt, image)
}

// resolveGatewayOnly handles model ids that live on the gateway. These get
// exactly one call: the gateway already aggregates many models and the
// caller picked this one deliberately.
func (o *Orchestrator) resolveGatewayOnly(ctx context.Context, desc ModelDescriptor, prompt string, image []byte) (*Resolution, error) {
	res := &Resolution{}

	if o.gateway == nil || !o.gateway.Available() {
		return nil, &ProviderError{Provider: "openrouter", Kind: FailureTransport, Detail: "gateway not configured"}
	}

	text, err := o.gateway.Send(ctx, desc.ID, prompt, image)
	if err != nil {
		res.Attempts = append(res.Attempts, Attempt{Provider: o.gateway.Name(), Model: desc.ID, Kind: KindOf(err)})
		return nil, err
	}

	res.Text = text
	res.Provider = desc.Name
	res.Attempts = append(res.Attempts, Attempt{Provider: o.gateway.Name(), Model: desc.ID, OK: true})
	return res, nil
}

// resolveDirectCascade handles the Google AI Studio family with its full
// cascade.
func (o *Orchestrator) resolveDirectCascade(ctx context.Context, desc ModelDescriptor, prompt string, image []byte) (*Resolution, error) {
	res := &Resolution{}

	if o.direct == nil || !o.direct.Available() {
		return nil, &ProviderError{Provider: "google-studio", Kind: FailureTransport, Detail: "direct provider not configured"}
	}

	// Step 1: primary model
	L_info("cascade: trying primary", "model", desc.APIModel)
	text, err := o.direct.Send(ctx, desc.APIModel, prompt, image)
	if err == nil {
		res.Text = text
		res.Provider = fmt.Sprintf("Google Studio %s", desc.APIModel)
		res.Attempts = append(res.Attempts, Attempt{Provider: o.direct.Name(), Model: desc.APIModel, OK: true})
		L_info("cascade: primary succeeded", "model", desc.APIModel)
		return res, nil
	}

	kind := KindOf(err)
	res.Attempts = append(res.Attempts, Attempt{Provider: o.direct.Name(), Model: desc.APIModel, Kind: kind})

	// Non-quota failures from the primary propagate verbatim; callers must
	// be able to tell "rate limited, try later" from "broken integration".
	if kind != FailureQuota {
		L_error("cascade: primary failed, not retrying", "model", desc.APIModel, "kind", kind, "error", err)
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, err
	}

	L_warn("cascade: primary quota exceeded", "model", desc.APIModel)

	// Step 2: same-family fallback model. A declared-but-uncatalogued
	// fallback is skipped silently; intent is ambiguous and the next step
	// still applies.
	if desc.FallbackModelID != "" {
		if fb, fbErr := o.catalog.Describe(desc.FallbackModelID); fbErr == nil {
			L_info("cascade: trying fallback model", "model", fb.APIModel)
			text, err2 := o.direct.Send(ctx, fb.APIModel, prompt, image)
			if err2 == nil {
				res.Text = text
				res.Provider = fmt.Sprintf("Google Studio %s (fallback)", fb.APIModel)
				res.Attempts = append(res.Attempts, Attempt{Provider: o.direct.Name(), Model: fb.APIModel, OK: true})
				res.FailedOver = true
				L_info("cascade: fallback model succeeded", "model", fb.APIModel)
				return res, nil
			}
			res.Attempts = append(res.Attempts, Attempt{Provider: o.direct.Name(), Model: fb.APIModel, Kind: KindOf(err2)})
			if ctx.Err() != nil {
				return nil, err2
			}
			// Fallback failures of any kind fall through to the gateway;
			// only the primary's transport failures abort the walk.
			if IsQuota(err2) {
				L_warn("cascade: fallback model quota exceeded", "model", fb.APIModel)
			} else {
				L_error("cascade: fallback model error", "model", fb.APIModel, "error", err2)
			}
		} else {
			L_debug("cascade: fallback model not in catalogue, skipping", "model", desc.FallbackModelID)
		}
	}

	// Step 3: cross-provider gateway fallback, tried once.
	if o.gateway != nil && o.gateway.Available() && o.gatewayFallback != "" {
		L_info("cascade: trying gateway fallback", "model", o.gatewayFallback)
		text, err3 := o.gateway.Send(ctx, o.gatewayFallback, prompt, image)
		if err3 == nil {
			res.Text = text
			res.Provider = "OpenRouter Gemini (fallback)"
			res.Attempts = append(res.Attempts, Attempt{Provider: o.gateway.Name(), Model: o.gatewayFallback, OK: true})
			res.FailedOver = true
			L_info("cascade: gateway fallback succeeded", "model", o.gatewayFallback)
			return res, nil
		}
		res.Attempts = append(res.Attempts, Attempt{Provider: o.gateway.Name(), Model: o.gatewayFallback, Kind: KindOf(err3)})
		if ctx.Err() != nil {
			return nil, err3
		}
		L_error("cascade: gateway fallback failed", "model", o.gatewayFallback, "error", err3)
	}

	L_error("cascade: exhausted", "model", desc.ID, "attempts", len(res.Attempts))
	return nil, &ExhaustedError{ModelID: desc.ID, Attempts: len(res.Attempts)}
}
