package llm

import (
	"context"
	"errors"
	"testing"
)

// fakeProvider returns scripted outcomes in call order and records every
// model it was asked for.
type fakeProvider struct {
	name    string
	outcome []fakeOutcome
	calls   []string
}

type fakeOutcome struct {
	text string
	err  error
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return true }

func (f *fakeProvider) Send(ctx context.Context, model, prompt string, image []byte) (string, error) {
	idx := len(f.calls)
	f.calls = append(f.calls, model)
	if idx >= len(f.outcome) {
		return "", &ProviderError{Provider: f.name, Kind: FailureTransport, Detail: "unscripted call"}
	}
	out := f.outcome[idx]
	return out.text, out.err
}

func quotaErr(provider string) error {
	return &ProviderError{Provider: provider, Kind: FailureQuota, Detail: "HTTP 429: quota exceeded"}
}

func transportErr(provider string) error {
	return &ProviderError{Provider: provider, Kind: FailureTransport, Detail: "connection refused"}
}

func TestResolveUnknownModel(t *testing.T) {
	direct := &fakeProvider{name: "google-studio"}
	gateway := &fakeProvider{name: "openrouter"}
	o := NewOrchestrator(DefaultCatalog(), direct, gateway, "google/gemini-2.0-flash-exp:free")

	_, err := o.Resolve(context.Background(), "no-such-model", "prompt", nil)

	var unknown *UnknownModelError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownModelError, got %v", err)
	}
	if len(direct.calls)+len(gateway.calls) != 0 {
		t.Fatalf("expected no provider calls, got %d", len(direct.calls)+len(gateway.calls))
	}
}

func TestResolvePrimarySuccess(t *testing.T) {
	direct := &fakeProvider{name: "google-studio", outcome: []fakeOutcome{{text: "analysis text"}}}
	gateway := &fakeProvider{name: "openrouter"}
	o := NewOrchestrator(DefaultCatalog(), direct, gateway, "google/gemini-2.0-flash-exp:free")

	res, err := o.Resolve(context.Background(), "gemini-2.5-flash", "prompt", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "analysis text" {
		t.Errorf("unexpected text: %q", res.Text)
	}
	if res.Provider != "Google Studio gemini-2.5-flash" {
		t.Errorf("unexpected provenance: %q", res.Provider)
	}
	if res.FailedOver {
		t.Error("primary success must not be marked as failover")
	}
	if len(direct.calls) != 1 || len(gateway.calls) != 0 {
		t.Errorf("expected 1 direct call and 0 gateway calls, got %d/%d", len(direct.calls), len(gateway.calls))
	}
}

func TestResolveCascadeOrdering(t *testing.T) {
	direct := &fakeProvider{name: "google-studio", outcome: []fakeOutcome{
		{err: quotaErr("google-studio")},
		{err: quotaErr("google-studio")},
	}}
	gateway := &fakeProvider{name: "openrouter", outcome: []fakeOutcome{{text: "gateway text"}}}
	o := NewOrchestrator(DefaultCatalog(), direct, gateway, "google/gemini-2.0-flash-exp:free")

	res, err := o.Resolve(context.Background(), "gemini-2.5-flash", "prompt", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "gateway text" {
		t.Errorf("unexpected text: %q", res.Text)
	}
	if !res.FailedOver {
		t.Error("gateway answer must be marked as failover")
	}
	if res.Provider != "OpenRouter Gemini (fallback)" {
		t.Errorf("unexpected provenance: %q", res.Provider)
	}

	if got := len(direct.calls) + len(gateway.calls); got != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", got)
	}
	if direct.calls[0] != "gemini-2.5-flash" || direct.calls[1] != "gemini-2.5-flash-lite" {
		t.Errorf("direct calls out of order: %v", direct.calls)
	}
	if gateway.calls[0] != "google/gemini-2.0-flash-exp:free" {
		t.Errorf("unexpected gateway model: %v", gateway.calls)
	}
}

func TestResolveTransportShortCircuit(t *testing.T) {
	direct := &fakeProvider{name: "google-studio", outcome: []fakeOutcome{
		{err: transportErr("google-studio")},
	}}
	gateway := &fakeProvider{name: "openrouter"}
	o := NewOrchestrator(DefaultCatalog(), direct, gateway, "google/gemini-2.0-flash-exp:free")

	_, err := o.Resolve(context.Background(), "gemini-2.5-flash", "prompt", nil)
	if KindOf(err) != FailureTransport {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if len(direct.calls) != 1 {
		t.Errorf("expected exactly 1 call, got %d", len(direct.calls))
	}
	if len(gateway.calls) != 0 {
		t.Errorf("transport failure must never reach the gateway, got %d calls", len(gateway.calls))
	}
}

func TestResolveExhaustion(t *testing.T) {
	direct := &fakeProvider{name: "google-studio", outcome: []fakeOutcome{
		{err: quotaErr("google-studio")},
		{err: quotaErr("google-studio")},
	}}
	// No gateway fallback configured
	o := NewOrchestrator(DefaultCatalog(), direct, nil, "")

	_, err := o.Resolve(context.Background(), "gemini-2.5-flash", "prompt", nil)

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.ModelID != "gemini-2.5-flash" {
		t.Errorf("unexpected model id: %s", exhausted.ModelID)
	}
	if exhausted.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", exhausted.Attempts)
	}
	if len(direct.calls) != 2 {
		t.Errorf("expected exactly 2 calls, got %d", len(direct.calls))
	}
}

func TestResolveFallbackTransportStillReachesGateway(t *testing.T) {
	// A non-quota error on the fallback model is absorbed; only the
	// primary's transport failures abort the walk.
	direct := &fakeProvider{name: "google-studio", outcome: []fakeOutcome{
		{err: quotaErr("google-studio")},
		{err: transportErr("google-studio")},
	}}
	gateway := &fakeProvider{name: "openrouter", outcome: []fakeOutcome{{text: "gateway text"}}}
	o := NewOrchestrator(DefaultCatalog(), direct, gateway, "google/gemini-2.0-flash-exp:free")

	res, err := o.Resolve(context.Background(), "gemini-2.5-flash", "prompt", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "gateway text" {
		t.Errorf("unexpected text: %q", res.Text)
	}
}

func TestResolveLenientFallbackSkip(t *testing.T) {
	// Fallback declared but absent from the catalogue: skip straight to
	// the gateway step without a second direct call.
	catalog := NewCatalog([]ModelDescriptor{{
		ID:              "gemini-2.5-flash",
		Name:            "Gemini 2.5 Flash",
		Provider:        FamilyGeminiDirect,
		APIModel:        "gemini-2.5-flash",
		FallbackModelID: "gemini-ghost",
		Capabilities:    []string{CapabilityVision},
	}})
	direct := &fakeProvider{name: "google-studio", outcome: []fakeOutcome{{err: quotaErr("google-studio")}}}
	gateway := &fakeProvider{name: "openrouter", outcome: []fakeOutcome{{text: "gateway text"}}}
	o := NewOrchestrator(catalog, direct, gateway, "google/gemini-2.0-flash-exp:free")

	res, err := o.Resolve(context.Background(), "gemini-2.5-flash", "prompt", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(direct.calls) != 1 {
		t.Errorf("missing fallback must not be called, got %v", direct.calls)
	}
	if res.Provider != "OpenRouter Gemini (fallback)" {
		t.Errorf("unexpected provenance: %q", res.Provider)
	}
}

func TestResolveGatewayFamilySingleCall(t *testing.T) {
	direct := &fakeProvider{name: "google-studio"}
	gateway := &fakeProvider{name: "openrouter", outcome: []fakeOutcome{{text: "qwen says hi"}}}
	o := NewOrchestrator(DefaultCatalog(), direct, gateway, "google/gemini-2.0-flash-exp:free")

	res, err := o.Resolve(context.Background(), "qwen/qwen-2.5-vl-7b-instruct:free", "prompt", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gateway.calls) != 1 || len(direct.calls) != 0 {
		t.Errorf("expected exactly 1 gateway call, got gateway=%d direct=%d", len(gateway.calls), len(direct.calls))
	}
	if res.Provider != "Qwen 2.5 VL 7B" {
		t.Errorf("unexpected provenance: %q", res.Provider)
	}
}

func TestResolveGatewayFamilyNoCascade(t *testing.T) {
	direct := &fakeProvider{name: "google-studio"}
	gateway := &fakeProvider{name: "openrouter", outcome: []fakeOutcome{{err: quotaErr("openrouter")}}}
	o := NewOrchestrator(DefaultCatalog(), direct, gateway, "google/gemini-2.0-flash-exp:free")

	_, err := o.Resolve(context.Background(), "qwen/qwen-2.5-vl-7b-instruct:free", "prompt", nil)
	if KindOf(err) != FailureQuota {
		t.Fatalf("expected the quota failure verbatim, got %v", err)
	}
	if len(gateway.calls) != 1 {
		t.Errorf("gateway models get exactly one attempt, got %d", len(gateway.calls))
	}
}

func TestResolveIdempotent(t *testing.T) {
	canned := "identical canned text"
	run := func() string {
		direct := &fakeProvider{name: "google-studio", outcome: []fakeOutcome{{text: canned}}}
		o := NewOrchestrator(DefaultCatalog(), direct, nil, "")
		res, err := o.Resolve(context.Background(), "gemini-2.5-flash", "prompt", []byte("img"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return res.Text
	}

	if a, b := run(), run(); a != b {
		t.Errorf("resolutions differ: %q vs %q", a, b)
	}
}

func TestResolveCancellationUnwinds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	direct := &fakeProvider{name: "google-studio", outcome: []fakeOutcome{
		// Cancellation surfaces as a quota-shaped error from some SDKs;
		// the orchestrator must still not retry once ctx is done.
		{err: quotaErr("google-studio")},
	}}
	gateway := &fakeProvider{name: "openrouter"}
	o := NewOrchestrator(DefaultCatalog(), direct, gateway, "google/gemini-2.0-flash-exp:free")

	cancel()
	_, err := o.Resolve(ctx, "gemini-2.5-flash", "prompt", nil)
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if len(direct.calls) != 1 || len(gateway.calls) != 0 {
		t.Errorf("cancelled resolution must not retry, got direct=%d gateway=%d", len(direct.calls), len(gateway.calls))
	}
}
