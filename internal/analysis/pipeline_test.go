package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/documind/cadalyst/internal/llm"
)

// fakeResolver returns scripted resolutions in call order.
type fakeResolver struct {
	outcomes []fakeResolution
	calls    int
	prompts  []string
}

type fakeResolution struct {
	text     string
	provider string
	err      error
}

func (f *fakeResolver) Resolve(ctx context.Context, modelID, prompt string, image []byte) (*llm.Resolution, error) {
	idx := f.calls
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if idx >= len(f.outcomes) {
		return nil, errors.New("unscripted call")
	}
	out := f.outcomes[idx]
	if out.err != nil {
		return nil, out.err
	}
	return &llm.Resolution{Text: out.text, Provider: out.provider}, nil
}

func succeedingResolver(provider string) *fakeResolver {
	outcomes := make([]fakeResolution, len(Stages()))
	for i := range outcomes {
		outcomes[i] = fakeResolution{text: "stage answer", provider: provider}
	}
	return &fakeResolver{outcomes: outcomes}
}

func TestAnalyzeRejectsNonVisionModel(t *testing.T) {
	r := succeedingResolver("Google Studio gemini-2.5-flash")
	p := NewPipeline(llm.DefaultCatalog(), r)

	_, err := p.Analyze(context.Background(), "meta-llama/llama-3.3-70b-instruct:free", []byte("img"))

	var capErr *llm.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapabilityError, got %v", err)
	}
	if r.calls != 0 {
		t.Errorf("capability rejection must happen before any call, got %d", r.calls)
	}
}

func TestAnalyzeUnknownModel(t *testing.T) {
	r := succeedingResolver("x")
	p := NewPipeline(llm.DefaultCatalog(), r)

	_, err := p.Analyze(context.Background(), "nope", []byte("img"))

	var unknown *llm.UnknownModelError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownModelError, got %v", err)
	}
	if r.calls != 0 {
		t.Errorf("unknown model must not trigger calls, got %d", r.calls)
	}
}

func TestAnalyzeRunsAllStagesInOrder(t *testing.T) {
	r := succeedingResolver("Google Studio gemini-2.5-flash")
	p := NewPipeline(llm.DefaultCatalog(), r)

	res, err := p.Analyze(context.Background(), "gemini-2.5-flash", []byte("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stages := Stages()
	if len(res.Stages) != len(stages) {
		t.Fatalf("expected %d stage results, got %d", len(stages), len(res.Stages))
	}
	for i, st := range stages {
		if res.Stages[i].Stage != st.ID {
			t.Errorf("stage %d out of order: got %s want %s", i, res.Stages[i].Stage, st.ID)
		}
		if r.prompts[i] != st.Prompt {
			t.Errorf("stage %d sent the wrong prompt", i)
		}
	}
	if !res.Complete {
		t.Error("result must be marked complete")
	}
	if res.ModelUsed != "Gemini 2.5 Flash" {
		t.Errorf("unexpected model name: %s", res.ModelUsed)
	}
}

func TestAnalyzeAtomicity(t *testing.T) {
	// Stage 3 fails terminally: no result, no partial text.
	r := &fakeResolver{outcomes: []fakeResolution{
		{text: "one", provider: "Google Studio gemini-2.5-flash"},
		{text: "two", provider: "Google Studio gemini-2.5-flash"},
		{err: &llm.ExhaustedError{ModelID: "gemini-2.5-flash", Attempts: 3}},
	}}
	p := NewPipeline(llm.DefaultCatalog(), r)

	res, err := p.Analyze(context.Background(), "gemini-2.5-flash", []byte("img"))
	if err == nil {
		t.Fatal("expected error")
	}
	if res != nil {
		t.Fatal("no partial result may be returned")
	}
	if r.calls != 3 {
		t.Errorf("stages after the failure must not run, got %d calls", r.calls)
	}

	var exhausted *llm.ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Errorf("exhaustion must stay identifiable through wrapping, got %v", err)
	}
}

func TestAnalyzeProvenanceStability(t *testing.T) {
	// Later stages resolve with a different label; provenance stays pinned
	// to the first stage's.
	outcomes := []fakeResolution{
		{text: "a", provider: "Google Studio gemini-2.5-flash"},
		{text: "b", provider: "Google Studio gemini-2.5-flash-lite (fallback)"},
		{text: "c", provider: "OpenRouter Gemini (fallback)"},
		{text: "d", provider: "Google Studio gemini-2.5-flash"},
		{text: "e", provider: "Google Studio gemini-2.5-flash"},
	}
	r := &fakeResolver{outcomes: outcomes}
	p := NewPipeline(llm.DefaultCatalog(), r)

	res, err := p.Analyze(context.Background(), "gemini-2.5-flash", []byte("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ProviderUsed != "Google Studio gemini-2.5-flash" {
		t.Errorf("provenance must come from the first stage, got %q", res.ProviderUsed)
	}
}

func TestFormatRendering(t *testing.T) {
	r := succeedingResolver("Google Studio gemini-2.5-flash")
	p := NewPipeline(llm.DefaultCatalog(), r)

	res, err := p.Analyze(context.Background(), "gemini-2.5-flash", []byte("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	formatted := res.Format()
	if !strings.HasPrefix(formatted, "# CAD VISION ANALYSIS (Gemini 2.5 Flash via Google Studio gemini-2.5-flash)") {
		t.Errorf("unexpected header: %s", strings.SplitN(formatted, "\n", 2)[0])
	}

	// One stable heading per stage, in pipeline order
	lastIdx := -1
	for _, st := range Stages() {
		heading := "## " + st.Title
		idx := strings.Index(formatted, heading)
		if idx < 0 {
			t.Errorf("missing heading %q", heading)
			continue
		}
		if idx < lastIdx {
			t.Errorf("heading %q out of order", heading)
		}
		lastIdx = idx
	}

	if strings.Contains(strings.ToUpper(formatted), "EXECUTIVE SUMMARY") {
		t.Error("rendering must not contain an executive summary")
	}
}

func TestUnits(t *testing.T) {
	r := succeedingResolver("Google Studio gemini-2.5-flash")
	p := NewPipeline(llm.DefaultCatalog(), r)

	res, err := p.Analyze(context.Background(), "gemini-2.5-flash", []byte("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	units := res.Units("doc-42")
	if len(units) != len(Stages())+1 {
		t.Fatalf("expected one unit per stage plus a summary, got %d", len(units))
	}
	for i, st := range Stages() {
		md := units[i].Metadata
		if md["doc_id"] != "doc-42" || md["stage_name"] != st.ID || md["model_used"] != "Gemini 2.5 Flash" {
			t.Errorf("unit %d has wrong metadata: %v", i, md)
		}
	}
	summary := units[len(units)-1]
	if summary.Metadata["stage_name"] != "summary" {
		t.Errorf("last unit must be the summary, got %v", summary.Metadata)
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	run := func() *Result {
		r := succeedingResolver("Google Studio gemini-2.5-flash")
		p := NewPipeline(llm.DefaultCatalog(), r)
		res, err := p.Analyze(context.Background(), "gemini-2.5-flash", []byte("img"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return res
	}

	a, b := run(), run()
	for i := range a.Stages {
		if a.Stages[i].Text != b.Stages[i].Text {
			t.Errorf("stage %d text differs between identical runs", i)
		}
	}
	if a.Format() != b.Format() {
		t.Error("formatted rendering differs between identical runs")
	}
}
