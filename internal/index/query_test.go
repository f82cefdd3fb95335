package index

import (
	"context"
	"strings"
	"testing"

	"github.com/documind/cadalyst/internal/llm"
)

type fakeResolver struct {
	text    string
	err     error
	prompts []string
}

func (f *fakeResolver) Resolve(ctx context.Context, modelID, prompt string, image []byte) (*llm.Resolution, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Resolution{Text: f.text, Provider: "Google Studio gemini-2.5-flash"}, nil
}

func newTestEngine(t *testing.T, resolver Resolver) *Engine {
	t.Helper()

	store, err := Open(testIndexConfig(t), &NoopProvider{})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	records := []Record{
		{Text: "The housing assembly consists of a cast iron base with four mounting bosses.", Metadata: map[string]string{"file_name": "housing.pdf"}},
		{Text: "Mounting bosses are drilled and tapped M10 with a 20mm thread depth.", Metadata: map[string]string{"file_name": "housing.pdf"}},
	}
	if _, err := store.Index(context.Background(), "doc-1", "housing.pdf", records); err != nil {
		t.Fatalf("index failed: %v", err)
	}

	return NewEngine(store, resolver, "gemini-2.5-flash", 8)
}

func TestQueryAnswer(t *testing.T) {
	resolver := &fakeResolver{text: "The housing has four M10 mounting bosses with 20mm thread depth."}
	engine := newTestEngine(t, resolver)

	result := engine.Query(context.Background(), "how many mounting bosses does the housing have", nil, false)

	if result.HasMindmap {
		t.Error("plain question should not produce a mindmap")
	}
	if result.Response != resolver.text {
		t.Errorf("unexpected response: %q", result.Response)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "housing.pdf" {
		t.Errorf("expected deduplicated source list, got %v", result.Sources)
	}
	if len(resolver.prompts) != 1 {
		t.Fatalf("expected one resolve call, got %d", len(resolver.prompts))
	}
	if !strings.Contains(resolver.prompts[0], "Context information is below.") {
		t.Error("prompt missing context block")
	}
	if !strings.Contains(resolver.prompts[0], "mounting bosses") {
		t.Error("prompt missing retrieved chunk text")
	}
}

func TestQueryMindmapExtraction(t *testing.T) {
	resolver := &fakeResolver{text: "The housing structure is shown below.\n\nMERMAID_START\n```mermaid\nA[Housing] --> B[\"Base\"]\nA --> C[Bosses]\n```\nMERMAID_END"}
	engine := newTestEngine(t, resolver)

	result := engine.Query(context.Background(), "show me the structure of the housing", nil, false)

	if !result.HasMindmap {
		t.Fatal("expected a mindmap")
	}
	if !strings.HasPrefix(result.MermaidCode, "graph TD") {
		t.Errorf("mermaid code should default to graph TD, got %q", result.MermaidCode)
	}
	if strings.Contains(result.MermaidCode, "```") {
		t.Errorf("code fences should be stripped: %q", result.MermaidCode)
	}
	if strings.Contains(result.MermaidCode, "\"") {
		t.Errorf("double quotes should be replaced: %q", result.MermaidCode)
	}
	if result.Response != "The housing structure is shown below." {
		t.Errorf("response should stop before the diagram, got %q", result.Response)
	}
	if !strings.Contains(resolver.prompts[0], "Mermaid.js mind map") {
		t.Error("mindmap question should use the mindmap prompt")
	}
}

func TestQueryExplicitMindmapFlag(t *testing.T) {
	resolver := &fakeResolver{text: "Explained.\n\nMERMAID_START\ngraph TD\nA --> B\nMERMAID_END"}
	engine := newTestEngine(t, resolver)

	result := engine.Query(context.Background(), "describe the mounting bosses", nil, true)
	if !result.HasMindmap {
		t.Error("explicit mindmap request ignored")
	}
	if !strings.Contains(resolver.prompts[0], "Mermaid.js mind map") {
		t.Error("expected mindmap prompt")
	}
}

func TestQueryFriendlyErrorOnResolveFailure(t *testing.T) {
	resolver := &fakeResolver{err: &llm.ExhaustedError{ModelID: "gemini-2.5-flash", Attempts: 3}}
	engine := newTestEngine(t, resolver)

	result := engine.Query(context.Background(), "describe the housing bosses", nil, false)
	if !strings.Contains(result.Response, "I encountered an error processing your query") {
		t.Errorf("expected friendly error message, got %q", result.Response)
	}
	if result.HasMindmap || result.MermaidCode != "" {
		t.Error("error result should not carry a mindmap")
	}
}

func TestQueryShortResponseFallback(t *testing.T) {
	resolver := &fakeResolver{text: "err"}
	engine := newTestEngine(t, resolver)

	result := engine.Query(context.Background(), "describe the housing bosses", nil, false)
	if !strings.Contains(result.Response, "couldn't generate a proper response") {
		t.Errorf("expected short-response fallback, got %q", result.Response)
	}
}

func TestQueryNoMatches(t *testing.T) {
	resolver := &fakeResolver{text: "unused"}
	engine := newTestEngine(t, resolver)

	result := engine.Query(context.Background(), "zzzqqqxxyy", nil, false)
	if len(resolver.prompts) != 0 {
		t.Error("no retrieval hits should mean no model call")
	}
	if !strings.Contains(result.Response, "couldn't find anything") {
		t.Errorf("unexpected response: %q", result.Response)
	}
}

func TestShouldGenerateMindmap(t *testing.T) {
	positives := []string{
		"draw me a mind map of the assembly",
		"show the STRUCTURE of this part",
		"visualize the tolerance chain",
		"give me an overview",
	}
	for _, q := range positives {
		if !shouldGenerateMindmap(q) {
			t.Errorf("expected mindmap for %q", q)
		}
	}

	negatives := []string{
		"what is the bore diameter",
		"list the fasteners",
	}
	for _, q := range negatives {
		if shouldGenerateMindmap(q) {
			t.Errorf("did not expect mindmap for %q", q)
		}
	}
}

func TestCleanMermaidCode(t *testing.T) {
	if _, ok := cleanMermaidCode("no diagram here"); ok {
		t.Error("expected no mermaid code")
	}

	code, ok := cleanMermaidCode("intro\nMERMAID_START\nflowchart LR\nA --> B\nMERMAID_END\ntrailing")
	if !ok {
		t.Fatal("expected mermaid code")
	}
	if !strings.HasPrefix(code, "flowchart LR") {
		t.Errorf("flowchart prefix should be preserved, got %q", code)
	}

	if _, ok := cleanMermaidCode("MERMAID_START\n\nMERMAID_END"); ok {
		t.Error("empty block should not count as a diagram")
	}
}
