package index

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/documind/cadalyst/internal/llm"
	. "github.com/documind/cadalyst/internal/logging"
)

// Resolver answers a prompt through the model cascade.
// *llm.Orchestrator satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, modelID, prompt string, image []byte) (*llm.Resolution, error)
}

// Engine answers questions over indexed documents: retrieve matching
// chunks, stuff them into a prompt, and resolve through the cascade.
type Engine struct {
	store    *Store
	resolver Resolver
	modelID  string
	topK     int
}

// QueryResult is the answer to one question
type QueryResult struct {
	Response    string   `json:"response"`
	HasMindmap  bool     `json:"has_mindmap"`
	MermaidCode string   `json:"mermaid_code,omitempty"`
	Sources     []string `json:"sources"`
}

// NewEngine creates a query engine over the store
func NewEngine(store *Store, resolver Resolver, modelID string, topK int) *Engine {
	if topK <= 0 {
		topK = DefaultSearchOptions().MaxResults
	}
	return &Engine{store: store, resolver: resolver, modelID: modelID, topK: topK}
}

// mindmapKeywords mark questions that want a diagram answer
var mindmapKeywords = []string{
	"mind map", "mindmap", "diagram", "structure",
	"visualize", "visualization", "chart", "graph",
	"relationship", "overview", "summary diagram", "flow",
}

// shouldGenerateMindmap reports whether the question asks for a mind map
func shouldGenerateMindmap(query string) bool {
	queryLower := strings.ToLower(query)
	for _, keyword := range mindmapKeywords {
		if strings.Contains(queryLower, keyword) {
			return true
		}
	}
	return false
}

// Query retrieves context for the question and resolves an answer.
// Failures come back as a readable message in the result rather than an
// error, so callers always have something to show.
func (e *Engine) Query(ctx context.Context, question string, docIDs []string, wantMindmap bool) *QueryResult {
	L_info("index: querying", "question", truncateForLog(question, 60), "docIds", docIDs)

	opts := DefaultSearchOptions()
	opts.MaxResults = e.topK
	opts.DocIDs = docIDs

	hits, err := e.store.Search(ctx, question, opts)
	if err != nil {
		L_error("index: retrieval failed", "error", err)
		return friendlyError(err)
	}
	if len(hits) == 0 {
		return &QueryResult{
			Response: "I couldn't find anything in the indexed documents matching your question. Try rephrasing it or ingest the relevant document first.",
			Sources:  []string{},
		}
	}

	mindmap := wantMindmap || shouldGenerateMindmap(question)

	prompt := buildAnswerPrompt(question, hits, mindmap)

	res, err := e.resolver.Resolve(ctx, e.modelID, prompt, nil)
	if err != nil {
		L_error("index: query resolution failed", "error", err)
		return friendlyError(err)
	}

	responseText := res.Text
	mermaidCode, ok := cleanMermaidCode(responseText)
	if ok {
		responseText = strings.TrimSpace(strings.Split(responseText, "MERMAID_START")[0])
	}

	// A too-short answer is usually an upstream failure leaking through
	if len(responseText) < 20 && !ok {
		L_warn("index: response too short", "length", len(responseText))
		responseText = "I apologize, but I couldn't generate a proper response. This might be due to API quota limits or the query not matching the document content. Please try rephrasing your question."
	}

	L_info("index: query completed", "responseLength", len(responseText), "hasMindmap", ok, "provider", res.Provider)

	return &QueryResult{
		Response:    responseText,
		HasMindmap:  ok,
		MermaidCode: mermaidCode,
		Sources:     uniqueSources(hits),
	}
}

// buildAnswerPrompt stuffs retrieved chunks above the instruction
func buildAnswerPrompt(question string, hits []SearchResult, mindmap bool) string {
	var b strings.Builder
	b.WriteString("Context information is below.\n---------------------\n")
	for _, hit := range hits {
		b.WriteString(hit.Text)
		b.WriteString("\n\n")
	}
	b.WriteString("---------------------\n\n")

	if mindmap {
		fmt.Fprintf(&b, `Create a Mermaid.js mind map diagram about: %s

IMPORTANT FORMATTING RULES:
1. Use ONLY simple node labels without special characters
2. Use single quotes for labels, never double quotes
3. Keep labels short (max 4-5 words)
4. Use simple arrows: -->
5. Start with 'graph TD'

Format your response EXACTLY like this:

[2-3 sentence explanation]

MERMAID_START
graph TD
    A[Main Topic] --> B[Subtopic 1]
    A --> C[Subtopic 2]
    B --> D[Detail 1]
    C --> E[Detail 2]
MERMAID_END

Base the diagram ONLY on the provided context.`, question)
	} else {
		fmt.Fprintf(&b, `Based on the context provided, answer this question:

%s

Provide a clear, detailed answer using only the information in the context.`, question)
	}

	return b.String()
}

var mermaidFenceRe = regexp.MustCompile("```(?:mermaid)?\n?")

// cleanMermaidCode extracts and normalizes Mermaid code from a response
func cleanMermaidCode(text string) (string, bool) {
	if !strings.Contains(text, "MERMAID_START") || !strings.Contains(text, "MERMAID_END") {
		return "", false
	}

	parts := strings.SplitN(text, "MERMAID_START", 2)
	if len(parts) < 2 {
		return "", false
	}
	code := strings.SplitN(parts[1], "MERMAID_END", 2)[0]
	code = strings.TrimSpace(code)

	code = mermaidFenceRe.ReplaceAllString(code, "")
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}

	if !strings.HasPrefix(code, "graph") && !strings.HasPrefix(code, "flowchart") {
		code = "graph TD\n" + code
	}

	// Double quotes break Mermaid node labels
	code = strings.ReplaceAll(code, "\"", "'")

	return code, true
}

// uniqueSources returns deduplicated source labels in retrieval order
func uniqueSources(hits []SearchResult) []string {
	seen := make(map[string]bool)
	sources := []string{}
	for _, hit := range hits {
		if hit.Source == "" || seen[hit.Source] {
			continue
		}
		seen[hit.Source] = true
		sources = append(sources, hit.Source)
	}
	return sources
}

func friendlyError(err error) *QueryResult {
	return &QueryResult{
		Response: fmt.Sprintf("I encountered an error processing your query: %v. Please try again or rephrase your question.", err),
		Sources:  []string{},
	}
}
