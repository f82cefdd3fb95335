package analysis

import (
	"fmt"
	"strings"
)

// StageResult is one stage's accepted answer with its provenance.
type StageResult struct {
	Stage    string `json:"stage"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Provider string `json:"provider"` // Label of the provider/model that answered
}

// Result is the assembled five-stage analysis. Immutable after assembly.
// ProviderUsed is the provenance of the FIRST resolved stage and is never
// overwritten by later stages.
type Result struct {
	ModelID      string        `json:"model_id"`
	ModelUsed    string        `json:"model_used"`
	ProviderUsed string        `json:"provider_used"`
	Complete     bool          `json:"analysis_complete"`
	Stages       []StageResult `json:"stages"`
}

// Format renders the analysis as one block with a stable heading per stage,
// in pipeline order. No executive summary is appended; the five stages are
// the complete answer.
func (r *Result) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# CAD VISION ANALYSIS (%s via %s)\n", r.ModelUsed, r.providerNote())

	for _, st := range r.Stages {
		fmt.Fprintf(&b, "\n## %s\n%s\n", st.Title, st.Text)
	}

	b.WriteString("\n---\nAnalysis completed in 5 stages. For follow-up questions, reference the above stages.")
	return b.String()
}

func (r *Result) providerNote() string {
	if r.ProviderUsed == "" {
		return "unknown"
	}
	return r.ProviderUsed
}

// Unit is one flattened piece of the analysis handed to the index
// collaborator. The metadata is opaque to this package.
type Unit struct {
	Text     string
	Metadata map[string]string
}

// Units flattens the result into one unit per stage plus one summary unit,
// each tagged with {doc_id, stage_name, model_used}.
func (r *Result) Units(docID string) []Unit {
	units := make([]Unit, 0, len(r.Stages)+1)
	for _, st := range r.Stages {
		units = append(units, Unit{
			Text: st.Text,
			Metadata: map[string]string{
				"doc_id":     docID,
				"stage_name": st.Stage,
				"model_used": r.ModelUsed,
			},
		})
	}
	units = append(units, Unit{
		Text: r.Format(),
		Metadata: map[string]string{
			"doc_id":     docID,
			"stage_name": "summary",
			"model_used": r.ModelUsed,
		},
	})
	return units
}
