package analysis

import (
	"context"
	"fmt"

	"github.com/documind/cadalyst/internal/llm"
	. "github.com/documind/cadalyst/internal/logging"
)

// Resolver resolves one prompt through the fallback cascade.
// Satisfied by *llm.Orchestrator.
type Resolver interface {
	Resolve(ctx context.Context, modelID, prompt string, image []byte) (*llm.Resolution, error)
}

// Pipeline executes the fixed stage sequence against one resolved
// provider/model. Stages run strictly sequentially; the image is read once
// by the caller and reused for every stage.
type Pipeline struct {
	catalog  llm.Catalog
	resolver Resolver
}

// NewPipeline creates a pipeline over a catalogue and a resolver.
func NewPipeline(catalog llm.Catalog, resolver Resolver) *Pipeline {
	return &Pipeline{catalog: catalog, resolver: resolver}
}

// Analyze runs all stages for one drawing. Either every stage answers and
// a complete result is returned, or the whole analysis fails; partial
// stage text is never exposed.
func (p *Pipeline) Analyze(ctx context.Context, modelID string, image []byte) (*Result, error) {
	desc, err := p.catalog.Describe(modelID)
	if err != nil {
		return nil, err
	}

	// Capability gate before any network traffic
	if !desc.HasCapability(llm.CapabilityVision) {
		return nil, &llm.CapabilityError{ModelID: modelID, Capability: llm.CapabilityVision}
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("analysis requires an image payload")
	}

	stages := Stages()
	L_info("analysis: starting", "model", desc.Name, "stages", len(stages))

	var results []StageResult
	var providerUsed string

	for i, st := range stages {
		L_info("analysis: running stage", "stage", st.ID, "position", fmt.Sprintf("%d/%d", i+1, len(stages)))

		res, err := p.resolver.Resolve(ctx, modelID, st.Prompt, image)
		if err != nil {
			L_error("analysis: stage failed, discarding partial results", "stage", st.ID, "error", err)
			return nil, fmt.Errorf("%s: %w", st.ID, err)
		}

		results = append(results, StageResult{
			Stage:    st.ID,
			Title:    st.Title,
			Text:     res.Text,
			Provider: res.Provider,
		})

		// Provenance is pinned to the first resolved stage
		if providerUsed == "" {
			providerUsed = res.Provider
		}
	}

	L_info("analysis: complete", "model", desc.Name, "provider", providerUsed)

	return &Result{
		ModelID:      desc.ID,
		ModelUsed:    desc.Name,
		ProviderUsed: providerUsed,
		Complete:     true,
		Stages:       results,
	}, nil
}
