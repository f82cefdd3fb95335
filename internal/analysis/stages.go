// Package analysis runs the fixed five-stage drawing analysis pipeline
// and assembles the structured result.
package analysis

// Stage is one fixed, non-overlapping analysis instruction.
type Stage struct {
	ID     string // Stable identifier used as the stage key in results
	Title  string // Heading used in the formatted rendering
	Prompt string // Instruction sent to the provider
}

// Stages returns the pipeline's declared stage sequence. The order is part
// of the contract: results carry exactly one entry per stage, in this order.
func Stages() []Stage {
	return pipelineStages
}

var pipelineStages = []Stage{
	{
		ID:    "stage_1_identification",
		Title: "STAGE 1 — DOCUMENT IDENTIFICATION",
		Prompt: `STAGE 1 — DOCUMENT IDENTIFICATION

Analyze this CAD drawing and provide ONLY these 4 items (5-6 bullets MAX):
1. Drawing type (e.g., Block Diagram, Wiring Diagram, Floor Plan, Schematic)
2. Discipline (e.g., CCTV, Electrical, Telecom, Mechanical, Architectural)
3. 2D or 3D representation
4. Diagram intent (logical / physical / schematic / installation)

FORMAT: Use bullet points. Be concise. No explanations.`,
	},
	{
		ID:    "stage_2_system_overview",
		Title: "STAGE 2 — SYSTEM OVERVIEW",
		Prompt: `STAGE 2 — SYSTEM OVERVIEW

Analyze the systems and connections. Provide ONLY:
1. What systems are present (list major systems only)
2. How they are logically connected (high-level flow)
3. Data/signal flow direction (if applicable)
4. Central nodes or hubs (if any)

FORMAT: Short paragraphs or bullets. NO repetition of Stage 1 info.`,
	},
	{
		ID:    "stage_3_components",
		Title: "STAGE 3 — COMPONENT BREAKDOWN",
		Prompt: `STAGE 3 — COMPONENT BREAKDOWN

List major components GROUPED BY SYSTEM. Do NOT:
- List every single component exhaustively
- Invent specifications not visible in the drawing
- Repeat information from previous stages

FORMAT: Grouped bullets only. Example:
- System A: Component 1, Component 2
- System B: Component 3, Component 4`,
	},
	{
		ID:    "stage_4_technical",
		Title: "STAGE 4 — TECHNICAL CHARACTERISTICS",
		Prompt: `STAGE 4 — TECHNICAL CHARACTERISTICS

Provide ONLY these technical facts (declarative statements):
1. Complexity level (Low / Moderate / High) - based on density and interconnections
2. Scale indication (To-scale / Not-to-scale / Unknown)
3. Dimensions present? (Yes/No - do NOT invent values)
4. Tolerances present? (Yes/No)
5. Standards referenced? (Yes/No - if yes, which ones are VISIBLE)
6. Diagram type implications (e.g., "Logical diagram - not for installation")

If data is NOT present, state "Not present in drawing" ONCE.`,
	},
	{
		ID:    "stage_5_quality",
		Title: "STAGE 5 — QUALITY & USABILITY ASSESSMENT",
		Prompt: `STAGE 5 — QUALITY & USABILITY ASSESSMENT

Assess practical usability:
1. Readability (Good / Fair / Poor - based on clarity, legibility)
2. Layout efficiency (Logical flow / Cluttered / Well-organized)
3. Information density (Appropriate / Too dense / Too sparse)
4. Practical usability for engineering tasks

Then provide:
- 2-3 CONCRETE issues (specific problems)
- 2-3 ACTIONABLE recommendations (specific improvements)

NO vague statements. Be specific.`,
	},
}
