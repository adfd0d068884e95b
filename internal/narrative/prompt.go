package narrative

import (
	"fmt"
	"strings"

	"github.com/movelytics/biorag/internal/llm"
	"github.com/movelytics/biorag/internal/retrieval"
)

// maxPromptSources bounds how many sources are inlined into the prompt;
// the rest still appear in the report's source list.
const maxPromptSources = 5

// deviationLabels give findings a readable clinical name in the prompt.
var deviationLabels = map[string]string{
	"knee_valgus":              "Knee Valgus (dynamic medial knee collapse)",
	"butt_wink":                "Butt Wink (posterior pelvic tilt under depth)",
	"forward_lean":             "Excessive Forward Trunk Lean",
	"heel_rise":                "Heel Rise",
	"asymmetric_loading":       "Asymmetric Loading",
	"excessive_spinal_flexion": "Excessive Spinal Flexion",
	"shoulder_impingement":     "Shoulder Impingement Pattern",
	"hip_shift":                "Lateral Hip Shift",
}

func deviationLabel(t string) string {
	if label, ok := deviationLabels[t]; ok {
		return label
	}
	return t
}

const systemPrompt = "You are a physical therapist specialized in sports biomechanics writing an assessment report."

// buildPrompt assembles the narrative prompt. The structure is fixed so
// downstream rendering can rely on the section headings; the wording
// shifts to general biomechanics when no retrieved context is available.
func buildPrompt(findings []Finding, context *retrieval.Context, exerciseID string) *llm.Prompt {
	hasContext := len(context.Sources) > 0

	var b strings.Builder

	b.WriteString("ANALYSIS DATA:\n")
	fmt.Fprintf(&b, "- Exercise: %s\n\n", exerciseID)

	b.WriteString("CRITICAL DEVIATIONS IDENTIFIED:\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "- %s (%s)", deviationLabel(f.Type), f.Severity)
		if f.Percentage > 0 {
			fmt.Fprintf(&b, ": %.0f%% of frames, mean value %.1f°", f.Percentage, f.AverageValue)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if hasContext {
		fmt.Fprintf(&b, "SCIENTIFIC CONTEXT (%d sources):\n", len(context.Sources))
		sources := context.Sources
		if len(sources) > maxPromptSources {
			sources = sources[:maxPromptSources]
		}
		for _, s := range sources {
			fmt.Fprintf(&b, "- %s (%s, %d): %s\n\n", s.Title, s.Authors, s.Year, s.Excerpt)
		}
	} else {
		b.WriteString("NOTE: analysis based on general biomechanics knowledge (no specific scientific context available).\n\n")
	}

	b.WriteString("TASK:\nWrite a professional report following EXACTLY this structure:\n\n")
	b.WriteString("## Executive Summary\n[3-4 line paragraph with the main findings]\n\n")
	b.WriteString("## Critical Biomechanical Deviations\n\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "### %s\n", deviationLabel(f.Type))
		b.WriteString("[Explanation of the deviation with scientific grounding]\n")
		if hasContext {
			b.WriteString("- Probable cause: [based on the literature]\n")
		} else {
			b.WriteString("- Probable cause: [based on general literature]\n")
		}
		b.WriteString("- Performance impact: [specific]\n")
		b.WriteString("- Injury risk: [scientific evidence]\n\n")
	}
	b.WriteString("## Pattern Analysis\n[Describe compensatory patterns and relations between deviations]\n\n")
	b.WriteString("## Evidence-Based Recommendations\n")
	for i := 1; i <= 3; i++ {
		if hasContext {
			fmt.Fprintf(&b, "%d. [Specific recommendation with scientific citation]\n", i)
		} else {
			fmt.Fprintf(&b, "%d. [Specific recommendation grounded in biomechanics]\n", i)
		}
	}
	b.WriteString("\n")

	b.WriteString("GUIDELINES:\n")
	b.WriteString("- Use technical but accessible language\n")
	if hasContext {
		b.WriteString("- Cite specific studies where relevant (Author, Year)\n")
	} else {
		b.WriteString("- Rely on established biomechanical principles\n")
		b.WriteString("- Do NOT fabricate citations or invent study references\n")
	}
	b.WriteString("- Be direct and objective\n")
	b.WriteString("- Avoid repetition\n")
	b.WriteString("- Maximum 500 words\n")
	b.WriteString("- Do NOT invent data that was not provided\n\n")
	b.WriteString("BEGIN THE REPORT:\n")

	return &llm.Prompt{
		System: systemPrompt,
		User:   b.String(),
	}
}
