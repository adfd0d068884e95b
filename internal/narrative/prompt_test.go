package narrative

import (
	"fmt"
	"strings"
	"testing"

	"github.com/movelytics/biorag/internal/retrieval"
)

func TestBuildPrompt_WithContext(t *testing.T) {
	findings := []Finding{
		{Type: "knee_valgus", Severity: SeverityModerate, Percentage: 45, AverageValue: 12.3},
		{Type: "butt_wink", Severity: SeveritySevere},
	}
	prompt := buildPrompt(findings, richContext(), "back-squat")

	if prompt.System == "" {
		t.Error("expected a system prompt")
	}
	user := prompt.User

	for _, want := range []string{
		"back-squat",
		"Knee Valgus",
		"45% of frames",
		"SCIENTIFIC CONTEXT (2 sources)",
		"Hip strength and valgus (Smith J, 2019)",
		"## Executive Summary",
		"## Critical Biomechanical Deviations",
		"## Pattern Analysis",
		"## Evidence-Based Recommendations",
		"Cite specific studies",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	// One section heading per critical deviation.
	if strings.Count(user, "### ") != 2 {
		t.Errorf("expected 2 deviation sections, got %d", strings.Count(user, "### "))
	}
}

func TestBuildPrompt_WithoutContext(t *testing.T) {
	empty := &retrieval.Context{Sources: []retrieval.Source{}}
	prompt := buildPrompt([]Finding{{Type: "heel_rise", Severity: SeverityModerate}}, empty, "deadlift")

	user := prompt.User
	if !strings.Contains(user, "general biomechanics knowledge") {
		t.Error("expected the no-context note")
	}
	if !strings.Contains(user, "Do NOT fabricate citations") {
		t.Error("expected the anti-fabrication instruction")
	}
	if strings.Contains(user, "SCIENTIFIC CONTEXT") {
		t.Error("no-context prompt must not claim sources")
	}
}

func TestBuildPrompt_CapsInlinedSources(t *testing.T) {
	ctx := &retrieval.Context{}
	for i := 0; i < 8; i++ {
		ctx.Sources = append(ctx.Sources, retrieval.Source{
			Title:   fmt.Sprintf("Study %d", i),
			Authors: "Author",
			Year:    2015 + i,
			Excerpt: "excerpt...",
		})
	}

	prompt := buildPrompt([]Finding{{Type: "knee_valgus", Severity: SeveritySevere}}, ctx, "back-squat")
	if !strings.Contains(prompt.User, "SCIENTIFIC CONTEXT (8 sources)") {
		t.Error("header should report the full source count")
	}
	if strings.Contains(prompt.User, "Study 5") {
		t.Error("only the top sources should be inlined")
	}
	if !strings.Contains(prompt.User, "Study 4") {
		t.Error("the fifth source should still be inlined")
	}
}

func TestDeviationLabel_Fallback(t *testing.T) {
	if got := deviationLabel("novel_fault"); got != "novel_fault" {
		t.Errorf("unknown deviation should pass through, got %q", got)
	}
	if got := deviationLabel("knee_valgus"); !strings.Contains(got, "Knee Valgus") {
		t.Errorf("unexpected label %q", got)
	}
}
