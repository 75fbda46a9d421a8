package prompt

import (
	"strings"
	"testing"

	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
)

func TestRenderMarkdown_Step(t *testing.T) {
	d := &schema.NextDecision{Kind: schema.KindStep, StepID: "S1", StepTitle: "Draft spec", Prompt: "Write the draft."}
	out := RenderMarkdown(d)
	if !strings.Contains(out, "Draft spec") || !strings.Contains(out, "Write the draft.") || !strings.Contains(out, "next_step") {
		t.Fatalf("unexpected step render: %s", out)
	}
}

func TestRenderMarkdown_DecisionRequired(t *testing.T) {
	d := &schema.NextDecision{Kind: schema.KindDecisionRequired, Question: "Approve?", Options: []string{"approve", "reject"}}
	out := RenderMarkdown(d)
	if !strings.Contains(out, "Approve?") || !strings.Contains(out, "1. approve") || !strings.Contains(out, "2. reject") {
		t.Fatalf("unexpected decision_required render: %s", out)
	}
}

func TestRenderMarkdown_Blocked(t *testing.T) {
	d := &schema.NextDecision{Kind: schema.KindBlocked, Reason: "audit a1 rejected"}
	out := RenderMarkdown(d)
	if !strings.Contains(out, "Mission Blocked") || !strings.Contains(out, "audit a1 rejected") {
		t.Fatalf("unexpected blocked render: %s", out)
	}
}

func TestRenderMarkdown_Terminal(t *testing.T) {
	d := &schema.NextDecision{Kind: schema.KindTerminal, Reason: "All mission steps completed"}
	out := RenderMarkdown(d)
	if !strings.Contains(out, "Mission Complete") || !strings.Contains(out, "All mission steps completed") {
		t.Fatalf("unexpected terminal render: %s", out)
	}
}

func TestRender_JSONIsCanonical(t *testing.T) {
	d := &schema.NextDecision{Kind: schema.KindStep, StepID: "S1", RunID: "r1"}
	out, err := Render(d, FormatJSON)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"step_id"`) || !strings.Contains(out, `"kind"`) {
		t.Fatalf("expected canonical json fields, got %s", out)
	}
}

func TestRender_UnsupportedFormatErrors(t *testing.T) {
	d := &schema.NextDecision{Kind: schema.KindStep}
	if _, err := Render(d, "yaml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
