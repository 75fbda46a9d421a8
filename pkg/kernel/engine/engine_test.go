package engine

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ormasoftchile/missionctl/pkg/kernel/discovery"
	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
)

func testPolicy() schema.Policy {
	return schema.Policy{Strictness: schema.StrictnessMedium, DefaultRoute: "default"}
}

func testActor() schema.Actor {
	return schema.Actor{ActorID: "agent-1", ActorType: schema.ActorLLM}
}

func writeTemplateFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "mission.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return New(t.TempDir(), discovery.Context{})
}

func readEventsFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading events file %s: %v", path, err)
	}
	return string(data)
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n
}

// Scenario 1: two plain steps advance S1 -> S2 -> Terminal.
func TestEngine_TwoStepsThenTerminal(t *testing.T) {
	e := newEngine(t)
	tplDir := t.TempDir()
	path := writeTemplateFile(t, tplDir, "key: twostep\nsteps:\n  - id: S1\n    title: first\n  - id: S2\n    title: second\n")

	ref, err := e.StartMissionRun(path, nil, testPolicy(), testActor())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	d, err := e.NextStep(ref, "agent-1", "", nil, nil)
	if err != nil {
		t.Fatalf("next_step 1: %v", err)
	}
	if d.Kind != schema.KindStep || d.StepID != "S1" {
		t.Fatalf("expected Step S1, got %+v", d)
	}

	d, err = e.NextStep(ref, "agent-1", ResultSuccess, nil, nil)
	if err != nil {
		t.Fatalf("next_step 2: %v", err)
	}
	if d.Kind != schema.KindStep || d.StepID != "S2" {
		t.Fatalf("expected Step S2, got %+v", d)
	}

	d, err = e.NextStep(ref, "agent-1", ResultSuccess, nil, nil)
	if err != nil {
		t.Fatalf("next_step 3: %v", err)
	}
	if d.Kind != schema.KindTerminal {
		t.Fatalf("expected Terminal, got %+v", d)
	}

	// Re-polling a terminal run emits zero additional events.
	before := countLines(t, eventsPath(ref.RunDir))
	for i := 0; i < 3; i++ {
		d, err = e.NextStep(ref, "agent-1", "", nil, nil)
		if err != nil {
			t.Fatalf("re-poll %d: %v", i, err)
		}
		if d.Kind != schema.KindTerminal {
			t.Fatalf("re-poll %d: expected Terminal, got %+v", i, d)
		}
	}
	after := countLines(t, eventsPath(ref.RunDir))
	if after != before {
		t.Fatalf("re-polling terminal run emitted events: before=%d after=%d", before, after)
	}
}

// Scenario 2: missing required input, then answered.
func TestEngine_MissingInputThenAnswered(t *testing.T) {
	e := newEngine(t)
	tplDir := t.TempDir()
	path := writeTemplateFile(t, tplDir, "key: withinput\nsteps:\n  - id: S1\n    title: needs framework\n    requires_inputs: [\"framework\"]\n")

	ref, err := e.StartMissionRun(path, nil, testPolicy(), testActor())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	d, err := e.NextStep(ref, "agent-1", "", nil, nil)
	if err != nil {
		t.Fatalf("next_step: %v", err)
	}
	if d.Kind != schema.KindDecisionRequired || d.DecisionID != "input:framework" || d.InputKey != "framework" {
		t.Fatalf("expected DecisionRequired input:framework, got %+v", d)
	}

	// Re-polling while pending returns the same decision and emits no
	// duplicate DecisionInputRequested.
	before := countLines(t, eventsPath(ref.RunDir))
	d2, err := e.NextStep(ref, "agent-1", "", nil, nil)
	if err != nil {
		t.Fatalf("re-poll pending: %v", err)
	}
	if d2.DecisionID != d.DecisionID {
		t.Fatalf("re-poll changed decision: %+v", d2)
	}
	after := countLines(t, eventsPath(ref.RunDir))
	if after != before {
		t.Fatalf("re-polling pending decision emitted events: before=%d after=%d", before, after)
	}

	if err := e.ProvideDecisionAnswer(ref, "input:framework", "React", schema.Actor{ActorID: "owner-1", ActorType: schema.ActorHuman}); err != nil {
		t.Fatalf("provide_decision_answer: %v", err)
	}

	d, err = e.NextStep(ref, "agent-1", "", nil, nil)
	if err != nil {
		t.Fatalf("next_step after answer: %v", err)
	}
	if d.Kind != schema.KindStep || d.StepID != "S1" {
		t.Fatalf("expected Step S1 after answer, got %+v", d)
	}
}

// Scenario 3: blocking audit step, no significance block, rejected.
func TestEngine_BlockingAuditRejected(t *testing.T) {
	e := newEngine(t)
	tplDir := t.TempDir()
	path := writeTemplateFile(t, tplDir, "key: auditreject\naudit_steps:\n  - id: a1\n    title: security review\n    audit:\n      trigger_mode: manual\n      enforcement: blocking\n")

	ref, err := e.StartMissionRun(path, nil, testPolicy(), testActor())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	d, err := e.NextStep(ref, "agent-1", "", nil, nil)
	if err != nil {
		t.Fatalf("next_step: %v", err)
	}
	if d.Kind != schema.KindDecisionRequired || d.DecisionID != "audit:a1" || d.InputKey != "" {
		t.Fatalf("expected DecisionRequired audit:a1 with no input_key, got %+v", d)
	}
	if len(d.Options) != 2 || d.Options[0] != "approve" || d.Options[1] != "reject" {
		t.Fatalf("expected approve/reject options, got %v", d.Options)
	}

	if err := e.ProvideDecisionAnswer(ref, "audit:a1", "reject", schema.Actor{ActorID: "security-lead", ActorType: schema.ActorHuman}); err != nil {
		t.Fatalf("provide_decision_answer: %v", err)
	}

	d, err = e.NextStep(ref, "agent-1", "", nil, nil)
	if err != nil {
		t.Fatalf("next_step after reject: %v", err)
	}
	if d.Kind != schema.KindBlocked {
		t.Fatalf("expected Blocked, got %+v", d)
	}
	if !strings.Contains(d.Reason, "a1") || !strings.Contains(d.Reason, "security-lead") {
		t.Fatalf("blocked reason should mention a1 and security-lead, got %q", d.Reason)
	}
}

// Scenario 4: significance routing at composite 12 (high) vs composite
// 6 (low, auto-proceeds) vs composite 6 + hard trigger (forced high).
func TestEngine_SignificanceRouting(t *testing.T) {
	highYAML := "key: sighigh\naudit_steps:\n  - id: a1\n    title: risky change\n    audit:\n      trigger_mode: manual\n      enforcement: advisory\n    significance:\n      dimensions:\n        user_customer_impact: 2\n        architectural_system_impact: 2\n        data_security_compliance_impact: 2\n        operational_reliability_impact: 2\n        financial_commercial_impact: 2\n        cross_team_blast_radius: 2\n"
	lowYAML := "key: siglow\naudit_steps:\n  - id: a1\n    title: minor change\n    audit:\n      trigger_mode: manual\n      enforcement: advisory\n    significance:\n      dimensions:\n        user_customer_impact: 1\n        architectural_system_impact: 1\n        data_security_compliance_impact: 1\n        operational_reliability_impact: 1\n        financial_commercial_impact: 1\n        cross_team_blast_radius: 1\n"
	hardYAML := "key: sighard\naudit_steps:\n  - id: a1\n    title: low score but destructive\n    audit:\n      trigger_mode: manual\n      enforcement: advisory\n    significance:\n      dimensions:\n        user_customer_impact: 1\n        architectural_system_impact: 1\n        data_security_compliance_impact: 1\n        operational_reliability_impact: 1\n        financial_commercial_impact: 1\n        cross_team_blast_radius: 1\n      hard_triggers: [\"production_data_destructive\"]\n"

	t.Run("composite12_hard_gate", func(t *testing.T) {
		e := newEngine(t)
		path := writeTemplateFile(t, t.TempDir(), highYAML)
		ref, err := e.StartMissionRun(path, nil, testPolicy(), testActor())
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		d, err := e.NextStep(ref, "agent-1", "", nil, nil)
		if err != nil {
			t.Fatalf("next_step: %v", err)
		}
		if d.Kind != schema.KindDecisionRequired || len(d.Options) != 2 || d.Options[0] != "approve" {
			t.Fatalf("expected hard gate approve/reject, got %+v", d)
		}
	})

	t.Run("composite6_auto_proceeds", func(t *testing.T) {
		e := newEngine(t)
		path := writeTemplateFile(t, t.TempDir(), lowYAML)
		ref, err := e.StartMissionRun(path, nil, testPolicy(), testActor())
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		d, err := e.NextStep(ref, "agent-1", "", nil, nil)
		if err != nil {
			t.Fatalf("next_step: %v", err)
		}
		if d.Kind != schema.KindTerminal {
			t.Fatalf("expected auto-proceed straight to Terminal, got %+v", d)
		}
		// A run that auto-proceeds straight to Terminal on its very first
		// NextStep call (no step was ever previously issued) must still
		// emit MissionRunCompleted exactly once.
		events := readEventsFile(t, eventsPath(ref.RunDir))
		if n := strings.Count(events, `"event_type":"MissionRunCompleted"`); n != 1 {
			t.Fatalf("expected exactly one MissionRunCompleted event, found %d in:\n%s", n, events)
		}

		// Re-polling the now-terminal run must not emit a second one.
		if _, err := e.NextStep(ref, "agent-1", "", nil, nil); err != nil {
			t.Fatalf("re-poll: %v", err)
		}
		events = readEventsFile(t, eventsPath(ref.RunDir))
		if n := strings.Count(events, `"event_type":"MissionRunCompleted"`); n != 1 {
			t.Fatalf("expected exactly one MissionRunCompleted event after re-poll, found %d in:\n%s", n, events)
		}
	})

	t.Run("composite6_hard_trigger_forces_high", func(t *testing.T) {
		e := newEngine(t)
		path := writeTemplateFile(t, t.TempDir(), hardYAML)
		ref, err := e.StartMissionRun(path, nil, testPolicy(), testActor())
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		d, err := e.NextStep(ref, "agent-1", "", nil, nil)
		if err != nil {
			t.Fatalf("next_step: %v", err)
		}
		if d.Kind != schema.KindDecisionRequired || len(d.Options) != 2 || d.Options[0] != "approve" {
			t.Fatalf("expected hard-trigger-forced hard gate, got %+v", d)
		}
	})
}

// Scenario 5: modifying the live template file mid-run produces Blocked
// without mutating completed_steps.
func TestEngine_TemplateDriftBlocksWithoutMutatingCompletedSteps(t *testing.T) {
	e := newEngine(t)
	tplDir := t.TempDir()
	path := writeTemplateFile(t, tplDir, "key: drifty\nsteps:\n  - id: S1\n    title: first\n  - id: S2\n    title: second\n")

	ref, err := e.StartMissionRun(path, nil, testPolicy(), testActor())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	d, err := e.NextStep(ref, "agent-1", "", nil, nil)
	if err != nil || d.Kind != schema.KindStep || d.StepID != "S1" {
		t.Fatalf("expected Step S1, got %+v err=%v", d, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("\n# appended after run start\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	d, err = e.NextStep(ref, "agent-1", ResultSuccess, nil, nil)
	if err != nil {
		t.Fatalf("next_step after drift: %v", err)
	}
	if d.Kind != schema.KindBlocked || !strings.Contains(d.Reason, "Migration required") {
		t.Fatalf("expected drift Blocked, got %+v", d)
	}

	snap, err := readSnapshot(ref.RunDir)
	if err != nil {
		t.Fatal(err)
	}
	if snap.IsCompleted("S1") {
		t.Fatalf("drift detection must not have marked S1 completed: %+v", snap.CompletedSteps)
	}
}

// Scenario 6: two identical runs driven to terminal produce pointwise
// equal decisions (run_id differs, so we normalize it before comparing).
func TestEngine_TwoIdenticalRunsDeterministic(t *testing.T) {
	tplDir := t.TempDir()
	path := writeTemplateFile(t, tplDir, "key: determinism\nsteps:\n  - id: S1\n    title: first\n  - id: S2\n    title: second\n")

	drive := func() []*schema.NextDecision {
		e := newEngine(t)
		ref, err := e.StartMissionRun(path, nil, testPolicy(), testActor())
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		var decisions []*schema.NextDecision
		result := Result("")
		for i := 0; i < 3; i++ {
			d, err := e.NextStep(ref, "agent-1", result, nil, nil)
			if err != nil {
				t.Fatalf("next_step: %v", err)
			}
			decisions = append(decisions, d)
			result = ResultSuccess
		}
		return decisions
	}

	a := drive()
	b := drive()
	if len(a) != len(b) {
		t.Fatalf("decision counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		da, db := *a[i], *b[i]
		da.RunID, db.RunID = "", ""
		ja, err := schema.CanonicalJSON(da)
		if err != nil {
			t.Fatal(err)
		}
		jb, err := schema.CanonicalJSON(db)
		if err != nil {
			t.Fatal(err)
		}
		if string(ja) != string(jb) {
			t.Fatalf("decision %d differs:\n%s\nvs\n%s", i, ja, jb)
		}
	}
}

// A mission with only audit steps and no regular steps must still advance.
func TestEngine_OnlyAuditStepsAdvances(t *testing.T) {
	e := newEngine(t)
	path := writeTemplateFile(t, t.TempDir(), "key: onlyaudits\naudit_steps:\n  - id: a1\n    title: first audit\n    audit:\n      trigger_mode: manual\n      enforcement: advisory\n  - id: a2\n    title: second audit\n    depends_on: [\"a1\"]\n    audit:\n      trigger_mode: manual\n      enforcement: advisory\n")

	ref, err := e.StartMissionRun(path, nil, testPolicy(), testActor())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	d, err := e.NextStep(ref, "agent-1", "", nil, nil)
	if err != nil || d.Kind != schema.KindStep || d.StepID != "a1" {
		t.Fatalf("expected Step a1, got %+v err=%v", d, err)
	}
	d, err = e.NextStep(ref, "agent-1", ResultSuccess, nil, nil)
	if err != nil || d.Kind != schema.KindStep || d.StepID != "a2" {
		t.Fatalf("expected Step a2, got %+v err=%v", d, err)
	}
	d, err = e.NextStep(ref, "agent-1", ResultSuccess, nil, nil)
	if err != nil || d.Kind != schema.KindTerminal {
		t.Fatalf("expected Terminal, got %+v err=%v", d, err)
	}
}

// notify_decision_timeout escalates a soft-gated (medium) audit decision
// to its resolved accountable actor, using the raci/significance audit
// trail recorded when the decision was first issued.
func TestEngine_NotifyDecisionTimeout_MediumEscalatesToAccountable(t *testing.T) {
	e := newEngine(t)
	mediumYAML := "key: sigmedium\naudit_steps:\n  - id: a1\n    title: moderate change\n    audit:\n      trigger_mode: manual\n      enforcement: advisory\n    significance:\n      dimensions:\n        user_customer_impact: 2\n        architectural_system_impact: 1\n        data_security_compliance_impact: 1\n        operational_reliability_impact: 1\n        financial_commercial_impact: 1\n        cross_team_blast_radius: 1\n"
	path := writeTemplateFile(t, t.TempDir(), mediumYAML)

	inputs := map[string]string{"mission_owner_id": "owner-42", "agent_id": "agent-1"}
	ref, err := e.StartMissionRun(path, inputs, testPolicy(), testActor())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	d, err := e.NextStep(ref, "agent-1", "", nil, nil)
	if err != nil {
		t.Fatalf("next_step: %v", err)
	}
	if d.Kind != schema.KindDecisionRequired || d.DecisionID != "audit:a1" {
		t.Fatalf("expected DecisionRequired audit:a1, got %+v", d)
	}
	if len(d.Options) != 3 || d.Options[0] != "decide_solo" {
		t.Fatalf("expected soft gate options, got %v", d.Options)
	}

	result, err := e.NotifyDecisionTimeout(ref, "audit:a1", schema.Actor{ActorID: "scheduler", ActorType: schema.ActorService})
	if err != nil {
		t.Fatalf("notify_decision_timeout: %v", err)
	}
	if len(result.EscalatedTo) != 1 || result.EscalatedTo[0].ActorID != "owner-42" || result.EscalatedTo[0].ActorType != schema.ActorHuman {
		t.Fatalf("expected escalation to human owner-42, got %+v", result.EscalatedTo)
	}

	snap, err := readSnapshot(ref.RunDir)
	if err != nil {
		t.Fatal(err)
	}
	if snap.BlockedReason != "" {
		t.Fatalf("timeout must not set blocked_reason, got %q", snap.BlockedReason)
	}
	if snap.IsCompleted("a1") {
		t.Fatal("timeout must not mark the step completed")
	}
	if _, ok := snap.Decisions["timeout:audit:a1"]; !ok {
		t.Fatal("expected timeout:audit:a1 recorded in decisions")
	}
}

func TestEngine_NotifyDecisionTimeout_MissingAuditTrailFails(t *testing.T) {
	e := newEngine(t)
	path := writeTemplateFile(t, t.TempDir(), "key: notimeout\nsteps:\n  - id: S1\n    title: one\n")
	ref, err := e.StartMissionRun(path, nil, testPolicy(), testActor())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.NotifyDecisionTimeout(ref, "audit:never-issued", testActor()); err == nil {
		t.Fatal("expected error for decision with no prior audit trail")
	}
}

func TestEngine_ProvideDecisionAnswer_UnknownDecisionID(t *testing.T) {
	e := newEngine(t)
	path := writeTemplateFile(t, t.TempDir(), "key: unknown\nsteps:\n  - id: S1\n    title: one\n")
	ref, err := e.StartMissionRun(path, nil, testPolicy(), testActor())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	err = e.ProvideDecisionAnswer(ref, "input:does-not-exist", "x", testActor())
	if err == nil {
		t.Fatal("expected error for unknown decision id")
	}
}
