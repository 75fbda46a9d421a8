package schema

import (
	"strings"
	"testing"
)

func TestLoad_FullMissionBlock(t *testing.T) {
	yamlSrc := `
mission:
  key: onboard
  name: Onboard Service
  version: "2.0.0"
steps:
  - id: s1
    title: Write plan
  - id: s2
    title: Implement
    depends_on: [s1]
audit_steps:
  - id: a1
    title: Security review
    audit:
      trigger_mode: manual
      enforcement: blocking
    depends_on: [s2]
`
	tmpl, err := Load(strings.NewReader(yamlSrc), "onboard-dir")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tmpl.Mission.Key != "onboard" {
		t.Errorf("mission.key = %q, want onboard", tmpl.Mission.Key)
	}
	if len(tmpl.Steps) != 2 || len(tmpl.AuditSteps) != 1 {
		t.Fatalf("steps=%d audit_steps=%d, want 2/1", len(tmpl.Steps), len(tmpl.AuditSteps))
	}
}

func TestLoad_ShorthandMissionBlock(t *testing.T) {
	yamlSrc := `
name: Quickstart
steps:
  - id: s1
    title: Do it
`
	tmpl, err := Load(strings.NewReader(yamlSrc), "quickstart")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tmpl.Mission.Key != "Quickstart" {
		t.Errorf("mission.key = %q, want Quickstart", tmpl.Mission.Key)
	}
	if tmpl.Mission.Version != "1.0.0" {
		t.Errorf("mission.version = %q, want 1.0.0", tmpl.Mission.Version)
	}
}

func TestLoad_ShorthandDefaultsToDirName(t *testing.T) {
	tmpl, err := Load(strings.NewReader("steps:\n  - id: s1\n    title: x\n"), "my-mission-dir")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tmpl.Mission.Key != "my-mission-dir" || tmpl.Mission.Name != "my-mission-dir" {
		t.Errorf("mission key/name = %q/%q, want my-mission-dir/my-mission-dir", tmpl.Mission.Key, tmpl.Mission.Name)
	}
}

func TestTemplate_Validate_DuplicateStepID(t *testing.T) {
	tmpl := &Template{
		Mission: Mission{Key: "k", Name: "n", Version: "1.0.0"},
		Steps: []PromptStep{
			{ID: "dup", Title: "one"},
		},
		AuditSteps: []AuditStep{
			{ID: "dup", Title: "two", Audit: AuditConfig{TriggerMode: TriggerModeManual, Enforcement: EnforcementAdvisory}},
		},
	}
	if err := tmpl.Validate(); err == nil {
		t.Fatal("expected duplicate id error, got nil")
	}
}

func TestTemplate_Validate_UnresolvedDependency(t *testing.T) {
	tmpl := &Template{
		Mission: Mission{Key: "k", Name: "n", Version: "1.0.0"},
		Steps: []PromptStep{
			{ID: "s1", Title: "one", DependsOn: []string{"ghost"}},
		},
	}
	if err := tmpl.Validate(); err == nil {
		t.Fatal("expected unresolved dependency error, got nil")
	}
}

func TestTemplate_Validate_RACIOverrideReasonCoupling(t *testing.T) {
	tmpl := &Template{
		Mission: Mission{Key: "k", Name: "n", Version: "1.0.0"},
		Steps: []PromptStep{
			{
				ID:    "s1",
				Title: "one",
				RACI: &RACIAssignment{
					Responsible: RACIRoleBinding{ActorType: ActorLLM},
					Accountable: RACIRoleBinding{ActorType: ActorHuman},
				},
			},
		},
	}
	if err := tmpl.Validate(); err == nil {
		t.Fatal("expected missing override reason error, got nil")
	}
}

func TestTemplate_Validate_AccountableMustBeHuman(t *testing.T) {
	tmpl := &Template{
		Mission: Mission{Key: "k", Name: "n", Version: "1.0.0"},
		Steps: []PromptStep{
			{
				ID:              "s1",
				Title:           "one",
				RACIOverrideWhy: "because",
				RACI: &RACIAssignment{
					Responsible: RACIRoleBinding{ActorType: ActorLLM},
					Accountable: RACIRoleBinding{ActorType: ActorLLM},
				},
			},
		},
	}
	if err := tmpl.Validate(); err == nil {
		t.Fatal("expected P0 invariant violation, got nil")
	}
}

func TestSignificanceBlock_Validate(t *testing.T) {
	full := map[string]int{}
	for _, d := range DimensionNames {
		full[d] = 1
	}
	sb := SignificanceBlock{Dimensions: full}
	if err := sb.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := SignificanceBlock{Dimensions: map[string]int{"user_customer_impact": 1}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected missing-dimension error, got nil")
	}
}

func TestCanonicalJSON_SortsKeys(t *testing.T) {
	v := map[string]any{"b": 1, "a": 2, "nested": map[string]any{"z": 1, "y": 2}}
	out, err := CanonicalJSON(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"a":2,"b":1,"nested":{"y":2,"z":1}}`
	if string(out) != want {
		t.Errorf("CanonicalJSON = %s, want %s", out, want)
	}
}
