// Package schema defines the value objects of the mission runtime: mission
// templates, steps, audit configuration, significance blocks, policy and
// run snapshots, and the NextDecision variant. Construction enforces the
// invariants named in the runtime's design notes; nothing downstream
// re-validates what this package has already accepted.
package schema

import (
	"fmt"
	"sort"
)

// Mission carries the identifying metadata of a mission template.
type Mission struct {
	Key         string `yaml:"key"                   json:"key"`
	Name        string `yaml:"name"                  json:"name"`
	Version     string `yaml:"version"               json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// AuditConfig governs how an AuditStep is triggered and enforced.
type AuditConfig struct {
	TriggerMode string         `yaml:"trigger_mode"      json:"trigger_mode"`
	Enforcement string         `yaml:"enforcement"       json:"enforcement"`
	Label       string         `yaml:"label,omitempty"   json:"label,omitempty"`
	Metadata    map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

const (
	TriggerModeManual    = "manual"
	TriggerModePostMerge = "post_merge"
	TriggerModeBoth      = "both"

	EnforcementAdvisory = "advisory"
	EnforcementBlocking = "blocking"
)

var validTriggerModes = map[string]bool{
	TriggerModeManual:    true,
	TriggerModePostMerge: true,
	TriggerModeBoth:      true,
}

var validEnforcements = map[string]bool{
	EnforcementAdvisory: true,
	EnforcementBlocking: true,
}

// Validate checks AuditConfig against its fixed enumerations.
func (a AuditConfig) Validate() error {
	if !validTriggerModes[a.TriggerMode] {
		return fmt.Errorf("audit.trigger_mode %q is not one of manual|post_merge|both", a.TriggerMode)
	}
	if !validEnforcements[a.Enforcement] {
		return fmt.Errorf("audit.enforcement %q is not one of advisory|blocking", a.Enforcement)
	}
	return nil
}

// DimensionNames are the six fixed significance dimensions, v1.
var DimensionNames = []string{
	"user_customer_impact",
	"architectural_system_impact",
	"data_security_compliance_impact",
	"operational_reliability_impact",
	"financial_commercial_impact",
	"cross_team_blast_radius",
}

// HardTriggerClasses are the five fixed hard-trigger class ids, v1.
var HardTriggerClasses = []string{
	"production_data_destructive",
	"security_privacy_access_control",
	"legal_compliance_regulatory",
	"billing_financial_commitment",
	"architecture_foundation",
}

// SignificanceBlock is the optional significance declaration on an AuditStep.
type SignificanceBlock struct {
	Dimensions   map[string]int `yaml:"dimensions"              json:"dimensions"`
	HardTriggers []string       `yaml:"hard_triggers,omitempty" json:"hard_triggers,omitempty"`

	// RoutingExpression, when set, is a boolean expr-lang expression
	// evaluated against the composite score, band, and run inputs; a
	// true result escalates routing to hard_gate regardless of the
	// numeric band, letting a mission author force human review on a
	// condition the six fixed dimensions can't express (see
	// pkg/kernel/routeexpr).
	RoutingExpression string `yaml:"routing_expression,omitempty" json:"routing_expression,omitempty"`
}

// Validate checks that Dimensions contains exactly the six fixed names with
// scores in [0,3], and that HardTriggers are all known class ids.
func (s SignificanceBlock) Validate() error {
	if len(s.Dimensions) != len(DimensionNames) {
		return fmt.Errorf("significance.dimensions must contain exactly %d dimensions, got %d", len(DimensionNames), len(s.Dimensions))
	}
	for _, name := range DimensionNames {
		score, ok := s.Dimensions[name]
		if !ok {
			return fmt.Errorf("significance.dimensions missing required dimension %q", name)
		}
		if score < 0 || score > 3 {
			return fmt.Errorf("significance.dimensions[%q] = %d, must be 0..3", name, score)
		}
	}
	known := make(map[string]bool, len(HardTriggerClasses))
	for _, c := range HardTriggerClasses {
		known[c] = true
	}
	for _, t := range s.HardTriggers {
		if !known[t] {
			return fmt.Errorf("significance.hard_triggers references unknown class %q", t)
		}
	}
	return nil
}

// ActorType is the fixed set of actor kinds in a RACI binding.
type ActorType string

const (
	ActorHuman   ActorType = "human"
	ActorLLM     ActorType = "llm"
	ActorService ActorType = "service"
)

// RACIRoleBinding names a single RACI role occupant.
type RACIRoleBinding struct {
	ActorType ActorType `yaml:"actor_type"        json:"actor_type"`
	ActorID   string    `yaml:"actor_id,omitempty" json:"actor_id,omitempty"`
}

// RACIAssignment is an explicit, author-supplied RACI override.
type RACIAssignment struct {
	Responsible RACIRoleBinding   `yaml:"responsible"         json:"responsible"`
	Accountable RACIRoleBinding   `yaml:"accountable"         json:"accountable"`
	Consulted   []RACIRoleBinding `yaml:"consulted,omitempty" json:"consulted,omitempty"`
	Informed    []RACIRoleBinding `yaml:"informed,omitempty"  json:"informed,omitempty"`
}

// PromptStep is an agent-executed unit of work in a mission template.
type PromptStep struct {
	ID              string           `yaml:"id"                         json:"id"`
	Title           string           `yaml:"title"                      json:"title"`
	Description     string           `yaml:"description,omitempty"      json:"description,omitempty"`
	Prompt          string           `yaml:"prompt,omitempty"           json:"prompt,omitempty"`
	PromptTemplate  string           `yaml:"prompt_template,omitempty"  json:"prompt_template,omitempty"`
	ExpectedOutput  string           `yaml:"expected_output,omitempty"  json:"expected_output,omitempty"`
	RequiresInputs  []string         `yaml:"requires_inputs,omitempty" json:"requires_inputs,omitempty"`
	DependsOn       []string         `yaml:"depends_on,omitempty"      json:"depends_on,omitempty"`
	RACI            *RACIAssignment  `yaml:"raci,omitempty"            json:"raci,omitempty"`
	RACIOverrideWhy string           `yaml:"raci_override_reason,omitempty" json:"raci_override_reason,omitempty"`
}

// Kind reports this step's discriminator for the DAG/RACI layers.
func (PromptStep) Kind() string { return "prompt" }

// AuditStep is a gate checkpoint in a mission template.
type AuditStep struct {
	ID              string             `yaml:"id"                        json:"id"`
	Title           string             `yaml:"title"                     json:"title"`
	Description     string             `yaml:"description,omitempty"     json:"description,omitempty"`
	Audit           AuditConfig        `yaml:"audit"                     json:"audit"`
	Significance    *SignificanceBlock `yaml:"significance,omitempty"    json:"significance,omitempty"`
	DependsOn       []string           `yaml:"depends_on,omitempty"      json:"depends_on,omitempty"`
	RACI            *RACIAssignment    `yaml:"raci,omitempty"            json:"raci,omitempty"`
	RACIOverrideWhy string             `yaml:"raci_override_reason,omitempty" json:"raci_override_reason,omitempty"`
}

// Kind reports this step's discriminator for the DAG/RACI layers.
func (AuditStep) Kind() string { return "audit" }

// Step is the union accessor shared by PromptStep and AuditStep for
// DAG resolution, where only id/depends_on matter.
type Step interface {
	StepID() string
	Deps() []string
}

// StepID implements Step.
func (p PromptStep) StepID() string { return p.ID }

// Deps implements Step.
func (p PromptStep) Deps() []string { return p.DependsOn }

// StepID implements Step.
func (a AuditStep) StepID() string { return a.ID }

// Deps implements Step.
func (a AuditStep) Deps() []string { return a.DependsOn }

// Template is the immutable, loaded mission template: a DAG of prompt
// steps and audit checkpoints. Definition order of Steps and AuditSteps
// is significant and preserved exactly as loaded.
type Template struct {
	Mission    Mission      `yaml:"mission"                json:"mission"`
	Steps      []PromptStep `yaml:"steps,omitempty"       json:"steps,omitempty"`
	AuditSteps []AuditStep  `yaml:"audit_steps,omitempty" json:"audit_steps,omitempty"`
}

// Validate enforces the template-wide invariants: unique ids across
// steps ∪ audit_steps, depends_on resolving within that union, and the
// override-reason coupling invariant on every step.
func (t *Template) Validate() error {
	seen := make(map[string]bool)
	for _, s := range t.Steps {
		if s.ID == "" {
			return fmt.Errorf("step has empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
	}
	for _, s := range t.AuditSteps {
		if s.ID == "" {
			return fmt.Errorf("audit step has empty id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate step id %q", s.ID)
		}
		seen[s.ID] = true
	}
	for _, s := range t.Steps {
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("step %q depends_on unresolved id %q", s.ID, dep)
			}
		}
		if err := validateRACICoupling(s.ID, s.RACI, s.RACIOverrideWhy); err != nil {
			return err
		}
	}
	for _, s := range t.AuditSteps {
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("audit step %q depends_on unresolved id %q", s.ID, dep)
			}
		}
		if err := s.Audit.Validate(); err != nil {
			return fmt.Errorf("audit step %q: %w", s.ID, err)
		}
		if s.Significance != nil {
			if err := s.Significance.Validate(); err != nil {
				return fmt.Errorf("audit step %q: %w", s.ID, err)
			}
		}
		if err := validateRACICoupling(s.ID, s.RACI, s.RACIOverrideWhy); err != nil {
			return err
		}
	}
	return nil
}

func validateRACICoupling(stepID string, raci *RACIAssignment, reason string) error {
	if raci != nil && reason == "" {
		return fmt.Errorf("step %q has an explicit raci override but no raci_override_reason", stepID)
	}
	if raci == nil && reason != "" {
		return fmt.Errorf("step %q has raci_override_reason but no explicit raci override", stepID)
	}
	if raci != nil {
		if raci.Accountable.ActorType != ActorHuman {
			return fmt.Errorf("step %q: accountable must be human (P0 invariant), got %q", stepID, raci.Accountable.ActorType)
		}
	}
	return nil
}

// AllStepIDs returns every step id across Steps ∪ AuditSteps, in
// definition order (steps first, then audit_steps).
func (t *Template) AllStepIDs() []string {
	ids := make([]string, 0, len(t.Steps)+len(t.AuditSteps))
	for _, s := range t.Steps {
		ids = append(ids, s.ID)
	}
	for _, s := range t.AuditSteps {
		ids = append(ids, s.ID)
	}
	return ids
}

// SortedDimensionNames returns DimensionNames in lexicographic order,
// used wherever a significance result must serialize deterministically.
func SortedDimensionNames() []string {
	out := append([]string(nil), DimensionNames...)
	sort.Strings(out)
	return out
}

// Policy is the mission policy snapshot captured at run start.
type Policy struct {
	Strictness  string         `yaml:"strictness"        json:"strictness"`
	DefaultRoute string        `yaml:"default_route"     json:"default_route"`
	Extras      map[string]any `yaml:"extras,omitempty"  json:"extras,omitempty"`
}

const (
	StrictnessOff    = "off"
	StrictnessMedium = "medium"
	StrictnessMax    = "max"
)

// Validate checks Policy's fixed enumeration.
func (p Policy) Validate() error {
	switch p.Strictness {
	case StrictnessOff, StrictnessMedium, StrictnessMax:
	default:
		return fmt.Errorf("policy.strictness %q is not one of off|medium|max", p.Strictness)
	}
	return nil
}

// Actor identifies who performed an action recorded in an event or decision.
type Actor struct {
	ActorID   string    `yaml:"actor_id"   json:"actor_id"`
	ActorType ActorType `yaml:"actor_type" json:"actor_type"`
}
