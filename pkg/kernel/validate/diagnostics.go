// Package validate implements the compatibility diagnostics checker: a
// pure validator over a mission template file that never raises and
// always returns a Report enumerating issues by explicit code.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	kschema "github.com/ormasoftchile/missionctl/pkg/kernel/schema"
)

// Severity is either "error" or "warning".
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes, fixed per the diagnostics contract.
const (
	CodeYAMLParseError        = "YAML_PARSE_ERROR"
	CodeMissingMissionMeta    = "MISSING_MISSION_META"
	CodeNoStepsDefined        = "NO_STEPS_DEFINED"
	CodeMissingStepFields     = "MISSING_STEP_FIELDS"
	CodeMissingAuditConfig    = "MISSING_AUDIT_CONFIG"
	CodeUnknownTriggerMode    = "UNKNOWN_TRIGGER_MODE"
	CodeUnknownEnforcement    = "UNKNOWN_ENFORCEMENT"
	CodeUnresolvedDependency  = "UNRESOLVED_DEPENDENCY"
	CodeDuplicateStepID       = "DUPLICATE_STEP_ID"
	CodeP0InvariantViolation  = "P0_INVARIANT_VIOLATION"
	CodeMissingOverrideReason = "MISSING_OVERRIDE_REASON"
	CodeInvalidRACIRole       = "INVALID_RACI_ROLE"
	CodeUnknownActorType      = "UNKNOWN_ACTOR_TYPE"
)

// templateSchemaBytes holds the JSON Schema reflected from schema.Template
// once at init; structuralCheck compiles it on each call and uses it as
// the structural phase of diagnostics: a
// shape check that runs ahead of (and independently from) the
// fine-grained field checks below.
var templateSchemaBytes []byte

func init() {
	b, err := json.Marshal(kschema.GenerateTemplateJSONSchema())
	if err == nil {
		templateSchemaBytes = b
	}
}

// structuralCheck runs the reflected JSON Schema against the parsed
// document. A schema violation is reported as a warning, not a typed
// issue: the fine-grained checks below already produce specific codes
// for the shapes this diagnostics contract cares about, so the schema
// pass exists to catch anything those miss.
func structuralCheck(doc map[string]any) (ok bool, warnings []string) {
	if templateSchemaBytes == nil {
		return true, nil
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("template.json", bytes.NewReader(templateSchemaBytes)); err != nil {
		return true, nil
	}
	sch, err := c.Compile("template.json")
	if err != nil {
		return true, nil
	}
	instanceBytes, err := json.Marshal(doc)
	if err != nil {
		return true, nil
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(instanceBytes))
	if err != nil {
		return true, nil
	}
	if err := sch.Validate(inst); err != nil {
		return false, []string{fmt.Sprintf("structural schema check: %s", err)}
	}
	return true, nil
}

var validTriggerModes = map[string]bool{"manual": true, "post_merge": true, "both": true}
var validEnforcements = map[string]bool{"advisory": true, "blocking": true}
var validActorTypes = map[string]bool{"human": true, "llm": true, "service": true}

// Issue is a single compatibility issue, with a dot-notation field
// reference (e.g. "audit_steps[2].audit.trigger_mode").
type Issue struct {
	Code     string   `json:"code"`
	Field    string   `json:"field"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Report is the full result of validating one template file.
type Report struct {
	Path            string   `json:"path"`
	IsCompatible    bool     `json:"is_compatible"`
	SchemaValid     bool     `json:"schema_valid"`
	AuditStepsValid bool     `json:"audit_steps_valid"`
	Issues          []Issue  `json:"issues"`
	Warnings        []string `json:"warnings"`
}

// ValidateFile reads path and runs compatibility diagnostics against it.
// Never returns a Go error: a read or parse failure becomes a
// YAML_PARSE_ERROR issue in the report.
func ValidateFile(path string) Report {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{
			Path:   path,
			Issues: []Issue{{Code: CodeYAMLParseError, Field: "<root>", Message: fmt.Sprintf("reading file: %s", err), Severity: SeverityError}},
		}
	}
	return ValidateBytes(data, path)
}

// ValidateBytes runs compatibility diagnostics against raw YAML bytes,
// reporting the issue's path as the supplied label.
func ValidateBytes(data []byte, path string) Report {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Report{
			Path:        path,
			SchemaValid: false,
			Issues:      []Issue{{Code: CodeYAMLParseError, Field: "<root>", Message: fmt.Sprintf("YAML parse failed: %s", err), Severity: SeverityError}},
		}
	}
	if doc == nil {
		return Report{
			Path:        path,
			SchemaValid: false,
			Issues:      []Issue{{Code: CodeYAMLParseError, Field: "<root>", Message: "YAML root must be a mapping", Severity: SeverityError}},
		}
	}

	var issues []Issue
	schemaValid, warnings := structuralCheck(doc)
	auditStepsValid := true

	if !hasMissionMeta(doc) {
		issues = append(issues, Issue{Code: CodeMissingMissionMeta, Field: "mission", Message: "mission block must have non-empty 'key', 'name', and 'version' fields", Severity: SeverityError})
		schemaValid = false
	}

	steps := asMapSlice(doc["steps"])
	auditSteps := asMapSlice(doc["audit_steps"])

	if len(steps) == 0 && len(auditSteps) == 0 {
		issues = append(issues, Issue{Code: CodeNoStepsDefined, Field: "steps", Message: "mission must define at least one step in 'steps' or 'audit_steps'", Severity: SeverityError})
		auditStepsValid = false
	}

	allKnownIDs := make(map[string]bool)
	for _, s := range steps {
		if id := stringField(s, "id"); id != "" {
			allKnownIDs[id] = true
		}
	}
	for _, s := range auditSteps {
		if id := stringField(s, "id"); id != "" {
			allKnownIDs[id] = true
		}
	}

	issues = append(issues, findDuplicateIDs(steps, auditSteps)...)

	for i, s := range steps {
		field := fmt.Sprintf("steps[%d]", i)
		if stringField(s, "id") == "" || stringField(s, "title") == "" {
			issues = append(issues, Issue{Code: CodeMissingStepFields, Field: field, Message: fmt.Sprintf("%s must have non-empty 'id' and 'title' fields", field), Severity: SeverityError})
		}
		issues = append(issues, checkDependsOn(s, field, allKnownIDs)...)
		issues = append(issues, checkRACI(s, field)...)
	}

	for i, s := range auditSteps {
		field := fmt.Sprintf("audit_steps[%d]", i)
		if stringField(s, "id") == "" || stringField(s, "title") == "" {
			issues = append(issues, Issue{Code: CodeMissingStepFields, Field: field, Message: fmt.Sprintf("%s must have non-empty 'id' and 'title' fields", field), Severity: SeverityError})
		}

		auditBlock, ok := s["audit"].(map[string]any)
		if !ok {
			issues = append(issues, Issue{Code: CodeMissingAuditConfig, Field: field + ".audit", Message: fmt.Sprintf("%s must have an 'audit' configuration block", field), Severity: SeverityError})
		} else {
			enforcement := stringField(auditBlock, "enforcement")
			triggerMode := stringField(auditBlock, "trigger_mode")
			if !validTriggerModes[triggerMode] {
				issues = append(issues, Issue{Code: CodeUnknownTriggerMode, Field: field + ".audit.trigger_mode",
					Message: fmt.Sprintf("%s.audit.trigger_mode %q is not valid; must be one of manual|post_merge|both", field, triggerMode), Severity: SeverityError})
			}
			if !validEnforcements[enforcement] {
				issues = append(issues, Issue{Code: CodeUnknownEnforcement, Field: field + ".audit.enforcement",
					Message: fmt.Sprintf("%s.audit.enforcement %q is not valid; must be one of advisory|blocking", field, enforcement), Severity: SeverityError})
			}
			issues = append(issues, checkRACIForAudit(s, field, enforcement)...)
		}

		issues = append(issues, checkDependsOn(s, field, allKnownIDs)...)
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Field != issues[j].Field {
			return issues[i].Field < issues[j].Field
		}
		return issues[i].Code < issues[j].Code
	})

	return Report{
		Path:            path,
		IsCompatible:    len(issues) == 0,
		SchemaValid:     schemaValid,
		AuditStepsValid: auditStepsValid,
		Issues:          issues,
		Warnings:        warnings,
	}
}

func hasMissionMeta(doc map[string]any) bool {
	mission, ok := doc["mission"].(map[string]any)
	if ok {
		return stringField(mission, "key") != "" && stringField(mission, "name") != "" && stringField(mission, "version") != ""
	}
	// shorthand form: key/name/version at top level.
	return stringField(doc, "key") != "" || stringField(doc, "name") != ""
}

func asMapSlice(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func findDuplicateIDs(steps, auditSteps []map[string]any) []Issue {
	seen := make(map[string]bool)
	dup := make(map[string]bool)
	for _, s := range append(append([]map[string]any{}, steps...), auditSteps...) {
		id := stringField(s, "id")
		if id == "" {
			continue
		}
		if seen[id] {
			dup[id] = true
		}
		seen[id] = true
	}
	ids := make([]string, 0, len(dup))
	for id := range dup {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	issues := make([]Issue, 0, len(ids))
	for _, id := range ids {
		issues = append(issues, Issue{Code: CodeDuplicateStepID, Field: "steps", Message: fmt.Sprintf("duplicate step id %q found across steps and audit_steps", id), Severity: SeverityError})
	}
	return issues
}

func checkDependsOn(s map[string]any, field string, knownIDs map[string]bool) []Issue {
	raw, ok := s["depends_on"]
	if !ok || raw == nil {
		return nil
	}
	deps, ok := raw.([]any)
	if !ok {
		return nil
	}
	var issues []Issue
	for _, dep := range deps {
		depStr := fmt.Sprint(dep)
		if !knownIDs[depStr] {
			issues = append(issues, Issue{Code: CodeUnresolvedDependency, Field: field + ".depends_on",
				Message: fmt.Sprintf("%s.depends_on references unknown id %q", field, depStr), Severity: SeverityError})
		}
	}
	return issues
}

// checkRACI validates a prompt step's optional raci block: the
// override-reason coupling invariant, known role shapes, known actor
// types, and the P0 invariant that accountable must be human.
func checkRACI(s map[string]any, field string) []Issue {
	return checkRACIForAudit(s, field, "")
}

// checkRACIForAudit additionally enforces that a blocking audit step's
// responsible role is human.
func checkRACIForAudit(s map[string]any, field, enforcement string) []Issue {
	raciBlock, hasRACI := s["raci"].(map[string]any)
	reason := stringField(s, "raci_override_reason")

	var issues []Issue
	if hasRACI && reason == "" {
		issues = append(issues, Issue{Code: CodeMissingOverrideReason, Field: field + ".raci_override_reason",
			Message: fmt.Sprintf("%s has an explicit raci override but no raci_override_reason", field), Severity: SeverityError})
	}
	if !hasRACI && reason != "" {
		issues = append(issues, Issue{Code: CodeMissingOverrideReason, Field: field + ".raci_override_reason",
			Message: fmt.Sprintf("%s has raci_override_reason but no explicit raci override", field), Severity: SeverityError})
	}
	if !hasRACI {
		return issues
	}

	responsible, hasResponsible := raciBlock["responsible"].(map[string]any)
	accountable, hasAccountable := raciBlock["accountable"].(map[string]any)
	if !hasResponsible || !hasAccountable {
		issues = append(issues, Issue{Code: CodeInvalidRACIRole, Field: field + ".raci",
			Message: fmt.Sprintf("%s.raci must declare both 'responsible' and 'accountable'", field), Severity: SeverityError})
		return issues
	}

	issues = append(issues, checkActorType(responsible, field+".raci.responsible")...)
	issues = append(issues, checkActorType(accountable, field+".raci.accountable")...)

	if stringField(accountable, "actor_type") != "human" {
		issues = append(issues, Issue{Code: CodeP0InvariantViolation, Field: field + ".raci.accountable.actor_type",
			Message: fmt.Sprintf("%s.raci.accountable must be human", field), Severity: SeverityError})
	}
	if enforcement == "blocking" && stringField(responsible, "actor_type") != "human" {
		issues = append(issues, Issue{Code: CodeP0InvariantViolation, Field: field + ".raci.responsible.actor_type",
			Message: fmt.Sprintf("%s.raci.responsible must be human for a blocking audit step", field), Severity: SeverityError})
	}

	for i, c := range asMapSlice(raciBlock["consulted"]) {
		issues = append(issues, checkActorType(c, fmt.Sprintf("%s.raci.consulted[%d]", field, i))...)
	}
	for i, inf := range asMapSlice(raciBlock["informed"]) {
		issues = append(issues, checkActorType(inf, fmt.Sprintf("%s.raci.informed[%d]", field, i))...)
	}

	return issues
}

func checkActorType(binding map[string]any, field string) []Issue {
	actorType := stringField(binding, "actor_type")
	if !validActorTypes[actorType] {
		return []Issue{{Code: CodeUnknownActorType, Field: field + ".actor_type",
			Message: fmt.Sprintf("%s.actor_type %q is not one of human|llm|service", field, actorType), Severity: SeverityError}}
	}
	return nil
}
