// Package raci derives and resolves responsible/accountable/consulted/
// informed actors for mission steps, per fixed deterministic inference
// rules when a step carries no explicit override.
package raci

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
)

// RoleBinding names a single RACI role occupant. Distinct from
// schema.RACIRoleBinding so this package can attach resolution-time
// helpers without importing schema's yaml/json tags into its own API.
type RoleBinding struct {
	ActorType schema.ActorType
	ActorID   string
}

func fromSchema(b schema.RACIRoleBinding) RoleBinding {
	return RoleBinding{ActorType: b.ActorType, ActorID: b.ActorID}
}

// ResolvedBinding is the fully resolved RACI assignment for one step.
type ResolvedBinding struct {
	StepID         string
	Responsible    RoleBinding
	Accountable    RoleBinding
	Consulted      []RoleBinding
	Informed       []RoleBinding
	Source         string // "explicit" | "inferred"
	InferredRule   string
	OverrideReason string
}

// Escalation is raised when a required role (responsible or accountable)
// cannot be bound to a concrete actor id.
type Escalation struct {
	RunID             string
	StepID            string
	UnresolvedRole    string
	ActorTypeExpected schema.ActorType
	Reason            string
	ResolutionHint    string
}

func (e *Escalation) Error() string {
	return fmt.Sprintf("RACI escalation for step %q: %s", e.StepID, e.Reason)
}

// Infer derives the default RACI bindings for a step with no explicit
// override, by fixed rule:
//
//	PromptStep                      -> responsible=llm,   accountable=human  (prompt_default)
//	AuditStep, enforcement=blocking -> responsible=human, accountable=human  (audit_blocking)
//	AuditStep, enforcement=advisory -> responsible=llm,   accountable=human  (audit_advisory)
func Infer(stepID string, isAudit bool, enforcement string) ResolvedBinding {
	if isAudit {
		if enforcement == schema.EnforcementBlocking {
			return ResolvedBinding{
				StepID:       stepID,
				Responsible:  RoleBinding{ActorType: schema.ActorHuman},
				Accountable:  RoleBinding{ActorType: schema.ActorHuman},
				Source:       "inferred",
				InferredRule: "audit_blocking",
			}
		}
		return ResolvedBinding{
			StepID:       stepID,
			Responsible:  RoleBinding{ActorType: schema.ActorLLM},
			Accountable:  RoleBinding{ActorType: schema.ActorHuman},
			Source:       "inferred",
			InferredRule: "audit_advisory",
		}
	}
	return ResolvedBinding{
		StepID:       stepID,
		Responsible:  RoleBinding{ActorType: schema.ActorLLM},
		Accountable:  RoleBinding{ActorType: schema.ActorHuman},
		Source:       "inferred",
		InferredRule: "prompt_default",
	}
}

// ValidateAssignment enforces the P0 invariants against an explicit
// RACIAssignment: accountable must be human, and for blocking audit
// steps responsible must also be human.
func ValidateAssignment(a schema.RACIAssignment, isAudit bool, enforcement string) []string {
	var errs []string
	if a.Accountable.ActorType != schema.ActorHuman {
		errs = append(errs, fmt.Sprintf("P0 invariant violation: accountable must be human, got %q", a.Accountable.ActorType))
	}
	if isAudit && enforcement == schema.EnforcementBlocking && a.Responsible.ActorType != schema.ActorHuman {
		errs = append(errs, fmt.Sprintf("blocking audit step: responsible must be human, got %q", a.Responsible.ActorType))
	}
	return errs
}

// actorInputKey maps an actor type to the input key its concrete id is
// looked up under.
func actorInputKey(t schema.ActorType) string {
	switch t {
	case schema.ActorHuman:
		return "mission_owner_id"
	case schema.ActorLLM:
		return "agent_id"
	case schema.ActorService:
		return "service_id"
	default:
		return string(t)
	}
}

func lookupActorID(t schema.ActorType, inputs map[string]string) (string, bool) {
	v, ok := inputs[actorInputKey(t)]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}

func resolveRequired(b RoleBinding, roleName, runID, stepID string, inputs map[string]string) (RoleBinding, error) {
	if b.ActorID != "" {
		return b, nil
	}
	id, ok := lookupActorID(b.ActorType, inputs)
	if !ok {
		key := actorInputKey(b.ActorType)
		return RoleBinding{}, &Escalation{
			RunID:             runID,
			StepID:            stepID,
			UnresolvedRole:    roleName,
			ActorTypeExpected: b.ActorType,
			Reason:            fmt.Sprintf("cannot resolve %s actor: %q not found in inputs", roleName, key),
			ResolutionHint:    fmt.Sprintf("provide %q in mission inputs", key),
		}
	}
	return RoleBinding{ActorType: b.ActorType, ActorID: id}, nil
}

func resolveOptional(b RoleBinding, inputs map[string]string) RoleBinding {
	if b.ActorID != "" {
		return b
	}
	if id, ok := lookupActorID(b.ActorType, inputs); ok {
		return RoleBinding{ActorType: b.ActorType, ActorID: id}
	}
	return b
}

// Resolve resolves a step's RACI binding to concrete actor ids.
//
// Resolution order: an explicit schema.RACIAssignment on the step wins
// (source="explicit"); otherwise the fixed inference rules apply
// (source="inferred"). Required roles (responsible, accountable) that
// cannot be bound raise an *Escalation; optional roles (consulted,
// informed) degrade silently, kept unresolved rather than failing the
// run.
func Resolve(runID, stepID string, explicit *schema.RACIAssignment, overrideReason string, isAudit bool, enforcement string, inputs map[string]string) (*ResolvedBinding, error) {
	if explicit != nil {
		if errs := ValidateAssignment(*explicit, isAudit, enforcement); len(errs) > 0 {
			return nil, fmt.Errorf("invalid explicit RACI for step %q: %s", stepID, strings.Join(errs, "; "))
		}
		responsible, err := resolveRequired(fromSchema(explicit.Responsible), "responsible", runID, stepID, inputs)
		if err != nil {
			return nil, err
		}
		accountable, err := resolveRequired(fromSchema(explicit.Accountable), "accountable", runID, stepID, inputs)
		if err != nil {
			return nil, err
		}
		consulted := make([]RoleBinding, len(explicit.Consulted))
		for i, c := range explicit.Consulted {
			consulted[i] = resolveOptional(fromSchema(c), inputs)
		}
		informed := make([]RoleBinding, len(explicit.Informed))
		for i, inf := range explicit.Informed {
			informed[i] = resolveOptional(fromSchema(inf), inputs)
		}
		return &ResolvedBinding{
			StepID:         stepID,
			Responsible:    responsible,
			Accountable:    accountable,
			Consulted:      consulted,
			Informed:       informed,
			Source:         "explicit",
			OverrideReason: overrideReason,
		}, nil
	}

	inferred := Infer(stepID, isAudit, enforcement)
	responsible, err := resolveRequired(inferred.Responsible, "responsible", runID, stepID, inputs)
	if err != nil {
		return nil, err
	}
	accountable, err := resolveRequired(inferred.Accountable, "accountable", runID, stepID, inputs)
	if err != nil {
		return nil, err
	}
	return &ResolvedBinding{
		StepID:       stepID,
		Responsible:  responsible,
		Accountable:  accountable,
		Source:       "inferred",
		InferredRule: inferred.InferredRule,
	}, nil
}
