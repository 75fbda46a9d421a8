// Package planner implements the pure state-to-decision function at the
// center of the mission runtime: given a run snapshot, the frozen
// template, and the policy in effect, it decides the single next action
// a caller should take. Plan takes no handles to I/O beyond hashing an
// optionally-supplied live template path for drift detection.
package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"github.com/ormasoftchile/missionctl/pkg/kernel/gating"
	"github.com/ormasoftchile/missionctl/pkg/kernel/routeexpr"
	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
	"github.com/ormasoftchile/missionctl/pkg/kernel/significance"
)

// Input bundles everything Plan needs. LiveTemplatePath, when non-empty,
// is hashed and compared against Snapshot.TemplateHash to detect drift;
// Plan never reads the live file's contents otherwise.
type Input struct {
	Snapshot         *schema.Snapshot
	Template         *schema.Template
	Policy           schema.Policy
	ActorContext     map[string]any
	LiveTemplatePath string
}

// Result is Plan's output. When AutoProceedStepID is non-empty, the
// engine — not an external caller — must mark that step completed and
// invoke Plan again with the updated snapshot; Decision is never
// surfaced to a caller in that case. This keeps Plan itself a pure,
// side-effect-free function while letting a low-significance audit
// checkpoint complete itself without operator interaction, per the
// gate routing table.
type Result struct {
	Decision          *schema.NextDecision
	AutoProceedStepID string
	AutoProceedScore  *significance.Score
}

// Plan computes the next deterministic decision for a mission run. It is
// total: every reachable state produces a well-formed Result, never an
// error. Template-level errors are caught earlier, at load time, by
// schema.Template.Validate.
func Plan(in Input) Result {
	snap := in.Snapshot
	base := schema.NextDecision{RunID: snap.RunID, MissionKey: snap.MissionKey}

	// 1. Explicit block wins over everything.
	if snap.BlockedReason != "" {
		d := base
		d.Kind = schema.KindBlocked
		d.Reason = snap.BlockedReason
		return Result{Decision: &d}
	}

	// 2. Template drift detection.
	if in.LiveTemplatePath != "" {
		if hash, err := hashFile(in.LiveTemplatePath); err == nil && hash != snap.TemplateHash {
			d := base
			d.Kind = schema.KindBlocked
			d.Reason = "Template changed during active run. Migration required."
			return Result{Decision: &d}
		}
	}

	// 3. Pending decisions: lexicographically first id wins (deterministic
	// tie-break across peers).
	if len(snap.Pending) > 0 {
		ids := make([]string, 0, len(snap.Pending))
		for id := range snap.Pending {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		pending := snap.Pending[ids[0]]
		d := base
		d.Kind = schema.KindDecisionRequired
		d.DecisionID = pending.DecisionID
		d.Question = pending.Question
		d.Options = pending.Options
		d.Reason = pending.Reason
		d.StepID = pending.StepID
		if isInputDecisionID(pending.DecisionID) {
			d.InputKey = pending.InputKey
		}
		return Result{Decision: &d}
	}

	// 4. DAG resolution.
	eligible, anyUncompleted := resolveNextEligibleStep(in.Template, snap)
	if eligible == nil {
		d := base
		if anyUncompleted {
			d.Kind = schema.KindBlocked
			d.Reason = "No eligible steps: remaining steps have unmet dependencies."
		} else {
			d.Kind = schema.KindTerminal
			d.Reason = "All mission steps completed"
		}
		return Result{Decision: &d}
	}

	// 5a. Audit step routing.
	if audit, ok := eligible.(schema.AuditStep); ok {
		return planAuditStep(base, audit, in.Policy, snap.Inputs)
	}

	// 5b. Prompt step routing.
	prompt := eligible.(schema.PromptStep)
	return planPromptStep(base, prompt, in.Policy, in.ActorContext, snap)
}

func isInputDecisionID(decisionID string) bool {
	const prefix = "input:"
	return len(decisionID) > len(prefix) && decisionID[:len(prefix)] == prefix
}

// resolveNextEligibleStep walks template.Steps then template.AuditSteps
// in definition order, skipping completed/issued steps and steps with
// unmet dependencies, and returns the first eligible one. The second
// return value reports whether any step remains uncompleted at all
// (used to distinguish Blocked from Terminal when nothing is eligible).
func resolveNextEligibleStep(t *schema.Template, snap *schema.Snapshot) (any, bool) {
	anyUncompleted := false

	consider := func(id string, deps []string) bool {
		if snap.IsCompleted(id) || id == snap.IssuedStepID {
			return false
		}
		anyUncompleted = true
		for _, dep := range deps {
			if !snap.IsCompleted(dep) {
				return false
			}
		}
		return true
	}

	for _, s := range t.Steps {
		if consider(s.ID, s.DependsOn) {
			return s, true
		}
	}
	for _, s := range t.AuditSteps {
		if consider(s.ID, s.DependsOn) {
			return s, true
		}
	}
	return nil, anyUncompleted
}

func planAuditStep(base schema.NextDecision, step schema.AuditStep, policy schema.Policy, inputs map[string]string) Result {
	if step.Significance != nil {
		cutoffs, cutoffErr := significance.ParseBandCutoffsFromPolicy(policy)
		if cutoffErr == nil {
			score, err := significance.Evaluate(step.Significance.Dimensions, step.Significance.HardTriggers, cutoffs)
			if err == nil {
				route := gating.Route(score.EffectiveBand.Name)
				if force, forceErr := routeexpr.EvaluateForceHardGate(step.Significance.RoutingExpression, score, inputs, policy.Extras); forceErr == nil && force {
					route = gating.MostRestrictive(route, gating.Route("high"))
				}
				switch route.Behavior {
				case gating.BehaviorAutoProceed:
					return Result{AutoProceedStepID: step.ID, AutoProceedScore: score}
				case gating.BehaviorSoftGate, gating.BehaviorHardGate:
					d := base
					d.Kind = schema.KindDecisionRequired
					d.StepID = step.ID
					d.DecisionID = "audit:" + step.ID
					d.Options = route.Options
					d.Question = fmt.Sprintf("Audit '%s' (%s) requires a decision.", step.ID, step.Title)
					return Result{Decision: &d}
				}
			}
		}
	}

	// No significance block (or an unusable one): fall back to
	// enforcement alone, per the priority cascade's final audit rule.
	if step.Audit.Enforcement == schema.EnforcementBlocking {
		d := base
		d.Kind = schema.KindDecisionRequired
		d.StepID = step.ID
		d.DecisionID = "audit:" + step.ID
		d.Options = []string{"approve", "reject"}
		d.Question = fmt.Sprintf("Audit '%s' (%s) requires approval.", step.ID, step.Title)
		return Result{Decision: &d}
	}

	// advisory, no significance block: emit as a normal step.
	d := base
	d.Kind = schema.KindStep
	d.StepID = step.ID
	d.StepTitle = step.Title
	d.Prompt = fmt.Sprintf("Execute audit '%s': %s", step.ID, step.Title)
	d.Context = &schema.StepContext{PolicySnapshot: policy, Description: step.Description}
	return Result{Decision: &d}
}

func planPromptStep(base schema.NextDecision, step schema.PromptStep, policy schema.Policy, actorContext map[string]any, snap *schema.Snapshot) Result {
	for _, name := range step.RequiresInputs {
		if _, hasInput := snap.Inputs[name]; hasInput {
			continue
		}
		if _, hasDecision := snap.Decisions["input:"+name]; hasDecision {
			continue
		}
		d := base
		d.Kind = schema.KindDecisionRequired
		d.StepID = step.ID
		d.DecisionID = "input:" + name
		d.InputKey = name
		d.Question = fmt.Sprintf("Input required before step '%s': provide value for '%s'.", step.ID, name)
		d.Reason = "missing_required_input"
		return Result{Decision: &d}
	}

	d := base
	d.Kind = schema.KindStep
	d.StepID = step.ID
	d.StepTitle = step.Title
	prompt := step.Prompt
	if prompt == "" {
		prompt = fmt.Sprintf("Execute step '%s': %s", step.ID, step.Title)
	}
	d.Prompt = prompt
	d.Context = &schema.StepContext{
		PolicySnapshot: policy,
		Description:    step.Description,
		ExpectedOutput: step.ExpectedOutput,
		ActorContext:   actorContext,
	}
	return Result{Decision: &d}
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return HashBytes(data), nil
}

// HashBytes returns the hex SHA-256 of data, the same hash function used
// for TemplateHash and for drift detection.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
