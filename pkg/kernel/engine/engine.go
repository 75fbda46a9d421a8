package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ormasoftchile/missionctl/pkg/kernel/discovery"
	"github.com/ormasoftchile/missionctl/pkg/kernel/gating"
	"github.com/ormasoftchile/missionctl/pkg/kernel/planner"
	"github.com/ormasoftchile/missionctl/pkg/kernel/raci"
	"github.com/ormasoftchile/missionctl/pkg/kernel/remediation"
	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
	"github.com/ormasoftchile/missionctl/pkg/kernel/significance"
	"github.com/ormasoftchile/missionctl/pkg/kernel/trace"
)

// Result is the fixed set of outcomes a caller reports for the step it
// was issued.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailed  Result = "failed"
	ResultBlocked Result = "blocked"
)

// RunRef identifies a started mission run.
type RunRef struct {
	RunID      string `json:"run_id"`
	RunDir     string `json:"run_dir"`
	MissionKey string `json:"mission_key"`
}

// EscalatedActor names one actor notified by a timeout escalation.
type EscalatedActor struct {
	ActorType schema.ActorType `json:"actor_type"`
	ActorID   string           `json:"actor_id,omitempty"`
}

// TimeoutEscalationResult is returned by NotifyDecisionTimeout: the
// actors notified, in order.
type TimeoutEscalationResult struct {
	DecisionID  string           `json:"decision_id"`
	EscalatedTo []EscalatedActor `json:"escalated_to"`
}

// actorInputKey mirrors raci's own (unexported) actor-type lookup-key
// convention, so a remediation payload can name the exact missing input.
func actorInputKey(t schema.ActorType) string {
	switch t {
	case schema.ActorLLM:
		return "agent_id"
	case schema.ActorService:
		return "service_id"
	default:
		return "mission_owner_id"
	}
}

// asEscalation extracts a *raci.Escalation from err, if it is one.
func asEscalation(err error, target **raci.Escalation) bool {
	var esc *raci.Escalation
	if errors.As(err, &esc) {
		*target = esc
		return true
	}
	return false
}

func roleBindingMap(b raci.RoleBinding) map[string]any {
	return map[string]any{"actor_type": string(b.ActorType), "actor_id": b.ActorID}
}

// Engine owns the runs root directory and the discovery context used to
// resolve mission keys to template files.
type Engine struct {
	RunsRoot  string
	Discovery discovery.Context
}

// New constructs an Engine rooted at runsRoot.
func New(runsRoot string, disc discovery.Context) *Engine {
	return &Engine{RunsRoot: runsRoot, Discovery: disc}
}

func (e *Engine) runDirFor(ref RunRef) string {
	if ref.RunDir != "" {
		return ref.RunDir
	}
	return runDir(e.RunsRoot, ref.RunID)
}

// Status returns the current persisted snapshot for ref, for read-only
// inspection by `mission status` and the run-inspector TUI.
func (e *Engine) Status(ref RunRef) (*schema.Snapshot, error) {
	return readSnapshot(e.runDirFor(ref))
}

// StartMissionRun resolves templateKey via discovery, freezes the
// template, persists the initial snapshot, and emits MissionRunStarted.
func (e *Engine) StartMissionRun(templateKey string, inputs map[string]string, policy schema.Policy, actor schema.Actor) (RunRef, error) {
	tpl, resolvedPath, err := discovery.LoadTemplate(templateKey, e.Discovery)
	if err != nil {
		return RunRef{}, err
	}

	runID := uuid.NewString()
	dir, err := createRunDir(e.RunsRoot, runID)
	if err != nil {
		return RunRef{}, err
	}

	_, templateHash, err := freezeTemplate(dir, resolvedPath, tpl)
	if err != nil {
		return RunRef{}, err
	}

	snap := schema.NewSnapshot(runID, tpl.Mission.Key, resolvedPath, templateHash, policy)
	if inputs != nil {
		for k, v := range inputs {
			snap.Inputs[k] = v
		}
	}
	if err := writeSnapshot(dir, snap); err != nil {
		return RunRef{}, err
	}

	tw, err := trace.NewFileWriter(eventsPath(dir), runID)
	if err != nil {
		return RunRef{}, fmt.Errorf("opening event log: %w", err)
	}
	if err := tw.EmitMissionRunStarted(actor, tpl.Mission.Key, templateHash); err != nil {
		return RunRef{}, fmt.Errorf("emitting MissionRunStarted: %w", err)
	}

	return RunRef{RunID: runID, RunDir: dir, MissionKey: tpl.Mission.Key}, nil
}

// NextStep transitions the issued step (if any) per result, then computes
// and persists the next deterministic decision. When the live template
// no longer matches the frozen hash, the issued step is left untransitioned
// and the planner returns the drift Blocked decision.
func (e *Engine) NextStep(ref RunRef, agentID string, result Result, policyOverride *schema.Policy, actorContext map[string]any) (*schema.NextDecision, error) {
	dir := e.runDirFor(ref)
	snap, err := readSnapshot(dir)
	if err != nil {
		return nil, err
	}

	effectivePolicy := snap.PolicySnapshot
	if policyOverride != nil {
		effectivePolicy = *policyOverride
	}

	tpl, err := loadFrozenTemplate(dir)
	if err != nil {
		return nil, err
	}

	tw, err := trace.NewFileWriter(eventsPath(dir), snap.RunID)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	actor := schema.Actor{ActorID: agentID, ActorType: schema.ActorLLM}

	drifted := false
	if snap.TemplatePath != "" {
		if data, err := os.ReadFile(snap.TemplatePath); err == nil && planner.HashBytes(data) != snap.TemplateHash {
			drifted = true
		}
	}
	transitioned := snap.IssuedStepID != "" && !drifted
	completedAny := transitioned
	if transitioned {
		completedStep := snap.IssuedStepID
		switch result {
		case ResultSuccess:
			snap.MarkCompleted(completedStep)
		case ResultFailed:
			snap.BlockedReason = fmt.Sprintf("Previous step '%s' failed; manual intervention required.", completedStep)
		case ResultBlocked:
			snap.BlockedReason = fmt.Sprintf("Previous step '%s' reported blocked state.", completedStep)
		}
		snap.IssuedStepID = ""
		if err := tw.Emit(trace.EventNextStepAutoCompleted, actor, map[string]any{
			"step_id": completedStep,
			"result":  string(result),
		}); err != nil {
			return nil, fmt.Errorf("emitting NextStepAutoCompleted: %w", err)
		}
	}

	liveTemplatePath := ""
	if snap.TemplatePath != "" {
		if _, err := os.Stat(snap.TemplatePath); err == nil {
			liveTemplatePath = snap.TemplatePath
		}
	}

	res := planner.Plan(planner.Input{
		Snapshot:         snap,
		Template:         tpl,
		Policy:           effectivePolicy,
		ActorContext:     actorContext,
		LiveTemplatePath: liveTemplatePath,
	})

	for res.AutoProceedStepID != "" {
		completedAny = true
		snap.MarkCompleted(res.AutoProceedStepID)
		if res.AutoProceedScore != nil {
			if err := tw.EmitSignificanceEvaluated(actor, res.AutoProceedStepID, res.AutoProceedScore.Composite,
				res.AutoProceedScore.Band.Name, res.AutoProceedScore.EffectiveBand.Name, res.AutoProceedScore.HardTriggerClasses); err != nil {
				return nil, fmt.Errorf("emitting SignificanceEvaluated: %w", err)
			}
		}
		if err := tw.EmitNextStepAutoCompleted(actor, res.AutoProceedStepID, res.AutoProceedScore.EffectiveBand.Name); err != nil {
			return nil, fmt.Errorf("emitting NextStepAutoCompleted: %w", err)
		}
		res = planner.Plan(planner.Input{
			Snapshot:         snap,
			Template:         tpl,
			Policy:           effectivePolicy,
			ActorContext:     actorContext,
			LiveTemplatePath: liveTemplatePath,
		})
	}

	decision := res.Decision
	switch decision.Kind {
	case schema.KindStep:
		snap.IssuedStepID = decision.StepID
		if err := tw.EmitNextStepIssued(actor, decision.StepID); err != nil {
			return nil, fmt.Errorf("emitting NextStepIssued: %w", err)
		}
	case schema.KindDecisionRequired:
		if _, already := snap.Pending[decision.DecisionID]; !already {
			snap.Pending[decision.DecisionID] = schema.PendingDecision{
				DecisionID: decision.DecisionID,
				StepID:     decision.StepID,
				InputKey:   decision.InputKey,
				Question:   decision.Question,
				Options:    decision.Options,
				Reason:     decision.Reason,
			}
			if err := tw.EmitDecisionInputRequested(actor, decision.DecisionID, decision.StepID, decision.InputKey, decision.Question, decision.Options); err != nil {
				return nil, fmt.Errorf("emitting DecisionInputRequested: %w", err)
			}
			if strings.HasPrefix(decision.DecisionID, "audit:") {
				if err := recordAuditTrail(snap, tpl, decision.StepID, effectivePolicy); err != nil {
					return nil, err
				}
			}
		}
	case schema.KindTerminal:
		if completedAny {
			if err := tw.EmitMissionRunCompleted(actor); err != nil {
				return nil, fmt.Errorf("emitting MissionRunCompleted: %w", err)
			}
		}
	case schema.KindBlocked:
		// no event
	}

	if err := writeSnapshot(dir, snap); err != nil {
		return nil, err
	}
	return decision, nil
}

// recordAuditTrail resolves and persists the significance and RACI
// audit-trail entries a later timeout escalation requires to already
// exist, under decisions["significance:audit:<step_id>"] and
// decisions["raci:<step_id>"]. Best-effort: an unresolved RACI role is
// not fatal to issuing the decision itself, only to later escalating it.
func recordAuditTrail(snap *schema.Snapshot, tpl *schema.Template, stepID string, policy schema.Policy) error {
	var step *schema.AuditStep
	for i := range tpl.AuditSteps {
		if tpl.AuditSteps[i].ID == stepID {
			step = &tpl.AuditSteps[i]
			break
		}
	}
	if step == nil {
		return fmt.Errorf("audit step %q not found in frozen template", stepID)
	}

	decisionID := "audit:" + stepID
	if step.Significance != nil {
		cutoffs, _ := significance.ParseBandCutoffsFromPolicy(policy)
		if score, err := significance.Evaluate(step.Significance.Dimensions, step.Significance.HardTriggers, cutoffs); err == nil {
			snap.Decisions["significance:"+decisionID] = schema.DecisionRecord{
				Extra: map[string]any{
					"composite":      score.Composite,
					"band":           score.Band.Name,
					"effective_band": score.EffectiveBand.Name,
				},
			}
		}
	}

	binding, err := raci.Resolve(snap.RunID, stepID, step.RACI, step.RACIOverrideWhy, true, step.Audit.Enforcement, snap.Inputs)
	if err != nil {
		var esc *raci.Escalation
		if ok := asEscalation(err, &esc); ok {
			payload := remediation.Missing(actorInputKey(esc.ActorTypeExpected), map[string]string{
				"resolver": "raci", "run_id": snap.RunID, "step_id": stepID, "role": esc.UnresolvedRole,
			})
			snap.Decisions["remediation:"+decisionID] = schema.DecisionRecord{
				Extra: map[string]any{
					"error_code":       string(payload.ErrorCode),
					"context_name":     payload.ContextName,
					"remediation_hint": payload.RemediationHint,
				},
			}
		}
		return nil // unresolved RACI: recorded lazily, escalation will fail later if still unresolved
	}
	snap.Decisions["raci:"+stepID] = schema.DecisionRecord{
		Extra: map[string]any{
			"responsible": roleBindingMap(binding.Responsible),
			"accountable": roleBindingMap(binding.Accountable),
			"source":      binding.Source,
		},
	}
	return nil
}

// ProvideDecisionAnswer applies an operator's answer to a pending
// decision: audit hard/soft gate routing, or an input-keyed write.
func (e *Engine) ProvideDecisionAnswer(ref RunRef, decisionID, answer string, actor schema.Actor) error {
	dir := e.runDirFor(ref)
	snap, err := readSnapshot(dir)
	if err != nil {
		return err
	}

	pending, ok := snap.Pending[decisionID]
	if !ok {
		return &schema.RuntimeError{Message: fmt.Sprintf("no pending decision %q", decisionID)}
	}

	keepPending := false
	switch {
	case strings.HasPrefix(decisionID, "audit:"):
		stepID := pending.StepID
		switch {
		case gating.ValidHardGateAnswer(answer):
			if answer == "approve" {
				snap.MarkCompleted(stepID)
			} else {
				snap.BlockedReason = fmt.Sprintf("Audit '%s' rejected by %s", stepID, actor.ActorID)
			}
		case gating.ValidSoftGateAnswer(answer):
			if answer == "decide_solo" {
				snap.MarkCompleted(stepID)
			} else {
				keepPending = true
			}
		default:
			return &schema.RuntimeError{Message: fmt.Sprintf("answer %q is not valid for decision %q", answer, decisionID)}
		}
	case strings.HasPrefix(decisionID, "input:"):
		snap.Inputs[pending.InputKey] = answer
	default:
		return &schema.RuntimeError{Message: fmt.Sprintf("unrecognized decision id %q", decisionID)}
	}

	snap.Decisions[decisionID] = schema.DecisionRecord{Answer: answer, Actor: &actor}
	if !keepPending {
		delete(snap.Pending, decisionID)
	}

	tw, err := trace.NewFileWriter(eventsPath(dir), snap.RunID)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	if err := tw.EmitDecisionInputAnswered(actor, decisionID, answer); err != nil {
		return fmt.Errorf("emitting DecisionInputAnswered: %w", err)
	}

	return writeSnapshot(dir, snap)
}

// NotifyDecisionTimeout computes and records the escalation for a
// decision whose timeout has expired. Requires the significance and
// RACI audit-trail entries to have already been recorded when the
// decision was first issued.
func (e *Engine) NotifyDecisionTimeout(ref RunRef, decisionID string, actor schema.Actor) (*TimeoutEscalationResult, error) {
	dir := e.runDirFor(ref)
	snap, err := readSnapshot(dir)
	if err != nil {
		return nil, err
	}

	if !strings.HasPrefix(decisionID, "audit:") {
		return nil, &schema.RuntimeError{Message: fmt.Sprintf("decision %q does not support timeout escalation", decisionID)}
	}
	stepID := strings.TrimPrefix(decisionID, "audit:")

	sigEntry, hasSig := snap.Decisions["significance:"+decisionID]
	_, hasRACI := snap.Decisions["raci:"+stepID]
	if !hasSig || !hasRACI {
		return nil, &schema.RuntimeError{Message: fmt.Sprintf("decision %q missing prior significance/raci audit trail", decisionID)}
	}

	tpl, err := loadFrozenTemplate(dir)
	if err != nil {
		return nil, err
	}
	var step *schema.AuditStep
	for i := range tpl.AuditSteps {
		if tpl.AuditSteps[i].ID == stepID {
			step = &tpl.AuditSteps[i]
			break
		}
	}
	if step == nil {
		return nil, &schema.RuntimeError{Message: fmt.Sprintf("audit step %q not found in frozen template", stepID)}
	}

	binding, err := raci.Resolve(snap.RunID, stepID, step.RACI, step.RACIOverrideWhy, true, step.Audit.Enforcement, snap.Inputs)
	if err != nil {
		return nil, err
	}

	effectiveBand, _ := sigEntry.Extra["effective_band"].(string)
	targets := gating.EscalationTargets(effectiveBand, *binding)

	escalatedMaps := make([]map[string]any, 0, len(targets))
	escalatedNames := make([]string, 0, len(targets))
	escalated := make([]EscalatedActor, 0, len(targets))
	for _, t := range targets {
		escalatedMaps = append(escalatedMaps, roleBindingMap(t))
		escalatedNames = append(escalatedNames, string(t.ActorType)+":"+t.ActorID)
		escalated = append(escalated, EscalatedActor{ActorType: t.ActorType, ActorID: t.ActorID})
	}

	snap.Decisions["timeout:"+decisionID] = schema.DecisionRecord{
		Extra: map[string]any{"escalated_to": escalatedMaps},
	}

	tw, err := trace.NewFileWriter(eventsPath(dir), snap.RunID)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	if err := tw.EmitDecisionTimeoutExpired(actor, decisionID, escalatedNames); err != nil {
		return nil, fmt.Errorf("emitting DecisionTimeoutExpired: %w", err)
	}

	if err := writeSnapshot(dir, snap); err != nil {
		return nil, err
	}
	return &TimeoutEscalationResult{DecisionID: decisionID, EscalatedTo: escalated}, nil
}

func loadFrozenTemplate(dir string) (*schema.Template, error) {
	path := filepath.Join(dir, frozenTemplateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &schema.RuntimeError{Message: "reading frozen template: " + err.Error()}
	}
	tpl, err := schema.Load(strings.NewReader(string(data)), schema.DirNameFor(path))
	if err != nil {
		return nil, &schema.RuntimeError{Message: "parsing frozen template: " + err.Error()}
	}
	return tpl, nil
}
