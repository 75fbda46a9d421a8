package schema

// DecisionRecord is a persisted answer or audit-trail entry keyed under
// Snapshot.Decisions. It is intentionally loose (map[string]any-shaped via
// json.RawMessage-free fields) because entries vary by prefix:
// "input:<key>" and "audit:<id>" records carry an answer value;
// "significance:<id>", "raci:<id>", "remediation:<id>", and "timeout:<id>"
// entries carry an audit trail that the engine never re-reads for planning.
type DecisionRecord struct {
	Answer    string         `json:"answer,omitempty"`
	Actor     *Actor         `json:"actor,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// PendingDecision is a request awaiting an operator answer.
type PendingDecision struct {
	DecisionID string   `json:"decision_id"`
	StepID     string   `json:"step_id,omitempty"`
	InputKey   string   `json:"input_key,omitempty"`
	Question   string   `json:"question"`
	Options    []string `json:"options,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Snapshot is the persisted state of a run (state.json).
type Snapshot struct {
	RunID          string                     `json:"run_id"`
	MissionKey     string                     `json:"mission_key"`
	TemplatePath   string                     `json:"template_path"`
	TemplateHash   string                     `json:"template_hash"`
	PolicySnapshot Policy                     `json:"policy_snapshot"`
	CompletedSteps []string                   `json:"completed_steps"`
	IssuedStepID   string                     `json:"issued_step_id,omitempty"`
	Inputs         map[string]string          `json:"inputs"`
	Decisions      map[string]DecisionRecord  `json:"decisions"`
	Pending        map[string]PendingDecision `json:"pending_decisions"`
	BlockedReason  string                     `json:"blocked_reason,omitempty"`
}

// NewSnapshot constructs the empty initial snapshot for a fresh run.
func NewSnapshot(runID, missionKey, templatePath, templateHash string, policy Policy) *Snapshot {
	return &Snapshot{
		RunID:          runID,
		MissionKey:     missionKey,
		TemplatePath:   templatePath,
		TemplateHash:   templateHash,
		PolicySnapshot: policy,
		CompletedSteps: []string{},
		Inputs:         map[string]string{},
		Decisions:      map[string]DecisionRecord{},
		Pending:        map[string]PendingDecision{},
	}
}

// IsCompleted reports whether stepID is already in CompletedSteps.
func (s *Snapshot) IsCompleted(stepID string) bool {
	for _, id := range s.CompletedSteps {
		if id == stepID {
			return true
		}
	}
	return false
}

// MarkCompleted appends stepID to CompletedSteps if not already present.
func (s *Snapshot) MarkCompleted(stepID string) {
	if !s.IsCompleted(stepID) {
		s.CompletedSteps = append(s.CompletedSteps, stepID)
	}
}

// DecisionKind enumerates the NextDecision variant tags.
type DecisionKind string

const (
	KindStep             DecisionKind = "step"
	KindDecisionRequired DecisionKind = "decision_required"
	KindBlocked          DecisionKind = "blocked"
	KindTerminal         DecisionKind = "terminal"
)

// StepContext bundles the information a Step decision carries alongside
// the prompt: the policy in effect, step metadata, and the opaque
// actor-supplied context map.
type StepContext struct {
	PolicySnapshot  Policy         `json:"policy_snapshot"`
	Description     string         `json:"description,omitempty"`
	ExpectedOutput  string         `json:"expected_output,omitempty"`
	ActorContext    map[string]any `json:"actor_context,omitempty"`
}

// NextDecision is the tagged variant the planner returns: exactly one of
// Step, DecisionRequired, Blocked, or Terminal is active per Kind.
type NextDecision struct {
	Kind       DecisionKind `json:"kind"`
	RunID      string       `json:"run_id"`
	MissionKey string       `json:"mission_key"`

	// Step
	StepID    string       `json:"step_id,omitempty"`
	StepTitle string       `json:"step_title,omitempty"`
	Prompt    string       `json:"prompt,omitempty"`
	Context   *StepContext `json:"context,omitempty"`

	// DecisionRequired
	DecisionID string   `json:"decision_id,omitempty"`
	InputKey   string   `json:"input_key,omitempty"`
	Question   string   `json:"question,omitempty"`
	Options    []string `json:"options,omitempty"`

	// Blocked / Terminal / DecisionRequired all may carry Reason
	Reason string `json:"reason,omitempty"`
}
