// Package gating turns a significance band into the planner's audit
// routing behavior: auto-proceed, soft gate, or hard gate, plus the
// ordered escalation targets a timeout should notify.
package gating

import (
	"github.com/ormasoftchile/missionctl/pkg/kernel/raci"
)

// Behavior is one of the three audit routing behaviors.
type Behavior string

const (
	BehaviorAutoProceed Behavior = "auto_proceed"
	BehaviorSoftGate    Behavior = "soft_gate"
	BehaviorHardGate    Behavior = "hard_gate"
)

var softGateOptions = []string{"decide_solo", "open_stand_up", "defer"}
var hardGateOptions = []string{"approve", "reject"}

// Decision is the routing outcome for a single audit checkpoint.
type Decision struct {
	Behavior Behavior
	Options  []string
}

// Route maps an effective significance band to its gate behavior and
// option set, per the fixed routing table: low → auto-proceed (no
// options), medium → soft gate, high → hard gate.
func Route(band string) Decision {
	switch band {
	case "low":
		return Decision{Behavior: BehaviorAutoProceed}
	case "medium":
		return Decision{Behavior: BehaviorSoftGate, Options: softGateOptions}
	default: // "high"
		return Decision{Behavior: BehaviorHardGate, Options: hardGateOptions}
	}
}

// EscalationTargets computes the ordered actors a timeout on this
// decision should notify: medium escalates to the accountable actor
// alone; high escalates to accountable followed by each consulted actor
// in declaration order.
func EscalationTargets(band string, binding raci.ResolvedBinding) []raci.RoleBinding {
	switch band {
	case "medium":
		return []raci.RoleBinding{binding.Accountable}
	case "high":
		targets := make([]raci.RoleBinding, 0, 1+len(binding.Consulted))
		targets = append(targets, binding.Accountable)
		targets = append(targets, binding.Consulted...)
		return targets
	default:
		return nil
	}
}

// MostRestrictive returns the more restrictive of two behaviors, ordered
// auto_proceed < soft_gate < hard_gate. Used when more than one
// significance source could apply to the same checkpoint (e.g. a
// routing_expression hard-gate override layered on top of a numeric band).
func MostRestrictive(a, b Decision) Decision {
	if severity(b.Behavior) > severity(a.Behavior) {
		return b
	}
	return a
}

func severity(b Behavior) int {
	switch b {
	case BehaviorAutoProceed:
		return 0
	case BehaviorSoftGate:
		return 1
	case BehaviorHardGate:
		return 2
	default:
		return -1
	}
}

// ValidSoftGateAnswer reports whether answer is a legal response to a
// soft-gate decision.
func ValidSoftGateAnswer(answer string) bool {
	for _, o := range softGateOptions {
		if o == answer {
			return true
		}
	}
	return false
}

// ValidHardGateAnswer reports whether answer is a legal response to a
// hard-gate decision.
func ValidHardGateAnswer(answer string) bool {
	for _, o := range hardGateOptions {
		if o == answer {
			return true
		}
	}
	return false
}
