// Package replay verifies the determinism guarantee at the heart of
// this runtime: the same template driven from the same sequence of
// caller results must produce the same sequence of decisions, byte for
// byte once the one genuinely varying field (run_id) is normalized
// away.
package replay

import (
	"fmt"

	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
)

// Normalize returns a copy of d with RunID replaced by a fixed
// placeholder; no other field is changed. This lets two decisions from independently-generated runs over the same
// template can be compared for structural equality.
func Normalize(d *schema.NextDecision) *schema.NextDecision {
	if d == nil {
		return nil
	}
	out := *d
	out.RunID = "NORMALIZED"
	return &out
}

// Divergence describes one point where two decision sequences disagree.
type Divergence struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Left    string `json:"left"`
	Right   string `json:"right"`
}

func (d Divergence) String() string {
	return fmt.Sprintf("decision[%d].%s: %q != %q", d.Index, d.Field, d.Left, d.Right)
}

// Compare walks two decision sequences produced by independently
// driving the same template and reports, after normalizing run ids,
// every divergence in sequence length and in the kind, step_id,
// decision_id, input_key, reason and options fields. Other fields
// (question, prompt, step_title, mission_key, context) are not
// compared. An empty result means the two sequences are
// replay-equivalent on the compared fields.
func Compare(left, right []*schema.NextDecision) []Divergence {
	var divergences []Divergence
	max := len(left)
	if len(right) > max {
		max = len(right)
	}
	for i := 0; i < max; i++ {
		if i >= len(left) {
			divergences = append(divergences, Divergence{Index: i, Field: "<presence>", Left: "<missing>", Right: "present"})
			continue
		}
		if i >= len(right) {
			divergences = append(divergences, Divergence{Index: i, Field: "<presence>", Left: "present", Right: "<missing>"})
			continue
		}
		a, b := Normalize(left[i]), Normalize(right[i])
		divergences = append(divergences, compareOne(i, a, b)...)
	}
	return divergences
}

func compareOne(i int, a, b *schema.NextDecision) []Divergence {
	var out []Divergence
	field := func(name string, x, y string) {
		if x != y {
			out = append(out, Divergence{Index: i, Field: name, Left: x, Right: y})
		}
	}
	field("kind", string(a.Kind), string(b.Kind))
	field("step_id", a.StepID, b.StepID)
	field("decision_id", a.DecisionID, b.DecisionID)
	field("input_key", a.InputKey, b.InputKey)
	field("reason", a.Reason, b.Reason)
	if len(a.Options) != len(b.Options) {
		out = append(out, Divergence{Index: i, Field: "options", Left: fmt.Sprint(a.Options), Right: fmt.Sprint(b.Options)})
	} else {
		for j := range a.Options {
			if a.Options[j] != b.Options[j] {
				out = append(out, Divergence{Index: i, Field: fmt.Sprintf("options[%d]", j), Left: a.Options[j], Right: b.Options[j]})
			}
		}
	}
	return out
}

// VerifyDeterministic runs fn (a closure that drives a fresh run over
// the same template to completion and returns its decision sequence)
// twice and reports any divergence between the two runs. A nil result
// is the pass case.
func VerifyDeterministic(fn func() ([]*schema.NextDecision, error)) ([]Divergence, error) {
	first, err := fn()
	if err != nil {
		return nil, fmt.Errorf("first run: %w", err)
	}
	second, err := fn()
	if err != nil {
		return nil, fmt.Errorf("second run: %w", err)
	}
	return Compare(first, second), nil
}
