// Package routeexpr evaluates the optional boolean routing expression a
// mission author can attach to a significance block. It is the one
// place expr-lang/expr is used in this module, kept deliberately pure
// (no side effects, no host function registration) so the planner that
// calls it remains a total, side-effect-free function.
package routeexpr

import (
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/ormasoftchile/missionctl/pkg/kernel/significance"
)

// Env is the read-only evaluation environment an expression sees.
type Env struct {
	Composite  int            `expr:"composite"`
	Band       string         `expr:"band"`
	Dimensions map[string]int `expr:"dimensions"`
	Inputs     map[string]any `expr:"inputs"`
	Extras     map[string]any `expr:"extras"`
}

// buildEnv projects a significance.Score and run state into the
// expression environment.
func buildEnv(score *significance.Score, inputs map[string]string, extras map[string]any) Env {
	dims := make(map[string]int, len(score.Dimensions))
	for _, d := range score.Dimensions {
		dims[d.Name] = d.Score
	}
	in := make(map[string]any, len(inputs))
	for k, v := range inputs {
		in[k] = v
	}
	return Env{
		Composite:  score.Composite,
		Band:       score.Band.Name,
		Dimensions: dims,
		Inputs:     in,
		Extras:     extras,
	}
}

// EvaluateForceHardGate compiles and runs expression against the score,
// run inputs, and policy extras, and reports whether it evaluated to a
// truthy boolean. An empty expression always evaluates false (no
// override). A compile or type error is returned to the caller, who
// treats it the same as an absent expression — keeps band-only routing
// rather than failing the run.
func EvaluateForceHardGate(expression string, score *significance.Score, inputs map[string]string, extras map[string]any) (bool, error) {
	if expression == "" {
		return false, nil
	}
	env := buildEnv(score, inputs, extras)
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compiling routing_expression: %w", err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluating routing_expression: %w", err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("routing_expression must evaluate to a boolean, got %T", out)
	}
	return b, nil
}
