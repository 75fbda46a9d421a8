// Package remediation gives context-resolution failures a structured,
// machine-actionable shape instead of a bare error string: an error
// code, the candidate bindings considered, and an exact hint for what
// the caller should do to unblock itself.
package remediation

import "fmt"

// Code is one of the three context-resolution failure classes.
type Code string

const (
	// CodeMissing means no source supplied a binding for the context at all.
	CodeMissing Code = "CONTEXT_MISSING"
	// CodeAmbiguous means more than one source supplied an equally valid binding.
	CodeAmbiguous Code = "CONTEXT_AMBIGUOUS"
	// CodeInvalid means every candidate binding failed validation.
	CodeInvalid Code = "CONTEXT_INVALID"
)

// Candidate is one binding a resolver considered for a context name.
type Candidate struct {
	Source string `json:"source"`
	Value  string `json:"value,omitempty"`
}

// Payload is a structured remediation response. The run engine builds
// one when a required RACI role of an audit step cannot be bound and
// records it in the run snapshot under "remediation:audit:<step_id>";
// the CLI and the MCP tools do not return it, and missing step inputs
// surface as DecisionRequired decisions instead.
type Payload struct {
	ErrorCode        Code              `json:"error_code"`
	ContextName      string            `json:"context_name"`
	Candidates       []Candidate       `json:"candidates,omitempty"`
	RemediationHint  string            `json:"remediation_hint"`
	ResolverMetadata map[string]string `json:"resolver_metadata,omitempty"`
}

func (p *Payload) Error() string {
	return fmt.Sprintf("%s: %s (%s)", p.ErrorCode, p.ContextName, p.RemediationHint)
}

// Missing builds a CONTEXT_MISSING payload: no resolver produced a
// binding for contextName at all.
func Missing(contextName string, resolverMetadata map[string]string) *Payload {
	return &Payload{
		ErrorCode:        CodeMissing,
		ContextName:      contextName,
		RemediationHint:  fmt.Sprintf("Resolve missing input: provide --input %s=<value> or add it to the run's inputs", contextName),
		ResolverMetadata: resolverMetadata,
	}
}

// Ambiguous builds a CONTEXT_AMBIGUOUS payload: more than one source
// produced an equally valid binding for contextName.
func Ambiguous(contextName string, candidates []Candidate, resolverMetadata map[string]string) *Payload {
	hint := fmt.Sprintf("Ambiguous input %q: specify which source to use", contextName)
	if len(candidates) > 0 {
		hint = "Select one: "
		for i, c := range candidates {
			if i > 0 {
				hint += " or "
			}
			hint += fmt.Sprintf("--input %s=<value from %s>", contextName, c.Source)
		}
	}
	return &Payload{
		ErrorCode:        CodeAmbiguous,
		ContextName:      contextName,
		Candidates:       candidates,
		RemediationHint:  hint,
		ResolverMetadata: resolverMetadata,
	}
}

// Invalid builds a CONTEXT_INVALID payload: every candidate binding for
// contextName failed validation.
func Invalid(contextName string, candidates []Candidate, validationFailures []string, resolverMetadata map[string]string) *Payload {
	hint := fmt.Sprintf("Input %q failed validation against its declared rules", contextName)
	if len(validationFailures) > 0 {
		hint = "Input value must pass validation: "
		for i, f := range validationFailures {
			if i > 0 {
				hint += "; "
			}
			hint += f
		}
	}
	return &Payload{
		ErrorCode:        CodeInvalid,
		ContextName:      contextName,
		Candidates:       candidates,
		RemediationHint:  hint,
		ResolverMetadata: resolverMetadata,
	}
}
