package schema

// RuntimeError is a run-state error: a missing frozen template, a
// snapshot parse failure, an unresolvable mission key, an unknown
// decision id, or a forbidden answer. These are expected, caller-facing
// failures, distinct from the template construction errors that
// Template.Validate and SignificanceBlock.Validate raise eagerly.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string { return e.Message }
