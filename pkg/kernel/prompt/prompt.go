// Package prompt renders a NextDecision into a user-facing prompt: a
// short, self-contained message a human or LLM actor can act on
// directly. Step, decision-required and blocked prompts close with the
// expected next call; the terminal prompt has no closing call.
package prompt

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
)

// Format is one of the two supported rendering formats.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// Render renders decision in the requested format. An unsupported
// format is a caller error, since the two formats are a closed set.
func Render(decision *schema.NextDecision, format Format) (string, error) {
	switch format {
	case FormatJSON:
		data, err := schema.CanonicalJSONIndent(decision)
		if err != nil {
			return "", fmt.Errorf("rendering decision as json: %w", err)
		}
		return string(data), nil
	case FormatMarkdown, "":
		return RenderMarkdown(decision), nil
	default:
		return "", fmt.Errorf("unsupported prompt format %q", format)
	}
}

// RenderMarkdown renders decision as markdown, with layout depending on
// decision.Kind.
func RenderMarkdown(decision *schema.NextDecision) string {
	switch decision.Kind {
	case schema.KindStep:
		return renderStep(decision)
	case schema.KindDecisionRequired:
		return renderDecisionRequired(decision)
	case schema.KindBlocked:
		return renderBlocked(decision)
	default:
		return renderTerminal(decision)
	}
}

var termRenderer *glamour.TermRenderer

func init() {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(0))
	if err == nil {
		termRenderer = r
	}
}

// RenderTerminal renders decision as markdown and then passes it
// through glamour for ANSI-styled terminal display. Falls back to the
// unstyled markdown if glamour is unavailable.
func RenderTerminal(decision *schema.NextDecision) (string, error) {
	md := RenderMarkdown(decision)
	if termRenderer == nil {
		return md, nil
	}
	out, err := termRenderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("styling prompt for terminal: %w", err)
	}
	return strings.TrimRight(out, "\n"), nil
}

func renderStep(d *schema.NextDecision) string {
	title := d.StepTitle
	if title == "" {
		title = d.StepID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Next Step: %s\n\n", title)
	if d.Prompt != "" {
		b.WriteString(d.Prompt)
		b.WriteString("\n")
	}
	b.WriteString("\n## Context\n\n```json\n")
	ctxJSON, err := schema.CanonicalJSONIndent(d.Context)
	if err != nil || d.Context == nil {
		b.WriteString("{}")
	} else {
		b.Write(ctxJSON)
	}
	b.WriteString("\n```\n\nAfter completion, call `next_step` again.\n")
	return b.String()
}

func renderDecisionRequired(d *schema.NextDecision) string {
	var b strings.Builder
	b.WriteString("# Decision Required\n\n")
	question := d.Question
	if question == "" {
		question = "A mission decision is required before proceeding."
	}
	b.WriteString(question)
	b.WriteString("\n")
	if len(d.Options) > 0 {
		b.WriteString("\n## Options\n\n")
		for i, opt := range d.Options {
			fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
		}
	}
	b.WriteString("\nProvide an answer via `provide_decision_answer`, then call `next_step` again.\n")
	return b.String()
}

func renderBlocked(d *schema.NextDecision) string {
	reason := d.Reason
	if reason == "" {
		reason = "Mission is blocked."
	}
	return fmt.Sprintf("# Mission Blocked\n\n%s\n\nResolve the blocker, then call `next_step` again.\n", reason)
}

func renderTerminal(d *schema.NextDecision) string {
	reason := d.Reason
	if reason == "" {
		reason = "No runnable steps remain."
	}
	return fmt.Sprintf("# Mission Complete\n\n%s\n", reason)
}
