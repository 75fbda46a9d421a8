// Package debugger implements the interactive REPL an operator drives a
// mission run through: stepping the planner forward, answering pending
// decisions, and inspecting the current decision without leaving the
// terminal.
package debugger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ormasoftchile/missionctl/pkg/kernel/engine"
	"github.com/ormasoftchile/missionctl/pkg/kernel/prompt"
	"github.com/ormasoftchile/missionctl/pkg/kernel/schema"
)

// Debugger drives one run of engine through its REPL.
type Debugger struct {
	engine  *engine.Engine
	ref     engine.RunRef
	actor   schema.Actor
	output  io.Writer
	rl      *readline.Instance
	current *schema.NextDecision
}

// New creates a debugger attached to an already-started run.
func New(eng *engine.Engine, ref engine.RunRef, actor schema.Actor) *Debugger {
	return &Debugger{engine: eng, ref: ref, actor: actor, output: os.Stdout}
}

// Run starts the interactive REPL loop. ctx is reserved for future
// cancellation of a blocking NextStep call; the engine's own operations
// are currently synchronous and local.
func (d *Debugger) Run(ctx context.Context) error {
	commands := []string{"next", "fail", "blocked", "answer", "show", "json", "history", "help", "quit"}

	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          d.buildPrompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	d.rl = rl
	defer rl.Close()

	fmt.Fprintf(d.output, "mission debugger — run %s\n", d.ref.RunID)
	fmt.Fprintf(d.output, "Type 'help' for available commands, 'next' to advance.\n\n")

	for {
		rl.SetPrompt(d.buildPrompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		cmd := parts[0]

		switch cmd {
		case "next", "n":
			d.handleAdvance(engine.ResultSuccess)
		case "fail":
			d.handleAdvance(engine.ResultFailed)
		case "blocked":
			d.handleAdvance(engine.ResultBlocked)
		case "answer", "a":
			d.handleAnswer(parts)
		case "show", "s":
			d.handleShow()
		case "json":
			d.handleJSON()
		case "history", "h":
			fmt.Fprintf(d.output, "  run dir: %s\n", d.ref.RunDir)
		case "help", "?":
			d.handleHelp()
		case "quit", "q":
			fmt.Fprintf(d.output, "Exiting debugger.\n")
			return nil
		default:
			fmt.Fprintf(d.output, "Unknown command: %q. Type 'help' for available commands.\n", cmd)
		}
	}
}

// buildPrompt renders mission[<state>]> from the last decision seen.
func (d *Debugger) buildPrompt() string {
	if d.current == nil {
		return "mission[new]> "
	}
	switch d.current.Kind {
	case schema.KindStep:
		return fmt.Sprintf("mission[step:%s]> ", d.current.StepID)
	case schema.KindDecisionRequired:
		return fmt.Sprintf("mission[decision:%s]> ", d.current.DecisionID)
	case schema.KindBlocked:
		return "mission[blocked]> "
	default:
		return "mission[done]> "
	}
}

func (d *Debugger) handleAdvance(result engine.Result) {
	decision, err := d.engine.NextStep(d.ref, d.actor.ActorID, result, nil, nil)
	if err != nil {
		fmt.Fprintf(d.output, "Error: %v\n", err)
		return
	}
	d.current = decision
	d.handleShow()
}

func (d *Debugger) handleAnswer(parts []string) {
	if len(parts) < 3 {
		fmt.Fprintf(d.output, "Usage: answer <decision_id> <answer>\n")
		return
	}
	decisionID := parts[1]
	answer := strings.Join(parts[2:], " ")
	if err := d.engine.ProvideDecisionAnswer(d.ref, decisionID, answer, d.actor); err != nil {
		fmt.Fprintf(d.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(d.output, "  Answer %q recorded for %q. Call 'next' to resume.\n", answer, decisionID)
}

func (d *Debugger) handleShow() {
	if d.current == nil {
		fmt.Fprintf(d.output, "No decision yet. Call 'next' to start.\n")
		return
	}
	out, err := prompt.RenderTerminal(d.current)
	if err != nil {
		fmt.Fprintf(d.output, "Error rendering decision: %v\n", err)
		return
	}
	fmt.Fprintln(d.output, out)
}

func (d *Debugger) handleJSON() {
	if d.current == nil {
		fmt.Fprintf(d.output, "No decision yet. Call 'next' to start.\n")
		return
	}
	out, err := prompt.Render(d.current, prompt.FormatJSON)
	if err != nil {
		fmt.Fprintf(d.output, "Error rendering decision: %v\n", err)
		return
	}
	fmt.Fprintln(d.output, out)
}

func (d *Debugger) handleHelp() {
	fmt.Fprintln(d.output, "Available commands:")
	fmt.Fprintln(d.output, "  next (n)              Advance as if the issued step succeeded")
	fmt.Fprintln(d.output, "  fail                  Advance as if the issued step failed")
	fmt.Fprintln(d.output, "  blocked               Advance as if the issued step reported blocked")
	fmt.Fprintln(d.output, "  answer <id> <value>   Provide an answer to a pending decision")
	fmt.Fprintln(d.output, "  show (s)              Render the current decision")
	fmt.Fprintln(d.output, "  json                  Print the current decision as canonical JSON")
	fmt.Fprintln(d.output, "  history (h)           Print the current run directory")
	fmt.Fprintln(d.output, "  help (?)              Show this help")
	fmt.Fprintln(d.output, "  quit (q)              Exit the debugger")
}
