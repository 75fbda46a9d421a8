// Package main provides the mission CLI: start/next/answer/status
// operations against a mission run, plus discover/validate/serve-mcp
// utility subcommands.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	gmcp "github.com/ormasoftchile/missionctl/pkg/ecosystem/mcp"
	"github.com/ormasoftchile/missionctl/pkg/kernel/discovery"
	"github.com/ormasoftchile/missionctl/pkg/kernel/engine"
	"github.com/ormasoftchile/missionctl/pkg/kernel/prompt"
	kschema "github.com/ormasoftchile/missionctl/pkg/kernel/schema"
	"github.com/ormasoftchile/missionctl/pkg/kernel/validate"
)

var version = "dev"

func main() {
	loadDotEnv() // load .env file if present (gitignored)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads a .env file from the working directory and sets any
// variables not already set in the environment. Lines are KEY=VALUE.
// Comments (#) and blanks are skipped.
func loadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "mission",
	Short: "Deterministic mission execution engine",
	Long:  "mission — a pull-driven workflow runtime: a planner decides the next step, a caller reports results, and decisions required of a human stay out of the planner's way until answered.",
}

func projectDiscovery() discovery.Context {
	cwd, _ := os.Getwd()
	home, _ := os.UserHomeDir()
	return discovery.Context{ProjectDir: cwd, UserHome: home}
}

func defaultRunsRoot() string {
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, ".kittify", "runtime", "runs")
}

func newEngine() *engine.Engine {
	return engine.New(defaultRunsRoot(), projectDiscovery())
}

// --- start ---

var startInputs []string

var startCmd = &cobra.Command{
	Use:   "start <template-path-or-key>",
	Short: "Start a new mission run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	inputs := make(map[string]string)
	for _, kv := range startInputs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid --input %q: expected key=value", kv)
		}
		inputs[parts[0]] = parts[1]
	}

	policy := kschema.Policy{Strictness: kschema.StrictnessMedium}
	actor := kschema.Actor{ActorID: "cli", ActorType: kschema.ActorHuman}

	ref, err := newEngine().StartMissionRun(args[0], inputs, policy, actor)
	if err != nil {
		return err
	}
	fmt.Printf("Run ID: %s\n", ref.RunID)
	fmt.Printf("Mission: %s\n", ref.MissionKey)
	fmt.Printf("Run dir: %s\n", ref.RunDir)
	return nil
}

// --- next ---

var nextResult string

var nextCmd = &cobra.Command{
	Use:   "next <run-id>",
	Short: "Report the issued step's result and pull the next decision",
	Args:  cobra.ExactArgs(1),
	RunE:  runNext,
}

func runNext(cmd *cobra.Command, args []string) error {
	result := engine.Result(nextResult)
	decision, err := newEngine().NextStep(engine.RunRef{RunID: args[0]}, "cli", result, nil, nil)
	if err != nil {
		return err
	}
	out, err := prompt.RenderTerminal(decision)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// --- answer ---

var (
	answerQuestion    string
	answerValue       string
	answerInteractive bool
)

var answerCmd = &cobra.Command{
	Use:   "answer <run-id>",
	Short: "Answer a pending decision",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnswer,
}

func runAnswer(cmd *cobra.Command, args []string) error {
	runID := args[0]
	actor := kschema.Actor{ActorID: "cli", ActorType: kschema.ActorHuman}
	eng := newEngine()

	if answerInteractive {
		return runAnswerInteractive(eng, runID, actor)
	}
	if answerQuestion == "" || answerValue == "" {
		return fmt.Errorf("--question and --value are required (or use --interactive)")
	}
	if err := eng.ProvideDecisionAnswer(engine.RunRef{RunID: runID}, answerQuestion, answerValue, actor); err != nil {
		return err
	}
	fmt.Printf("Answer %q recorded for %q.\n", answerValue, answerQuestion)
	return nil
}

// runAnswerInteractive lets an operator answer pending decisions one at
// a time, re-reading the run's status after each pass over the pending
// decisions.
func runAnswerInteractive(eng *engine.Engine, runID string, actor kschema.Actor) error {
	rl, err := readline.New(fmt.Sprintf("mission[%s]> ", runID))
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	for {
		snap, err := eng.Status(engine.RunRef{RunID: runID})
		if err != nil {
			return err
		}
		if len(snap.Pending) == 0 {
			fmt.Println("No pending decisions. Call 'mission next' to advance.")
			return nil
		}
		for decisionID, pending := range snap.Pending {
			fmt.Printf("%s: %s\n", decisionID, pending.Question)
			if len(pending.Options) > 0 {
				fmt.Printf("  options: %s\n", strings.Join(pending.Options, ", "))
			}
			line, err := rl.Readline()
			if err != nil {
				if err == readline.ErrInterrupt || err == io.EOF {
					return nil
				}
				return err
			}
			answer := strings.TrimSpace(line)
			if answer == "" {
				continue
			}
			if err := eng.ProvideDecisionAnswer(engine.RunRef{RunID: runID}, decisionID, answer, actor); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
	}
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Print a run's current snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	snap, err := newEngine().Status(engine.RunRef{RunID: args[0]})
	if err != nil {
		return err
	}
	data, err := kschema.CanonicalJSONIndent(snap)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// --- discover ---

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List discoverable missions across all precedence tiers",
	RunE:  runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	missions, warnings := discovery.DiscoverWithWarnings(projectDiscovery())
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s: %s\n", w.PrecedenceTier, w.Path, w.Message)
	}
	if len(missions) == 0 {
		fmt.Println("No missions discovered.")
		return nil
	}
	for _, m := range missions {
		marker := " "
		if m.Selected {
			marker = "*"
		}
		fmt.Printf("%s %-24s %-16s %s\n", marker, m.Key, m.PrecedenceTier, m.Path)
	}
	return nil
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <template-path>",
	Short: "Run compatibility diagnostics against a mission template file",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	report := validate.ValidateFile(args[0])
	for _, w := range report.Warnings {
		fmt.Fprintf(os.Stderr, "  ⚠ %s\n", w)
	}
	for _, issue := range report.Issues {
		marker := "✗"
		if issue.Severity == validate.SeverityWarning {
			marker = "⚠"
		}
		fmt.Fprintf(os.Stderr, "  %s [%s] %s (%s)\n", marker, issue.Code, issue.Message, issue.Field)
	}
	if !report.IsCompatible {
		return fmt.Errorf("validation failed: %d issue(s)", len(report.Issues))
	}
	fmt.Printf("✓ %s is compatible\n", args[0])
	return nil
}

// --- serve-mcp ---

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Start the MCP server over stdio",
	RunE:  runServeMCP,
}

func runServeMCP(cmd *cobra.Command, args []string) error {
	s := gmcp.NewServer(version, defaultRunsRoot(), projectDiscovery())
	return server.ServeStdio(s)
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mission %s\n", version)
	},
}

func init() {
	startCmd.Flags().StringArrayVar(&startInputs, "input", nil, "Set an initial input binding (key=value), repeatable")

	nextCmd.Flags().StringVar(&nextResult, "result", "success", "Result of the previously issued step: success, failed, or blocked")

	answerCmd.Flags().StringVar(&answerQuestion, "question", "", "Decision id to answer")
	answerCmd.Flags().StringVar(&answerValue, "value", "", "Answer value")
	answerCmd.Flags().BoolVar(&answerInteractive, "interactive", false, "Answer pending decisions one at a time via a REPL")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serveMCPCmd)
	rootCmd.AddCommand(versionCmd)
}
