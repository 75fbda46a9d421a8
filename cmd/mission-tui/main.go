// Package main provides the mission-tui binary — a read-only Bubble Tea
// inspector over mission runs.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/missionctl/pkg/ecosystem/tui"
	"github.com/ormasoftchile/missionctl/pkg/kernel/discovery"
	"github.com/ormasoftchile/missionctl/pkg/kernel/engine"
)

func main() {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	userHome, _ := os.UserHomeDir()

	runsRoot := filepath.Join(cwd, ".kittify", "runtime", "runs")
	if len(os.Args) > 1 {
		runsRoot = os.Args[1]
	}

	eng := engine.New(runsRoot, discovery.Context{ProjectDir: cwd, UserHome: userHome})
	model := tui.NewModel(eng, runsRoot)

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
