// Package main provides the mission-mcp binary — an MCP server AI
// agents and operators use to drive mission runs over stdio.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/missionctl/pkg/ecosystem/mcp"
	"github.com/ormasoftchile/missionctl/pkg/kernel/discovery"
)

var version = "dev"

func main() {
	projectDir, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	userHome, _ := os.UserHomeDir()

	disc := discovery.Context{ProjectDir: projectDir, UserHome: userHome}
	runsRoot := filepath.Join(projectDir, ".kittify", "runtime", "runs")

	s := mcp.NewServer(version, runsRoot, disc)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
