// Package mcp exposes the mission runtime's run-engine operations as
// MCP tools, so an LLM agent can drive a mission run (start it, pull
// its next decision, answer a pending one) and a human operator can
// validate templates and inspect schemas through the same stdio
// transport the agent uses.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/missionctl/pkg/kernel/discovery"
	"github.com/ormasoftchile/missionctl/pkg/kernel/engine"
)

// NewServer creates a new MCP server with mission tools registered,
// backed by an engine rooted at runsRoot and the given discovery context.
func NewServer(version, runsRoot string, disc discovery.Context) *server.MCPServer {
	h := &handlers{engine: engine.New(runsRoot, disc)}

	s := server.NewMCPServer(
		"missionctl",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("mission/start",
			mcp.WithDescription("Start a new mission run from a mission key or template path"),
			mcp.WithString("mission_key", mcp.Required(), mcp.Description("Mission key or path to resolve via discovery")),
			mcp.WithString("inputs", mcp.Description("Initial input bindings as a JSON object, e.g. {\"env\":\"staging\"}")),
			mcp.WithString("strictness", mcp.Description("Policy strictness: off, medium, or max")),
			mcp.WithString("actor_id", mcp.Description("Identity of the actor starting the run")),
		),
		h.HandleStart,
	)

	s.AddTool(
		mcp.NewTool("mission/next",
			mcp.WithDescription("Report the issued step's result and pull the next deterministic decision"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("Run id returned by mission/start")),
			mcp.WithString("agent_id", mcp.Description("Identity of the calling agent")),
			mcp.WithString("result", mcp.Description("Result of the previously issued step: success, failed, or blocked")),
		),
		h.HandleNext,
	)

	s.AddTool(
		mcp.NewTool("mission/answer",
			mcp.WithDescription("Provide an answer to a pending decision_required decision"),
			mcp.WithString("run_id", mcp.Required(), mcp.Description("Run id returned by mission/start")),
			mcp.WithString("decision_id", mcp.Required(), mcp.Description("Decision id from the last decision_required response")),
			mcp.WithString("answer", mcp.Required(), mcp.Description("The answer to record")),
			mcp.WithString("actor_id", mcp.Description("Identity of the answering actor")),
		),
		h.HandleAnswer,
	)

	s.AddTool(
		mcp.NewTool("mission/validate",
			mcp.WithDescription("Run compatibility diagnostics against a mission template file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the mission template YAML file")),
		),
		h.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("mission/schema",
			mcp.WithDescription("Export the mission runtime's JSON Schema"),
			mcp.WithString("type", mcp.Required(), mcp.Description("Schema type: template, policy, or snapshot")),
		),
		h.HandleSchema,
	)

	return s
}
