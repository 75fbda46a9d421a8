package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/missionctl/pkg/kernel/engine"
	"github.com/ormasoftchile/missionctl/pkg/kernel/prompt"
	kschema "github.com/ormasoftchile/missionctl/pkg/kernel/schema"
	"github.com/ormasoftchile/missionctl/pkg/kernel/validate"
)

type handlers struct {
	engine *engine.Engine
}

func actorFrom(args map[string]any, key string) kschema.Actor {
	id, _ := args[key].(string)
	if id == "" {
		id = "mcp-client"
	}
	return kschema.Actor{ActorID: id, ActorType: kschema.ActorLLM}
}

// HandleStart implements the mission/start MCP tool.
func (h *handlers) HandleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	missionKey, _ := args["mission_key"].(string)
	if missionKey == "" {
		return errorResult("mission_key argument is required"), nil
	}

	inputs := make(map[string]string)
	if raw, _ := args["inputs"].(string); raw != "" {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return errorResult(fmt.Sprintf("inputs is not valid JSON: %v", err)), nil
		}
		for k, v := range decoded {
			inputs[k] = fmt.Sprint(v)
		}
	}

	strictness, _ := args["strictness"].(string)
	if strictness == "" {
		strictness = kschema.StrictnessMedium
	}
	policy := kschema.Policy{Strictness: strictness}
	if err := policy.Validate(); err != nil {
		return errorResult(err.Error()), nil
	}

	ref, err := h.engine.StartMissionRun(missionKey, inputs, policy, actorFrom(args, "actor_id"))
	if err != nil {
		return errorResult(err.Error()), nil
	}

	data, _ := json.MarshalIndent(ref, "", "  ")
	return textResult(string(data)), nil
}

// HandleNext implements the mission/next MCP tool.
func (h *handlers) HandleNext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	runID, _ := args["run_id"].(string)
	if runID == "" {
		return errorResult("run_id argument is required"), nil
	}
	agentID, _ := args["agent_id"].(string)
	if agentID == "" {
		agentID = "mcp-client"
	}

	result := engine.ResultSuccess
	if raw, _ := args["result"].(string); raw != "" {
		result = engine.Result(raw)
	}

	decision, err := h.engine.NextStep(engine.RunRef{RunID: runID}, agentID, result, nil, nil)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	text := prompt.RenderMarkdown(decision)
	isErr := decision.Kind == kschema.KindBlocked
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
		IsError: isErr,
	}, nil
}

// HandleAnswer implements the mission/answer MCP tool.
func (h *handlers) HandleAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	runID, _ := args["run_id"].(string)
	decisionID, _ := args["decision_id"].(string)
	answer, _ := args["answer"].(string)
	if runID == "" || decisionID == "" || answer == "" {
		return errorResult("run_id, decision_id, and answer arguments are required"), nil
	}

	actor := actorFrom(args, "actor_id")
	if err := h.engine.ProvideDecisionAnswer(engine.RunRef{RunID: runID}, decisionID, answer, actor); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("Answer %q recorded for %q. Call mission/next to resume.", answer, decisionID)), nil
}

// HandleValidate implements the mission/validate MCP tool.
func (h *handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	report := validate.ValidateFile(path)
	data, _ := json.MarshalIndent(report, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: !report.IsCompatible,
	}, nil
}

// HandleSchema implements the mission/schema MCP tool.
func (h *handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	schemaType, _ := args["type"].(string)

	var doc any
	switch schemaType {
	case "template":
		doc = kschema.GenerateTemplateJSONSchema()
	case "policy":
		doc = kschema.GeneratePolicyJSONSchema()
	case "snapshot":
		doc = kschema.GenerateSnapshotJSONSchema()
	default:
		return errorResult(fmt.Sprintf("unknown schema type %q — use 'template', 'policy', or 'snapshot'", schemaType)), nil
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(msg)},
		IsError: true,
	}
}
