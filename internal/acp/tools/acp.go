package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kandev/acpd/internal/acp"
)

const acpErrorType = "acp_error"

// All builds the ACP tool set sharing a single session manager.
func All(manager *acp.Manager) []Tool {
	return []Tool{
		&NewSessionTool{manager: manager},
		&PromptTool{manager: manager},
		&EndSessionTool{manager: manager},
		&ListSessionsTool{manager: manager},
	}
}

func missingParam(name string) Result {
	return Errorf(fmt.Sprintf("Missing required parameter: %s", name))
}

// NewSessionTool spawns an agent and registers a session.
type NewSessionTool struct {
	manager *acp.Manager
}

func (t *NewSessionTool) Name() string { return "acp_new_session" }

func (t *NewSessionTool) Risk() Risk { return RiskMedium }

func (t *NewSessionTool) Definition() Definition {
	return Definition{
		Name: t.Name(),
		Description: "Create a new ACP agent session. Spawns an external Coding Agent " +
			"(e.g. Claude Code) as a subprocess. The agent can autonomously read/write files, " +
			"run commands, and complete coding tasks in the given workspace. " +
			"Returns a session_id to use with acp_prompt and acp_end_session.",
		InputSchema: schemaObject(map[string]any{
			"agent": map[string]any{
				"type":        "string",
				"description": `Agent name from acp.json config (e.g. "claude")`,
			},
			"workspace": map[string]any{
				"type":        "string",
				"description": "Working directory for the agent. Defaults to the agent's configured workspace.",
			},
			"auto_approve": map[string]any{
				"type":        "boolean",
				"description": "Auto-approve the agent's tool calls. Defaults to the config setting.",
			},
		}, []string{"agent"}),
	}
}

func (t *NewSessionTool) Execute(ctx context.Context, input json.RawMessage) Result {
	var params struct {
		Agent       *string `json:"agent"`
		Workspace   string  `json:"workspace"`
		AutoApprove *bool   `json:"auto_approve"`
	}
	_ = json.Unmarshal(input, &params)
	if params.Agent == nil || *params.Agent == "" {
		return missingParam("agent")
	}

	info, err := t.manager.NewSession(ctx, *params.Agent, params.Workspace, params.AutoApprove)
	if err != nil {
		return Errorf(fmt.Sprintf("Failed to create ACP session: %v", err)).WithErrorType(acpErrorType)
	}

	return Success(mustJSON(map[string]any{
		"session_id": info.SessionID,
		"agent":      info.Agent,
		"workspace":  info.Workspace,
		"status":     "active",
	}))
}

// PromptTool sends a coding task to a session and waits for the result.
type PromptTool struct {
	manager *acp.Manager
}

func (t *PromptTool) Name() string { return "acp_prompt" }

func (t *PromptTool) Risk() Risk { return RiskHigh }

func (t *PromptTool) Definition() Definition {
	return Definition{
		Name: t.Name(),
		Description: "Send a coding task to an active ACP agent session and wait for " +
			"completion. The agent will autonomously execute the task (read/write files, " +
			"run commands, etc.) and return the results including output messages, " +
			"tool calls made, and files changed.",
		InputSchema: schemaObject(map[string]any{
			"session_id": map[string]any{
				"type":        "string",
				"description": "Session ID returned by acp_new_session",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "The coding task or instruction to send to the agent",
			},
			"timeout_secs": map[string]any{
				"type":        "integer",
				"description": "Max seconds to wait for completion. Defaults to config value (300s).",
			},
		}, []string{"session_id", "message"}),
	}
}

func (t *PromptTool) Execute(ctx context.Context, input json.RawMessage) Result {
	var params struct {
		SessionID   *string `json:"session_id"`
		Message     *string `json:"message"`
		TimeoutSecs *uint64 `json:"timeout_secs"`
	}
	_ = json.Unmarshal(input, &params)
	if params.SessionID == nil || *params.SessionID == "" {
		return missingParam("session_id")
	}
	if params.Message == nil || *params.Message == "" {
		return missingParam("message")
	}

	result, err := t.manager.Prompt(ctx, *params.SessionID, *params.Message, params.TimeoutSecs)
	if err != nil {
		return Errorf(fmt.Sprintf("ACP prompt failed: %v", err)).WithErrorType(acpErrorType)
	}
	return Success(mustJSON(result))
}

// EndSessionTool terminates a session and its subprocess.
type EndSessionTool struct {
	manager *acp.Manager
}

func (t *EndSessionTool) Name() string { return "acp_end_session" }

func (t *EndSessionTool) Risk() Risk { return RiskLow }

func (t *EndSessionTool) Definition() Definition {
	return Definition{
		Name: t.Name(),
		Description: "End an ACP agent session and terminate the agent subprocess. " +
			"Call this when you're done with the coding agent to free resources.",
		InputSchema: schemaObject(map[string]any{
			"session_id": map[string]any{
				"type":        "string",
				"description": "Session ID returned by acp_new_session",
			},
		}, []string{"session_id"}),
	}
}

func (t *EndSessionTool) Execute(ctx context.Context, input json.RawMessage) Result {
	var params struct {
		SessionID *string `json:"session_id"`
	}
	_ = json.Unmarshal(input, &params)
	if params.SessionID == nil || *params.SessionID == "" {
		return missingParam("session_id")
	}

	if err := t.manager.EndSession(*params.SessionID); err != nil {
		return Errorf(fmt.Sprintf("Failed to end ACP session: %v", err)).WithErrorType(acpErrorType)
	}

	return Success(mustJSON(map[string]any{
		"status":     "ended",
		"session_id": *params.SessionID,
	}))
}

// ListSessionsTool reports registered sessions and configured agents.
type ListSessionsTool struct {
	manager *acp.Manager
}

func (t *ListSessionsTool) Name() string { return "acp_list_sessions" }

func (t *ListSessionsTool) Risk() Risk { return RiskLow }

func (t *ListSessionsTool) Definition() Definition {
	return Definition{
		Name: t.Name(),
		Description: "List all active ACP agent sessions with their status, agent type, " +
			"workspace, and creation time.",
		InputSchema: schemaObject(map[string]any{}, nil),
	}
}

func (t *ListSessionsTool) Execute(ctx context.Context, input json.RawMessage) Result {
	return Success(mustJSON(map[string]any{
		"sessions":         t.manager.ListSessions(),
		"available_agents": t.manager.AvailableAgents(),
	}))
}
