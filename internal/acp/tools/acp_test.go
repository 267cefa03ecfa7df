package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/acpd/internal/acp"
	"github.com/kandev/acpd/internal/common/logger"
)

func testManager() *acp.Manager {
	return acp.NewManagerFromFile("/nonexistent/acp.json", logger.NewNop())
}

func TestToolNames(t *testing.T) {
	all := All(testManager())
	var names []string
	for _, tool := range all {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"acp_new_session", "acp_prompt", "acp_end_session", "acp_list_sessions"}, names)
}

func TestToolDefinitionsValid(t *testing.T) {
	for _, tool := range All(testManager()) {
		def := tool.Definition()
		assert.Equal(t, tool.Name(), def.Name)
		assert.GreaterOrEqual(t, len(def.Description), 10)
		assert.LessOrEqual(t, len(def.Description), 1024)
		assert.Equal(t, "object", def.InputSchema["type"])

		props, ok := def.InputSchema["properties"].(map[string]any)
		require.True(t, ok, "tool %s: schema must have properties", def.Name)
		required, ok := def.InputSchema["required"].([]string)
		require.True(t, ok, "tool %s: schema must have required list", def.Name)
		for _, field := range required {
			assert.Contains(t, props, field, "tool %s: required field must exist", def.Name)
		}
	}
}

func TestToolRiskLevels(t *testing.T) {
	risks := map[string]Risk{}
	for _, tool := range All(testManager()) {
		risks[tool.Name()] = tool.Risk()
	}
	assert.Equal(t, RiskHigh, risks["acp_prompt"])
	assert.Equal(t, RiskMedium, risks["acp_new_session"])
	assert.Equal(t, RiskLow, risks["acp_end_session"])
	assert.Equal(t, RiskLow, risks["acp_list_sessions"])
}

func TestNewSessionMissingAgent(t *testing.T) {
	tool := &NewSessionTool{manager: testManager()}

	result := tool.Execute(context.Background(), json.RawMessage(`{}`))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "Missing required parameter: agent")
	assert.Empty(t, result.ErrorType)
}

func TestNewSessionUnknownAgent(t *testing.T) {
	tool := &NewSessionTool{manager: testManager()}

	result := tool.Execute(context.Background(), json.RawMessage(`{"agent":"nonexistent"}`))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "not configured")
	assert.Equal(t, "acp_error", result.ErrorType)
}

func TestPromptMissingParams(t *testing.T) {
	tool := &PromptTool{manager: testManager()}
	ctx := context.Background()

	r1 := tool.Execute(ctx, json.RawMessage(`{"message":"hello"}`))
	assert.True(t, r1.IsError)
	assert.Contains(t, r1.Content, "session_id")

	r2 := tool.Execute(ctx, json.RawMessage(`{"session_id":"abc"}`))
	assert.True(t, r2.IsError)
	assert.Contains(t, r2.Content, "message")
}

func TestPromptSessionNotFound(t *testing.T) {
	tool := &PromptTool{manager: testManager()}

	result := tool.Execute(context.Background(), json.RawMessage(`{"session_id":"nonexistent","message":"hello"}`))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "not found")
	assert.Equal(t, "acp_error", result.ErrorType)
}

func TestEndSessionMissingParam(t *testing.T) {
	tool := &EndSessionTool{manager: testManager()}

	result := tool.Execute(context.Background(), json.RawMessage(`{}`))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "session_id")
}

func TestEndSessionNotFound(t *testing.T) {
	tool := &EndSessionTool{manager: testManager()}

	result := tool.Execute(context.Background(), json.RawMessage(`{"session_id":"nonexistent"}`))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "not found")
}

func TestListSessionsEmpty(t *testing.T) {
	tool := &ListSessionsTool{manager: testManager()}

	result := tool.Execute(context.Background(), json.RawMessage(`{"unexpected":"param"}`))
	require.False(t, result.IsError)

	var parsed struct {
		Sessions        []json.RawMessage `json:"sessions"`
		AvailableAgents []string          `json:"available_agents"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content), &parsed))
	assert.Empty(t, parsed.Sessions)
	assert.Empty(t, parsed.AvailableAgents)
}

func TestRiskString(t *testing.T) {
	assert.Equal(t, "low", RiskLow.String())
	assert.Equal(t, "medium", RiskMedium.String())
	assert.Equal(t, "high", RiskHigh.String())
}
