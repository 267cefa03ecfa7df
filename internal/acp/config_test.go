package acp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/acpd/internal/common/logger"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.DefaultAutoApprove)
	assert.Equal(t, uint64(300), cfg.PromptTimeoutSecs)
	assert.Empty(t, cfg.Agents)
}

func TestParseConfigSnakeCase(t *testing.T) {
	data := []byte(`{
		"default_auto_approve": true,
		"prompt_timeout_secs": 600,
		"agents": {
			"claude": {
				"launch": "npx",
				"command": "@zed-industries/claude-code-acp",
				"args": ["--verbose"],
				"env": {"API_KEY": "test"},
				"workspace": "/tmp/work",
				"auto_approve": false
			}
		}
	}`)

	cfg, err := ParseConfig(data)
	require.NoError(t, err)
	assert.True(t, cfg.DefaultAutoApprove)
	assert.Equal(t, uint64(600), cfg.PromptTimeoutSecs)

	agent, ok := cfg.Agents["claude"]
	require.True(t, ok)
	assert.Equal(t, LaunchNpx, agent.Launch)
	assert.Equal(t, "@zed-industries/claude-code-acp", agent.Command)
	assert.Equal(t, []string{"--verbose"}, agent.Args)
	assert.Equal(t, map[string]string{"API_KEY": "test"}, agent.Env)
	assert.Equal(t, "/tmp/work", agent.Workspace)
	require.NotNil(t, agent.AutoApprove)
	assert.False(t, *agent.AutoApprove)
}

func TestParseConfigCamelCaseAliases(t *testing.T) {
	data := []byte(`{
		"defaultAutoApprove": true,
		"promptTimeoutSecs": 120,
		"acpAgents": {
			"gemini": {"command": "@google/gemini-cli"}
		}
	}`)

	cfg, err := ParseConfig(data)
	require.NoError(t, err)
	assert.True(t, cfg.DefaultAutoApprove)
	assert.Equal(t, uint64(120), cfg.PromptTimeoutSecs)
	assert.Contains(t, cfg.Agents, "gemini")
}

func TestParseConfigSnakeCaseWinsOverAlias(t *testing.T) {
	data := []byte(`{
		"default_auto_approve": false,
		"defaultAutoApprove": true,
		"prompt_timeout_secs": 60,
		"promptTimeoutSecs": 90
	}`)

	cfg, err := ParseConfig(data)
	require.NoError(t, err)
	assert.False(t, cfg.DefaultAutoApprove)
	assert.Equal(t, uint64(60), cfg.PromptTimeoutSecs)
}

func TestAgentConfigRoundTrip(t *testing.T) {
	autoApprove := true
	configs := map[string]AgentConfig{
		"full": {
			Launch:      LaunchBinary,
			Command:     "/usr/local/bin/agent",
			Args:        []string{"--flag", "value"},
			Env:         map[string]string{"KEY": "val"},
			Workspace:   "/work",
			AutoApprove: &autoApprove,
		},
		"minimal": {Launch: LaunchNpx, Command: "some-pkg"},
	}

	for name, original := range configs {
		t.Run(name, func(t *testing.T) {
			data, err := json.Marshal(original)
			require.NoError(t, err)

			var decoded AgentConfig
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, original, decoded)
		})
	}
}

func TestParseConfigLaunchDefaultsToNpx(t *testing.T) {
	data := []byte(`{"agents": {"a": {"command": "some-pkg"}}}`)

	cfg, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, LaunchNpx, cfg.Agents["a"].Launch)
}

func TestParseConfigMissingCommand(t *testing.T) {
	data := []byte(`{"agents": {"bad": {"launch": "binary"}}}`)

	_, err := ParseConfig(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required field 'command'")
}

func TestParseConfigEmptyObject(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "nope.json"), logger.NewNop())
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

	cfg := LoadConfig(path, logger.NewNop())
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"agents": {"claude": {"command": "@zed-industries/claude-code-acp"}}
	}`), 0644))

	cfg := LoadConfig(path, logger.NewNop())
	assert.Len(t, cfg.Agents, 1)
	assert.Equal(t, uint64(300), cfg.PromptTimeoutSecs)
}
