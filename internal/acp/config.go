// Package acp spawns external coding agents as subprocesses and drives them
// over the Agent Client Protocol, a line-delimited JSON-RPC 2.0 dialect
// spoken on the child's stdio pair.
package acp

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kandev/acpd/internal/common/logger"
)

// Launch methods for agent processes.
const (
	LaunchNpx    = "npx"
	LaunchUvx    = "uvx"
	LaunchBinary = "binary"
)

const defaultPromptTimeoutSecs = 300

// AgentConfig describes one configured agent.
type AgentConfig struct {
	// Launch method: "npx" | "binary" | "uvx"
	Launch string `json:"launch,omitempty"`

	// Command is the executable or package name.
	// npx: package spec (e.g. "@anthropic-ai/claude-code@latest")
	// binary: absolute path to the executable
	Command string `json:"command"`

	Args []string          `json:"args,omitempty"`
	Env  map[string]string `json:"env,omitempty"`

	// Workspace is the default working directory for this agent.
	Workspace string `json:"workspace,omitempty"`

	// AutoApprove overrides the global default_auto_approve for this agent.
	AutoApprove *bool `json:"auto_approve,omitempty"`
}

// Config is the ACP configuration, usually loaded from <data_root>/acp.json.
type Config struct {
	// DefaultAutoApprove automatically approves tool calls from agents.
	DefaultAutoApprove bool `json:"default_auto_approve"`

	// PromptTimeoutSecs bounds prompt execution, in seconds.
	PromptTimeoutSecs uint64 `json:"prompt_timeout_secs"`

	// Agents are keyed by a short name (e.g. "claude", "opencode").
	Agents map[string]AgentConfig `json:"agents"`
}

// DefaultConfig returns the empty default configuration.
func DefaultConfig() Config {
	return Config{
		PromptTimeoutSecs: defaultPromptTimeoutSecs,
		Agents:            map[string]AgentConfig{},
	}
}

// fileConfig mirrors Config with both recognized key spellings. The snake
// case names are canonical; the camelCase aliases predate them.
type fileConfig struct {
	DefaultAutoApprove      *bool                  `json:"default_auto_approve"`
	DefaultAutoApproveAlias *bool                  `json:"defaultAutoApprove"`
	PromptTimeoutSecs       *uint64                `json:"prompt_timeout_secs"`
	PromptTimeoutSecsAlias  *uint64                `json:"promptTimeoutSecs"`
	Agents                  map[string]AgentConfig `json:"agents"`
	AgentsAlias             map[string]AgentConfig `json:"acpAgents"`
}

// ParseConfig decodes a config document, applying defaults for absent keys.
func ParseConfig(data []byte) (Config, error) {
	var raw fileConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return DefaultConfig(), err
	}

	cfg := DefaultConfig()
	if raw.DefaultAutoApprove != nil {
		cfg.DefaultAutoApprove = *raw.DefaultAutoApprove
	} else if raw.DefaultAutoApproveAlias != nil {
		cfg.DefaultAutoApprove = *raw.DefaultAutoApproveAlias
	}
	if raw.PromptTimeoutSecs != nil {
		cfg.PromptTimeoutSecs = *raw.PromptTimeoutSecs
	} else if raw.PromptTimeoutSecsAlias != nil {
		cfg.PromptTimeoutSecs = *raw.PromptTimeoutSecsAlias
	}
	if raw.Agents != nil {
		cfg.Agents = raw.Agents
	} else if raw.AgentsAlias != nil {
		cfg.Agents = raw.AgentsAlias
	}

	for name, agent := range cfg.Agents {
		if agent.Command == "" {
			return DefaultConfig(), fmt.Errorf("agent '%s': missing required field 'command'", name)
		}
		if agent.Launch == "" {
			agent.Launch = LaunchNpx
			cfg.Agents[name] = agent
		}
	}

	return cfg, nil
}

// LoadConfig reads the config from a JSON file. Returns the default (empty)
// config on a missing file, and on a malformed file after logging a warning.
// ACP is optional; a host without acp.json simply has no agents.
func LoadConfig(path string, log *logger.Logger) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultConfig()
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		log.Warn("Failed to parse ACP config, using defaults",
			zap.String("path", path),
			zap.Error(err))
		return DefaultConfig()
	}
	return cfg
}
