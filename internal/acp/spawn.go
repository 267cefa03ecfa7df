package acp

import (
	"os"
	"os/exec"
	"strings"
)

// Environment variables stripped before launching an agent. When acpd itself
// runs inside a Claude Code session, these inherited vars trip the agent's
// nested-session detection and it refuses to start.
var scrubbedEnvVars = []string{
	"CLAUDECODE",
	"CLAUDE_CODE_ENTRYPOINT",
	"CLAUDE_CODE_EXPERIMENTAL_AGENT_TEAMS",
}

// buildSpawnCommand turns an agent config plus an optional workspace override
// into an OS process invocation. All three std streams are wired up by the
// caller via the pipe helpers on exec.Cmd.
func buildSpawnCommand(cfg *AgentConfig, workspace string) *exec.Cmd {
	var program string
	var args []string
	switch cfg.Launch {
	case LaunchNpx:
		program = "npx"
		args = []string{"-y", cfg.Command}
	case LaunchUvx:
		program = "uvx"
		args = []string{cfg.Command}
	default:
		program = cfg.Command
	}
	args = append(args, cfg.Args...)

	cmd := exec.Command(program, args...)
	cmd.Env = buildSpawnEnv(cfg.Env)

	if workspace != "" {
		cmd.Dir = workspace
	} else if cfg.Workspace != "" {
		cmd.Dir = cfg.Workspace
	}

	return cmd
}

// buildSpawnEnv returns the inherited environment minus the scrubbed vars,
// with the config's additions appended (additions win on duplicate keys).
func buildSpawnEnv(additions map[string]string) []string {
	env := make([]string, 0, len(os.Environ())+len(additions))
	for _, kv := range os.Environ() {
		if isScrubbed(kv) {
			continue
		}
		if key, _, ok := strings.Cut(kv, "="); ok {
			if _, shadowed := additions[key]; shadowed {
				continue
			}
		}
		env = append(env, kv)
	}
	for k, v := range additions {
		env = append(env, k+"="+v)
	}
	return env
}

func isScrubbed(kv string) bool {
	for _, name := range scrubbedEnvVars {
		if strings.HasPrefix(kv, name+"=") {
			return true
		}
	}
	return false
}
