// Package v1 holds the shared API types of the acpd service.
package v1

import "encoding/json"

// SessionStatus represents the lifecycle state of an ACP session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPrompting SessionStatus = "prompting"
	SessionStatusEnded     SessionStatus = "ended"
)

// SessionInfo is returned after creating a session.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	Agent     string `json:"agent"`
	Workspace string `json:"workspace"`
}

// SessionSummary describes a registered session for listing.
type SessionSummary struct {
	SessionID string        `json:"session_id"`
	Agent     string        `json:"agent"`
	Workspace string        `json:"workspace"`
	Status    SessionStatus `json:"status"`
	CreatedAt string        `json:"created_at"` // ISO-8601
}

// ToolCall records a single tool invocation reported by the agent.
type ToolCall struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// PromptResult is the aggregated outcome of one session/prompt exchange.
// Messages, ToolCalls, and FilesChanged each preserve the order events were
// observed on the agent's stdout.
type PromptResult struct {
	Completed    bool       `json:"completed"`
	Messages     []string   `json:"messages"`
	ToolCalls    []ToolCall `json:"tool_calls"`
	FilesChanged []string   `json:"files_changed"`
	DurationMS   int64      `json:"duration_ms"`
}
