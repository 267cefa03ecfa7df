package acp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/acpd/pkg/acp/jsonrpc"
	v1 "github.com/kandev/acpd/pkg/api/v1"
)

// UpdateFunc observes each session/update while a prompt is streaming.
// data is the raw update object from the notification params.
type UpdateFunc func(updateType string, data json.RawMessage)

// sessionUpdate is the decoded update object of a session/update
// notification. Fields are populated per the sessionUpdate tag; unknown tags
// are accepted and ignored.
type sessionUpdate struct {
	SessionUpdate string            `json:"sessionUpdate"`
	Content       json.RawMessage   `json:"content"`
	Title         string            `json:"title"`
	RawInput      json.RawMessage   `json:"rawInput"`
	RawOutput     json.RawMessage   `json:"rawOutput"`
	ToolCallID    string            `json:"toolCallId"`
	Status        string            `json:"status"`
	Entries       []json.RawMessage `json:"entries"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type permissionOption struct {
	OptionID string `json:"optionId"`
	Kind     string `json:"kind"`
}

type permissionParams struct {
	Options []permissionOption `json:"options"`
}

type permissionOutcome struct {
	Outcome  string `json:"outcome"`
	OptionID string `json:"optionId,omitempty"`
}

type permissionReply struct {
	Outcome permissionOutcome `json:"outcome"`
}

// PromptStreaming sends session/prompt and collects the notification stream
// until the matching response arrives or the deadline expires. Permission
// requests arriving mid-prompt are answered according to autoApprove. No
// partial result is exposed on failure; timeouts surface as errors.
func (c *Connection) PromptStreaming(ctx context.Context, params any, autoApprove bool, timeout time.Duration, onUpdate UpdateFunc) (*v1.PromptResult, error) {
	started := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.writeRequestLocked("session/prompt", params)
	if err != nil {
		return nil, err
	}

	result := &v1.PromptResult{
		Messages:     []string{},
		ToolCalls:    []v1.ToolCall{},
		FilesChanged: []string{},
	}
	// Accumulates streamed text until the block ends or a tool call cuts in.
	var buffer strings.Builder

	deadline := started.Add(timeout)
	for {
		msg, err := c.readMessageLocked(ctx, deadline, "session/prompt", timeout)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue
		}

		switch {
		case msg.IsResponse():
			if !msg.IDMatches(id) {
				continue
			}
			if msg.Error != nil {
				return nil, errAgent(c.agentName, msg.Error.Code, msg.Error.Message)
			}
			if buffer.Len() > 0 {
				result.Messages = append(result.Messages, buffer.String())
				buffer.Reset()
			}
			var res struct {
				StopReason string `json:"stopReason"`
			}
			if json.Unmarshal(msg.Result, &res) == nil && res.StopReason != "" {
				c.logger.Debug("prompt finished", zap.String("stop_reason", res.StopReason))
			}
			result.Completed = true
			result.DurationMS = time.Since(started).Milliseconds()
			return result, nil

		case msg.IsRequest():
			c.handleAgentRequestLocked(msg, autoApprove)

		case msg.IsNotification():
			if msg.Method != "session/update" {
				c.logger.Debug("unhandled notification", zap.String("method", msg.Method))
				continue
			}
			c.applyUpdate(msg.Params, result, &buffer, onUpdate)
		}
	}
}

// applyUpdate folds one session/update notification into the working state.
func (c *Connection) applyUpdate(params json.RawMessage, result *v1.PromptResult, buffer *strings.Builder, onUpdate UpdateFunc) {
	var p struct {
		SessionID string          `json:"sessionId"`
		Update    json.RawMessage `json:"update"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Update == nil {
		c.logger.Debug("malformed session/update params")
		return
	}
	var update sessionUpdate
	if err := json.Unmarshal(p.Update, &update); err != nil {
		c.logger.Debug("malformed session/update object")
		return
	}

	if onUpdate != nil {
		onUpdate(update.SessionUpdate, p.Update)
	}

	switch update.SessionUpdate {
	case "agent_message_chunk":
		var content contentBlock
		if json.Unmarshal(update.Content, &content) == nil {
			buffer.WriteString(content.Text)
		}

	case "agent_thought_chunk":
		var content contentBlock
		if json.Unmarshal(update.Content, &content) == nil {
			thought := content.Text
			if len(thought) > 100 {
				thought = thought[:100]
			}
			c.logger.Debug("agent thought", zap.String("text", thought))
		}

	case "tool_call":
		// A tool call terminates the in-progress text block.
		if buffer.Len() > 0 {
			result.Messages = append(result.Messages, buffer.String())
			buffer.Reset()
		}
		title := update.Title
		if title == "" {
			title = "unknown"
		}
		input := update.RawInput
		if input == nil {
			input = json.RawMessage("null")
		}
		result.ToolCalls = append(result.ToolCalls, v1.ToolCall{Tool: title, Input: input})

	case "tool_call_update":
		c.logger.Debug("tool call update",
			zap.String("tool_call_id", update.ToolCallID),
			zap.String("status", update.Status))
		if out := rawOutputString(update.RawOutput); out != "" {
			result.Messages = append(result.Messages, out)
		}
		var items []struct {
			Type    string       `json:"type"`
			Content contentBlock `json:"content"`
		}
		if json.Unmarshal(update.Content, &items) == nil {
			for _, item := range items {
				if item.Type == "content" && item.Content.Text != "" {
					result.Messages = append(result.Messages, item.Content.Text)
				}
			}
		}

	case "plan":
		c.logger.Debug("plan update", zap.Int("entries", len(update.Entries)))

	default:
		c.logger.Debug("unhandled session/update type", zap.String("type", update.SessionUpdate))
	}
}

// rawOutputString renders a tool's rawOutput: strings verbatim, anything
// else as compact JSON.
func rawOutputString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// handleAgentRequestLocked answers an agent-originated request received
// mid-prompt. Only session/request_permission gets a reply; anything else is
// advisory for known agents and is logged and dropped. Caller must hold c.mu.
func (c *Connection) handleAgentRequestLocked(msg *jsonrpc.Message, autoApprove bool) {
	if msg.Method != "session/request_permission" {
		c.logger.Debug("unhandled agent request", zap.String("method", msg.Method))
		return
	}

	var params permissionParams
	_ = json.Unmarshal(msg.Params, &params)
	optionID := choosePermissionOption(params.Options)

	var outcome permissionOutcome
	if autoApprove {
		outcome = permissionOutcome{Outcome: "selected", OptionID: optionID}
		c.logger.Info("Auto-approved permission request", zap.String("option_id", optionID))
	} else {
		outcome = permissionOutcome{Outcome: "cancelled"}
		c.logger.Debug("Rejected permission request (auto_approve=false)")
	}

	// The reply reuses the incoming id verbatim; it may be a number or a
	// string. Write errors are best-effort: the prompt loop will surface
	// the broken pipe on its next read.
	reply := jsonrpc.Response{JSONRPC: "2.0", ID: msg.ID, Result: permissionReply{Outcome: outcome}}
	if err := jsonrpc.WriteMessage(c.stdin, reply); err != nil {
		c.logger.Debug("failed to write permission reply", zap.Error(err))
	}
}

// choosePermissionOption picks the option to approve with: the first
// allow_always, else the first kind beginning with "allow", else the
// literal id "allow".
func choosePermissionOption(options []permissionOption) string {
	for _, opt := range options {
		if opt.Kind == "allow_always" {
			return opt.OptionID
		}
	}
	for _, opt := range options {
		if strings.HasPrefix(opt.Kind, "allow") {
			return opt.OptionID
		}
	}
	return "allow"
}
