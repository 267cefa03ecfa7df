// Package tools exposes ACP session management as model-invocable tools.
// Each tool carries a JSON Schema definition suitable for an LLM tool list
// and executes against a shared session manager.
package tools

import (
	"context"
	"encoding/json"
)

// Risk classifies how much damage a tool can do if misused. Hosts gate
// confirmation prompts on it.
type Risk int

const (
	RiskLow Risk = iota
	RiskMedium
	RiskHigh
)

func (r Risk) String() string {
	switch r {
	case RiskHigh:
		return "high"
	case RiskMedium:
		return "medium"
	default:
		return "low"
	}
}

// Result is the outcome of one tool invocation. Content is what the model
// sees; ErrorType optionally tags the failure class.
type Result struct {
	Content   string `json:"content"`
	IsError   bool   `json:"is_error"`
	ErrorType string `json:"error_type,omitempty"`
}

// Success builds a successful result.
func Success(content string) Result {
	return Result{Content: content}
}

// Errorf builds a failed result with the given message.
func Errorf(content string) Result {
	return Result{Content: content, IsError: true}
}

// WithErrorType tags a failed result.
func (r Result) WithErrorType(errorType string) Result {
	r.ErrorType = errorType
	return r
}

// Definition describes a tool to the model.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Tool is one model-invocable operation.
type Tool interface {
	Name() string
	Definition() Definition
	Risk() Risk
	Execute(ctx context.Context, input json.RawMessage) Result
}

// schemaObject builds a JSON Schema object with the given properties and
// required field names.
func schemaObject(properties map[string]any, required []string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// mustJSON marshals v, which is built from literals and cannot fail.
func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
