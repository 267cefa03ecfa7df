// Package jsonrpc provides the line-delimited JSON-RPC 2.0 wire layer used
// to talk to ACP agent processes over their stdio pair.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Request is an outbound JSON-RPC 2.0 request or notification.
// A nil ID marks a notification.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *uint64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest builds a request carrying the given id.
func NewRequest(id uint64, method string, params any) *Request {
	return &Request{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
}

// NewNotification builds a request without an id.
func NewNotification(method string, params any) *Request {
	return &Request{JSONRPC: "2.0", Method: method, Params: params}
}

// Response is an outbound JSON-RPC 2.0 response. The ID is kept raw so a
// reply can echo the inbound id verbatim, whether it was a number or a string.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Message is a generic inbound JSON-RPC 2.0 message. The jsonrpc tag is
// ignored on input; classification uses only id and method.
type Message struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsResponse reports whether the message is a response (has id, no method).
func (m *Message) IsResponse() bool {
	return m.hasID() && m.Method == ""
}

// IsNotification reports whether the message is a notification (method, no id).
func (m *Message) IsNotification() bool {
	return m.Method != "" && !m.hasID()
}

// IsRequest reports whether the message is a request originated by the agent
// (has both id and method), e.g. session/request_permission.
func (m *Message) IsRequest() bool {
	return m.hasID() && m.Method != ""
}

func (m *Message) hasID() bool {
	return len(m.ID) > 0 && !bytes.Equal(m.ID, []byte("null"))
}

// IDMatches reports whether the message id equals the given numeric request
// id. Non-numeric ids match best-effort: agents are not expected to rewrite
// ids, so a string id on a response is treated as ours.
func (m *Message) IDMatches(id uint64) bool {
	n, err := strconv.ParseUint(string(bytes.TrimSpace(m.ID)), 10, 64)
	if err != nil {
		return true
	}
	return n == id
}
