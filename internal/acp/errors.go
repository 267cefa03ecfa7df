package acp

import (
	"errors"
	"fmt"
	"time"
)

// Kind is a stable error category; hosts may match on it.
type Kind string

const (
	KindUnknownAgent     Kind = "unknown_agent"
	KindSpawn            Kind = "spawn_error"
	KindHandshake        Kind = "handshake_error"
	KindIO               Kind = "io_error"
	KindConnectionClosed Kind = "connection_closed"
	KindAgent            Kind = "agent_error"
	KindTimeout          Kind = "timeout"
	KindNotFound         Kind = "not_found"
	KindSessionEnded     Kind = "session_ended"
	KindNoAgentSession   Kind = "no_agent_session"
)

// Error is the error type produced by this package. Code carries the
// JSON-RPC error code for KindAgent and is zero otherwise.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var acpErr *Error
	if errors.As(err, &acpErr) {
		return acpErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of err, or "" if it is not an acp error.
func KindOf(err error) Kind {
	var acpErr *Error
	if errors.As(err, &acpErr) {
		return acpErr.Kind
	}
	return ""
}

func errUnknownAgent(name string) *Error {
	return &Error{Kind: KindUnknownAgent, Message: fmt.Sprintf("ACP agent '%s' not configured", name)}
}

func errSpawn(agent string, err error) *Error {
	return &Error{Kind: KindSpawn, Message: fmt.Sprintf("failed to spawn ACP agent '%s'", agent), Err: err}
}

func errHandshake(agent string, err error) *Error {
	return &Error{Kind: KindHandshake, Message: fmt.Sprintf("ACP agent '%s' initialize failed", agent), Err: err}
}

func errIO(agent string, err error) *Error {
	return &Error{Kind: KindIO, Message: fmt.Sprintf("ACP [%s] I/O error", agent), Err: err}
}

func errConnectionClosed(agent string) *Error {
	return &Error{Kind: KindConnectionClosed, Message: fmt.Sprintf("ACP [%s] agent closed connection", agent)}
}

func errAgent(agent string, code int, message string) *Error {
	return &Error{Kind: KindAgent, Code: code, Message: fmt.Sprintf("ACP [%s] error (%d): %s", agent, code, message)}
}

func errTimeout(agent, method string, d time.Duration) *Error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf("ACP [%s] request '%s' timed out (%s)", agent, method, d)}
}

func errSessionNotFound(id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("ACP session '%s' not found", id)}
}

func errSessionEnded(id string) *Error {
	return &Error{Kind: KindSessionEnded, Message: fmt.Sprintf("ACP session '%s' has ended", id)}
}

func errNoAgentSession(id string) *Error {
	return &Error{Kind: KindNoAgentSession, Message: fmt.Sprintf("ACP session '%s' has no agent-side session ID", id)}
}
