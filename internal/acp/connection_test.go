package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/acpd/internal/common/logger"
)

// fakeAgent drives the agent side of a connection over in-process pipes.
type fakeAgent struct {
	stdin  *bufio.Scanner // what the client wrote
	stdout *io.PipeWriter // what the agent emits
}

func newFakeConnection(t *testing.T, timeout time.Duration) (*Connection, *fakeAgent) {
	t.Helper()

	clientOutR, clientOutW := io.Pipe() // client stdin -> agent
	agentOutR, agentOutW := io.Pipe()   // agent stdout -> client

	conn := newConnection("mock", clientOutW, agentOutR, nil, timeout, logger.NewNop())
	t.Cleanup(func() {
		_ = clientOutW.Close()
		_ = agentOutW.Close()
	})

	return conn, &fakeAgent{
		stdin:  bufio.NewScanner(clientOutR),
		stdout: agentOutW,
	}
}

// readRequest blocks until the client writes a line and decodes it.
func (a *fakeAgent) readRequest(t *testing.T) map[string]any {
	t.Helper()
	if !a.stdin.Scan() {
		t.Error("fake agent: client closed stdin before a request arrived")
		return nil
	}
	var req map[string]any
	if err := json.Unmarshal(a.stdin.Bytes(), &req); err != nil {
		t.Errorf("fake agent: malformed request line: %v", err)
		return nil
	}
	return req
}

// send writes one raw line on the agent's stdout.
func (a *fakeAgent) send(line string) {
	_, _ = a.stdout.Write([]byte(line + "\n"))
}

func (a *fakeAgent) respond(id any, result string) {
	raw, _ := json.Marshal(id)
	a.send(`{"jsonrpc":"2.0","id":` + string(raw) + `,"result":` + result + `}`)
}

func TestSendRequestResult(t *testing.T) {
	conn, agent := newFakeConnection(t, time.Second)

	go func() {
		req := agent.readRequest(t)
		assert.Equal(t, "session/new", req["method"])
		agent.respond(req["id"], `{"sessionId":"abc-123"}`)
	}()

	result, err := conn.SendRequest(context.Background(), "session/new", map[string]any{"cwd": "/tmp"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessionId":"abc-123"}`, string(result))
}

func TestSendRequestAgentError(t *testing.T) {
	conn, agent := newFakeConnection(t, time.Second)

	go func() {
		req := agent.readRequest(t)
		raw, _ := json.Marshal(req["id"])
		agent.send(`{"jsonrpc":"2.0","id":` + string(raw) + `,"error":{"code":-32000,"message":"Mock error"}}`)
	}()

	_, err := conn.SendRequest(context.Background(), "session/new", nil)
	require.Error(t, err)
	assert.Equal(t, KindAgent, KindOf(err))
	assert.Contains(t, err.Error(), "Mock error")
	assert.Contains(t, err.Error(), "-32000")
}

func TestSendRequestSkipsInterleavedTraffic(t *testing.T) {
	conn, agent := newFakeConnection(t, time.Second)

	go func() {
		req := agent.readRequest(t)
		agent.send(`{"jsonrpc":"2.0","method":"session/update","params":{}}`)
		agent.send(`{"jsonrpc":"2.0","id":9999,"result":"stale"}`)
		agent.send(``)
		agent.send(`not json at all`)
		agent.respond(req["id"], `"done"`)
	}()

	result, err := conn.SendRequest(context.Background(), "shutdown", nil)
	require.NoError(t, err)
	assert.Equal(t, `"done"`, string(result))
}

func TestSendRequestNullResult(t *testing.T) {
	conn, agent := newFakeConnection(t, time.Second)

	go func() {
		req := agent.readRequest(t)
		raw, _ := json.Marshal(req["id"])
		agent.send(`{"jsonrpc":"2.0","id":` + string(raw) + `}`)
	}()

	result, err := conn.SendRequest(context.Background(), "session/end", nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(result))
}

func TestSendRequestTimeout(t *testing.T) {
	conn, agent := newFakeConnection(t, 100*time.Millisecond)

	go agent.readRequest(t)

	_, err := conn.SendRequest(context.Background(), "initialize", nil)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.Contains(t, err.Error(), "initialize")
}

func TestSendRequestConnectionClosed(t *testing.T) {
	conn, agent := newFakeConnection(t, time.Second)

	go func() {
		agent.readRequest(t)
		_ = agent.stdout.Close()
	}()

	_, err := conn.SendRequest(context.Background(), "session/new", nil)
	require.Error(t, err)
	assert.Equal(t, KindConnectionClosed, KindOf(err))
}

func TestSendRequestIDsIncrement(t *testing.T) {
	conn, agent := newFakeConnection(t, time.Second)

	go func() {
		for i := 0; i < 2; i++ {
			req := agent.readRequest(t)
			agent.respond(req["id"], `null`)
		}
	}()

	_, err := conn.SendRequest(context.Background(), "a", nil)
	require.NoError(t, err)
	_, err = conn.SendRequest(context.Background(), "b", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), conn.nextID)
}

func TestSendNotificationHasNoID(t *testing.T) {
	conn, agent := newFakeConnection(t, time.Second)

	done := make(chan map[string]any, 1)
	go func() {
		done <- agent.readRequest(t)
	}()

	require.NoError(t, conn.SendNotification("notifications/initialized", struct{}{}))

	req := <-done
	assert.Equal(t, "notifications/initialized", req["method"])
	_, hasID := req["id"]
	assert.False(t, hasID)
}

func TestReaderExitsAfterKill(t *testing.T) {
	conn, agent := newFakeConnection(t, time.Second)

	wrote := make(chan struct{})
	go func() {
		req := agent.readRequest(t)
		agent.respond(req["id"], `null`)
		// Output after the final consumed response; no operation will
		// ever receive it.
		agent.send(`{"jsonrpc":"2.0","method":"session/update","params":{}}`)
		close(wrote)
	}()

	_, err := conn.SendRequest(context.Background(), "shutdown", nil)
	require.NoError(t, err)
	<-wrote

	conn.kill()

	// The reader must drop the trailing line and close the channel instead
	// of parking on the send forever. If it had already committed to the
	// send, receiving once and ending the stream also has to unblock it.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-conn.lines:
			if !ok {
				return
			}
			_ = agent.stdout.Close()
		case <-deadline:
			t.Fatal("reader goroutine still running after kill")
		}
	}
}

func TestInitializeHandshake(t *testing.T) {
	conn, agent := newFakeConnection(t, time.Second)

	go func() {
		req := agent.readRequest(t)
		assert.Equal(t, "initialize", req["method"])
		params, _ := req["params"].(map[string]any)
		assert.Equal(t, float64(1), params["protocolVersion"])
		clientInfo, _ := params["clientInfo"].(map[string]any)
		assert.Equal(t, "acpd", clientInfo["name"])
		caps, _ := params["clientCapabilities"].(map[string]any)
		assert.Equal(t, false, caps["terminal"])

		agent.respond(req["id"], `{"protocolVersion":1,"agentInfo":{"name":"mock","version":"0.0.1"}}`)

		note := agent.readRequest(t)
		assert.Equal(t, "notifications/initialized", note["method"])
	}()

	require.NoError(t, conn.initialize())
}

func TestInitializeFailureIsHandshakeError(t *testing.T) {
	conn, agent := newFakeConnection(t, 100*time.Millisecond)

	go agent.readRequest(t)

	err := conn.initialize()
	require.Error(t, err)
	assert.Equal(t, KindHandshake, KindOf(err))
}
