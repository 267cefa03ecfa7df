package acp

import (
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kandev/acpd/internal/common/logger"
	"github.com/kandev/acpd/pkg/acp/jsonrpc"
)

const (
	acpProtocolVersion = 1
	clientName         = "acpd"
	clientVersion      = "0.1.0"

	// defaultRequestTimeout bounds short RPCs (initialize, session/new,
	// session/end, shutdown). Prompts use the configured prompt timeout.
	defaultRequestTimeout = 30 * time.Second

	// logTrim caps non-JSON noise quoted in debug logs.
	logTrim = 200
)

// Connection owns a single spawned agent process and its stdio transport.
//
// All writes, and the blocking read of responses and notifications, are
// serialized by one mutex held for the duration of each operation: the
// protocol is single-threaded at the agent side, so the read loop belongs to
// whichever operation is in flight and no dispatcher task is needed.
type Connection struct {
	agentName string

	mu      sync.Mutex
	stdin   io.WriteCloser
	nextID  uint64
	cmd     *exec.Cmd

	lines    chan string
	readErr  error // set before lines is closed
	done     chan struct{}
	killOnce sync.Once

	requestTimeout time.Duration
	logger         *logger.Logger
}

// Spawn starts an agent process and performs the ACP initialization
// handshake. On handshake failure the child is killed and an error returned.
func Spawn(agentName string, cfg *AgentConfig, workspace string, requestTimeout time.Duration, log *logger.Logger) (*Connection, error) {
	cmd := buildSpawnCommand(cfg, workspace)

	log.Info("Spawning ACP agent",
		zap.String("agent", agentName),
		zap.String("launch", cfg.Launch),
		zap.String("command", cfg.Command))

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errSpawn(agentName, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errSpawn(agentName, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errSpawn(agentName, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errSpawn(agentName, err)
	}

	conn := newConnection(agentName, stdin, stdout, cmd, requestTimeout, log)
	go conn.drainStderr(stderr)

	if err := conn.initialize(); err != nil {
		conn.kill()
		return nil, err
	}

	return conn, nil
}

// newConnection wires a connection over arbitrary streams and starts the
// stdout reader. cmd may be nil (tests drive the streams directly).
func newConnection(agentName string, stdin io.WriteCloser, stdout io.Reader, cmd *exec.Cmd, requestTimeout time.Duration, log *logger.Logger) *Connection {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	c := &Connection{
		agentName:      agentName,
		stdin:          stdin,
		nextID:         1,
		cmd:            cmd,
		lines:          make(chan string),
		done:           make(chan struct{}),
		requestTimeout: requestTimeout,
		logger:         log.WithFields(zap.String("component", "acp-connection"), zap.String("agent", agentName)),
	}
	go c.readLines(stdout)
	return c
}

// readLines feeds stdout lines to the operation holding the connection lock.
// kill() closes done so a trailing line with no receiver does not strand the
// goroutine.
func (c *Connection) readLines(stdout io.Reader) {
	defer close(c.lines)
	scanner := jsonrpc.NewLineScanner(stdout)
	for scanner.Scan() {
		select {
		case c.lines <- scanner.Text():
		case <-c.done:
			return
		}
	}
	c.readErr = scanner.Err()
}

// drainStderr forwards the child's stderr to the debug log until EOF.
func (c *Connection) drainStderr(stderr io.Reader) {
	scanner := jsonrpc.NewLineScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			c.logger.Debug("agent stderr", zap.String("line", line))
		}
	}
}

// initialize performs the handshake: the initialize request followed by the
// notifications/initialized notification.
func (c *Connection) initialize() error {
	params := map[string]any{
		"protocolVersion": acpProtocolVersion,
		"clientCapabilities": map[string]any{
			"fs": map[string]any{
				"readTextFile":  false,
				"writeTextFile": false,
			},
			"terminal": false,
		},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	}

	result, err := c.SendRequest(context.Background(), "initialize", params)
	if err != nil {
		return errHandshake(c.agentName, err)
	}

	var info struct {
		ProtocolVersion json.RawMessage `json:"protocolVersion"`
		ServerInfo      *struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		AgentInfo *struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"agentInfo"`
	}
	_ = json.Unmarshal(result, &info)

	agentName, agentVersion := "unknown", "unknown"
	if info.ServerInfo != nil {
		agentName, agentVersion = info.ServerInfo.Name, info.ServerInfo.Version
	} else if info.AgentInfo != nil {
		agentName, agentVersion = info.AgentInfo.Name, info.AgentInfo.Version
	}
	c.logger.Info("ACP agent initialized",
		zap.String("agent_name", agentName),
		zap.String("agent_version", agentVersion),
		zap.String("protocol", string(info.ProtocolVersion)))

	// Some agents don't implement this notification and answer with
	// method-not-found; the stray error response is skipped by the next
	// request's read loop, so a send failure here is the only real signal.
	if err := c.SendNotification("notifications/initialized", struct{}{}); err != nil {
		c.logger.Debug("notifications/initialized not delivered, continuing", zap.Error(err))
	}

	return nil
}

// SendRequest sends a JSON-RPC request and blocks until the matching
// response arrives, the request timeout elapses, or ctx is done.
// Notifications and agent requests received while waiting are logged at
// debug and discarded.
func (c *Connection) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.writeRequestLocked(method, params)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.requestTimeout)
	for {
		msg, err := c.readMessageLocked(ctx, deadline, method, c.requestTimeout)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue
		}

		switch {
		case msg.IsNotification():
			c.logger.Debug("notification during request",
				zap.String("request", method),
				zap.String("method", msg.Method))
		case msg.IsRequest():
			// No listener outside a prompt; known agents only send
			// advisory requests here.
			c.logger.Debug("ignoring agent request during non-prompt call",
				zap.String("request", method),
				zap.String("method", msg.Method))
		case msg.IsResponse():
			if !msg.IDMatches(id) {
				continue
			}
			if msg.Error != nil {
				return nil, errAgent(c.agentName, msg.Error.Code, msg.Error.Message)
			}
			if msg.Result == nil {
				return json.RawMessage("null"), nil
			}
			return msg.Result, nil
		}
	}
}

// SendNotification sends a JSON-RPC notification; no reply is awaited.
func (c *Connection) SendNotification(method string, params any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := jsonrpc.WriteMessage(c.stdin, jsonrpc.NewNotification(method, params)); err != nil {
		return errIO(c.agentName, err)
	}
	return nil
}

// Shutdown sends a best-effort shutdown RPC and kills the child process.
func (c *Connection) Shutdown() error {
	c.logger.Info("Shutting down ACP agent")

	ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
	defer cancel()
	_, _ = c.SendRequest(ctx, "shutdown", nil)

	c.kill()
	c.logger.Info("ACP agent process terminated")
	return nil
}

func (c *Connection) kill() {
	c.killOnce.Do(func() { close(c.done) })
	_ = c.stdin.Close()
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}
}

// writeRequestLocked allocates the next id and writes one request line.
// Caller must hold c.mu.
func (c *Connection) writeRequestLocked(method string, params any) (uint64, error) {
	id := c.nextID
	c.nextID++
	if err := jsonrpc.WriteMessage(c.stdin, jsonrpc.NewRequest(id, method, params)); err != nil {
		return 0, errIO(c.agentName, err)
	}
	return id, nil
}

// readMessageLocked reads one line under the deadline and parses it.
// Returns (nil, nil) for empty or malformed lines, which the caller skips.
// Caller must hold c.mu.
func (c *Connection) readMessageLocked(ctx context.Context, deadline time.Time, method string, timeout time.Duration) (*jsonrpc.Message, error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case line, ok := <-c.lines:
		if !ok {
			if c.readErr != nil {
				return nil, errIO(c.agentName, c.readErr)
			}
			return nil, errConnectionClosed(c.agentName)
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return nil, nil
		}
		var msg jsonrpc.Message
		if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
			if len(trimmed) > logTrim {
				trimmed = trimmed[:logTrim]
			}
			c.logger.Debug("ignoring non-JSON line", zap.String("line", trimmed))
			return nil, nil
		}
		return &msg, nil
	case <-timer.C:
		return nil, errTimeout(c.agentName, method, timeout)
	case <-ctx.Done():
		return nil, errTimeout(c.agentName, method, timeout)
	}
}
