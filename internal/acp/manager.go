package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/acpd/internal/common/logger"
	v1 "github.com/kandev/acpd/pkg/api/v1"
)

// Session is a live agent subprocess bound to a workspace and a policy.
type Session struct {
	ID          string
	Agent       string
	Workspace   string
	AutoApprove bool

	conn      *Connection
	createdAt time.Time

	// mu serializes prompts and shutdown; it is held for the whole prompt.
	mu sync.Mutex

	// stateMu guards the fields below so listings never block on a
	// long-running prompt.
	stateMu      sync.RWMutex
	status       v1.SessionStatus
	acpSessionID string
}

// Status returns the session's current lifecycle state.
func (s *Session) Status() v1.SessionStatus {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.status
}

// setStatus transitions the session state. Ended is terminal.
func (s *Session) setStatus(status v1.SessionStatus) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.status == v1.SessionStatusEnded {
		return
	}
	s.status = status
}

func (s *Session) markEnded() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.status = v1.SessionStatusEnded
}

func (s *Session) agentSessionID() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.acpSessionID
}

func (s *Session) summary() v1.SessionSummary {
	return v1.SessionSummary{
		SessionID: s.ID,
		Agent:     s.Agent,
		Workspace: s.Workspace,
		Status:    s.Status(),
		CreatedAt: s.createdAt.UTC().Format(time.RFC3339),
	}
}

// UpdateHandler observes session/update events while prompts stream.
type UpdateHandler func(sessionID, updateType string, data json.RawMessage)

// Manager is the process-wide registry of ACP sessions. Agents are spawned
// on demand; nothing is persisted across restarts.
type Manager struct {
	config Config

	mu       sync.RWMutex
	sessions map[string]*Session

	// chats routes a host chat id to a session id, for command channels.
	chatMu sync.RWMutex
	chats  map[int64]string

	updateHandler UpdateHandler
	logger        *logger.Logger
}

// NewManager creates a manager from an already-parsed config.
// It does not spawn any agents; sessions are created on demand.
func NewManager(cfg Config, log *logger.Logger) *Manager {
	m := &Manager{
		config:   cfg,
		sessions: make(map[string]*Session),
		chats:    make(map[int64]string),
		logger:   log.WithFields(zap.String("component", "acp-manager")),
	}
	if len(cfg.Agents) > 0 {
		m.logger.Info("ACP config loaded",
			zap.Int("agents", len(cfg.Agents)),
			zap.Strings("names", m.AvailableAgents()))
	}
	return m
}

// NewManagerFromFile creates a manager from a config file path.
func NewManagerFromFile(path string, log *logger.Logger) *Manager {
	return NewManager(LoadConfig(path, log), log)
}

// SetUpdateHandler registers the handler that receives streamed updates.
// Must be called before any prompt is issued.
func (m *Manager) SetUpdateHandler(handler UpdateHandler) {
	m.updateHandler = handler
}

// AvailableAgents lists configured agent names, sorted.
func (m *Manager) AvailableAgents() []string {
	names := make([]string, 0, len(m.config.Agents))
	for name := range m.config.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasAgent reports whether the given agent name is configured.
func (m *Manager) HasAgent(name string) bool {
	_, ok := m.config.Agents[name]
	return ok
}

// AgentConfig returns the config for an agent name.
func (m *Manager) AgentConfig(name string) (AgentConfig, bool) {
	cfg, ok := m.config.Agents[name]
	return cfg, ok
}

// NewSession spawns an agent process, performs the ACP handshake, creates an
// agent-side session, and registers it under a fresh host session id.
func (m *Manager) NewSession(ctx context.Context, agentName, workspace string, autoApprove *bool) (*v1.SessionInfo, error) {
	agentCfg, ok := m.config.Agents[agentName]
	if !ok {
		return nil, errUnknownAgent(agentName)
	}

	effectiveAutoApprove := m.config.DefaultAutoApprove
	if agentCfg.AutoApprove != nil {
		effectiveAutoApprove = *agentCfg.AutoApprove
	}
	if autoApprove != nil {
		effectiveAutoApprove = *autoApprove
	}

	effectiveWorkspace := workspace
	if effectiveWorkspace == "" {
		effectiveWorkspace = agentCfg.Workspace
	}
	if effectiveWorkspace == "" {
		effectiveWorkspace = "."
	}

	conn, err := Spawn(agentName, &agentCfg, effectiveWorkspace, defaultRequestTimeout, m.logger)
	if err != nil {
		return nil, err
	}

	// Create the agent-side session with the workspace as cwd. Some agents
	// don't implement session/new; proceed without an agent session id.
	acpSessionID := ""
	result, err := conn.SendRequest(ctx, "session/new", map[string]any{
		"cwd":        canonicalWorkspace(effectiveWorkspace),
		"mcpServers": []any{},
	})
	if err != nil {
		m.logger.Warn("session/new failed, continuing without agent session ID",
			zap.String("agent", agentName),
			zap.Error(err))
	} else {
		var res struct {
			SessionID string `json:"sessionId"`
		}
		if json.Unmarshal(result, &res) == nil {
			acpSessionID = res.SessionID
		}
	}

	session := &Session{
		ID:           uuid.NewString(),
		Agent:        agentName,
		Workspace:    effectiveWorkspace,
		AutoApprove:  effectiveAutoApprove,
		conn:         conn,
		createdAt:    time.Now(),
		status:       v1.SessionStatusActive,
		acpSessionID: acpSessionID,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.logger.Info("ACP session created",
		zap.String("session_id", session.ID),
		zap.String("agent", agentName),
		zap.String("workspace", effectiveWorkspace),
		zap.Bool("auto_approve", effectiveAutoApprove))

	return &v1.SessionInfo{
		SessionID: session.ID,
		Agent:     agentName,
		Workspace: effectiveWorkspace,
	}, nil
}

// Prompt sends a coding task to a session and waits for completion. Exactly
// one prompt is outstanding per session; the session mutex enforces it.
func (m *Manager) Prompt(ctx context.Context, sessionID, message string, timeoutSecs *uint64) (*v1.PromptResult, error) {
	m.mu.RLock()
	session, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, errSessionNotFound(sessionID)
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.Status() == v1.SessionStatusEnded {
		return nil, errSessionEnded(sessionID)
	}
	session.setStatus(v1.SessionStatusPrompting)
	defer session.setStatus(v1.SessionStatusActive)

	acpSID := session.agentSessionID()
	if acpSID == "" {
		return nil, errNoAgentSession(sessionID)
	}

	timeout := time.Duration(m.config.PromptTimeoutSecs) * time.Second
	if timeoutSecs != nil {
		timeout = time.Duration(*timeoutSecs) * time.Second
	}

	params := map[string]any{
		"sessionId": acpSID,
		"prompt":    []map[string]any{{"type": "text", "text": message}},
	}

	var onUpdate UpdateFunc
	if m.updateHandler != nil {
		handler := m.updateHandler
		onUpdate = func(updateType string, data json.RawMessage) {
			handler(session.ID, updateType, data)
		}
	}

	result, err := session.conn.PromptStreaming(ctx, params, session.AutoApprove, timeout, onUpdate)
	if err != nil {
		m.logger.Error("ACP prompt failed",
			zap.String("session_id", sessionID),
			zap.String("agent", session.Agent),
			zap.Error(err))
		return nil, err
	}

	m.logger.Info("ACP prompt completed",
		zap.String("session_id", sessionID),
		zap.String("agent", session.Agent),
		zap.Int64("duration_ms", result.DurationMS),
		zap.Int("messages", len(result.Messages)),
		zap.Int("tool_calls", len(result.ToolCalls)),
		zap.Int("files_changed", len(result.FilesChanged)))
	return result, nil
}

// EndSession removes a session, tells the agent, and kills its process.
// Under concurrent invocation exactly one caller wins; the rest see a
// not-found error.
func (m *Manager) EndSession(sessionID string) error {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return errSessionNotFound(sessionID)
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if acpSID := session.agentSessionID(); acpSID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
		_, _ = session.conn.SendRequest(ctx, "session/end", map[string]any{"sessionId": acpSID})
		cancel()
	}

	_ = session.conn.Shutdown()
	session.markEnded()

	m.chatMu.Lock()
	for chatID, sid := range m.chats {
		if sid == sessionID {
			delete(m.chats, chatID)
		}
	}
	m.chatMu.Unlock()

	m.logger.Info("ACP session ended", zap.String("session_id", sessionID))
	return nil
}

// ListSessions returns a snapshot of all registered sessions.
func (m *Manager) ListSessions() []v1.SessionSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]v1.SessionSummary, 0, len(m.sessions))
	for _, session := range m.sessions {
		summaries = append(summaries, session.summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt < summaries[j].CreatedAt
	})
	return summaries
}

// Cleanup ends all sessions; called on host shutdown so no children leak.
func (m *Manager) Cleanup() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.EndSession(id); err != nil {
			m.logger.Warn("cleanup: failed to end session",
				zap.String("session_id", id),
				zap.Error(err))
		}
	}

	if len(ids) > 0 {
		m.logger.Info("ACP manager cleanup complete", zap.Int("sessions", len(ids)))
	}
}

// BindChat routes messages in a chat to an ACP session.
func (m *Manager) BindChat(chatID int64, sessionID string) {
	m.chatMu.Lock()
	m.chats[chatID] = sessionID
	m.chatMu.Unlock()
	m.logger.Debug("bound chat to session",
		zap.Int64("chat_id", chatID),
		zap.String("session_id", sessionID))
}

// UnbindChat removes a chat's session binding.
func (m *Manager) UnbindChat(chatID int64) {
	m.chatMu.Lock()
	delete(m.chats, chatID)
	m.chatMu.Unlock()
	m.logger.Debug("unbound chat", zap.Int64("chat_id", chatID))
}

// ChatSession returns the session id bound to a chat, if any.
func (m *Manager) ChatSession(chatID int64) (string, bool) {
	m.chatMu.RLock()
	defer m.chatMu.RUnlock()
	sessionID, ok := m.chats[chatID]
	return sessionID, ok
}

// EndChatSession ends the session bound to a chat and unbinds it.
func (m *Manager) EndChatSession(chatID int64) error {
	sessionID, ok := m.ChatSession(chatID)
	if !ok {
		return &Error{Kind: KindNotFound, Message: fmt.Sprintf("no active ACP session bound to chat %d", chatID)}
	}
	if err := m.EndSession(sessionID); err != nil {
		return err
	}
	m.UnbindChat(chatID)
	return nil
}

// canonicalWorkspace resolves the workspace to an absolute, symlink-free
// path, falling back to the raw path when resolution fails.
func canonicalWorkspace(workspace string) string {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return workspace
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}
	return resolved
}
