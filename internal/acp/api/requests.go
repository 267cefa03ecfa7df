package api

// CreateSessionRequest is the body of POST /api/v1/acp/sessions.
type CreateSessionRequest struct {
	Agent       string `json:"agent" binding:"required"`
	Workspace   string `json:"workspace"`
	AutoApprove *bool  `json:"auto_approve"`
}

// PromptRequest is the body of POST /api/v1/acp/sessions/:sessionId/prompt.
type PromptRequest struct {
	Message     string  `json:"message" binding:"required"`
	TimeoutSecs *uint64 `json:"timeout_secs"`
}

// BindChatRequest is the body of POST /api/v1/acp/chats/:chatId/bind.
type BindChatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}
