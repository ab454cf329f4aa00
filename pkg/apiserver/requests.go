package apiserver

// createConversationRequest is the body of POST /api/v1/conversations.
type createConversationRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Workspace      string `json:"workspace" binding:"required"`
	AgentClass     string `json:"agent_class,omitempty"`
	SystemPrompt   string `json:"system_prompt,omitempty"`
}

// sendMessageRequest is the body of POST /api/v1/conversations/:id/events.
type sendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// updateSecretsRequest is the body of POST /api/v1/conversations/:id/secrets.
type updateSecretsRequest struct {
	Secrets []secretEntry `json:"secrets" binding:"required"`
}

type secretEntry struct {
	Name   string `json:"name" binding:"required"`
	EnvVar string `json:"env_var,omitempty"`
	Value  string `json:"value" binding:"required"`
}

// rejectRequest is the body of POST /api/v1/conversations/:id/reject.
type rejectRequest struct {
	Reason string `json:"reason,omitempty"`
}
