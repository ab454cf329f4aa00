package apiserver

import (
	"time"

	"github.com/coreagent/runtime/pkg/event"
)

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Index   string `json:"index"`
}

// conversationResponse describes a conversation's current identity and
// status, returned by create/get.
type conversationResponse struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}

// conversationDetailResponse is returned by GET /conversations/:id and
// includes the full event history.
type conversationDetailResponse struct {
	ConversationID string        `json:"conversation_id"`
	Status         string        `json:"status"`
	Events         []event.Event `json:"events"`
}

// conversationRecordResponse is one row of a list/search result,
// mirroring indexstore.Record.
type conversationRecordResponse struct {
	ConversationID string    `json:"conversation_id"`
	Workspace      string    `json:"workspace"`
	AgentClass     string    `json:"agent_class"`
	Status         string    `json:"status"`
	Title          string    `json:"title"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// listConversationsResponse is returned by GET /conversations.
type listConversationsResponse struct {
	Conversations []conversationRecordResponse `json:"conversations"`
	TotalCount    int                          `json:"total_count"`
	Limit         int                          `json:"limit"`
	Offset        int                          `json:"offset"`
}

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error string `json:"error"`
}
