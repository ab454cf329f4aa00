// Package event defines the closed set of events that make up a
// conversation's append-only history. Events are immutable once created;
// the only way to "change" history is to append a new event (e.g. a
// Condensation that logically replaces an older prefix at read time).
package event

import "time"

// Source identifies who or what produced an event.
type Source string

const (
	SourceUser        Source = "user"
	SourceAgent        Source = "agent"
	SourceEnvironment Source = "environment"
)

// Kind discriminates the event variants on the wire. New variants require
// a new Kind constant and a case in every switch over Kind in this module —
// there is no open inheritance hierarchy here.
type Kind string

const (
	KindSystemPrompt           Kind = "system_prompt"
	KindMessage                Kind = "message"
	KindAction                 Kind = "action"
	KindObservation            Kind = "observation"
	KindAgentError             Kind = "agent_error"
	KindUserRejectObservation  Kind = "user_reject_observation"
	KindCondensationRequest    Kind = "condensation_request"
	KindCondensation           Kind = "condensation"
	KindPause                  Kind = "pause"
	KindConversationError      Kind = "conversation_error"
	KindToken                  Kind = "token"
	KindConversationStateUpdate Kind = "conversation_state_update"
)

// Role is the sender role on a MessageEvent.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Risk is the security classification attached to an ActionEvent.
type Risk string

const (
	RiskLow     Risk = "low"
	RiskMedium  Risk = "medium"
	RiskHigh    Risk = "high"
	RiskUnknown Risk = "unknown"
)

// ThinkingBlock is a provider-specific chunk of model "thinking" content,
// carried opaquely by the core (it never interprets the content).
type ThinkingBlock struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ContentBlock is one element of a message's content list. Only Text is
// populated for the core's own scenarios; Data is reserved for
// non-textual content a Tool/LLM client pair may exchange.
type ContentBlock struct {
	Text string `json:"text,omitempty"`
	Data []byte `json:"data,omitempty"`
}

// Event is the common envelope every variant embeds. ID is a short opaque
// string, unique within a conversation. Timestamp is sub-second precision
// and monotonic with respect to append order (not wall-clock guaranteed
// under clock skew, but the EventLog's own ordering is by index, not
// timestamp).
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	Kind      Kind       `json:"kind"`

	SystemPrompt           *SystemPromptEvent           `json:"system_prompt,omitempty"`
	Message                *MessageEvent                `json:"message,omitempty"`
	Action                 *ActionEvent                 `json:"action,omitempty"`
	Observation            *ObservationEvent            `json:"observation,omitempty"`
	AgentError             *AgentErrorEvent             `json:"agent_error,omitempty"`
	UserRejectObservation  *UserRejectObservationEvent  `json:"user_reject_observation,omitempty"`
	CondensationRequest    *CondensationRequestEvent    `json:"condensation_request,omitempty"`
	Condensation           *CondensationEvent           `json:"condensation,omitempty"`
	Pause                  *PauseEvent                  `json:"pause,omitempty"`
	ConversationError      *ConversationErrorEvent      `json:"conversation_error,omitempty"`
	Token                  *TokenEvent                  `json:"token,omitempty"`
	ConversationStateUpdate *ConversationStateUpdateEvent `json:"conversation_state_update,omitempty"`
}

// ToolSchema describes one tool's name/schema pair as presented to the LLM
// in the system prompt. Kept intentionally opaque (raw JSON Schema text) —
// the core does not interpret tool schemas itself, ToolRegistry does.
type ToolSchema struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
}

type SystemPromptEvent struct {
	PromptText  string       `json:"prompt_text"`
	ToolSchemas []ToolSchema `json:"tool_schemas,omitempty"`
}

type MessageEvent struct {
	Role               Role            `json:"role"`
	Content            []ContentBlock  `json:"content"`
	ActivatedSkills    []string        `json:"activated_skills,omitempty"`
	Sender             string          `json:"sender,omitempty"`
	ReasoningContent   string          `json:"reasoning_content,omitempty"`
	ThinkingBlocks     []ThinkingBlock `json:"thinking_blocks,omitempty"`
}

// Text concatenates the text content blocks, the common case for scenarios
// and stuck-detection equality checks.
func (m *MessageEvent) Text() string {
	var out string
	for _, c := range m.Content {
		out += c.Text
	}
	return out
}

// ActionEvent is an intention to call a tool, produced by the LLM.
// ActionPayload is nil when the tool call was malformed — the event still
// persists so the matching tool_call_id survives for the next LLM turn
// (§4.4 of the spec).
type ActionEvent struct {
	ToolName         string          `json:"tool_name"`
	ToolCallID       string          `json:"tool_call_id"`
	LLMResponseID    string          `json:"llm_response_id"`
	ActionPayload    map[string]any  `json:"action_payload,omitempty"`
	Thought          []ContentBlock  `json:"thought,omitempty"`
	SecurityRisk     Risk            `json:"security_risk"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	ThinkingBlocks   []ThinkingBlock `json:"thinking_blocks,omitempty"`
}

type ObservationEvent struct {
	ToolName           string         `json:"tool_name"`
	ToolCallID         string         `json:"tool_call_id"`
	ActionID           string         `json:"action_id"`
	ObservationPayload map[string]any `json:"observation_payload,omitempty"`
	IsError            bool           `json:"is_error"`
}

type AgentErrorEvent struct {
	Error      string `json:"error"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

type UserRejectObservationEvent struct {
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id"`
	ActionID   string `json:"action_id"`
	Reason     string `json:"reason"`
}

type CondensationRequestEvent struct{}

type CondensationEvent struct {
	Summary   string   `json:"summary"`
	DroppedIDs []string `json:"dropped_ids,omitempty"`
}

type PauseEvent struct{}

type ConversationErrorEvent struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type TokenEvent struct {
	PromptIDs   []string `json:"prompt_ids,omitempty"`
	ResponseIDs []string `json:"response_ids,omitempty"`
}

type ConversationStateUpdateEvent struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}
