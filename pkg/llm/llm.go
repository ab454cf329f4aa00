// Package llm defines the interface a conversation uses to call a
// language model, the streaming chunk shape callers consume, and the two
// tagged errors the step engine treats specially (context-window overflow
// and function-call validation failures).
package llm

import "context"

// Client is the interface the agent step engine calls to get the next
// model response for a conversation. A Client implementation owns its own
// transport (HTTP, gRPC, in-process); the core never assumes one.
type Client interface {
	// Generate sends a conversation to the model and returns a stream of
	// chunks. The returned channel is closed when the stream completes.
	// Non-fatal provider errors are delivered as ErrorChunk values in the
	// channel rather than as a returned error; Generate's error return is
	// reserved for failures that prevent the call from starting at all.
	Generate(ctx context.Context, input GenerateInput) (<-chan Chunk, error)
}

// GenerateInput is one request for the next model turn.
type GenerateInput struct {
	ConversationID string
	Messages       []Message
	Tools          []ToolDefinition // nil = no tools offered this turn
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in the conversation sent to the model.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall // populated on assistant messages
	ToolCallID string     // populated on tool-result messages
	ToolName   string     // populated on tool-result messages
}

// ToolDefinition describes one tool available to the model this turn.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string // JSON Schema, as advertised in a SystemPromptEvent
}

// ToolCall is the model's request to call a tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON as emitted by the model, pre-coercion
}

// Chunk is the closed set of streaming chunk variants a Generate call can
// emit. New variants require a new ChunkType and a case in every switch
// over it in this package.
type Chunk interface {
	ChunkType() ChunkType
}

// ChunkType discriminates Chunk variants.
type ChunkType string

const (
	ChunkTypeText     ChunkType = "text"
	ChunkTypeThinking ChunkType = "thinking"
	ChunkTypeToolCall ChunkType = "tool_call"
	ChunkTypeUsage    ChunkType = "usage"
	ChunkTypeError    ChunkType = "error"
)

// TextChunk carries a fragment of the model's text response.
type TextChunk struct{ Content string }

// ThinkingChunk carries a fragment of the model's internal reasoning.
type ThinkingChunk struct{ Content string }

// ToolCallChunk signals the model wants to call a tool.
type ToolCallChunk struct{ CallID, Name, Arguments string }

// UsageChunk reports token consumption for the call.
type UsageChunk struct{ PromptTokens, CompletionTokens, TotalTokens int }

// ErrorChunk signals a provider-level error mid-stream.
type ErrorChunk struct {
	Message   string
	Retryable bool
}

func (c *TextChunk) ChunkType() ChunkType     { return ChunkTypeText }
func (c *ThinkingChunk) ChunkType() ChunkType { return ChunkTypeThinking }
func (c *ToolCallChunk) ChunkType() ChunkType { return ChunkTypeToolCall }
func (c *UsageChunk) ChunkType() ChunkType    { return ChunkTypeUsage }
func (c *ErrorChunk) ChunkType() ChunkType    { return ChunkTypeError }

// ContextWindowExceeded is returned (wrapped) by a Client whose provider
// rejected the request because the conversation no longer fits the
// model's context window. The step engine treats this specially: it
// triggers the Condenser rather than surfacing a plain AgentErrorEvent.
type ContextWindowExceeded struct {
	Provider string
	Detail   string
}

func (e *ContextWindowExceeded) Error() string {
	if e.Provider == "" {
		return "llm: context window exceeded: " + e.Detail
	}
	return "llm: context window exceeded (" + e.Provider + "): " + e.Detail
}

// FunctionCallValidationError is returned (wrapped) by a Client when the
// provider itself rejects a malformed tool-call request before the model
// ever produces one — distinct from the core's own schema-coercion
// failures, which never reach the Client at all.
type FunctionCallValidationError struct {
	ToolName string
	Detail   string
}

func (e *FunctionCallValidationError) Error() string {
	return "llm: function call validation failed for " + e.ToolName + ": " + e.Detail
}
