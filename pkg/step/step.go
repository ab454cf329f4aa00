// Package step implements the AgentStepEngine: the single-step
// prepare→call-LLM→parse→security-gate→execute→observe contract that
// drives one iteration of an agent's turn.
package step

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/coreagent/runtime/pkg/confirm"
	"github.com/coreagent/runtime/pkg/event"
	"github.com/coreagent/runtime/pkg/llm"
	"github.com/coreagent/runtime/pkg/mcp"
	"github.com/coreagent/runtime/pkg/security"
	"github.com/coreagent/runtime/pkg/tool"
	"github.com/coreagent/runtime/pkg/tool/builtin"
)

// Masker redacts secret-shaped data out of an MCP server's tool
// observations before they are appended to the event log or sent back to
// the LLM. Satisfied by *masking.Service; nil-safe when unset.
type Masker interface {
	MaskObservation(content, serverID string) string
}

// Outcome classifies what a single Step produced, so the conversation
// runner knows whether to loop again, pause, or stop.
type Outcome string

const (
	OutcomeContinue              Outcome = "continue"               // more actions to take, keep looping
	OutcomeFinished              Outcome = "finished"                // the finish tool ran, or the assistant produced a plain message with no tool calls
	OutcomeWaitingForConfirmation Outcome = "waiting_for_confirmation" // a risky batch needs user confirmation
	OutcomeContextWindowExceeded Outcome = "context_window_exceeded" // caller should condense and retry
)

// Engine runs one agent step: a single LLM call, its resulting tool
// calls, and (unless confirmation is required) their execution.
type Engine struct {
	LLM      llm.Client
	Tools    *tool.Registry
	Analyzer security.Analyzer
	Policy   confirm.Policy
	Masker   Masker // optional; masks observations from namespaced "server.tool" MCP tools
	Logger   *slog.Logger
}

// New builds an Engine. A nil Logger defaults to slog.Default().
func New(client llm.Client, tools *tool.Registry, analyzer security.Analyzer, policy confirm.Policy, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{LLM: client, Tools: tools, Analyzer: analyzer, Policy: policy, Logger: logger}
}

// Result is everything one Step call produced, for the caller to append
// to the event log.
type Result struct {
	Outcome      Outcome
	NewEvents    []event.Event
	PendingBatch []event.Event // the ActionEvents awaiting confirmation, when Outcome == OutcomeWaitingForConfirmation
}

// Step runs a single step given the current event history (used to build
// the LLM prompt) and returns what happened. It does not mutate history
// itself — the caller appends Result.NewEvents to the EventLog and drives
// ConversationState transitions based on Outcome.
func (e *Engine) Step(ctx context.Context, history []event.Event) (Result, error) {
	messages := toLLMMessages(history)
	toolDefs := toToolDefinitions(e.Tools)

	ch, err := e.LLM.Generate(ctx, llm.GenerateInput{Messages: messages, Tools: toolDefs})
	if err != nil {
		var cwe *llm.ContextWindowExceeded
		if errors.As(err, &cwe) {
			return Result{Outcome: OutcomeContextWindowExceeded}, nil
		}
		var fcv *llm.FunctionCallValidationError
		if errors.As(err, &fcv) {
			return Result{Outcome: OutcomeContinue, NewEvents: []event.Event{functionCallValidationEvent(fcv)}}, nil
		}
		return Result{}, fmt.Errorf("step: llm generate: %w", err)
	}

	text, toolCalls, usage, streamErr := collect(ch)
	if streamErr != nil {
		var cwe *llm.ContextWindowExceeded
		if errors.As(streamErr, &cwe) {
			return Result{Outcome: OutcomeContextWindowExceeded}, nil
		}
		var fcv *llm.FunctionCallValidationError
		if errors.As(streamErr, &fcv) {
			return Result{Outcome: OutcomeContinue, NewEvents: []event.Event{functionCallValidationEvent(fcv)}}, nil
		}
		return Result{}, fmt.Errorf("step: llm stream: %w", streamErr)
	}

	var newEvents []event.Event
	if text != "" {
		newEvents = append(newEvents, event.Event{
			ID:     uuid.NewString(),
			Source: event.SourceAgent,
			Kind:   event.KindMessage,
			Message: &event.MessageEvent{
				Role:    event.RoleAssistant,
				Content: []event.ContentBlock{{Text: text}},
			},
		})
	}

	_ = usage // token accounting is surfaced by the conversation runner's callbacks, not a history event

	if len(toolCalls) == 0 {
		// A plain assistant message with no tool calls ends the turn (§4.8
		// step 9) — the caller transitions to FINISHED.
		return Result{Outcome: OutcomeFinished, NewEvents: newEvents}, nil
	}

	actionEvents, pending := e.toActions(toolCalls)
	newEvents = append(newEvents, actionEvents...)

	if e.Policy != nil && e.Policy.RequiresConfirmation(pending) {
		return Result{Outcome: OutcomeWaitingForConfirmation, NewEvents: newEvents, PendingBatch: actionEvents}, nil
	}

	obsEvents, outcome := e.executeBatch(ctx, actionEvents)
	newEvents = append(newEvents, obsEvents...)

	return Result{Outcome: outcome, NewEvents: newEvents}, nil
}

// ExecutePending runs a batch of previously-confirmed actions — called by
// the conversation runner after the user approves a confirmation request.
func (e *Engine) ExecutePending(ctx context.Context, actions []event.Event) ([]event.Event, Outcome) {
	return e.executeBatch(ctx, actions)
}

func (e *Engine) executeBatch(ctx context.Context, actions []event.Event) ([]event.Event, Outcome) {
	var obsEvents []event.Event
	for _, action := range actions {
		if action.Action.ActionPayload == nil {
			// malformed call: already recorded as an AgentErrorEvent at
			// construction time in toActions, nothing to execute.
			continue
		}
		if action.Action.ToolName == builtin.NameFinish {
			obsEvents = append(obsEvents, finishObservation(action))
			return obsEvents, OutcomeFinished
		}

		validated, err := e.Tools.Validate(action.Action.ToolName, action.Action.ActionPayload)
		if err != nil {
			obsEvents = append(obsEvents, errorEventFor(action, err))
			continue
		}

		res, err := e.Tools.Execute(ctx, action.Action.ToolName, validated)
		if err != nil {
			obsEvents = append(obsEvents, errorEventFor(action, err))
			continue
		}
		obsEvents = append(obsEvents, event.Event{
			ID:     uuid.NewString(),
			Source: event.SourceEnvironment,
			Kind:   event.KindObservation,
			Observation: &event.ObservationEvent{
				ToolName:           action.Action.ToolName,
				ToolCallID:         action.Action.ToolCallID,
				ActionID:           action.ID,
				ObservationPayload: e.maskPayload(action.Action.ToolName, res.Payload),
				IsError:            res.IsError,
			},
		})
	}
	return obsEvents, OutcomeContinue
}

// maskPayload redacts secret-shaped data from an observation payload.
// Only applies to bridged MCP tools ("server.tool" names) with a
// configured Masker — local builtin tools are trusted as-is.
func (e *Engine) maskPayload(toolName string, payload map[string]any) map[string]any {
	if e.Masker == nil || payload == nil {
		return payload
	}
	serverID, _, err := mcp.SplitToolName(toolName)
	if err != nil {
		return payload
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return payload
	}
	masked := e.Masker.MaskObservation(string(raw), serverID)
	if masked == string(raw) {
		return payload
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(masked), &out); err != nil {
		// Masking rewrote the JSON into non-JSON (e.g. the code masker
		// or a redaction notice) — surface it as a single string field
		// rather than dropping the observation.
		return map[string]any{"content": masked}
	}
	return out
}

// functionCallValidationEvent builds the synthetic user message the step
// engine emits when the provider itself rejects a tool-call request
// (§4.8 step 4): a plain MessageEvent explaining the rejection, appended
// as if from the user so the LLM sees it as conversational input and
// self-corrects on its next turn.
func functionCallValidationEvent(fcv *llm.FunctionCallValidationError) event.Event {
	return event.Event{
		ID:     uuid.NewString(),
		Source: event.SourceUser,
		Kind:   event.KindMessage,
		Message: &event.MessageEvent{
			Role: event.RoleUser,
			Content: []event.ContentBlock{{
				Text: fmt.Sprintf("Your call to %q was rejected by the provider: %s. Please correct the arguments and try again.", fcv.ToolName, fcv.Detail),
			}},
		},
	}
}

func finishObservation(action event.Event) event.Event {
	return event.Event{
		ID:     uuid.NewString(),
		Source: event.SourceEnvironment,
		Kind:   event.KindObservation,
		Observation: &event.ObservationEvent{
			ToolName:           action.Action.ToolName,
			ToolCallID:         action.Action.ToolCallID,
			ActionID:           action.ID,
			ObservationPayload: action.Action.ActionPayload,
		},
	}
}

func errorEventFor(action event.Event, err error) event.Event {
	return event.Event{
		ID:     uuid.NewString(),
		Source: event.SourceEnvironment,
		Kind:   event.KindAgentError,
		AgentError: &event.AgentErrorEvent{
			Error:      err.Error(),
			ToolName:   action.Action.ToolName,
			ToolCallID: action.Action.ToolCallID,
		},
	}
}

// toActions converts raw LLM tool calls into ActionEvents, classifying
// each with the security analyzer and handling malformed-argument calls
// per §4.4: the ActionEvent still persists (ActionPayload nil) and an
// AgentErrorEvent follows it so the tool_call_id's slot is filled for the
// next LLM turn.
func (e *Engine) toActions(calls []llm.ToolCallChunk) ([]event.Event, []confirm.PendingAction) {
	events := make([]event.Event, 0, len(calls))
	pending := make([]confirm.PendingAction, 0, len(calls))

	requiresSelfLabel := false
	if rs, ok := e.Analyzer.(security.RequiresSecurityRiskArg); ok {
		requiresSelfLabel = rs.RequiresSecurityRiskArg()
	}

	for _, call := range calls {
		var args map[string]any
		malformed := json.Unmarshal([]byte(call.Arguments), &args) != nil

		risk := event.RiskUnknown
		protocolErr := ""

		if !malformed {
			exempt := call.Name == builtin.NameFinish || call.Name == builtin.NameThink
			if requiresSelfLabel && !exempt {
				raw, ok := args[security.SecurityRiskArgKey].(string)
				if !ok || raw == "" {
					protocolErr = fmt.Sprintf("protocol error: missing required %s argument", security.SecurityRiskArgKey)
				}
			}
			if protocolErr == "" && e.Analyzer != nil {
				risk = e.Analyzer.Analyze(context.Background(), call.Name, args)
			}
			// security_risk is a protocol field, not a tool argument — it
			// never reaches Validate/Execute.
			delete(args, security.SecurityRiskArgKey)
		}

		actionID := uuid.NewString()
		action := event.Event{
			ID:     actionID,
			Source: event.SourceAgent,
			Kind:   event.KindAction,
			Action: &event.ActionEvent{
				ToolName:      call.Name,
				ToolCallID:    call.CallID,
				ActionPayload: args,
				SecurityRisk:  risk,
			},
		}
		if malformed || protocolErr != "" {
			action.Action.ActionPayload = nil
		}
		events = append(events, action)
		pending = append(pending, confirm.PendingAction{ToolName: call.Name, Risk: risk})

		switch {
		case malformed:
			events = append(events, event.Event{
				ID:     uuid.NewString(),
				Source: event.SourceEnvironment,
				Kind:   event.KindAgentError,
				AgentError: &event.AgentErrorEvent{
					Error:      "malformed tool call arguments: not valid JSON",
					ToolName:   call.Name,
					ToolCallID: call.CallID,
				},
			})
		case protocolErr != "":
			events = append(events, event.Event{
				ID:     uuid.NewString(),
				Source: event.SourceEnvironment,
				Kind:   event.KindAgentError,
				AgentError: &event.AgentErrorEvent{
					Error:      protocolErr,
					ToolName:   call.Name,
					ToolCallID: call.CallID,
				},
			})
		}
	}
	return events, pending
}

func collect(ch <-chan llm.Chunk) (text string, calls []llm.ToolCallChunk, usage *llm.UsageChunk, err error) {
	var sb []byte
	for chunk := range ch {
		switch c := chunk.(type) {
		case *llm.TextChunk:
			sb = append(sb, c.Content...)
		case *llm.ToolCallChunk:
			calls = append(calls, *c)
		case *llm.UsageChunk:
			usage = c
		case *llm.ErrorChunk:
			if !c.Retryable {
				err = fmt.Errorf("step: provider error: %s", c.Message)
			}
		}
	}
	return string(sb), calls, usage, err
}

func toLLMMessages(history []event.Event) []llm.Message {
	var out []llm.Message
	for _, ev := range history {
		switch ev.Kind {
		case event.KindSystemPrompt:
			out = append(out, llm.Message{Role: llm.RoleSystem, Content: ev.SystemPrompt.PromptText})
		case event.KindMessage:
			role := llm.RoleUser
			if ev.Message.Role == event.RoleAssistant {
				role = llm.RoleAssistant
			}
			out = append(out, llm.Message{Role: role, Content: ev.Message.Text()})
		case event.KindAction:
			if ev.Action.ActionPayload == nil {
				continue
			}
			args, _ := json.Marshal(ev.Action.ActionPayload)
			out = append(out, llm.Message{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{
					ID:        ev.Action.ToolCallID,
					Name:      ev.Action.ToolName,
					Arguments: string(args),
				}},
			})
		case event.KindObservation:
			payload, _ := json.Marshal(ev.Observation.ObservationPayload)
			out = append(out, llm.Message{
				Role:       llm.RoleTool,
				Content:    string(payload),
				ToolCallID: ev.Observation.ToolCallID,
				ToolName:   ev.Observation.ToolName,
			})
		case event.KindAgentError:
			out = append(out, llm.Message{
				Role:       llm.RoleTool,
				Content:    "error: " + ev.AgentError.Error,
				ToolCallID: ev.AgentError.ToolCallID,
				ToolName:   ev.AgentError.ToolName,
			})
		}
	}
	return out
}

func toToolDefinitions(reg *tool.Registry) []llm.ToolDefinition {
	if reg == nil {
		return nil
	}
	var out []llm.ToolDefinition
	for _, s := range reg.Schemas() {
		t, ok := reg.Get(s.Name)
		desc := ""
		if ok {
			desc = t.Description()
		}
		out = append(out, llm.ToolDefinition{Name: s.Name, Description: desc, ParametersSchema: s.Schema})
	}
	return out
}
