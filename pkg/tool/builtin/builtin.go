// Package builtin provides the finish and think tools every conversation
// registers unconditionally — the two tool calls the spec exempts from
// confirmation gating even under an AlwaysConfirm policy.
package builtin

import (
	"context"

	"github.com/coreagent/runtime/pkg/event"
	"github.com/coreagent/runtime/pkg/tool"
)

const (
	NameFinish = "finish"
	NameThink  = "think"
)

// Finish is the tool an agent calls to end its turn with a final answer.
type Finish struct{}

func (Finish) Name() string { return NameFinish }

func (Finish) Description() string {
	return "Signal that the task is complete and provide a final answer to the user."
}

func (Finish) SchemaJSON() string {
	return `{
		"type": "object",
		"properties": {
			"message": {"type": "string", "description": "Final answer or summary for the user."}
		},
		"required": ["message"]
	}`
}

func (Finish) Execute(_ context.Context, args map[string]any) (tool.Result, error) {
	return tool.Result{Payload: map[string]any{"message": args["message"]}}, nil
}

func (Finish) SecurityRisk(map[string]any) event.Risk { return event.RiskLow }

// Think is the tool an agent calls to record reasoning without taking any
// externally visible action — a no-op observation used for scratchpad
// thoughts the model wants logged as a distinct step.
type Think struct{}

func (Think) Name() string { return NameThink }

func (Think) Description() string {
	return "Record a reasoning note without performing any action."
}

func (Think) SchemaJSON() string {
	return `{
		"type": "object",
		"properties": {
			"thought": {"type": "string"}
		},
		"required": ["thought"]
	}`
}

func (Think) Execute(_ context.Context, args map[string]any) (tool.Result, error) {
	return tool.Result{Payload: map[string]any{"thought": args["thought"]}}, nil
}

func (Think) SecurityRisk(map[string]any) event.Risk { return event.RiskLow }
