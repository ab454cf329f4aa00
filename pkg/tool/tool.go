// Package tool defines the Tool contract and ToolRegistry that the agent
// step engine dispatches actions through.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/coreagent/runtime/pkg/event"
)

// ErrUnknownTool is returned when an action names a tool the registry has
// never seen.
var ErrUnknownTool = errors.New("tool: unknown tool")

// ErrValidation wraps a jsonschema validation failure against a tool's
// declared argument schema.
type ErrValidation struct {
	ToolName string
	Err      error
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("tool: %s: argument validation failed: %v", e.ToolName, e.Err)
}

func (e *ErrValidation) Unwrap() error { return e.Err }

// Result is what a Tool returns after executing. Payload becomes an
// ObservationEvent's ObservationPayload; IsError marks the call as a
// tool-level failure (still a successful dispatch, just a failed
// operation — distinct from a malformed call that never reaches Execute).
type Result struct {
	Payload map[string]any
	IsError bool
}

// Tool is one callable action the LLM may invoke. Name and SchemaJSON are
// advertised to the LLM via a SystemPromptEvent's ToolSchemas.
type Tool interface {
	Name() string
	SchemaJSON() string
	Description() string
	// Execute runs the tool against already-coerced, already-validated
	// args and returns the observation payload.
	Execute(ctx context.Context, args map[string]any) (Result, error)
	// SecurityRisk classifies this specific call for the confirmation
	// gate, given its (coerced) arguments. Tools with no opinion should
	// return event.RiskUnknown and let the conversation's configured
	// SecurityAnalyzer decide.
	SecurityRisk(args map[string]any) event.Risk
}

// Registry holds the set of tools available to a conversation. Safe for
// concurrent use; typically built once at conversation startup and not
// mutated afterward, though Register/Unregister are safe mid-run (e.g. an
// MCP server reconnect refreshing its tool list).
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	schema map[string]*jsonschema.Schema
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		schema: make(map[string]*jsonschema.Schema),
	}
}

// Register adds t to the registry, compiling its declared JSON schema
// once so every Validate call reuses the compiled form.
func (r *Registry) Register(t Tool) error {
	compiled, err := jsonschema.CompileString(t.Name()+".json", t.SchemaJSON())
	if err != nil {
		return fmt.Errorf("tool: compile schema for %s: %w", t.Name(), err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.schema[t.Name()] = compiled
	return nil
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schema, name)
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	return out
}

// Schemas returns the event.ToolSchema list presented to the LLM in the
// system prompt. Every schema carries a security_risk property (see
// withSecurityRiskProperty) regardless of which SecurityAnalyzer the
// conversation is configured with, so the schema never churns when the
// analyzer changes between turns.
func (r *Registry) Schemas() []event.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]event.ToolSchema, 0, len(r.tools))
	for name, t := range r.tools {
		out = append(out, event.ToolSchema{Name: name, Schema: withSecurityRiskProperty(t.SchemaJSON())})
	}
	return out
}

// Validate coerces args (see coerce.go) against name's declared schema
// and returns the coerced map ready for Execute. It is the single place
// §4.4's "LLM mistake" tolerance is implemented: JSON-encoded strings in
// place of objects/arrays, numeric strings in place of numbers, etc.
func (r *Registry) Validate(name string, rawArgs map[string]any) (map[string]any, error) {
	r.mu.RLock()
	schema, ok := r.schema[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	coerced := CoerceArgs(rawArgs)

	// jsonschema validates against any-typed Go values best when they've
	// round-tripped through the same decoder it expects (map[string]any,
	// []any, float64/string/bool/nil) — CoerceArgs already produces that
	// shape, so validate directly.
	if err := schema.ValidateInterface(coerced); err != nil {
		return nil, &ErrValidation{ToolName: name, Err: err}
	}
	return coerced, nil
}

// Execute looks up name and runs it against already-validated args.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Execute(ctx, args)
}
