package persistence

import (
	"errors"
	"fmt"
	"sort"
)

// ErrReconciliationFailed is returned when a resumed conversation's
// runtime configuration is incompatible with what was persisted.
var ErrReconciliationFailed = errors.New("persistence: reconciliation failed")

// RuntimeConfig is the subset of a conversation's construction-time
// configuration the Reconciler checks against a resumed BaseState.
type RuntimeConfig struct {
	// AgentClass identifies the concrete agent/engine implementation in
	// use (e.g. a Go type name or configured agent id). Must match
	// exactly between persisted and runtime — swapping agent
	// implementations mid-conversation is not supported.
	AgentClass string
	// ToolNames is the set of tools the runtime is configured with now.
	ToolNames []string
	// SecurityAnalyzer names the configured analyzer. Runtime wins on
	// mismatch — this can legitimately change between resumes (e.g. a
	// stricter analyzer shipped in a new release).
	SecurityAnalyzer string
	// LiteLLMExtraBody is passed straight through to the LLM client.
	// Runtime wins on mismatch for the same reason as SecurityAnalyzer.
	LiteLLMExtraBody map[string]any
}

// Reconciled is the outcome of reconciling a persisted BaseState against
// the current RuntimeConfig: the fields the conversation should actually
// run with.
type Reconciled struct {
	SecurityAnalyzer string
	LiteLLMExtraBody map[string]any
}

// Reconcile checks persisted against rt and returns the effective
// configuration to run with, or ErrReconciliationFailed if persisted and
// rt are incompatible.
//
// Rules:
//  1. AgentClass must be identical — a resumed conversation cannot change
//     which agent implementation is driving it.
//  2. ToolNames must match exactly (as sets) — the persisted history's
//     ActionEvents reference tools by name; a missing or renamed tool
//     would make resumed actions unexecutable.
//  3. SecurityAnalyzer and LiteLLMExtraBody always take the runtime's
//     current value — these are safe, and often desirable, to change
//     across a resume (e.g. deploying a new analyzer version).
//  4. Secret-bearing LLM-facing fields carried in persisted state (the
//     BaseState.SecretsPayload) are never read back into runtime
//     messages directly — the caller must route them through
//     pkg/secrets.Registry.Load, never treat them as plain config.
func Reconcile(persisted *BaseState, rt RuntimeConfig) (Reconciled, error) {
	if persisted == nil {
		// brand-new conversation, nothing to reconcile against
		return Reconciled{SecurityAnalyzer: rt.SecurityAnalyzer, LiteLLMExtraBody: rt.LiteLLMExtraBody}, nil
	}

	if persisted.AgentClass != "" && rt.AgentClass != "" && persisted.AgentClass != rt.AgentClass {
		return Reconciled{}, fmt.Errorf("%w: agent class changed: persisted=%q runtime=%q",
			ErrReconciliationFailed, persisted.AgentClass, rt.AgentClass)
	}

	if !sameToolSet(persisted.ToolNames, rt.ToolNames) {
		return Reconciled{}, fmt.Errorf("%w: tool set changed: persisted=%v runtime=%v",
			ErrReconciliationFailed, persisted.ToolNames, rt.ToolNames)
	}

	return Reconciled{
		SecurityAnalyzer: rt.SecurityAnalyzer,
		LiteLLMExtraBody: rt.LiteLLMExtraBody,
	}, nil
}

func sameToolSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
