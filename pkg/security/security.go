// Package security defines the SecurityAnalyzer contract used to classify
// the risk level of a pending tool call before it is dispatched.
package security

import (
	"context"
	"strings"

	"github.com/coreagent/runtime/pkg/event"
)

// Analyzer classifies the risk of calling toolName with args. Called once
// per ActionEvent before the confirmation gate and before execution.
type Analyzer interface {
	Analyze(ctx context.Context, toolName string, args map[string]any) event.Risk
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, toolName string, args map[string]any) event.Risk

func (f AnalyzerFunc) Analyze(ctx context.Context, toolName string, args map[string]any) event.Risk {
	return f(ctx, toolName, args)
}

// SecurityRiskArgKey is the tool-call argument key an LLMSecurityAnalyzer
// reads the model's self-labeled risk from. It doubles as the schema
// property name every tool advertises (pkg/tool.Registry.Schemas),
// regardless of which analyzer is configured — see the
// "SecurityAnalyzer & ConfirmationPolicy" section of the spec for why the
// schema stays stable across analyzer configurations.
const SecurityRiskArgKey = "security_risk"

// RequiresSecurityRiskArg is implemented by analyzers that delegate risk
// classification to the model itself. When an Engine's configured
// Analyzer satisfies this interface and reports true, the step engine
// must reject any non-exempt tool call missing a security_risk argument
// rather than calling Analyze at all (§4.5, §7 "Protocol" error).
type RequiresSecurityRiskArg interface {
	RequiresSecurityRiskArg() bool
}

// LLMSecurityAnalyzer delegates risk classification to the model itself:
// the LLM is required to self-label each non-exempt tool call with a
// security_risk argument, which the step engine reads directly rather
// than computing a risk from the call's other arguments. Analyze is still
// implemented so this type satisfies Analyzer on its own (e.g. when
// called outside the step engine), falling back to RiskUnknown for any
// value it doesn't recognize — a weak guarantee the spec accepts in
// exchange for a schema-stable confirmation gate.
type LLMSecurityAnalyzer struct{}

// RequiresSecurityRiskArg reports true: this analyzer cannot classify a
// call that omits the self-labeled risk.
func (LLMSecurityAnalyzer) RequiresSecurityRiskArg() bool { return true }

func (LLMSecurityAnalyzer) Analyze(_ context.Context, _ string, args map[string]any) event.Risk {
	raw, ok := args[SecurityRiskArgKey].(string)
	if !ok {
		return event.RiskUnknown
	}
	switch event.Risk(raw) {
	case event.RiskLow, event.RiskMedium, event.RiskHigh, event.RiskUnknown:
		return event.Risk(raw)
	default:
		return event.RiskUnknown
	}
}

// ToolDeclared defers to the Tool itself (via its SecurityRisk method),
// falling back to RiskUnknown when the tool has no opinion. This is the
// default analyzer: most tools know their own risk profile better than a
// generic classifier would.
type ToolDeclared struct {
	risk func(toolName string, args map[string]any) event.Risk
}

// NewToolDeclared builds a ToolDeclared analyzer backed by riskFn, typically
// a closure over a tool.Registry's Get+SecurityRisk.
func NewToolDeclared(riskFn func(toolName string, args map[string]any) event.Risk) *ToolDeclared {
	return &ToolDeclared{risk: riskFn}
}

func (a *ToolDeclared) Analyze(_ context.Context, toolName string, args map[string]any) event.Risk {
	if a.risk == nil {
		return event.RiskUnknown
	}
	return a.risk(toolName, args)
}

// DenylistRule escalates specific (tool, arg-substring) combinations to a
// fixed risk level regardless of what the tool itself declares — e.g.
// flagging any shell-execution tool whose command contains "rm -rf".
type DenylistRule struct {
	ToolName    string
	ArgKey      string
	Contains    string
	EscalateTo  event.Risk
}

// Denylist wraps an underlying Analyzer and escalates matches against its
// rule set, grounded on a pattern-match classifier in the style of the
// teacher's masking detectors (pkg/masking/pattern.go) applied to tool
// risk instead of secret detection.
type Denylist struct {
	Rules     []DenylistRule
	Fallback  Analyzer
}

func (d *Denylist) Analyze(ctx context.Context, toolName string, args map[string]any) event.Risk {
	for _, rule := range d.Rules {
		if rule.ToolName != "" && rule.ToolName != toolName {
			continue
		}
		val, ok := args[rule.ArgKey].(string)
		if !ok {
			continue
		}
		if rule.Contains == "" || strings.Contains(val, rule.Contains) {
			return rule.EscalateTo
		}
	}
	if d.Fallback == nil {
		return event.RiskUnknown
	}
	return d.Fallback.Analyze(ctx, toolName, args)
}
