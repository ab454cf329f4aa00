package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreagent/runtime/pkg/event"
)

func TestAnalyzerFunc(t *testing.T) {
	var f AnalyzerFunc = func(_ context.Context, toolName string, _ map[string]any) event.Risk {
		if toolName == "dangerous" {
			return event.RiskHigh
		}
		return event.RiskLow
	}
	assert.Equal(t, event.RiskHigh, f.Analyze(context.Background(), "dangerous", nil))
	assert.Equal(t, event.RiskLow, f.Analyze(context.Background(), "safe", nil))
}

func TestToolDeclared_NilRiskFn(t *testing.T) {
	a := NewToolDeclared(nil)
	assert.Equal(t, event.RiskUnknown, a.Analyze(context.Background(), "anything", nil))
}

func TestToolDeclared_DelegatesToRiskFn(t *testing.T) {
	a := NewToolDeclared(func(toolName string, args map[string]any) event.Risk {
		assert.Equal(t, "shell", toolName)
		return event.RiskMedium
	})
	assert.Equal(t, event.RiskMedium, a.Analyze(context.Background(), "shell", nil))
}

func TestDenylist_MatchEscalates(t *testing.T) {
	d := &Denylist{
		Rules: []DenylistRule{
			{ToolName: "shell", ArgKey: "command", Contains: "rm -rf", EscalateTo: event.RiskHigh},
		},
	}
	risk := d.Analyze(context.Background(), "shell", map[string]any{"command": "rm -rf /"})
	assert.Equal(t, event.RiskHigh, risk)
}

func TestDenylist_NoMatchFallsBackToFallback(t *testing.T) {
	d := &Denylist{
		Rules:    []DenylistRule{{ToolName: "shell", ArgKey: "command", Contains: "rm -rf", EscalateTo: event.RiskHigh}},
		Fallback: NewToolDeclared(func(string, map[string]any) event.Risk { return event.RiskLow }),
	}
	risk := d.Analyze(context.Background(), "shell", map[string]any{"command": "ls"})
	assert.Equal(t, event.RiskLow, risk)
}

func TestDenylist_NoMatchNoFallback(t *testing.T) {
	d := &Denylist{}
	risk := d.Analyze(context.Background(), "anything", nil)
	assert.Equal(t, event.RiskUnknown, risk)
}

func TestDenylist_RuleAppliesToAnyToolWhenToolNameEmpty(t *testing.T) {
	d := &Denylist{
		Rules: []DenylistRule{{ArgKey: "command", Contains: "rm -rf", EscalateTo: event.RiskHigh}},
	}
	risk := d.Analyze(context.Background(), "any-tool", map[string]any{"command": "rm -rf /tmp"})
	assert.Equal(t, event.RiskHigh, risk)
}

func TestDenylist_NonStringArgSkipsRule(t *testing.T) {
	d := &Denylist{
		Rules:    []DenylistRule{{ToolName: "shell", ArgKey: "command", Contains: "x", EscalateTo: event.RiskHigh}},
		Fallback: NewToolDeclared(func(string, map[string]any) event.Risk { return event.RiskLow }),
	}
	risk := d.Analyze(context.Background(), "shell", map[string]any{"command": 123})
	assert.Equal(t, event.RiskLow, risk)
}

func TestDenylist_EmptyContainsMatchesAnyValue(t *testing.T) {
	d := &Denylist{
		Rules: []DenylistRule{{ToolName: "shell", ArgKey: "command", EscalateTo: event.RiskHigh}},
	}
	risk := d.Analyze(context.Background(), "shell", map[string]any{"command": "anything"})
	assert.Equal(t, event.RiskHigh, risk)
}
