package confirm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coreagent/runtime/pkg/event"
	"github.com/coreagent/runtime/pkg/tool/builtin"
)

func TestNeverConfirm(t *testing.T) {
	p := NeverConfirm{}
	assert.False(t, p.RequiresConfirmation([]PendingAction{{ToolName: "rm", Risk: event.RiskHigh}}))
}

func TestAlwaysConfirm_NonExemptRequiresConfirmation(t *testing.T) {
	p := AlwaysConfirm{}
	assert.True(t, p.RequiresConfirmation([]PendingAction{{ToolName: "shell", Risk: event.RiskLow}}))
}

func TestAlwaysConfirm_OnlyExemptActionsSkip(t *testing.T) {
	p := AlwaysConfirm{}
	batch := []PendingAction{
		{ToolName: builtin.NameFinish, Risk: event.RiskLow},
		{ToolName: builtin.NameThink, Risk: event.RiskLow},
	}
	assert.False(t, p.RequiresConfirmation(batch))
}

func TestAlwaysConfirm_EmptyBatch(t *testing.T) {
	p := AlwaysConfirm{}
	assert.False(t, p.RequiresConfirmation(nil))
}

func TestNewConfirmRisky_DefaultsToMedium(t *testing.T) {
	p := NewConfirmRisky("")
	assert.Equal(t, event.RiskMedium, p.Threshold)
}

func TestConfirmRisky_BelowThresholdSkips(t *testing.T) {
	p := NewConfirmRisky(event.RiskHigh)
	batch := []PendingAction{{ToolName: "shell", Risk: event.RiskMedium}}
	assert.False(t, p.RequiresConfirmation(batch))
}

func TestConfirmRisky_AtThresholdConfirms(t *testing.T) {
	p := NewConfirmRisky(event.RiskMedium)
	batch := []PendingAction{{ToolName: "shell", Risk: event.RiskMedium}}
	assert.True(t, p.RequiresConfirmation(batch))
}

func TestConfirmRisky_AboveThresholdConfirms(t *testing.T) {
	p := NewConfirmRisky(event.RiskMedium)
	batch := []PendingAction{{ToolName: "shell", Risk: event.RiskHigh}}
	assert.True(t, p.RequiresConfirmation(batch))
}

func TestConfirmRisky_OneRiskyAmongManySafeStillConfirms(t *testing.T) {
	p := NewConfirmRisky(event.RiskHigh)
	batch := []PendingAction{
		{ToolName: "read", Risk: event.RiskLow},
		{ToolName: "shell", Risk: event.RiskHigh},
		{ToolName: "read2", Risk: event.RiskLow},
	}
	assert.True(t, p.RequiresConfirmation(batch))
}

func TestConfirmRisky_ExemptActionsNeverCountEvenIfRisky(t *testing.T) {
	p := NewConfirmRisky(event.RiskLow)
	batch := []PendingAction{{ToolName: builtin.NameFinish, Risk: event.RiskHigh}}
	assert.False(t, p.RequiresConfirmation(batch))
}

func TestConfirmRisky_UnknownRiskTreatedAboveLow(t *testing.T) {
	p := NewConfirmRisky(event.RiskMedium)
	batch := []PendingAction{{ToolName: "mystery", Risk: event.RiskUnknown}}
	assert.False(t, p.RequiresConfirmation(batch), "unknown sits below medium in risk ordering")
}
