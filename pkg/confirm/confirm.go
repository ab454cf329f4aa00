// Package confirm implements the ConfirmationPolicy variants that decide,
// given a batch of pending ActionEvents and their analyzed risk levels,
// whether the conversation must pause for user confirmation before
// dispatching them.
package confirm

import (
	"github.com/coreagent/runtime/pkg/event"
	"github.com/coreagent/runtime/pkg/tool/builtin"
)

// Policy decides whether a batch of pending actions requires user
// confirmation before execution.
type Policy interface {
	// RequiresConfirmation inspects the batch (tool name + analyzed risk
	// per action, in call order) and reports whether the batch as a whole
	// must pause for confirmation.
	RequiresConfirmation(batch []PendingAction) bool
}

// PendingAction is the minimal view of an about-to-execute action a
// Policy needs.
type PendingAction struct {
	ToolName string
	Risk     event.Risk
}

// isExempt reports whether a, in isolation, is exempted from
// confirmation regardless of policy — a lone finish or think call,
// per §4.5.
func isExempt(a PendingAction) bool {
	return a.ToolName == builtin.NameFinish || a.ToolName == builtin.NameThink
}

// NeverConfirm never requires confirmation. Suitable for fully automated
// or sandboxed runs.
type NeverConfirm struct{}

func (NeverConfirm) RequiresConfirmation([]PendingAction) bool { return false }

// AlwaysConfirm requires confirmation for every batch, except a batch
// made up entirely of exempt actions (lone finish/think calls).
type AlwaysConfirm struct{}

func (AlwaysConfirm) RequiresConfirmation(batch []PendingAction) bool {
	for _, a := range batch {
		if !isExempt(a) {
			return true
		}
	}
	return false
}

// ConfirmRisky requires confirmation when any action in the batch is
// classified at or above Threshold, excluding exempt actions. A batch
// containing one risky action and several low-risk ones still pauses —
// confirmation is batch-level, not per-action (§4.5).
type ConfirmRisky struct {
	Threshold event.Risk
}

// NewConfirmRisky builds a ConfirmRisky policy gating at threshold. The
// zero value defaults to event.RiskMedium, matching the teacher's
// default "confirm anything non-trivial" posture.
func NewConfirmRisky(threshold event.Risk) ConfirmRisky {
	if threshold == "" {
		threshold = event.RiskMedium
	}
	return ConfirmRisky{Threshold: threshold}
}

var riskOrder = map[event.Risk]int{
	event.RiskLow:     0,
	event.RiskUnknown: 1,
	event.RiskMedium:  2,
	event.RiskHigh:    3,
}

func (p ConfirmRisky) RequiresConfirmation(batch []PendingAction) bool {
	threshold := riskOrder[p.Threshold]
	for _, a := range batch {
		if isExempt(a) {
			continue
		}
		if riskOrder[a.Risk] >= threshold {
			return true
		}
	}
	return false
}
