// Package stuck implements the StuckDetector: repetitive/unproductive
// pattern detection over the tail of a conversation's history since the
// last user message.
package stuck

import (
	"reflect"

	"github.com/coreagent/runtime/pkg/event"
)

// IsStuck inspects events (the full conversation history in append order)
// and reports whether the agent appears stuck in a repetitive pattern
// since the last user message. Fewer than 3 events after the last user
// message is never stuck — there's nothing to compare yet.
func IsStuck(events []event.Event) bool {
	tail := afterLastUserMessage(events)
	if len(tail) < 3 {
		return false
	}

	lastActions, lastObservations := collectLast(tail, 4, isAction, isObservationLike)
	if isStuckRepeatingActionObservation(lastActions, lastObservations) {
		return true
	}
	if isStuckRepeatingActionError(lastActions, lastObservations) {
		return true
	}
	if isStuckMonologue(tail) {
		return true
	}
	if len(tail) >= 6 && isStuckAlternating(tail) {
		return true
	}
	return false
}

func afterLastUserMessage(events []event.Event) []event.Event {
	lastUserIdx := -1
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.Kind == event.KindMessage && ev.Source == event.SourceUser {
			lastUserIdx = i
			break
		}
	}
	if lastUserIdx == -1 {
		return nil
	}
	return events[lastUserIdx+1:]
}

func isAction(ev event.Event) bool { return ev.Kind == event.KindAction }

// isObservationLike matches ObservationEvent and AgentErrorEvent — the
// Python detector's ObservationBaseEvent includes both.
func isObservationLike(ev event.Event) bool {
	return ev.Kind == event.KindObservation || ev.Kind == event.KindAgentError
}

// collectLast walks tail in reverse collecting up to n events matching
// isA into the first return slice and up to n matching isB into the
// second, stopping once both are full.
func collectLast(tail []event.Event, n int, isA, isB func(event.Event) bool) (a, b []event.Event) {
	for i := len(tail) - 1; i >= 0; i-- {
		ev := tail[i]
		if isA(ev) && len(a) < n {
			a = append(a, ev)
		} else if isB(ev) && len(b) < n {
			b = append(b, ev)
		}
		if len(a) >= n && len(b) >= n {
			break
		}
	}
	return a, b
}

func isStuckRepeatingActionObservation(lastActions, lastObservations []event.Event) bool {
	if len(lastActions) != 4 || len(lastObservations) != 4 {
		return false
	}
	actionsEqual := allEqual(lastActions)
	observationsEqual := allEqual(lastObservations)
	return actionsEqual && observationsEqual
}

func isStuckRepeatingActionError(lastActions, lastObservations []event.Event) bool {
	if len(lastActions) < 3 || len(lastObservations) < 3 {
		return false
	}
	if !allEqual(lastActions[:3]) {
		return false
	}
	for _, obs := range lastObservations[:3] {
		if obs.Kind != event.KindAgentError {
			return false
		}
	}
	return true
}

func isStuckMonologue(tail []event.Event) bool {
	if len(tail) < 3 {
		return false
	}
	agentMessageCount := 0
	for i := len(tail) - 1; i >= 0; i-- {
		ev := tail[i]
		switch {
		case ev.Kind == event.KindMessage:
			if ev.Source == event.SourceAgent {
				agentMessageCount++
				continue
			}
			if ev.Source == event.SourceUser {
				goto done
			}
			// system-sourced messages don't count but don't break either
		case ev.Kind == event.KindCondensation:
			continue
		default:
			goto done
		}
	}
done:
	return agentMessageCount >= 3
}

func isStuckAlternating(tail []event.Event) bool {
	lastActions, lastObservations := collectLast(tail, 6, isAction, isObservationLike)
	if len(lastActions) != 6 || len(lastObservations) != 6 {
		return false
	}
	actionsEqual := eventEq(lastActions[0], lastActions[2]) &&
		eventEq(lastActions[0], lastActions[4]) &&
		eventEq(lastActions[1], lastActions[3]) &&
		eventEq(lastActions[1], lastActions[5])
	observationsEqual := eventEq(lastObservations[0], lastObservations[2]) &&
		eventEq(lastObservations[0], lastObservations[4]) &&
		eventEq(lastObservations[1], lastObservations[3]) &&
		eventEq(lastObservations[1], lastObservations[5])
	return actionsEqual && observationsEqual
}

func allEqual(events []event.Event) bool {
	for _, ev := range events {
		if !eventEq(events[0], ev) {
			return false
		}
	}
	return true
}

// eventEq compares two events for structural equality while ignoring
// volatile identifiers (IDs, tool_call_id, llm_response_id) — matching
// what actually determines whether two steps represent "the same" action,
// observation, error, or message.
func eventEq(a, b event.Event) bool {
	if a.Kind != b.Kind || a.Source != b.Source {
		return false
	}
	switch a.Kind {
	case event.KindAction:
		return actionEq(a.Action, b.Action)
	case event.KindObservation:
		return observationEq(a.Observation, b.Observation)
	case event.KindAgentError:
		return a.AgentError.Error == b.AgentError.Error
	case event.KindMessage:
		return a.Message.Text() == b.Message.Text() && a.Message.Role == b.Message.Role
	default:
		return false
	}
}

func actionEq(a, b *event.ActionEvent) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ToolName != b.ToolName || len(a.ActionPayload) != len(b.ActionPayload) {
		return false
	}
	for k, av := range a.ActionPayload {
		bv, ok := b.ActionPayload[k]
		if !ok || !shallowEqual(av, bv) {
			return false
		}
	}
	return true
}

func observationEq(a, b *event.ObservationEvent) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ToolName != b.ToolName || a.IsError != b.IsError {
		return false
	}
	if len(a.ObservationPayload) != len(b.ObservationPayload) {
		return false
	}
	for k, av := range a.ObservationPayload {
		bv, ok := b.ObservationPayload[k]
		if !ok || !shallowEqual(av, bv) {
			return false
		}
	}
	return true
}

// shallowEqual compares two any values from decoded JSON (nil, bool,
// float64, string, or nested map/slice of those).
func shallowEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
