// Package condense implements the Condenser contract: given the full
// event history, produce either an unmodified View (nothing to condense
// yet) or a Condensation that logically replaces a dropped prefix with a
// summary, used when the context window is at risk of overflowing.
package condense

import (
	"context"

	"github.com/coreagent/runtime/pkg/event"
)

// View is a (possibly trimmed) projection of history to send to the LLM.
// When no condensation occurred, Events is the same slice passed in.
type View struct {
	Events []event.Event
}

// Condenser decides whether and how to shrink a conversation's history
// before it is sent to the LLM.
type Condenser interface {
	// Condense inspects events and returns either the (possibly
	// unmodified) View to use, or a non-nil CondensationEvent to append
	// to history — the caller is responsible for appending it and then
	// recomputing the View from the updated history.
	Condense(ctx context.Context, events []event.Event) (View, *event.CondensationEvent, error)

	// HandlesCondensationRequests reports whether this Condenser reacts
	// to an explicit CondensationRequestEvent (as opposed to only
	// triggering on its own size/token heuristics).
	HandlesCondensationRequests() bool
}

// NoOp never condenses; it always returns the full history unmodified.
// This is the default for conversations that don't configure a Condenser.
type NoOp struct{}

func (NoOp) Condense(_ context.Context, events []event.Event) (View, *event.CondensationEvent, error) {
	return View{Events: events}, nil, nil
}

func (NoOp) HandlesCondensationRequests() bool { return false }
