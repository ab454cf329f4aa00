// Package convstate implements the conversation's execution-state machine:
// a reentrant-lock-protected FSM that tracks whether a conversation is
// idle, running, paused, waiting on a confirmation, finished, stuck, or
// errored, and autosaves on every mutation.
package convstate

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/coreagent/runtime/pkg/event"
)

// Status is one of the seven execution states a conversation can be in.
type Status string

const (
	StatusIdle                    Status = "idle"
	StatusRunning                 Status = "running"
	StatusPaused                  Status = "paused"
	StatusWaitingForConfirmation Status = "waiting_for_confirmation"
	StatusFinished                Status = "finished"
	StatusStuck                   Status = "stuck"
	StatusError                   Status = "error"
)

// transitions enumerates the legal Status graph. A transition not listed
// here is rejected by Transition.
var transitions = map[Status]map[Status]bool{
	StatusIdle: {
		StatusRunning: true,
	},
	StatusRunning: {
		StatusIdle:                    true,
		StatusPaused:                  true,
		StatusWaitingForConfirmation: true,
		StatusFinished:                true,
		StatusStuck:                   true,
		StatusError:                   true,
	},
	StatusPaused: {
		StatusRunning: true,
		StatusIdle:    true,
	},
	StatusWaitingForConfirmation: {
		StatusRunning: true,
		StatusIdle:    true,
	},
	StatusFinished: {
		StatusRunning: true, // Run() reopens a finished conversation directly
		StatusIdle:    true, // SendMessage reopens to IDLE per §6
	},
	StatusStuck: {
		StatusRunning: true,
		StatusIdle:    true,
	},
	StatusError: {
		StatusRunning: true,
		StatusIdle:    true,
	},
}

// ErrIllegalTransition is returned when Transition is asked to move to a
// Status not reachable from the current one.
type ErrIllegalTransition struct {
	From, To Status
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("convstate: illegal transition %s -> %s", e.From, e.To)
}

// SaveFunc persists a snapshot of the state after every mutation. It is
// called while the internal lock is held by the owning goroutine, so it
// must not call back into the State.
type SaveFunc func(snapshot Snapshot)

// Snapshot is the serializable view of a State at a point in time.
type Snapshot struct {
	Status         Status `json:"status"`
	MaxIterations  int    `json:"max_iterations"`
	IterationCount int    `json:"iteration_count"`
}

// State is the conversation's execution-state machine. Its lock is
// reentrant with respect to a single owner goroutine id token: a caller
// that already holds the lock (tracked via Acquire's returned token) may
// call Transition again without deadlocking, matching the teacher's
// session-manager pattern of a single coarse lock guarding state mutation
// while still allowing nested internal calls.
type State struct {
	mu    sync.Mutex
	owner uint64
	depth int

	status         Status
	maxIterations  int
	iterationCount int

	save SaveFunc
}

// New creates a State starting in StatusIdle.
func New(maxIterations int, save SaveFunc) *State {
	return &State{
		status:        StatusIdle,
		maxIterations: maxIterations,
		save:          save,
	}
}

// Token identifies a lock holder for reentrant Acquire/Release calls.
type Token uint64

var tokenCounter uint64
var tokenMu sync.Mutex

// NewToken mints a unique Token for a caller (typically one per
// goroutine-scoped operation, e.g. one per AgentStepEngine.Step call).
func NewToken() Token {
	tokenMu.Lock()
	defer tokenMu.Unlock()
	tokenCounter++
	return Token(tokenCounter)
}

// Acquire locks the state for tok. If tok already holds the lock
// (reentrant call), it increments the hold depth instead of blocking.
func (s *State) Acquire(tok Token) {
	s.mu.Lock()
	if s.depth > 0 && s.owner == uint64(tok) {
		s.depth++
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// Not held by us: block on the real lock via a spin against owner==0.
	// A single mutex models this cleanly enough for the in-process case
	// the spec targets (no cross-process coordination). Gosched yields
	// between attempts so a waiter doesn't starve the goroutine holding
	// the lock on a GOMAXPROCS=1 build.
	for {
		s.mu.Lock()
		if s.depth == 0 {
			s.owner = uint64(tok)
			s.depth = 1
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		runtime.Gosched()
	}
}

// Release unlocks one level of tok's hold. Panics if tok is not the
// current holder — a programming error in the caller.
func (s *State) Release(tok Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth == 0 || s.owner != uint64(tok) {
		panic("convstate: Release called without a matching Acquire")
	}
	s.depth--
	if s.depth == 0 {
		s.owner = 0
	}
}

// Status returns the current status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Transition moves the state machine to to, rejecting illegal moves, and
// invokes the configured SaveFunc on success.
func (s *State) Transition(to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == to {
		return nil
	}
	allowed := transitions[s.status]
	if !allowed[to] {
		return &ErrIllegalTransition{From: s.status, To: to}
	}
	s.status = to
	s.persistLocked()
	return nil
}

// IncrementIteration increments the step counter and reports whether the
// configured MaxIterations budget has been exceeded.
func (s *State) IncrementIteration() (exceeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterationCount++
	exceeded = s.maxIterations > 0 && s.iterationCount > s.maxIterations
	s.persistLocked()
	return exceeded
}

// ResetIterations zeroes the step counter, called when a fresh user
// message starts a new run.
func (s *State) ResetIterations() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterationCount = 0
	s.persistLocked()
}

func (s *State) persistLocked() {
	if s.save == nil {
		return
	}
	s.save(Snapshot{
		Status:         s.status,
		MaxIterations:  s.maxIterations,
		IterationCount: s.iterationCount,
	})
}

// Restore sets the state machine directly from a loaded Snapshot, used by
// the persistence Reconciler on resume. It bypasses Transition's legality
// checks since the snapshot represents an already-valid prior state.
func (s *State) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = snap.Status
	s.maxIterations = snap.MaxIterations
	s.iterationCount = snap.IterationCount
}

// UnmatchedActions scans events for ActionEvents that have no matching
// ObservationEvent or UserRejectObservationEvent by ToolCallID — the set
// of tool calls still awaiting a result, used when resuming a
// conversation to decide whether to re-execute or wait.
func UnmatchedActions(events []event.Event) []event.Event {
	matched := make(map[string]bool)
	for _, ev := range events {
		switch ev.Kind {
		case event.KindObservation:
			matched[ev.Observation.ToolCallID] = true
		case event.KindUserRejectObservation:
			matched[ev.UserRejectObservation.ToolCallID] = true
		}
	}
	var out []event.Event
	for _, ev := range events {
		if ev.Kind != event.KindAction {
			continue
		}
		if !matched[ev.Action.ToolCallID] {
			out = append(out, ev)
		}
	}
	return out
}
