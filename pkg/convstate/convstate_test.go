package convstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreagent/runtime/pkg/event"
)

func TestNew_StartsIdle(t *testing.T) {
	s := New(10, nil)
	assert.Equal(t, StatusIdle, s.Status())
}

func TestTransition_LegalMove(t *testing.T) {
	s := New(10, nil)
	require.NoError(t, s.Transition(StatusRunning))
	assert.Equal(t, StatusRunning, s.Status())
}

func TestTransition_IllegalMove(t *testing.T) {
	s := New(10, nil)
	err := s.Transition(StatusFinished)
	require.Error(t, err)
	var illegal *ErrIllegalTransition
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, StatusIdle, illegal.From)
	assert.Equal(t, StatusFinished, illegal.To)
}

func TestTransition_SameStatusIsNoOp(t *testing.T) {
	s := New(10, nil)
	require.NoError(t, s.Transition(StatusIdle))
	assert.Equal(t, StatusIdle, s.Status())
}

func TestTransition_InvokesSaveFunc(t *testing.T) {
	var snapshots []Snapshot
	s := New(5, func(snap Snapshot) { snapshots = append(snapshots, snap) })

	require.NoError(t, s.Transition(StatusRunning))
	require.Len(t, snapshots, 1)
	assert.Equal(t, StatusRunning, snapshots[0].Status)
}

func TestIncrementIteration_ExceedsBudget(t *testing.T) {
	s := New(2, nil)
	assert.False(t, s.IncrementIteration())
	assert.False(t, s.IncrementIteration())
	assert.True(t, s.IncrementIteration())
}

func TestIncrementIteration_ZeroMeansUnbounded(t *testing.T) {
	s := New(0, nil)
	for i := 0; i < 100; i++ {
		assert.False(t, s.IncrementIteration())
	}
}

func TestResetIterations(t *testing.T) {
	s := New(2, nil)
	s.IncrementIteration()
	s.IncrementIteration()
	s.ResetIterations()
	assert.False(t, s.IncrementIteration())
}

func TestRestore(t *testing.T) {
	s := New(10, nil)
	s.Restore(Snapshot{Status: StatusPaused, MaxIterations: 7, IterationCount: 3})
	assert.Equal(t, StatusPaused, s.Status())
	assert.False(t, s.IncrementIteration(), "4th iteration of a 7-budget should not be exceeded")
}

func TestRestore_PreservesIterationCount(t *testing.T) {
	s := New(10, nil)
	s.Restore(Snapshot{Status: StatusRunning, MaxIterations: 5, IterationCount: 5})
	assert.True(t, s.IncrementIteration(), "6th iteration should exceed a budget of 5")
}

func TestAcquireRelease_Reentrant(t *testing.T) {
	s := New(10, nil)
	tok := NewToken()
	s.Acquire(tok)
	s.Acquire(tok) // reentrant, must not deadlock
	s.Release(tok)
	s.Release(tok)
}

func TestRelease_WithoutAcquire_Panics(t *testing.T) {
	s := New(10, nil)
	assert.Panics(t, func() { s.Release(NewToken()) })
}

func TestUnmatchedActions(t *testing.T) {
	events := []event.Event{
		{Kind: event.KindAction, Action: &event.ActionEvent{ToolCallID: "call-1"}},
		{Kind: event.KindObservation, Observation: &event.ObservationEvent{ToolCallID: "call-1"}},
		{Kind: event.KindAction, Action: &event.ActionEvent{ToolCallID: "call-2"}},
		{Kind: event.KindAction, Action: &event.ActionEvent{ToolCallID: "call-3"}},
		{Kind: event.KindUserRejectObservation, UserRejectObservation: &event.UserRejectObservationEvent{ToolCallID: "call-3"}},
	}

	unmatched := UnmatchedActions(events)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "call-2", unmatched[0].Action.ToolCallID)
}

func TestUnmatchedActions_Empty(t *testing.T) {
	assert.Empty(t, UnmatchedActions(nil))
}
