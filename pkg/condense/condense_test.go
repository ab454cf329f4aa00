package condense

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreagent/runtime/pkg/event"
	"github.com/coreagent/runtime/pkg/llm"
)

func TestNoOp_NeverCondenses(t *testing.T) {
	events := []event.Event{{ID: "1"}, {ID: "2"}}
	view, cond, err := NoOp{}.Condense(context.Background(), events)
	require.NoError(t, err)
	assert.Nil(t, cond)
	assert.Equal(t, events, view.Events)
	assert.False(t, NoOp{}.HandlesCondensationRequests())
}

func makeMessageEvent(id, text string) event.Event {
	return event.Event{
		ID:     id,
		Kind:   event.KindMessage,
		Source: event.SourceUser,
		Message: &event.MessageEvent{
			Role:    event.RoleUser,
			Content: []event.ContentBlock{{Text: text}},
		},
	}
}

func TestSummarizing_BelowThresholdIsNoOp(t *testing.T) {
	client := &llm.StubClient{}
	s := NewSummarizing(client, 10, 2, slog.Default())

	events := []event.Event{makeMessageEvent("1", "hi"), makeMessageEvent("2", "there")}
	view, cond, err := s.Condense(context.Background(), events)
	require.NoError(t, err)
	assert.Nil(t, cond)
	assert.Equal(t, events, view.Events)
	assert.Equal(t, 0, client.CallCount())
}

func TestSummarizing_AboveThresholdSummarizes(t *testing.T) {
	client := &llm.StubClient{Responses: []llm.Response{
		{Chunks: []llm.Chunk{&llm.TextChunk{Content: "summary of the dropped history"}}},
	}}
	s := NewSummarizing(client, 3, 1, slog.Default())

	events := []event.Event{
		makeMessageEvent("1", "a"), makeMessageEvent("2", "b"),
		makeMessageEvent("3", "c"), makeMessageEvent("4", "d"),
	}
	view, cond, err := s.Condense(context.Background(), events)
	require.NoError(t, err)
	require.NotNil(t, cond)
	assert.Equal(t, "summary of the dropped history", cond.Summary)
	assert.Equal(t, []string{"1", "2", "3"}, cond.DroppedIDs)

	require.Len(t, view.Events, 2) // condensation marker + 1 kept event
	assert.Equal(t, event.KindCondensation, view.Events[0].Kind)
	assert.Equal(t, "4", view.Events[1].ID)
}

func TestSummarizing_FewerEventsThanKeepRecentIsNoOp(t *testing.T) {
	client := &llm.StubClient{}
	s := NewSummarizing(client, 1, 10, slog.Default())

	events := []event.Event{makeMessageEvent("1", "a")}
	view, cond, err := s.Condense(context.Background(), events)
	require.NoError(t, err)
	assert.Nil(t, cond)
	assert.Equal(t, events, view.Events)
}

func TestSummarizing_ExplicitRequestTriggersEvenBelowThreshold(t *testing.T) {
	client := &llm.StubClient{Responses: []llm.Response{
		{Chunks: []llm.Chunk{&llm.TextChunk{Content: "ok summary"}}},
	}}
	s := NewSummarizing(client, 1000, 1, slog.Default())

	events := []event.Event{
		makeMessageEvent("1", "a"),
		makeMessageEvent("2", "b"),
		{Kind: event.KindCondensationRequest, Source: event.SourceUser},
	}
	_, cond, err := s.Condense(context.Background(), events)
	require.NoError(t, err)
	require.NotNil(t, cond)
}

func TestSummarizing_FailsOpenOnSummarizationError(t *testing.T) {
	client := &llm.StubClient{Responses: []llm.Response{
		{Chunks: []llm.Chunk{&llm.ErrorChunk{Message: "provider down"}}},
	}}
	s := NewSummarizing(client, 1, 1, slog.Default())

	events := []event.Event{makeMessageEvent("1", "a"), makeMessageEvent("2", "b")}
	view, cond, err := s.Condense(context.Background(), events)
	require.NoError(t, err)
	assert.Nil(t, cond)
	assert.Equal(t, events, view.Events)
}

func TestSummarizing_HandlesCondensationRequests(t *testing.T) {
	s := NewSummarizing(&llm.StubClient{}, 0, 0, nil)
	assert.True(t, s.HandlesCondensationRequests())
	assert.Equal(t, 200, s.Threshold)
	assert.Equal(t, 20, s.KeepRecent)
}

type erroringClient struct{ err error }

func (e erroringClient) Generate(context.Context, llm.GenerateInput) (<-chan llm.Chunk, error) {
	return nil, e.err
}

func TestSummarizing_GenerateCallErrorFailsOpen(t *testing.T) {
	s := NewSummarizing(erroringClient{err: errors.New("transport down")}, 1, 1, slog.Default())
	events := []event.Event{makeMessageEvent("1", "a"), makeMessageEvent("2", "b")}
	view, cond, err := s.Condense(context.Background(), events)
	require.NoError(t, err)
	assert.Nil(t, cond)
	assert.Equal(t, events, view.Events)
}
