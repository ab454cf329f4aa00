package retry

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreagent/runtime/pkg/llm"
)

type flakyClient struct {
	failures int
	err      error
	calls    int
}

func (f *flakyClient) Generate(ctx context.Context, input llm.GenerateInput) (<-chan llm.Chunk, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	ch := make(chan llm.Chunk, 1)
	ch <- &llm.TextChunk{Content: "ok"}
	close(ch)
	return ch, nil
}

func newFastBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 0
	b.MaxInterval = 0
	b.MaxElapsedTime = 0
	return b
}

func TestGenerate_SucceedsFirstTry(t *testing.T) {
	inner := &flakyClient{}
	c := New(inner, nil)
	c.Backoff = newFastBackoff()

	ch, err := c.Generate(context.Background(), llm.GenerateInput{})
	require.NoError(t, err)
	chunk := <-ch
	assert.Equal(t, "ok", chunk.(*llm.TextChunk).Content)
	assert.Equal(t, 1, inner.calls)
}

func TestGenerate_RetriesOnTransientFailure(t *testing.T) {
	inner := &flakyClient{failures: 2, err: errors.New("transient")}
	c := New(inner, nil)
	c.Backoff = newFastBackoff()

	ch, err := c.Generate(context.Background(), llm.GenerateInput{})
	require.NoError(t, err)
	chunk := <-ch
	assert.Equal(t, "ok", chunk.(*llm.TextChunk).Content)
	assert.Equal(t, 3, inner.calls)
}

func TestGenerate_GivesUpWhenContextCancelled(t *testing.T) {
	inner := &flakyClient{failures: 1000, err: errors.New("down forever")}
	c := New(inner, nil)
	c.Backoff = newFastBackoff()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Generate(ctx, llm.GenerateInput{})
	assert.Error(t, err)
}
