// Package retry decorates an llm.Client with exponential-backoff retry
// for provider-transient errors, matching §7's requirement that
// provider-transient failures be retried rather than immediately
// surfaced as a conversation error.
package retry

import (
	"context"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"github.com/coreagent/runtime/pkg/llm"
)

// Client wraps an llm.Client, retrying Generate calls that fail outright
// (a transport-level error, not a streamed ErrorChunk) according to
// Backoff. A streamed ErrorChunk with Retryable=false is never retried —
// only the call itself failing to start is.
type Client struct {
	Inner   llm.Client
	Backoff backoff.BackOff
	Logger  *slog.Logger
}

// New builds a retrying Client with a default exponential backoff
// (matching the teacher's use of cenkalti/backoff/v4 for provider
// transient-error handling).
func New(inner llm.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		Inner:   inner,
		Backoff: backoff.NewExponentialBackOff(),
		Logger:  logger,
	}
}

func (c *Client) Generate(ctx context.Context, input llm.GenerateInput) (<-chan llm.Chunk, error) {
	bo := backoff.WithContext(c.Backoff, ctx)

	var ch <-chan llm.Chunk
	err := backoff.Retry(func() error {
		var err error
		ch, err = c.Inner.Generate(ctx, input)
		if err != nil {
			c.Logger.Warn("llm generate failed, retrying", "conversation_id", input.ConversationID, "error", err)
			return err
		}
		return nil
	}, bo)
	if err != nil {
		return nil, err
	}
	return ch, nil
}
