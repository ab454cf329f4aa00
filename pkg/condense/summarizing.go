package condense

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coreagent/runtime/pkg/event"
	"github.com/coreagent/runtime/pkg/llm"
)

// Summarizing condenses history once it exceeds Threshold events, keeping
// the most recent KeepRecent events verbatim and replacing everything
// before them with a single CondensationEvent summary. Grounded on the
// teacher's MCP-result summarization call shape (system+user prompt,
// single non-streaming LLM round trip, fail-open on error).
type Summarizing struct {
	LLM         llm.Client
	Threshold   int
	KeepRecent  int
	Logger      *slog.Logger
}

// NewSummarizing builds a Summarizing condenser. threshold/keepRecent
// default to 200/20 when zero.
func NewSummarizing(client llm.Client, threshold, keepRecent int, logger *slog.Logger) *Summarizing {
	if threshold <= 0 {
		threshold = 200
	}
	if keepRecent <= 0 {
		keepRecent = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizing{LLM: client, Threshold: threshold, KeepRecent: keepRecent, Logger: logger}
}

func (s *Summarizing) HandlesCondensationRequests() bool { return true }

func (s *Summarizing) Condense(ctx context.Context, events []event.Event) (View, *event.CondensationEvent, error) {
	explicitRequest := len(events) > 0 && events[len(events)-1].Kind == event.KindCondensationRequest
	if !explicitRequest && len(events) <= s.Threshold {
		return View{Events: events}, nil, nil
	}
	if len(events) <= s.KeepRecent {
		return View{Events: events}, nil, nil
	}

	toDrop := events[:len(events)-s.KeepRecent]
	kept := events[len(events)-s.KeepRecent:]

	summary, err := s.summarize(ctx, toDrop)
	if err != nil {
		s.Logger.Warn("condensation summarization failed, keeping full history", "error", err)
		return View{Events: events}, nil, nil
	}

	droppedIDs := make([]string, 0, len(toDrop))
	for _, ev := range toDrop {
		droppedIDs = append(droppedIDs, ev.ID)
	}

	cond := &event.CondensationEvent{Summary: summary, DroppedIDs: droppedIDs}
	view := View{Events: append([]event.Event{{Kind: event.KindCondensation, Source: event.SourceAgent, Condensation: cond}}, kept...)}
	return view, cond, nil
}

func (s *Summarizing) summarize(ctx context.Context, dropped []event.Event) (string, error) {
	var transcript strings.Builder
	for _, ev := range dropped {
		writeEventLine(&transcript, ev)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "Summarize the following agent conversation history concisely, preserving decisions made and facts discovered. The summary replaces this history for future turns."},
		{Role: llm.RoleUser, Content: transcript.String()},
	}

	ch, err := s.LLM.Generate(ctx, llm.GenerateInput{Messages: messages})
	if err != nil {
		return "", fmt.Errorf("condense: summarization call failed: %w", err)
	}

	var text strings.Builder
	for chunk := range ch {
		switch c := chunk.(type) {
		case *llm.TextChunk:
			text.WriteString(c.Content)
		case *llm.ErrorChunk:
			return "", fmt.Errorf("condense: summarization provider error: %s", c.Message)
		}
	}

	summary := strings.TrimSpace(text.String())
	if summary == "" {
		return "", fmt.Errorf("condense: summarization produced empty result")
	}
	return summary, nil
}

func writeEventLine(sb *strings.Builder, ev event.Event) {
	sb.WriteByte('[')
	sb.WriteString(string(ev.Source))
	sb.WriteString(" ")
	sb.WriteString(string(ev.Kind))
	sb.WriteString("]: ")
	switch ev.Kind {
	case event.KindMessage:
		sb.WriteString(ev.Message.Text())
	case event.KindAction:
		sb.WriteString(ev.Action.ToolName)
	case event.KindObservation:
		sb.WriteString(ev.Observation.ToolName)
	}
	sb.WriteString("\n")
}
