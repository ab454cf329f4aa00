// Package conversation implements the public Conversation façade: the
// single entry point embedding applications drive to send messages, run
// the agent loop, pause/reject actions, and persist/resume state.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/coreagent/runtime/pkg/confirm"
	"github.com/coreagent/runtime/pkg/condense"
	"github.com/coreagent/runtime/pkg/convstate"
	"github.com/coreagent/runtime/pkg/event"
	"github.com/coreagent/runtime/pkg/llm"
	"github.com/coreagent/runtime/pkg/persistence"
	"github.com/coreagent/runtime/pkg/secrets"
	"github.com/coreagent/runtime/pkg/security"
	"github.com/coreagent/runtime/pkg/step"
	"github.com/coreagent/runtime/pkg/stuck"
	"github.com/coreagent/runtime/pkg/tool"
)

// SkillActivator runs before a user message is appended to history,
// giving the embedding application a chance to inject retrieved
// knowledge-skill content relevant to the message. The default NoOp
// activator never adds anything.
type SkillActivator interface {
	Activate(text string) (suffix string, activated []string)
}

// NoOpSkillActivator implements SkillActivator by doing nothing.
type NoOpSkillActivator struct{}

func (NoOpSkillActivator) Activate(string) (string, []string) { return "", nil }

// Hooks are lifecycle callbacks an embedding application can register.
type Hooks struct {
	// OnClose runs, in registration order, when Close is called. The
	// first error stops the remaining hooks from running and is
	// returned from Close.
	OnClose []func(context.Context) error
}

// Callbacks receives ordered notifications as a conversation runs.
// Implementations must not block — the conversation is not re-entrant
// from within a callback.
type Callbacks struct {
	OnEvent                func(event.Event)
	OnStatusChange         func(from, to convstate.Status)
	OnConfirmationRequired func(batch []event.Event)
	OnStuck                func()
}

// Config bundles everything needed to construct a Conversation.
type Config struct {
	ConversationID string
	Workspace      string
	PersistDir     string
	LLM            llm.Client
	Tools          *tool.Registry
	Analyzer       security.Analyzer
	Policy         confirm.Policy
	Masker         step.Masker // optional; redacts MCP tool observations before persistence
	Condenser      condense.Condenser
	Secrets        *secrets.Registry
	MaxIterations  int
	SystemPrompt   string
	SkillActivator SkillActivator
	Hooks          Hooks
	Logger         *slog.Logger
}

// Conversation is the public runner: the one type an embedding
// application constructs and drives.
type Conversation struct {
	id        string
	workspace string

	store  *persistence.Store
	state  *convstate.State
	engine *step.Engine

	tools         *tool.Registry
	secretsR      *secrets.Registry
	condenser     condense.Condenser
	llmClient     llm.Client
	maxIterations int

	skillActivator SkillActivator
	hooks          Hooks
	callbacks      Callbacks

	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
}

// New constructs a Conversation, loading persisted state from
// cfg.PersistDir if present and reconciling it against cfg per
// pkg/persistence's rules.
func New(cfg Config, callbacks Callbacks) (*Conversation, error) {
	if cfg.ConversationID == "" {
		cfg.ConversationID = uuid.NewString()
	}
	if cfg.SkillActivator == nil {
		cfg.SkillActivator = NoOpSkillActivator{}
	}
	if cfg.Condenser == nil {
		cfg.Condenser = condense.NoOp{}
	}
	if cfg.Secrets == nil {
		cfg.Secrets = secrets.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := persistence.Open(cfg.PersistDir)
	if err != nil {
		return nil, fmt.Errorf("conversation: open store: %w", err)
	}

	persisted, err := store.LoadBaseState()
	if err != nil {
		return nil, fmt.Errorf("conversation: load base state: %w", err)
	}

	reconciled, err := persistence.Reconcile(persisted, persistence.RuntimeConfig{
		AgentClass: "agent_step_engine",
		ToolNames:  cfg.Tools.Names(),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: %w", err)
	}

	var analyzer security.Analyzer = cfg.Analyzer
	if analyzer == nil {
		analyzer = security.NewToolDeclared(func(name string, args map[string]any) event.Risk {
			t, ok := cfg.Tools.Get(name)
			if !ok {
				return event.RiskUnknown
			}
			return t.SecurityRisk(args)
		})
	}
	policy := cfg.Policy
	if policy == nil {
		policy = confirm.NewConfirmRisky("")
	}

	state := convstate.New(cfg.MaxIterations, func(snap convstate.Snapshot) {
		bs := persistence.BaseState{
			ConversationID:   cfg.ConversationID,
			Workspace:        cfg.Workspace,
			AgentClass:       "agent_step_engine",
			State:            snap,
			ToolNames:        cfg.Tools.Names(),
			SecurityAnalyzer: reconciled.SecurityAnalyzer,
			LiteLLMExtraBody: reconciled.LiteLLMExtraBody,
		}
		if err := store.SaveBaseState(bs); err != nil {
			logger.Error("autosave failed", "conversation_id", cfg.ConversationID, "error", err)
		}
	})
	if persisted != nil {
		state.Restore(persisted.State)
	}

	engine := step.New(cfg.LLM, cfg.Tools, analyzer, policy, logger)
	engine.Masker = cfg.Masker

	c := &Conversation{
		id:             cfg.ConversationID,
		workspace:      cfg.Workspace,
		store:          store,
		state:          state,
		engine:         engine,
		tools:          cfg.Tools,
		secretsR:       cfg.Secrets,
		condenser:      cfg.Condenser,
		llmClient:      cfg.LLM,
		maxIterations:  cfg.MaxIterations,
		skillActivator: cfg.SkillActivator,
		hooks:          cfg.Hooks,
		callbacks:      callbacks,
		logger:         logger,
	}

	if store.Log.Len() == 0 && cfg.SystemPrompt != "" {
		if _, err := c.appendEvent(event.Event{
			Source: event.SourceAgent,
			Kind:   event.KindSystemPrompt,
			SystemPrompt: &event.SystemPromptEvent{
				PromptText:  cfg.SystemPrompt,
				ToolSchemas: cfg.Tools.Schemas(),
			},
		}); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// ID returns the conversation's identifier.
func (c *Conversation) ID() string { return c.id }

// Status returns the current execution state.
func (c *Conversation) Status() convstate.Status { return c.state.Status() }

// Workspace returns the conversation's workspace identifier.
func (c *Conversation) Workspace() string { return c.workspace }

// History returns a copy of every event appended so far, in append order.
func (c *Conversation) History() []event.Event { return c.store.Log.All() }

func (c *Conversation) appendEvent(ev event.Event) (event.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if _, err := c.store.Log.Append(ev); err != nil {
		return ev, fmt.Errorf("conversation: append event: %w", err)
	}
	if c.callbacks.OnEvent != nil {
		c.callbacks.OnEvent(ev)
	}
	return ev, nil
}

// SendMessage appends a user message to history, running the configured
// SkillActivator first and recording any activated skills on the event.
// A finished conversation reopens to IDLE so the next Run call picks up
// the new turn (§6).
func (c *Conversation) SendMessage(text string) (event.Event, error) {
	if c.state.Status() == convstate.StatusFinished {
		if err := c.transition(convstate.StatusIdle); err != nil {
			return event.Event{}, err
		}
	}

	suffix, activated := c.skillActivator.Activate(text)
	content := text
	if suffix != "" {
		content = text + "\n\n" + suffix
	}
	return c.appendEvent(event.Event{
		Source: event.SourceUser,
		Kind:   event.KindMessage,
		Message: &event.MessageEvent{
			Role:            event.RoleUser,
			Content:         []event.ContentBlock{{Text: content}},
			ActivatedSkills: activated,
		},
	})
}

// Run drives the agent loop until it finishes, gets stuck, hits the
// iteration budget, needs confirmation, or ctx is cancelled.
func (c *Conversation) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("conversation: Run called on closed conversation")
	}
	c.mu.Unlock()

	if err := c.transition(convstate.StatusRunning); err != nil {
		return err
	}
	c.state.ResetIterations()

	for {
		select {
		case <-ctx.Done():
			return c.transition(convstate.StatusPaused)
		default:
		}

		if exceeded := c.state.IncrementIteration(); exceeded {
			return c.maxIterationsExceeded()
		}

		history := c.store.Log.All()
		if stuck.IsStuck(history) {
			if err := c.transition(convstate.StatusStuck); err != nil {
				return err
			}
			if c.callbacks.OnStuck != nil {
				c.callbacks.OnStuck()
			}
			return nil
		}

		view, cond, err := c.condenser.Condense(ctx, history)
		if err != nil {
			return c.errorOut(err)
		}
		if cond != nil {
			if _, err := c.appendEvent(event.Event{
				Source:       event.SourceAgent,
				Kind:         event.KindCondensation,
				Condensation: cond,
			}); err != nil {
				return c.errorOut(err)
			}
			history = c.store.Log.All()
			view = condense.View{Events: history}
		}

		result, err := c.engine.Step(ctx, view.Events)
		if err != nil {
			return c.errorOut(err)
		}

		for _, ev := range result.NewEvents {
			if _, err := c.appendEvent(ev); err != nil {
				return c.errorOut(err)
			}
		}

		switch result.Outcome {
		case step.OutcomeFinished:
			return c.transition(convstate.StatusFinished)
		case step.OutcomeWaitingForConfirmation:
			if err := c.transition(convstate.StatusWaitingForConfirmation); err != nil {
				return err
			}
			if c.callbacks.OnConfirmationRequired != nil {
				c.callbacks.OnConfirmationRequired(result.PendingBatch)
			}
			return nil
		case step.OutcomeContextWindowExceeded:
			if _, err := c.appendEvent(event.Event{
				Source:              event.SourceAgent,
				Kind:                event.KindCondensationRequest,
				CondensationRequest: &event.CondensationRequestEvent{},
			}); err != nil {
				return c.errorOut(err)
			}
			continue
		case step.OutcomeContinue:
			continue
		}
	}
}

// Confirm resumes a conversation waiting on confirmation, executing the
// pending batch that was recorded when OnConfirmationRequired fired.
func (c *Conversation) Confirm(ctx context.Context) error {
	if c.state.Status() != convstate.StatusWaitingForConfirmation {
		return fmt.Errorf("conversation: Confirm called while not waiting for confirmation")
	}
	pending := unexecutedActions(c.store.Log.All())
	obsEvents, outcome := c.engine.ExecutePending(ctx, pending)
	for _, ev := range obsEvents {
		if _, err := c.appendEvent(ev); err != nil {
			return c.errorOut(err)
		}
	}
	if outcome == step.OutcomeFinished {
		return c.transition(convstate.StatusFinished)
	}
	return c.transition(convstate.StatusRunning)
}

// Reject declines a pending confirmation, recording a
// UserRejectObservationEvent for each pending action instead of executing
// it.
func (c *Conversation) Reject(reason string) error {
	if c.state.Status() != convstate.StatusWaitingForConfirmation {
		return fmt.Errorf("conversation: Reject called while not waiting for confirmation")
	}
	for _, action := range unexecutedActions(c.store.Log.All()) {
		if _, err := c.appendEvent(event.Event{
			Source: event.SourceUser,
			Kind:   event.KindUserRejectObservation,
			UserRejectObservation: &event.UserRejectObservationEvent{
				ToolName:   action.Action.ToolName,
				ToolCallID: action.Action.ToolCallID,
				ActionID:   action.ID,
				Reason:     reason,
			},
		}); err != nil {
			return c.errorOut(err)
		}
	}
	return c.transition(convstate.StatusIdle)
}

func unexecutedActions(history []event.Event) []event.Event {
	return convstate.UnmatchedActions(history)
}

// Pause transitions a running conversation to paused; Run's next loop
// check will observe this the next time it checks ctx, so callers
// typically cancel the context passed to Run rather than calling Pause
// directly from another goroutine while Run is active.
func (c *Conversation) Pause() error {
	return c.transition(convstate.StatusPaused)
}

// SetConfirmationPolicy swaps the confirmation policy used for
// subsequent steps.
func (c *Conversation) SetConfirmationPolicy(p confirm.Policy) {
	c.engine.Policy = p
}

// UpdateSecrets replaces or adds a secret visible to tool execution.
func (c *Conversation) UpdateSecrets(name, envVar string, source secrets.Source) {
	c.secretsR.Update(name, envVar, source)
}

// GenerateTitle produces a short title for the conversation by truncating
// the first user message, optionally refined by an LLM call when client
// is non-nil.
func (c *Conversation) GenerateTitle(ctx context.Context, client llm.Client) (string, error) {
	var firstUserText string
	c.store.Log.Iter(func(_ int, ev event.Event) bool {
		if ev.Kind == event.KindMessage && ev.Source == event.SourceUser {
			firstUserText = ev.Message.Text()
			return false
		}
		return true
	})
	if firstUserText == "" {
		return "New conversation", nil
	}
	if client == nil {
		return truncateTitle(firstUserText), nil
	}

	ch, err := client.Generate(ctx, llm.GenerateInput{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "Generate a short (under 6 words) title for this conversation based on the user's first message. Respond with only the title."},
		{Role: llm.RoleUser, Content: firstUserText},
	}})
	if err != nil {
		return truncateTitle(firstUserText), nil
	}
	var sb strings.Builder
	for chunk := range ch {
		if t, ok := chunk.(*llm.TextChunk); ok {
			sb.WriteString(t.Content)
		}
	}
	title := strings.TrimSpace(sb.String())
	if title == "" {
		return truncateTitle(firstUserText), nil
	}
	return title, nil
}

func truncateTitle(text string) string {
	const maxLen = 50
	text = strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

// Close runs registered OnClose hooks in order, stopping at the first
// error, and marks the conversation unusable for further Run calls.
func (c *Conversation) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	for _, hook := range c.hooks.OnClose {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("conversation: close hook: %w", err)
		}
	}
	return nil
}

func (c *Conversation) transition(to convstate.Status) error {
	from := c.state.Status()
	if err := c.state.Transition(to); err != nil {
		return fmt.Errorf("conversation: %w", err)
	}
	if c.callbacks.OnStatusChange != nil && from != to {
		c.callbacks.OnStatusChange(from, to)
	}
	return nil
}

// maxIterationsExceeded records the terminal ERROR state §7 requires when
// the run loop exhausts its iteration budget: a ConversationErrorEvent
// carrying the "MaxIterationsReached" code, distinct from errorOut's
// generic internal_error code used for unexpected failures.
func (c *Conversation) maxIterationsExceeded() error {
	if _, err := c.appendEvent(event.Event{
		Source: event.SourceEnvironment,
		Kind:   event.KindConversationError,
		ConversationError: &event.ConversationErrorEvent{
			Code:   "MaxIterationsReached",
			Detail: fmt.Sprintf("conversation exceeded its %d-iteration budget", c.maxIterations),
		},
	}); err != nil {
		return fmt.Errorf("conversation: %w", err)
	}
	return c.transition(convstate.StatusError)
}

func (c *Conversation) errorOut(cause error) error {
	_, _ = c.appendEvent(event.Event{
		Source: event.SourceEnvironment,
		Kind:   event.KindConversationError,
		ConversationError: &event.ConversationErrorEvent{
			Code:   "internal_error",
			Detail: cause.Error(),
		},
	})
	_ = c.transition(convstate.StatusError)
	return fmt.Errorf("conversation: %w", cause)
}

